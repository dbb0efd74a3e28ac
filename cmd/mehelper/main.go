package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"mehelper/internal/cli"
	"mehelper/internal/config"
	"mehelper/internal/report"
	"mehelper/internal/scan"
	"mehelper/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	logger := cfg.NewLogger()

	tables := triage.DefaultTables()
	if cfg.TablesPath != "" {
		if tables, err = triage.LoadTables(cfg.TablesPath); err != nil {
			logger.Fatalf("loading tables: %v", err)
		}
	}

	reports := report.NewService(nil, 0, cfg.ReportFontPath, logger)

	app := &cli.App{
		Tables: tables,
		Open: func(d scan.Dependencies) (scan.Service, io.Closer, error) {
			repo, err := scan.NewSQLiteRepository(cfg.HistoryDir)
			if err != nil {
				return nil, nil, err
			}
			d.Repo = repo
			d.Reports = reports
			d.Logger = logger
			return scan.NewService(d), repo, nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand(app).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
