package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newHistoryCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage recorded assessments",
		Long:  `List, show, delete or export the most recent assessments kept on this machine.`,
	}

	var patient string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent assessments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid := LocalPatientID
			if patient != "" {
				var err error
				if pid, err = uuid.Parse(patient); err != nil {
					return fmt.Errorf("invalid patient id %q", patient)
				}
			}

			svc, closer, err := app.open()
			if err != nil {
				return err
			}
			defer closer.Close()

			scans, err := svc.History(cmd.Context(), pid)
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}
			if len(scans) == 0 {
				cmd.Println("No assessments recorded.")
				return nil
			}
			for _, sc := range scans {
				cmd.Printf("%s  %s  %-9s  %s\n",
					sc.ID, sc.CreatedAt.Local().Format("2006-01-02 15:04"), sc.RiskLevel, truncate(sc.Form.Symptoms, 40))
			}
			cmd.Printf("\nTotal: %d\n", len(scans))
			return nil
		},
	}
	list.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the local user)")

	show := &cobra.Command{
		Use:   "show [scan-id]",
		Short: "Show one assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseScanID(args[0])
			if err != nil {
				return err
			}
			svc, closer, err := app.open()
			if err != nil {
				return err
			}
			defer closer.Close()

			sc, err := svc.GetScan(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to get assessment: %w", err)
			}
			printScan(cmd, sc)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete [scan-id]",
		Short: "Delete one assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseScanID(args[0])
			if err != nil {
				return err
			}
			svc, closer, err := app.open()
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := svc.DeleteScan(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete assessment: %w", err)
			}
			cmd.Printf("Deleted %s\n", id)
			return nil
		},
	}

	var out string
	report := &cobra.Command{
		Use:   "report [scan-id]",
		Short: "Write a PDF report for one assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseScanID(args[0])
			if err != nil {
				return err
			}
			svc, closer, err := app.open()
			if err != nil {
				return err
			}
			defer closer.Close()

			pdf, err := svc.Report(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to build report: %w", err)
			}
			path := out
			if path == "" {
				path = fmt.Sprintf("mehelper_report_%s.pdf", id)
			}
			if err := os.WriteFile(path, pdf, 0600); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			cmd.Printf("Report written to %s\n", path)
			return nil
		},
	}
	report.Flags().StringVarP(&out, "out", "o", "", "output file")

	cmd.AddCommand(list, show, del, report)
	return cmd
}

func parseScanID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid scan id %q", s)
	}
	return id, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
