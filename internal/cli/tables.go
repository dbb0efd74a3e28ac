package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mehelper/internal/triage"
)

func newTablesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect the keyword and guidance tables",
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the active tables as YAML",
		Long:  `Prints the tables in use. Edit the output and point TRIAGE_TABLES_PATH at it to retune or translate the guidance.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(app.Tables)
		},
	}

	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a tables file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := triage.LoadTables(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: ok\n", args[0])
			cmd.Printf("  emergency keywords: %d (score rules: %d)\n", len(t.EmergencyKeywords), len(t.ScoreEmergencyKeywords))
			cmd.Printf("  cause rules: %d, first-aid rules: %d, danger-sign rules: %d\n",
				len(t.CauseRules), len(t.FirstAidRules), len(t.DangerSignRules))
			for _, level := range []triage.RiskLevel{triage.RiskLow, triage.RiskModerate, triage.RiskHigh, triage.RiskEmergency} {
				if _, ok := t.Levels[level]; !ok {
					return fmt.Errorf("%s: no guidance for %s risk", args[0], level)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(export, check)
	return cmd
}
