package cli

import (
	"github.com/spf13/cobra"

	"mehelper/internal/triage"
)

func newVitalsCommand() *cobra.Command {
	var form triage.EncounterForm

	cmd := &cobra.Command{
		Use:   "vitals",
		Short: "Check temperature and heart rate against normal ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			findings := triage.AnalyzeVitals(triage.ParseForm(form))
			if len(findings) == 0 {
				cmd.Println("No vital signs given.")
				return nil
			}
			for _, f := range findings {
				cmd.Println(f.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&form.Age, "age", "", "age in years (used for the heart-rate range)")
	cmd.Flags().StringVar(&form.Temperature, "temperature", "", "body temperature in °C")
	cmd.Flags().StringVar(&form.HeartRate, "heart-rate", "", "heart rate in BPM")
	return cmd
}
