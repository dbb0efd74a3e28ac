package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mehelper/internal/scan"
	"mehelper/internal/triage"
)

type assessOptions struct {
	form    triage.EncounterForm
	patient string
	rules   string
	jsonOut bool
	noSave  bool
}

func newAssessCommand(app *App) *cobra.Command {
	var opts assessOptions

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess symptoms and print guidance",
		Example: `  mehelper assess --age 4 --sex female --symptoms "fever and cough" \
    --tag fever --duration 3-7days --temperature 38.9`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssess(cmd, app, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.form.Age, "age", "", "age in years")
	f.StringVar(&opts.form.Sex, "sex", "", "sex")
	f.StringVar(&opts.form.Symptoms, "symptoms", "", "free-text description of the symptoms")
	f.StringSliceVar(&opts.form.SelectedSymptoms, "tag", nil, "symptom tag (repeatable): fever, chest-pain, breathing, diarrhea, pain, anxiety, depression, stress, other")
	f.StringVar(&opts.form.Duration, "duration", "", "none, <3days, 3-7days, 1-2weeks or more")
	f.StringVar(&opts.form.Temperature, "temperature", "", "body temperature in °C")
	f.StringVar(&opts.form.HeartRate, "heart-rate", "", "heart rate in BPM")
	f.StringVar(&opts.patient, "patient", "", "patient id (defaults to the local user)")
	f.StringVar(&opts.rules, "rules", "threshold", "local rule set: threshold or score")
	f.BoolVar(&opts.jsonOut, "json", false, "print the full result as JSON")
	f.BoolVar(&opts.noSave, "no-save", false, "do not record the assessment in history")
	cmd.MarkFlagRequired("symptoms")

	return cmd
}

func runAssess(cmd *cobra.Command, app *App, opts assessOptions) error {
	var classifier triage.Classifier
	switch opts.rules {
	case "threshold":
		classifier = triage.NewThresholdClassifier(app.Tables)
	case "score":
		classifier = triage.NewScoreClassifier(app.Tables)
	default:
		return fmt.Errorf("unknown rule set %q (want threshold or score)", opts.rules)
	}

	svc, closer, err := app.openWith(classifier)
	if err != nil {
		return err
	}
	defer closer.Close()

	patient := opts.patient
	if patient == "" {
		patient = LocalPatientID.String()
	}

	res, err := svc.Analyze(cmd.Context(), scan.AnalyzeRequest{
		PatientID:     patient,
		EncounterForm: opts.form,
		SkipHistory:   opts.noSave,
	})
	if err != nil {
		return fmt.Errorf("assessment failed: %w", err)
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	printScan(cmd, res.Scan)
	if res.Duplicate {
		cmd.Println("\n(Same as a recent assessment; not added to history.)")
	}
	return nil
}

// printScan renders the sections in presentation order.
func printScan(cmd *cobra.Command, sc *scan.Scan) {
	g := sc.Guidance

	cmd.Printf("Risk level: %s\n", strings.ToUpper(string(g.RiskLevel)))
	if sc.RiskLevel != g.RiskLevel {
		cmd.Printf("Recorded level: %s (%s)\n", sc.RiskLevel, sc.RiskSource)
	}
	cmd.Printf("Scan: %s\n\n", sc.ID)

	section(cmd, triage.LevelReassurance, g.Reassurance)
	section(cmd, triage.LevelAssessment, fmt.Sprintf("%s risk level, %s condition. %s", g.RiskLevel, g.Assessment, g.NextAction))
	section(cmd, triage.LevelPossibleCauses, g.PossibleCauses...)
	section(cmd, triage.LevelFirstAid, append(append([]string(nil), g.FirstAid...), g.ImmediateSteps...)...)
	section(cmd, triage.LevelDangerSigns, g.DangerSigns...)

	var vitals []string
	for _, v := range g.VitalsAnalysis {
		vitals = append(vitals, v.Text)
	}
	section(cmd, triage.LevelVitals, vitals...)
	section(cmd, triage.LevelSummary, strings.Split(g.Summary, "\n")...)
	if sc.ImageAnalysis != "" {
		section(cmd, triage.LevelImageAnalysis, sc.ImageAnalysis)
	}
}

func section(cmd *cobra.Command, level triage.Level, items ...string) {
	if len(items) == 0 {
		return
	}
	cmd.Printf("%d. %s\n", level, level.Title())
	for _, it := range items {
		if strings.TrimSpace(it) == "" {
			continue
		}
		cmd.Printf("   - %s\n", it)
	}
	cmd.Println()
}
