package triage

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPossibleCauses bounds the cause list.
const MaxPossibleCauses = 3

// GuidanceBundle is everything shown to the user for one encounter.
type GuidanceBundle struct {
	RiskLevel      RiskLevel      `json:"risk_level"`
	Assessment     string         `json:"assessment"`
	Reassurance    string         `json:"reassurance"`
	PossibleCauses []string       `json:"possible_causes"`
	FirstAid       []string       `json:"first_aid"`
	ImmediateSteps []string       `json:"immediate_steps"`
	RedFlags       []string       `json:"red_flags"`
	DangerSigns    []string       `json:"danger_signs"`
	VitalsAnalysis []VitalFinding `json:"vitals_analysis"`
	Summary        string         `json:"summary"`
	NextAction     string         `json:"next_action"`
}

// Generator produces guidance text from Tables. It holds no mutable state and
// is safe for concurrent use.
type Generator struct {
	tables Tables
}

func NewGenerator(t Tables) *Generator {
	return &Generator{tables: t}
}

// PossibleCauses walks the cause rules in order and keeps the first three
// distinct causes. It falls back to generic causes when nothing matches.
func (g *Generator) PossibleCauses(enc Encounter) []string {
	causes := collect(nil, g.tables.CauseRules, enc)
	if len(causes) == 0 {
		causes = append([]string(nil), g.tables.FallbackCauses...)
	}
	if len(causes) > MaxPossibleCauses {
		causes = causes[:MaxPossibleCauses]
	}
	return causes
}

// FirstAidMeasures returns the universal measures followed by one block per
// matched symptom category. The risk level does not change the result today.
func (g *Generator) FirstAidMeasures(enc Encounter, _ RiskLevel) []string {
	return collect(g.tables.UniversalFirstAid, g.tables.FirstAidRules, enc)
}

// DangerSigns lists escalation signs for the encounter regardless of risk
// level. Pediatric signs apply only when an age under five was reported.
func (g *Generator) DangerSigns(enc Encounter, _ RiskLevel) []string {
	signs := append([]string(nil), g.tables.UniversalDangerSigns...)
	if enc.Age != nil && *enc.Age < 5 {
		signs = append(signs, g.tables.PediatricDangerSigns...)
	}
	return collect(signs, g.tables.DangerSignRules, enc)
}

// Reassurance returns the opening message for level.
func (g *Generator) Reassurance(level RiskLevel) string {
	if lg, ok := g.tables.Levels[level]; ok && lg.Reassurance != "" {
		return lg.Reassurance
	}
	return g.tables.Levels[RiskHigh].Reassurance
}

// NextAction returns the recommended next step for level.
func (g *Generator) NextAction(level RiskLevel) string {
	if lg, ok := g.tables.Levels[level]; ok && lg.NextAction != "" {
		return lg.NextAction
	}
	return "Contact a healthcare provider for personalized advice."
}

// Summary renders the plain-text encounter summary.
func (g *Generator) Summary(enc Encounter, level RiskLevel) string {
	age := "not specified"
	if enc.Age != nil {
		age = strconv.Itoa(*enc.Age)
	}
	sex := enc.Sex
	if sex == "" {
		sex = "not specified"
	}
	symptoms := enc.SymptomsText
	if symptoms == "" {
		symptoms = "No specific symptoms described"
	}
	duration := string(enc.Duration)
	if duration == "" {
		duration = "Not specified"
	}
	temp := "Not measured"
	if enc.Temperature != nil {
		temp = strconv.FormatFloat(*enc.Temperature, 'f', -1, 64) + "°C"
	}
	hr := "Not measured"
	if enc.HeartRate != nil {
		hr = strconv.Itoa(*enc.HeartRate) + " BPM"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Basic Data: Age %s, %s\n", age, sex)
	fmt.Fprintf(&b, "Symptoms: %s\n", symptoms)
	fmt.Fprintf(&b, "Duration: %s\n", duration)
	fmt.Fprintf(&b, "Vital Signs: Temperature %s, Heart Rate %s\n", temp, hr)
	fmt.Fprintf(&b, "Assessment: %s risk level", capitalize(string(level)))
	return b.String()
}

// Bundle assembles the full guidance for enc at level.
func (g *Generator) Bundle(enc Encounter, level RiskLevel) GuidanceBundle {
	lg := g.tables.Levels[level]
	return GuidanceBundle{
		RiskLevel:      level,
		Assessment:     level.SeverityLabel(),
		Reassurance:    g.Reassurance(level),
		PossibleCauses: g.PossibleCauses(enc),
		FirstAid:       g.FirstAidMeasures(enc, level),
		ImmediateSteps: append([]string(nil), lg.ImmediateSteps...),
		RedFlags:       append([]string(nil), lg.RedFlags...),
		DangerSigns:    g.DangerSigns(enc, level),
		VitalsAnalysis: AnalyzeVitals(enc),
		Summary:        g.Summary(enc, level),
		NextAction:     g.NextAction(level),
	}
}

// collect appends the items of every matching rule to base, skipping
// duplicates while keeping first-seen order.
func collect(base []string, rules []Rule, enc Encounter) []string {
	out := make([]string, 0, len(base))
	seen := make(map[string]bool)
	add := func(items []string) {
		for _, it := range items {
			if !seen[it] {
				seen[it] = true
				out = append(out, it)
			}
		}
	}

	add(base)
	for _, r := range rules {
		if r.Matches(enc) {
			add(r.Items)
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
