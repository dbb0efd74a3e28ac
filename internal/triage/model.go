package triage

import (
	"math"
	"strconv"
	"strings"
)

// DefaultAge is substituted whenever an encounter carries no usable age.
const DefaultAge = 30

// Duration is the symptom-duration tag submitted by the intake form.
type Duration string

const (
	DurationNone         Duration = "none"
	DurationUnder3Days   Duration = "<3days"
	DurationThreeToSeven Duration = "3-7days"
	DurationOneToTwoWks  Duration = "1-2weeks"
	DurationMore         Duration = "more"
)

// ParseDuration returns the matching tag, or "" for anything the form does not send.
func ParseDuration(s string) Duration {
	switch d := Duration(strings.TrimSpace(s)); d {
	case DurationNone, DurationUnder3Days, DurationThreeToSeven, DurationOneToTwoWks, DurationMore:
		return d
	default:
		return ""
	}
}

// RiskLevel is the outcome of a classification.
type RiskLevel string

const (
	RiskLow       RiskLevel = "low"
	RiskModerate  RiskLevel = "moderate"
	RiskHigh      RiskLevel = "high"
	RiskEmergency RiskLevel = "emergency"
)

// Severity orders risk levels for display; unknown levels sort below low.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	case RiskEmergency:
		return 4
	default:
		return 0
	}
}

// SeverityLabel is the condition wording shown next to a level.
func (r RiskLevel) SeverityLabel() string {
	switch r {
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "severe"
	case RiskEmergency:
		return "critical"
	default:
		return "mild"
	}
}

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	return r.Severity() > 0
}

// ParseRiskLevel accepts both the level names and the severity vocabulary
// used by the analysis backend (mild, severe, critical).
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "mild":
		return RiskLow, true
	case "moderate", "medium":
		return RiskModerate, true
	case "high", "severe":
		return RiskHigh, true
	case "emergency", "critical":
		return RiskEmergency, true
	default:
		return "", false
	}
}

// Encounter is one self-reported set of symptoms and vitals.
// Optional numeric fields are nil when the user left them blank.
type Encounter struct {
	Age              *int
	Sex              string
	SymptomsText     string
	SelectedSymptoms []string
	Duration         Duration
	Temperature      *float64
	HeartRate        *int
}

// EffectiveAge returns the reported age or DefaultAge.
func (e Encounter) EffectiveAge() int {
	if e.Age == nil {
		return DefaultAge
	}
	return *e.Age
}

func (e Encounter) temperature() float64 {
	if e.Temperature == nil {
		return 0
	}
	return *e.Temperature
}

func (e Encounter) heartRate() int {
	if e.HeartRate == nil {
		return 0
	}
	return *e.HeartRate
}

// HasTag reports whether tag was selected.
func (e Encounter) HasTag(tag string) bool {
	for _, t := range e.SelectedSymptoms {
		if t == tag {
			return true
		}
	}
	return false
}

// Mentions reports whether the free text contains term, ignoring case.
func (e Encounter) Mentions(term string) bool {
	return strings.Contains(strings.ToLower(e.SymptomsText), strings.ToLower(term))
}

// Reports reports whether term appears in the free text or as a selected tag.
func (e Encounter) Reports(term string) bool {
	return e.Mentions(term) || e.HasTag(term)
}

// EncounterForm carries raw form values as submitted.
type EncounterForm struct {
	Age              string   `json:"age"`
	Sex              string   `json:"sex"`
	Symptoms         string   `json:"symptoms"`
	SelectedSymptoms []string `json:"selected_symptoms"`
	Duration         string   `json:"duration"`
	Temperature      string   `json:"temperature"`
	HeartRate        string   `json:"heart_rate"`
}

// ParseForm builds an Encounter from raw form values. Malformed, negative or
// non-finite numbers become absent, as do temperatures outside
// [MinTemperature, MaxTemperature]. Tags are normalised and de-duplicated.
func ParseForm(f EncounterForm) Encounter {
	enc := Encounter{
		Sex:          strings.TrimSpace(f.Sex),
		SymptomsText: strings.TrimSpace(f.Symptoms),
		Duration:     ParseDuration(f.Duration),
	}

	if age, err := strconv.Atoi(strings.TrimSpace(f.Age)); err == nil && age >= 0 {
		enc.Age = &age
	}
	if t, err := strconv.ParseFloat(strings.TrimSpace(f.Temperature), 64); err == nil && plausibleTemperature(t) {
		enc.Temperature = &t
	}
	if hr, err := strconv.Atoi(strings.TrimSpace(f.HeartRate)); err == nil && hr >= 0 {
		enc.HeartRate = &hr
	}

	seen := make(map[string]bool, len(f.SelectedSymptoms))
	for _, tag := range f.SelectedSymptoms {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		enc.SelectedSymptoms = append(enc.SelectedSymptoms, tag)
	}

	return enc
}

// Form renders an Encounter back to raw form values.
func (e Encounter) Form() EncounterForm {
	f := EncounterForm{
		Sex:              e.Sex,
		Symptoms:         e.SymptomsText,
		SelectedSymptoms: append([]string(nil), e.SelectedSymptoms...),
		Duration:         string(e.Duration),
	}
	if e.Age != nil {
		f.Age = strconv.Itoa(*e.Age)
	}
	if e.Temperature != nil {
		f.Temperature = strconv.FormatFloat(*e.Temperature, 'f', -1, 64)
	}
	if e.HeartRate != nil {
		f.HeartRate = strconv.Itoa(*e.HeartRate)
	}
	return f
}

// IntPtr and FloatPtr build optional fields in literals.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }

// Bounds of a temperature reading accepted by ParseForm, in °C.
const (
	MinTemperature = 25.0
	MaxTemperature = 45.0
)

func plausibleTemperature(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= MinTemperature && t <= MaxTemperature
}
