package triage

import (
	"fmt"
	"strconv"
)

// VitalFinding is one annotated vital-sign observation.
type VitalFinding struct {
	Vital  string `json:"vital"`
	Status string `json:"status"`
	Text   string `json:"text"`
}

const (
	VitalTemperature = "temperature"
	VitalHeartRate   = "heart_rate"
)

// Finding statuses.
const (
	StatusLow           = "low"
	StatusNormal        = "normal"
	StatusMildFever     = "mild_fever"
	StatusModerateFever = "moderate_fever"
	StatusHighFever     = "high_fever"
	StatusBelowRange    = "below_range"
	StatusAboveRange    = "above_range"
)

// HeartRateRange is the inclusive normal resting range for an age band.
type HeartRateRange struct {
	Min, Max int
}

// NormalHeartRate returns the normal range for age in whole years.
func NormalHeartRate(age int) HeartRateRange {
	switch {
	case age < 1:
		return HeartRateRange{100, 160}
	case age < 3:
		return HeartRateRange{80, 130}
	case age < 6:
		return HeartRateRange{75, 120}
	case age < 12:
		return HeartRateRange{70, 110}
	default:
		return HeartRateRange{60, 100}
	}
}

// AnalyzeVitals annotates temperature and heart rate. Absent inputs yield no
// finding, so an encounter without vitals returns an empty slice.
func AnalyzeVitals(enc Encounter) []VitalFinding {
	findings := []VitalFinding{}

	if enc.Temperature != nil {
		findings = append(findings, temperatureFinding(*enc.Temperature))
	}
	if enc.HeartRate != nil {
		findings = append(findings, heartRateFinding(*enc.HeartRate, enc.EffectiveAge()))
	}

	return findings
}

func temperatureFinding(temp float64) VitalFinding {
	label := "Temperature " + strconv.FormatFloat(temp, 'f', -1, 64) + "°C → "
	f := VitalFinding{Vital: VitalTemperature}

	switch {
	case temp < 36.0:
		f.Status, f.Text = StatusLow, label+"Low (hypothermia possible)"
	case temp < 37.5:
		f.Status, f.Text = StatusNormal, label+"Normal range"
	case temp < 38.5:
		f.Status, f.Text = StatusMildFever, label+"Mild fever"
	case temp < 39.5:
		f.Status, f.Text = StatusModerateFever, label+"Moderate fever"
	default:
		f.Status, f.Text = StatusHighFever, label+"High fever (seek medical attention)"
	}
	return f
}

func heartRateFinding(hr, age int) VitalFinding {
	r := NormalHeartRate(age)
	f := VitalFinding{Vital: VitalHeartRate}

	switch {
	case hr < r.Min:
		f.Status = StatusBelowRange
		f.Text = fmt.Sprintf("Heart rate %d BPM → Lower than normal for age %d (normal: %d-%d)", hr, age, r.Min, r.Max)
	case hr > r.Max:
		f.Status = StatusAboveRange
		f.Text = fmt.Sprintf("Heart rate %d BPM → Higher than normal for age %d (normal: %d-%d)", hr, age, r.Min, r.Max)
	default:
		f.Status = StatusNormal
		f.Text = fmt.Sprintf("Heart rate %d BPM → Normal range for age %d", hr, age)
	}
	return f
}
