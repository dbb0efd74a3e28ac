package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeVitals_TemperatureBands(t *testing.T) {
	tests := []struct {
		temp   float64
		status string
		text   string
	}{
		{35.9, StatusLow, "Temperature 35.9°C → Low (hypothermia possible)"},
		{36.0, StatusNormal, "Temperature 36°C → Normal range"},
		{37.4, StatusNormal, "Temperature 37.4°C → Normal range"},
		{37.5, StatusMildFever, "Temperature 37.5°C → Mild fever"},
		{38.4, StatusMildFever, "Temperature 38.4°C → Mild fever"},
		{38.5, StatusModerateFever, "Temperature 38.5°C → Moderate fever"},
		{39.4, StatusModerateFever, "Temperature 39.4°C → Moderate fever"},
		{39.5, StatusHighFever, "Temperature 39.5°C → High fever (seek medical attention)"},
		{41, StatusHighFever, "Temperature 41°C → High fever (seek medical attention)"},
	}

	for _, tt := range tests {
		got := AnalyzeVitals(Encounter{Temperature: FloatPtr(tt.temp)})
		require.Len(t, got, 1)
		assert.Equal(t, VitalTemperature, got[0].Vital)
		assert.Equal(t, tt.status, got[0].Status, tt.temp)
		assert.Equal(t, tt.text, got[0].Text)
	}
}

func TestAnalyzeVitals_HeartRateByAge(t *testing.T) {
	got := AnalyzeVitals(Encounter{Age: IntPtr(10), HeartRate: IntPtr(65)})
	require.Len(t, got, 1)
	assert.Equal(t, StatusBelowRange, got[0].Status)
	assert.Equal(t, "Heart rate 65 BPM → Lower than normal for age 10 (normal: 70-110)", got[0].Text)

	got = AnalyzeVitals(Encounter{Age: IntPtr(0), HeartRate: IntPtr(170)})
	assert.Equal(t, StatusAboveRange, got[0].Status)
	assert.Equal(t, "Heart rate 170 BPM → Higher than normal for age 0 (normal: 100-160)", got[0].Text)

	got = AnalyzeVitals(Encounter{HeartRate: IntPtr(60)})
	assert.Equal(t, StatusNormal, got[0].Status)
	assert.Equal(t, "Heart rate 60 BPM → Normal range for age 30", got[0].Text)
}

func TestNormalHeartRate(t *testing.T) {
	tests := []struct {
		age  int
		want HeartRateRange
	}{
		{0, HeartRateRange{100, 160}},
		{1, HeartRateRange{80, 130}},
		{2, HeartRateRange{80, 130}},
		{3, HeartRateRange{75, 120}},
		{5, HeartRateRange{75, 120}},
		{6, HeartRateRange{70, 110}},
		{11, HeartRateRange{70, 110}},
		{12, HeartRateRange{60, 100}},
		{17, HeartRateRange{60, 100}},
		{18, HeartRateRange{60, 100}},
		{90, HeartRateRange{60, 100}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalHeartRate(tt.age), tt.age)
	}
}

func TestAnalyzeVitals_Order(t *testing.T) {
	got := AnalyzeVitals(Encounter{Temperature: FloatPtr(36.6), HeartRate: IntPtr(72)})
	require.Len(t, got, 2)
	assert.Equal(t, VitalTemperature, got[0].Vital)
	assert.Equal(t, VitalHeartRate, got[1].Vital)
}

func TestAnalyzeVitals_NoInputs(t *testing.T) {
	got := AnalyzeVitals(Encounter{Age: IntPtr(3)})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
