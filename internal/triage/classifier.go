package triage

// Classifier maps an encounter to a risk level. Implementations are total and
// deterministic.
type Classifier interface {
	Classify(enc Encounter) RiskLevel
}

// ThresholdClassifier applies the keyword-first threshold rules: an emergency
// keyword wins outright, then independent high and moderate branches are
// checked in order.
type ThresholdClassifier struct {
	tables Tables
}

func NewThresholdClassifier(t Tables) *ThresholdClassifier {
	return &ThresholdClassifier{tables: t}
}

func (c *ThresholdClassifier) Classify(enc Encounter) RiskLevel {
	if anyOf(c.tables.EmergencyKeywords, enc.Mentions) {
		return RiskEmergency
	}

	temp := enc.temperature()
	hr := enc.heartRate()
	age := enc.EffectiveAge()

	if temp >= 39.5 || hr > 120 || anyOf(c.tables.HighRiskTerms, enc.Mentions) || (age < 5 && temp >= 38.5) {
		return RiskHigh
	}
	if temp >= 38.0 || anyOf(c.tables.ModerateRiskTerms, enc.Mentions) ||
		len(enc.SelectedSymptoms) >= 3 || enc.Duration == DurationThreeToSeven {
		return RiskModerate
	}
	return RiskLow
}

// ScoreClassifier sums weighted risk factors. Only its own keyword list can
// produce an emergency.
type ScoreClassifier struct {
	tables Tables
}

func NewScoreClassifier(t Tables) *ScoreClassifier {
	return &ScoreClassifier{tables: t}
}

func (c *ScoreClassifier) Classify(enc Encounter) RiskLevel {
	if anyOf(c.tables.ScoreEmergencyKeywords, enc.Mentions) {
		return RiskEmergency
	}

	switch score := c.Score(enc); {
	case score >= 5:
		return RiskHigh
	case score >= 3:
		return RiskModerate
	default:
		return RiskLow
	}
}

// Score returns the weighted sum without applying the keyword short-circuit.
func (c *ScoreClassifier) Score(enc Encounter) float64 {
	var score float64

	if age := enc.EffectiveAge(); age < 5 || age >= 65 {
		score += 2
	}

	switch temp := enc.temperature(); {
	case temp >= 39:
		score += 2
	case temp >= 38:
		score++
	}

	switch hr := enc.heartRate(); {
	case hr > 120:
		score += 2
	case hr > 100:
		score++
	}

	switch enc.Duration {
	case DurationMore:
		score += 2
	case DurationOneToTwoWks:
		score++
	case DurationThreeToSeven:
		score += 0.5
	}

	seen := make(map[string]bool, len(enc.SelectedSymptoms))
	for _, tag := range enc.SelectedSymptoms {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		score += c.tables.TagWeights[tag]
	}

	return score
}

// Source names which path produced a recorded risk level.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceFallback Source = "fallback"
)

// ResolveRiskLevel prefers the level reported by the analysis backend and
// falls back to the given classifier when it is missing or unrecognised.
func ResolveRiskLevel(backend string, enc Encounter, fallback Classifier) (RiskLevel, Source) {
	if level, ok := ParseRiskLevel(backend); ok {
		return level, SourceBackend
	}
	return fallback.Classify(enc), SourceFallback
}
