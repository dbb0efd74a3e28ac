package triage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Trigger selects the encounters a rule applies to. Every Terms entry must be
// reported (free text or tag), at least one AnyTerms entry must be reported,
// at least one Context word must appear in the free text, and every Tags
// entry must be selected. Empty fields impose no condition.
type Trigger struct {
	Terms    []string `yaml:"terms,omitempty"`
	AnyTerms []string `yaml:"any_terms,omitempty"`
	Context  []string `yaml:"context,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// Matches reports whether the trigger applies to enc.
func (t Trigger) Matches(enc Encounter) bool {
	for _, term := range t.Terms {
		if !enc.Reports(term) {
			return false
		}
	}
	if len(t.AnyTerms) > 0 && !anyOf(t.AnyTerms, enc.Reports) {
		return false
	}
	if len(t.Context) > 0 && !anyOf(t.Context, enc.Mentions) {
		return false
	}
	for _, tag := range t.Tags {
		if !enc.HasTag(tag) {
			return false
		}
	}
	return true
}

func anyOf(words []string, pred func(string) bool) bool {
	for _, w := range words {
		if pred(w) {
			return true
		}
	}
	return false
}

// Rule emits Items when its trigger matches.
type Rule struct {
	Trigger `yaml:",inline"`
	Items   []string `yaml:"items"`
}

// LevelGuidance is the fixed advice attached to a risk level.
type LevelGuidance struct {
	Reassurance    string   `yaml:"reassurance"`
	NextAction     string   `yaml:"next_action"`
	ImmediateSteps []string `yaml:"immediate_steps"`
	RedFlags       []string `yaml:"red_flags"`
}

// Tables holds every keyword list and text block the classifiers and the
// guidance generator read. Replace it to retune or localise without code changes.
type Tables struct {
	// EmergencyKeywords short-circuit the threshold rules.
	EmergencyKeywords []string `yaml:"emergency_keywords"`
	// ScoreEmergencyKeywords short-circuit the weighted score.
	ScoreEmergencyKeywords []string `yaml:"score_emergency_keywords"`
	HighRiskTerms          []string `yaml:"high_risk_terms"`
	ModerateRiskTerms      []string `yaml:"moderate_risk_terms"`
	// TagWeights are added to the score once per selected tag.
	TagWeights map[string]float64 `yaml:"tag_weights"`

	CauseRules     []Rule   `yaml:"cause_rules"`
	FallbackCauses []string `yaml:"fallback_causes"`

	UniversalFirstAid []string `yaml:"universal_first_aid"`
	FirstAidRules     []Rule   `yaml:"first_aid_rules"`

	UniversalDangerSigns []string `yaml:"universal_danger_signs"`
	PediatricDangerSigns []string `yaml:"pediatric_danger_signs"`
	DangerSignRules      []Rule   `yaml:"danger_sign_rules"`

	Levels map[RiskLevel]LevelGuidance `yaml:"levels"`
}

// LoadTables reads a YAML file over DefaultTables. Keys present in the file
// replace the defaults; absent keys keep them.
func LoadTables(path string) (Tables, error) {
	t := DefaultTables()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading triage tables: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing triage tables %s: %w", path, err)
	}
	for level := range t.Levels {
		if !level.Valid() {
			return t, fmt.Errorf("parsing triage tables %s: unknown risk level %q", path, level)
		}
	}
	return t, nil
}

// DefaultTables returns a fresh copy of the built-in English tables.
func DefaultTables() Tables {
	return Tables{
		EmergencyKeywords: []string{
			"chest pain", "heart attack", "difficulty breathing", "can't breathe",
			"severe bleeding", "unconscious", "stroke", "seizure",
		},
		ScoreEmergencyKeywords: []string{
			"chest pain", "severe bleeding", "bleeding", "blood", "fainting", "fainted", "unconscious",
			"shortness of breath", "can't breathe", "difficulty breathing", "stroke", "heart attack",
			"seizure", "convulsion", "anaphylaxis", "allergic reaction", "poisoning", "overdose",
			"suicide", "drowning", "choking", "head injury", "neck injury", "spine injury", "paralysis",
		},
		HighRiskTerms:     []string{"severe", "intense"},
		ModerateRiskTerms: []string{"moderate"},
		TagWeights: map[string]float64{
			"chest-pain": 2,
			"breathing":  2,
			"fever":      1,
			"diarrhea":   1,
			"pain":       1,
			"anxiety":    1,
			"depression": 1,
			"stress":     0.5,
			"other":      0.5,
		},

		CauseRules: []Rule{
			{Trigger: Trigger{Terms: []string{"fever", "cough"}},
				Items: []string{"Respiratory infection (cold, flu, bronchitis)"}},
			{Trigger: Trigger{Terms: []string{"fever", "rash"}},
				Items: []string{"Viral infection with rash (measles, chickenpox)", "Allergic reaction"}},
			{Trigger: Trigger{Terms: []string{"fever", "headache"}},
				Items: []string{"Viral illness or flu"}},
			{Trigger: Trigger{Terms: []string{"pain"}, Context: []string{"chest"}},
				Items: []string{"Muscle strain or chest wall pain", "Heart-related issues (seek medical evaluation)"}},
			{Trigger: Trigger{Terms: []string{"pain"}, Context: []string{"head"}},
				Items: []string{"Tension headache or migraine", "Sinus infection"}},
			{Trigger: Trigger{Terms: []string{"pain"}, Context: []string{"stomach", "abdominal"}},
				Items: []string{"Gastroenteritis or food poisoning", "Appendicitis (if severe, seek immediate care)"}},
			{Trigger: Trigger{Terms: []string{"nausea"}},
				Items: []string{"Gastroenteritis or stomach flu", "Food poisoning"}},
			{Trigger: Trigger{Terms: []string{"diarrhea"}},
				Items: []string{"Gastroenteritis or stomach flu", "Food poisoning"}},
			{Trigger: Trigger{Terms: []string{"anxiety"}},
				Items: []string{"Anxiety disorder or acute stress response", "Panic attacks or situational anxiety"}},
			{Trigger: Trigger{Terms: []string{"depression"}},
				Items: []string{"Major depressive episode", "Seasonal or situational depression"}},
			{Trigger: Trigger{Terms: []string{"stress"}},
				Items: []string{"Acute stress reaction", "Work or life-related stress"}},
			{Trigger: Trigger{Tags: []string{"other"}},
				Items: []string{"Unspecified symptoms requiring further evaluation", "Multiple symptom complex"}},
		},
		FallbackCauses: []string{
			"General viral illness",
			"Stress-related symptoms",
			"Dehydration or fatigue",
		},

		UniversalFirstAid: []string{
			"Rest and avoid strenuous activities",
			"Stay hydrated by drinking plenty of fluids",
			"Monitor symptoms for changes or worsening",
		},
		FirstAidRules: []Rule{
			{Trigger: Trigger{Terms: []string{"fever"}}, Items: []string{
				"Use cool compresses or take lukewarm baths",
				"Take fever-reducing medication if available (paracetamol/acetaminophen)",
			}},
			{Trigger: Trigger{Terms: []string{"pain"}}, Items: []string{
				"Apply cold or warm compresses to painful areas",
				"Take pain relievers if available (ibuprofen or acetaminophen)",
			}},
			{Trigger: Trigger{Terms: []string{"nausea"}}, Items: []string{
				"Eat small, bland meals (crackers, toast, rice)",
				"Avoid spicy, fatty, or dairy foods",
			}},
			{Trigger: Trigger{Terms: []string{"diarrhea"}}, Items: []string{
				"Drink oral rehydration solutions or clear fluids",
				"Follow the BRAT diet (bananas, rice, applesauce, toast)",
			}},
			{Trigger: Trigger{Terms: []string{"cough"}}, Items: []string{
				"Use honey in warm tea or water (avoid in children under 1)",
				"Use a humidifier or breathe steam from a hot shower",
			}},
			{Trigger: Trigger{Terms: []string{"anxiety"}}, Items: []string{
				"Practice deep breathing exercises (4-7-8 technique)",
				"Find a quiet, safe space to relax",
				"Consider talking to someone you trust",
			}},
			{Trigger: Trigger{Terms: []string{"depression"}}, Items: []string{
				"Maintain a regular sleep schedule",
				"Engage in gentle physical activity if possible",
				"Reach out to friends, family, or a mental health professional",
			}},
			{Trigger: Trigger{Terms: []string{"stress"}}, Items: []string{
				"Practice stress-reduction techniques (meditation, mindfulness)",
				"Take breaks from stressful activities",
				"Ensure adequate sleep and nutrition",
			}},
			{Trigger: Trigger{Tags: []string{"other"}}, Items: []string{
				"Document all symptoms in detail for healthcare providers",
				"Monitor symptoms for patterns or triggers",
				"Seek appropriate medical evaluation",
			}},
		},

		UniversalDangerSigns: []string{
			"Difficulty breathing or shortness of breath",
			"Loss of consciousness or unresponsiveness",
			"Severe bleeding that won't stop",
			"Chest pain or pressure that radiates to arm/jaw",
			"Sudden severe headache with confusion",
			"High fever (above 39.5°C or 103°F) in adults",
		},
		PediatricDangerSigns: []string{
			"High fever (above 38.5°C or 101.3°F) in children",
			"Refusing to eat or drink for extended periods",
		},
		DangerSignRules: []Rule{
			{Trigger: Trigger{Terms: []string{"rash"}}, Items: []string{
				"Purple or bruise-like rash that doesn't fade when pressed",
			}},
			{Trigger: Trigger{AnyTerms: []string{"depression", "anxiety"}}, Items: []string{
				"Thoughts of self-harm or suicide",
				"Complete inability to function or get out of bed",
				"Severe panic attacks lasting hours",
			}},
		},

		Levels: map[RiskLevel]LevelGuidance{
			RiskLow: {
				Reassurance: "These symptoms are usually mild and not worrisome. Rest, drink plenty of water, and if they persist or worsen, see a doctor.",
				NextAction:  "You can continue at home with rest and monitoring. Contact a doctor if symptoms persist beyond 7 days or worsen.",
				ImmediateSteps: []string{
					"Rest and stay hydrated",
					"Monitor your symptoms",
					"Take over-the-counter pain relievers if needed",
					"Use cold or warm compresses for comfort",
				},
				RedFlags: []string{
					"Symptoms worsen significantly",
					"New symptoms develop",
					"Fever above 38°C (100.4°F) develops",
					"Symptoms persist for more than 7 days",
				},
			},
			RiskModerate: {
				Reassurance: "While these symptoms may be concerning, they are often manageable at home initially. Monitor closely and seek care if they worsen.",
				NextAction:  "It is preferable to see a doctor within 24-48 hours if symptoms don't improve or if new symptoms develop.",
				ImmediateSteps: []string{
					"Rest in a comfortable position",
					"Stay hydrated with small, frequent sips of water",
					"Take appropriate medication if available",
					"Monitor temperature and other vital signs",
					"Avoid strenuous activity",
				},
				RedFlags: []string{
					"Difficulty breathing",
					"Chest pain or pressure",
					"Severe headache or confusion",
					"Inability to keep fluids down",
					"Fever above 39°C (102.2°F)",
				},
			},
			RiskHigh: {
				Reassurance: "These symptoms require medical attention. Please follow the guidance below carefully.",
				NextAction:  "Go to the hospital or see a doctor within 24 hours. Monitor for any danger signs.",
				ImmediateSteps: []string{
					"Have someone stay with you if possible",
					"Rest in the most comfortable position",
					"Stay hydrated if able to drink",
					"Take medication only as prescribed",
					"Prepare to seek medical attention",
				},
				RedFlags: []string{
					"Difficulty breathing or shortness of breath",
					"Severe pain anywhere in the body",
					"Confusion or altered mental state",
					"Severe vomiting or diarrhea",
					"Loss of consciousness, even briefly",
				},
			},
			RiskEmergency: {
				Reassurance: "These symptoms require medical attention. Please follow the guidance below carefully.",
				NextAction:  "Go immediately to the hospital emergency department or call emergency services. This may be urgent.",
				ImmediateSteps: []string{
					"Call emergency services immediately",
					"Do not eat or drink anything",
					"Lie down with feet elevated if feeling faint",
					"If breathing difficulty, sit upright",
					"If available, take prescribed emergency medication",
				},
				RedFlags: []string{
					"Loss of consciousness",
					"Not breathing or severe difficulty breathing",
					"Severe bleeding that cannot be stopped",
					"Chest pain radiating to arm or jaw",
					"Sudden severe headache with vomiting",
				},
			},
		},
	}
}
