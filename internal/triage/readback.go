package triage

import (
	"fmt"
	"strings"
)

// Level numbers the sections of the result presentation.
type Level int

const (
	LevelReassurance Level = iota + 1
	LevelAssessment
	LevelPossibleCauses
	LevelFirstAid
	LevelDangerSigns
	LevelVitals
	LevelSummary
	LevelImageAnalysis
)

var levelTitles = map[Level]string{
	LevelReassurance:    "Reassurance",
	LevelAssessment:     "Risk Assessment",
	LevelPossibleCauses: "Possible Causes",
	LevelFirstAid:       "First Aid Measures",
	LevelDangerSigns:    "Danger Signs",
	LevelVitals:         "Vital Signs Analysis",
	LevelSummary:        "Summary",
	LevelImageAnalysis:  "Image Analysis",
}

// Title returns the section heading, or "" for an unknown level.
func (l Level) Title() string {
	return levelTitles[l]
}

// Readback joins a title and its items into the text read aloud:
// "Title. 1. first. 2. second." Whitespace runs collapse to single spaces.
func Readback(title string, items ...string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title + ". ")
	}
	if len(items) == 1 {
		b.WriteString(sentence(items[0]) + ". ")
	} else {
		for i, it := range items {
			fmt.Fprintf(&b, "%d. %s. ", i+1, sentence(it))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func sentence(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ". ")
}

// ReadbackText returns the text for one level of b, and false when the level
// has nothing to read. Image analysis lives outside the bundle and is never
// produced here.
func ReadbackText(b GuidanceBundle, level Level) (string, bool) {
	var items []string

	switch level {
	case LevelReassurance:
		items = []string{b.Reassurance}
	case LevelAssessment:
		items = []string{fmt.Sprintf("%s risk level, %s condition", capitalize(string(b.RiskLevel)), b.Assessment)}
	case LevelPossibleCauses:
		items = b.PossibleCauses
	case LevelFirstAid:
		items = append(append([]string(nil), b.FirstAid...), b.ImmediateSteps...)
	case LevelDangerSigns:
		items = b.DangerSigns
	case LevelVitals:
		for _, f := range b.VitalsAnalysis {
			items = append(items, f.Text)
		}
	case LevelSummary:
		var lines []string
		for _, line := range strings.Split(b.Summary, "\n") {
			if line = sentence(line); line != "" {
				lines = append(lines, line)
			}
		}
		items = []string{strings.Join(lines, ". "), b.NextAction}
	default:
		return "", false
	}

	var nonEmpty []string
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			nonEmpty = append(nonEmpty, it)
		}
	}
	if len(nonEmpty) == 0 {
		return "", false
	}
	return Readback(level.Title(), nonEmpty...), true
}
