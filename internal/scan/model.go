package scan

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"mehelper/internal/agent"
	"mehelper/internal/triage"
)

// MaxHistory is how many scans are kept per patient.
const MaxHistory = 10

// duplicateWindow treats scans created this close together as one submission.
const duplicateWindow = time.Second

var (
	ErrNotFound         = errors.New("scan not found")
	ErrInvalidImage     = errors.New("invalid image upload")
	ErrUnavailable      = errors.New("service not configured")
	ErrNothingToRead    = errors.New("nothing to read for this level")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidPatientID = errors.New("invalid patient id")
)

// Scan represents one triage run and is the aggregate root of the history.
type Scan struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`

	// Input exactly as submitted
	Form triage.EncounterForm `json:"form" db:"form"`

	// Recorded level and where it came from
	RiskLevel  triage.RiskLevel `json:"risk_level" db:"risk_level"`
	RiskSource triage.Source    `json:"risk_source" db:"risk_source"`

	// Locally computed guidance
	LocalRiskLevel triage.RiskLevel      `json:"local_risk_level" db:"local_risk_level"`
	Guidance       triage.GuidanceBundle `json:"guidance" db:"guidance"`

	AIResponse    *agent.Analysis `json:"ai_response,omitempty" db:"ai_response"`
	ImageAnalysis string          `json:"image_analysis,omitempty" db:"image_analysis"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Encounter re-parses the stored form.
func (s *Scan) Encounter() triage.Encounter {
	return triage.ParseForm(s.Form)
}

// IsDuplicateOf reports whether s repeats o: either both were created within
// a second of each other, or they carry the same vitals, demographics,
// symptoms and recorded risk level.
func (s *Scan) IsDuplicateOf(o *Scan) bool {
	d := s.CreatedAt.Sub(o.CreatedAt)
	if d < 0 {
		d = -d
	}
	if d < duplicateWindow {
		return true
	}

	return s.Form.Age == o.Form.Age &&
		s.Form.Sex == o.Form.Sex &&
		s.Form.Symptoms == o.Form.Symptoms &&
		s.RiskLevel == o.RiskLevel &&
		s.Form.Temperature == o.Form.Temperature &&
		s.Form.HeartRate == o.Form.HeartRate
}
