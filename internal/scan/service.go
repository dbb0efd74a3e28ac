package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mehelper/internal/agent"
	"mehelper/internal/location"
	"mehelper/internal/metrics"
	"mehelper/internal/triage"
)

// MaxImageBytes bounds an uploaded photo.
const MaxImageBytes = 10 << 20

var allowedImageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "webp": true,
}

// AnalysisClient defines the remote assessment backend.
// We define it here to decouple from the specific provider.
type AnalysisClient interface {
	Analyze(ctx context.Context, req agent.AnalysisRequest) (*agent.Analysis, error)
}

// ImageAnalyzer defines the vision model used for photo uploads.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, data []byte, prompt string) (*agent.ImageAnalysis, error)
}

// TTSClient defines the interface for Text-to-Speech
type TTSClient interface {
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

// ReportRenderer turns a scan into a PDF document and delivers it to the
// emergency contact.
type ReportRenderer interface {
	Render(s *Scan) ([]byte, error)
	Deliver(ctx context.Context, s *Scan) error
}

// LocationSharer builds location shares and notifies the emergency contact.
type LocationSharer interface {
	Share(ctx context.Context, lat, lng float64, accuracy *float64) (*location.Share, error)
}

type Service interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error)
	AnalyzeImage(ctx context.Context, img ImageUpload) (*agent.ImageAnalysis, error)
	History(ctx context.Context, patientID uuid.UUID) ([]*Scan, error)
	GetScan(ctx context.Context, id uuid.UUID) (*Scan, error)
	DeleteScan(ctx context.Context, id uuid.UUID) error
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
	ReadbackText(ctx context.Context, id uuid.UUID, level triage.Level) (string, error)
	ReadbackLevel(ctx context.Context, id uuid.UUID, level triage.Level) ([]byte, error)
	Report(ctx context.Context, id uuid.UUID) ([]byte, error)
	SendReport(ctx context.Context, id uuid.UUID) error
	ShareLocation(ctx context.Context, lat, lng float64, accuracy *float64) (*location.Share, error)
}

// AnalyzeRequest is one submission of the intake form.
type AnalyzeRequest struct {
	PatientID string `json:"patient_id"`
	triage.EncounterForm
	ImageAnalysis string `json:"image_analysis"`

	// SkipHistory evaluates without recording the scan.
	SkipHistory bool `json:"-"`
}

// Result is the outcome of Analyze.
type Result struct {
	Scan *Scan `json:"scan"`
	// Duplicate is set when the scan repeats a recent one and was not stored.
	Duplicate    bool   `json:"duplicate"`
	BackendError string `json:"backend_error,omitempty"`
}

// ImageUpload is a photo submitted for analysis.
type ImageUpload struct {
	Filename string
	Data     []byte
	Prompt   string
}

// Dependencies wires a Service. Nil clients disable the features they back.
type Dependencies struct {
	Repo   Repository
	Tables triage.Tables
	// Classifier produces the local guidance level; defaults to the threshold rules.
	Classifier triage.Classifier
	// Fallback records a level when the backend gives none; defaults to the score rules.
	Fallback triage.Classifier

	Analysis AnalysisClient
	Vision   ImageAnalyzer
	TTS      TTSClient
	Reports  ReportRenderer
	Location LocationSharer
	Logger   *logrus.Logger
	Now      func() time.Time
}

type service struct {
	repo       Repository
	classifier triage.Classifier
	fallback   triage.Classifier
	generator  *triage.Generator
	analysis   AnalysisClient
	vision     ImageAnalyzer
	tts        TTSClient
	reports    ReportRenderer
	sharer     LocationSharer
	logger     *logrus.Logger
	now        func() time.Time

	// historyMu serialises the check-then-save in record. Writers in other
	// processes sharing the store are not coordinated.
	historyMu sync.Mutex
}

func NewService(d Dependencies) Service {
	if d.Tables.Levels == nil {
		d.Tables = triage.DefaultTables()
	}
	if d.Classifier == nil {
		d.Classifier = triage.NewThresholdClassifier(d.Tables)
	}
	if d.Fallback == nil {
		d.Fallback = triage.NewScoreClassifier(d.Tables)
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{
		repo:       d.Repo,
		classifier: d.Classifier,
		fallback:   d.Fallback,
		generator:  triage.NewGenerator(d.Tables),
		analysis:   d.Analysis,
		vision:     d.Vision,
		tts:        d.TTS,
		reports:    d.Reports,
		sharer:     d.Location,
		logger:     d.Logger,
		now:        d.Now,
	}
}

// Analyze runs the triage pipeline: the local rules always produce the
// guidance bundle, the backend (when reachable) supplies the recorded level,
// and the fallback rules stand in for it otherwise.
func (s *service) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	started := s.now()

	patientID, err := parsePatientID(req.PatientID)
	if err != nil {
		return nil, err
	}

	enc := triage.ParseForm(req.EncounterForm)
	local := s.classifier.Classify(enc)

	sc := &Scan{
		ID:             uuid.New(),
		PatientID:      patientID,
		Form:           enc.Form(),
		LocalRiskLevel: local,
		Guidance:       s.generator.Bundle(enc, local),
		ImageAnalysis:  strings.TrimSpace(req.ImageAnalysis),
		CreatedAt:      started.UTC(),
	}
	res := &Result{Scan: sc}

	var backendLevel string
	if s.analysis != nil {
		ai, err := s.analysis.Analyze(ctx, agent.AnalysisRequest{
			Age:           sc.Form.Age,
			Sex:           sc.Form.Sex,
			Symptoms:      sc.Form.Symptoms,
			Duration:      sc.Form.Duration,
			Temperature:   sc.Form.Temperature,
			HeartRate:     sc.Form.HeartRate,
			ImageAnalysis: sc.ImageAnalysis,
		})
		if err != nil {
			metrics.BackendFailures.WithLabelValues("analysis").Inc()
			s.logger.WithError(err).WithField("scan_id", sc.ID).Warn("analysis backend failed, using local rules")
			res.BackendError = err.Error()
		} else {
			sc.AIResponse = ai
			backendLevel = ai.RiskLevel
		}
	}

	sc.RiskLevel, sc.RiskSource = triage.ResolveRiskLevel(backendLevel, enc, s.fallback)
	metrics.ObserveAnalysis(string(sc.RiskLevel), string(sc.RiskSource), started)

	s.logger.WithFields(logrus.Fields{
		"scan_id":    sc.ID,
		"risk_level": sc.RiskLevel,
		"source":     sc.RiskSource,
		"local":      local,
	}).Info("triage analysis complete")

	if req.SkipHistory {
		return res, nil
	}
	if err := s.record(ctx, sc); err != nil {
		if errors.Is(err, errDuplicate) {
			res.Duplicate = true
			return res, nil
		}
		return nil, err
	}
	return res, nil
}

var errDuplicate = errors.New("duplicate scan")

// record stores sc at the head of the patient's history unless it repeats a
// recent scan, then trims the history to MaxHistory.
func (s *service) record(ctx context.Context, sc *Scan) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	recent, err := s.repo.ListByPatient(ctx, sc.PatientID, MaxHistory)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	for _, prev := range recent {
		if sc.IsDuplicateOf(prev) {
			metrics.DuplicateScans.Inc()
			s.logger.WithFields(logrus.Fields{"scan_id": sc.ID, "duplicate_of": prev.ID}).Info("duplicate scan not recorded")
			return errDuplicate
		}
	}

	if err := s.repo.Save(ctx, sc); err != nil {
		return fmt.Errorf("saving scan: %w", err)
	}
	if err := s.repo.Prune(ctx, sc.PatientID, MaxHistory); err != nil {
		s.logger.WithError(err).WithField("patient_id", sc.PatientID).Warn("pruning history failed")
	}
	return nil
}

func (s *service) AnalyzeImage(ctx context.Context, img ImageUpload) (*agent.ImageAnalysis, error) {
	if s.vision == nil {
		return nil, fmt.Errorf("image analysis: %w", ErrUnavailable)
	}
	if err := validateImage(img); err != nil {
		return nil, err
	}

	a, err := s.vision.AnalyzeImage(ctx, img.Data, img.Prompt)
	if err != nil {
		metrics.BackendFailures.WithLabelValues("vision").Inc()
		return nil, fmt.Errorf("image analysis failed: %w", err)
	}
	return a, nil
}

func validateImage(img ImageUpload) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(img.Filename), "."))
	if !allowedImageExtensions[ext] {
		return fmt.Errorf("%w: unsupported file type %q", ErrInvalidImage, ext)
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	if len(img.Data) > MaxImageBytes {
		return fmt.Errorf("%w: file larger than %d bytes", ErrInvalidImage, MaxImageBytes)
	}
	return nil
}

func (s *service) History(ctx context.Context, patientID uuid.UUID) ([]*Scan, error) {
	return s.repo.ListByPatient(ctx, patientID, MaxHistory)
}

func (s *service) GetScan(ctx context.Context, id uuid.UUID) (*Scan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) DeleteScan(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *service) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if s.tts == nil {
		return nil, fmt.Errorf("speech: %w", ErrUnavailable)
	}
	audio, err := s.tts.Synthesize(ctx, text, "")
	if err != nil {
		metrics.BackendFailures.WithLabelValues("tts").Inc()
		return nil, err
	}
	return audio, nil
}

func (s *service) ReadbackText(ctx context.Context, id uuid.UUID, level triage.Level) (string, error) {
	sc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if level == triage.LevelImageAnalysis {
		if sc.ImageAnalysis == "" {
			return "", ErrNothingToRead
		}
		return triage.Readback(level.Title(), sc.ImageAnalysis), nil
	}

	text, ok := triage.ReadbackText(sc.Guidance, level)
	if !ok {
		return "", ErrNothingToRead
	}
	return text, nil
}

func (s *service) ReadbackLevel(ctx context.Context, id uuid.UUID, level triage.Level) ([]byte, error) {
	text, err := s.ReadbackText(ctx, id, level)
	if err != nil {
		return nil, err
	}
	return s.SynthesizeSpeech(ctx, text)
}

func (s *service) Report(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("reports: %w", ErrUnavailable)
	}
	sc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reports.Render(sc)
}

func (s *service) SendReport(ctx context.Context, id uuid.UUID) error {
	if s.reports == nil {
		return fmt.Errorf("reports: %w", ErrUnavailable)
	}
	sc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.reports.Deliver(ctx, sc)
}

func (s *service) ShareLocation(ctx context.Context, lat, lng float64, accuracy *float64) (*location.Share, error) {
	if s.sharer == nil {
		return location.NewShare(lat, lng, accuracy)
	}
	return s.sharer.Share(ctx, lat, lng, accuracy)
}

// parsePatientID accepts an empty id as a new anonymous patient.
func parsePatientID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidPatientID, raw)
	}
	return id, nil
}
