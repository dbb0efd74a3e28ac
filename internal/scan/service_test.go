package scan

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mehelper/internal/agent"
	"mehelper/internal/location"
	"mehelper/internal/triage"
)

type memRepo struct {
	mu    sync.Mutex
	scans map[uuid.UUID]*Scan
}

func newMemRepo() *memRepo {
	return &memRepo{scans: map[uuid.UUID]*Scan{}}
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Scan{}
	for _, s := range m.scans {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Save(_ context.Context, s *Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[s.ID] = s
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scans[id]; !ok {
		return ErrNotFound
	}
	delete(m.scans, id)
	return nil
}

func (m *memRepo) Prune(ctx context.Context, patientID uuid.UUID, keep int) error {
	all, _ := m.ListByPatient(ctx, patientID, len(m.scans))
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range all {
		if i >= keep {
			delete(m.scans, s.ID)
		}
	}
	return nil
}

type fakeAnalysis struct {
	level string
	err   error
	got   agent.AnalysisRequest
}

func (f *fakeAnalysis) Analyze(_ context.Context, req agent.AnalysisRequest) (*agent.Analysis, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Analysis{RiskLevel: f.level, RiskAssessment: "checked"}, nil
}

type fakeTTS struct {
	text string
}

func (f *fakeTTS) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	f.text = text
	return []byte("mp3"), nil
}

type fakeRenderer struct {
	delivered *[]uuid.UUID
}

func (fakeRenderer) Render(s *Scan) ([]byte, error) {
	return []byte("%PDF-" + s.ID.String()), nil
}

func (f fakeRenderer) Deliver(_ context.Context, s *Scan) error {
	if f.delivered != nil {
		*f.delivered = append(*f.delivered, s.ID)
	}
	return nil
}

// clock advances two seconds per call so consecutive scans never fall in
// the duplicate window.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	c.now = c.now.Add(2 * time.Second)
	return c.now
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(repo Repository, d Dependencies) Service {
	d.Repo = repo
	d.Logger = quietLogger()
	if d.Now == nil {
		d.Now = (&clock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}).Now
	}
	return NewService(d)
}

func form(symptoms, age string) triage.EncounterForm {
	return triage.EncounterForm{Age: age, Sex: "female", Symptoms: symptoms, Duration: "<3days"}
}

func TestAnalyze_ConcurrentSubmissionsStoreOnce(t *testing.T) {
	repo := newMemRepo()
	fixed := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, Dependencies{Now: func() time.Time { return fixed }})
	patient := uuid.New()

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Analyze(context.Background(), AnalyzeRequest{
				PatientID:     patient.String(),
				EncounterForm: form("sore throat", "30"),
			})
		}(i)
	}
	wg.Wait()

	stored := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			stored++
		}
	}
	assert.Equal(t, 1, stored)

	history, err := svc.History(context.Background(), patient)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAnalyze_NoBackendUsesFallback(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("fainted this morning", "30")})
	require.NoError(t, err)

	sc := res.Scan
	assert.Equal(t, triage.RiskLow, sc.LocalRiskLevel)
	assert.Equal(t, triage.RiskLow, sc.Guidance.RiskLevel)
	assert.Equal(t, triage.RiskEmergency, sc.RiskLevel)
	assert.Equal(t, triage.SourceFallback, sc.RiskSource)
	assert.Nil(t, sc.AIResponse)
	assert.NotEqual(t, uuid.Nil, sc.PatientID)
	assert.False(t, res.Duplicate)

	stored, err := repo.GetByID(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, sc, stored)
}

func TestAnalyze_BackendLevel(t *testing.T) {
	ai := &fakeAnalysis{level: " HIGH "}
	svc := newTestService(newMemRepo(), Dependencies{Analysis: ai})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		EncounterForm: triage.EncounterForm{Age: "40", Sex: "male", Symptoms: "cough", Duration: "3-7days", Temperature: "38.2"},
		ImageAnalysis: "  small rash  ",
	})
	require.NoError(t, err)

	assert.Equal(t, triage.RiskHigh, res.Scan.RiskLevel)
	assert.Equal(t, triage.SourceBackend, res.Scan.RiskSource)
	assert.Equal(t, triage.RiskModerate, res.Scan.LocalRiskLevel)
	require.NotNil(t, res.Scan.AIResponse)
	assert.Equal(t, "checked", res.Scan.AIResponse.RiskAssessment)
	assert.Empty(t, res.BackendError)

	assert.Equal(t, "40", ai.got.Age)
	assert.Equal(t, "38.2", ai.got.Temperature)
	assert.Equal(t, "small rash", ai.got.ImageAnalysis)
}

func TestAnalyze_BackendFailureDegrades(t *testing.T) {
	ai := &fakeAnalysis{err: errors.New("connection refused")}
	svc := newTestService(newMemRepo(), Dependencies{Analysis: ai})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("runny nose", "30")})
	require.NoError(t, err)

	assert.Equal(t, triage.RiskLow, res.Scan.RiskLevel)
	assert.Equal(t, triage.SourceFallback, res.Scan.RiskSource)
	assert.Contains(t, res.BackendError, "connection refused")
}

func TestAnalyze_UnrecognisedBackendLevel(t *testing.T) {
	svc := newTestService(newMemRepo(), Dependencies{Analysis: &fakeAnalysis{level: "unclear"}})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("runny nose", "30")})
	require.NoError(t, err)
	assert.Equal(t, triage.SourceFallback, res.Scan.RiskSource)
	assert.NotNil(t, res.Scan.AIResponse)
}

func TestAnalyze_InvalidPatientID(t *testing.T) {
	svc := newTestService(newMemRepo(), Dependencies{})
	_, err := svc.Analyze(context.Background(), AnalyzeRequest{PatientID: "nope", EncounterForm: form("cough", "30")})
	assert.ErrorIs(t, err, ErrInvalidPatientID)
}

func TestAnalyze_DuplicateNotRecorded(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})
	pid := uuid.New()
	req := AnalyzeRequest{PatientID: pid.String(), EncounterForm: form("cough", "30")}

	first, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)

	history, err := svc.History(context.Background(), pid)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.Scan.ID, history[0].ID)
}

func TestAnalyze_RapidResubmissionIsDuplicate(t *testing.T) {
	repo := newMemRepo()
	fixed := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, Dependencies{Now: func() time.Time { return fixed }})
	pid := uuid.New().String()

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{PatientID: pid, EncounterForm: form("cough", "30")})
	require.NoError(t, err)
	res, err := svc.Analyze(context.Background(), AnalyzeRequest{PatientID: pid, EncounterForm: form("headache", "31")})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestAnalyze_HistoryBounded(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})
	pid := uuid.New()

	var last uuid.UUID
	for i := 0; i < MaxHistory+3; i++ {
		res, err := svc.Analyze(context.Background(), AnalyzeRequest{
			PatientID:     pid.String(),
			EncounterForm: form("cough", strconv.Itoa(20+i)),
		})
		require.NoError(t, err)
		require.False(t, res.Duplicate)
		last = res.Scan.ID
	}

	history, err := svc.History(context.Background(), pid)
	require.NoError(t, err)
	assert.Len(t, history, MaxHistory)
	assert.Equal(t, last, history[0].ID)
}

func TestAnalyze_SkipHistory(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("cough", "30"), SkipHistory: true})
	require.NoError(t, err)
	_, err = repo.GetByID(context.Background(), res.Scan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyze_CustomClassifier(t *testing.T) {
	svc := newTestService(newMemRepo(), Dependencies{
		Classifier: triage.NewScoreClassifier(triage.DefaultTables()),
	})
	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("fainted", "30"), SkipHistory: true})
	require.NoError(t, err)
	assert.Equal(t, triage.RiskEmergency, res.Scan.LocalRiskLevel)
	assert.Equal(t, "critical", res.Scan.Guidance.Assessment)
}

func TestAnalyzeImage_Validation(t *testing.T) {
	svc := newTestService(newMemRepo(), Dependencies{})
	_, err := svc.AnalyzeImage(context.Background(), ImageUpload{Filename: "a.png", Data: []byte{1}})
	assert.ErrorIs(t, err, ErrUnavailable)

	cases := []ImageUpload{
		{Filename: "notes.txt", Data: []byte("x")},
		{Filename: "photo.png"},
		{Filename: "big.JPG", Data: make([]byte, MaxImageBytes+1)},
	}
	for _, c := range cases {
		assert.ErrorIs(t, validateImage(c), ErrInvalidImage, c.Filename)
	}
	assert.NoError(t, validateImage(ImageUpload{Filename: "rash.WebP", Data: []byte{1}}))
}

func TestReadback(t *testing.T) {
	repo := newMemRepo()
	tts := &fakeTTS{}
	svc := newTestService(repo, Dependencies{TTS: tts})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("cough", "30")})
	require.NoError(t, err)
	id := res.Scan.ID

	text, err := svc.ReadbackText(context.Background(), id, triage.LevelReassurance)
	require.NoError(t, err)
	assert.Contains(t, text, "Reassurance.")

	_, err = svc.ReadbackText(context.Background(), id, triage.LevelImageAnalysis)
	assert.ErrorIs(t, err, ErrNothingToRead)

	audio, err := svc.ReadbackLevel(context.Background(), id, triage.LevelPossibleCauses)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
	assert.True(t, strings.HasPrefix(tts.text, "Possible Causes. "))

	_, err = svc.ReadbackText(context.Background(), uuid.New(), triage.LevelSummary)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadback_ImageAnalysis(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("cough", "30"), ImageAnalysis: "Mild redness."})
	require.NoError(t, err)

	text, err := svc.ReadbackText(context.Background(), res.Scan.ID, triage.LevelImageAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "Image Analysis. Mild redness.", text)

	_, err = svc.ReadbackLevel(context.Background(), res.Scan.ID, triage.LevelImageAnalysis)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReport(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})
	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("cough", "30")})
	require.NoError(t, err)

	_, err = svc.Report(context.Background(), res.Scan.ID)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, svc.SendReport(context.Background(), res.Scan.ID), ErrUnavailable)

	var delivered []uuid.UUID
	svc = newTestService(repo, Dependencies{Reports: fakeRenderer{delivered: &delivered}})
	pdf, err := svc.Report(context.Background(), res.Scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-"+res.Scan.ID.String(), string(pdf))

	require.NoError(t, svc.SendReport(context.Background(), res.Scan.ID))
	assert.Equal(t, []uuid.UUID{res.Scan.ID}, delivered)
	assert.ErrorIs(t, svc.SendReport(context.Background(), uuid.New()), ErrNotFound)
}

func TestDeleteScan(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, Dependencies{})
	res, err := svc.Analyze(context.Background(), AnalyzeRequest{EncounterForm: form("cough", "30")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteScan(context.Background(), res.Scan.ID))
	assert.ErrorIs(t, svc.DeleteScan(context.Background(), res.Scan.ID), ErrNotFound)
}

func TestShareLocation_WithoutNotifier(t *testing.T) {
	svc := newTestService(newMemRepo(), Dependencies{})

	share, err := svc.ShareLocation(context.Background(), 10, 20, nil)
	require.NoError(t, err)
	assert.False(t, share.SentToContact)
	assert.Equal(t, "https://www.google.com/maps?q=10,20", share.GoogleMapsURL)

	_, err = svc.ShareLocation(context.Background(), 100, 20, nil)
	assert.ErrorIs(t, err, location.ErrInvalidCoordinates)
}
