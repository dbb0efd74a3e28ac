package scan

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc, quietLogger()))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Analyze(t *testing.T) {
	router := newTestRouter(newTestService(newMemRepo(), Dependencies{}))

	rec := do(t, router, http.MethodPost, "/analyze",
		`{"age": 3, "sex": "female", "symptoms": "high fever", "duration": "<3days", "temperature": 38.7, "selected_symptoms": ["fever"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Scan)
	assert.Equal(t, "3", res.Scan.Form.Age)
	assert.Equal(t, "38.7", res.Scan.Form.Temperature)
	assert.Equal(t, "high", string(res.Scan.LocalRiskLevel))
	assert.NotEmpty(t, res.Scan.Guidance.DangerSigns)
}

func TestHandler_Analyze_MissingField(t *testing.T) {
	router := newTestRouter(newTestService(newMemRepo(), Dependencies{}))

	cases := map[string]string{
		"age":      `{"sex": "male", "symptoms": "cough", "duration": "none"}`,
		"sex":      `{"age": "30", "sex": "  ", "symptoms": "cough", "duration": "none"}`,
		"symptoms": `{"age": "30", "sex": "male", "symptoms": null, "duration": "none"}`,
		"duration": `{"age": "30", "sex": "male", "symptoms": "cough"}`,
	}
	for field, body := range cases {
		rec := do(t, router, http.MethodPost, "/analyze", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, field)
		assert.Contains(t, rec.Body.String(), field)
	}

	rec := do(t, router, http.MethodPost, "/analyze", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ScanLifecycle(t *testing.T) {
	repo := newMemRepo()
	router := newTestRouter(newTestService(repo, Dependencies{TTS: &fakeTTS{}, Reports: fakeRenderer{}}))
	pid := uuid.New()

	rec := do(t, router, http.MethodPost, "/analyze",
		`{"patient_id": "`+pid.String()+`", "age": "30", "sex": "male", "symptoms": "mild cough", "duration": "none"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	id := res.Scan.ID.String()

	rec = do(t, router, http.MethodGet, "/patients/"+pid.String()+"/scans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Scans []*Scan `json:"scans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Scans, 1)

	rec = do(t, router, http.MethodGet, "/scans/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/scans/"+id+"/readback/7?format=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Summary.")

	rec = do(t, router, http.MethodGet, "/scans/"+id+"/readback/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))

	rec = do(t, router, http.MethodGet, "/scans/"+id+"/readback/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/scans/"+id+"/readback/9", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/scans/"+id+"/report.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = do(t, router, http.MethodDelete, "/scans/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/scans/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/scans/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_TTSUnavailable(t *testing.T) {
	router := newTestRouter(newTestService(newMemRepo(), Dependencies{}))

	rec := do(t, router, http.MethodPost, "/tts", `{"text": "hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodPost, "/tts", `{"text": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ShareLocation(t *testing.T) {
	router := newTestRouter(newTestService(newMemRepo(), Dependencies{}))

	rec := do(t, router, http.MethodPost, "/location/share", `{"latitude": 48.8566, "longitude": 2.3522, "accuracy": 20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://www.google.com/maps?q=48.8566,2.3522")

	rec = do(t, router, http.MethodPost, "/location/share", `{"latitude": 91, "longitude": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/location/share", `{"latitude": 10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AnalyzeImage_Rejected(t *testing.T) {
	router := newTestRouter(newTestService(newMemRepo(), Dependencies{Vision: nil}))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	fw.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze_image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodPost, "/analyze_image", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Health(t *testing.T) {
	rec := do(t, newTestRouter(newTestService(newMemRepo(), Dependencies{})), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"mehelper"}`, rec.Body.String())
}
