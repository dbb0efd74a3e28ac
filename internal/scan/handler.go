package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mehelper/internal/location"
	"mehelper/internal/triage"
)

// requiredFields must be present and non-empty in an analysis request.
var requiredFields = []string{"age", "sex", "symptoms", "duration"}

type Handler struct {
	svc    Service
	logger *logrus.Logger
}

func NewHandler(svc Service, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := checkRequired(raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body, err = json.Marshal(stringifyNumbers(raw)); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	res, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		h.fail(w, "analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// checkRequired reports the first missing required field. Numbers count as
// present; strings must be non-blank.
func checkRequired(raw map[string]any) error {
	for _, f := range requiredFields {
		v, ok := raw[f]
		if !ok || v == nil {
			return fmt.Errorf("%w: %s", ErrMissingField, f)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}
	return nil
}

// stringifyNumbers lets clients send numeric form fields as JSON numbers.
func stringifyNumbers(raw map[string]any) map[string]any {
	for _, f := range []string{"age", "temperature", "heart_rate"} {
		if n, ok := raw[f].(float64); ok {
			raw[f] = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return raw
}

func (h *Handler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxImageBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read image file")
		return
	}

	res, err := h.svc.AnalyzeImage(r.Context(), ImageUpload{
		Filename: header.Filename,
		Data:     data,
		Prompt:   r.FormValue("prompt"),
	})
	if err != nil {
		h.fail(w, "image analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	pid, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid patient ID")
		return
	}

	scans, err := h.svc.History(r.Context(), pid)
	if err != nil {
		h.fail(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	sc, err := h.svc.GetScan(r.Context(), id)
	if err != nil {
		h.fail(w, "get scan", err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteScan(r.Context(), id); err != nil {
		h.fail(w, "delete scan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	pdf, err := h.svc.Report(r.Context(), id)
	if err != nil {
		h.fail(w, "report", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "mehelper_"+id.String()+".pdf"))
	w.Write(pdf)
}

func (h *Handler) SendReport(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SendReport(r.Context(), id); err != nil {
		h.fail(w, "send report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) Readback(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "level"))
	level := triage.Level(n)
	if err != nil || level.Title() == "" {
		writeError(w, http.StatusBadRequest, "Invalid level")
		return
	}

	if r.URL.Query().Get("format") == "text" {
		text, err := h.svc.ReadbackText(r.Context(), id, level)
		if err != nil {
			h.fail(w, "readback", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": text})
		return
	}

	audio, err := h.svc.ReadbackLevel(r.Context(), id, level)
	if err != nil {
		h.fail(w, "readback", err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}

type TTSRequest struct {
	Text string `json:"text"`
}

func (h *Handler) TTS(w http.ResponseWriter, r *http.Request) {
	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	audio, err := h.svc.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		h.fail(w, "tts", err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

func (h *Handler) ShareLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	share, err := h.svc.ShareLocation(r.Context(), *req.Latitude, *req.Longitude, req.Accuracy)
	if err != nil {
		h.fail(w, "share location", err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "mehelper"})
}

func scanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scan ID")
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNothingToRead):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrMissingField),
		errors.Is(err, ErrInvalidPatientID),
		errors.Is(err, location.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.WithError(err).WithField("op", op).Error("request failed")
		writeError(w, http.StatusInternalServerError, op+" failed: "+err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/health", h.Health)
	r.Post("/analyze", h.Analyze)
	r.Post("/analyze_image", h.AnalyzeImage)
	r.Get("/patients/{patientID}/scans", h.History)
	r.Get("/scans/{id}", h.GetScan)
	r.Delete("/scans/{id}", h.DeleteScan)
	r.Get("/scans/{id}/report.pdf", h.Report)
	r.Post("/scans/{id}/report/send", h.SendReport)
	r.Get("/scans/{id}/readback/{level}", h.Readback)
	r.Post("/tts", h.TTS)
	r.Post("/location/share", h.ShareLocation)
}
