package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGeminiClient_AnalyzeImage(t *testing.T) {
	photo := testPNG(t, 4, 3)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gm-key", r.URL.Query().Get("key"))

		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Contents, 1) && assert.Len(t, req.Contents[0].Parts, 2) {
			inline := req.Contents[0].Parts[0].InlineData
			assert.Equal(t, "image/png", inline.MimeType)
			assert.Equal(t, base64.StdEncoding.EncodeToString(photo), inline.Data)
			assert.Equal(t, DefaultImagePrompt, req.Contents[0].Parts[1].Text)
		}

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Small red rash on the skin. "}]}}]}`))
	}))
	defer srv.Close()

	c := newGeminiClient("gm-key", "", srv.URL)
	got, err := c.AnalyzeImage(context.Background(), photo, "")
	require.NoError(t, err)

	assert.Equal(t, "Small red rash on the skin.", got.Analysis)
	assert.Equal(t, "gemini-2.0-flash", got.Model)
	assert.Equal(t, "PNG", got.Format)
	assert.Equal(t, "4x3", got.Size)
}

func TestGeminiClient_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := NewGeminiClient("", "").AnalyzeImage(ctx, []byte("x"), "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"blocked", http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, ErrEmptyResponse},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse},
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429}}`, ErrRateLimited},
		{"garbage", http.StatusOK, `<html>`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newGeminiClient("k", "gemini-test", srv.URL).AnalyzeImage(ctx, []byte("not an image"), "describe")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestImageDetails_Unknown(t *testing.T) {
	format, size := imageDetails([]byte("BM not really a bitmap"))
	assert.Equal(t, "Unknown", format)
	assert.Equal(t, "Unknown", size)
}
