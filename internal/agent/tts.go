package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	elevenLabsAPIURL = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM"
	ttsModelID       = "eleven_turbo_v2_5"
	// MaxSpeechChars caps a single readback request.
	MaxSpeechChars = 2500
)

type TTSClient interface {
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

type elevenLabsClient struct {
	apiKey       string
	defaultVoice string
	baseURL      string
	httpClient   *http.Client
}

// NewElevenLabsClient returns a TTS client. voiceID is used when a call
// passes no voice; empty selects the stock voice.
func NewElevenLabsClient(apiKey, voiceID string) TTSClient {
	return newElevenLabsClient(apiKey, voiceID, elevenLabsAPIURL)
}

func newElevenLabsClient(apiKey, voiceID, baseURL string) *elevenLabsClient {
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	return &elevenLabsClient{
		apiKey:       apiKey,
		defaultVoice: voiceID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (c *elevenLabsClient) Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("synthesize: empty text")
	}
	if r := []rune(text); len(r) > MaxSpeechChars {
		text = string(r[:MaxSpeechChars])
	}
	if voiceID == "" {
		voiceID = c.defaultVoice
	}

	jsonBody, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       ttsModelID,
		VoiceSettings: voiceSettings{Stability: 0.7, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+voiceID, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError("elevenlabs", resp, body)
	}

	return io.ReadAll(resp.Body)
}
