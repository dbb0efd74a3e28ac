package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	geminiAPIURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultVisionModel  = "gemini-2.0-flash"
	DefaultImagePrompt  = "What do you see in this medical image? Describe any symptoms, conditions, rashes, wounds, or medical findings visible. Focus on medically relevant observations."
	unknownImageDetails = "Unknown"
)

// ImageAnalysis is the vision model's description of an uploaded photo.
type ImageAnalysis struct {
	Analysis string `json:"analysis"`
	Model    string `json:"model"`
	Format   string `json:"format"`
	Size     string `json:"size"`
}

type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, data []byte, prompt string) (*ImageAnalysis, error)
}

type geminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient returns an analyzer backed by Gemini generateContent.
// An empty model selects gemini-2.0-flash.
func NewGeminiClient(apiKey, model string) ImageAnalyzer {
	return newGeminiClient(apiKey, model, geminiAPIURL)
}

func newGeminiClient(apiKey, model, baseURL string) *geminiClient {
	if model == "" {
		model = defaultVisionModel
	}
	return &geminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func (c *geminiClient) AnalyzeImage(ctx context.Context, data []byte, prompt string) (*ImageAnalysis, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultImagePrompt
	}

	format, size := imageDetails(data)
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MimeType: http.DetectContentType(data),
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
				{Text: prompt},
			},
		}},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gemini: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("gemini", resp, respBody)
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, gr.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &ImageAnalysis{
		Analysis: strings.TrimSpace(text.String()),
		Model:    c.model,
		Format:   format,
		Size:     size,
	}, nil
}

// imageDetails reports the decoded format and dimensions, or "Unknown" for
// formats without a registered decoder.
func imageDetails(data []byte) (string, string) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return unknownImageDetails, unknownImageDetails
	}
	return strings.ToUpper(format), fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
}
