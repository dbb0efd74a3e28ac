package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultAnalysisEndpoint = "https://router.huggingface.co/v1"
	defaultAnalysisModel    = "openai/gpt-oss-20b:fireworks-ai"
	analysisMaxTokens       = 1000
	analysisTemperature     = 0.1
)

// AnalysisRequest is the patient information sent to the analysis backend.
// Values are passed through as the user typed them.
type AnalysisRequest struct {
	Age           string `json:"age"`
	Sex           string `json:"sex"`
	Symptoms      string `json:"symptoms"`
	Duration      string `json:"duration"`
	Temperature   string `json:"temperature,omitempty"`
	HeartRate     string `json:"heart_rate,omitempty"`
	ImageAnalysis string `json:"image_analysis,omitempty"`
}

// Analysis is the backend assessment flattened for the client.
type Analysis struct {
	RiskLevel               string              `json:"risk_level"`
	RiskAssessment          string              `json:"risk_assessment"`
	Reassurance             string              `json:"reassurance"`
	PossibleConditions      []string            `json:"possible_conditions"`
	FirstAidMeasures        []string            `json:"first_aid_measures"`
	ImmediateActions        []string            `json:"immediate_actions"`
	DangerSigns             []string            `json:"danger_signs"`
	VitalsAnalysis          []string            `json:"vitals_analysis"`
	Summary                 string              `json:"summary"`
	TimelineRecommendations map[string][]string `json:"timeline_recommendations"`
	ImageAnalysisIncluded   bool                `json:"image_analysis_included"`
	ImageFindings           string              `json:"image_findings,omitempty"`
	Model                   string              `json:"model"`
}

type AnalysisClient interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error)
}

// ChatConfig configures an OpenAI-compatible chat completions backend.
type ChatConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

type chatAnalysisClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

func NewChatAnalysisClient(cfg ChatConfig) AnalysisClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultAnalysisEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnalysisModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &chatAnalysisClient{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *chatAnalysisClient) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: buildTriagePrompt(req)}},
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling analysis backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("analysis backend", resp, respBody)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	levels, err := parseTriageLevels(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	a := levels.toAnalysis()
	a.Model = c.model
	if req.ImageAnalysis != "" {
		a.ImageAnalysisIncluded = true
		a.ImageFindings = req.ImageAnalysis
	}
	return a, nil
}

func buildTriagePrompt(req AnalysisRequest) string {
	orUnknown := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "unknown"
		}
		return s
	}

	var b strings.Builder
	b.WriteString("You are an expert medical triage AI assistant. Analyze the following patient information and provide a comprehensive 7-level triage assessment.\n\n")
	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "- Age: %s years\n", orUnknown(req.Age))
	fmt.Fprintf(&b, "- Sex: %s\n", orUnknown(req.Sex))
	fmt.Fprintf(&b, "- Symptoms: %s\n", req.Symptoms)
	fmt.Fprintf(&b, "- Duration: %s\n", orUnknown(req.Duration))
	if req.Temperature != "" {
		fmt.Fprintf(&b, "- Temperature: %s°C\n", req.Temperature)
	}
	if req.HeartRate != "" {
		fmt.Fprintf(&b, "- Heart Rate: %s BPM\n", req.HeartRate)
	}
	if req.ImageAnalysis != "" {
		fmt.Fprintf(&b, "- Image Analysis: %s\n", req.ImageAnalysis)
	}
	b.WriteString(triageInstructions)
	return b.String()
}

const triageInstructions = `
Please provide a comprehensive medical assessment in the following 7 levels:

**Level 1 - Reassurance Level**: Provide reassurance for mild symptoms and general advice.

**Level 2 - Initial Assessment**: Classify the condition severity (mild/moderate/severe/emergency).

**Level 3 - Pathological Possibilities**: List the 3-5 most likely medical conditions based on symptoms.

**Level 4 - First Aid Measures**: Provide specific first aid instructions that can be done at home.

**Level 5 - Danger Signs Alert**: List critical warning signs that require immediate medical attention.

**Level 6 - Vital Signs Analysis**: Analyze any provided vital signs and their implications.

**Level 7 - Summary Report & Next Action**: Provide a concise summary and specific next steps.

Format your response as a JSON object with these exact keys:
{
  "level_1_reassurance": "string",
  "level_2_assessment": {"severity": "mild|moderate|severe|emergency", "description": "string"},
  "level_3_possibilities": ["condition1", "condition2", "condition3"],
  "level_4_first_aid": ["step1", "step2", "step3"],
  "level_5_danger_signs": ["sign1", "sign2", "sign3"],
  "level_6_vitals_analysis": "string",
  "level_7_summary": {"summary": "string", "next_action": "string"}
}

Be precise, medically accurate, and prioritize patient safety.`

// triageLevels mirrors the JSON object the prompt asks for.
type triageLevels struct {
	Reassurance string `json:"level_1_reassurance"`
	Assessment  struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
	} `json:"level_2_assessment"`
	Possibilities  []string `json:"level_3_possibilities"`
	FirstAid       []string `json:"level_4_first_aid"`
	DangerSigns    []string `json:"level_5_danger_signs"`
	VitalsAnalysis string   `json:"level_6_vitals_analysis"`
	Summary        struct {
		Summary    string `json:"summary"`
		NextAction string `json:"next_action"`
	} `json:"level_7_summary"`
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// parseTriageLevels pulls the outermost JSON object out of free model text.
func parseTriageLevels(text string) (*triageLevels, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrMalformedResponse)
	}

	var levels triageLevels
	if err := json.Unmarshal([]byte(raw), &levels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &levels, nil
}

func (l *triageLevels) toAnalysis() *Analysis {
	a := &Analysis{
		RiskLevel:          l.Assessment.Severity,
		RiskAssessment:     l.Assessment.Description,
		Reassurance:        l.Reassurance,
		PossibleConditions: nonNil(l.Possibilities),
		FirstAidMeasures:   nonNil(l.FirstAid),
		ImmediateActions:   []string{},
		DangerSigns:        nonNil(l.DangerSigns),
		VitalsAnalysis:     []string{},
		Summary:            l.Summary.Summary,
		TimelineRecommendations: map[string][]string{
			"Next 24 hours": {"Monitor symptoms closely", "Follow recommended first aid measures"},
			"Next 48 hours": {"Reassess condition", "Contact healthcare provider if needed"},
			"Next week":     {"Follow up as recommended", "Complete any prescribed treatments"},
		},
	}
	if l.Summary.NextAction != "" {
		a.ImmediateActions = append(a.ImmediateActions, l.Summary.NextAction)
	}
	if l.VitalsAnalysis != "" {
		a.VitalsAnalysis = append(a.VitalsAnalysis, l.VitalsAnalysis)
	}
	return a
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
