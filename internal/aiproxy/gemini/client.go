package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"peerprep/interview/internal/aiproxy"
	"peerprep/interview/internal/models"
)

// Client wraps a *genai.Client, mirroring the teacher's gemini.Client.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient constructs a Client, failing with an aiproxy.ProviderError of
// code ErrCodeAPIKey on any construction failure — exactly the teacher's
// mapping.
func NewClient(cfg *Config) (*Client, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &aiproxy.ProviderError{
			Provider: "gemini",
			Code:     aiproxy.ErrCodeAPIKey,
			Message:  "failed to create Gemini client",
			Err:      err,
		}
	}
	return &Client{client: client, model: cfg.Model}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", &aiproxy.ProviderError{
			Provider: "gemini",
			Code:     aiproxy.ErrCodeServiceDown,
			Message:  "generate content failed",
			Err:      err,
		}
	}
	if result == nil {
		return "", &aiproxy.ProviderError{Provider: "gemini", Code: aiproxy.ErrCodeInvalidInput, Message: "no response generated"}
	}
	text, err := result.Text()
	if err != nil || text == "" {
		return "", &aiproxy.ProviderError{Provider: "gemini", Code: aiproxy.ErrCodeInvalidInput, Message: "empty response generated", Err: err}
	}
	return text, nil
}

// GenerateQuestion asks Gemini for one question matching the requested
// mode and parses its JSON-object response.
func (c *Client) GenerateQuestion(ctx context.Context, req aiproxy.QuestionRequest) (aiproxy.QuestionDraft, error) {
	prompt := fmt.Sprintf(
		`Generate one %s interview question for a %s role at %s difficulty. `+
			`Respond with a single JSON object: {"text": string, "metadata": object}. No prose outside the JSON.`,
		req.Mode, req.RoleCategory, req.Difficulty,
	)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return aiproxy.QuestionDraft{}, err
	}

	var parsed struct {
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil || parsed.Text == "" {
		return aiproxy.QuestionDraft{}, &aiproxy.ProviderError{
			Provider: "gemini", Code: aiproxy.ErrCodeInvalidInput, Message: "unparseable question response", Err: err,
		}
	}
	return aiproxy.QuestionDraft{
		Type:     modeToType(req.Mode),
		Text:     parsed.Text,
		Metadata: parsed.Metadata,
	}, nil
}

// GenerateSummary asks Gemini to score the full transcript.
func (c *Client) GenerateSummary(ctx context.Context, req aiproxy.SummaryRequest) (aiproxy.SummaryDraft, error) {
	prompt := fmt.Sprintf(
		`Score this %d-question mock interview transcript. Respond with a single JSON object: `+
			`{"rubric": {"communication": number, "technical": number, "problemSolving": number}, `+
			`"strengths": [string], "gaps": [string], "overallScore": number 0-100}. No prose outside the JSON.\n\n%s`,
		len(req.Questions), transcriptText(req),
	)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return aiproxy.SummaryDraft{}, err
	}

	var parsed struct {
		Rubric       map[string]any `json:"rubric"`
		Strengths    []string       `json:"strengths"`
		Gaps         []string       `json:"gaps"`
		OverallScore int            `json:"overallScore"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return aiproxy.SummaryDraft{}, &aiproxy.ProviderError{
			Provider: "gemini", Code: aiproxy.ErrCodeInvalidInput, Message: "unparseable summary response", Err: err,
		}
	}
	return aiproxy.SummaryDraft{
		Rubric:       parsed.Rubric,
		Strengths:    parsed.Strengths,
		Gaps:         parsed.Gaps,
		OverallScore: parsed.OverallScore,
	}, nil
}

// GenerateFeedback asks Gemini to score one answer immediately.
func (c *Client) GenerateFeedback(ctx context.Context, req aiproxy.FeedbackRequest) (aiproxy.FeedbackDraft, error) {
	prompt := fmt.Sprintf(
		`Question: %s\nAnswer: %v\nRespond with a single JSON object: {"score": number 0-100, "comment": string}. No prose outside the JSON.`,
		req.Question.Text, req.Answer.Payload,
	)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return aiproxy.FeedbackDraft{}, err
	}
	var parsed struct {
		Score   int    `json:"score"`
		Comment string `json:"comment"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return aiproxy.FeedbackDraft{}, &aiproxy.ProviderError{
			Provider: "gemini", Code: aiproxy.ErrCodeInvalidInput, Message: "unparseable feedback response", Err: err,
		}
	}
	return aiproxy.FeedbackDraft{Score: parsed.Score, Comment: parsed.Comment}, nil
}

func transcriptText(req aiproxy.SummaryRequest) string {
	var b strings.Builder
	for _, q := range req.Questions {
		fmt.Fprintf(&b, "Q%d: %s\n", q.Ordinal, q.Text)
	}
	for _, a := range req.Answers {
		fmt.Fprintf(&b, "A(%s): %v\n", a.QuestionID, a.Payload)
	}
	return b.String()
}

func modeToType(mode models.QuestionMode) models.QuestionType {
	switch mode {
	case models.ModeCoding:
		return models.QuestionCoding
	case models.ModeScenario:
		return models.QuestionScenario
	case models.ModeMCQ:
		return models.QuestionMCQ
	case models.ModeFIB:
		return models.QuestionFIB
	default:
		return models.QuestionBehavioral
	}
}

// extractJSON trims any prose a model adds around the JSON object it was
// asked to return verbatim.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
