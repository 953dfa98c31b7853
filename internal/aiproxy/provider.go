// Package aiproxy is the AI Proxy: the sole caller of external generative
// providers, never exposing credentials to the client, and never failing a
// caller outright — on any unrecoverable provider error it returns the
// deterministic fallback instead, per spec.md §4.5.
package aiproxy

import (
	"context"

	"peerprep/interview/internal/models"
)

// QuestionRequest carries everything a Provider needs to draft one
// question.
type QuestionRequest struct {
	SessionID    string
	RoleCategory string
	Difficulty   models.Difficulty
	Mode         models.QuestionMode
	Ordinal      int
	Remaining    int
}

// QuestionDraft is a Provider's output for GenerateQuestion. The gateway's
// next-question handler persists it as a models.Question.
type QuestionDraft struct {
	Type     models.QuestionType
	Text     string
	Metadata map[string]any
}

// SummaryRequest carries the full transcript for GenerateSummary.
type SummaryRequest struct {
	Questions []models.Question
	Answers   []models.Answer
}

// SummaryDraft is a Provider's output for GenerateSummary.
type SummaryDraft struct {
	Rubric       map[string]any
	Strengths    []string
	Gaps         []string
	Review       []map[string]any
	OverallScore int
}

// FeedbackRequest carries one question/answer pair for immediate feedback
// on answer submission.
type FeedbackRequest struct {
	Question models.Question
	Answer   models.Answer
}

// FeedbackDraft is a Provider's output for GenerateFeedback.
type FeedbackDraft struct {
	Score      int
	Comment    string
	ModelAnswer string
}

// Provider is the capability interface every backend implements, mirroring
// the teacher's llm.Provider shape generalized to the three operations the
// spec requires (question, summary, immediate feedback).
type Provider interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (QuestionDraft, error)
	GenerateSummary(ctx context.Context, req SummaryRequest) (SummaryDraft, error)
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (FeedbackDraft, error)
	Name() string
}

// ProviderError is how every Provider reports a failure; aiproxy.Proxy maps
// any ProviderError to the deterministic fallback rather than propagating
// it to the caller.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Common error codes, shared across providers.
const (
	ErrCodeAPIKey       = "invalid_api_key"
	ErrCodeRateLimit    = "rate_limit_exceeded"
	ErrCodeServiceDown  = "service_unavailable"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeTimeout      = "timeout"
)
