package aiproxy

import (
	"context"
	"fmt"

	"peerprep/interview/internal/models"
)

// Fallback is the deterministic, never-erroring provider used when no
// external provider is configured or the configured one fails. Its
// question bank and answer-length heuristic are grounded in
// original_source/backend/ai/proxy.py's per-mode fallback bank and
// analyze_qa heuristic.
type Fallback struct{}

func NewFallback() *Fallback { return &Fallback{} }

func (f *Fallback) Name() string { return "deterministic" }

func init() {
	RegisterProvider("deterministic", func() (Provider, error) { return NewFallback(), nil })
}

func (f *Fallback) GenerateQuestion(_ context.Context, req QuestionRequest) (QuestionDraft, error) {
	switch req.Mode {
	case models.ModeCoding:
		return QuestionDraft{
			Type: models.QuestionCoding,
			Text: "Write a function to find all duplicates in an array of integers.",
			Metadata: map[string]any{
				"functionName": "find_duplicates",
				"tests": []map[string]any{
					{"input": []int{1, 2, 3, 2, 1}, "output": []int{1, 2}},
					{"input": []int{4, 5, 6}, "output": []int{}},
				},
			},
		}, nil
	case models.ModeMCQ:
		return QuestionDraft{
			Type: models.QuestionMCQ,
			Text: "What is the time complexity of binary search on a sorted array of n elements?",
			Metadata: map[string]any{
				"options": []string{"O(1)", "O(log n)", "O(n)", "O(n log n)"},
				"answer":  "O(log n)",
			},
		}, nil
	case models.ModeFIB:
		return QuestionDraft{
			Type: models.QuestionFIB,
			Text: "The HTTP status code for a successfully created resource is ___.",
			Metadata: map[string]any{"slot": "201"},
		}, nil
	case models.ModeScenario:
		return QuestionDraft{
			Type: models.QuestionScenario,
			Text: "Your test suite takes 40 minutes to run in CI and is slowing down every deploy. How would you approach reducing that?",
		}, nil
	default:
		return QuestionDraft{
			Type: models.QuestionBehavioral,
			Text: fmt.Sprintf("Tell me about a time you solved a difficult problem in %s. (Q%d)", req.RoleCategory, req.Ordinal),
		}, nil
	}
}

func (f *Fallback) GenerateSummary(_ context.Context, req SummaryRequest) (SummaryDraft, error) {
	return SummaryDraft{
		Rubric: map[string]any{
			"communication":  3,
			"technical":      3,
			"problemSolving": 3,
		},
		Strengths:    []string{"Communicated clearly", "Structured answers well"},
		Gaps:         []string{"Could go deeper on technical tradeoffs"},
		OverallScore: 75,
	}, nil
}

func (f *Fallback) GenerateFeedback(_ context.Context, req FeedbackRequest) (FeedbackDraft, error) {
	text := answerText(req.Answer)
	base := 40
	if text != "" {
		base = 60 + min(40, len(text)/10)
	}

	var comment, modelAnswer string
	switch req.Answer.Kind {
	case models.AnswerCode:
		comment = "Logic looks reasonable; check edge cases like empty input."
		modelAnswer = "A correct solution typically uses a hash set to track seen elements in one pass."
	case models.AnswerMCQ:
		comment = "Review the complexity classes for common search and sort algorithms."
		modelAnswer = "See the question's declared correct option."
	case models.AnswerFIB:
		comment = "Double-check the exact expected value for this slot."
		modelAnswer = "See the question's declared correct value."
	default:
		comment = "Answer addresses the prompt; consider adding a concrete example."
		modelAnswer = ""
	}

	return FeedbackDraft{Score: base, Comment: comment, ModelAnswer: modelAnswer}, nil
}

func answerText(a models.Answer) string {
	if a.Transcript != "" {
		return a.Transcript
	}
	if v, ok := a.Payload["text"].(string); ok {
		return v
	}
	return ""
}
