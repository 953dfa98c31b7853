package aiproxy

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"peerprep/interview/internal/curated"
	"peerprep/interview/internal/models"
)

// CallTimeout bounds every outbound provider call; on expiry the fallback
// fires rather than failing the caller, per spec.md §4.5.
const CallTimeout = 8 * time.Second

// Proxy is the AI Proxy: it owns the configured provider, the deterministic
// fallback, and (optionally) the curated question bank, and enforces the
// per-session single-flight rate limit spec.md §4.5 requires ("at most one
// in-flight request of each kind at a time").
type Proxy struct {
	provider Provider
	fallback Provider
	bank     *curated.Bank // nil when no curated bank is configured

	sf sync.Map // sessionID -> *singleflight.Group, one per call kind
}

func New(provider Provider, bank *curated.Bank) *Proxy {
	return &Proxy{
		provider: provider,
		fallback: NewFallback(),
		bank:     bank,
	}
}

func (p *Proxy) groupFor(sessionID, kind string) *singleflight.Group {
	key := sessionID + ":" + kind
	g, _ := p.sf.LoadOrStore(key, &singleflight.Group{})
	return g.(*singleflight.Group)
}

// modeForOrdinal implements the selection policy in spec.md §4.5: explicit
// mode lists rotate in declaration order; a "random" mode list samples
// from the other declared modes with a seed derived from the session id so
// the sequence is reproducible given the session id.
func modeForOrdinal(sessionID string, modes []models.QuestionMode, ordinal int) models.QuestionMode {
	if len(modes) == 0 {
		return models.ModeBehavioral
	}

	pool := modes
	hasRandom := false
	for _, m := range modes {
		if m == models.ModeRandom {
			hasRandom = true
			break
		}
	}
	if hasRandom {
		var others []models.QuestionMode
		for _, m := range modes {
			if m != models.ModeRandom {
				others = append(others, m)
			}
		}
		if len(others) == 0 {
			return models.ModeBehavioral
		}
		pool = others
		seed := sessionSeed(sessionID)
		idx := int((seed + uint64(ordinal)) % uint64(len(pool)))
		return pool[idx]
	}

	return pool[(ordinal-1)%len(pool)]
}

// sessionSeed derives a stable numeric seed from a session id so the
// "random" mode sequence is reproducible given the session id, without
// persisting any extra state.
func sessionSeed(sessionID string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(sessionID); i++ {
		h ^= uint64(sessionID[i])
		h *= 1099511628211
	}
	return h
}

// GenerateQuestion implements the curated-bank-first, provider-second,
// fallback-third selection policy from SPEC_FULL.md §4.5.
func (p *Proxy) GenerateQuestion(ctx context.Context, req QuestionRequest, modes []models.QuestionMode, includeCurated bool) (QuestionDraft, error) {
	req.Mode = modeForOrdinal(req.SessionID, modes, req.Ordinal)

	if includeCurated && p.bank != nil {
		if entry, err := p.bank.NextUnused(ctx, req.RoleCategory, modeToTypeGeneric(req.Mode)); err == nil {
			return QuestionDraft{Type: entry.Type, Text: entry.Text, Metadata: toMap(entry.Metadata)}, nil
		}
	}

	g := p.groupFor(req.SessionID, "question")
	v, err, _ := g.Do("question", func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		defer cancel()
		return p.provider.GenerateQuestion(callCtx, req)
	})
	if err == nil {
		return v.(QuestionDraft), nil
	}

	draft, _ := p.fallback.GenerateQuestion(ctx, req)
	return draft, nil
}

// GenerateSummary falls through to the deterministic fallback on any
// provider failure or timeout, always succeeding.
func (p *Proxy) GenerateSummary(ctx context.Context, sessionID string, req SummaryRequest) (SummaryDraft, bool) {
	g := p.groupFor(sessionID, "summary")
	v, err, _ := g.Do("summary", func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		defer cancel()
		return p.provider.GenerateSummary(callCtx, req)
	})
	if err == nil {
		return v.(SummaryDraft), false
	}
	draft, _ := p.fallback.GenerateSummary(ctx, req)
	return draft, true
}

// GenerateFeedback produces the immediate-feedback score on answer
// submission, also falling through to the fallback on failure.
func (p *Proxy) GenerateFeedback(ctx context.Context, sessionID string, req FeedbackRequest) (FeedbackDraft, bool) {
	g := p.groupFor(sessionID, "feedback:"+req.Answer.QuestionID)
	v, err, _ := g.Do("feedback", func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		defer cancel()
		return p.provider.GenerateFeedback(callCtx, req)
	})
	if err == nil {
		return v.(FeedbackDraft), false
	}
	draft, _ := p.fallback.GenerateFeedback(ctx, req)
	return draft, true
}

func modeToTypeGeneric(mode models.QuestionMode) models.QuestionType {
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

func toMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return m
}
