// Package anticheat is the Anti-Cheat Engine: it ingests batches of
// browser-reported events under an ACET, verifies the tamper-evident hash
// chain, applies the declarative policy table, persists derived strikes,
// and drives auto-pause/auto-end through the State Machine. It never
// mutates session state directly (spec.md §4.4's closing sentence).
package anticheat

import (
	"context"
	"sync"
	"time"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/policy"
	"peerprep/interview/internal/statemachine"
	"peerprep/interview/internal/store"
)

// IncomingEvent is the wire shape of one client-reported event, prior to
// persistence. The engine fills SessionID from the request path, never
// trusting a body-supplied value that disagrees with it.
type IncomingEvent struct {
	Seq      int64
	Type     string
	Details  map[string]any
	Ts       time.Time
	PrevHash string
}

// ChainBrokenDetails is the client-visible payload on a chain_broken
// rejection, so the client can re-sync.
type ChainBrokenDetails struct {
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// pauseTimer tracks the single outstanding auto-escalation countdown for a
// session; a session has at most one active pause countdown at a time.
type pauseTimer struct {
	cause string
	timer *time.Timer
}

// Engine wires the Session Store, Event Bus, State Machine, and policy
// table together.
type Engine struct {
	store  *store.Store
	hub    *eventbus.Hub
	sm     *statemachine.Machine
	policy *policy.Table

	mu     sync.Mutex
	pauses map[string]*pauseTimer
}

func New(st *store.Store, hub *eventbus.Hub, sm *statemachine.Machine, pol *policy.Table) *Engine {
	return &Engine{
		store:  st,
		hub:    hub,
		sm:     sm,
		policy: pol,
		pauses: make(map[string]*pauseTimer),
	}
}

// Tail returns the session's current (seq, hash) pair.
func (e *Engine) Tail(ctx context.Context, sessionID string) (int64, string, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, "", err
	}
	return session.TailSeq, session.TailHash, nil
}

// IngestBatch verifies and persists one batch, then runs policy evaluation
// over the newly accepted events in order.
func (e *Engine) IngestBatch(ctx context.Context, sessionID string, incoming []IncomingEvent) (tailSeq int64, tailHash string, err error) {
	var accepted []models.AntiCheatEvent
	lockErr := e.store.WithSessionLock(sessionID, func() error {
		session, gerr := e.store.GetSession(ctx, sessionID)
		if gerr != nil {
			return gerr
		}
		if session.State.Terminal() {
			return apperrors.New(apperrors.InvalidState, "session is terminal")
		}

		chained, verr := verifyChain(sessionID, session.TailSeq, session.TailHash, incoming)
		if verr != nil {
			return verr
		}

		last := chained[len(chained)-1]
		newHash, herr := HashCanonical(last)
		if herr != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to hash event", herr)
		}

		if err := e.store.AppendAntiCheatBatch(ctx, session, chained, last.Seq, newHash); err != nil {
			return err
		}
		accepted = chained
		tailSeq, tailHash = last.Seq, newHash
		return nil
	})
	if lockErr != nil {
		return 0, "", lockErr
	}

	for _, ev := range accepted {
		e.evaluate(ctx, sessionID, ev)
	}
	return tailSeq, tailHash, nil
}

// verifyChain checks seq/prevHash continuity per spec.md §4.4 and returns
// the batch ready for persistence, SessionID stamped on every event.
func verifyChain(sessionID string, tailSeq int64, tailHash string, incoming []IncomingEvent) ([]models.AntiCheatEvent, error) {
	if len(incoming) == 0 {
		return nil, apperrors.New(apperrors.ValidationFailed, "empty event batch")
	}

	first := incoming[0]
	if first.Seq != tailSeq+1 || first.PrevHash != tailHash {
		return nil, apperrors.New(apperrors.ChainBroken, "batch does not continue the stored tail").
			WithDetails(ChainBrokenDetails{Seq: tailSeq, Hash: tailHash})
	}

	out := make([]models.AntiCheatEvent, 0, len(incoming))
	prevEvent := models.AntiCheatEvent{}
	for i, ev := range incoming {
		stored := models.AntiCheatEvent{
			SessionID: sessionID,
			Seq:       ev.Seq,
			Type:      ev.Type,
			Details:   ev.Details,
			Ts:        ev.Ts,
			PrevHash:  ev.PrevHash,
		}
		if i > 0 {
			wantHash, err := HashCanonical(prevEvent)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.Internal, "failed to hash predecessor", err)
			}
			if ev.Seq != prevEvent.Seq+1 || ev.PrevHash != wantHash {
				return nil, apperrors.New(apperrors.ChainBroken, "batch is internally inconsistent").
					WithDetails(ChainBrokenDetails{Seq: tailSeq, Hash: tailHash})
			}
		}
		out = append(out, stored)
		prevEvent = stored
	}
	return out, nil
}

// SubmitPrecheck handles /interview/{id}/precheck. Per the resolved Open
// Question in spec.md §9 (see SPEC_FULL.md §4.4), each submission's checks
// payload replaces the session's stored precheck snapshot wholesale; the
// accompanying events are ingested through the identical chain path as
// /anti-cheat.
func (e *Engine) SubmitPrecheck(ctx context.Context, sessionID string, checks map[string]string, events []IncomingEvent) (overallStatus string, canProceed bool, err error) {
	if len(events) > 0 {
		if _, _, err := e.IngestBatch(ctx, sessionID, events); err != nil {
			return "", false, err
		}
	}

	overallStatus = "pass"
	for _, v := range checks {
		if v != "pass" {
			overallStatus = "fail"
			break
		}
	}

	err = e.store.WithSessionLock(sessionID, func() error {
		session, gerr := e.store.GetSession(ctx, sessionID)
		if gerr != nil {
			return gerr
		}
		if session.State.Terminal() {
			return apperrors.New(apperrors.InvalidState, "session is terminal")
		}
		details := make(models.JSONMap, len(checks))
		for k, v := range checks {
			details[k] = v
		}
		session.PrecheckChecks = details
		session.PrecheckStatus = overallStatus
		return e.store.UpdateSession(ctx, session)
	})
	if err != nil {
		return "", false, err
	}

	canProceed = overallStatus == "pass"
	return overallStatus, canProceed, nil
}

// evaluate runs the declarative policy table against one freshly persisted
// event and drives the resulting strike/pause/end side effects. Errors are
// swallowed here (neither logged nor propagated) because the ingest itself
// already succeeded and durably
// committed the event — a policy-side failure must not make the client
// retry a batch that is already accepted.
func (e *Engine) evaluate(ctx context.Context, sessionID string, ev models.AntiCheatEvent) {
	e.maybeRescind(ctx, sessionID, ev.Type)

	rule, ok := e.policy.RuleFor(ev.Type)
	if !ok {
		return
	}

	severity := models.StrikeSeverity(rule.Severity)
	var count int64
	var countErr error
	if severity == models.SeverityMinor {
		count, countErr = e.store.CountStrikesBySeverity(ctx, sessionID, severity)
	} else {
		count, countErr = e.store.CountStrikesByType(ctx, sessionID, ev.Type)
	}
	if countErr != nil {
		return
	}
	count++ // this event's own strike, about to be recorded

	action := models.ActionNone
	if rule.ImmediateAction == "pause" {
		action = models.ActionPause
	}
	thresholdHit := rule.RepeatThreshold > 0 && count >= int64(rule.RepeatThreshold)
	if thresholdHit {
		switch rule.ThresholdAction {
		case "pause":
			action = models.ActionPause
		case "end":
			action = models.ActionEnd
		}
	}

	strike := &models.Strike{
		SessionID:     sessionID,
		Severity:      severity,
		Type:          ev.Type,
		TriggeringSeq: ev.Seq,
		Action:        action,
	}
	if err := e.store.AppendStrike(ctx, strike); err != nil {
		return
	}
	room := e.hub.GetOrCreate(sessionID)
	room.Publish(eventbus.StrikeCreated, strike)

	switch action {
	case models.ActionEnd:
		e.cancelPause(sessionID)
		e.sm.TryTransition(ctx, sessionID, models.StateEnded, statemachine.CauseMajorStrike)
	case models.ActionPause:
		e.startPause(ctx, sessionID, ev.Type, rule)
	}
}

// maybeRescind cancels an outstanding pause countdown and returns the
// session to Active if the incoming event type rescinds the active pause's
// cause, e.g. FS_READY rescinding an FS_EXIT pause.
func (e *Engine) maybeRescind(ctx context.Context, sessionID, eventType string) {
	e.mu.Lock()
	pt, ok := e.pauses[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	rule, ok := e.policy.RuleFor(pt.cause)
	if !ok {
		return
	}
	for _, rescind := range rule.RescindedBy {
		if rescind == eventType {
			e.cancelPause(sessionID)
			e.sm.TryTransition(ctx, sessionID, models.StateActive, statemachine.CauseChecksRestored)
			return
		}
	}
}

func (e *Engine) startPause(ctx context.Context, sessionID, eventType string, rule policy.StrikeRule) {
	e.cancelPause(sessionID)

	if _, ok := e.sm.TryTransition(ctx, sessionID, models.StatePaused, statemachine.CauseMajorStrike); !ok {
		return
	}

	countdown := time.Duration(rule.PauseCountdownSeconds) * time.Second
	if countdown <= 0 {
		return
	}

	timer := time.AfterFunc(countdown, func() {
		e.mu.Lock()
		_, stillActive := e.pauses[sessionID]
		delete(e.pauses, sessionID)
		e.mu.Unlock()
		if stillActive {
			e.sm.TryTransition(context.Background(), sessionID, models.StateEnded, statemachine.CauseCountdownExpired)
		}
	})

	e.mu.Lock()
	e.pauses[sessionID] = &pauseTimer{cause: eventType, timer: timer}
	e.mu.Unlock()
}

func (e *Engine) cancelPause(sessionID string) {
	e.mu.Lock()
	pt, ok := e.pauses[sessionID]
	delete(e.pauses, sessionID)
	e.mu.Unlock()
	if ok {
		pt.timer.Stop()
	}
}
