// Package statemachine is the sole mutator of Session.state. Every
// transition validates against the table in spec.md §4.3, persists through
// the Session Store under the session's write lock, bumps the
// token-generation counter when leaving Active, and publishes a fan-out
// event before releasing the lock — so fan-out always observes durable
// state, the ordering guarantee spec.md §5 requires.
package statemachine

import (
	"context"
	"time"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/store"
)

// Cause is attached to a transition's fan-out event so subscribers can tell
// why a state changed.
type Cause string

const (
	CausePrecheckPassed    Cause = "precheck_passed"
	CauseFirstQuestion     Cause = "first_question"
	CauseMajorStrike       Cause = "major_strike"
	CauseCountdownExpired  Cause = "countdown_expired"
	CauseChecksRestored    Cause = "checks_restored"
	CauseFinalizeRequested Cause = "finalize_requested"
	CauseUserExit          Cause = "user_exit"
	CauseResumeTimeout     Cause = "resume_timeout"
)

// edge is one legal transition.
type edge struct {
	from models.SessionState
	to   models.SessionState
}

var transitions = map[edge]struct{}{
	{models.StatePendingPrecheck, models.StateReady}:   {},
	{models.StateReady, models.StateActive}:             {},
	{models.StateActive, models.StatePaused}:            {},
	{models.StatePaused, models.StateActive}:            {},
	{models.StateActive, models.StateCompleted}:         {},
	{models.StateActive, models.StateEnded}:             {},
	{models.StatePaused, models.StateEnded}:             {},
}

// Machine wires the Session Store to the Event Bus.
type Machine struct {
	store *store.Store
	hub   *eventbus.Hub
}

func New(st *store.Store, hub *eventbus.Hub) *Machine {
	return &Machine{store: st, hub: hub}
}

// stateChangedEvent is the fan-out payload for every transition. Payload
// carries transition-specific extra data (e.g. the finalize summary on the
// Completed transition) so a transition that has something more to say
// still only emits one fan-out event, per spec.md §4.3's "every transition
// emits a fan-out event" (singular).
type stateChangedEvent struct {
	State   models.SessionState `json:"state"`
	Cause   Cause                `json:"cause"`
	Payload any                  `json:"payload,omitempty"`
}

// Transition validates and applies one state change. It does not check the
// pre-check outcome: the caller (gateway) must have already confirmed
// canProceed before moving the session from Created to Ready; Transition itself
// only enforces the table and the terminal-write rule.
func (m *Machine) Transition(ctx context.Context, sessionID string, to models.SessionState, cause Cause) (*models.Session, error) {
	return m.transition(ctx, sessionID, to, cause, nil)
}

// TransitionWithPayload behaves exactly like Transition but attaches extra
// data to the single fan-out event the transition publishes, instead of
// requiring the caller to publish a second event afterward.
func (m *Machine) TransitionWithPayload(ctx context.Context, sessionID string, to models.SessionState, cause Cause, payload any) (*models.Session, error) {
	return m.transition(ctx, sessionID, to, cause, payload)
}

func (m *Machine) transition(ctx context.Context, sessionID string, to models.SessionState, cause Cause, payload any) (*models.Session, error) {
	var result *models.Session
	err := m.store.WithSessionLock(sessionID, func() error {
		session, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.State.Terminal() {
			return apperrors.New(apperrors.InvalidState, "session is terminal")
		}
		if _, ok := transitions[edge{session.State, to}]; !ok {
			return apperrors.New(apperrors.InvalidState, "illegal transition").
				WithDetails(map[string]string{"from": string(session.State), "to": string(to)})
		}

		leavingActive := session.State == models.StateActive && to != models.StateActive
		session.State = to
		now := time.Now().UTC()
		switch to {
		case models.StateActive:
			if session.StartedAt == nil {
				session.StartedAt = &now
			}
		case models.StateCompleted, models.StateEnded:
			session.EndedAt = &now
		}
		if leavingActive {
			// Invalidates every outstanding AIPT/WST for this session:
			// those tokens carry the prior generation and fail re-check on
			// next verification, per spec.md §4.3. UPTs carry no generation
			// and are not affected.
			session.TokenGen++
		}

		if err := m.store.UpdateSession(ctx, session); err != nil {
			return err
		}

		kind := fanoutKindFor(to)
		room := m.hub.GetOrCreate(sessionID)
		room.Publish(kind, stateChangedEvent{State: to, Cause: cause, Payload: payload})
		if leavingActive {
			// spec.md §4.3/§5: transitioning out of Active closes any open
			// duplex stream with a terminal frame. The just-published event
			// above is that frame — CloseSubscribers runs after Publish so
			// every subscriber's buffered channel still holds it, and the
			// gateway's read loop (internal/httpapi's handleStream) turns
			// the resulting closed channel into a server-initiated
			// websocket close once it has drained that event.
			room.CloseSubscribers()
		}

		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func fanoutKindFor(state models.SessionState) eventbus.Kind {
	switch state {
	case models.StatePaused:
		return eventbus.SessionPaused
	case models.StateActive:
		return eventbus.SessionResumed
	case models.StateCompleted:
		return eventbus.SessionCompleted
	case models.StateEnded:
		return eventbus.SessionEnded
	default:
		return eventbus.SessionResumed
	}
}

// TryTransition attempts the transition, reporting any error (an
// invalid_state race or otherwise) only as ok=false, for the
// finalize-vs-strike tie-break in spec.md §4.3: "if a
// finalize request and a major strike race, the strike wins". Callers
// needing the strict error should use Transition directly.
func (m *Machine) TryTransition(ctx context.Context, sessionID string, to models.SessionState, cause Cause) (*models.Session, bool) {
	session, err := m.Transition(ctx, sessionID, to, cause)
	if err != nil {
		return nil, false
	}
	return session, true
}
