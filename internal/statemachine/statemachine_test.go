package statemachine

import (
	"context"
	"testing"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/store"
	"peerprep/interview/internal/store/storetest"
)

func newMachine(t *testing.T) (*Machine, *store.Store, *models.Session) {
	t.Helper()
	st := storetest.Open(t)
	session, err := st.CreateSession(context.Background(), "user-1", models.SessionConfig{QuestionCount: 3})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	return New(st, eventbus.NewHub()), st, session
}

func TestTransitionFollowsLegalPath(t *testing.T) {
	sm, _, session := newMachine(t)
	ctx := context.Background()

	session, err := sm.Transition(ctx, session.ID, models.StateReady, CausePrecheckPassed)
	if err != nil {
		t.Fatalf("PendingPrecheck->Ready returned error: %v", err)
	}
	if session.State != models.StateReady {
		t.Fatalf("expected Ready, got %v", session.State)
	}

	session, err = sm.Transition(ctx, session.ID, models.StateActive, CauseFirstQuestion)
	if err != nil {
		t.Fatalf("Ready->Active returned error: %v", err)
	}
	if session.StartedAt == nil {
		t.Fatal("expected StartedAt to be set on entering Active")
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	sm, _, session := newMachine(t)
	_, err := sm.Transition(context.Background(), session.ID, models.StateCompleted, CauseFinalizeRequested)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.InvalidState {
		t.Fatalf("expected InvalidState for PendingPrecheck->Completed, got %v", err)
	}
}

func TestTransitionRejectsMutatingTerminalSession(t *testing.T) {
	sm, _, session := newMachine(t)
	ctx := context.Background()

	if _, err := sm.Transition(ctx, session.ID, models.StateReady, CausePrecheckPassed); err != nil {
		t.Fatalf("PendingPrecheck->Ready returned error: %v", err)
	}
	if _, err := sm.Transition(ctx, session.ID, models.StateActive, CauseFirstQuestion); err != nil {
		t.Fatalf("Ready->Active returned error: %v", err)
	}
	if _, err := sm.Transition(ctx, session.ID, models.StateEnded, CauseUserExit); err != nil {
		t.Fatalf("Active->Ended returned error: %v", err)
	}

	_, err := sm.Transition(ctx, session.ID, models.StateActive, CauseChecksRestored)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.InvalidState {
		t.Fatalf("expected InvalidState once terminal, got %v", err)
	}
}

func TestTransitionBumpsTokenGenerationOnLeavingActive(t *testing.T) {
	sm, st, session := newMachine(t)
	ctx := context.Background()

	if _, err := sm.Transition(ctx, session.ID, models.StateReady, CausePrecheckPassed); err != nil {
		t.Fatalf("PendingPrecheck->Ready returned error: %v", err)
	}
	if _, err := sm.Transition(ctx, session.ID, models.StateActive, CauseFirstQuestion); err != nil {
		t.Fatalf("Ready->Active returned error: %v", err)
	}

	before, err := st.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}

	after, err := sm.Transition(ctx, session.ID, models.StatePaused, CauseMajorStrike)
	if err != nil {
		t.Fatalf("Active->Paused returned error: %v", err)
	}
	if after.TokenGen != before.TokenGen+1 {
		t.Fatalf("expected TokenGen to bump by 1 on leaving Active, got %d -> %d", before.TokenGen, after.TokenGen)
	}
}

func TestTryTransitionSwallowsInvalidStateAsNoOp(t *testing.T) {
	sm, _, session := newMachine(t)
	_, ok := sm.TryTransition(context.Background(), session.ID, models.StateCompleted, CauseFinalizeRequested)
	if ok {
		t.Fatal("expected TryTransition to report failure for an illegal edge")
	}
}
