package aiproxy

import (
	"testing"

	"peerprep/interview/internal/models"
)

func TestModeForOrdinalRotatesExplicitList(t *testing.T) {
	modes := []models.QuestionMode{models.ModeBehavioral, models.ModeCoding, models.ModeScenario}
	want := []models.QuestionMode{models.ModeBehavioral, models.ModeCoding, models.ModeScenario, models.ModeBehavioral}
	for i, ordinal := range []int{1, 2, 3, 4} {
		got := modeForOrdinal("session-1", modes, ordinal)
		if got != want[i] {
			t.Fatalf("ordinal %d: got %v, want %v", ordinal, got, want[i])
		}
	}
}

func TestModeForOrdinalEmptyDefaultsToBehavioral(t *testing.T) {
	if got := modeForOrdinal("session-1", nil, 1); got != models.ModeBehavioral {
		t.Fatalf("expected default behavioral mode, got %v", got)
	}
}

func TestModeForOrdinalRandomIsReproducibleForSameSession(t *testing.T) {
	modes := []models.QuestionMode{models.ModeRandom, models.ModeCoding, models.ModeScenario}

	first := modeForOrdinal("session-xyz", modes, 3)
	second := modeForOrdinal("session-xyz", modes, 3)
	if first != second {
		t.Fatalf("expected the random mode sequence to be reproducible given the session id: %v != %v", first, second)
	}
	if first == models.ModeRandom {
		t.Fatal("expected random selection to resolve to a concrete non-random mode")
	}
}

func TestSessionSeedDiffersAcrossSessions(t *testing.T) {
	if sessionSeed("session-a") == sessionSeed("session-b") {
		t.Fatal("expected different sessions to generally produce different seeds")
	}
}
