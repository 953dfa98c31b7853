package models

import "testing"

func TestJSONMapValueScanRoundTrip(t *testing.T) {
	m := JSONMap{"camera": "pass", "count": float64(3)}

	raw, err := m.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}

	var got JSONMap
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if got["camera"] != "pass" || got["count"] != float64(3) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestJSONMapValueNilIsNull(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	if err != nil || v != nil {
		t.Fatalf("expected a nil map to Value() as (nil, nil), got (%v, %v)", v, err)
	}
}

func TestJSONMapScanAcceptsStringAndBytes(t *testing.T) {
	var fromString JSONMap
	if err := fromString.Scan(`{"a":1}`); err != nil {
		t.Fatalf("Scan(string) returned error: %v", err)
	}
	if fromString["a"] != float64(1) {
		t.Fatalf("unexpected Scan(string) result: %#v", fromString)
	}

	var fromBytes JSONMap
	if err := fromBytes.Scan([]byte(`{"b":2}`)); err != nil {
		t.Fatalf("Scan([]byte) returned error: %v", err)
	}
	if fromBytes["b"] != float64(2) {
		t.Fatalf("unexpected Scan([]byte) result: %#v", fromBytes)
	}
}

func TestJSONMapScanRejectsUnsupportedType(t *testing.T) {
	var m JSONMap
	if err := m.Scan(42); err == nil {
		t.Fatal("expected an error scanning an unsupported type")
	}
}

func TestStringSliceValueScanRoundTrip(t *testing.T) {
	s := StringSlice{"behavioral", "coding"}

	raw, err := s.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}

	var got StringSlice
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(got) != 2 || got[0] != "behavioral" || got[1] != "coding" {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestJSONSliceValueScanRoundTrip(t *testing.T) {
	s := JSONSlice{"strength one", map[string]any{"gap": "time management"}}

	raw, err := s.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}

	var got JSONSlice
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(got) != 2 || got[0] != "strength one" {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestSessionAnswerInvariants(t *testing.T) {
	s := &Session{State: StateActive, AskedCount: 2, SessionConfig: SessionConfig{QuestionCount: 5}}
	if s.State.Terminal() {
		t.Fatal("Active must not be terminal")
	}
	s.State = StateEnded
	if !s.State.Terminal() {
		t.Fatal("Ended must be terminal")
	}
	s.State = StateCompleted
	if !s.State.Terminal() {
		t.Fatal("Completed must be terminal")
	}
}
