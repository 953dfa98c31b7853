package token

import (
	"net/http"
	"testing"
	"time"

	"peerprep/interview/internal/apperrors"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	auth := New("secret")

	raw, jti, err := auth.Mint(MintParams{
		Subject:   "user-1",
		Audience:  AudienceIST,
		SessionID: "session-1",
		Scopes:    []string{"answer:submit"},
		TTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}

	claims, err := auth.Verify(raw, AudienceIST, "session-1", nil)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "user-1" || claims.SessionID != "session-1" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if !claims.HasScope("answer:submit") {
		t.Fatalf("expected scope to round-trip, got %v", claims.Scopes)
	}
}

func TestVerifyWrongAudience(t *testing.T) {
	auth := New("secret")
	raw, _, err := auth.Mint(MintParams{Audience: AudienceIST, SessionID: "s1", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	_, err = auth.Verify(raw, AudienceWST, "s1", nil)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.TokenWrongAudience {
		t.Fatalf("expected TokenWrongAudience, got %v", err)
	}
}

func TestVerifyWrongSessionBinding(t *testing.T) {
	auth := New("secret")
	raw, _, err := auth.Mint(MintParams{Audience: AudienceIST, SessionID: "s1", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	_, err = auth.Verify(raw, AudienceIST, "s2", nil)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.TokenWrongSession {
		t.Fatalf("expected TokenWrongSession, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	auth := New("secret")
	raw, _, err := auth.Mint(MintParams{Audience: AudienceIST, SessionID: "s1", TTL: -time.Minute})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	_, err = auth.Verify(raw, AudienceIST, "s1", nil)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.TokenExpired {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	a1 := New("secret-a")
	a2 := New("secret-b")

	raw, _, err := a1.Mint(MintParams{Audience: AudienceUser, TTL: time.Minute})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	if _, err := a2.Verify(raw, AudienceUser, "", nil); err == nil {
		t.Fatal("expected verification to fail against a different secret")
	}
}

func TestVerifyRejectsSupersededTokenGeneration(t *testing.T) {
	auth := New("secret")
	raw, _, err := auth.Mint(MintParams{Audience: AudienceWST, SessionID: "s1", TokenGen: 1, TTL: time.Minute})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	lookup := func(sessionID string) (int64, error) { return 2, nil }
	if _, err := auth.Verify(raw, AudienceWST, "s1", lookup); err == nil {
		t.Fatal("expected verification to fail for a superseded token generation")
	}

	lookup = func(sessionID string) (int64, error) { return 1, nil }
	if _, err := auth.Verify(raw, AudienceWST, "s1", lookup); err != nil {
		t.Fatalf("expected verification to succeed for a matching generation, got %v", err)
	}
}

func TestBearerFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	raw, err := BearerFromRequest(req)
	if err != nil || raw != "abc123" {
		t.Fatalf("unexpected result %q err=%v", raw, err)
	}

	for _, header := range []string{"", "Token abc123", "Bearer"} {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if _, err := BearerFromRequest(req); err == nil {
			t.Fatalf("expected error for header %q", header)
		}
	}
}
