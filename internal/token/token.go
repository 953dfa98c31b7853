// Package token is the Token Authority: it mints and verifies the signed
// capability tokens that scope what a client may do at each phase of an
// interview session.
package token

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"peerprep/interview/internal/apperrors"
)

// Audience is the token kind. Endpoints declare the audience they require
// statically; verification rejects any mismatch.
type Audience string

const (
	AudienceUser     Audience = "user"
	AudienceIST      Audience = "ist"
	AudienceWST      Audience = "wst"
	AudienceAIPT     Audience = "aipt"
	AudienceUPT      Audience = "upt"
	AudienceACET     Audience = "acet"
	AudienceSession  Audience = "session"
)

// Default lifetimes, per spec: User 24h, the rest 15m.
const (
	TTLUser = 24 * time.Hour
	TTLIST  = 15 * time.Minute
	TTLWST  = 15 * time.Minute
	TTLAIPT = 15 * time.Minute
	TTLUPT  = 15 * time.Minute
	TTLACET = 15 * time.Minute
)

// Claims is the decoded, verified view of a token. SessionID is empty for
// session-unbound audiences (User).
type Claims struct {
	Subject   string
	Audience  Audience
	Scopes    []string
	SessionID string
	TokenID   string
	TokenGen  int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasScope reports whether the claims include the exact scope string.
func (c Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SessionGenLookup resolves the current token-generation counter for a
// session, so Verify can reject tokens minted under a stale generation (the
// mechanism spec.md §4.3 uses to invalidate outstanding AIPT/WST tokens
// on any transition out of Active without a revocation list; UPTs are
// verified without a lookup).
type SessionGenLookup func(sessionID string) (int64, error)

// Authority mints and verifies tokens with one symmetric secret, mirroring
// the teacher's user service (HS256, shared secret held on the issuing
// component) generalized to the full audience/scope/session-binding
// contract in spec.md §4.1.
type Authority struct {
	secret []byte
}

func New(secret string) *Authority {
	return &Authority{secret: []byte(secret)}
}

// MintParams are the inputs to Mint; SessionID is empty for user-audience
// tokens.
type MintParams struct {
	Subject   string
	Audience  Audience
	Scopes    []string
	SessionID string
	TokenGen  int64
	TTL       time.Duration
}

// Mint issues a fresh signed token. A minted token is never re-minted with a
// different expiry; refresh always calls Mint again with a new jti.
func (a *Authority) Mint(p MintParams) (string, string, error) {
	now := time.Now().UTC()
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"sub":      p.Subject,
		"aud":      string(p.Audience),
		"scope":    p.Scopes,
		"iat":      now.Unix(),
		"exp":      now.Add(p.TTL).Unix(),
		"jti":      jti,
		"tokenGen": p.TokenGen,
	}
	if p.SessionID != "" {
		claims["sessionId"] = p.SessionID
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.Internal, "failed to sign token", err)
	}
	return signed, jti, nil
}

// Verify parses and validates a raw bearer token against the required
// audience and, if non-empty, the required session binding. currentGen, if
// non-nil, is consulted to reject tokens minted under a superseded
// token-generation counter.
func (a *Authority) Verify(raw string, wantAudience Audience, wantSessionID string, currentGen SessionGenLookup) (Claims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return a.secret, nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return Claims{}, apperrors.Wrap(apperrors.TokenExpired, "token expired", err)
		}
		return Claims{}, apperrors.Wrap(apperrors.TokenInvalid, "malformed or unverifiable token", err)
	}
	if !parsed.Valid {
		return Claims{}, apperrors.New(apperrors.TokenInvalid, "token failed validation")
	}

	rawClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, apperrors.New(apperrors.TokenInvalid, "unreadable claims")
	}

	claims, err := decodeClaims(rawClaims)
	if err != nil {
		return Claims{}, err
	}

	if claims.Audience != wantAudience {
		return Claims{}, apperrors.New(apperrors.TokenWrongAudience, "token audience mismatch").
			WithDetails(map[string]string{"got": string(claims.Audience), "want": string(wantAudience)})
	}
	if wantSessionID != "" && claims.SessionID != wantSessionID {
		return Claims{}, apperrors.New(apperrors.TokenWrongSession, "token session binding mismatch")
	}
	if time.Now().UTC().After(claims.ExpiresAt) {
		return Claims{}, apperrors.New(apperrors.TokenExpired, "token expired")
	}
	if currentGen != nil && claims.SessionID != "" {
		gen, err := currentGen(claims.SessionID)
		if err != nil {
			return Claims{}, apperrors.Wrap(apperrors.Internal, "failed to resolve session generation", err)
		}
		if claims.TokenGen != gen {
			return Claims{}, apperrors.New(apperrors.TokenInvalid, "token invalidated by a state transition")
		}
	}

	return claims, nil
}

func decodeClaims(m jwt.MapClaims) (Claims, error) {
	sub, _ := m["sub"].(string)
	audStr, _ := m["aud"].(string)
	jti, _ := m["jti"].(string)
	sessionID, _ := m["sessionId"].(string)

	var scopes []string
	if raw, ok := m["scope"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	}

	var tokenGen int64
	if v, ok := m["tokenGen"].(float64); ok {
		tokenGen = int64(v)
	}

	iat, err := m.GetIssuedAt()
	if err != nil || iat == nil {
		return Claims{}, apperrors.New(apperrors.TokenInvalid, "missing iat claim")
	}
	exp, err := m.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, apperrors.New(apperrors.TokenInvalid, "missing exp claim")
	}

	return Claims{
		Subject:   sub,
		Audience:  Audience(audStr),
		Scopes:    scopes,
		SessionID: sessionID,
		TokenID:   jti,
		TokenGen:  tokenGen,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
	}, nil
}

// BearerFromRequest extracts the raw token from an Authorization: Bearer
// header, the same extraction the teacher's user service performs.
func BearerFromRequest(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", apperrors.New(apperrors.TokenMissing, "missing or malformed Authorization header")
	}
	return strings.TrimPrefix(authz, "Bearer "), nil
}
