package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/token"
)

// sessionGen resolves the current token-generation counter for a session,
// satisfying token.SessionGenLookup by delegating to the Session Store.
// SessionGenLookup carries no context parameter, so this uses a background
// one; GetSession only consults it for cancellation on an already-fast read.
func (s *Server) sessionGen(sessionID string) (int64, error) {
	session, err := s.store.GetSession(context.Background(), sessionID)
	if err != nil {
		return 0, err
	}
	return session.TokenGen, nil
}

// verifyCookie extracts and verifies the session cookie as a User-audience
// token, used by every endpoint spec.md §6 marks "session cookie" auth.
func (s *Server) verifyCookie(r *http.Request) (token.Claims, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return token.Claims{}, apperrors.New(apperrors.TokenMissing, "missing session cookie")
	}
	return s.auth.Verify(c.Value, token.AudienceUser, "", nil)
}

// verifyBearer extracts and verifies an Authorization: Bearer token against
// the given audience, binding to sessionID when non-empty and re-checking
// the session's token generation when genCheck is true.
func (s *Server) verifyBearer(r *http.Request, aud token.Audience, sessionID string, genCheck bool) (token.Claims, error) {
	raw, err := token.BearerFromRequest(r)
	if err != nil {
		return token.Claims{}, err
	}
	var lookup token.SessionGenLookup
	if genCheck {
		lookup = s.sessionGen
	}
	return s.auth.Verify(raw, aud, sessionID, lookup)
}

func sessionIDParam(r *http.Request) string {
	return chi.URLParam(r, "id")
}
