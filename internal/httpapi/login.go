package httpapi

import (
	"encoding/json"
	"net/http"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/token"
)

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin mints a User-audience token, sets it as an HttpOnly session
// cookie, and also returns it in the body for clients that prefer a bearer
// token — spec.md §6's exact contract.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "email is required"))
		return
	}

	tok, _, err := s.auth.Mint(token.MintParams{
		Subject:  req.Email,
		Audience: token.AudienceUser,
		TTL:      token.TTLUser,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    tok,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		Domain:   s.cfg.CookieDomain,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: tok})
}
