package httpapi

import (
	"encoding/json"
	"net/http"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/statemachine"
	"peerprep/interview/internal/token"
)

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	IST       string `json:"ist"`
	NextStep  string `json:"nextStep"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verifyCookieOrBearer(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var cfg models.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "invalid session config body"))
		return
	}

	session, err := s.store.CreateSession(r.Context(), claims.Subject, cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	ist, _, err := s.auth.Mint(token.MintParams{
		Audience: token.AudienceIST, SessionID: session.ID, TTL: token.TTLIST, TokenGen: session.TokenGen,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: session.ID, IST: ist, NextStep: "precheck"})
}

// verifyCookieOrBearer accepts either the session cookie or a bearer User
// token, for endpoints spec.md marks plain "User" auth rather than "session
// cookie" specifically.
func (s *Server) verifyCookieOrBearer(r *http.Request) (token.Claims, error) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return s.auth.Verify(c.Value, token.AudienceUser, "", nil)
	}
	return s.verifyBearer(r, token.AudienceUser, "", false)
}

type issueTokenResponse struct {
	ACET string `json:"acet,omitempty"`
	AIPT string `json:"aipt,omitempty"`
}

func (s *Server) handleIssueACET(w http.ResponseWriter, r *http.Request) {
	if _, err := s.verifyCookie(r); err != nil {
		writeError(w, err)
		return
	}
	id := sessionIDParam(r)
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	tok, _, err := s.auth.Mint(token.MintParams{Audience: token.AudienceACET, SessionID: id, TTL: token.TTLACET, TokenGen: session.TokenGen})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issueTokenResponse{ACET: tok})
}

func (s *Server) handleIssueAIPT(w http.ResponseWriter, r *http.Request) {
	if _, err := s.verifyCookie(r); err != nil {
		writeError(w, err)
		return
	}
	id := sessionIDParam(r)
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	tok, _, err := s.auth.Mint(token.MintParams{Audience: token.AudienceAIPT, SessionID: id, TTL: token.TTLAIPT, TokenGen: session.TokenGen})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issueTokenResponse{AIPT: tok})
}

type refreshResponse struct {
	IST string `json:"ist,omitempty"`
	WST string `json:"wst,omitempty"`
}

func (s *Server) handleRefreshTokens(w http.ResponseWriter, r *http.Request) {
	if _, err := s.verifyCookie(r); err != nil {
		writeError(w, err)
		return
	}
	id := sessionIDParam(r)
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if session.State.Terminal() {
		writeJSON(w, http.StatusOK, refreshResponse{})
		return
	}

	var resp refreshResponse
	ist, _, err := s.auth.Mint(token.MintParams{Audience: token.AudienceIST, SessionID: id, TTL: token.TTLIST, TokenGen: session.TokenGen})
	if err != nil {
		writeError(w, err)
		return
	}
	resp.IST = ist

	if session.State == models.StateActive || session.State == models.StatePaused {
		wst, _, err := s.auth.Mint(token.MintParams{Audience: token.AudienceWST, SessionID: id, TTL: token.TTLWST, TokenGen: session.TokenGen})
		if err != nil {
			writeError(w, err)
			return
		}
		resp.WST = wst
	}

	writeJSON(w, http.StatusOK, resp)
}

type precheckRequest struct {
	SessionID string            `json:"sessionId"`
	Checks    map[string]string `json:"checks"`
	Events    []wireEvent       `json:"events"`
}

type precheckResponse struct {
	PrecheckID    string `json:"precheckId"`
	OverallStatus string `json:"overallStatus"`
	CanProceed    bool   `json:"canProceed"`
}

func (s *Server) handlePrecheck(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyBearer(r, token.AudienceACET, id, false); err != nil {
		writeError(w, err)
		return
	}

	var req precheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "invalid precheck body"))
		return
	}

	status, canProceed, err := s.ac.SubmitPrecheck(r.Context(), id, req.Checks, toIncomingEvents(req.Events))
	if err != nil {
		writeError(w, err)
		return
	}
	if canProceed {
		if _, err := s.sm.Transition(r.Context(), id, models.StateReady, statemachine.CausePrecheckPassed); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, precheckResponse{PrecheckID: id + ":precheck", OverallStatus: status, CanProceed: canProceed})
}

type startResponse struct {
	WST string `json:"wst"`
	AIPT string `json:"aipt"`
	UPT string `json:"upt"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if _, err := s.verifyCookie(r); err != nil {
		writeError(w, err)
		return
	}
	id := sessionIDParam(r)
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if session.State != models.StateReady {
		writeError(w, apperrors.New(apperrors.InvalidState, "session is not ready to start"))
		return
	}

	wst, _, err := s.auth.Mint(token.MintParams{Audience: token.AudienceWST, SessionID: id, TTL: token.TTLWST, TokenGen: session.TokenGen})
	if err != nil {
		writeError(w, err)
		return
	}
	aipt, _, err := s.auth.Mint(token.MintParams{Audience: token.AudienceAIPT, SessionID: id, TTL: token.TTLAIPT, TokenGen: session.TokenGen})
	if err != nil {
		writeError(w, err)
		return
	}
	upt, err := s.upload.IssueCapability(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, startResponse{WST: wst, AIPT: aipt, UPT: upt})
}
