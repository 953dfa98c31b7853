package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"peerprep/interview/internal/aiproxy"
	"peerprep/interview/internal/anticheat"
	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/config"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/policy"
	"peerprep/interview/internal/statemachine"
	"peerprep/interview/internal/store/storetest"
	"peerprep/interview/internal/token"
	"peerprep/interview/internal/upload"

	"go.uber.org/zap"
)

// newTestServer wires every component the way cmd/server/main.go does, but
// against an in-memory SQLite store and the deterministic AI provider, so
// the gateway's routing, auth, and error-mapping can be exercised end to
// end without network or Docker dependencies.
func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	st := storetest.Open(t)
	auth := token.New("test-secret")
	hub := eventbus.NewHub()
	sm := statemachine.New(st, hub)

	pol, err := policy.Load()
	if err != nil {
		t.Fatalf("policy.Load: %v", err)
	}
	ac := anticheat.New(st, hub, sm, pol)
	ai := aiproxy.New(aiproxy.NewFallback(), nil)
	up := upload.New(st, auth, t.TempDir())

	cfg := &config.Config{AllowedOrigins: []string{"http://localhost:5173"}}
	srv := New(cfg, zap.NewNop(), st, auth, sm, hub, ac, ai, nil, up)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, srv
}

func doJSON(t *testing.T, client *http.Client, method, rawURL, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, rawURL, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func loginAndCookieClient(t *testing.T, ts *httptest.Server) (*http.Client, string) {
	t.Helper()
	client := &http.Client{}
	resp, body := doJSON(t, client, http.MethodPost, ts.URL+"/auth/login", "", map[string]string{"email": "alex@example.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d %v", resp.StatusCode, body)
	}
	userToken, _ := body["token"].(string)
	if userToken == "" {
		t.Fatalf("expected a user token in login response, got %v", body)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("new cookie jar: %v", err)
	}
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	jar.SetCookies(u, resp.Cookies())
	client.Jar = jar
	return client, userToken
}

func sessionConfigBody() map[string]any {
	return map[string]any{
		"roleCategory":            "QA",
		"experienceYears":         5,
		"experienceMonths":        0,
		"modes":                   []string{"behavioral"},
		"questionCount":           2,
		"durationLimit":           30,
		"language":                "en-us",
		"difficulty":              "adaptive",
		"companyTargets":          []string{},
		"includeCuratedQuestions": true,
		"allowAIGenerated":        true,
		"consentRecording":        true,
		"consentAntiCheat":        true,
		"consentTimestamp":        "2025-11-02T12:00:00Z",
	}
}

func wireEventBody(seq int64, prevHash, typ string) map[string]any {
	return map[string]any{
		"seq":      seq,
		"type":     typ,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"prevHash": prevHash,
	}
}

// TestHappyPath drives scenario 1 of spec.md §8 end to end: login, create,
// precheck, start, two next-question/answer rounds, finalize.
func TestHappyPath(t *testing.T) {
	ts, srv := newTestServer(t)
	client, _ := loginAndCookieClient(t, ts)

	resp, created := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %d %v", resp.StatusCode, created)
	}
	sessionID, _ := created["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("expected sessionId in response, got %v", created)
	}

	resp, acetBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/acet", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue acet: %d %v", resp.StatusCode, acetBody)
	}
	acet, _ := acetBody["acet"].(string)

	precheckBody := map[string]any{
		"sessionId": sessionID,
		"checks":    map[string]string{"camera": "pass", "mic": "pass"},
		"events":    []map[string]any{wireEventBody(1, "", "FS_READY")},
	}
	resp, precheck := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/precheck", acet, precheckBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("precheck: %d %v", resp.StatusCode, precheck)
	}
	if canProceed, _ := precheck["canProceed"].(bool); !canProceed {
		t.Fatalf("expected canProceed=true, got %v", precheck)
	}

	resp, startBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/start", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %v", resp.StatusCode, startBody)
	}
	aipt, _ := startBody["aipt"].(string)
	wst, _ := startBody["wst"].(string)
	if aipt == "" || wst == "" {
		t.Fatalf("expected aipt and wst in start response, got %v", startBody)
	}

	// Subscribe directly on the hub, the way a duplex connection would,
	// to observe fan-out ordering without driving a real websocket.
	sub, _ := srv.hub.GetOrCreate(sessionID).Subscribe(0)

	for i := 0; i < 2; i++ {
		resp, nq := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/next-question", aipt, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("next-question #%d: %d %v", i+1, resp.StatusCode, nq)
		}
		questionID, _ := nq["questionId"].(string)
		if questionID == "" {
			t.Fatalf("expected questionId, got %v", nq)
		}

		ist := created["ist"].(string)
		answerBody := map[string]any{
			"questionId":        questionID,
			"kind":              "text",
			"payload":           map[string]any{"text": "My answer."},
			"timeSpentSeconds":  30,
		}
		resp, ans := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/answer", ist, answerBody)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("answer #%d: %d %v", i+1, resp.StatusCode, ans)
		}
	}

	ist := created["ist"].(string)
	resp, fin := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/finalize", ist, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize: %d %v", resp.StatusCode, fin)
	}

	resp, state := doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/state", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d %v", resp.StatusCode, state)
	}
	if state["state"] != string(models.StateCompleted) {
		t.Fatalf("expected state=Completed, got %v", state)
	}
	if asked, _ := state["askedCount"].(float64); int(asked) != 2 {
		t.Fatalf("expected askedCount=2, got %v", state)
	}

	// The first next-question call also drives the Ready->Active
	// transition (spec.md §4.3's "first question requested" edge),
	// which fans out its own state-changed event ahead of the question
	// itself.
	wantOrder := []eventbus.Kind{
		eventbus.SessionResumed,
		eventbus.QuestionCreated, eventbus.AnswerRecorded, eventbus.FeedbackCreated,
		eventbus.QuestionCreated, eventbus.AnswerRecorded, eventbus.FeedbackCreated,
		eventbus.SessionCompleted,
	}
	for i, want := range wantOrder {
		select {
		case ev := <-sub.Events():
			if ev.Type != want {
				t.Fatalf("event %d: got %s, want %s", i, ev.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d (%s): timed out waiting for fan-out", i, want)
		}
	}
}

// TestChainBreak drives scenario 2: an out-of-sequence batch is rejected
// with chain_broken and the stored tail is left unchanged.
func TestChainBreak(t *testing.T) {
	ts, _ := newTestServer(t)
	client, _ := loginAndCookieClient(t, ts)

	_, created := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	sessionID := created["sessionId"].(string)

	_, acetBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/acet", "", nil)
	acet := acetBody["acet"].(string)

	first := wireEventBody(1, "", "FS_READY")
	resp, tail := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/anti-cheat", acet, map[string]any{
		"events": []map[string]any{first},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first batch: %d %v", resp.StatusCode, tail)
	}
	firstHash, _ := tail["tailHash"].(string)

	broken := wireEventBody(3, firstHash, "FS_READY")
	resp, errBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/anti-cheat", acet, map[string]any{
		"events": []map[string]any{broken},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on chain break, got %d %v", resp.StatusCode, errBody)
	}
	if errBody["kind"] != string(apperrors.ChainBroken) {
		t.Fatalf("expected chain_broken, got %v", errBody)
	}

	resp, tailAfter := doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/anti-cheat/tail", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tail: %d %v", resp.StatusCode, tailAfter)
	}
	if tailAfter["seq"].(float64) != 1 || tailAfter["hash"].(string) != firstHash {
		t.Fatalf("expected tail unchanged at seq=1, got %v", tailAfter)
	}
}

// TestAutoEndOnScreenshot drives scenario 3: a single SCREENSHOT_ATTEMPT
// event ends the session immediately and closes out further writes.
func TestAutoEndOnScreenshot(t *testing.T) {
	ts, _ := newTestServer(t)
	client, _ := loginAndCookieClient(t, ts)

	_, created := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	sessionID := created["sessionId"].(string)
	ist := created["ist"].(string)

	_, acetBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/acet", "", nil)
	acet := acetBody["acet"].(string)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/precheck", acet, map[string]any{
		"sessionId": sessionID,
		"checks":    map[string]string{"camera": "pass"},
		"events":    []map[string]any{wireEventBody(1, "", "FS_READY")},
	})
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/start", "", nil)

	_, aiptBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/aipt", "", nil)
	aipt := aiptBody["aipt"].(string)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/next-question", aipt, nil)

	resp, acBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/anti-cheat", acet, map[string]any{
		"events": []map[string]any{wireEventBody(2, firstReadyHash(t, client, ts, sessionID), "SCREENSHOT_ATTEMPT")},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("screenshot batch: %d %v", resp.StatusCode, acBody)
	}

	// Policy evaluation runs synchronously on the ingest call, but the
	// resulting state transition happens on its own lock acquisition;
	// poll briefly for it to land.
	deadline := time.Now().Add(2 * time.Second)
	var state map[string]any
	for time.Now().Before(deadline) {
		_, state = doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/state", "", nil)
		if state["state"] == string(models.StateEnded) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if state["state"] != string(models.StateEnded) {
		t.Fatalf("expected state=Ended after SCREENSHOT_ATTEMPT, got %v", state)
	}

	resp, ansErr := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/answer", ist, map[string]any{
		"questionId": "whatever", "kind": "text", "payload": map[string]any{"text": "x"},
	})
	if resp.StatusCode != http.StatusConflict || ansErr["kind"] != string(apperrors.InvalidState) {
		t.Fatalf("expected invalid_state after session ended, got %d %v", resp.StatusCode, ansErr)
	}
}

// firstReadyHash replays the known first-event hash computation via the
// tail endpoint, since the FS_READY precheck event is already accepted by
// the time the caller wants to chain its next batch.
func firstReadyHash(t *testing.T, client *http.Client, ts *httptest.Server, sessionID string) string {
	t.Helper()
	resp, tail := doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/anti-cheat/tail", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tail: %d %v", resp.StatusCode, tail)
	}
	return tail["hash"].(string)
}

// TestAutoPauseThenResume drives scenario 4: FS_EXIT pauses the session
// and a timely FS_READY resumes it. Omitting the rescinding event would
// escalate to Ended after the 10s countdown; that leg is covered at the
// anticheat package level (see internal/anticheat/policy_test.go's
// TestAutoPauseEscalatesToEndedWithoutRescission) rather than here, to
// keep this gateway test fast.
func TestAutoPauseThenResume(t *testing.T) {
	ts, _ := newTestServer(t)
	client, _ := loginAndCookieClient(t, ts)

	_, created := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	sessionID := created["sessionId"].(string)

	_, acetBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/acet", "", nil)
	acet := acetBody["acet"].(string)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/precheck", acet, map[string]any{
		"sessionId": sessionID,
		"checks":    map[string]string{"camera": "pass"},
		"events":    []map[string]any{wireEventBody(1, "", "FS_READY")},
	})
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/start", "", nil)
	_, aiptBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/aipt", "", nil)
	aipt := aiptBody["aipt"].(string)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/next-question", aipt, nil)

	hash1 := firstReadyHash(t, client, ts, sessionID)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/anti-cheat", acet, map[string]any{
		"events": []map[string]any{wireEventBody(2, hash1, "FS_EXIT")},
	})

	deadline := time.Now().Add(2 * time.Second)
	var state map[string]any
	for time.Now().Before(deadline) {
		_, state = doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/state", "", nil)
		if state["state"] == string(models.StatePaused) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if state["state"] != string(models.StatePaused) {
		t.Fatalf("expected state=Paused after FS_EXIT, got %v", state)
	}

	hash2 := firstReadyHash(t, client, ts, sessionID)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/anti-cheat", acet, map[string]any{
		"events": []map[string]any{wireEventBody(3, hash2, "FS_READY")},
	})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, state = doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/state", "", nil)
		if state["state"] == string(models.StateActive) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if state["state"] != string(models.StateActive) {
		t.Fatalf("expected state=Active after FS_READY rescinds the pause, got %v", state)
	}
}

// TestTokenWrongSession drives scenario 5: an AIPT minted for session A is
// rejected with token_wrong_session when used against session B.
func TestTokenWrongSession(t *testing.T) {
	ts, _ := newTestServer(t)
	client, _ := loginAndCookieClient(t, ts)

	_, createdA := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	sessionA := createdA["sessionId"].(string)
	_, createdB := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	sessionB := createdB["sessionId"].(string)

	_, aiptBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionA+"/token/aipt", "", nil)
	aiptForA := aiptBody["aipt"].(string)

	resp, errBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionB+"/next-question", aiptForA, nil)
	if resp.StatusCode != http.StatusUnauthorized || errBody["kind"] != string(apperrors.TokenWrongSession) {
		t.Fatalf("expected token_wrong_session, got %d %v", resp.StatusCode, errBody)
	}

	resp, state := doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionB+"/state", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d %v", resp.StatusCode, state)
	}
	if asked, _ := state["askedCount"].(float64); int(asked) != 0 {
		t.Fatalf("expected no question created on session B, got %v", state)
	}
}

// TestRefreshAfterTerminal drives scenario 6: once a session is finalized,
// /token/refresh returns no IST/WST and does not revive the session.
func TestRefreshAfterTerminal(t *testing.T) {
	ts, _ := newTestServer(t)
	client, _ := loginAndCookieClient(t, ts)

	_, created := doJSON(t, client, http.MethodPost, ts.URL+"/interview/sessions", "", sessionConfigBody())
	sessionID := created["sessionId"].(string)
	ist := created["ist"].(string)

	_, acetBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/acet", "", nil)
	acet := acetBody["acet"].(string)
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/precheck", acet, map[string]any{
		"sessionId": sessionID,
		"checks":    map[string]string{"camera": "pass"},
		"events":    []map[string]any{wireEventBody(1, "", "FS_READY")},
	})
	doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/start", "", nil)
	_, aiptBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/aipt", "", nil)
	aipt := aiptBody["aipt"].(string)
	resp, nq := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/next-question", aipt, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next-question: %d %v", resp.StatusCode, nq)
	}

	resp, fin := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/finalize", ist, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize: %d %v", resp.StatusCode, fin)
	}

	resp, refresh := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/refresh", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: %d %v", resp.StatusCode, refresh)
	}
	if _, ok := refresh["ist"]; ok {
		t.Fatalf("expected no ist in refresh response after terminal, got %v", refresh)
	}
	if _, ok := refresh["wst"]; ok {
		t.Fatalf("expected no wst in refresh response after terminal, got %v", refresh)
	}

	resp, state := doJSON(t, client, http.MethodGet, ts.URL+"/interview/"+sessionID+"/state", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d %v", resp.StatusCode, state)
	}
	if state["state"] != string(models.StateCompleted) {
		t.Fatalf("expected refresh to leave state=Completed untouched, got %v", state)
	}
}
