package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"peerprep/interview/internal/eventbus"
)

// TestStreamClosesOnSessionEnded dials the real /interview/{id}/stream
// websocket endpoint (not the hub directly) and drives scenario 3 of
// spec.md §8: a single SCREENSHOT_ATTEMPT auto-ends the session, and the
// duplex stream must receive SESSION_ENDED and then be closed
// server-side, per spec.md §4.3/§5's "closes any open duplex streams with
// an appropriate terminal frame".
func TestStreamClosesOnSessionEnded(t *testing.T) {
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

	_, wstBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/token/refresh", "", nil)
	wst, _ := wstBody["wst"].(string)
	if wst == "" {
		t.Fatalf("expected a wst from refresh while Active, got %v", wstBody)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/interview/" + sessionID + "/stream?token=" + wst
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	acHash := firstReadyHash(t, client, ts, sessionID)
	resp, acBody := doJSON(t, client, http.MethodPost, ts.URL+"/interview/"+sessionID+"/anti-cheat", acet, map[string]any{
		"events": []map[string]any{wireEventBody(2, acHash, "SCREENSHOT_ATTEMPT")},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("screenshot batch: %d %v", resp.StatusCode, acBody)
	}

	// The backlog replayed on connect (SessionResumed, QuestionCreated from
	// the setup above) arrives before SESSION_ENDED; skip past it rather
	// than assume an exact count.
	deadline := time.Now().Add(2 * time.Second)
	var ended eventbus.Event
	for {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for SESSION_ENDED")
		}
		conn.SetReadDeadline(deadline)
		if err := conn.ReadJSON(&ended); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if ended.Type == eventbus.SessionEnded {
			break
		}
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a websocket close error after SESSION_ENDED, got %v", err)
	}
	if closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal closure, got code %d (%s)", closeErr.Code, closeErr.Text)
	}
}
