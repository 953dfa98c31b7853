package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/token"
)

const closeWriteWait = 5 * time.Second

// handleStream upgrades to the duplex event stream for a session, bound to
// a wst passed as a query parameter (browsers cannot set a WebSocket
// Authorization header), grounded on the teacher's collab Hub/Room/Client
// shape generalized from document-edit fan-out to interview events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)

	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeError(w, apperrors.New(apperrors.TokenMissing, "missing token query parameter"))
		return
	}
	if _, err := s.auth.Verify(raw, token.AudienceWST, id, s.sessionGen); err != nil {
		writeError(w, err)
		return
	}

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		since, _ = strconv.ParseInt(v, 10, 64)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	room := s.hub.GetOrCreate(id)
	sub, backlog := room.Subscribe(since)
	defer room.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range backlog {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// The room closed this subscriber: either the session left
				// Active (a normal, expected terminal close — the frame
				// announcing it was already drained above) or this
				// connection fell behind and was dropped as a slow
				// consumer. spec.md §4.6 names slow_consumer explicitly, so
				// the close reason distinguishes the two server-side.
				code := websocket.CloseNormalClosure
				reason := "session left active state"
				if sub.SlowConsumer() {
					code = websocket.ClosePolicyViolation
					reason = "slow_consumer"
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteWait))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
