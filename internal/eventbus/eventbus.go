// Package eventbus is the per-session publish-subscribe fan-out feeding
// duplex client streams, grounded directly in the teacher's collab
// service's Hub/Room/Client shape (internal/session/hub.go, room.go,
// client.go), generalized from document-edit broadcast to the event kinds
// in spec.md §4.6.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Kind enumerates the fan-out event types spec.md §4.6 names.
type Kind string

const (
	QuestionCreated  Kind = "QUESTION_CREATED"
	AnswerRecorded   Kind = "ANSWER_RECORDED"
	StrikeCreated    Kind = "STRIKE_CREATED"
	SessionPaused    Kind = "SESSION_PAUSED"
	SessionResumed   Kind = "SESSION_RESUMED"
	SessionEnded     Kind = "SESSION_ENDED"
	SessionCompleted Kind = "SESSION_COMPLETED"
	FeedbackCreated  Kind = "FEEDBACK_CREATED"
)

// Event is one fan-out frame. ID is a stable per-session monotonic counter
// so a reconnecting client may request replay of anything still buffered.
type Event struct {
	ID   int64 `json:"id"`
	Type Kind  `json:"type"`
	Data any   `json:"data"`
}

const ringCapacity = 256

// Hub owns one Room per active session, mirroring collab's Hub.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*Room)} }

// GetOrCreate returns the room for a session, creating it if absent.
func (h *Hub) GetOrCreate(sessionID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[sessionID]; ok {
		return r
	}
	r := newRoom(sessionID)
	h.rooms[sessionID] = r
	return r
}

// Delete drops a session's room, closing every subscriber.
func (h *Hub) Delete(sessionID string) {
	h.mu.Lock()
	r, ok := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()
	if ok {
		r.CloseSubscribers()
	}
}

// Room holds the ring buffer and subscriber set for one session.
type Room struct {
	id string

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	ring        []Event
	nextID      int64
}

func newRoom(id string) *Room {
	return &Room{
		id:          id,
		subscribers: make(map[*Subscriber]struct{}),
		ring:        make([]Event, 0, ringCapacity),
	}
}

// Subscribe registers a new subscriber and returns it along with any
// buffered events with ID > since, for replay on reconnect.
func (r *Room) Subscribe(since int64) (*Subscriber, []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &Subscriber{ch: make(chan Event, 32)}
	r.subscribers[sub] = struct{}{}

	var backlog []Event
	for _, ev := range r.ring {
		if ev.ID > since {
			backlog = append(backlog, ev)
		}
	}
	return sub, backlog
}

// Unsubscribe removes a subscriber from the room.
func (r *Room) Unsubscribe(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[sub]; ok {
		delete(r.subscribers, sub)
		close(sub.ch)
	}
}

// Publish appends the event to the ring and fans it out without blocking
// the caller. A subscriber whose buffer is full is dropped with
// slow_consumer rather than backpressuring the writer, which matters
// because the State Machine publishes while holding the session's write
// lock — the invariant spec.md §9 and §5 both call out by name.
func (r *Room) Publish(kind Kind, data any) Event {
	r.mu.Lock()
	r.nextID++
	ev := Event{ID: r.nextID, Type: kind, Data: data}
	r.ring = append(r.ring, ev)
	if len(r.ring) > ringCapacity {
		r.ring = r.ring[len(r.ring)-ringCapacity:]
	}
	subs := make([]*Subscriber, 0, len(r.subscribers))
	for s := range r.subscribers {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			r.dropSlow(s)
		}
	}
	return ev
}

func (r *Room) dropSlow(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[sub]; ok {
		delete(r.subscribers, sub)
		sub.slow.Store(true)
		close(sub.ch)
	}
}

// CloseSubscribers closes every current subscriber's channel without
// dropping the room itself: the ring buffer survives so a client that
// reconnects after the close (e.g. after a pause/resume cycle) can still
// request replay via Subscribe's since parameter. Callers that publish a
// terminal event immediately before calling this give every subscriber a
// chance to drain that event from its buffer before seeing the channel
// close, since close of a buffered channel does not discard unread values.
func (r *Room) CloseSubscribers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.subscribers {
		close(s.ch)
	}
	r.subscribers = make(map[*Subscriber]struct{})
}

// Subscriber is a duplex connection's read side onto a Room.
type Subscriber struct {
	ch   chan Event
	slow atomic.Bool
}

// Events returns the channel to range over; it is closed when the
// subscriber is dropped, either explicitly (Unsubscribe) or for being slow.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// SlowConsumer reports whether this subscriber was dropped for falling
// behind rather than unsubscribing cleanly. The gateway uses this to choose
// the terminal close frame/code.
func (s *Subscriber) SlowConsumer() bool { return s.slow.Load() }
