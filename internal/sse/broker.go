// Package sse implements the event broker behind the Server-Sent Events
// stream and the per-session websocket feed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeObjectiveCompleted = "objective.completed"
	TypeChallengeCompleted = "challenge.completed"
	TypeEvidenceUnlocked   = "evidence.unlocked"
	TypeScenarioUpdated    = "scenario.updated"
	TypeProgressUpdated    = "progress.updated"
)

// Event is one broadcast message. Session scopes it to subscribers of that
// session; an empty Session reaches everyone.
type Event struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Data    any    `json:"data"`
}

type progressReq struct {
	user string
	data any
}

type subscribeReq struct {
	ch      chan Event
	session string
}

// Broker fans events out to subscribers.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + progress throttle). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan Event
	publishCh     chan Event
	progressCh    chan progressReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits progress.updated at most once per
// progressThrottle for each user.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 2 * time.Second
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		progressCh:    make(chan progressReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan Event]string)
	lastProgress := make(map[string]time.Time)
	pending := make(map[string]any)
	ticker := time.NewTicker(b.progressMin)
	defer ticker.Stop()

	broadcast := func(event Event) {
		for ch, session := range clients {
			if session != "" && event.Session != "" && session != event.Session {
				continue
			}
			select {
			case ch <- event:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}
	sendProgress := func(user string, data any, now time.Time) {
		lastProgress[user] = now
		broadcast(Event{Type: TypeProgressUpdated, Data: data})
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = req.session

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.progressCh:
			now := time.Now()
			if now.Sub(lastProgress[req.user]) >= b.progressMin {
				delete(pending, req.user)
				sendProgress(req.user, req.data, now)
			} else {
				// Keep only the latest; the ticker flushes it.
				pending[req.user] = req.data
			}

		case now := <-ticker.C:
			for user, data := range pending {
				if now.Sub(lastProgress[user]) >= b.progressMin {
					delete(pending, user)
					sendProgress(user, data, now)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel. A non-empty session
// limits delivery to that session's events plus global ones.
func (b *Broker) Subscribe(session string) chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, session: session}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all matching clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishProgress emits progress.updated for user, throttled per user. A
// burst collapses into its latest snapshot.
func (b *Broker) PublishProgress(user string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.progressCh <- progressReq{user: user, data: data}:
	case <-b.stopped:
	}
}

// Frame renders an event as an SSE frame.
func Frame(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload), nil
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// session query parameter narrows the stream.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("session"))
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			msg, err := Frame(event)
			if err != nil {
				continue
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
