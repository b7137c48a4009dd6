package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/navigator/codebook/internal/sse"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

func push(ch chan<- wsMessage, msg wsMessage) {
	select {
	case ch <- msg:
	default:
	}
}

// Terminal handles GET /api/sessions/{id}/ws. Each inbound {"line": ...}
// frame is dispatched and answered with a "result" frame; the session's
// broker events are forwarded as they happen.
//
//	@Summary		Interactive terminal stream
//	@Tags			sessions
//	@Param			id	path	string	true	"Session ID"
//	@Success		101	"Switching protocols"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/ws [get]
func (h *Handler) Terminal(broker *sse.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := h.sessions.Get(id); err != nil {
			writeError(w, "terminal ws", err)
			return
		}

		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		out := make(chan wsMessage, 32)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			ticker := time.NewTicker(wsPingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-out:
					if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
						return
					}
					if err := conn.WriteJSON(msg); err != nil {
						return
					}
				case <-ticker.C:
					if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
						return
					}
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		if broker != nil {
			events := broker.Subscribe(id)
			defer broker.Unsubscribe(events)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-events:
						if !ok {
							return
						}
						push(out, wsMessage{Type: ev.Type, Data: ev.Data})
					}
				}
			}()
		}

		slog.Debug("ws: connected", slog.String("session", id))
		defer slog.Debug("ws: disconnected", slog.String("session", id))

		for {
			var in wsInbound
			if err := conn.ReadJSON(&in); err != nil {
				cancel()
				<-writerDone
				return
			}
			switch strings.ToLower(strings.TrimSpace(in.Type)) {
			case "ping":
				push(out, wsMessage{Type: "pong"})
			case "", "command":
				res, prompt, err := h.sessions.Dispatch(ctx, id, in.Line)
				if err != nil {
					push(out, wsMessage{Type: "error", Error: err.Error()})
					continue
				}
				resp := newCommandResponse(res, prompt)
				push(out, wsMessage{Type: "result", Result: &resp})
			default:
				push(out, wsMessage{Type: "error", Error: "unknown frame type: " + in.Type})
			}
		}
	}
}
