package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"instafund/internal/challenge"
	"instafund/internal/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	statsSnapshotType = "dashboard_stats"
	writeWait         = 5 * time.Second
)

// ProgressReader supplies the dashboard snapshot pushed after each event.
type ProgressReader interface {
	Progress(ctx context.Context, traderID string) (challenge.Progress, error)
}

// WSHandler streams a trader's own account events. Settings changes are
// broadcast to everyone since they affect every evaluation.
type WSHandler struct {
	bus      *events.Bus
	authSvc  TokenParser
	progress ProgressReader
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *events.Bus, authSvc TokenParser, progress ProgressReader, origin string) *WSHandler {
	return &WSHandler{
		bus:      bus,
		authSvc:  authSvc,
		progress: progress,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" || origin == "" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	// Allow both localhost and 127.0.0.1 variants for development
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func visibleTo(evt events.Event, userID string) bool {
	if evt.TraderID == "" {
		return evt.Type == events.TypeSettingsUpdated
	}
	return evt.TraderID == userID
}

func (h *WSHandler) snapshot(ctx context.Context, userID string) (events.Event, bool) {
	if h.progress == nil {
		return events.Event{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	p, err := h.progress.Progress(ctx, userID)
	if err != nil {
		return events.Event{}, false
	}
	return events.Event{Type: statsSnapshotType, TraderID: userID, Data: p, TS: time.Now().UTC()}, true
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// browsers cannot set headers on a websocket handshake
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.authSvc.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	write := func(evt events.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(evt)
	}

	if evt, ok := h.snapshot(r.Context(), userID); ok {
		if err := write(evt); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !visibleTo(evt, userID) {
				continue
			}
			if err := write(evt); err != nil {
				log.Debug().Err(err).Str("trader_id", userID).Msg("ws write failed")
				return
			}
			if snap, ok := h.snapshot(r.Context(), userID); ok {
				if err := write(snap); err != nil {
					return
				}
			}
		case <-done:
			return
		}
	}
}
