package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
	"github.com/roman-kulish/environmental-monitor/internal/stream"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// StreamHandler serves GET /api/sessions/{id}/stream. The client receives the
// session window first and then every sample pushed to it. While the store cannot
// be read the client gets an "unavailable" frame and the window follows once it
// recovers. The session is closed when the client disconnects.
func (h *Handler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.dist.Session(id); err != nil {
		h.respondStreamError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	defer func() {
		if err := h.dist.Close(id); err != nil && !errors.Is(err, stream.ErrUnknownSession) {
			h.logger.Warn("closing session failed", slog.String("session", id), slog.String("error", err.Error()))
		}
	}()

	logger := h.logger.With(slog.String("session", id))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is needed to process pongs and to notice the client going away
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	samples, err := h.dist.Window(ctx, id)
	if errors.Is(err, stream.ErrUnavailable) {
		logger.Warn("store unavailable, waiting to load window", slog.String("error", err.Error()))
		if err = writeJSON(conn, streamMessage{Type: "unavailable"}); err != nil {
			return
		}
	}
	for errors.Is(err, stream.ErrUnavailable) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.dist.TickInterval()):
		}
		samples, err = h.dist.Window(ctx, id)
	}
	if err != nil {
		logger.Warn("loading window failed", slog.String("error", err.Error()))
		return
	}
	if err = writeJSON(conn, streamMessage{Type: "window", Samples: samples}); err != nil {
		logger.Debug("writing window failed", slog.String("error", err.Error()))
		return
	}

	updates := make(chan sample.Sample)
	runErr := make(chan error, 1)
	go func() { runErr <- h.dist.Run(ctx, id, updates) }()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case s := <-updates:
			if err = writeJSON(conn, streamMessage{Type: "sample", Sample: &s}); err != nil {
				logger.Debug("writing sample failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			if err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}

		case err = <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Debug("session stream ended", slog.String("error", err.Error()))
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}

	return slices.ContainsFunc(h.allowedOrigins, func(allowed string) bool {
		return allowed == "*" || strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, u.Hostname())
	})
}
