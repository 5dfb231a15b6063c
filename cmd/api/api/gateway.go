package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/onkernel/workspace-companion/lib/fswatch"
	"github.com/onkernel/workspace-companion/lib/logger"
	"github.com/onkernel/workspace-companion/lib/wsutil"
)

const (
	filesSocketPath    = "/ws/files"
	terminalSocketPath = "/ws/terminal"

	socketWriteTimeout = 5 * time.Second
)

// upgradeGateway sends every websocket upgrade to handleUpgrade regardless of route.
func (s *ApiService) upgradeGateway(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		s.handleUpgrade(w, r)
	})
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// handleUpgrade accepts the socket and dispatches on path: file change subscribers,
// terminal sessions, or a policy-violation close for anything else.
func (s *ApiService) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if !s.acquireSocket() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sockets.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		log.Warn("websocket accept failed", "path", r.URL.Path, "err", err)
		return
	}
	defer conn.CloseNow()

	switch r.URL.Path {
	case filesSocketPath:
		s.serveFileEvents(ctx, conn)
	case terminalSocketPath:
		if err := s.terminals.Run(ctx, conn); err != nil {
			log.Warn("terminal session not started", "err", err)
		}
	default:
		log.Info("rejecting websocket on unknown path", "path", r.URL.Path)
		wsutil.Close(conn, websocket.StatusPolicyViolation, "unknown endpoint", wsutil.DefaultCloseGrace)
	}
}

type connectedFrame struct {
	Type string `json:"type"`
}

type fileChangeFrame struct {
	Type string `json:"type"`
	fswatch.Notification
}

// serveFileEvents forwards broadcaster notifications until the client goes away or the
// broadcaster closes the subscription. Client frames are read and discarded.
func (s *ApiService) serveFileEvents(ctx context.Context, conn *websocket.Conn) {
	log := logger.FromContext(ctx)

	sub, err := s.broadcaster.Subscribe()
	if err != nil {
		wsutil.Close(conn, websocket.StatusGoingAway, "server shutting down", wsutil.DefaultCloseGrace)
		return
	}
	defer s.broadcaster.Unsubscribe(sub)
	log = log.With("subscriber_id", sub.ID)
	log.Debug("file subscriber connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(ctx, conn, connectedFrame{Type: "connected"}); err != nil {
		log.Debug("file subscriber write failed", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug("file subscriber disconnected")
			return
		case n, ok := <-sub.C:
			if !ok {
				wsutil.Close(conn, websocket.StatusGoingAway, "server shutting down", wsutil.DefaultCloseGrace)
				return
			}
			if err := writeFrame(ctx, conn, fileChangeFrame{Type: "fileChange", Notification: n}); err != nil {
				log.Debug("file subscriber write failed", "err", err)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
