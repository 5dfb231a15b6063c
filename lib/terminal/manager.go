// Package terminal runs interactive shells on pseudo-terminals and bridges them to
// websocket connections using JSON frames.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/onkernel/workspace-companion/lib/metrics"
	"github.com/onkernel/workspace-companion/lib/ptyio"
	"github.com/onkernel/workspace-companion/lib/wsutil"
)

var (
	// ErrSpawn is returned when the shell process could not be started.
	ErrSpawn = errors.New("failed to spawn shell")
	// ErrClosed is returned by Run once CloseAll has been called.
	ErrClosed = errors.New("terminal manager closed")
)

// Config controls how shells are started.
type Config struct {
	// Shell overrides DefaultShell when set.
	Shell string
	// Dir is the working directory of every shell.
	Dir  string
	Cols int
	Rows int
}

// Manager owns the registry of live sessions.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell()
	}
	if !ptyio.ValidDimensions(cfg.Cols, cfg.Rows) {
		cfg.Cols, cfg.Rows = 80, 24
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Run starts a shell for conn and blocks until the session ends, either because the
// shell exited or because the connection went away. The connection is closed on return.
func (m *Manager) Run(ctx context.Context, conn Conn) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.reject(conn, websocket.StatusGoingAway, "server shutting down")
		return ErrClosed
	}

	cmd, ptmx, err := spawn(m.cfg.Shell, m.cfg.Dir, m.cfg.Cols, m.cfg.Rows)
	if err != nil {
		m.log.Error("terminal spawn failed", "shell", m.cfg.Shell, "err", err)
		metrics.RecordTerminalEnd(outcomeSpawnFailed)
		m.reject(conn, websocket.StatusInternalError, "spawn failed")
		return err
	}

	s := newSession(uuid.NewString(), cmd, ptmx, conn, m.log)
	if !m.add(s) {
		s.stop(websocket.StatusGoingAway, "server shutting down", outcomeClosed)
	}
	s.log.Info("terminal session started", "pid", s.PID(), "shell", m.cfg.Shell)

	s.run(ctx)

	m.remove(s)
	s.log.Info("terminal session ended", "outcome", s.outcome)
	close(s.finished)
	return nil
}

// reject reports a session that never started and closes conn.
func (m *Manager) reject(conn Conn, code websocket.StatusCode, reason string) {
	b, _ := json.Marshal(ErrorMessage{Message: reason})
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		m.log.Debug("writing terminal error frame", "err", err)
	}
	_ = wsutil.Close(conn, code, reason, wsutil.DefaultCloseGrace)
}

func (m *Manager) add(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.sessions[s.id] = s
	metrics.SetTerminalSessions(len(m.sessions))
	return true
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.id]; ok {
		delete(m.sessions, s.id)
		metrics.SetTerminalSessions(len(m.sessions))
	}
	metrics.RecordTerminalEnd(s.outcome)
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll kills every live shell, closes its connection and waits for the sessions to
// finish tearing down. Later calls to Run are rejected. Safe to call more than once.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := lo.Values(m.sessions)
	m.mu.Unlock()

	if len(live) > 0 {
		m.log.Info("closing terminal sessions", "count", len(live))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range live {
		g.Go(func() error {
			s.stop(websocket.StatusGoingAway, "server shutting down", outcomeClosed)
			select {
			case <-s.finished:
				return nil
			case <-gctx.Done():
				return fmt.Errorf("terminal %s: %w", s.id, gctx.Err())
			}
		})
	}
	return g.Wait()
}
