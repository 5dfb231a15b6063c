// Package wsutil holds small helpers shared by the websocket endpoints.
package wsutil

import (
	"time"

	"github.com/coder/websocket"
)

// DefaultCloseGrace is how long Close waits for the peer to answer a close frame.
const DefaultCloseGrace = time.Second

// Closer is the closing half of *websocket.Conn.
type Closer interface {
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// Close sends a close frame and waits up to grace for the peer's reply. A peer that
// does not answer in time has its connection dropped; it still receives the frame.
func Close(c Closer, code websocket.StatusCode, reason string, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- c.Close(code, reason) }()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return c.CloseNow()
	}
}
