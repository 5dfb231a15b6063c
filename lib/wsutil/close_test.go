package wsutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	block    chan struct{}
	nowCalls int
}

func (f *fakeCloser) Close(websocket.StatusCode, string) error {
	<-f.block
	return nil
}

func (f *fakeCloser) CloseNow() error {
	f.nowCalls++
	close(f.block)
	return nil
}

func TestCloseDropsUnresponsivePeer(t *testing.T) {
	f := &fakeCloser{block: make(chan struct{})}

	start := time.Now()
	require.NoError(t, Close(f, websocket.StatusGoingAway, "bye", 50*time.Millisecond))
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, f.nowCalls)
}

func TestClosePeerStillSeesCloseFrame(t *testing.T) {
	t.Parallel()

	closed := make(chan time.Duration, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		start := time.Now()
		_ = Close(c, websocket.StatusGoingAway, "shutting down", 100*time.Millisecond)
		closed <- time.Since(start)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	// The client does not read until the server has given up on the handshake.
	select {
	case d := <-closed:
		require.Less(t, d, 2*time.Second)
	case <-ctx.Done():
		t.Fatal("server close did not return")
	}

	_, _, err = c.Read(ctx)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
