package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/workspace-companion/lib/terminal"
)

func startServer(t *testing.T, env *testEnv) string {
	t.Helper()
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

type fileEvent struct {
	Type      string    `json:"type"`
	Event     string    `json:"event"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

func readFileEvent(t *testing.T, c *websocket.Conn) (fileEvent, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev fileEvent
	err := wsjson.Read(ctx, c, &ev)
	return ev, err
}

func subscribe(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c := dialSocket(t, url+"/ws/files")
	ev, err := readFileEvent(t, c)
	require.NoError(t, err)
	require.Equal(t, "connected", ev.Type)
	return c
}

func TestFileSubscribersReceiveChanges(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	a := subscribe(t, url)
	b := subscribe(t, url)
	require.Eventually(t, func() bool { return env.svc.broadcaster.Count() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "hello.txt"), []byte("hi"), 0o644))

	for _, c := range []*websocket.Conn{a, b} {
		for {
			ev, err := readFileEvent(t, c)
			require.NoError(t, err)
			require.Equal(t, "fileChange", ev.Type)
			if ev.Event == "add" {
				require.Equal(t, "hello.txt", ev.Path)
				require.False(t, ev.Timestamp.IsZero())
				break
			}
		}
	}
}

func TestFileSubscriberIgnoresClientFrames(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	c := subscribe(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, map[string]string{"type": "ping"}))

	require.NoError(t, os.Mkdir(filepath.Join(env.root, "fresh"), 0o755))
	ev, err := readFileEvent(t, c)
	require.NoError(t, err)
	require.Equal(t, "addDir", ev.Event)
	require.Equal(t, "fresh", ev.Path)
}

func TestFileSubscriberRemovedOnDisconnect(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	c := subscribe(t, url)
	require.Eventually(t, func() bool { return env.svc.broadcaster.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return env.svc.broadcaster.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestTerminalSocket(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	c := dialSocket(t, url+"/ws/terminal")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, raw, err := c.Read(ctx)
	require.NoError(t, err)
	msg, err := terminal.DecodeServerMessage(raw)
	require.NoError(t, err)
	connected, ok := msg.(terminal.ConnectedMessage)
	require.True(t, ok)
	require.NotEmpty(t, connected.TerminalID)

	input, err := terminal.EncodeClientMessage(terminal.InputMessage{Data: "pwd\n"})
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, input))

	var out strings.Builder
	for !strings.Contains(out.String(), env.root) {
		_, raw, err := c.Read(ctx)
		require.NoError(t, err, "output so far: %q", out.String())
		var frame struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Type == terminal.TypeData {
			out.WriteString(frame.Data)
		}
	}
}

func TestUnknownSocketPathIsPolicyViolation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	for _, p := range []string{"/ws/other", "/api/health", "/"} {
		c := dialSocket(t, url+p)
		_, err := readFileEvent(t, c)
		require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err), "path %s", p)
	}
}

func TestShutdownClosesSocketsAndRefusesUpgrades(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	sub := subscribe(t, url)
	term := dialSocket(t, url+"/ws/terminal")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _, err := term.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, env.svc.Shutdown(ctx))

	_, err = readFileEvent(t, sub)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	for {
		if _, _, err = term.Read(ctx); err != nil {
			break
		}
	}
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	_, resp, err := websocket.Dial(ctx, url+"/ws/files", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShutdownDoesNotWaitOnIdleClients(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	url := startServer(t, env)

	// Neither client reads again, so neither answers the close frame.
	sub := subscribe(t, url)
	term := dialSocket(t, url+"/ws/terminal")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _, err := term.Read(ctx)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, env.svc.Shutdown(ctx))
	require.Less(t, time.Since(start), 3*time.Second)

	_, err = readFileEvent(t, sub)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
