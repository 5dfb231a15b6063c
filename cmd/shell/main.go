// Command shell opens an interactive terminal session on a running companion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/coder/websocket"
	"golang.org/x/term"

	"github.com/onkernel/workspace-companion/lib/terminal"
)

func main() {
	var serverURL string
	flag.StringVar(&serverURL, "server", "http://localhost:3001", "Base URL of the companion server (e.g., http://localhost:3001)")
	flag.Parse()

	wsURL, err := terminalURL(serverURL)
	if err != nil {
		log.Fatalf("invalid server URL: %v", err)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var conn *websocket.Conn
	err = retry.New(
		retry.Attempts(10),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(dialCtx),
	).Do(func() error {
		c, _, err := websocket.Dial(dialCtx, wsURL, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", wsURL, err)
	}
	conn.SetReadLimit(1024 * 1024)

	code := session(conn)
	conn.Close(websocket.StatusNormalClosure, "")
	cancel()
	os.Exit(code)
}

// session runs the terminal until the remote shell exits or the connection drops and
// returns the process exit status to use.
func session(conn *websocket.Conn) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdin := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdin)

	// Put local terminal into raw mode
	if interactive {
		oldState, err := term.MakeRaw(stdin)
		if err != nil {
			log.Fatalf("failed to set raw mode: %v", err)
		}
		defer func() {
			_ = term.Restore(stdin, oldState)
			fmt.Println()
		}()
	}

	send := func(m terminal.ClientMessage) error {
		b, err := terminal.EncodeClientMessage(m)
		if err != nil {
			return err
		}
		wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
		defer wcancel()
		return conn.Write(wctx, websocket.MessageText, b)
	}

	resize := func() {
		if !interactive {
			return
		}
		if w, h, err := term.GetSize(stdin); err == nil {
			_ = send(terminal.ResizeMessage{Cols: w, Rows: h})
		}
	}

	// Handle window resize (SIGWINCH)
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-winch:
				resize()
			}
		}
	}()

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if serr := send(terminal.InputMessage{Data: string(buf[:n])}); serr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return 0
			}
			if !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "\r\nconnection closed: %v\r\n", err)
			}
			return 1
		}
		msg, err := terminal.DecodeServerMessage(b)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case terminal.ConnectedMessage:
			resize()
		case terminal.DataMessage:
			os.Stdout.WriteString(m.Data)
		case terminal.ExitMessage:
			return m.ExitCode
		case terminal.ErrorMessage:
			fmt.Fprintf(os.Stderr, "\r\nserver error: %s\r\n", m.Message)
		}
	}
}

// terminalURL turns a server base URL into the /ws/terminal websocket URL.
func terminalURL(s string) (string, error) {
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", s)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/terminal"
	return u.String(), nil
}
