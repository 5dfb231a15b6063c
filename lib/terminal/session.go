package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/onkernel/workspace-companion/lib/metrics"
	"github.com/onkernel/workspace-companion/lib/ptyio"
	"github.com/onkernel/workspace-companion/lib/wsutil"
)

const (
	writeQueueSize = 256
	writeTimeout   = 5 * time.Second
	// outputDrainTimeout caps how long an exited session waits for trailing PTY output.
	outputDrainTimeout = time.Second

	outcomeExited      = "exited"
	outcomeClosed      = "closed"
	outcomeSpawnFailed = "spawn_failed"
)

// Conn is the subset of *websocket.Conn a session needs.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// Session bridges one PTY-backed shell to one connection. All writes to the connection go
// through a single writer goroutine; inbound frames are handled in arrival order by Run's
// goroutine.
type Session struct {
	id   string
	cmd  *exec.Cmd
	ptmx *os.File
	conn Conn
	log  *slog.Logger

	writeCh   chan ServerMessage
	done      chan struct{}
	pumpDone  chan struct{}
	finished  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// set once inside closeOnce, read after done is closed
	closeCode   websocket.StatusCode
	closeReason string
	outcome     string
}

func (s *Session) ID() string { return s.id }

// PID returns the shell's process id.
func (s *Session) PID() int { return s.cmd.Process.Pid }

func spawn(shell, dir string, cols, rows int) (*exec.Cmd, *os.File, error) {
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrSpawn, shell, err)
	}
	return cmd, ptmx, nil
}

func newSession(id string, cmd *exec.Cmd, ptmx *os.File, conn Conn, log *slog.Logger) *Session {
	return &Session{
		id:       id,
		cmd:      cmd,
		ptmx:     ptmx,
		conn:     conn,
		log:      log.With("terminal_id", id),
		writeCh:  make(chan ServerMessage, writeQueueSize),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// run blocks until the session is fully torn down: the process reaped, the PTY closed and
// the connection closed.
func (s *Session) run(ctx context.Context) {
	s.wg.Add(3)
	go s.writeLoop()
	go s.pumpOutput()
	go s.waitExit()

	s.send(ConnectedMessage{TerminalID: s.id})
	s.readLoop(ctx)

	s.stop(websocket.StatusNormalClosure, "", outcomeClosed)
	s.wg.Wait()
	if err := s.ptmx.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.log.Warn("closing pty", "err", err)
	}
}

// send queues a frame for the writer. It blocks while the queue is full and drops the
// frame once the session is stopping.
func (s *Session) send(msg ServerMessage) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.writeCh <- msg:
	case <-s.done:
	}
}

// stop starts teardown exactly once: the process group is killed and the writer is told
// to flush and close the connection with code.
func (s *Session) stop(code websocket.StatusCode, reason, outcome string) {
	s.closeOnce.Do(func() {
		s.closeCode, s.closeReason, s.outcome = code, reason, outcome
		close(s.done)
		s.kill()
	})
}

func (s *Session) kill() {
	pid := s.cmd.Process.Pid
	// pty.Start makes the shell a session leader, so its pgid equals its pid.
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		s.log.Warn("killing process group", "pid", pid, "err", err)
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Warn("killing process", "pid", pid, "err", err)
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer func() {
		if err := wsutil.Close(s.conn, s.closeCode, s.closeReason, wsutil.DefaultCloseGrace); err != nil {
			s.log.Debug("closing websocket", "err", err)
		}
	}()

	for {
		select {
		case msg := <-s.writeCh:
			if err := s.write(msg); err != nil {
				s.log.Debug("websocket write failed", "err", err)
				s.stop(websocket.StatusInternalError, "write failed", outcomeClosed)
				return
			}
		case <-s.done:
			for {
				select {
				case msg := <-s.writeCh:
					if err := s.write(msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(msg ServerMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, b)
}

func (s *Session) pumpOutput() {
	defer s.wg.Done()
	defer close(s.pumpDone)

	var carry []byte
	err := ptyio.Pump(s.ptmx, s.done, func(chunk []byte) error {
		metrics.AddTerminalOutput(len(chunk))
		if len(carry) > 0 {
			chunk = append(carry, chunk...)
		}
		var complete []byte
		complete, carry = splitUTF8(chunk)
		if len(complete) > 0 {
			s.send(DataMessage{Data: string(complete)})
		}
		return nil
	})
	if len(carry) > 0 {
		s.send(DataMessage{Data: string(carry)})
	}
	if err != nil {
		s.log.Warn("reading pty", "err", err)
	}
}

// splitUTF8 holds back a trailing partial rune so multi-byte characters are not split
// across data frames.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], append([]byte(nil), b[i:]...)
	}
	return b, nil
}

func (s *Session) waitExit() {
	defer s.wg.Done()

	waitErr := s.cmd.Wait()
	select {
	case <-s.pumpDone:
	case <-s.done:
	case <-time.After(outputDrainTimeout):
	}

	msg := exitMessage(s.cmd.ProcessState)
	if s.cmd.ProcessState == nil {
		msg.Message = fmt.Sprintf("wait failed: %v", waitErr)
	}
	s.log.Info("shell exited", "exit_code", msg.ExitCode)
	s.send(msg)
	s.stop(websocket.StatusNormalClosure, "process exited", outcomeExited)
}

func exitMessage(state *os.ProcessState) ExitMessage {
	if state == nil {
		return ExitMessage{ExitCode: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := int(ws.Signal())
		return ExitMessage{
			ExitCode: 128 + sig,
			Signal:   &sig,
			Message:  fmt.Sprintf("Process terminated by signal %s", ws.Signal()),
		}
	}
	code := state.ExitCode()
	return ExitMessage{ExitCode: code, Message: fmt.Sprintf("Process exited with code %d", code)}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				s.log.Debug("websocket closed", "status", status)
			} else {
				select {
				case <-s.done:
				default:
					s.log.Debug("websocket read failed", "err", err)
				}
			}
			return
		}

		msg, err := DecodeClientMessage(data)
		if err != nil {
			s.send(ErrorMessage{Message: err.Error()})
			continue
		}
		switch m := msg.(type) {
		case InputMessage:
			if _, err := s.ptmx.Write([]byte(m.Data)); err != nil {
				s.log.Warn("writing to pty", "err", err)
				s.send(ErrorMessage{Message: "failed to write input"})
			}
		case ResizeMessage:
			if !m.Valid {
				continue
			}
			if err := pty.Setsize(s.ptmx, m.Winsize()); err != nil {
				s.log.Warn("resizing pty", "cols", m.Cols, "rows", m.Rows, "err", err)
			}
		}
	}
}
