package terminal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/creack/pty"

	"github.com/onkernel/workspace-companion/lib/ptyio"
)

// Frame type tags used on /ws/terminal.
const (
	TypeInput     = "input"
	TypeResize    = "resize"
	TypeConnected = "connected"
	TypeData      = "data"
	TypeExit      = "exit"
	TypeError     = "error"
)

// ErrProtocol is returned when a frame cannot be decoded into a known message.
var ErrProtocol = errors.New("malformed terminal message")

// ClientMessage is a frame sent by the browser. The set of implementations is closed:
// InputMessage and ResizeMessage.
type ClientMessage interface {
	clientMessage()
}

// InputMessage carries keystrokes that are written verbatim to the PTY.
type InputMessage struct {
	Data string
}

// ResizeMessage asks for a new PTY size. Frames with missing or out-of-range dimensions
// decode successfully with Valid set to false and are ignored by the session.
type ResizeMessage struct {
	Cols  int
	Rows  int
	Valid bool
}

func (InputMessage) clientMessage()  {}
func (ResizeMessage) clientMessage() {}

// Winsize returns the pty window size for a valid resize.
func (m ResizeMessage) Winsize() *pty.Winsize {
	return &pty.Winsize{Cols: uint16(m.Cols), Rows: uint16(m.Rows)}
}

type clientEnvelope struct {
	Type string  `json:"type"`
	Data *string `json:"data,omitempty"`
	Cols any     `json:"cols,omitempty"`
	Rows any     `json:"rows,omitempty"`
}

// DecodeClientMessage parses a client frame. Unparsable JSON, an unknown type, or an
// input frame without data yields an error wrapping ErrProtocol.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	switch env.Type {
	case TypeInput:
		if env.Data == nil {
			return nil, fmt.Errorf("%w: input frame without data", ErrProtocol)
		}
		return InputMessage{Data: *env.Data}, nil
	case TypeResize:
		cols, cok := dimension(env.Cols)
		rows, rok := dimension(env.Rows)
		valid := cok && rok && ptyio.ValidDimensions(cols, rows)
		if !valid {
			return ResizeMessage{}, nil
		}
		return ResizeMessage{Cols: cols, Rows: rows, Valid: true}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrProtocol)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrProtocol, env.Type)
	}
}

// dimension accepts whole JSON numbers only.
func dimension(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 0 || f > ptyio.MaxTerminalDimension {
		return 0, false
	}
	return int(f), true
}

// EncodeClientMessage renders a client frame. Used by terminal clients.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	switch m := m.(type) {
	case InputMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}{TypeInput, m.Data})
	case ResizeMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			Cols int    `json:"cols"`
			Rows int    `json:"rows"`
		}{TypeResize, m.Cols, m.Rows})
	default:
		return nil, fmt.Errorf("unsupported client message %T", m)
	}
}

// ServerMessage is a frame sent to the browser. The set of implementations is closed:
// ConnectedMessage, DataMessage, ExitMessage and ErrorMessage.
type ServerMessage interface {
	serverMessage()
}

type ConnectedMessage struct {
	TerminalID string `json:"terminalId"`
}

type DataMessage struct {
	Data string `json:"data"`
}

// ExitMessage reports how the shell ended. Signal is nil unless the process was killed
// by a signal, in which case ExitCode is 128+signal.
type ExitMessage struct {
	ExitCode int    `json:"exitCode"`
	Signal   *int   `json:"signal"`
	Message  string `json:"message"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func (ConnectedMessage) serverMessage() {}
func (DataMessage) serverMessage()      {}
func (ExitMessage) serverMessage()      {}
func (ErrorMessage) serverMessage()     {}

func (m ConnectedMessage) MarshalJSON() ([]byte, error) {
	type plain ConnectedMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeConnected, plain(m)})
}

func (m DataMessage) MarshalJSON() ([]byte, error) {
	type plain DataMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeData, plain(m)})
}

func (m ExitMessage) MarshalJSON() ([]byte, error) {
	type plain ExitMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeExit, plain(m)})
}

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type plain ErrorMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeError, plain(m)})
}

// DecodeServerMessage parses a frame produced by a session.
func DecodeServerMessage(raw []byte) (ServerMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	var (
		msg ServerMessage
		err error
	)
	switch head.Type {
	case TypeConnected:
		var m ConnectedMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeData:
		var m DataMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeExit:
		var m ExitMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeError:
		var m ErrorMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrProtocol, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return msg, nil
}
