package schema

import (
	"encoding/json"
	"fmt"
)

// Wire messages exchanged with the session host. Frames are JSON text with a
// snake_case "type" tag. Byte payloads travel base64-encoded.

// BridgeMessage is a message sent by the bridge to the session host.
type BridgeMessage interface{ bridgeMessage() }

// HostMessage is a message sent by the session host to the bridge.
type HostMessage interface{ hostMessage() }

// CreateMessage asks the session host to spawn a terminal for a workspace.
type CreateMessage struct {
	Workspace WorkspaceKey `json:"workspace"`
	Cwd       string       `json:"cwd,omitempty"`
}

// InputMessage delivers terminal input bytes to a session.
type InputMessage struct {
	SessionID SessionID `json:"session_id"`
	Data      []byte    `json:"data"`
}

// ResizeMessage resizes a session's pseudo-terminal.
type ResizeMessage struct {
	SessionID SessionID `json:"session_id"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
}

// CloseMessage asks the session host to tear down a session.
type CloseMessage struct {
	SessionID SessionID `json:"session_id"`
}

// AttachMessage subscribes the bridge to a session's output stream.
type AttachMessage struct {
	SessionID SessionID `json:"session_id"`
}

// ListMessage asks for all live sessions.
type ListMessage struct{}

// OutputAckMessage acknowledges rendered output bytes for flow control.
type OutputAckMessage struct {
	SessionID SessionID `json:"session_id"`
	Bytes     int64     `json:"bytes"`
}

func (CreateMessage) bridgeMessage()    {}
func (InputMessage) bridgeMessage()     {}
func (ResizeMessage) bridgeMessage()    {}
func (CloseMessage) bridgeMessage()     {}
func (AttachMessage) bridgeMessage()    {}
func (ListMessage) bridgeMessage()      {}
func (OutputAckMessage) bridgeMessage() {}

// HelloMessage greets the bridge after the websocket opens.
type HelloMessage struct {
	Version int `json:"version"`
}

// CreatedMessage confirms a spawned session.
type CreatedMessage struct {
	SessionID SessionID    `json:"session_id"`
	Workspace WorkspaceKey `json:"workspace"`
	Cwd       string       `json:"cwd"`
	Shell     string       `json:"shell"`
}

// AttachedMessage confirms a subscription and carries the scrollback snapshot.
type AttachedMessage struct {
	SessionID  SessionID    `json:"session_id"`
	Workspace  WorkspaceKey `json:"workspace"`
	Cwd        string       `json:"cwd"`
	Shell      string       `json:"shell"`
	Scrollback []byte       `json:"scrollback,omitempty"`
}

// OutputMessage delivers terminal output bytes for a session.
type OutputMessage struct {
	SessionID SessionID `json:"session_id"`
	Data      []byte    `json:"data"`
}

// ExitMessage reports that a session's process exited.
type ExitMessage struct {
	SessionID SessionID `json:"session_id"`
	Code      int       `json:"code"`
}

// ClosedMessage confirms a session teardown.
type ClosedMessage struct {
	SessionID SessionID `json:"session_id"`
}

// ListedMessage reports all sessions known to the host.
type ListedMessage struct {
	Items []TerminalInfo `json:"items"`
}

// ErrorMessage reports a host-side failure.
type ErrorMessage struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	SessionID SessionID `json:"session_id,omitempty"`
}

func (HelloMessage) hostMessage()    {}
func (CreatedMessage) hostMessage()  {}
func (AttachedMessage) hostMessage() {}
func (OutputMessage) hostMessage()   {}
func (ExitMessage) hostMessage()     {}
func (ClosedMessage) hostMessage()   {}
func (ListedMessage) hostMessage()   {}
func (ErrorMessage) hostMessage()    {}

// TerminalInfo summarizes one session in a ListedMessage.
type TerminalInfo struct {
	SessionID SessionID     `json:"session_id"`
	Workspace WorkspaceKey  `json:"workspace"`
	Cwd       string        `json:"cwd"`
	Shell     string        `json:"shell"`
	Status    SessionStatus `json:"status"`
}

type typeProbe struct {
	Type string `json:"type"`
}

// EncodeBridgeMessage frames a bridge-originated message.
func EncodeBridgeMessage(msg BridgeMessage) ([]byte, error) {
	switch m := msg.(type) {
	case CreateMessage:
		return encodeTagged("create", m)
	case InputMessage:
		return encodeTagged("input", m)
	case ResizeMessage:
		return encodeTagged("resize", m)
	case CloseMessage:
		return encodeTagged("close", m)
	case AttachMessage:
		return encodeTagged("attach", m)
	case ListMessage:
		return encodeTagged("list", m)
	case OutputAckMessage:
		return encodeTagged("output_ack", m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// DecodeBridgeMessage parses a frame sent by a bridge.
func DecodeBridgeMessage(data []byte) (BridgeMessage, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch probe.Type {
	case "create":
		return decodeTagged[CreateMessage](data)
	case "input":
		return decodeTagged[InputMessage](data)
	case "resize":
		return decodeTagged[ResizeMessage](data)
	case "close":
		return decodeTagged[CloseMessage](data)
	case "attach":
		return decodeTagged[AttachMessage](data)
	case "list":
		return decodeTagged[ListMessage](data)
	case "output_ack":
		return decodeTagged[OutputAckMessage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, probe.Type)
	}
}

// EncodeHostMessage frames a host-originated message.
func EncodeHostMessage(msg HostMessage) ([]byte, error) {
	switch m := msg.(type) {
	case HelloMessage:
		return encodeTagged("hello", m)
	case CreatedMessage:
		return encodeTagged("created", m)
	case AttachedMessage:
		return encodeTagged("attached", m)
	case OutputMessage:
		return encodeTagged("output", m)
	case ExitMessage:
		return encodeTagged("exit", m)
	case ClosedMessage:
		return encodeTagged("closed", m)
	case ListedMessage:
		return encodeTagged("listed", m)
	case ErrorMessage:
		return encodeTagged("error", m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// DecodeHostMessage parses a frame sent by a session host.
func DecodeHostMessage(data []byte) (HostMessage, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch probe.Type {
	case "hello":
		return decodeTagged[HelloMessage](data)
	case "created":
		return decodeTagged[CreatedMessage](data)
	case "attached":
		return decodeTagged[AttachedMessage](data)
	case "output":
		return decodeTagged[OutputMessage](data)
	case "exit":
		return decodeTagged[ExitMessage](data)
	case "closed":
		return decodeTagged[ClosedMessage](data)
	case "listed":
		return decodeTagged[ListedMessage](data)
	case "error":
		return decodeTagged[ErrorMessage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, probe.Type)
	}
}

func encodeTagged(tag string, msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	tagged, err := json.Marshal(typeProbe{Type: tag})
	if err != nil {
		return nil, err
	}
	if len(payload) <= 2 {
		return tagged, nil
	}
	out := make([]byte, 0, len(tagged)+len(payload))
	out = append(out, tagged[:len(tagged)-1]...)
	out = append(out, ',')
	out = append(out, payload[1:]...)
	return out, nil
}

func decodeTagged[T any](data []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return msg, nil
}
