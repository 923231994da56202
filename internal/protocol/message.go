package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message types.
const (
	TypeEvent  = "event"
	TypeResult = "result"
	TypeError  = "error"
	TypeFatal  = "fatal"
)

// Event names.
const (
	EventReady        = "ready"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventMonitor      = "monitor"
)

// Message is anything the Writer can emit.
type Message interface {
	messageType() string
}

// Field is one extra key of an event, kept in insertion order.
type Field struct {
	Key   string
	Value any
}

// Event is an unsolicited notification. It carries no id.
type Event struct {
	Name   string
	Fields []Field
}

func (Event) messageType() string { return TypeEvent }

// NewEvent builds an event from alternating key/value pairs.
func NewEvent(name string, kv ...any) Event {
	e := Event{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e.Fields = append(e.Fields, Field{Key: key, Value: kv[i+1]})
	}
	return e
}

// MarshalJSON writes {"type":"event","event":NAME,...fields}.
func (e Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"event","event":`)
	if err := appendJSON(&buf, e.Name); err != nil {
		return nil, err
	}
	for _, f := range e.Fields {
		if f.Key == "type" || f.Key == "event" {
			return nil, fmt.Errorf("protocol: reserved event field %q", f.Key)
		}
		buf.WriteByte(',')
		if err := appendJSON(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := appendJSON(&buf, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func appendJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Null is an explicit JSON null payload, distinct from an omitted one.
var Null = json.RawMessage("null")

// Result is the terminal response to a command. A nil Data omits the field.
type Result struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
}

func (Result) messageType() string { return TypeResult }

func NewResult(id string, success bool, code int, data any) Result {
	return Result{Type: TypeResult, ID: id, Success: success, Code: code, Data: data}
}

// OK is a successful result with code 0.
func OK(id string, data any) Result {
	return NewResult(id, true, 0, data)
}

// Error reports a protocol-level failure for one command.
type Error struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (Error) messageType() string { return TypeError }

func NewError(id, message string) Error {
	return Error{Type: TypeError, ID: id, Message: message}
}

// Fatal precedes an abnormal exit.
type Fatal struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (Fatal) messageType() string { return TypeFatal }

func NewFatal(message string) Fatal {
	return Fatal{Type: TypeFatal, Message: message}
}

// Incoming is a decoded output line, as seen by a client of the bridge.
type Incoming struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	Success bool            `json:"success,omitempty"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Reason  *int            `json:"reason,omitempty"`

	Raw []byte `json:"-"` // the line as received
}

// Terminal reports whether the message ends a command.
func (m Incoming) Terminal() bool {
	return m.Type == TypeResult || m.Type == TypeError
}

// Decode parses one output line.
func Decode(line []byte) (Incoming, error) {
	var m Incoming
	if err := json.Unmarshal(line, &m); err != nil {
		return Incoming{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Incoming{}, fmt.Errorf("decode message: missing type")
	}
	m.Raw = append([]byte(nil), line...)
	return m, nil
}
