// Package channel defines the one-shot messages exchanged between the
// parent and a worker process, and the mailbox the parent reads them from.
package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"timebox/core/failure"
)

// Request is sent parent -> worker and names the target plus its encoded arguments.
type Request struct {
	ID     string                     `json:"id"`
	Target string                     `json:"target"`
	Args   []json.RawMessage          `json:"args,omitempty"`
	Kwargs map[string]json.RawMessage `json:"kwargs,omitempty"`
}

// Message is the single value a worker sends back: a result or a failure, never both.
type Message struct {
	Value json.RawMessage     `json:"value,omitempty"`
	Err   *failure.Descriptor `json:"err,omitempty"`
}

// Ok wraps an already-encoded result.
func Ok(value json.RawMessage) Message {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return Message{Value: value}
}

// Fail wraps a failure descriptor.
func Fail(d failure.Descriptor) Message {
	return Message{Err: &d}
}

// Failed reports whether the message carries a failure.
func (m Message) Failed() bool { return m.Err != nil }

// NewRequest encodes positional and keyword arguments. Values that cannot be
// encoded fail with a serialization error before any worker is spawned.
func NewRequest(id, target string, args []any, kwargs map[string]any) (Request, error) {
	req := Request{ID: id, Target: target}
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return Request{}, failure.Serialization("encode arg %d for %s: %v", i, target, err)
		}
		req.Args = append(req.Args, raw)
	}
	if len(kwargs) > 0 {
		req.Kwargs = make(map[string]json.RawMessage, len(kwargs))
		for name, v := range kwargs {
			raw, err := json.Marshal(v)
			if err != nil {
				return Request{}, failure.Serialization("encode kwarg %q for %s: %v", name, target, err)
			}
			req.Kwargs[name] = raw
		}
	}
	return req, nil
}

// WriteRequest encodes req onto w.
func WriteRequest(w io.Writer, req Request) error {
	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// ReadRequest decodes one request from r.
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, failure.Serialization("decode request: %v", err)
	}
	return req, nil
}

// WriteMessage encodes msg onto w.
func WriteMessage(w io.Writer, msg Message) error {
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage decodes one message from r. It returns io.EOF when the worker
// closed the channel without writing.
func ReadMessage(r io.Reader) (Message, error) {
	var msg Message
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Mailbox holds at most one delivered message and hands it out at most once.
type Mailbox struct {
	mu        sync.Mutex
	msg       Message
	full      bool
	consumed  bool
	shut      bool
	delivered chan struct{}
	once      sync.Once
}

func NewMailbox() *Mailbox {
	return &Mailbox{delivered: make(chan struct{})}
}

// Deliver stores msg. Only the first delivery is kept; later ones return false.
func (m *Mailbox) Deliver(msg Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full || m.consumed || m.shut {
		return false
	}
	m.msg = msg
	m.full = true
	m.close()
	return true
}

// Close marks the delivery attempt finished. Messages delivered afterwards are discarded.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shut = true
	m.close()
}

func (m *Mailbox) close() {
	m.once.Do(func() { close(m.delivered) })
}

// Settled is closed once a message was delivered or the sender gave up.
func (m *Mailbox) Settled() <-chan struct{} {
	return m.delivered
}

// TryReceive returns the message without blocking. A message is returned at most once.
func (m *Mailbox) TryReceive() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full || m.consumed {
		return Message{}, false
	}
	m.consumed = true
	msg := m.msg
	m.msg = Message{}
	return msg, true
}
