package acp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Message is a single JSON-RPC 2.0 message as it appears on the wire.
// The same shape covers three cases: a response to one of our requests
// (id + result/error), a notification from the agent (method, no id), and
// an agent-initiated request that expects an answer (method + id).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsResponse reports whether the message answers a request we sent.
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// IsNotification reports whether the message is a fire-and-forget
// notification from the agent.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsRequest reports whether the message is an agent-initiated request that
// we must answer with a result or error carrying the same id.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IntID parses the message id as an integer. Our outgoing ids are always
// numeric, so responses to us must parse; agent-side ids are echoed back
// verbatim and never need to.
func (m *Message) IntID() (int64, bool) {
	id, err := strconv.ParseInt(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// NewRequest builds an outgoing JSON-RPC request. params is marshalled
// immediately so a bad payload fails at the call site, not in the writer.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	idRaw, _ := json.Marshal(id)
	return &Message{JSONRPC: "2.0", ID: idRaw, Method: method, Params: raw}, nil
}

// NewNotification builds an outgoing JSON-RPC notification (no id).
func NewNotification(method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// NewResponse builds a result reply to an agent-initiated request,
// echoing the agent's id verbatim.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error reply to an agent-initiated request.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

// Encode renders the message as a single JSON document with no framing.
// The transport adds the terminating newline when it writes the line.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}
