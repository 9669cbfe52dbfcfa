package acp

import "fmt"

// JSON-RPC 2.0 reserved error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Client-side error taxonomy. These share the implementation-defined
// range below -32000 so they can travel inside a JSON-RPC error object.
const (
	CodeAuthRequired     = -32000
	CodeSessionNotFound  = -32001
	CodePermissionDenied = -32002
	CodeTransportError   = -32003
	CodeTimeout          = -32004
	CodeProtocolError    = -32005
)

// Error is both the wire shape of a JSON-RPC error object and the error
// type returned at every public boundary of the client.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("acp error %d: %s", e.Code, e.Message)
}

// NewError creates an Error with the given code and formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// TransportError wraps a process or pipe failure.
func TransportError(format string, args ...any) *Error {
	return NewError(CodeTransportError, format, args...)
}

// ProtocolError reports a malformed handshake or an operation attempted in
// the wrong connection state.
func ProtocolError(format string, args ...any) *Error {
	return NewError(CodeProtocolError, format, args...)
}

// TimeoutError reports that no response arrived within the budget.
func TimeoutError(format string, args ...any) *Error {
	return NewError(CodeTimeout, format, args...)
}

// InvalidRequestError reports a notification missing required fields.
func InvalidRequestError(format string, args ...any) *Error {
	return NewError(CodeInvalidRequest, format, args...)
}

// IsTimeout reports whether err is a timeout-class Error.
func IsTimeout(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == CodeTimeout
}
