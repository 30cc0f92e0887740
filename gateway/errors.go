package gateway

import "fmt"

type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindRejected     ErrorKind = "rejected"
	KindUnauthorized ErrorKind = "unauthorized"
	KindMalformed    ErrorKind = "malformed"
)

// Error is returned by every failed gateway call
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	text := fmt.Sprintf("gateway %s", e.Kind)
	if e.StatusCode != 0 {
		text = fmt.Sprintf("%s (status %d)", text, e.StatusCode)
	}
	if e.Message != "" {
		text = fmt.Sprintf("%s: %s", text, e.Message)
	}
	if e.Err != nil {
		text = fmt.Sprintf("%s: %v", text, e.Err)
	}
	return text
}

func (e *Error) Unwrap() error {
	return e.Err
}

func statusError(statusCode int, message string) *Error {
	kind := KindRejected
	if statusCode == 401 || statusCode == 403 {
		kind = KindUnauthorized
	}
	if message == "" {
		message = "unexpected response status"
	}
	return &Error{Kind: kind, StatusCode: statusCode, Message: message}
}
