package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tansive/crmctl/internal/common/apperrors"
	"github.com/tidwall/gjson"
)

var (
	// ErrRequest is the root of every error returned by the client.
	ErrRequest = apperrors.New("request failed")
	// ErrTransport means no usable response arrived (network, timeout).
	ErrTransport = ErrRequest.New("transport failure")
	// ErrBusiness means the envelope carried a non-success code.
	ErrBusiness = ErrRequest.New("business failure")
	// ErrHTTP means the server answered with an error status.
	ErrHTTP = ErrRequest.New("http failure")
	// ErrUnauthorized is an HTTP 401; the session has been torn down.
	ErrUnauthorized = ErrHTTP.New("unauthorized").SetStatusCode(http.StatusUnauthorized)
)

// Error is the uniform failure shape seen by callers, whatever the cause.
// Status is the HTTP status for transport-level failures, the envelope code for
// business failures, and zero when no response arrived. Data holds the raw
// response body when there was one.
type Error struct {
	Status  int
	Message string
	Data    []byte

	kind  error
	cause error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the failure class and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	errs := []error{e.kind}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// ServerMessage returns the "message" field of the response body, falling
// back to its "error" field. Empty when the server supplied neither.
func (e *Error) ServerMessage() string {
	if len(e.Data) == 0 || !gjson.ValidBytes(e.Data) {
		return ""
	}
	for _, field := range []string{"message", "error"} {
		if r := gjson.GetBytes(e.Data, field); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

// MessageOf returns the server-supplied message carried by err, or fallback
// when there is none.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		if msg := e.ServerMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}

// StatusOf returns the Status of an *Error in err's chain, or zero.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func newTransportError(cause error) *Error {
	return &Error{
		Message: cause.Error(),
		kind:    ErrTransport,
		cause:   cause,
	}
}

func newHTTPError(status int, body []byte) *Error {
	kind := ErrHTTP
	if status == http.StatusUnauthorized {
		kind = ErrUnauthorized
	}
	return &Error{
		Status:  status,
		Message: fmt.Sprintf("request failed with status code %d", status),
		Data:    body,
		kind:    kind,
	}
}

func newBusinessError(code int, message string, body []byte) *Error {
	if message == "" {
		message = ErrRequest.Error()
	}
	return &Error{
		Status:  code,
		Message: message,
		Data:    body,
		kind:    ErrBusiness,
	}
}
