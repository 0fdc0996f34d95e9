// Package apperrors provides chainable application errors that carry a status
// code. Errors created from a template keep matching the template through
// errors.Is, which lets callers classify failures without type switches.
package apperrors

// Error is an error that can be used as a template for more specific errors.
// All methods return a new Error; the receiver is never modified.
type Error interface {
	error
	Unwrap() error

	New(msg string) Error                  // fresh message, same lineage
	Msg(msg string) Error                  // new message, keeps the receiver as a wrapped cause
	MsgErr(msg string, err ...error) Error // new message plus extra causes
	Err(err ...error) Error                // same message plus extra causes
	SetExpandError(bool) Error             // include causes in ErrorAll
	SetStatusCode(int) Error
	StatusCode() int
	ErrorAll() string
	UnwrapAll() []error
}
