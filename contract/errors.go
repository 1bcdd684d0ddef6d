package contract

import "fmt"

// Error reports a contract that cannot be served. It is fatal at startup.
type Error struct {
	Pointer string // location in the document, e.g. "GET /users/{id}"
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	msg := "contract"
	if e.Pointer != "" {
		msg += " " + e.Pointer
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(pointer, format string, args ...any) *Error {
	return &Error{Pointer: pointer, Reason: fmt.Sprintf(format, args...)}
}
