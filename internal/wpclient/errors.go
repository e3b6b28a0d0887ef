package wpclient

import (
	"errors"
	"fmt"

	"wpfleet/internal/domain"
)

// Error is the typed failure of one remote call. Status and Body are only
// set for remote_error responses.
type Error struct {
	Kind   domain.ErrorKind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to unreachable for errors that
// did not come out of the client (e.g. context cancellation in the caller).
func KindOf(err error) domain.ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return domain.ErrKindUnreachable
}

func unreachable(err error) *Error {
	return &Error{Kind: domain.ErrKindUnreachable, Err: err}
}

func authRejected(status int, body string) *Error {
	return &Error{Kind: domain.ErrKindAuthRejected, Status: status, Body: body}
}

func remoteError(status int, body string) *Error {
	return &Error{Kind: domain.ErrKindRemoteError, Status: status, Body: body}
}

func malformed(err error) *Error {
	return &Error{Kind: domain.ErrKindMalformed, Err: err}
}
