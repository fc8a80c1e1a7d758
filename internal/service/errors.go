// Package service holds the booking engine: the purchase session workflow,
// sale execution and reconciliation, and the event projection sync.  All
// three talk to the box office through the BoxOffice port and persist
// through the store ports declared in ports.go.
package service

import (
	"errors"
	"fmt"

	"github.com/um-programacion-ii/programacion-2-2025-trabajo-final-meschinidino/internal/boxoffice"
)

// ValidationError is a rejected request: missing event or seats, a
// malformed change kind and the like.  It is never retried automatically.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing session, sale or event.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// ExternalServiceError wraps a failed box office call.  Status and Body are
// set when the box office answered with a non-2xx status; a transport
// failure or timeout leaves them empty.
type ExternalServiceError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ExternalServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("box office %s failed with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("box office %s failed: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func externalError(op string, err error) error {
	ext := &ExternalServiceError{Op: op, Err: err}
	var be *boxoffice.Error
	if errors.As(err, &be) {
		ext.Status = be.StatusCode
		ext.Body = be.Body
	}
	return ext
}
