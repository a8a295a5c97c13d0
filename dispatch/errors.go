package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrOfferNotFound        = errors.New("booking request not found")
	ErrOfferAlreadyResolved = errors.New("booking request already accepted by another vendor")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoPartnersAvailable  = errors.New("no partner vendors available")
	ErrNotPartner           = errors.New("vendor is not a partner of the requesting company")
	ErrNotAssigned          = errors.New("vendor is not assigned to this booking")
)

// ValidationError reports a malformed or missing field. Nothing is changed when it is returned.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// PersistenceError wraps a failed read or write against the durable store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// ErrorCode maps an error to the code reported to clients.
func ErrorCode(err error) string {
	var verr *ValidationError
	var perr *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrOfferNotFound):
		return "OFFER_NOT_FOUND"
	case errors.Is(err, ErrOfferAlreadyResolved):
		return "OFFER_ALREADY_RESOLVED"
	case errors.Is(err, ErrBookingNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrNoPartnersAvailable):
		return "NO_PARTNERS_AVAILABLE"
	case errors.Is(err, ErrNotPartner):
		return "NOT_PARTNER"
	case errors.Is(err, ErrNotAssigned):
		return "NOT_ASSIGNED"
	case errors.As(err, &perr):
		return "PERSISTENCE_ERROR"
	}
	return "INTERNAL"
}
