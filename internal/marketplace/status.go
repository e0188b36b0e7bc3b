package marketplace

import (
	"errors"
	"fmt"
)

// Status is the numeric outcome code attached to every marketplace
// operation. The values mirror the enum of the on-chain contract this
// service replaces, so external tooling keeps working unchanged.
type Status int

const (
	StatusSuccess            Status = 0
	StatusAccessDenied       Status = 1
	StatusUndefinedID        Status = 2
	StatusDeadlinePassed     Status = 3
	StatusRequestNotOpen     Status = 4
	StatusRequestNotPending  Status = 5
	StatusOfferNotPending    Status = 6
	StatusRequestNotClosed   Status = 7
	StatusInvalidInput       Status = 12
	StatusTokenReplayed      Status = 101
	StatusTimeRangeInvalid   Status = 102
	StatusTypeNotSupported   Status = 103
	StatusPriceTooLow        Status = 104
	StatusPaymentNotFound    Status = 105
	StatusPaymentNotResolved Status = 106
	StatusAlreadySettled     Status = 108
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAccessDenied:
		return "access denied"
	case StatusUndefinedID:
		return "undefined id"
	case StatusDeadlinePassed:
		return "deadline passed"
	case StatusRequestNotOpen:
		return "request not open"
	case StatusRequestNotPending:
		return "request not pending"
	case StatusOfferNotPending:
		return "offer not pending"
	case StatusRequestNotClosed:
		return "request not closed"
	case StatusInvalidInput:
		return "invalid input"
	case StatusTokenReplayed:
		return "access token already used"
	case StatusTimeRangeInvalid:
		return "time range invalid"
	case StatusTypeNotSupported:
		return "offer type not supported"
	case StatusPriceTooLow:
		return "price too low"
	case StatusPaymentNotFound:
		return "payment not found"
	case StatusPaymentNotResolved:
		return "payment not resolved"
	case StatusAlreadySettled:
		return "trade already settled"
	}
	return fmt.Sprintf("status %d", int(s))
}

// Error is a rejection carrying its Status. Every rejection returned by
// the Service is one of the sentinel values below, so callers can use
// errors.Is as well as read the code.
type Error struct {
	Status Status
}

func (e *Error) Error() string { return e.Status.String() }

var (
	ErrAccessDenied       = &Error{StatusAccessDenied}
	ErrUndefinedID        = &Error{StatusUndefinedID}
	ErrDeadlinePassed     = &Error{StatusDeadlinePassed}
	ErrRequestNotOpen     = &Error{StatusRequestNotOpen}
	ErrRequestNotPending  = &Error{StatusRequestNotPending}
	ErrOfferNotPending    = &Error{StatusOfferNotPending}
	ErrRequestNotClosed   = &Error{StatusRequestNotClosed}
	ErrInvalidInput       = &Error{StatusInvalidInput}
	ErrTokenReplayed      = &Error{StatusTokenReplayed}
	ErrTimeRangeInvalid   = &Error{StatusTimeRangeInvalid}
	ErrTypeNotSupported   = &Error{StatusTypeNotSupported}
	ErrPriceTooLow        = &Error{StatusPriceTooLow}
	ErrPaymentNotFound    = &Error{StatusPaymentNotFound}
	ErrPaymentNotResolved = &Error{StatusPaymentNotResolved}
	ErrAlreadySettled     = &Error{StatusAlreadySettled}
)

// StatusOf extracts the status code from an operation error. A nil error
// maps to StatusSuccess; anything that is not a marketplace rejection
// reports as InvalidInput.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Status
	}
	return StatusInvalidInput
}
