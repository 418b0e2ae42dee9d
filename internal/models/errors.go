package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrPersistenceFailure = errors.New("persistence failure")
)

// IllegalTransitionError is returned when the table has no row for the pair.
type IllegalTransitionError struct {
	State PaymentState
	Event PaymentEvent
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: event %s in state %s", e.Event, e.State)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// PersistenceError reports that the durable write of a transition did not complete.
type PersistenceError struct {
	PaymentID string
	From      PaymentState
	To        PaymentState
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist payment %s %s -> %s: %v", e.PaymentID, e.From, e.To, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}
