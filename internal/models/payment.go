package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentState string

const (
	StateInitial  PaymentState = "INITIAL"
	StateNew      PaymentState = "NEW"
	StateSuccess  PaymentState = "SUCCESS"
	StateDeclined PaymentState = "DECLINED"
)

// IsTerminal reports whether no further transition may leave the state.
func (s PaymentState) IsTerminal() bool {
	return s == StateSuccess || s == StateDeclined
}

type PaymentEvent string

const (
	EventCreatePayment  PaymentEvent = "CREATE_PAYMENT"
	EventDeclinePayment PaymentEvent = "DECLINE_PAYMENT"
	EventSubtractMoney  PaymentEvent = "SUBTRACT_MONEY"
)

type Payment struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	State     PaymentState    `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StateChangedEvent is published after a transition has been persisted.
type StateChangedEvent struct {
	PaymentID     string       `json:"payment_id"`
	State         PaymentState `json:"state"`
	PreviousState PaymentState `json:"previous_state"`
	Timestamp     time.Time    `json:"timestamp"`
}

// PaymentCommand is the message accepted on the command topic.
type PaymentCommand struct {
	Action    string          `json:"action"`
	PaymentID string          `json:"payment_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

const (
	CommandCreate  = "create"
	CommandProcess = "process"
)

// AccountInfo is a point-in-time view of the shared account.
type AccountInfo struct {
	Balance         decimal.Decimal `json:"balance"`
	LimitPerPayment decimal.Decimal `json:"limit_per_payment"`
}
