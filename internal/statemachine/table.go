// Package statemachine drives a payment through its lifecycle.
//
// The machine is rebuilt from the persisted state for every event: Evaluate is
// the pure step that picks the next state from the table, and Machine.Fire adds
// the synchronous commit through an Interceptor. Nothing is kept in memory
// between events; the payment store is the only source of truth.
package statemachine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-statemachine/internal/ledger"
	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
)

// Guard decides whether a transition may happen for the payment amount.
// Guards with a side effect return an undo func that reverses it.
type Guard func(amount decimal.Decimal) (approved bool, undo func())

// Rule is a single row of the transition table.
type Rule struct {
	From  models.PaymentState
	Event models.PaymentEvent
	To    models.PaymentState
	Guard Guard
}

type ruleKey struct {
	from  models.PaymentState
	event models.PaymentEvent
}

// Table is an immutable, validated transition table.
type Table struct {
	rules map[ruleKey]Rule
}

// NewTable indexes rules and checks that every guarded row has a guard-free
// DECLINE_PAYMENT row from the same state leading to a terminal state.
func NewTable(rules []Rule) (*Table, error) {
	idx := make(map[ruleKey]Rule, len(rules))
	for _, r := range rules {
		k := ruleKey{r.From, r.Event}
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s on %s", r.From, r.Event)
		}
		if r.From.IsTerminal() {
			return nil, fmt.Errorf("transition out of terminal state %s", r.From)
		}
		idx[k] = r
	}

	for _, r := range idx {
		if r.Guard == nil {
			continue
		}
		decline, ok := idx[ruleKey{r.From, models.EventDeclinePayment}]
		if !ok {
			return nil, fmt.Errorf("guarded transition %s on %s has no decline row", r.From, r.Event)
		}
		if decline.Guard != nil || !decline.To.IsTerminal() {
			return nil, fmt.Errorf("decline row from %s must be guard-free and terminal", r.From)
		}
	}

	return &Table{rules: idx}, nil
}

// PaymentTable builds the payment lifecycle on top of the shared account.
func PaymentTable(account *ledger.Account) *Table {
	reserve := func(amount decimal.Decimal) (bool, func()) {
		return account.TryReserve(amount), nil
	}
	debit := func(amount decimal.Decimal) (bool, func()) {
		if !account.TryDebit(amount) {
			return false, nil
		}
		return true, func() { account.Restore(amount) }
	}

	table, err := NewTable([]Rule{
		{From: models.StateInitial, Event: models.EventCreatePayment, To: models.StateNew, Guard: reserve},
		{From: models.StateInitial, Event: models.EventDeclinePayment, To: models.StateDeclined},
		{From: models.StateNew, Event: models.EventSubtractMoney, To: models.StateSuccess, Guard: debit},
		{From: models.StateNew, Event: models.EventDeclinePayment, To: models.StateDeclined},
	})
	if err != nil {
		panic(err)
	}
	return table
}

// Decision is the outcome of evaluating one event.
type Decision struct {
	From  models.PaymentState
	To    models.PaymentState
	Event models.PaymentEvent
	// Declined is set when a guard failed and the payment is moved to the
	// decline row's target instead.
	Declined bool

	undo func()
}

// Evaluate picks the next state for event without persisting anything.
// The terminal check runs before the table lookup. A failed guard resolves to
// the DECLINE_PAYMENT row, which is guard-free, so no further evaluation follows.
func (t *Table) Evaluate(from models.PaymentState, event models.PaymentEvent, amount decimal.Decimal) (Decision, error) {
	if from.IsTerminal() {
		return Decision{}, models.ErrAlreadyProcessed
	}

	rule, ok := t.rules[ruleKey{from, event}]
	if !ok {
		return Decision{}, &models.IllegalTransitionError{State: from, Event: event}
	}

	if rule.Guard == nil {
		return Decision{From: from, To: rule.To, Event: event}, nil
	}

	approved, undo := rule.Guard(amount)
	if approved {
		return Decision{From: from, To: rule.To, Event: event, undo: undo}, nil
	}

	decline := t.rules[ruleKey{from, models.EventDeclinePayment}]
	return Decision{
		From:     from,
		To:       decline.To,
		Event:    models.EventDeclinePayment,
		Declined: true,
	}, nil
}
