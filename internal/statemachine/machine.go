package statemachine

import (
	"context"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

type Machine struct {
	table       *Table
	interceptor Interceptor
}

func NewMachine(table *Table, interceptor Interceptor) *Machine {
	return &Machine{
		table:       table,
		interceptor: interceptor,
	}
}

// Fire applies event to the payment's current state and commits the result.
//
// The interceptor runs before Fire returns; if it fails the payment keeps its
// state, any guard side effect is undone and the interceptor's error is returned.
// A declined guard is reported as ErrInsufficientFunds together with the
// persisted DECLINED state. The caller must hold the payment's lock.
func (m *Machine) Fire(ctx context.Context, payment *models.Payment, event models.PaymentEvent) (models.PaymentState, error) {
	decision, err := m.table.Evaluate(payment.State, event, payment.Amount)
	if err != nil {
		return payment.State, err
	}

	if err := m.interceptor.OnTransition(ctx, payment.ID, decision.From, decision.To); err != nil {
		if decision.undo != nil {
			decision.undo()
		}
		telemetry.Logger.Error("Payment transition aborted",
			zap.String("payment_id", payment.ID),
			zap.String("event", string(event)),
			zap.String("from_state", string(decision.From)),
			zap.String("to_state", string(decision.To)),
			zap.Error(err),
		)
		return decision.From, err
	}

	payment.State = decision.To

	if decision.Declined {
		telemetry.Logger.Warn("Payment declined",
			zap.String("payment_id", payment.ID),
			zap.String("event", string(event)),
			zap.String("amount", payment.Amount.String()),
		)
		return decision.To, models.ErrInsufficientFunds
	}
	return decision.To, nil
}
