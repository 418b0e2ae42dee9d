package statemachine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/interfaces"
	"github.com/akylbek/payment-system/payment-statemachine/internal/metrics"
	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

// Interceptor is called synchronously before a transition is complete.
// A non-nil error aborts the transition.
type Interceptor interface {
	OnTransition(ctx context.Context, paymentID string, from, to models.PaymentState) error
}

type InterceptorFunc func(ctx context.Context, paymentID string, from, to models.PaymentState) error

func (f InterceptorFunc) OnTransition(ctx context.Context, paymentID string, from, to models.PaymentState) error {
	return f(ctx, paymentID, from, to)
}

// Chain runs interceptors in order and stops at the first error.
func Chain(interceptors ...Interceptor) Interceptor {
	return InterceptorFunc(func(ctx context.Context, paymentID string, from, to models.PaymentState) error {
		for _, i := range interceptors {
			if err := i.OnTransition(ctx, paymentID, from, to); err != nil {
				return err
			}
		}
		return nil
	})
}

// PersistingInterceptor writes the new state to the store, then logs and
// publishes the change.
type PersistingInterceptor struct {
	repo      interfaces.PaymentRepository
	publisher interfaces.StateChangePublisher
}

// NewPersistingInterceptor returns an interceptor backed by repo.
// publisher may be nil.
func NewPersistingInterceptor(repo interfaces.PaymentRepository, publisher interfaces.StateChangePublisher) *PersistingInterceptor {
	return &PersistingInterceptor{
		repo:      repo,
		publisher: publisher,
	}
}

func (i *PersistingInterceptor) OnTransition(ctx context.Context, paymentID string, from, to models.PaymentState) error {
	if from == to {
		return nil
	}

	if err := i.repo.SetState(ctx, paymentID, to); err != nil {
		return &models.PersistenceError{PaymentID: paymentID, From: from, To: to, Err: err}
	}

	metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", paymentID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)

	if i.publisher == nil {
		return nil
	}

	// The record is already durable; a lost notification does not undo it.
	event := models.StateChangedEvent{
		PaymentID:     paymentID,
		State:         to,
		PreviousState: from,
		Timestamp:     time.Now().UTC(),
	}
	if err := i.publisher.Publish(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish state change",
			zap.String("payment_id", paymentID),
			zap.String("to_state", string(to)),
			zap.Error(err),
		)
	}
	return nil
}
