package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
)

// PaymentRepository defines the contract for the durable payment record store.
// It does not arbitrate concurrent transitions; callers hold the payment's lock.
type PaymentRepository interface {
	Create(ctx context.Context, amount decimal.Decimal) (string, error)
	Get(ctx context.Context, paymentID string) (*models.Payment, error)
	SetState(ctx context.Context, paymentID string, state models.PaymentState) error
	ListAll(ctx context.Context) ([]*models.Payment, error)
}
