package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
)

// MemoryPaymentRepository keeps payment records in process memory.
// Records are copied in and out so callers never share a pointer with the store.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
	order    []string
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*models.Payment),
	}
}

func (r *MemoryPaymentRepository) Create(ctx context.Context, amount decimal.Decimal) (string, error) {
	if err := models.ValidateAmount(amount); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		ID:        uuid.New().String(),
		Amount:    amount,
		State:     models.StateInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[payment.ID] = payment
	r.order = append(r.order, payment.ID)
	return payment.ID, nil
}

func (r *MemoryPaymentRepository) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, models.ErrPaymentNotFound
	}
	cp := *payment
	return &cp, nil
}

func (r *MemoryPaymentRepository) SetState(ctx context.Context, paymentID string, state models.PaymentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return models.ErrPaymentNotFound
	}
	payment.State = state
	payment.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryPaymentRepository) ListAll(ctx context.Context) ([]*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Payment, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.payments[id]
		result = append(result, &cp)
	}
	return result, nil
}
