package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
)

// StateChangePublisher announces transitions that have already been persisted.
type StateChangePublisher interface {
	Publish(ctx context.Context, event models.StateChangedEvent) error
	Close() error
}
