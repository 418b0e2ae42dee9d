package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// PaymentCommands is the part of the payment service the consumer drives.
type PaymentCommands interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal) (*models.Payment, error)
	ProcessPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

// CommandConsumer feeds payment commands from a Kafka topic into the service.
type CommandConsumer struct {
	reader   messageReader
	commands PaymentCommands
}

func NewCommandConsumer(brokers []string, topic, groupID string, commands PaymentCommands) *CommandConsumer {
	return &CommandConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		commands: commands,
	}
}

// Run consumes until ctx is cancelled. Bad messages and declined payments are
// logged and skipped.
func (c *CommandConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	telemetry.Logger.Info("Started consuming payment commands")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				telemetry.Logger.Info("Stopped consuming payment commands")
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			telemetry.Logger.Error("Error handling payment command",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *CommandConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var cmd models.PaymentCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	var (
		payment *models.Payment
		err     error
	)
	switch cmd.Action {
	case models.CommandCreate:
		payment, err = c.commands.CreatePayment(ctx, cmd.Amount)
	case models.CommandProcess:
		payment, err = c.commands.ProcessPayment(ctx, cmd.PaymentID)
	default:
		return fmt.Errorf("unknown command action %q", cmd.Action)
	}

	if err != nil && !errors.Is(err, models.ErrInsufficientFunds) {
		return fmt.Errorf("%s payment: %w", cmd.Action, err)
	}

	telemetry.Logger.Info("Payment command handled",
		zap.String("action", cmd.Action),
		zap.String("payment_id", payment.ID),
		zap.String("state", string(payment.State)),
	)
	return nil
}
