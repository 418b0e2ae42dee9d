package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/interfaces"
	"github.com/akylbek/payment-system/payment-statemachine/internal/ledger"
	"github.com/akylbek/payment-system/payment-statemachine/internal/metrics"
	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
	"github.com/akylbek/payment-system/payment-statemachine/internal/statemachine"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

const abandonTimeout = 5 * time.Second

// PaymentService rebuilds the state machine from the stored record for every
// request and feeds it one event while holding the payment's lock.
type PaymentService struct {
	repo    interfaces.PaymentRepository
	locker  interfaces.Locker
	account *ledger.Account
	machine *statemachine.Machine
}

func NewPaymentService(
	repo interfaces.PaymentRepository,
	locker interfaces.Locker,
	account *ledger.Account,
	interceptor statemachine.Interceptor,
) *PaymentService {
	metrics.SetAccountBalance(account.Balance())
	return &PaymentService{
		repo:    repo,
		locker:  locker,
		account: account,
		machine: statemachine.NewMachine(statemachine.PaymentTable(account), interceptor),
	}
}

// CreatePayment stores a new payment and runs pre-authorization on it.
// On ErrInsufficientFunds the returned payment is DECLINED.
func (s *PaymentService) CreatePayment(ctx context.Context, amount decimal.Decimal) (payment *models.Payment, err error) {
	ctx, span := telemetry.Tracer.Start(ctx, "PaymentService.CreatePayment")
	defer span.End()
	defer s.observe("create", span, time.Now(), &err)

	span.SetAttributes(attribute.String("payment.amount", amount.String()))

	paymentID, err := s.repo.Create(ctx, amount)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", paymentID))

	payment, err = s.fire(ctx, paymentID, models.EventCreatePayment)
	if err != nil && !errors.Is(err, models.ErrInsufficientFunds) {
		if declined := s.abandon(ctx, paymentID, err); declined != nil {
			payment = declined
		}
	}
	return payment, err
}

// ProcessPayment settles a pre-authorized payment against the account balance.
// The payment is returned with every error except ErrPaymentNotFound.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID string) (payment *models.Payment, err error) {
	ctx, span := telemetry.Tracer.Start(ctx, "PaymentService.ProcessPayment")
	defer span.End()
	defer s.observe("process", span, time.Now(), &err)

	span.SetAttributes(attribute.String("payment.id", paymentID))

	return s.fire(ctx, paymentID, models.EventSubtractMoney)
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.repo.Get(ctx, paymentID)
}

func (s *PaymentService) ListPayments(ctx context.Context) ([]*models.Payment, error) {
	return s.repo.ListAll(ctx)
}

func (s *PaymentService) Account() models.AccountInfo {
	return models.AccountInfo{
		Balance:         s.account.Balance(),
		LimitPerPayment: s.account.Limit(),
	}
}

// abandon declines a payment whose pre-authorization did not commit, so the
// record does not stay in INITIAL. The id has not been handed out yet, so the
// payment lock is not taken. Returns nil if the decline could not be stored.
func (s *PaymentService) abandon(ctx context.Context, paymentID string, cause error) *models.Payment {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()

	payment, err := s.repo.Get(ctx, paymentID)
	if err == nil {
		_, err = s.machine.Fire(ctx, payment, models.EventDeclinePayment)
	}
	if err != nil {
		telemetry.Logger.Error("Payment left in INITIAL after failed pre-authorization",
			zap.String("payment_id", paymentID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return nil
	}

	telemetry.Logger.Warn("Payment declined after failed pre-authorization",
		zap.String("payment_id", paymentID),
		zap.NamedError("cause", cause),
	)
	return payment
}

func (s *PaymentService) fire(ctx context.Context, paymentID string, event models.PaymentEvent) (*models.Payment, error) {
	unlock, err := s.locker.Lock(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("lock payment %s: %w", paymentID, err)
	}
	defer unlock()

	payment, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if _, err := s.machine.Fire(ctx, payment, event); err != nil {
		if errors.Is(err, models.ErrAlreadyProcessed) {
			telemetry.Logger.Warn("Payment already processed",
				zap.String("payment_id", paymentID),
				zap.String("state", string(payment.State)),
			)
		}
		return payment, err
	}

	if event == models.EventSubtractMoney {
		metrics.SetAccountBalance(s.account.Balance())
	}
	return payment, nil
}

// observe records the outcome of an operation once it returns.
// Declines are counted on their own and leave the span status untouched.
func (s *PaymentService) observe(operation string, span trace.Span, start time.Time, errp *error) {
	outcome := metrics.OutcomeSuccess
	if err := *errp; err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			outcome = metrics.OutcomeDeclined
		} else {
			outcome = metrics.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	metrics.RecordOperation(operation, outcome, time.Since(start))
}
