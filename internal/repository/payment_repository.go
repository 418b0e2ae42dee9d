package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
)

// PostgresPaymentRepository stores payment records in PostgreSQL.
type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

func (r *PostgresPaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			seq BIGSERIAL UNIQUE,
			id VARCHAR(36) PRIMARY KEY,
			state VARCHAR(20) NOT NULL,
			amount NUMERIC(19, 4) NOT NULL CHECK (amount > 0),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_state ON payments(state)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, amount decimal.Decimal) (string, error) {
	if err := models.ValidateAmount(amount); err != nil {
		return "", err
	}

	paymentID := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, state, amount)
		VALUES ($1, $2, $3)
	`, paymentID, string(models.StateInitial), amount)
	if err != nil {
		return "", fmt.Errorf("insert payment: %w", err)
	}
	return paymentID, nil
}

func (r *PostgresPaymentRepository) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, state, amount, created_at, updated_at
		FROM payments WHERE id = $1
	`, paymentID)

	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select payment %s: %w", paymentID, err)
	}
	return payment, nil
}

func (r *PostgresPaymentRepository) SetState(ctx context.Context, paymentID string, state models.PaymentState) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET state = $1, updated_at = NOW()
		WHERE id = $2
	`, string(state), paymentID)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", paymentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment %s: %w", paymentID, err)
	}
	if rows == 0 {
		return models.ErrPaymentNotFound
	}
	return nil
}

func (r *PostgresPaymentRepository) ListAll(ctx context.Context) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state, amount, created_at, updated_at
		FROM payments ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*models.Payment, error) {
	var (
		payment models.Payment
		state   string
	)
	if err := s.Scan(&payment.ID, &state, &payment.Amount, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		return nil, err
	}
	payment.State = models.PaymentState(state)
	return &payment, nil
}
