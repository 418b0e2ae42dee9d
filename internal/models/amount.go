package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are stored as NUMERIC(19, 4): four fractional and fifteen integer digits.
const (
	AmountScale         = 4
	AmountIntegerDigits = 15
)

var amountUpperBound = decimal.New(1, AmountIntegerDigits)

// ValidateAmount rejects amounts the payment store cannot keep exactly.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountScale)
	}
	if amount.GreaterThanOrEqual(amountUpperBound) {
		return fmt.Errorf("%w: must be below %s", ErrInvalidAmount, amountUpperBound)
	}
	return nil
}
