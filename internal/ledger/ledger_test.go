package ledger

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T, balance, limit string) *Account {
	t.Helper()
	acc, err := NewAccount(decimal.RequireFromString(balance), decimal.RequireFromString(limit))
	require.NoError(t, err)
	return acc
}

func TestNewAccount_Validation(t *testing.T) {
	_, err := NewAccount(decimal.NewFromInt(-1), decimal.NewFromInt(10))
	assert.Error(t, err)

	_, err = NewAccount(decimal.NewFromInt(10), decimal.Zero)
	assert.Error(t, err)

	acc, err := NewAccount(decimal.Zero, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, acc.Balance().IsZero())
}

func TestTryReserve(t *testing.T) {
	acc := newTestAccount(t, "1000", "500")

	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"below limit", "499.99", true},
		{"exactly at limit", "500", true},
		{"above limit", "500.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, acc.TryReserve(decimal.RequireFromString(tt.amount)))
		})
	}
	assert.True(t, acc.Balance().Equal(decimal.NewFromInt(1000)), "reserve must not touch the balance")
}

func TestTryDebit(t *testing.T) {
	tests := []struct {
		name        string
		balance     string
		amount      string
		approved    bool
		wantBalance string
	}{
		{"covered", "1000", "300", true, "700"},
		{"exactly the balance", "300", "300", true, "0"},
		{"not covered", "299.99", "300", false, "299.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := newTestAccount(t, tt.balance, "500")
			assert.Equal(t, tt.approved, acc.TryDebit(decimal.RequireFromString(tt.amount)))
			assert.True(t, acc.Balance().Equal(decimal.RequireFromString(tt.wantBalance)),
				"balance %s, want %s", acc.Balance(), tt.wantBalance)
		})
	}
}

func TestRestore(t *testing.T) {
	acc := newTestAccount(t, "100", "500")
	require.True(t, acc.TryDebit(decimal.NewFromInt(40)))
	acc.Restore(decimal.NewFromInt(40))
	assert.True(t, acc.Balance().Equal(decimal.NewFromInt(100)))
}

func TestTryDebit_Concurrent(t *testing.T) {
	acc := newTestAccount(t, "1000", "500")

	const workers = 50
	amount := decimal.NewFromInt(30)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved = decimal.Zero
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if acc.TryDebit(amount) {
				mu.Lock()
				approved = approved.Add(amount)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 33 * 30 = 990; the 34th debit would overdraw.
	assert.True(t, approved.Equal(decimal.NewFromInt(990)), "approved %s", approved)
	assert.True(t, acc.Balance().Equal(decimal.NewFromInt(10)), "balance %s", acc.Balance())
	assert.False(t, acc.Balance().IsNegative())
}
