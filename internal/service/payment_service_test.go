package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/payment-statemachine/internal/interfaces"
	"github.com/akylbek/payment-system/payment-statemachine/internal/ledger"
	"github.com/akylbek/payment-system/payment-statemachine/internal/lock"
	"github.com/akylbek/payment-system/payment-statemachine/internal/models"
	"github.com/akylbek/payment-system/payment-statemachine/internal/repository"
	"github.com/akylbek/payment-system/payment-statemachine/internal/statemachine"
)

type flakyRepository struct {
	*repository.MemoryPaymentRepository
	mu          sync.Mutex
	setStateErr error
	failures    int // remaining failures, negative fails until reset
}

func (r *flakyRepository) SetState(ctx context.Context, paymentID string, state models.PaymentState) error {
	r.mu.Lock()
	err := r.setStateErr
	if err != nil && r.failures != 0 {
		if r.failures > 0 {
			r.failures--
		}
	} else {
		err = nil
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryPaymentRepository.SetState(ctx, paymentID, state)
}

func (r *flakyRepository) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStateErr = err
	r.failures = -1
}

func (r *flakyRepository) failOnce(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStateErr = err
	r.failures = 1
}

type unavailableLocker struct{}

func (unavailableLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, errors.New("dial tcp 10.0.0.7:6379: connection refused")
}

type testEnv struct {
	svc     *PaymentService
	repo    *flakyRepository
	account *ledger.Account
}

func setupTest(t *testing.T, balance, limit int64, locker interfaces.Locker) *testEnv {
	t.Helper()

	account, err := ledger.NewAccount(decimal.NewFromInt(balance), decimal.NewFromInt(limit))
	require.NoError(t, err)

	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	repo := &flakyRepository{MemoryPaymentRepository: repository.NewMemoryPaymentRepository()}
	svc := NewPaymentService(repo, locker, account, statemachine.NewPersistingInterceptor(repo, nil))
	return &testEnv{svc: svc, repo: repo, account: account}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertBalance(t *testing.T, env *testEnv, want string) {
	t.Helper()
	got := env.svc.Account().Balance
	assert.True(t, got.Equal(dec(want)), "balance %s, want %s", got, want)
}

// Balance 1000, limit 500: the walkthrough every client relies on.
func TestPaymentService_WorkedExample(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	declined, err := env.svc.CreatePayment(ctx, dec("600"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	require.NotNil(t, declined)
	assert.Equal(t, models.StateDeclined, declined.State)
	assertBalance(t, env, "1000")

	payment, err := env.svc.CreatePayment(ctx, dec("300"))
	require.NoError(t, err)
	assert.Equal(t, models.StateNew, payment.State)

	processed, err := env.svc.ProcessPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, processed.ID)
	assert.Equal(t, models.StateSuccess, processed.State)
	assertBalance(t, env, "700")

	again, err := env.svc.ProcessPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	require.NotNil(t, again)
	assert.Equal(t, models.StateSuccess, again.State)
	assertBalance(t, env, "700")

	stored, err := env.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, stored.State)
}

func TestPaymentService_CreatePayment(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		wantState models.PaymentState
		wantErr   error
	}{
		{"within limit", "499.99", models.StateNew, nil},
		{"exactly at limit", "500", models.StateNew, nil},
		{"over limit", "500.01", models.StateDeclined, models.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTest(t, 1000, 500, nil)

			payment, err := env.svc.CreatePayment(context.Background(), dec(tt.amount))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			require.NotNil(t, payment)
			assert.Equal(t, tt.wantState, payment.State)
			assertBalance(t, env, "1000")
		})
	}
}

func TestPaymentService_CreatePaymentInvalidAmount(t *testing.T) {
	env := setupTest(t, 1000, 500, nil)

	for _, amount := range []string{"0", "-5", "0.00001", "300.12345"} {
		payment, err := env.svc.CreatePayment(context.Background(), dec(amount))
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		assert.Nil(t, payment)
	}

	all, err := env.svc.ListPayments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "no record is created for an invalid amount")
}

func TestPaymentService_ProcessPaymentNotFound(t *testing.T) {
	env := setupTest(t, 1000, 500, nil)

	payment, err := env.svc.ProcessPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrPaymentNotFound)
	assert.Nil(t, payment)
	assertBalance(t, env, "1000")
}

func TestPaymentService_ProcessPaymentInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 400, 500, nil)

	payment, err := env.svc.CreatePayment(ctx, dec("450"))
	require.NoError(t, err)

	processed, err := env.svc.ProcessPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Equal(t, models.StateDeclined, processed.State)
	assertBalance(t, env, "400")

	_, err = env.svc.ProcessPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
}

func TestPaymentService_ProcessDeclinedPayment(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	declined, err := env.svc.CreatePayment(ctx, dec("700"))
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	payment, err := env.svc.ProcessPayment(ctx, declined.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	assert.Equal(t, models.StateDeclined, payment.State)
	assertBalance(t, env, "1000")
}

func TestPaymentService_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	payment, err := env.svc.CreatePayment(ctx, dec("250"))
	require.NoError(t, err)

	env.repo.failWith(errors.New("replica lag"))
	failed, err := env.svc.ProcessPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	assert.Equal(t, models.StateNew, failed.State)
	assertBalance(t, env, "1000")

	// Once the store recovers the same payment settles normally.
	env.repo.failWith(nil)
	settled, err := env.svc.ProcessPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, settled.State)
	assertBalance(t, env, "750")
}

func TestPaymentService_CreateDeclinesWhenLockUnavailable(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, unavailableLocker{})

	payment, err := env.svc.CreatePayment(ctx, dec("100"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInsufficientFunds)
	require.NotNil(t, payment)
	assert.Equal(t, models.StateDeclined, payment.State)

	stored, err := env.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDeclined, stored.State)
	assertBalance(t, env, "1000")
}

func TestPaymentService_CreateDeclinesAfterFailedCommit(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	env.repo.failOnce(errors.New("connection reset"))
	payment, err := env.svc.CreatePayment(ctx, dec("100"))
	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	require.NotNil(t, payment)
	assert.Equal(t, models.StateDeclined, payment.State)

	all, err := env.svc.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.StateDeclined, all[0].State)

	_, err = env.svc.ProcessPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	assertBalance(t, env, "1000")
}

func TestPaymentService_CreateStaysInitialWhileStoreIsDown(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	env.repo.failWith(errors.New("connection reset"))
	payment, err := env.svc.CreatePayment(ctx, dec("100"))
	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	require.NotNil(t, payment)
	assert.Equal(t, models.StateInitial, payment.State)

	stored, err := env.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitial, stored.State)
}

func TestPaymentService_ListPaymentsInOrder(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	var ids []string
	for _, amount := range []string{"10", "900", "20"} {
		payment, _ := env.svc.CreatePayment(ctx, dec(amount))
		require.NotNil(t, payment)
		ids = append(ids, payment.ID)
	}

	all, err := env.svc.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, payment := range all {
		assert.Equal(t, ids[i], payment.ID)
	}
	assert.Equal(t, models.StateDeclined, all[1].State)
}

func TestPaymentService_ConcurrentProcessSamePayment(t *testing.T) {
	ctx := context.Background()
	env := setupTest(t, 1000, 500, nil)

	payment, err := env.svc.CreatePayment(ctx, dec("100"))
	require.NoError(t, err)

	const attempts = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		repeats   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.ProcessPayment(ctx, payment.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrAlreadyProcessed):
				repeats++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, repeats)
	assertBalance(t, env, "900")
}

func TestPaymentService_ConcurrentSettlementAcrossPayments(t *testing.T) {
	lockers := map[string]func(t *testing.T) interfaces.Locker{
		"local": func(t *testing.T) interfaces.Locker { return lock.NewLocalLocker() },
		"redis": func(t *testing.T) interfaces.Locker {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return lock.NewRedisLocker(rdb)
		},
	}

	for name, newLocker := range lockers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := setupTest(t, 1000, 500, newLocker(t))

			amounts := []string{"120", "250", "75.5", "300", "499", "10", "180", "222.25", "60", "410"}
			payments := make([]*models.Payment, 0, len(amounts))
			for _, amount := range amounts {
				payment, err := env.svc.CreatePayment(ctx, dec(amount))
				require.NoError(t, err)
				payments = append(payments, payment)
			}

			var wg sync.WaitGroup
			for _, p := range payments {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					_, _ = env.svc.ProcessPayment(ctx, id)
				}(p.ID)
			}
			wg.Wait()

			approved := decimal.Zero
			for _, p := range payments {
				stored, err := env.svc.GetPayment(ctx, p.ID)
				require.NoError(t, err)
				require.True(t, stored.State.IsTerminal(), "payment %s stuck in %s", p.ID, stored.State)
				if stored.State == models.StateSuccess {
					approved = approved.Add(stored.Amount)
				}
			}

			balance := env.svc.Account().Balance
			assert.False(t, balance.IsNegative())
			assert.True(t, balance.Equal(dec("1000").Sub(approved)), "balance %s, approved %s", balance, approved)
		})
	}
}

func TestPaymentService_Account(t *testing.T) {
	env := setupTest(t, 1000, 500, nil)

	info := env.svc.Account()
	assert.True(t, info.Balance.Equal(dec("1000")))
	assert.True(t, info.LimitPerPayment.Equal(dec("500")))
}
