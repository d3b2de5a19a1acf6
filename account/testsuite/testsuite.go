// Package testsuite holds the conformance suite every account store backend
// must pass. Backends call Suite from their own tests with a pretest hook
// that resets backend state.
package testsuite

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/require"

	"github.com/slitherpit/engine/account"
)

func testBalanceNotFound(t *testing.T, s account.Store) {
	ctx := context.Background()

	_, err := s.Balance(ctx, uuid.NewV4().String())
	require.Equal(t, account.ErrNotFound, err)
}

func testCreditCreates(t *testing.T, s account.Store) {
	user := uuid.NewV4().String()
	ctx := context.Background()

	// Credit an account that doesn't exist yet.
	bal, err := s.Credit(ctx, user, 250)
	require.Nil(t, err)
	require.Equal(t, int64(250), bal)

	// Credit again, balance accumulates.
	bal, err = s.Credit(ctx, user, 250)
	require.Nil(t, err)
	require.Equal(t, int64(500), bal)

	bal, err = s.Balance(ctx, user)
	require.Nil(t, err)
	require.Equal(t, int64(500), bal)
}

func testDebit(t *testing.T, s account.Store) {
	user := uuid.NewV4().String()
	ctx := context.Background()

	_, err := s.Credit(ctx, user, 1000)
	require.Nil(t, err)

	// Debit within balance.
	bal, err := s.Debit(ctx, user, 400)
	require.Nil(t, err)
	require.Equal(t, int64(600), bal)

	// Debit beyond balance fails, nothing applied.
	_, err = s.Debit(ctx, user, 601)
	require.Equal(t, account.ErrInsufficientFunds, err)
	bal, err = s.Balance(ctx, user)
	require.Nil(t, err)
	require.Equal(t, int64(600), bal)

	// Debit to exactly zero is allowed.
	bal, err = s.Debit(ctx, user, 600)
	require.Nil(t, err)
	require.Equal(t, int64(0), bal)
}

func testDebitMissingAccount(t *testing.T, s account.Store) {
	ctx := context.Background()

	// A missing account never has funds.
	_, err := s.Debit(ctx, uuid.NewV4().String(), 100)
	require.Equal(t, account.ErrInsufficientFunds, err)
}

func testConcurrentDebits(t *testing.T, s account.Store) {
	user := uuid.NewV4().String()
	ctx := context.Background()

	_, err := s.Credit(ctx, user, 1000)
	require.Nil(t, err)

	var ok uint32 // How many debits succeeded.
	var wg sync.WaitGroup
	wg.Add(20)

	for i := 0; i < 20; i++ {
		go func() {
			if _, errd := s.Debit(ctx, user, 300); errd == nil {
				atomic.AddUint32(&ok, 1)
			}
			wg.Done()
		}()
	}

	wg.Wait()

	// 1000 credits fund exactly three 300-credit debits.
	require.Equal(t, uint32(3), ok)

	bal, err := s.Balance(ctx, user)
	require.Nil(t, err)
	require.Equal(t, int64(100), bal)
}

// Suite will execute the store testsuite.
func Suite(t *testing.T, s account.Store, pretest func()) {
	s = account.InstrumentStore(s)
	t.Run("BalanceNotFound", func(t *testing.T) { pretest(); testBalanceNotFound(t, s) })
	t.Run("CreditCreates", func(t *testing.T) { pretest(); testCreditCreates(t, s) })
	t.Run("Debit", func(t *testing.T) { pretest(); testDebit(t, s) })
	t.Run("DebitMissingAccount", func(t *testing.T) { pretest(); testDebitMissingAccount(t, s) })
	t.Run("ConcurrentDebits", func(t *testing.T) { pretest(); testConcurrentDebits(t, s) })
}
