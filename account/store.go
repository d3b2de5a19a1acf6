// Package account defines the contract to the external account store. The
// engine never owns a balance: it reads, conditionally debits, and credits
// through this interface and treats everything behind it as remote state.
package account

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is thrown when no account exists for a user.
	ErrNotFound = errors.New("account: not found")
	// ErrInsufficientFunds is returned when a conditional debit would take
	// the balance below zero. No partial debit is ever applied.
	ErrInsufficientFunds = errors.New("account: insufficient funds")
)

// Store is the interface to the backend account store. Debit must be atomic:
// it succeeds and returns the new balance only when the stored balance is at
// least amount, and applies nothing otherwise. Credit is unconditional and
// creates the account if it is missing.
type Store interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
}

// InMemStore returns an in memory implementation of the Store interface.
func InMemStore() Store {
	return &inmem{balances: map[string]int64{}}
}

type inmem struct {
	balances map[string]int64
	lock     sync.Mutex
}

func (in *inmem) Balance(ctx context.Context, userID string) (int64, error) {
	in.lock.Lock()
	defer in.lock.Unlock()

	bal, ok := in.balances[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

func (in *inmem) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	in.lock.Lock()
	defer in.lock.Unlock()

	bal := in.balances[userID]
	if bal < amount {
		return 0, ErrInsufficientFunds
	}
	in.balances[userID] = bal - amount
	return bal - amount, nil
}

func (in *inmem) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	in.lock.Lock()
	defer in.lock.Unlock()

	in.balances[userID] += amount
	return in.balances[userID], nil
}
