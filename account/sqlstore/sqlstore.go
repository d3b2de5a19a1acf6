// Package sqlstore implements the account store on postgres. Conditional
// debits rely on a single UPDATE guarded by the balance check, so the
// database's row lock is the atomicity boundary.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // Import pq driver.
	log "github.com/sirupsen/logrus"

	"github.com/slitherpit/engine/account"
	"github.com/slitherpit/engine/config"
)

const migrations = `
CREATE TABLE IF NOT EXISTS accounts (
	id VARCHAR(255) PRIMARY KEY,
	balance BIGINT NOT NULL DEFAULT 0,
	updated TIMESTAMP NOT NULL DEFAULT now()
);
`

// NewSQLStore returns a new store using a postgres database.
func NewSQLStore(url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	if err = db.PingContext(ctx); err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx, migrations)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Store represents an SQL store.
type Store struct {
	db *sql.DB
}

// transact is a transaction wrapper, helps avoid failed to close connections.
func (s *Store) transact(
	ctx context.Context, txFunc func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			if rErr := tx.Rollback(); rErr != nil {
				log.WithError(rErr).Error("rollback failed")
			}
			panic(p) // re-throw panic after Rollback
		} else if err != nil {
			// err is non-nil; don't change it
			if rErr := tx.Rollback(); rErr != nil {
				log.WithError(rErr).Error("rollback failed")
			}
		} else {
			err = tx.Commit() // err is nil; if Commit returns error update err
		}
	}()
	err = txFunc(tx)
	return err
}

// Balance returns the current balance for the user.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx,
		"SELECT balance FROM accounts WHERE id=$1", userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, account.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return bal, nil
}

// Debit conditionally subtracts amount from the balance. The UPDATE guard
// means a concurrent debit can never take the balance negative.
func (s *Store) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	var bal int64
	err := s.transact(ctx, func(tx *sql.Tx) error {
		r := tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance=balance-$2, updated=now()
		WHERE id=$1 AND balance >= $2
		RETURNING balance`,
			userID, amount,
		)
		if err := r.Scan(&bal); err != nil {
			if err == sql.ErrNoRows {
				return account.ErrInsufficientFunds
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return bal, nil
}

// Credit unconditionally adds amount, creating the account if missing.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	var bal int64
	err := s.transact(ctx, func(tx *sql.Tx) error {
		r := tx.QueryRowContext(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id)
		DO UPDATE SET balance=accounts.balance+$2, updated=now()
		RETURNING balance`,
			userID, amount,
		)
		return r.Scan(&bal)
	})
	if err != nil {
		return 0, err
	}
	return bal, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
