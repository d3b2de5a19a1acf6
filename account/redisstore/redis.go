// Package redisstore implements the account store on redis. The conditional
// debit runs as a Lua script so the read-check-decrement is atomic on the
// server, which is the only serialization point for a user's balance.
package redisstore

import (
	"context"
	"fmt"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/slitherpit/engine/account"
)

// debitScript decrements the balance only when it covers the amount. Returns
// the new balance, or -1 when the account is missing or short.
const debitScript = `
local bal = redis.call('GET', KEYS[1])
if not bal then return -1 end
if tonumber(bal) < tonumber(ARGV[1]) then return -1 end
return redis.call('DECRBY', KEYS[1], ARGV[1])
`

// Store is a redis backed account store.
type Store struct {
	client *redis.Client
}

// NewStore connects a store to the redis instance at connectURL (any URL
// redis.ParseURL accepts). The connection is pinged before returning, so a
// bad URL or an unreachable server fails here rather than on first use. The
// returned store is safe for concurrent use and should be shared, not
// recreated per caller.
func NewStore(connectURL string) (*Store, error) {
	o, err := redis.ParseURL(connectURL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse redis URL")
	}

	client := redis.NewClient(o)
	if err := client.Ping().Err(); err != nil {
		return nil, errors.Wrap(err, "unable to connect")
	}

	return &Store{client: client}, nil
}

func balanceKey(userID string) string {
	return fmt.Sprintf("credits:%s", userID)
}

// Balance returns the current balance for the user.
func (rs *Store) Balance(ctx context.Context, userID string) (int64, error) {
	bal, err := rs.client.Get(balanceKey(userID)).Int64()
	if err == redis.Nil {
		return 0, account.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "unable to read balance")
	}
	return bal, nil
}

// Debit atomically subtracts amount when the balance covers it.
func (rs *Store) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	res, err := rs.client.Eval(debitScript, []string{balanceKey(userID)}, amount).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "unable to debit balance")
	}
	if res < 0 {
		return 0, account.ErrInsufficientFunds
	}
	return res, nil
}

// Credit unconditionally adds amount, creating the account if missing.
func (rs *Store) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	bal, err := rs.client.IncrBy(balanceKey(userID), amount).Result()
	if err != nil {
		return 0, errors.Wrap(err, "unable to credit balance")
	}
	return bal, nil
}

// Close closes the underlying redis client.
func (rs *Store) Close() error {
	return rs.client.Close()
}
