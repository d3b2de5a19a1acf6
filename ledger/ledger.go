// Package ledger performs the credit transfers tied to entering and leaving a
// match: stake escrow on entry, payout on cashout. It is the only component
// that talks to the account store, always outside the simulation tick path.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/slitherpit/engine/account"
)

var (
	// ErrInvalidStake is returned when the stake is not an allowed tier.
	ErrInvalidStake = errors.New("ledger: invalid stake")
	// ErrInsufficientFunds is returned when the balance can't cover the stake.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrUnavailable is returned when the account store can't be reached.
	// The operation applied no mutation and may be retried.
	ErrUnavailable = errors.New("ledger: account store unavailable")
	// ErrAlreadySettled is returned for a duplicate cashout. The original
	// settlement stands.
	ErrAlreadySettled = errors.New("ledger: escrow already settled")
	// ErrTokenReused is thrown when a match token is presented twice.
	ErrTokenReused = errors.New("ledger: match token already used")
)

var escrowsSettled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "ledger",
		Name:      "escrows_settled",
		Help:      "Escrows settled, by outcome.",
	},
	[]string{"outcome"},
)

func init() { prometheus.MustRegister(escrowsSettled) }

// PayoutPolicy computes the cashout payout from the escrowed stake and the
// player's length at cashout time. Must be deterministic and server-side only.
type PayoutPolicy func(stake int64, length int) int64

// FlatPayout refunds exactly the escrowed stake.
func FlatPayout(stake int64, length int) int64 { return stake }

// LengthScaledPayout scales the stake by in-match growth relative to the
// spawn length.
func LengthScaledPayout(spawnLength int) PayoutPolicy {
	return func(stake int64, length int) int64 {
		if length < spawnLength {
			length = spawnLength
		}
		return stake * int64(length) / int64(spawnLength)
	}
}

type escrowState int

const (
	escrowOpen escrowState = iota
	escrowSettling
	escrowSettled
	escrowForfeited
)

type escrow struct {
	userID   string
	stake    int64
	state    escrowState
	redeemed bool
}

// Ledger escrows stakes against an external account store and settles them on
// cashout. The escrow registry is in-process state: a match lives inside one
// authoritative process, so the registry is the serialization point for
// settlement idempotency.
type Ledger struct {
	store   account.Store
	signer  *TokenSigner
	tiers   map[int64]bool
	payout  PayoutPolicy
	timeout time.Duration

	mu      sync.Mutex
	escrows map[string]*escrow
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPayoutPolicy overrides the default flat-refund payout.
func WithPayoutPolicy(p PayoutPolicy) Option {
	return func(l *Ledger) { l.payout = p }
}

// WithStoreTimeout bounds every account store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// New returns a ledger over the given store. Tiers are the allowed stakes.
func New(store account.Store, signer *TokenSigner, tiers []int64, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		signer:  signer,
		tiers:   make(map[int64]bool, len(tiers)),
		payout:  FlatPayout,
		timeout: 5 * time.Second,
		escrows: map[string]*escrow{},
	}
	for _, t := range tiers {
		l.tiers[t] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

// EnterMatch debits the stake and mints a match token for it. The debit and
// mint are one logical operation: a mint failure reverses the debit before
// returning.
func (l *Ledger) EnterMatch(ctx context.Context, userID string, stake int64) (string, error) {
	if !l.tiers[stake] {
		return "", ErrInvalidStake
	}

	dctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if _, err := l.store.Debit(dctx, userID, stake); err != nil {
		if err == account.ErrInsufficientFunds {
			return "", ErrInsufficientFunds
		}
		log.WithError(err).WithField("user", userID).Error("stake debit failed")
		return "", ErrUnavailable
	}

	escrowID := uuid.NewV4().String()
	token, err := l.signer.Mint(userID, stake, escrowID)
	if err != nil {
		// Compensating credit: the debit must not survive a failed mint.
		cctx, ccancel := l.storeCtx(context.Background())
		defer ccancel()
		if _, cerr := l.store.Credit(cctx, userID, stake); cerr != nil {
			log.WithError(cerr).
				WithField("user", userID).
				WithField("stake", stake).
				Error("compensating credit failed, stake stranded")
		}
		return "", err
	}

	l.mu.Lock()
	l.escrows[escrowID] = &escrow{userID: userID, stake: stake}
	l.mu.Unlock()

	log.WithField("user", userID).
		WithField("stake", stake).
		WithField("escrow", escrowID).
		Info("stake escrowed")
	return token, nil
}

// Redeem validates a match token and consumes it. A token redeems exactly
// once; later presentations fail with ErrTokenReused and never authorize a
// second session for the same mint.
func (l *Ledger) Redeem(token string) (Claims, error) {
	claims, err := l.signer.Verify(token)
	if err != nil {
		return Claims{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.escrows[claims.EscrowID]
	if !ok || e.userID != claims.UserID {
		return Claims{}, ErrTokenInvalid
	}
	if e.redeemed {
		return Claims{}, ErrTokenReused
	}
	e.redeemed = true
	return claims, nil
}

// Cashout settles the escrow: the payout is credited back to the account
// store and the escrow is marked settled. Idempotent per escrow: only the
// first call pays out, every later call returns ErrAlreadySettled. A store
// failure leaves the escrow open so the cashout may be retried.
func (l *Ledger) Cashout(ctx context.Context, escrowID string, length int) (int64, error) {
	l.mu.Lock()
	e, ok := l.escrows[escrowID]
	if !ok || e.state != escrowOpen {
		l.mu.Unlock()
		return 0, ErrAlreadySettled
	}
	e.state = escrowSettling
	l.mu.Unlock()

	payout := l.payout(e.stake, length)

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if _, err := l.store.Credit(cctx, e.userID, payout); err != nil {
		// Timed-out or failed credit is treated as not applied; reopen so a
		// retry can settle.
		l.mu.Lock()
		e.state = escrowOpen
		l.mu.Unlock()
		log.WithError(err).
			WithField("user", e.userID).
			WithField("escrow", escrowID).
			Error("cashout credit failed")
		return 0, ErrUnavailable
	}

	l.mu.Lock()
	e.state = escrowSettled
	l.mu.Unlock()

	escrowsSettled.WithLabelValues("cashout").Inc()
	log.WithField("user", e.userID).
		WithField("escrow", escrowID).
		WithField("payout", payout).
		Info("escrow settled")
	return payout, nil
}

// Refund cancels an escrow whose match never started: the stake is credited
// back and the escrow closed. This is the path for a redeemed token whose
// player could not be registered; the user played zero ticks, so the
// abandonment-forfeits rule does not apply. A store failure reopens the
// escrow so the refund may be retried.
func (l *Ledger) Refund(ctx context.Context, escrowID string) error {
	l.mu.Lock()
	e, ok := l.escrows[escrowID]
	if !ok || e.state != escrowOpen {
		l.mu.Unlock()
		return ErrAlreadySettled
	}
	e.state = escrowSettling
	l.mu.Unlock()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if _, err := l.store.Credit(cctx, e.userID, e.stake); err != nil {
		l.mu.Lock()
		e.state = escrowOpen
		l.mu.Unlock()
		log.WithError(err).
			WithField("user", e.userID).
			WithField("escrow", escrowID).
			Error("refund credit failed")
		return ErrUnavailable
	}

	l.mu.Lock()
	e.state = escrowSettled
	l.mu.Unlock()

	escrowsSettled.WithLabelValues("refund").Inc()
	log.WithField("user", e.userID).
		WithField("escrow", escrowID).
		WithField("stake", e.stake).
		Info("escrow refunded")
	return nil
}

// Forfeit marks an abandoned escrow. The stake stays debited: disconnecting
// without cashing out forfeits the escrow. No-op for settled escrows.
func (l *Ledger) Forfeit(escrowID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.escrows[escrowID]
	if !ok || e.state != escrowOpen {
		return
	}
	e.state = escrowForfeited
	escrowsSettled.WithLabelValues("forfeit").Inc()
	log.WithField("user", e.userID).
		WithField("escrow", escrowID).
		WithField("stake", e.stake).
		Info("escrow forfeited")
}
