package account

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentStore wraps all store methods to instrument the underlying calls.
func InstrumentStore(s Store) Store { return &metrics{s} }

var (
	storeCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arena",
			Subsystem: "account",
			Name:      "store_calls",
			Help:      "Calls processed by the account store.",
		},
		[]string{"method"},
	)
)

func instrument(method string) func() {
	t := prometheus.NewTimer(storeCalls.WithLabelValues(method))
	return func() { t.ObserveDuration() }
}

func init() {
	prometheus.MustRegister(storeCalls)
}

type metrics struct{ s Store }

func (m *metrics) Balance(ctx context.Context, userID string) (int64, error) {
	defer instrument("Balance")()
	return m.s.Balance(ctx, userID)
}

func (m *metrics) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	defer instrument("Debit")()
	return m.s.Debit(ctx, userID, amount)
}

func (m *metrics) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	defer instrument("Credit")()
	return m.s.Credit(ctx, userID, amount)
}
