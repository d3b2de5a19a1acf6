package account_test

import (
	"testing"

	"github.com/slitherpit/engine/account"
	"github.com/slitherpit/engine/account/testsuite"
)

func TestInMemStore(t *testing.T) {
	testsuite.Suite(t, account.InMemStore(), func() {})
}

func TestInstrumentedStore(t *testing.T) {
	testsuite.Suite(t, account.InstrumentStore(account.InMemStore()), func() {})
}
