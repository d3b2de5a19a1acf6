package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slitherpit/engine/account"
	"github.com/slitherpit/engine/arena"
	"github.com/slitherpit/engine/ledger"
)

type gateway struct {
	srv    *Server
	store  account.Store
	ledger *ledger.Ledger
	world  *arena.World
	cancel context.CancelFunc
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	return newGatewayWithStore(t, account.InMemStore())
}

func newGatewayWithStore(t *testing.T, store account.Store) *gateway {
	t.Helper()

	signer := ledger.NewTokenSigner([]byte("test-secret"), time.Hour)
	l := ledger.New(store, signer, []int64{100, 500, 1000})
	world := arena.New(arena.Config{Seed: 1, PelletTarget: 5, SaturationLimit: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	go world.Run(ctx)

	s := New(":0", world, l, store, InsecureIdentity{})
	g := &gateway{srv: s, store: store, ledger: l, world: world, cancel: cancel}
	t.Cleanup(cancel)
	return g
}

func creditAccount(t *testing.T, g *gateway, user string, amount int64) {
	t.Helper()
	_, err := g.store.Credit(context.Background(), user, amount)
	require.NoError(t, err)
}

func (g *gateway) request(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Buffer
	if body != "" {
		r = bytes.NewBufferString(body)
	} else {
		r = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rr := httptest.NewRecorder()
	g.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestVersionRoute(t *testing.T) {
	g := newGateway(t)

	rr := g.request(t, "GET", "/version", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "version")
}

func TestEnterMatchRequiresAuth(t *testing.T) {
	g := newGateway(t)

	rr := g.request(t, "POST", "/enter-match", "", `{"stake":100}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid token")
}

func TestEnterMatchInvalidStake(t *testing.T) {
	g := newGateway(t)
	creditAccount(t, g, "alice", 1000)

	rr := g.request(t, "POST", "/enter-match", "alice", `{"stake":250}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid stake")

	rr = g.request(t, "POST", "/enter-match", "alice", `not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEnterMatchInsufficientCredits(t *testing.T) {
	g := newGateway(t)
	creditAccount(t, g, "alice", 50)

	rr := g.request(t, "POST", "/enter-match", "alice", `{"stake":100}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Insufficient credits")
}

func TestEnterMatchDebitsAndMints(t *testing.T) {
	g := newGateway(t)
	creditAccount(t, g, "alice", 1000)

	rr := g.request(t, "POST", "/enter-match", "alice", `{"stake":100}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp enterMatchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.MatchToken)
	require.Equal(t, int64(100), resp.Stake)

	balance, err := g.store.Balance(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(900), balance)
}

func TestAccountBalance(t *testing.T) {
	g := newGateway(t)
	creditAccount(t, g, "alice", 750)

	rr := g.request(t, "GET", "/account", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(750), resp["credits"])

	rr = g.request(t, "GET", "/account", "nobody", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = g.request(t, "GET", "/account", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	g := newGateway(t)

	req, err := http.NewRequest("GET", "/account", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic alice")
	rr := httptest.NewRecorder()
	g.srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	g := newGateway(t)

	req, err := http.NewRequest("OPTIONS", "/enter-match", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	g.srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func enterMatchToken(t *testing.T, g *gateway, user string, stake int64) string {
	t.Helper()
	rr := g.request(t, "POST", "/enter-match", user, fmt.Sprintf(`{"stake":%d}`, stake))
	require.Equal(t, http.StatusOK, rr.Code)
	var resp enterMatchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.MatchToken
}
