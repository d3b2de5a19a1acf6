package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/slitherpit/engine/account"
	"github.com/slitherpit/engine/ledger"
	"github.com/slitherpit/engine/protocol"
)

func dialArena(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/arena?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readFrame returns the next frame of the wanted type, skipping others.
// Snapshots stream constantly, so most reads skip a few of them.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) map[string]json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(msg, &frame))
		var frameType string
		require.NoError(t, json.Unmarshal(frame["type"], &frameType))
		if frameType == wantType {
			return frame
		}
	}
	t.Fatalf("no %q frame within deadline", wantType)
	return nil
}

func readSnapshot(t *testing.T, conn *websocket.Conn) protocol.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var snap protocol.Snapshot
		require.NoError(t, json.Unmarshal(msg, &snap))
		if snap.Type == protocol.MsgSnapshot {
			return snap
		}
	}
}

func findPlayer(t *testing.T, snap protocol.Snapshot, id string) protocol.PlayerSnapshot {
	t.Helper()
	for _, p := range snap.Players {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("player %s not in snapshot", id)
	return protocol.PlayerSnapshot{}
}

func TestSessionFullMatch(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	token := enterMatchToken(t, g, "alice", 100)

	conn := dialArena(t, ts, token)

	// The stream starts as soon as the player joins.
	first := readSnapshot(t, conn)
	start := findPlayer(t, first, "alice")
	require.Equal(t, 6, start.Length)

	// Steer east and confirm the authoritative position advances.
	input, err := json.Marshal(map[string]interface{}{
		"type": "input", "dir": map[string]float64{"x": 1, "y": 0}, "boost": false,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, input))

	var moved bool
	for i := 0; i < 30; i++ {
		snap := readSnapshot(t, conn)
		if findPlayer(t, snap, "alice").X > start.X {
			moved = true
			break
		}
	}
	require.True(t, moved, "input should move the player east")

	// Cash out and collect the stake back.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cashout"}`)))
	frame := readFrame(t, conn, "cashout_success")
	var payout int64
	require.NoError(t, json.Unmarshal(frame["payout"], &payout))
	require.Equal(t, int64(100), payout)

	require.Eventually(t, func() bool {
		balance, err := g.store.Balance(context.Background(), "alice")
		return err == nil && balance == 1000
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSessionRejectsBadToken(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	conn := dialArena(t, ts, "not-a-token")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestMatchTokenSingleUse(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	token := enterMatchToken(t, g, "alice", 100)

	first := dialArena(t, ts, token)
	readSnapshot(t, first)

	second := dialArena(t, ts, token)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))

	// The original session is untouched.
	readSnapshot(t, first)
}

func TestSessionHelloAndMalformedFrames(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	conn := dialArena(t, ts, enterMatchToken(t, g, "alice", 100))

	// Garbage frames are dropped without killing the session.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{{{`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","x":0}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","ts":42}`)))

	frame := readFrame(t, conn, "hello_ack")
	require.NotNil(t, frame)
	readSnapshot(t, conn)
}

func TestDisconnectForfeitsStake(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	conn := dialArena(t, ts, enterMatchToken(t, g, "alice", 100))
	readSnapshot(t, conn)
	require.NoError(t, conn.Close())

	// The stake stays debited; abandoning a match never refunds it.
	time.Sleep(200 * time.Millisecond)
	balance, err := g.store.Balance(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(900), balance)
}

// escrowFromToken digs the escrow id out of a match token payload.
func escrowFromToken(t *testing.T, token string) string {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(token[:strings.LastIndex(token, ".")])
	require.NoError(t, err)
	parts := strings.Split(string(raw), "\n")
	require.Len(t, parts, 4)
	return parts[2]
}

func TestRejectedJoinRefundsStake(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	tok1 := enterMatchToken(t, g, "alice", 100)
	tok2 := enterMatchToken(t, g, "alice", 100)

	first := dialArena(t, ts, tok1)
	readSnapshot(t, first)

	// Same user already in the world: the second join is rejected, but the
	// second stake was escrowed for a match that never started, so it comes
	// back rather than being forfeited.
	second := dialArena(t, ts, tok2)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))

	require.Eventually(t, func() bool {
		balance, err := g.store.Balance(context.Background(), "alice")
		return err == nil && balance == 900
	}, 2*time.Second, 20*time.Millisecond)

	// The original session is untouched.
	readSnapshot(t, first)
}

// stallingStore parks an armed Credit call until released, then fails it.
type stallingStore struct {
	account.Store
	armed   int32
	called  chan struct{}
	release chan struct{}
}

func (s *stallingStore) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if atomic.LoadInt32(&s.armed) == 1 {
		select {
		case s.called <- struct{}{}:
		default:
		}
		<-s.release
		return 0, errors.New("store down")
	}
	return s.Store.Credit(ctx, userID, amount)
}

func TestDisconnectDuringFailedCashoutForfeits(t *testing.T) {
	store := &stallingStore{
		Store:   account.InMemStore(),
		called:  make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	g := newGatewayWithStore(t, store)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	token := enterMatchToken(t, g, "alice", 100)
	escrowID := escrowFromToken(t, token)

	conn := dialArena(t, ts, token)
	readSnapshot(t, conn)

	atomic.StoreInt32(&store.armed, 1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cashout"}`)))
	<-store.called

	// Drop the connection while the credit is still in flight, and wait for
	// the session teardown to finish before the credit comes back failed.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := g.world.Info(ctx, "alice")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
	close(store.release)

	// Nobody is left to retry the escrow, so it must end up forfeited, not
	// stuck open: a later settlement attempt is rejected and no payout lands.
	require.Eventually(t, func() bool {
		_, err := g.ledger.Cashout(context.Background(), escrowID, 6)
		return err == ledger.ErrAlreadySettled
	}, 2*time.Second, 20*time.Millisecond)

	balance, err := g.store.Balance(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(900), balance)
}

func TestDuplicateCashoutSettlesOnce(t *testing.T) {
	g := newGateway(t)
	ts := httptest.NewServer(g.srv.Handler())
	defer ts.Close()

	creditAccount(t, g, "alice", 1000)
	conn := dialArena(t, ts, enterMatchToken(t, g, "alice", 100))
	readSnapshot(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cashout"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cashout"}`)))
	readFrame(t, conn, "cashout_success")

	require.Eventually(t, func() bool {
		balance, err := g.store.Balance(context.Background(), "alice")
		return err == nil && balance == 1000
	}, 2*time.Second, 20*time.Millisecond)
}
