package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/slitherpit/engine/arena"
	"github.com/slitherpit/engine/config"
	"github.com/slitherpit/engine/ledger"
	"github.com/slitherpit/engine/protocol"
)

const (
	stateActive int32 = iota
	stateCashoutPending
	stateClosed
)

const writeWait = 10 * time.Second

// session is one websocket connection bound to one player. The reader pump
// and the world feed its outbound queue; the writer pump is the only
// goroutine that touches the connection for writes.
type session struct {
	srv      *Server
	conn     *websocket.Conn
	claims   ledger.Claims
	out      chan []byte
	quit     chan struct{}
	state    int32
	teardown sync.Once
	log      *log.Entry
}

// arenaSocket upgrades the connection, redeems the match token, and drops the
// player into the world. The token rides the query string because browser
// websocket clients cannot set headers.
func (s *Server) arenaSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	claims, err := s.ledger.Redeem(r.URL.Query().Get("token"))
	if err != nil {
		log.WithError(err).Warn("Match token rejected")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid match token"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	sess := &session{
		srv:    s,
		conn:   conn,
		claims: claims,
		out:    make(chan []byte, s.outboundDepth),
		quit:   make(chan struct{}),
		log: log.WithFields(log.Fields{
			"user":   claims.UserID,
			"escrow": claims.EscrowID,
		}),
	}

	joinCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	_, err = s.world.Join(joinCtx, arena.JoinParams{
		ID:       claims.UserID,
		Stake:    claims.Stake,
		EscrowID: claims.EscrowID,
		Out:      sess.out,
		Kick:     sess.close,
	})
	cancel()
	if err != nil {
		sess.log.WithError(err).Warn("Join rejected")
		// The token is already consumed but no player ever existed, so the
		// stake goes back rather than being forfeited.
		if rerr := s.ledger.Refund(context.Background(), claims.EscrowID); rerr != nil {
			sess.log.WithError(rerr).Error("Refund after rejected join failed")
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "cannot join"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	sess.log.WithField("stake", claims.Stake).Info("Session joined")
	go sess.writePump()
	sess.readPump()
}

// close tears the session down exactly once. Safe from any goroutine; the
// world calls it through the kick callback, the pumps call it on error.
func (sess *session) close() {
	sess.teardown.Do(func() {
		atomic.StoreInt32(&sess.state, stateClosed)

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := sess.srv.world.Remove(ctx, sess.claims.UserID); err != nil {
			sess.log.WithError(err).Warn("Remove on teardown failed")
		}
		cancel()

		// No-op when the escrow already settled through cashout.
		sess.srv.ledger.Forfeit(sess.claims.EscrowID)

		close(sess.quit)
		sess.log.Info("Session closed")
	})
}

func (sess *session) readPump() {
	defer sess.close()

	sess.conn.SetReadLimit(1024)
	deadline := func() { _ = sess.conn.SetReadDeadline(time.Now().Add(sess.srv.heartbeat)) }
	deadline()
	sess.conn.SetPongHandler(func(string) error { deadline(); return nil })

	for {
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log.WithError(err).Debug("Read error")
			}
			return
		}
		deadline()

		intent, err := protocol.Decode(msg)
		if err != nil {
			// Malformed frames are dropped, not fatal.
			sess.log.WithError(err).Debug("Bad frame")
			continue
		}

		switch it := intent.(type) {
		case protocol.InputIntent:
			if atomic.LoadInt32(&sess.state) == stateActive {
				sess.srv.world.Input(sess.claims.UserID, it.Dir.X, it.Dir.Y, it.Boost)
			}
		case protocol.HelloIntent:
			sess.enqueue(protocol.EncodeHelloAck())
		case protocol.CashoutIntent:
			sess.beginCashout()
		}
	}
}

// writePump owns all writes to the connection. On quit it drains whatever the
// queue still holds so a cashout_success sent moments before teardown is not
// lost, then says goodbye.
func (sess *session) writePump() {
	ticker := time.NewTicker(sess.srv.heartbeat * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = sess.conn.Close()
	}()

	for {
		select {
		case b := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				sess.close()
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.close()
				return
			}
		case <-sess.quit:
			for {
				select {
				case b := <-sess.out:
					_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = sess.conn.WriteMessage(websocket.TextMessage, b)
				default:
					_ = sess.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// enqueue offers a notice to the outbound queue without ever blocking the
// reader. Notices are advisory; a full queue simply drops them.
func (sess *session) enqueue(b []byte) {
	select {
	case sess.out <- b:
	default:
	}
}

// beginCashout settles the escrow off the read loop. At most one cashout is
// in flight per session; duplicate requests while one is pending are ignored.
func (sess *session) beginCashout() {
	if !atomic.CompareAndSwapInt32(&sess.state, stateActive, stateCashoutPending) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.CashoutTimeout)
		defer cancel()

		info, err := sess.srv.world.Info(ctx, sess.claims.UserID)
		if err != nil {
			// Player already gone; teardown will settle the escrow path.
			atomic.CompareAndSwapInt32(&sess.state, stateCashoutPending, stateActive)
			return
		}

		payout, err := sess.srv.ledger.Cashout(ctx, info.EscrowID, info.Length)
		if err != nil {
			sess.log.WithError(err).Warn("Cashout failed")
			sess.enqueue(protocol.EncodeError("cashout failed"))
			if !atomic.CompareAndSwapInt32(&sess.state, stateCashoutPending, stateActive) {
				// The session tore down while the credit was in flight, so
				// nobody is left to retry the reopened escrow. Teardown's own
				// forfeit ran during settling and was a no-op; do it now.
				sess.srv.ledger.Forfeit(sess.claims.EscrowID)
			}
			return
		}

		sess.log.WithField("payout", payout).Info("Cashout settled")
		sess.deliver(protocol.EncodeCashoutSuccess(payout))
		sess.close()
	}()
}

// deliver queues a notice the client must see, waiting out a full queue
// instead of dropping. The writer drains the queue on quit, so anything
// queued before close is still flushed.
func (sess *session) deliver(b []byte) {
	select {
	case sess.out <- b:
	case <-sess.quit:
	case <-time.After(writeWait):
	}
}
