package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/slitherpit/engine/account"
	"github.com/slitherpit/engine/arena"
	"github.com/slitherpit/engine/config"
	"github.com/slitherpit/engine/ledger"
	"github.com/slitherpit/engine/version"
)

// Server is the HTTP and websocket gateway in front of the arena. It owns no
// game or economy state of its own; every request is delegated to the ledger,
// the account store, or the world.
type Server struct {
	hs       *http.Server
	handler  http.Handler
	world    *arena.World
	ledger   *ledger.Ledger
	accounts account.Store
	identity IdentityVerifier
	limiter  *rate.Limiter
	upgrader websocket.Upgrader

	heartbeat     time.Duration
	outboundDepth int
}

func New(addr string, world *arena.World, l *ledger.Ledger, accounts account.Store, identity IdentityVerifier) *Server {
	s := &Server{
		hs:            &http.Server{Addr: addr},
		world:         world,
		ledger:        l,
		accounts:      accounts,
		identity:      identity,
		limiter:       rate.NewLimiter(config.EnterRate, config.EnterBurst),
		heartbeat:     config.HeartbeatTimeout,
		outboundDepth: config.OutboundQueueDepth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router := httprouter.New()
	router.POST("/enter-match", s.enterMatch)
	router.GET("/account", s.accountBalance)
	router.GET("/version", s.versionInfo)
	router.GET("/arena", s.arenaSocket)
	s.handler = cors.AllowAll().Handler(router)
	s.hs.Handler = s.handler
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// WaitForExit starts the server and blocks until it stops.
func (s *Server) WaitForExit() {
	log.WithField("listen", s.hs.Addr).Info("Arena gateway serving")
	if err := s.hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Error while listening")
	}
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.hs.Shutdown(ctx)
}

func (s *Server) authenticate(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		return "", false
	}
	userID, err := s.identity.Verify(r.Context(), token)
	if err != nil {
		return "", false
	}
	return userID, true
}

type enterMatchRequest struct {
	Stake int64 `json:"stake"`
}

type enterMatchResponse struct {
	MatchToken string `json:"matchToken"`
	Stake      int64  `json:"stake"`
}

func (s *Server) enterMatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	var req enterMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stake")
		return
	}

	token, err := s.ledger.EnterMatch(r.Context(), userID, req.Stake)
	switch err {
	case nil:
	case ledger.ErrInvalidStake:
		writeError(w, http.StatusBadRequest, "Invalid stake")
		return
	case ledger.ErrInsufficientFunds:
		writeError(w, http.StatusBadRequest, "Insufficient credits")
		return
	case ledger.ErrUnavailable:
		writeError(w, http.StatusServiceUnavailable, "Ledger unavailable")
		return
	default:
		log.WithError(err).WithField("user", userID).Error("Enter match failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, enterMatchResponse{MatchToken: token, Stake: req.Stake})
}

func (s *Server) accountBalance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	balance, err := s.accounts.Balance(r.Context(), userID)
	switch err {
	case nil:
	case account.ErrNotFound:
		writeError(w, http.StatusNotFound, "No account")
		return
	default:
		log.WithError(err).WithField("user", userID).Error("Balance lookup failed")
		writeError(w, http.StatusServiceUnavailable, "Account store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"credits": balance})
}

func (s *Server) versionInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Error writing response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
