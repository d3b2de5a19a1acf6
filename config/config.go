package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration variables. These aren't user facing but useful for tuning the
// details of arena and ledger performance.
var (
	// Simulation tuning.
	TickRate        = getEnvInt("TICK_RATE", 30)
	BaseSpeed       = getEnvFloat("BASE_SPEED", 200)
	BoostSpeed      = getEnvFloat("BOOST_SPEED", 400)
	WorldSize       = getEnvFloat("WORLD_SIZE", 5000)
	CollisionRadius = getEnvFloat("COLLISION_RADIUS", 15)
	PelletTarget    = getEnvInt("PELLET_TARGET", 100)
	PelletValue     = getEnvInt("PELLET_VALUE", 1)
	SpawnLength     = getEnvInt("SPAWN_LENGTH", 6)

	// Session tuning.
	OutboundQueueDepth = getEnvInt("OUTBOUND_QUEUE_DEPTH", 16)
	SaturationLimit    = getEnvInt("SATURATION_LIMIT", 90)
	HeartbeatTimeout   = getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second)

	// Economy tuning.
	StakeTiers     = getEnvInts("STAKE_TIERS", []int64{100, 500, 1000})
	MatchTokenTTL  = getEnvDuration("MATCH_TOKEN_TTL", 2*time.Hour)
	CashoutTimeout = getEnvDuration("CASHOUT_TIMEOUT", 5*time.Second)
	PayoutPolicy   = os.Getenv("PAYOUT_POLICY")

	// Entry rate limiting.
	EnterRate  = rate.Limit(getEnvInt("ENTER_RPS", 40))
	EnterBurst = getEnvInt("ENTER_BURST", 10)

	// Store connection pooling.
	MaxOpenConns = getEnvInt("MAX_OPEN_CONNS", 20)
	MaxIdleConns = getEnvInt("MAX_IDLE_CONNS", 20)
)

func getEnvInt(varName string, defaults int) int {
	val := os.Getenv(varName)
	if val == "" {
		return defaults
	}
	intVal, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		return defaults
	}
	return int(intVal)
}

func getEnvFloat(varName string, defaults float64) float64 {
	val := os.Getenv(varName)
	if val == "" {
		return defaults
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaults
	}
	return f
}

func getEnvDuration(varName string, defaults time.Duration) time.Duration {
	val := os.Getenv(varName)
	if val == "" {
		return defaults
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaults
	}
	return d
}

func getEnvInts(varName string, defaults []int64) []int64 {
	val := os.Getenv(varName)
	if val == "" {
		return defaults
	}
	var out []int64
	for _, part := range strings.Split(val, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return defaults
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}
