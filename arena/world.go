// Package arena owns all authoritative game state and advances it on a fixed
// tick. The World is mutated by exactly one goroutine (Run); every other
// component talks to it through a bounded control channel and a pending
// intent map drained at tick start, so there is no shared game state to
// race on.
package arena

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slitherpit/engine/config"
)

var (
	// ErrAlreadyJoined is returned when a player id is already registered.
	ErrAlreadyJoined = errors.New("arena: player already registered")
	// ErrNotFound is thrown when a player is not in the world.
	ErrNotFound = errors.New("arena: player not found")
	// ErrWorldClosed is returned when the world loop has shut down.
	ErrWorldClosed = errors.New("arena: world closed")
)

// Config is the simulation tuning surface. Zero fields fall back to the
// process defaults from the config package.
type Config struct {
	TickRate        int
	BaseSpeed       float64
	BoostSpeed      float64
	WorldSize       float64
	CollisionRadius float64
	PelletTarget    int
	PelletValue     int
	SpawnLength     int
	SaturationLimit int
	Seed            int64
}

// DefaultConfig returns the environment-tuned defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:        config.TickRate,
		BaseSpeed:       config.BaseSpeed,
		BoostSpeed:      config.BoostSpeed,
		WorldSize:       config.WorldSize,
		CollisionRadius: config.CollisionRadius,
		PelletTarget:    config.PelletTarget,
		PelletValue:     config.PelletValue,
		SpawnLength:     config.SpawnLength,
		SaturationLimit: config.SaturationLimit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.BaseSpeed <= 0 {
		c.BaseSpeed = d.BaseSpeed
	}
	if c.BoostSpeed <= 0 {
		c.BoostSpeed = d.BoostSpeed
	}
	if c.WorldSize <= 0 {
		c.WorldSize = d.WorldSize
	}
	if c.CollisionRadius <= 0 {
		c.CollisionRadius = d.CollisionRadius
	}
	if c.PelletTarget <= 0 {
		c.PelletTarget = d.PelletTarget
	}
	if c.PelletValue <= 0 {
		c.PelletValue = d.PelletValue
	}
	if c.SpawnLength <= 0 {
		c.SpawnLength = d.SpawnLength
	}
	if c.SaturationLimit <= 0 {
		c.SaturationLimit = d.SaturationLimit
	}
	return c
}

// JoinParams registers a new player.
type JoinParams struct {
	ID       string
	Stake    int64
	EscrowID string
	// Out is the session's outbound queue; the world pushes snapshots into
	// it without ever blocking on it. Kick is invoked when the world cuts a
	// saturated session loose.
	Out  chan []byte
	Kick func()
}

// JoinInfo reports the spawn assigned to a new player.
type JoinInfo struct {
	X, Y   float64
	Length int
	Color  int
}

type command interface{ cmd() }

type joinCmd struct {
	params JoinParams
	resp   chan joinResult
}

type joinResult struct {
	info JoinInfo
	err  error
}

type removeCmd struct {
	id   string
	resp chan struct{}
}

type infoCmd struct {
	id   string
	resp chan infoResult
}

type infoResult struct {
	info PlayerInfo
	err  error
}

func (joinCmd) cmd()   {}
func (removeCmd) cmd() {}
func (infoCmd) cmd()   {}

// inputIntent is a steering update. Each player holds one pending slot, so a
// flood of intents from one session overwrites only that session's own slot
// and never sheds another player's steering or a lifecycle command.
type inputIntent struct {
	dirX  float64
	dirY  float64
	boost bool
}

// World is the process-wide authoritative state for one running match.
type World struct {
	cfg     Config
	dt      float64
	players map[string]*Player
	pellets map[string]*Pellet
	tick    uint64
	rng     *rand.Rand
	control chan command
	done    chan struct{}

	intentMu sync.Mutex
	intents  map[string]inputIntent
}

// New creates a world seeded to the target pellet density.
func New(cfg Config) *World {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	w := &World{
		cfg:     cfg,
		dt:      1 / float64(cfg.TickRate),
		players: map[string]*Player{},
		pellets: map[string]*Pellet{},
		rng:     rand.New(rand.NewSource(seed)),
		intents: map[string]inputIntent{},
		control: make(chan command, 64),
		done:    make(chan struct{}),
	}
	for len(w.pellets) < cfg.PelletTarget {
		w.spawnPellet()
	}
	return w
}

// Tick returns the current tick count.
func (w *World) Tick() uint64 { return w.tick }

// Run drives the fixed-rate simulation until ctx is cancelled. All world
// state is owned by this goroutine.
func (w *World) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(time.Second / time.Duration(w.cfg.TickRate))
	defer ticker.Stop()

	log.WithField("tick_rate", w.cfg.TickRate).
		WithField("world_size", w.cfg.WorldSize).
		WithField("pellets", len(w.pellets)).
		Info("world running")

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.control:
			w.handle(cmd)
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) handle(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		c.resp <- w.applyJoin(c.params)
	case removeCmd:
		w.applyRemove(c.id)
		c.resp <- struct{}{}
	case infoCmd:
		if p, ok := w.players[c.id]; ok {
			c.resp <- infoResult{info: PlayerInfo{Stake: p.Stake, Length: p.Length, EscrowID: p.EscrowID}}
		} else {
			c.resp <- infoResult{err: ErrNotFound}
		}
	}
}

func (w *World) applyJoin(params JoinParams) joinResult {
	if _, ok := w.players[params.ID]; ok {
		return joinResult{err: ErrAlreadyJoined}
	}
	p := &Player{
		ID:       params.ID,
		X:        w.randCoord(),
		Y:        w.randCoord(),
		Length:   w.cfg.SpawnLength,
		Stake:    params.Stake,
		EscrowID: params.EscrowID,
		Color:    w.rng.Intn(0x1000000),
		Alive:    true,
		out:      params.Out,
		kick:     params.Kick,
	}
	w.players[p.ID] = p
	playersGauge.Set(float64(len(w.players)))
	log.WithField("player", p.ID).
		WithField("stake", p.Stake).
		Info("player joined world")
	return joinResult{info: JoinInfo{X: p.X, Y: p.Y, Length: p.Length, Color: p.Color}}
}

// applyRemove deletes a player. Removal is idempotent: removing an absent
// player is a no-op, not an error.
func (w *World) applyRemove(id string) {
	p, ok := w.players[id]
	if !ok {
		return
	}
	p.Alive = false
	p.out = nil
	delete(w.players, id)
	playersGauge.Set(float64(len(w.players)))
	log.WithField("player", id).Info("player left world")
}

func (w *World) send(cmd command) error {
	select {
	case w.control <- cmd:
		return nil
	case <-w.done:
		return ErrWorldClosed
	}
}

// Join registers a player and returns its spawn. Blocks until the simulation
// goroutine has applied the registration.
func (w *World) Join(ctx context.Context, params JoinParams) (JoinInfo, error) {
	resp := make(chan joinResult, 1)
	if err := w.send(joinCmd{params: params, resp: resp}); err != nil {
		return JoinInfo{}, err
	}
	select {
	case r := <-resp:
		return r.info, r.err
	case <-ctx.Done():
		return JoinInfo{}, ctx.Err()
	}
}

// Remove deletes the player from the world and returns once no further
// snapshot will be pushed to its outbound queue. Idempotent.
func (w *World) Remove(ctx context.Context, id string) error {
	resp := make(chan struct{}, 1)
	if err := w.send(removeCmd{id: id, resp: resp}); err != nil {
		return err
	}
	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Input records a steering intent for the next tick. Last writer wins per
// player: an intent arriving before the tick boundary replaces that player's
// earlier pending one, and only that one.
func (w *World) Input(id string, dirX, dirY float64, boost bool) {
	w.intentMu.Lock()
	w.intents[id] = inputIntent{dirX: dirX, dirY: dirY, boost: boost}
	w.intentMu.Unlock()
}

// Info snapshots the player's current stake and length, for cashout.
func (w *World) Info(ctx context.Context, id string) (PlayerInfo, error) {
	resp := make(chan infoResult, 1)
	if err := w.send(infoCmd{id: id, resp: resp}); err != nil {
		return PlayerInfo{}, err
	}
	select {
	case r := <-resp:
		return r.info, r.err
	case <-ctx.Done():
		return PlayerInfo{}, ctx.Err()
	}
}
