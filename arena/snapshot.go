package arena

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/slitherpit/engine/protocol"
)

// buildSnapshot serializes the authoritative state. Players are ordered by
// the leaderboard: descending length, id as tiebreak. Derived data only,
// recomputed every tick, never persisted.
func (w *World) buildSnapshot() protocol.Snapshot {
	players := make([]protocol.PlayerSnapshot, 0, len(w.players))
	for _, p := range w.players {
		players = append(players, protocol.PlayerSnapshot{
			ID:     p.ID,
			X:      p.X,
			Y:      p.Y,
			Color:  p.Color,
			Length: p.Length,
		})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Length != players[j].Length {
			return players[i].Length > players[j].Length
		}
		return players[i].ID < players[j].ID
	})

	pellets := make([]protocol.PelletSnapshot, 0, len(w.pellets))
	for _, pel := range w.sortedPellets() {
		pellets = append(pellets, protocol.PelletSnapshot{ID: pel.ID, X: pel.X, Y: pel.Y})
	}

	return protocol.Snapshot{Tick: w.tick, Players: players, Pellets: pellets}
}

// broadcast pushes the tick's snapshot to every session queue without ever
// blocking the simulation. A saturated queue loses its oldest pending
// snapshot; a queue that stays saturated past the configured limit gets its
// session cut loose.
func (w *World) broadcast() {
	if len(w.players) == 0 {
		return
	}
	b := protocol.EncodeSnapshot(w.buildSnapshot())

	for _, p := range w.players {
		if p.out == nil {
			continue
		}
		select {
		case p.out <- b:
			p.saturated = 0
			continue
		default:
		}

		// Queue full: shed the oldest snapshot so the newest wins. Tick
		// numbers stay monotonic per session either way.
		snapshotsDropped.Inc()
		p.saturated++
		select {
		case <-p.out:
		default:
		}
		select {
		case p.out <- b:
		default:
		}

		if p.saturated > w.cfg.SaturationLimit {
			w.dropSession(p)
		}
	}
}

// dropSession force-disconnects a slow consumer. The world stops pushing to
// the queue and kicks the session, whose standard disconnect path then
// removes the player.
func (w *World) dropSession(p *Player) {
	p.out = nil
	p.saturated = 0
	if p.kick != nil {
		go p.kick()
	}
	log.WithField("player", p.ID).Warn("session saturated, disconnecting")
}
