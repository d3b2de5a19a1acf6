package arena

import (
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// step advances the world one tick:
//  1. drain queued intents, last writer wins per player
//  2. integrate movement from direction and boost
//  3. clamp positions to world bounds
//  4. resolve pellet consumption in player-id order
//  5. rebuild the leaderboard-ordered snapshot
//  6. increment the tick counter and broadcast
func (w *World) step() {
	start := time.Now()

	w.drainIntents()

	ids := w.sortedPlayerIDs()
	for _, id := range ids {
		w.integrate(w.players[id])
	}
	w.consumePellets(ids)

	w.tick++
	w.broadcast()

	tickDuration.Observe(time.Since(start).Seconds())
}

func (w *World) drainIntents() {
	w.intentMu.Lock()
	pending := w.intents
	w.intents = make(map[string]inputIntent, len(pending))
	w.intentMu.Unlock()

	for id, in := range pending {
		if p, ok := w.players[id]; ok && p.Alive {
			p.DirX, p.DirY, p.Boosting = in.dirX, in.dirY, in.boost
		}
	}
}

// integrate moves one player by its direction for one tick, then clamps to
// bounds. The direction is re-normalized here: clients are not trusted to
// send unit vectors.
func (w *World) integrate(p *Player) {
	if !p.Alive {
		return
	}
	norm := math.Hypot(p.DirX, p.DirY)
	if norm == 0 {
		return
	}
	speed := w.cfg.BaseSpeed
	if p.Boosting {
		speed = w.cfg.BoostSpeed
	}
	p.X += p.DirX / norm * speed * w.dt
	p.Y += p.DirY / norm * speed * w.dt

	half := w.cfg.WorldSize / 2
	p.X = clamp(p.X, -half, half)
	p.Y = clamp(p.Y, -half, half)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// consumePellets resolves pellet collisions. Players are processed in id
// order so a pellet two heads reach on the same tick is consumed exactly
// once, by the first player in that order. Replacements spawn after the scan
// to hold density constant without making a fresh pellet consumable mid-scan.
func (w *World) consumePellets(ids []string) {
	radius2 := w.cfg.CollisionRadius * w.cfg.CollisionRadius
	var consumed int

	for _, id := range ids {
		p := w.players[id]
		if !p.Alive {
			continue
		}
		for _, pel := range w.sortedPellets() {
			dx := pel.X - p.X
			dy := pel.Y - p.Y
			if dx*dx+dy*dy > radius2 {
				continue
			}
			delete(w.pellets, pel.ID)
			p.Length += pel.Value
			consumed++
			pelletsConsumed.Inc()
			log.WithField("player", p.ID).
				WithField("pellet", pel.ID).
				WithField("length", p.Length).
				Debug("pellet consumed")
		}
	}

	for i := 0; i < consumed; i++ {
		w.spawnPellet()
	}
}

func (w *World) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) sortedPellets() []*Pellet {
	pellets := make([]*Pellet, 0, len(w.pellets))
	for _, pel := range w.pellets {
		pellets = append(pellets, pel)
	}
	sort.Slice(pellets, func(i, j int) bool { return pellets[i].ID < pellets[j].ID })
	return pellets
}
