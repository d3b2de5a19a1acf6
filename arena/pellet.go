package arena

import uuid "github.com/satori/go.uuid"

// Pellet is a consumable world object. Pellet ids are unique for the life of
// the world; a consumed pellet is replaced by a fresh one, never revived.
type Pellet struct {
	ID    string
	X, Y  float64
	Value int
}

func (w *World) spawnPellet() *Pellet {
	p := &Pellet{
		ID:    uuid.NewV4().String(),
		X:     w.randCoord(),
		Y:     w.randCoord(),
		Value: w.cfg.PelletValue,
	}
	w.pellets[p.ID] = p
	return p
}

// randCoord picks a coordinate uniformly within world bounds, centered on 0.
func (w *World) randCoord() float64 {
	half := w.cfg.WorldSize / 2
	return w.rng.Float64()*w.cfg.WorldSize - half
}
