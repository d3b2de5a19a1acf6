// Package protocol defines the JSON wire schema between clients and the
// arena, and the codec that turns frames into typed intents. Direction
// vectors from clients are advisory input only: no inbound message carries an
// authoritative position, and the codec has no field to accept one.
package protocol

// Client to server message types.
const (
	MsgHello   = "hello"
	MsgInput   = "input"
	MsgCashout = "cashout"
)

// Server to client message types.
const (
	MsgSnapshot       = "snapshot"
	MsgCashoutSuccess = "cashout_success"
	MsgHelloAck       = "hello_ack"
	MsgError          = "error"
)

// Vec is a 2D vector in world coordinates.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Intent is a validated client message.
type Intent interface{ intent() }

// InputIntent steers the player. Dir is advisory; the simulation re-normalizes
// it and integrates position server-side.
type InputIntent struct {
	Dir   Vec
	Boost bool
}

// CashoutIntent asks to settle the escrow and leave the match.
type CashoutIntent struct{}

// HelloIntent opens the application-level conversation.
type HelloIntent struct {
	TS int64
}

func (InputIntent) intent()   {}
func (CashoutIntent) intent() {}
func (HelloIntent) intent()   {}

// PlayerSnapshot is one player's public state within a snapshot.
type PlayerSnapshot struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  int     `json:"color"`
	Length int     `json:"length"`
}

// PelletSnapshot is one pellet within a snapshot.
type PelletSnapshot struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Snapshot is the authoritative world state sent every tick. Players are
// ordered by the leaderboard, descending length.
type Snapshot struct {
	Type    string           `json:"type"`
	Tick    uint64           `json:"tick"`
	Players []PlayerSnapshot `json:"players"`
	Pellets []PelletSnapshot `json:"pellets"`
}
