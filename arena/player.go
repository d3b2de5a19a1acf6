package arena

// Player is the authoritative in-world state for one connected session. It is
// owned by the World and mutated only on the simulation goroutine; the
// gateway reaches it exclusively through the command inbox.
type Player struct {
	ID       string
	X, Y     float64
	DirX     float64
	DirY     float64
	Boosting bool
	Length   int
	Stake    int64
	EscrowID string
	Color    int
	Alive    bool

	// out is a weak reference to the session's outbound queue. The World
	// pushes snapshots into it but never owns the transport behind it; kick
	// asks the owning session to tear itself down.
	out       chan []byte
	kick      func()
	saturated int
}

// PlayerInfo is the read-only view the gateway snapshots at cashout time.
type PlayerInfo struct {
	Stake    int64
	Length   int
	EscrowID string
}
