package bnsim

// Node is anything sitting on the simulated path: it can be handed a
// packet, report when it next has work, and perform that work when the
// clock reaches it.
type Node interface {
	// Forward hands the node a packet, transferring ownership.  The
	// node (or whatever it passes the packet on to) must release it
	// exactly once.
	Forward(pckt *Packet)

	// NextRunAt reports the earliest virtual time at which the node has
	// work, +Inf when it has none.  Must never report a time earlier
	// than the current virtual time.
	NextRunAt() float64

	// Run performs the work due at the current virtual time
	Run()
}
