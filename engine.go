package bnsim

// engine.go defines the boundary between the simulated network and the
// transport-protocol engine being exercised.  The simulator moves raw
// datagram bytes and virtual time; everything protocol-shaped lives on
// the other side of these interfaces.

const (
	// MaxDatagramSize is the largest datagram an engine may stage
	MaxDatagramSize = 1500

	// MaxSendBurst is the most datagrams an engine may stage per Send
	MaxSendBurst = 10
)

// DecodedUnit is one protocol packet extracted by an Engine from a raw
// datagram.  Its concrete type belongs to the engine; the simulator
// only carries it between Decode, Accept and Receive.
type DecodedUnit any

// SendStatus is an engine's report on a Send call
type SendStatus int

const (
	// SendOK means the connection remains live; the batch holds
	// whatever datagrams were ready
	SendOK SendStatus = iota

	// SendFreeConn means the connection has fully closed and the
	// endpoint must release its handle.  Datagrams staged alongside it
	// are still transmitted first.
	SendFreeConn
)

// Engine is a transport-protocol implementation plugged into the
// simulation.  One Engine instance plays one role (client or server)
// and observes time only through the virtual clock it was built with.
type Engine interface {
	// Connect actively opens a connection toward a remote address
	Connect(local, remote Address) (Conn, error)

	// Decode extracts the next protocol packet from buf starting at
	// *off, advancing *off past the consumed bytes.  Returns false when
	// no further packet can be extracted (trailing padding included).
	Decode(buf []byte, off *int) (DecodedUnit, bool)

	// Accept passively opens a connection from a decoded packet,
	// binding it to the supplied connection identifier.  A packet that
	// cannot begin a connection yields an error.
	Accept(local, remote Address, unit DecodedUnit, connID uint32) (Conn, error)
}

// Conn is an engine's handle for one live connection
type Conn interface {
	// Receive feeds one decoded packet into the connection
	Receive(local, remote Address, unit DecodedUnit)

	// Send stages outbound datagrams into the batch, which arrives
	// reset.  Statuses other than SendOK and SendFreeConn do not exist;
	// an engine that cannot continue panics.
	Send(batch *SendBatch) SendStatus

	// NextTimeout reports the engine's earliest internal deadline for
	// this connection, in virtual milliseconds
	NextTimeout() int64
}

// SendBatch is the bounded staging buffer an engine fills during Send.
// All datagrams share one backing array sized for the largest burst, so
// a batch is allocated once per endpoint and reused.
type SendBatch struct {
	// Dest and Src are set by the engine for the staged datagrams
	Dest Address
	Src  Address

	datagrams [][]byte
	storage   []byte
	used      int
}

// CreateSendBatch is a constructor
func CreateSendBatch() *SendBatch {
	batch := new(SendBatch)
	batch.datagrams = make([][]byte, 0, MaxSendBurst)
	batch.storage = make([]byte, MaxSendBurst*MaxDatagramSize)
	return batch
}

// Reset empties the batch for the next Send call
func (batch *SendBatch) Reset() {
	batch.datagrams = batch.datagrams[:0]
	batch.used = 0
}

// Room reports whether another datagram can be staged
func (batch *SendBatch) Room() bool {
	return len(batch.datagrams) < MaxSendBurst
}

// Add stages one datagram, copying it into the batch's storage.
// Returns false when the burst limit is reached or the datagram
// oversized, in which case nothing is staged.
func (batch *SendBatch) Add(payload []byte) bool {
	if !batch.Room() || len(payload) > MaxDatagramSize {
		return false
	}
	dst := batch.storage[batch.used : batch.used+len(payload)]
	copy(dst, payload)
	batch.datagrams = append(batch.datagrams, dst)
	batch.used += len(payload)
	return true
}

// Datagrams returns the staged datagrams, valid until the next Reset
func (batch *SendBatch) Datagrams() [][]byte {
	return batch.datagrams
}
