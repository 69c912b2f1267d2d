// Package mtp is a minimal transport-protocol engine built to run over
// the bnsim simulated network: a toy handshake, one reliable data
// stream, pluggable congestion control, and ack-driven loss recovery.
// The engine has no wall-clock or randomness of its own; it observes
// time through the clock it is configured with and draws randomness
// from a named rngstream, so runs are reproducible.
package mtp

import (
	"fmt"
	"math"

	"github.com/iti/bnsim"
	"github.com/iti/rngstream"
)

// defaultIdleTimeout is how long a connection survives without traffic,
// virtual milliseconds
const defaultIdleTimeout int64 = 30000

// Config carries everything an engine instance needs at creation.
// One engine plays one role (client or server).
type Config struct {
	// Name seeds the engine's random stream and labels diagnostics
	Name string

	// Now reads the virtual clock, milliseconds
	Now func() int64

	// CC builds the congestion controller for each connection; nil
	// selects reno
	CC AlgorithmCtor

	// OnStreamOpen runs once per stream, on both the opening and the
	// accepting side, to install the stream's callbacks
	OnStreamOpen func(*Stream)

	// IdleTimeout overrides the idle disconnect, milliseconds
	IdleTimeout int64
}

// Engine is one transport-protocol instance
type Engine struct {
	cfg         Config
	idleTimeout int64
	rng         *rngstream.RngStream
}

// CreateEngine is a constructor
func CreateEngine(cfg Config) *Engine {
	if cfg.Now == nil {
		panic("engine requires a clock")
	}
	eng := new(Engine)
	eng.cfg = cfg
	if eng.cfg.CC == nil {
		ctor, _ := LookupCC("reno")
		eng.cfg.CC = ctor
	}
	eng.idleTimeout = cfg.IdleTimeout
	if eng.idleTimeout == 0 {
		eng.idleTimeout = defaultIdleTimeout
	}
	name := cfg.Name
	if len(name) == 0 {
		name = "mtp"
	}
	eng.rng = rngstream.New(name)
	return eng
}

func (eng *Engine) now() int64 {
	return eng.cfg.Now()
}

// openStream builds a stream and runs the application's hook on it
func (eng *Engine) openStream(c *Conn, id uint16) *Stream {
	st := new(Stream)
	st.ID = id
	st.conn = c
	if eng.cfg.OnStreamOpen != nil {
		eng.cfg.OnStreamOpen(st)
	}
	return st
}

// Connect actively opens a connection.  The first initial packet goes
// out the next time the connection is driven.
func (eng *Engine) Connect(local, remote bnsim.Address) (bnsim.Conn, error) {
	c := createConn(eng, true, local, remote)
	c.localID = uint32(eng.rng.RandU01() * float64(math.MaxUint32))
	if c.localID == 0 {
		c.localID = 1
	}
	c.state = stateConnecting
	c.nxtInitialAt = eng.now()
	return c, nil
}

// Decode extracts the next wire packet from buf at *off
func (eng *Engine) Decode(buf []byte, off *int) (bnsim.DecodedUnit, bool) {
	p, ok := decodePacket(buf, off)
	if !ok {
		return nil, false
	}
	return p, true
}

// Accept passively opens a connection from a decoded initial packet,
// taking connID as this side's wire identifier.  Anything that is not a
// well-formed, version-compatible initial is refused.
func (eng *Engine) Accept(local, remote bnsim.Address, unit bnsim.DecodedUnit, connID uint32) (bnsim.Conn, error) {
	p, ok := unit.(*packet)
	if !ok || p.ptype != ptInitial {
		return nil, fmt.Errorf("packet cannot open a connection")
	}
	version, clientID, ok := parseInitialPayload(p.payload)
	if !ok {
		return nil, fmt.Errorf("malformed initial packet")
	}
	if version != wireVersion {
		return nil, fmt.Errorf("incompatible version %#x", version)
	}
	c := createConn(eng, false, local, remote)
	c.localID = connID
	c.peerID = clientID
	c.state = stateEstablished
	c.handshakePending = true
	return c, nil
}
