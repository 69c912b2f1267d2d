package bnsim

import (
	"fmt"
	"math"
)

// AcceptConfig marks an endpoint as willing to passively accept a
// connection, and names the engine that performs the accept
type AcceptConfig struct {
	Engine Engine
}

// Endpoint is a protocol endpoint on the simulated path.  It owns at
// most one engine connection: a client endpoint gets one from Connect
// before the run starts, a server endpoint gets one lazily when the
// first acceptable packet arrives.  Inbound packets are decoded and fed
// to the connection; when the connection's timer fires the endpoint
// drains a batch of outbound datagrams and forwards them as packets.
type Endpoint struct {
	name   string
	number int
	addr   Address

	// node outbound packets are forwarded to
	egress Node

	conn   Conn
	engine Engine

	// nil unless the endpoint may passively accept
	accept *AcceptConfig

	batch *SendBatch
	sim   *Sim
}

// CreateEndpoint is a constructor.  An address is allocated for the
// endpoint; the egress node is attached separately with SetEgress.  A
// non-nil accept configuration puts the endpoint in server mode.
func CreateEndpoint(sim *Sim, name string, accept *AcceptConfig) *Endpoint {
	ep := new(Endpoint)
	ep.sim = sim
	ep.name = name
	ep.number = sim.nxtObjNumber()
	ep.addr = sim.nxtAddress()
	ep.accept = accept
	ep.batch = CreateSendBatch()
	sim.TraceMgr.AddName(ep.number, name, "endpoint")
	return ep
}

// SetEgress attaches the node outbound packets are forwarded to
func (ep *Endpoint) SetEgress(node Node) {
	ep.egress = node
}

// Name returns the endpoint's name
func (ep *Endpoint) Name() string {
	return ep.name
}

// Addr returns the endpoint's address
func (ep *Endpoint) Addr() Address {
	return ep.addr
}

// Connected reports whether the endpoint holds a live connection
func (ep *Endpoint) Connected() bool {
	return ep.conn != nil
}

// Conn returns the held connection handle, nil when there is none
func (ep *Endpoint) Conn() Conn {
	return ep.conn
}

// Connect actively opens a connection toward the remote address using
// the given engine.  Called once, before the simulation runs.
func (ep *Endpoint) Connect(engine Engine, remote Address) error {
	if ep.conn != nil {
		panic(fmt.Errorf("endpoint %s already connected", ep.name))
	}
	conn, err := engine.Connect(ep.addr, remote)
	if err != nil {
		return err
	}
	ep.conn = conn
	ep.engine = engine
	return nil
}

// decodeEngine picks the engine used to decode inbound bytes: the
// connection's own when one exists, otherwise the accept engine
func (ep *Endpoint) decodeEngine() Engine {
	if ep.engine != nil {
		return ep.engine
	}
	if ep.accept != nil {
		return ep.accept.Engine
	}
	return nil
}

// Forward consumes an inbound packet.  The payload is decoded packet by
// packet; decoding stops silently at the first undecodable byte, which
// is how trailing padding ends the loop.  Each decoded packet either
// establishes the connection (server mode, none held yet) or is fed to
// the held connection.  A failed accept leaves the endpoint unconnected
// and the allocator untouched.
func (ep *Endpoint) Forward(pckt *Packet) {
	engine := ep.decodeEngine()
	if engine != nil {
		buf := pckt.Payload()
		off := 0
		for off != len(buf) {
			unit, ok := engine.Decode(buf, &off)
			if !ok {
				break
			}
			if ep.conn == nil {
				if ep.accept != nil {
					conn, err := ep.accept.Engine.Accept(pckt.Dest, pckt.Src, unit, ep.sim.nxtConnID)
					if err == nil {
						ep.conn = conn
						ep.engine = ep.accept.Engine
						ep.sim.nxtConnID += 1
					}
				}
			} else {
				ep.conn.Receive(pckt.Dest, pckt.Src, unit)
			}
		}
	}
	pckt.Release()
}

// NextRunAt converts the connection's millisecond timer to seconds.
// The slack added covers the precision lost stamping the engine's clock
// from the simulation clock; a deadline already past clamps to now.
func (ep *Endpoint) NextRunAt() float64 {
	if ep.conn == nil {
		return math.Inf(1)
	}
	at := float64(ep.conn.NextTimeout())/1000. + timerSlack
	if at < ep.sim.Now() {
		at = ep.sim.Now()
	}
	return at
}

// Run drains one batch of outbound datagrams from the connection and
// forwards each as a packet.  A SendFreeConn status releases the
// connection handle after any staged datagrams have been forwarded; a
// server endpoint then reverts to accepting.
func (ep *Endpoint) Run() {
	if ep.conn == nil {
		return
	}
	ep.batch.Reset()
	status := ep.conn.Send(ep.batch)
	for _, dg := range ep.batch.Datagrams() {
		pckt := CreatePacket(ep.sim, ep.batch.Dest, ep.batch.Src, dg)
		ep.egress.Forward(pckt)
	}
	switch status {
	case SendOK:
	case SendFreeConn:
		ep.conn = nil
		ep.engine = nil
	default:
		panic(fmt.Errorf("endpoint %s: engine send failed with status %d", ep.name, status))
	}
}
