package mtp

import (
	"fmt"

	"github.com/iti/bnsim"
)

// packetThreshold is how far past a packet the cumulative largest ack
// must reach before the packet is declared lost
const packetThreshold = 3

// ptoBackoffCap limits the exponential probe-timeout backoff
const ptoBackoffCap = 6

type connState int

const (
	stateConnecting connState = iota
	stateEstablished
	stateDraining
)

// sentPacket is the sender's record of one ack-eliciting packet
type sentPacket struct {
	pktNum uint64
	size   int
	sentAt int64

	// stream byte range the packet carried, for retransmission
	streamOff uint64
	streamLen int

	acked bool
	lost  bool
}

// span is a stream byte range awaiting retransmission
type span struct {
	off  uint64
	size int
}

// Stream is one data stream on a connection.  Callbacks are installed
// by the application's stream-open hook: Emit supplies outbound bytes
// at a given offset (and must regenerate the same bytes if asked for an
// offset again), OnReceive consumes inbound bytes.
type Stream struct {
	ID   uint16
	conn *Conn

	// Emit fills buf with stream bytes starting at off and returns how
	// many it wrote; zero means the stream has no further data
	Emit func(off uint64, buf []byte) int

	// OnReceive consumes stream bytes starting at off
	OnReceive func(off uint64, data []byte)
}

// Conn is one connection of the engine.  All of its time arithmetic is
// in virtual milliseconds read from the engine's clock.
type Conn struct {
	eng    *Engine
	client bool
	state  connState

	local  bnsim.Address
	remote bnsim.Address

	// localID names this side on the wire; peerID is the destination
	// identifier stamped on outbound packets
	localID uint32
	peerID  uint32

	nxtPktNum uint64

	// in-flight bookkeeping, pruned as packets settle
	sent     []*sentPacket
	inFlight int

	cc  Algorithm
	rtt rttStats

	largestAcked uint64
	hasAcked     bool

	// receive-side ack state: largest data packet seen plus a bitmap
	// of the 64 packet numbers below it
	largestRecv uint64
	recvMask    uint64
	hasRecv     bool
	ackPending  bool

	stream        *Stream
	sendOff       uint64
	retrans       []span
	streamDrained bool

	// client handshake progress
	nxtInitialAt  int64
	lastInitialAt int64

	// server owes the client a handshake reply
	handshakePending bool

	ptoCount     int
	idleDeadline int64

	// scratch for building datagrams, reused across sends
	dgbuf []byte
	pbuf  []byte
	sdbuf [mss]byte
}

func createConn(eng *Engine, client bool, local, remote bnsim.Address) *Conn {
	c := new(Conn)
	c.eng = eng
	c.client = client
	c.local = local
	c.remote = remote
	c.cc = eng.cfg.CC()
	c.sent = make([]*sentPacket, 0)
	c.idleDeadline = eng.now() + eng.idleTimeout
	c.dgbuf = make([]byte, 0, bnsim.MaxDatagramSize)
	c.pbuf = make([]byte, 0, frameHdrLen+mss)
	return c
}

// Established reports whether the handshake has completed
func (c *Conn) Established() bool {
	return c.state == stateEstablished
}

// Window returns the congestion controller's current window, bytes
func (c *Conn) Window() int {
	return c.cc.Window()
}

// BytesInFlight returns the unacknowledged wire bytes outstanding
func (c *Conn) BytesInFlight() int {
	return c.inFlight
}

// OpenStream attaches the connection's data stream and runs the
// application's stream-open hook on it.  One stream per connection.
func (c *Conn) OpenStream(id uint16) (*Stream, error) {
	if c.stream != nil {
		return nil, fmt.Errorf("connection already carries stream %d", c.stream.ID)
	}
	c.stream = c.eng.openStream(c, id)
	return c.stream, nil
}

func (c *Conn) nxtPN() uint64 {
	pn := c.nxtPktNum
	c.nxtPktNum += 1
	return pn
}

// Receive feeds one decoded packet in.  Packets carrying a destination
// identifier that is neither ours nor the wildcard are not for this
// connection and are ignored.
func (c *Conn) Receive(local, remote bnsim.Address, unit bnsim.DecodedUnit) {
	p, ok := unit.(*packet)
	if !ok {
		return
	}
	if p.connID != 0 && p.connID != c.localID {
		return
	}
	now := c.eng.now()
	c.idleDeadline = now + c.eng.idleTimeout

	switch p.ptype {
	case ptInitial:
		// a repeated initial means our handshake reply was lost
		if !c.client {
			c.handshakePending = true
		}
	case ptHandshake:
		if c.client && c.state == stateConnecting {
			serverID, ok := parseHandshakePayload(p.payload)
			if !ok {
				return
			}
			c.peerID = serverID
			c.state = stateEstablished
			c.rtt.update(now - c.lastInitialAt)
			c.ptoCount = 0
		}
	case ptData:
		streamID, off, data, ok := parseDataPayload(p.payload)
		if !ok {
			return
		}
		c.noteRecvPacket(p.pktNum)
		c.ackPending = true
		if c.stream == nil {
			c.stream = c.eng.openStream(c, streamID)
		}
		if c.stream.OnReceive != nil {
			c.stream.OnReceive(off, data)
		}
	case ptAck:
		largest, mask, ok := parseAckPayload(p.payload)
		if !ok {
			return
		}
		c.onAckReceived(now, largest, mask)
	case ptClose:
		c.state = stateDraining
	}
}

// noteRecvPacket folds a data packet number into the largest+bitmap ack state
func (c *Conn) noteRecvPacket(pn uint64) {
	if !c.hasRecv {
		c.hasRecv = true
		c.largestRecv = pn
		c.recvMask = 0
		return
	}
	if pn > c.largestRecv {
		shift := pn - c.largestRecv
		if shift < 64 {
			c.recvMask = c.recvMask<<shift | 1<<(shift-1)
		} else if shift == 64 {
			c.recvMask = 1 << 63
		} else {
			c.recvMask = 0
		}
		c.largestRecv = pn
	} else if pn < c.largestRecv {
		d := c.largestRecv - pn
		if d <= 64 {
			c.recvMask |= 1 << (d - 1)
		}
	}
}

// ackCovers reports whether the largest+bitmap pair acknowledges pn
func ackCovers(largest, mask, pn uint64) bool {
	if pn == largest {
		return true
	}
	if pn > largest {
		return false
	}
	d := largest - pn
	if d > 64 {
		return false
	}
	return mask>>(d-1)&1 == 1
}

// onAckReceived settles in-flight packets against an ack, samples the
// round trip off the largest, and declares packet-threshold losses
func (c *Conn) onAckReceived(now int64, largest, mask uint64) {
	if !c.hasAcked || largest > c.largestAcked {
		c.largestAcked = largest
		c.hasAcked = true
	}

	newlyAcked := false
	for _, sp := range c.sent {
		if sp.acked || sp.lost {
			continue
		}
		if !ackCovers(largest, mask, sp.pktNum) {
			continue
		}
		sp.acked = true
		c.inFlight -= sp.size
		c.cc.OnPacketAcked(now, sp.size)
		newlyAcked = true
		if sp.pktNum == largest {
			c.rtt.update(now - sp.sentAt)
		}
	}
	if newlyAcked {
		c.ptoCount = 0
	}

	for _, sp := range c.sent {
		if sp.acked || sp.lost {
			continue
		}
		if sp.pktNum+packetThreshold <= c.largestAcked {
			sp.lost = true
			c.inFlight -= sp.size
			c.cc.OnPacketLost(now, sp.size)
			if sp.streamLen > 0 {
				c.retrans = append(c.retrans, span{off: sp.streamOff, size: sp.streamLen})
			}
		}
	}

	// drop the settled prefix
	i := 0
	for i < len(c.sent) && (c.sent[i].acked || c.sent[i].lost) {
		i += 1
	}
	c.sent = c.sent[i:]
}

// ptoDeadline reports when the probe timeout fires, anchored at the
// oldest outstanding packet and backed off exponentially
func (c *Conn) ptoDeadline() (bool, int64) {
	for _, sp := range c.sent {
		if sp.acked || sp.lost {
			continue
		}
		shift := c.ptoCount
		if shift > ptoBackoffCap {
			shift = ptoBackoffCap
		}
		return true, sp.sentAt + c.rtt.pto()<<shift
	}
	return false, 0
}

// onPTO declares the oldest outstanding packet lost and backs off
func (c *Conn) onPTO(now int64) {
	for _, sp := range c.sent {
		if sp.acked || sp.lost {
			continue
		}
		sp.lost = true
		c.inFlight -= sp.size
		c.cc.OnRetransmissionTimeout()
		if sp.streamLen > 0 {
			c.retrans = append(c.retrans, span{off: sp.streamOff, size: sp.streamLen})
		}
		c.ptoCount += 1
		return
	}
}

// canStream reports whether another data packet could go out now
func (c *Conn) canStream() bool {
	if c.stream == nil || c.stream.Emit == nil || c.streamDrained {
		return false
	}
	return c.cc.CanSend(c.inFlight)
}

// NextTimeout reports the connection's earliest deadline in virtual
// milliseconds: immediately when there is anything to transmit,
// otherwise the sooner of the probe timeout and the idle deadline
func (c *Conn) NextTimeout() int64 {
	now := c.eng.now()
	switch c.state {
	case stateDraining:
		return now
	case stateConnecting:
		return c.nxtInitialAt
	}
	if c.handshakePending || c.ackPending || c.canStream() {
		return now
	}
	deadline := c.idleDeadline
	if armed, at := c.ptoDeadline(); armed && at < deadline {
		deadline = at
	}
	return deadline
}

// Send stages a burst of outbound datagrams.  Pending control packets
// (handshake reply, ack) go first, then stream data until the window or
// the batch is exhausted.  A drained or idle-expired connection reports
// SendFreeConn, closing bytes included in the batch.
func (c *Conn) Send(batch *bnsim.SendBatch) bnsim.SendStatus {
	now := c.eng.now()
	batch.Dest = c.remote
	batch.Src = c.local

	switch c.state {
	case stateDraining:
		return bnsim.SendFreeConn
	case stateConnecting:
		if now >= c.nxtInitialAt {
			c.sendInitial(batch, now)
		}
		return bnsim.SendOK
	}

	if now >= c.idleDeadline {
		c.sendClose(batch, 0)
		return bnsim.SendFreeConn
	}

	if armed, at := c.ptoDeadline(); armed && now >= at {
		c.onPTO(now)
	}
	if c.handshakePending {
		c.sendHandshake(batch)
		c.handshakePending = false
	}
	if c.ackPending {
		c.sendAck(batch)
		c.ackPending = false
	}
	for batch.Room() && c.canStream() {
		if !c.sendStreamData(batch, now) {
			break
		}
	}
	return bnsim.SendOK
}

func (c *Conn) sendInitial(batch *bnsim.SendBatch, now int64) {
	payload := appendInitialPayload(c.pbuf[:0], c.localID)
	dg := appendPacket(c.dgbuf[:0], ptInitial, 0, c.nxtPN(), payload)
	for len(dg) < initialDatagramLen {
		dg = append(dg, 0)
	}
	batch.Add(dg)
	c.lastInitialAt = now
	shift := c.ptoCount
	if shift > ptoBackoffCap {
		shift = ptoBackoffCap
	}
	c.nxtInitialAt = now + initialPTO<<shift
	c.ptoCount += 1
}

func (c *Conn) sendHandshake(batch *bnsim.SendBatch) {
	payload := appendHandshakePayload(c.pbuf[:0], c.localID)
	dg := appendPacket(c.dgbuf[:0], ptHandshake, c.peerID, c.nxtPN(), payload)
	batch.Add(dg)
}

func (c *Conn) sendAck(batch *bnsim.SendBatch) {
	payload := appendAckPayload(c.pbuf[:0], c.largestRecv, c.recvMask)
	dg := appendPacket(c.dgbuf[:0], ptAck, c.peerID, c.nxtPN(), payload)
	batch.Add(dg)
}

func (c *Conn) sendClose(batch *bnsim.SendBatch, code uint16) {
	payload := appendClosePayload(c.pbuf[:0], code)
	dg := appendPacket(c.dgbuf[:0], ptClose, c.peerID, c.nxtPN(), payload)
	batch.Add(dg)
}

// sendStreamData builds one data packet, preferring bytes awaiting
// retransmission over new ones.  Returns false when the stream had
// nothing to give.
func (c *Conn) sendStreamData(batch *bnsim.SendBatch, now int64) bool {
	data := c.sdbuf[:]
	var off uint64
	var n int

	if len(c.retrans) > 0 {
		sp := c.retrans[0]
		want := sp.size
		if want > mss {
			want = mss
		}
		n = c.stream.Emit(sp.off, data[:want])
		if n == 0 {
			c.streamDrained = true
			return false
		}
		off = sp.off
		if n == sp.size {
			c.retrans = c.retrans[1:]
		} else {
			c.retrans[0] = span{off: sp.off + uint64(n), size: sp.size - n}
		}
	} else {
		n = c.stream.Emit(c.sendOff, data)
		if n == 0 {
			c.streamDrained = true
			return false
		}
		off = c.sendOff
		c.sendOff += uint64(n)
	}

	pn := c.nxtPN()
	payload := appendDataPayload(c.pbuf[:0], c.stream.ID, off, data[:n])
	dg := appendPacket(c.dgbuf[:0], ptData, c.peerID, pn, payload)
	batch.Add(dg)

	sp := new(sentPacket)
	sp.pktNum = pn
	sp.size = len(dg)
	sp.sentAt = now
	sp.streamOff = off
	sp.streamLen = n
	c.sent = append(c.sent, sp)
	c.inFlight += len(dg)
	c.cc.OnPacketSent(now, len(dg))
	return true
}
