package bnsim

import (
	"fmt"
	"math"
)

// Queue models the bottleneck link: a tail-drop FIFO in front of a
// serializing transmitter with a fixed propagation delay.  A packet
// admitted at time t0 becomes eligible to leave at t0 plus the
// propagation delay, but no earlier than the instant the transmitter
// finishes serializing its predecessor.
type Queue struct {
	name   string
	number int

	// downstream node packets are emitted to
	next Node

	fifo        []*Packet
	queuedBytes int

	// most bytes the queue will hold; arrivals that would exceed it are dropped
	capacity int

	propDelaySec float64
	bytesPerSec  float64

	// earliest time the transmitter is free, advanced on every emission
	nxtEmitAt float64

	sim   *Sim
	stats LinkStats
}

// CreateQueue is a constructor.  The queue's byte capacity is the link
// rate times the depth: a queue depth expressed in seconds of buffering,
// the way bottleneck buffers are usually sized.  The downstream node is
// attached separately with SetDownstream so that cyclic topologies can
// be wired after all nodes exist.
func CreateQueue(sim *Sim, name string, propDelaySec, bytesPerSec, depthSec float64) *Queue {
	if !(bytesPerSec > 0.0) {
		panic(fmt.Errorf("queue %s emission rate %f is not positive", name, bytesPerSec))
	}
	q := new(Queue)
	q.sim = sim
	q.name = name
	q.number = sim.nxtObjNumber()
	q.fifo = make([]*Packet, 0)
	q.propDelaySec = propDelaySec
	q.bytesPerSec = bytesPerSec
	q.capacity = int(bytesPerSec * depthSec)
	sim.TraceMgr.AddName(q.number, name, "queue")
	return q
}

// SetDownstream attaches the node the queue emits packets to
func (q *Queue) SetDownstream(node Node) {
	q.next = node
}

// Name returns the queue's name
func (q *Queue) Name() string {
	return q.name
}

// Capacity returns the queue's byte capacity
func (q *Queue) Capacity() int {
	return q.capacity
}

// QueuedBytes returns the bytes currently held
func (q *Queue) QueuedBytes() int {
	return q.queuedBytes
}

// Stats returns the counters and occupancy samples gathered so far
func (q *Queue) Stats() *LinkStats {
	return &q.stats
}

// Forward admits a packet, or drops it when admission would push the
// held bytes past capacity.  Admission stamps the packet's entry time.
// The occupancy reported with an "enqueue" event is the occupancy the
// arriving packet found; "drop" likewise reports the occupancy that
// forced the drop.
func (q *Queue) Forward(pckt *Packet) {
	if q.queuedBytes+pckt.Size() > q.capacity {
		q.sim.logLinkEvent(q, "drop")
		q.stats.Drops += 1
		q.stats.sample(float64(q.queuedBytes))
		pckt.Release()
		return
	}
	q.sim.logLinkEvent(q, "enqueue")
	pckt.EnterAt = q.sim.Now()
	q.fifo = append(q.fifo, pckt)
	q.queuedBytes += pckt.Size()
	q.stats.Enqueues += 1
	q.stats.sample(float64(q.queuedBytes))
}

// NextRunAt reports when the head packet can leave: the later of its
// propagation deadline and the transmitter becoming free.  An empty
// queue has no work.
func (q *Queue) NextRunAt() float64 {
	if len(q.fifo) == 0 {
		return math.Inf(1)
	}
	return math.Max(q.fifo[0].EnterAt+q.propDelaySec, q.nxtEmitAt)
}

// Run emits the head packet downstream.  A call before the head's
// deadline, or with nothing queued, is a no-op.  The transmitter stays
// busy for the packet's serialization time, which gates the next
// emission.  The occupancy reported with the "shift" event is the
// occupancy left behind.
func (q *Queue) Run() {
	if q.NextRunAt() > q.sim.Now() {
		return
	}
	pckt := q.fifo[0]
	q.fifo = q.fifo[1:]
	q.queuedBytes -= pckt.Size()
	q.nxtEmitAt = q.sim.Now() + float64(pckt.Size())/q.bytesPerSec
	q.next.Forward(pckt)
	q.sim.logLinkEvent(q, "shift")
	q.stats.Shifts += 1
	q.stats.sample(float64(q.queuedBytes))
}
