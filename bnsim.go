package bnsim

// bnsim.go holds the simulation context (virtual clock, node set,
// allocators, event log) and the node scheduling loop

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/iti/evt/vrtime"
)

// timerSlack is added to deadlines derived from a protocol engine's
// millisecond timers so that integer truncation of the clock cannot
// schedule the engine fractionally before its timer has expired
const timerSlack = 0.0001

// Sim is the simulation context.  It owns the virtual clock, the set of
// nodes in their declared order, the allocators for synthetic addresses
// and server connection identifiers, the event log writer, and the
// trace manager.  One Sim drives one experiment.
type Sim struct {
	// current virtual time, seconds.  Never decreases
	now float64

	// nodes in declared order.  Ties in readiness resolve in this order
	nodes []Node

	// next server-side connection identifier.  Advanced only when an
	// accept succeeds
	nxtConnID uint32

	// synthetic address allocator state
	nxtHost uint32
	nxtPort uint16

	// object numbering for the trace dictionary
	nxtObjID int

	// event log sink, one line per queue event
	evtLog io.Writer

	TraceMgr *TraceManager
}

// CreateSim is a constructor.  startTime is the virtual time origin, and
// tm (which may be inactive) receives trace records from the run.  The
// event log is written to stdout until redirected with SetEventLog.
func CreateSim(startTime float64, tm *TraceManager) *Sim {
	sim := new(Sim)
	sim.now = startTime
	sim.nodes = make([]Node, 0)
	sim.nxtConnID = 1
	sim.nxtHost = 0xac100000
	sim.nxtPort = 54321
	sim.evtLog = os.Stdout
	sim.TraceMgr = tm
	return sim
}

// SetEventLog redirects the queue event log
func (sim *Sim) SetEventLog(w io.Writer) {
	sim.evtLog = w
}

// AddNode appends a node to the schedule.  Order matters: nodes ready at
// the same instant run in the order they were added.
func (sim *Sim) AddNode(node Node) {
	sim.nodes = append(sim.nodes, node)
}

// Now returns the current virtual time in seconds
func (sim *Sim) Now() float64 {
	return sim.now
}

// NowMillis returns the current virtual time in milliseconds, the unit
// protocol engines keep their timers in
func (sim *Sim) NowMillis() int64 {
	return int64(sim.now * 1000)
}

// NowVT returns the current virtual time as a vrtime.Time, for trace records
func (sim *Sim) NowVT() vrtime.Time {
	return vrtime.SecondsToTime(sim.now)
}

// nxtAddress hands out the next synthetic endpoint address
func (sim *Sim) nxtAddress() Address {
	sim.nxtHost += 1
	addr := Address{Host: sim.nxtHost, Port: sim.nxtPort}
	return addr
}

// nxtObjNumber hands out the next object number for the trace dictionary
func (sim *Sim) nxtObjNumber() int {
	sim.nxtObjID += 1
	return sim.nxtObjID
}

// RunNodes performs one scheduling pass.  It scans every node for its
// next deadline, advances the clock to the earliest one, and then runs
// every node whose (re-queried) deadline has been reached, in declared
// order.  The re-query matters: a node running earlier in the pass may
// create work for a node later in it.  Returns false without advancing
// the clock when every node is quiescent.
func (sim *Sim) RunNodes() bool {
	next := math.Inf(1)
	for _, node := range sim.nodes {
		at := node.NextRunAt()
		if at < sim.now {
			panic(fmt.Errorf("node deadline %f precedes virtual time %f", at, sim.now))
		}
		if at < next {
			next = at
		}
	}

	if math.IsInf(next, 1) {
		return false
	}

	sim.now = next
	for _, node := range sim.nodes {
		if node.NextRunAt() <= sim.now {
			node.Run()
		}
	}
	return true
}

// RunUntil drives scheduling passes until the clock reaches the horizon
// or the simulation goes quiescent
func (sim *Sim) RunUntil(horizon float64) {
	for sim.now < horizon {
		if !sim.RunNodes() {
			break
		}
	}
}

// logLinkEvent emits one queue event line ("enqueue", "drop" or "shift",
// the virtual time, and the queue's occupied bytes) and mirrors the
// event into the trace manager
func (sim *Sim) logLinkEvent(q *Queue, op string) {
	fmt.Fprintf(sim.evtLog, "%s %f %d\n", op, sim.now, q.queuedBytes)
	AddLinkTrace(sim.TraceMgr, sim.NowVT(), q.number, op, q.queuedBytes)
}
