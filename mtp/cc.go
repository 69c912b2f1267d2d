package mtp

// cc.go holds the congestion controllers and the registry the driver
// resolves controller names through

import (
	"math"
	"sort"
)

const (
	// mss is the sender's notion of a full-sized segment
	mss = 1460

	initialCwnd = 10 * mss
	minCwnd     = 2 * mss
	maxCwnd     = 1000 * mss
)

// Algorithm is a congestion controller.  All byte counts are wire
// bytes; times are virtual milliseconds.
type Algorithm interface {
	// OnPacketSent notes bytes entering flight
	OnPacketSent(now int64, bytes int)

	// OnPacketAcked credits bytes leaving flight via acknowledgment
	OnPacketAcked(now int64, bytes int)

	// OnPacketLost debits bytes declared lost by the packet threshold
	OnPacketLost(now int64, bytes int)

	// OnRetransmissionTimeout reacts to a probe timeout firing
	OnRetransmissionTimeout()

	// CanSend reports whether another packet fits the window
	CanSend(bytesInFlight int) bool

	// Window returns the congestion window in bytes
	Window() int
}

// AlgorithmCtor builds a fresh controller instance
type AlgorithmCtor func() Algorithm

var ccRegistry = map[string]AlgorithmCtor{}

// RegisterCC adds a controller to the registry.  Duplicate names panic;
// a registry entry is forever.
func RegisterCC(name string, ctor AlgorithmCtor) {
	_, present := ccRegistry[name]
	if present {
		panic("duplicated congestion controller name " + name)
	}
	ccRegistry[name] = ctor
}

// LookupCC resolves a controller name
func LookupCC(name string) (AlgorithmCtor, bool) {
	ctor, present := ccRegistry[name]
	return ctor, present
}

// CCNames lists the registered controller names, sorted
func CCNames() []string {
	names := make([]string, 0, len(ccRegistry))
	for name := range ccRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterCC("reno", func() Algorithm { return newRenoSender() })
	RegisterCC("cubic", func() Algorithm { return newCubicSender() })
}

// renoBeta is the multiplicative decrease applied on loss
const renoBeta = 0.7

// renoSender is classic slow start plus AIMD congestion avoidance
type renoSender struct {
	cwnd     int
	ssthresh int

	// bytes acked since the window last grew, for the
	// one-mss-per-window increase in congestion avoidance
	ackedBytes int
}

func newRenoSender() *renoSender {
	rs := new(renoSender)
	rs.cwnd = initialCwnd
	rs.ssthresh = maxCwnd
	return rs
}

func (rs *renoSender) inSlowStart() bool {
	return rs.cwnd < rs.ssthresh
}

func (rs *renoSender) OnPacketSent(now int64, bytes int) {
}

func (rs *renoSender) OnPacketAcked(now int64, bytes int) {
	if rs.inSlowStart() {
		rs.cwnd += bytes
	} else {
		rs.ackedBytes += bytes
		if rs.ackedBytes >= rs.cwnd {
			rs.ackedBytes -= rs.cwnd
			rs.cwnd += mss
		}
	}
	if rs.cwnd > maxCwnd {
		rs.cwnd = maxCwnd
	}
}

func (rs *renoSender) OnPacketLost(now int64, bytes int) {
	rs.ssthresh = int(float64(rs.cwnd) * renoBeta)
	if rs.ssthresh < minCwnd {
		rs.ssthresh = minCwnd
	}
	rs.cwnd = rs.ssthresh
	rs.ackedBytes = 0
}

func (rs *renoSender) OnRetransmissionTimeout() {
	rs.ssthresh = rs.cwnd / 2
	if rs.ssthresh < minCwnd {
		rs.ssthresh = minCwnd
	}
	rs.cwnd = minCwnd
	rs.ackedBytes = 0
}

func (rs *renoSender) CanSend(bytesInFlight int) bool {
	return bytesInFlight < rs.cwnd
}

func (rs *renoSender) Window() int {
	return rs.cwnd
}

const (
	cubicC    = 0.4
	cubicBeta = 0.7
)

// cubicSender grows the window along the cubic function of time since
// the last loss, anchored at the window where the loss occurred
type cubicSender struct {
	cwnd     int
	ssthresh int

	// window at the last loss event, bytes
	wMax int

	// virtual time the current growth epoch began, 0 when none
	epochStart int64
}

func newCubicSender() *cubicSender {
	cs := new(cubicSender)
	cs.cwnd = initialCwnd
	cs.ssthresh = maxCwnd
	return cs
}

func (cs *cubicSender) inSlowStart() bool {
	return cs.cwnd < cs.ssthresh
}

func (cs *cubicSender) OnPacketSent(now int64, bytes int) {
}

func (cs *cubicSender) OnPacketAcked(now int64, bytes int) {
	if cs.inSlowStart() {
		cs.cwnd += bytes
		if cs.cwnd > maxCwnd {
			cs.cwnd = maxCwnd
		}
		return
	}

	if cs.epochStart == 0 {
		cs.epochStart = now
		if cs.wMax < cs.cwnd {
			cs.wMax = cs.cwnd
		}
	}

	// target window from the cubic function, computed in segments
	t := float64(now-cs.epochStart) / 1000.0
	wMaxSeg := float64(cs.wMax) / mss
	k := math.Cbrt(wMaxSeg * (1.0 - cubicBeta) / cubicC)
	targetSeg := cubicC*math.Pow(t-k, 3.0) + wMaxSeg
	target := int(targetSeg * mss)

	if target > cs.cwnd {
		// spread the climb to the target over roughly a window of acks
		grow := mss * (target - cs.cwnd) / cs.cwnd
		if grow < 1 {
			grow = 1
		}
		cs.cwnd += grow
	}
	if cs.cwnd > maxCwnd {
		cs.cwnd = maxCwnd
	}
}

func (cs *cubicSender) OnPacketLost(now int64, bytes int) {
	cs.wMax = cs.cwnd
	cs.epochStart = 0
	cs.ssthresh = int(float64(cs.cwnd) * cubicBeta)
	if cs.ssthresh < minCwnd {
		cs.ssthresh = minCwnd
	}
	cs.cwnd = cs.ssthresh
}

func (cs *cubicSender) OnRetransmissionTimeout() {
	cs.wMax = cs.cwnd
	cs.epochStart = 0
	cs.ssthresh = cs.cwnd / 2
	if cs.ssthresh < minCwnd {
		cs.ssthresh = minCwnd
	}
	cs.cwnd = minCwnd
}

func (cs *cubicSender) CanSend(bytesInFlight int) bool {
	return bytesInFlight < cs.cwnd
}

func (cs *cubicSender) Window() int {
	return cs.cwnd
}
