package mtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	for _, name := range []string{"reno", "cubic"} {
		ctor, present := LookupCC(name)
		require.True(t, present, name)
		require.NotNil(t, ctor())
	}
	_, present := LookupCC("bbr")
	require.False(t, present)

	names := CCNames()
	require.Contains(t, names, "reno")
	require.Contains(t, names, "cubic")
	require.IsIncreasing(t, names)
}

func TestRenoSlowStartGrowsPerAckedByte(t *testing.T) {
	rs := newRenoSender()
	require.Equal(t, initialCwnd, rs.Window())
	require.True(t, rs.CanSend(initialCwnd-1))
	require.False(t, rs.CanSend(initialCwnd))

	rs.OnPacketAcked(0, mss)
	require.Equal(t, initialCwnd+mss, rs.Window())
}

func TestRenoLossMultiplicativeDecrease(t *testing.T) {
	rs := newRenoSender()
	before := rs.Window()
	rs.OnPacketLost(0, mss)
	require.Equal(t, int(float64(before)*renoBeta), rs.Window())
	require.Equal(t, rs.Window(), rs.ssthresh)
	require.False(t, rs.inSlowStart())
}

func TestRenoCongestionAvoidanceLinearGrowth(t *testing.T) {
	rs := newRenoSender()
	rs.OnPacketLost(0, mss)
	cwnd := rs.Window()

	// one window's worth of acks buys one segment
	acked := 0
	for acked < cwnd {
		rs.OnPacketAcked(0, mss)
		acked += mss
	}
	require.Equal(t, cwnd+mss, rs.Window())
}

func TestRenoTimeoutCollapsesWindow(t *testing.T) {
	rs := newRenoSender()
	before := rs.Window()
	rs.OnRetransmissionTimeout()
	require.Equal(t, minCwnd, rs.Window())
	require.Equal(t, before/2, rs.ssthresh)
}

func TestRenoWindowFloor(t *testing.T) {
	rs := newRenoSender()
	for i := 0; i < 50; i++ {
		rs.OnPacketLost(0, mss)
	}
	require.GreaterOrEqual(t, rs.Window(), minCwnd)
}

func TestCubicLossAnchorsEpoch(t *testing.T) {
	cs := newCubicSender()
	before := cs.Window()
	cs.OnPacketLost(1000, mss)
	require.Equal(t, int(float64(before)*cubicBeta), cs.Window())
	require.Equal(t, before, cs.wMax)
	require.False(t, cs.inSlowStart())
}

func TestCubicGrowsTowardAndPastAnchor(t *testing.T) {
	cs := newCubicSender()
	cs.OnPacketLost(1000, mss)
	floor := cs.Window()

	// acks spread over several virtual seconds climb back through wMax
	now := int64(1000)
	for i := 0; i < 5000; i++ {
		now += 10
		cs.OnPacketAcked(now, mss)
	}
	require.Greater(t, cs.Window(), floor)
	require.Greater(t, cs.Window(), cs.wMax)
	require.LessOrEqual(t, cs.Window(), maxCwnd)
}

func TestCubicTimeoutCollapsesWindow(t *testing.T) {
	cs := newCubicSender()
	cs.OnRetransmissionTimeout()
	require.Equal(t, minCwnd, cs.Window())
}
