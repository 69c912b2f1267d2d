package bnsim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubUnit is what the stub engine "decodes": one tagged byte
type stubUnit struct {
	tag byte
}

type stubConn struct {
	recvd   []byte
	timeout int64
	sendFn  func(batch *SendBatch) SendStatus
}

func (sc *stubConn) Receive(local, remote Address, unit DecodedUnit) {
	sc.recvd = append(sc.recvd, unit.(*stubUnit).tag)
}

func (sc *stubConn) Send(batch *SendBatch) SendStatus {
	if sc.sendFn != nil {
		return sc.sendFn(batch)
	}
	return SendOK
}

func (sc *stubConn) NextTimeout() int64 {
	return sc.timeout
}

// stubEngine decodes one unit per byte, stopping at 0xFF
type stubEngine struct {
	conn      *stubConn
	acceptErr error
	accepted  []uint32
}

func (se *stubEngine) Connect(local, remote Address) (Conn, error) {
	return se.conn, nil
}

func (se *stubEngine) Decode(buf []byte, off *int) (DecodedUnit, bool) {
	if *off >= len(buf) || buf[*off] == 0xFF {
		return nil, false
	}
	unit := &stubUnit{tag: buf[*off]}
	*off += 1
	return unit, true
}

func (se *stubEngine) Accept(local, remote Address, unit DecodedUnit, connID uint32) (Conn, error) {
	if se.acceptErr != nil {
		return nil, se.acceptErr
	}
	se.accepted = append(se.accepted, connID)
	return se.conn, nil
}

func TestEndpointDecodeStopsAtUndecodable(t *testing.T) {
	sim, _ := newTestSim()
	se := &stubEngine{conn: &stubConn{}}
	ep := CreateEndpoint(sim, "server", &AcceptConfig{Engine: se})

	pckt := CreatePacket(sim, ep.Addr(), Address{Host: 9}, []byte{1, 2, 0xFF, 3})
	ep.Forward(pckt)

	// unit 1 accepted the connection, unit 2 was received, the bytes
	// after the undecodable one never reached the engine
	require.True(t, ep.Connected())
	require.Equal(t, []byte{2}, se.conn.recvd)
	require.Panics(t, func() { pckt.Payload() })
}

func TestEndpointAcceptFailureLeavesUnconnected(t *testing.T) {
	sim, _ := newTestSim()
	se := &stubEngine{conn: &stubConn{}, acceptErr: errors.New("not an initial")}
	ep := CreateEndpoint(sim, "server", &AcceptConfig{Engine: se})

	ep.Forward(CreatePacket(sim, ep.Addr(), Address{Host: 9}, []byte{1, 1}))
	require.False(t, ep.Connected())
	require.Equal(t, math.Inf(1), ep.NextRunAt())

	// the allocator did not advance; the eventual accept gets id 1
	se.acceptErr = nil
	ep.Forward(CreatePacket(sim, ep.Addr(), Address{Host: 9}, []byte{1}))
	require.True(t, ep.Connected())
	require.Equal(t, []uint32{1}, se.accepted)
}

func TestEndpointAllocatorAdvancesPerAccept(t *testing.T) {
	sim, _ := newTestSim()
	se := &stubEngine{conn: &stubConn{}}
	ep1 := CreateEndpoint(sim, "s1", &AcceptConfig{Engine: se})
	ep2 := CreateEndpoint(sim, "s2", &AcceptConfig{Engine: se})

	ep1.Forward(CreatePacket(sim, ep1.Addr(), Address{Host: 9}, []byte{1}))
	ep2.Forward(CreatePacket(sim, ep2.Addr(), Address{Host: 9}, []byte{1}))

	require.Equal(t, []uint32{1, 2}, se.accepted)
}

func TestEndpointWithoutEngineDiscardsInbound(t *testing.T) {
	sim, _ := newTestSim()
	ep := CreateEndpoint(sim, "client", nil)

	pckt := CreatePacket(sim, ep.Addr(), Address{Host: 9}, []byte{1, 2, 3})
	ep.Forward(pckt)
	require.False(t, ep.Connected())
	require.Panics(t, func() { pckt.Payload() })
}

func TestEndpointNextRunAtConversion(t *testing.T) {
	sim, _ := newTestSim()
	se := &stubEngine{conn: &stubConn{timeout: 1000500}}
	ep := CreateEndpoint(sim, "client", nil)
	require.NoError(t, ep.Connect(se, Address{Host: 9}))

	// 1000500 ms becomes 1000.5s plus the rounding slack
	require.InDelta(t, 1000.5001, ep.NextRunAt(), 1e-9)

	// a deadline already past clamps to the present
	se.conn.timeout = 900000
	require.Equal(t, sim.Now(), ep.NextRunAt())
}

func TestEndpointRunForwardsBatch(t *testing.T) {
	sim, _ := newTestSim()
	sink := new(sinkNode)
	sc := &stubConn{}
	sc.sendFn = func(batch *SendBatch) SendStatus {
		batch.Dest = Address{Host: 9}
		batch.Src = Address{Host: 8}
		batch.Add([]byte{1, 1})
		batch.Add([]byte{2, 2, 2})
		return SendOK
	}
	se := &stubEngine{conn: sc}
	ep := CreateEndpoint(sim, "client", nil)
	ep.SetEgress(sink)
	require.NoError(t, ep.Connect(se, Address{Host: 9}))

	ep.Run()
	require.Len(t, sink.got, 2)
	require.Equal(t, 2, sink.got[0].Size())
	require.Equal(t, 3, sink.got[1].Size())
	require.Equal(t, Address{Host: 9}, sink.got[0].Dest)
	require.Equal(t, Address{Host: 8}, sink.got[0].Src)
	require.True(t, ep.Connected())
}

func TestEndpointFreeConnReleasesAfterForwarding(t *testing.T) {
	sim, _ := newTestSim()
	sink := new(sinkNode)
	sc := &stubConn{}
	sc.sendFn = func(batch *SendBatch) SendStatus {
		batch.Dest = Address{Host: 9}
		batch.Src = Address{Host: 8}
		batch.Add([]byte{5})
		return SendFreeConn
	}
	se := &stubEngine{conn: sc}
	ep := CreateEndpoint(sim, "client", nil)
	ep.SetEgress(sink)
	require.NoError(t, ep.Connect(se, Address{Host: 9}))

	ep.Run()
	require.Len(t, sink.got, 1)
	require.False(t, ep.Connected())
	require.Equal(t, math.Inf(1), ep.NextRunAt())
}

func TestSendBatchBounds(t *testing.T) {
	batch := CreateSendBatch()
	for i := 0; i < MaxSendBurst; i++ {
		require.True(t, batch.Add([]byte{byte(i)}))
	}
	require.False(t, batch.Room())
	require.False(t, batch.Add([]byte{99}))

	batch.Reset()
	require.True(t, batch.Room())
	require.False(t, batch.Add(make([]byte, MaxDatagramSize+1)))
	require.True(t, batch.Add(make([]byte, MaxDatagramSize)))
}
