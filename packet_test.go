package bnsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketCopiesPayload(t *testing.T) {
	sim, _ := newTestSim()
	src := []byte{1, 2, 3, 4}
	pckt := CreatePacket(sim, Address{Host: 1}, Address{Host: 2}, src)
	src[0] = 99

	require.Equal(t, []byte{1, 2, 3, 4}, pckt.Payload())
	require.Equal(t, 4, pckt.Size())
	require.Equal(t, 1000.0, pckt.EnterAt)
}

func TestPacketReleaseTwicePanics(t *testing.T) {
	sim, _ := newTestSim()
	pckt := CreatePacket(sim, Address{}, Address{}, []byte{1})
	pckt.Release()
	require.Panics(t, func() { pckt.Release() })
	require.Panics(t, func() { pckt.Payload() })
}

func TestAddressString(t *testing.T) {
	addr := Address{Host: 0xac100001, Port: 54321}
	require.Equal(t, "172.16.0.1:54321", addr.String())
}
