package bnsim

import (
	"fmt"
)

// Address identifies a simulated endpoint.  Hosts are synthetic IPv4
// values handed out by the Sim's allocator.
type Address struct {
	Host uint32
	Port uint16
}

func (addr Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", byte(addr.Host>>24), byte(addr.Host>>16),
		byte(addr.Host>>8), byte(addr.Host), addr.Port)
}

// Packet is one datagram in flight between nodes.  Its payload is a
// single contiguous copy made at creation; whatever bytes the producer
// wrote afterwards are not visible to the packet.
type Packet struct {
	Dest Address
	Src  Address

	// EnterAt is stamped by a queue when the packet is admitted, and is
	// the base of the queue's propagation delay
	EnterAt float64

	payload []byte
}

// CreatePacket is a constructor.  The payload bytes are copied.
func CreatePacket(sim *Sim, dest, src Address, payload []byte) *Packet {
	pckt := new(Packet)
	pckt.Dest = dest
	pckt.Src = src
	pckt.EnterAt = sim.Now()
	pckt.payload = make([]byte, len(payload))
	copy(pckt.payload, payload)
	return pckt
}

// Size returns the payload length in bytes
func (pckt *Packet) Size() int {
	return len(pckt.payload)
}

// Payload returns the packet's bytes.  The slice is owned by the packet
// and is invalid after Release.
func (pckt *Packet) Payload() []byte {
	if pckt.payload == nil {
		panic("payload access after packet release")
	}
	return pckt.payload
}

// Release returns the packet's storage.  Exactly one node releases a
// packet, when it consumes or discards it.  A second release is a
// protocol error in the node graph and halts the simulation.
func (pckt *Packet) Release() {
	if pckt.payload == nil {
		panic("packet released twice")
	}
	pckt.payload = nil
}
