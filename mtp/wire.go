package mtp

// wire.go holds the engine's wire image: a fixed header followed by a
// type-specific payload, one or more packets coalesced per datagram

import (
	"encoding/binary"
)

const (
	ptInitial   byte = 0xB1
	ptHandshake byte = 0xB2
	ptData      byte = 0xB3
	ptAck       byte = 0xB4
	ptClose     byte = 0xB5
)

const (
	// header: type(1) connID(4) pktnum(8) payload length(2)
	headerLen = 15

	// initial datagrams are padded to this length with zero bytes,
	// which no header type matches
	initialDatagramLen = 1200

	// data frame: streamID(2) offset(8) length(2)
	frameHdrLen = 12

	wireVersion uint16 = 0x0001
)

// packet is one wire packet extracted from a datagram.  The payload
// aliases the inbound buffer and is only valid while the packet is
// being processed.
type packet struct {
	ptype   byte
	connID  uint32
	pktNum  uint64
	payload []byte
}

// appendPacket serializes one packet onto dst
func appendPacket(dst []byte, ptype byte, connID uint32, pktNum uint64, payload []byte) []byte {
	dst = append(dst, ptype)
	dst = binary.BigEndian.AppendUint32(dst, connID)
	dst = binary.BigEndian.AppendUint64(dst, pktNum)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	dst = append(dst, payload...)
	return dst
}

// decodePacket extracts the packet starting at *off, advancing *off
// past it.  Anything malformed, truncated, or padding returns false
// with *off untouched.
func decodePacket(buf []byte, off *int) (*packet, bool) {
	if len(buf)-*off < headerLen {
		return nil, false
	}
	at := *off
	ptype := buf[at]
	if ptype < ptInitial || ptype > ptClose {
		return nil, false
	}
	connID := binary.BigEndian.Uint32(buf[at+1 : at+5])
	pktNum := binary.BigEndian.Uint64(buf[at+5 : at+13])
	plen := int(binary.BigEndian.Uint16(buf[at+13 : at+15]))
	if at+headerLen+plen > len(buf) {
		return nil, false
	}
	p := new(packet)
	p.ptype = ptype
	p.connID = connID
	p.pktNum = pktNum
	p.payload = buf[at+headerLen : at+headerLen+plen]
	*off = at + headerLen + plen
	return p, true
}

// initial payload: version(2) clientID(4)

func appendInitialPayload(dst []byte, clientID uint32) []byte {
	dst = binary.BigEndian.AppendUint16(dst, wireVersion)
	dst = binary.BigEndian.AppendUint32(dst, clientID)
	return dst
}

func parseInitialPayload(payload []byte) (version uint16, clientID uint32, ok bool) {
	if len(payload) < 6 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(payload[0:2]), binary.BigEndian.Uint32(payload[2:6]), true
}

// handshake payload: serverID(4)

func appendHandshakePayload(dst []byte, serverID uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, serverID)
}

func parseHandshakePayload(payload []byte) (serverID uint32, ok bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(payload[0:4]), true
}

// ack payload: largest(8) mask(8), the mask covering the 64 packet
// numbers below largest

func appendAckPayload(dst []byte, largest, mask uint64) []byte {
	dst = binary.BigEndian.AppendUint64(dst, largest)
	dst = binary.BigEndian.AppendUint64(dst, mask)
	return dst
}

func parseAckPayload(payload []byte) (largest, mask uint64, ok bool) {
	if len(payload) < 16 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint64(payload[0:8]), binary.BigEndian.Uint64(payload[8:16]), true
}

// data payload: streamID(2) offset(8) length(2) bytes

func appendDataPayload(dst []byte, streamID uint16, off uint64, data []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, streamID)
	dst = binary.BigEndian.AppendUint64(dst, off)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(data)))
	dst = append(dst, data...)
	return dst
}

func parseDataPayload(payload []byte) (streamID uint16, off uint64, data []byte, ok bool) {
	if len(payload) < frameHdrLen {
		return 0, 0, nil, false
	}
	streamID = binary.BigEndian.Uint16(payload[0:2])
	off = binary.BigEndian.Uint64(payload[2:10])
	dlen := int(binary.BigEndian.Uint16(payload[10:12]))
	if frameHdrLen+dlen > len(payload) {
		return 0, 0, nil, false
	}
	return streamID, off, payload[frameHdrLen : frameHdrLen+dlen], true
}

// close payload: code(2)

func appendClosePayload(dst []byte, code uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, code)
}
