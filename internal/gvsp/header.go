package gvsp

import "encoding/binary"

const (
	// GVSP packet header length.
	headerSize = 8
	// Combined IP + UDP + GVSP header overhead within the configured
	// stream channel packet size.
	totalHeaderOverhead = 36
)

// packetFormat is the low nibble of header byte 4.
type packetFormat byte

const (
	formatLeader  packetFormat = 1
	formatTrailer packetFormat = 2
	formatPayload packetFormat = 3
)

// header is the fixed 8-byte GVSP packet header.
//
//	offset 0: status      u16 big-endian (0 = OK)
//	offset 2: block id    u16 big-endian (non-zero)
//	offset 4: ext_id:1, reserved:3, format:4
//	offset 5: packet id   u24 big-endian
type header struct {
	Status     uint16
	BlockID    uint16
	ExtendedID bool
	Format     packetFormat
	PacketID   uint32
}

// parseHeader decodes the fixed header. buf must be at least headerSize
// bytes; the receive loop guarantees this before dispatching.
func parseHeader(buf []byte) header {
	return header{
		Status:     binary.BigEndian.Uint16(buf[0:2]),
		BlockID:    binary.BigEndian.Uint16(buf[2:4]),
		ExtendedID: buf[4]&0x80 != 0,
		Format:     packetFormat(buf[4] & 0x0f),
		PacketID:   uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7]),
	}
}
