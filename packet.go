package rdp

import (
	"encoding/binary"
	"errors"
)

// Type is the packet type carried in the high nibble of the wire header's
// version_and_type byte.
type Type uint8

const (
	TypeData  Type = 0 // DATA   - carries a payload segment.
	TypeFin   Type = 1 // FIN    - no more data from sender.
	TypeState Type = 2 // STATE  - pure acknowledgement, no payload required.
	TypeReset Type = 3 // RESET  - abort the connection immediately.
	TypeSyn   Type = 4 // SYN    - open a new connection.
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeFin:
		return "FIN"
	case TypeState:
		return "STATE"
	case TypeReset:
		return "RESET"
	case TypeSyn:
		return "SYN"
	default:
		return "UNKNOWN"
	}
}

// extSelectiveAck is the only extension id this engine understands (§6).
const extSelectiveAck = 1

// Header is the fixed 12 byte wire header (§3). No explicit endianness
// conversion is performed by the original protocol; this implementation
// fixes network byte order (big-endian) for interoperability, per the
// decision recorded in SPEC_FULL.md §E.1.
type Header struct {
	Version   uint8 // always 1
	Type      Type
	ConnID    uint16
	Window    uint32
	SeqNr     Seq16
	AckNr     Seq16
	HasSack   bool   // extension byte was nonzero and a SACK extension was present
	SackBits  []byte // raw SACK bitmap bytes, valid only when HasSack
}

var (
	errShortDatagram   = errors.New("rdp: datagram shorter than header")
	errBadVersion      = errors.New("rdp: unsupported protocol version")
	errShortExtension  = errors.New("rdp: truncated extension chain")
	errShortPayload    = errors.New("rdp: extension chain runs past datagram")
)

// ParsePacket decodes a raw UDP datagram into a header and returns the
// remaining payload slice (aliasing buf). It rejects any datagram shorter
// than the fixed header or whose version is not 1, per §4.1.
func ParsePacket(buf []byte) (Header, []byte, error) {
	if len(buf) < headerSize {
		return Header{}, nil, errShortDatagram
	}
	verType := buf[0]
	version := verType & 0x0F
	if version != ProtocolVersion {
		return Header{}, nil, errBadVersion
	}
	h := Header{
		Version: version,
		Type:    Type(verType >> 4),
		ConnID:  binary.BigEndian.Uint16(buf[2:4]),
		Window:  binary.BigEndian.Uint32(buf[4:8]),
		SeqNr:   Seq16(binary.BigEndian.Uint16(buf[8:10])),
		AckNr:   Seq16(binary.BigEndian.Uint16(buf[10:12])),
	}
	rest := buf[headerSize:]
	extByte := buf[1]
	if extByte == 0 {
		return h, rest, nil
	}
	// Walk the extension chain: (next_ext_id:u8, len:u8, data[len])*,
	// terminated by a record whose next_ext_id==0. Unknown extensions are
	// skipped; only selective-ack (id 1) is retained.
	nextID := extByte
	off := 0
	for nextID != 0 {
		if off+2 > len(rest) {
			return Header{}, nil, errShortExtension
		}
		id := nextID
		length := int(rest[off+1])
		nextID = rest[off]
		recStart := off + 2
		if recStart+length > len(rest) {
			return Header{}, nil, errShortPayload
		}
		if id == extSelectiveAck {
			h.HasSack = true
			h.SackBits = rest[recStart : recStart+length]
		}
		off = recStart + length
	}
	return h, rest[off:], nil
}

// AppendPacket encodes header and payload into a contiguous buffer,
// appending to dst and returning the extended slice. If header.HasSack is
// set, a single selective-ack extension record carrying header.SackBits is
// emitted ahead of the payload.
func AppendPacket(dst []byte, h Header, payload []byte) []byte {
	var hdr [headerSize]byte
	extByte := uint8(0)
	if h.HasSack {
		extByte = extSelectiveAck
	}
	hdr[0] = (uint8(h.Type) << 4) | (ProtocolVersion & 0x0F)
	hdr[1] = extByte
	binary.BigEndian.PutUint16(hdr[2:4], h.ConnID)
	binary.BigEndian.PutUint32(hdr[4:8], h.Window)
	binary.BigEndian.PutUint16(hdr[8:10], uint16(h.SeqNr))
	binary.BigEndian.PutUint16(hdr[10:12], uint16(h.AckNr))
	dst = append(dst, hdr[:]...)
	if h.HasSack {
		dst = append(dst, 0 /* next_ext_id: terminal */, uint8(len(h.SackBits)))
		dst = append(dst, h.SackBits...)
	}
	dst = append(dst, payload...)
	return dst
}

// EncodedLen returns the number of bytes AppendPacket would append for a
// packet with the given header and payload length, without encoding it.
func EncodedLen(h Header, payloadLen int) int {
	n := headerSize + payloadLen
	if h.HasSack {
		n += 2 + len(h.SackBits)
	}
	return n
}
