package rdp

import (
	"log/slog"
	"net"
)

// sendAck transmits an unsolicited STATE packet carrying the current
// ack_nr and advertised window, attaching a selective-ACK extension when
// out-of-order data is buffered (§4.9).
func (c *Conn) sendAck() {
	h := Header{
		Type:   TypeState,
		ConnID: c.sendID,
		Window: uint32(c.selfRecvWindow),
		SeqNr:  c.seqNr,
		AckNr:  c.ackNr,
	}
	if bits := c.buildSelectiveAckBits(); bits != nil {
		h.HasSack = true
		h.SackBits = bits
	}
	buf := AppendPacket(c.socket.scratch[:0], h, nil)
	_ = c.socket.writeDatagram(c.peerAddr, buf)
	c.needSendAck = false
	c.lastSentTime = c.socket.clock
	c.trace("tx-ack", slog.Uint64("ack_nr", uint64(c.ackNr)))
}

// sendReset replies to an inbound SYN that cannot be registered (the
// registry is at capacity) with an immediate RESET, outside any connection
// record (§4.5/§C.5 of SPEC_FULL.md). Unmatched non-SYN packets get no
// RESET; ReadPoll drops them silently.
func (s *Socket) sendReset(addr net.Addr, connID uint16) {
	h := Header{Type: TypeReset, ConnID: connID}
	buf := AppendPacket(s.scratch[:0], h, nil)
	_ = s.writeDatagram(addr, buf)
}
