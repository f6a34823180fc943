package rdp

import (
	"log/slog"
)

// connIDFor returns the conn_id this connection places in outgoing packets:
// recv_id for SYN (the one documented exception, §4.2/§6), send_id for
// everything else.
func (c *Conn) connIDFor(typ Type) uint16 {
	if typ == TypeSyn {
		return c.recvID
	}
	return c.sendID
}

// Write is the only data-producing entry point (§4.4). It segments b into
// MSS-sized packets (after staging it for coalescing with any not-yet-sent
// tail slot) and attempts to flush as much as the flight window allows.
func (c *Conn) Write(b []byte) (int, error) {
	switch c.state {
	case StateSynSent, StateConnectedFull:
		return 0, ErrAgain
	case StateConnected:
		// fallthrough to segment below
	default:
		return 0, ErrInvalid
	}
	if len(b) == 0 {
		return 0, nil
	}
	if c.flightFull() {
		c.enterFull()
		return 0, ErrAgain
	}
	if free := c.stage.Free(); len(b) > free {
		b = b[:free]
	}
	n, _ := c.stage.Write(b) // partial write on a full stage buffer is fine
	c.segmentAndFlush()
	return n, nil
}

// WriteVec writes a scatter/gather list of byte slices, up to MaxVec
// entries, in order.
func (c *Conn) WriteVec(vec [][]byte) (int, error) {
	if len(vec) > MaxVec {
		return 0, ErrInvalid
	}
	total := 0
	for _, b := range vec {
		n, err := c.Write(b)
		total += n
		if err != nil {
			return total, err
		}
		if n < len(b) {
			break // stage or flight filled up; stop early like a short write
		}
	}
	return total, nil
}

// segmentAndFlush drains the staging ring into MSS-sized send slots,
// piggybacking onto the most recently enqueued untransmitted slot when
// possible (§4.4 point 4), then flushes whatever the flight window allows.
func (c *Conn) segmentAndFlush() {
	mss := c.mss()
	for c.stage.Buffered() > 0 && c.queue < QueueSizeMax-1 {
		if c.tryPiggyback(mss) {
			continue
		}
		n := c.stage.Buffered()
		if n > mss {
			n = mss
		}
		payload := make([]byte, n)
		read, err := c.stage.Read(payload)
		if err != nil || read == 0 {
			break
		}
		c.enqueueSlot(TypeData, payload[:read])
	}
	c.flush()
}

// tryPiggyback extends the most recently enqueued, not-yet-transmitted
// slot in place with more bytes from the staging ring, if it has room and
// is a DATA slot. Returns whether it did so (even if it drained the ring to
// empty after one below-MSS append).
func (c *Conn) tryPiggyback(mss int) bool {
	if c.queue == 0 {
		return false
	}
	lastSeq := c.seqNr.Add(-1)
	slot, ok := c.sendRing.Get(uint16(lastSeq))
	if !ok || slot.typ != TypeData || slot.transmissions != 0 {
		return false
	}
	room := mss - slot.size()
	if room <= 0 {
		return false
	}
	want := c.stage.Buffered()
	if want > room {
		want = room
	}
	if want == 0 {
		return false
	}
	buf := make([]byte, want)
	n, err := c.stage.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	slot.payload = append(slot.payload, buf[:n]...)
	return true
}

// enqueueSlot assigns the next sequence number to a new outbound slot and
// adds it to the send ring.
func (c *Conn) enqueueSlot(typ Type, payload []byte) {
	seq := c.seqNr
	c.sendRing.EnsureCapacity(c.queue + 2)
	c.sendRing.Set(uint16(seq), &sendSlot{typ: typ, payload: payload})
	c.seqNr = c.seqNr.Add(1)
	c.queue++
}

// flush transmits every never-sent or need-resend slot in
// [seq_nr-queue, seq_nr), stopping once the flight window is full
// (§4.4 point 6).
func (c *Conn) flush() {
	base := c.oldestUnackedSeq()
	for i := 0; i < c.queue; i++ {
		seq := base.Add(i)
		slot, ok := c.sendRing.Get(uint16(seq))
		if !ok {
			continue
		}
		if slot.transmissions != 0 && !slot.needResend {
			continue
		}
		if c.flightFull() {
			c.enterFull()
			return
		}
		c.transmitSlot(seq, slot)
	}
}

// transmitSlot sends (or resends) one slot, stamping fresh ack_nr/window
// and updating RTT-relevant bookkeeping (§4.4 tail paragraph).
func (c *Conn) transmitSlot(seq Seq16, slot *sendSlot) {
	h := Header{
		Type:   slot.typ,
		ConnID: c.connIDFor(slot.typ),
		Window: uint32(c.selfRecvWindow),
		SeqNr:  seq,
		AckNr:  c.ackNr,
	}
	buf := AppendPacket(c.socket.scratch[:0], h, slot.payload)
	_ = c.socket.writeDatagram(c.peerAddr, buf)

	wasCounted := slot.transmissions != 0 && !slot.needResend
	slot.lastSendTime = c.socket.clock
	slot.transmissions++
	slot.needResend = false
	c.needSendAck = false
	c.lastSentTime = c.socket.clock
	if !wasCounted {
		c.flightBytes += slot.size()
	}
	c.trace("tx", slog.String("type", slot.typ.String()), slog.Uint64("seq", uint64(seq)))
}

// enterFull transitions CONNECTED -> CONNECTED_FULL, arming a single
// pending POLLOUT event for when the window later drains (§4.3).
func (c *Conn) enterFull() {
	if c.state == StateConnected {
		c.state = StateConnectedFull
		c.pollOutPending = true
	}
}

// sendSyn queues and immediately transmits the initial SYN packet
// (conn_id==recv_id), entering the normal retransmission machinery exactly
// like a DATA slot (original_source/rdp.c does the same: the SYN packet is
// placed in the outbound ring and counted against queue).
func (c *Conn) sendSyn() {
	c.enqueueSlot(TypeSyn, nil)
	c.flush()
}

// queueFin enqueues a FIN using the slot reserved below QueueSizeMax
// (§4.4 point 5).
func (c *Conn) queueFin() {
	c.enqueueSlot(TypeFin, nil)
	c.flush()
}
