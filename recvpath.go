package rdp

import (
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// ReadPoll performs at most one unit of work: deliver an already-buffered
// in-order payload if one is ready on any connection, otherwise attempt a
// single non-blocking UDP receive and fold its effect into the matching
// connection (§4.5). Callers loop on ReadPoll until it reports EventAgain.
func (s *Socket) ReadPoll(buf []byte) (Events, *Conn, int, error) {
	s.clock = time.Now()

	if ev, c, n, ok := s.deliverBuffered(buf); ok {
		return ev, c, n, nil
	}

	datagram, addr, err := s.recvOne()
	if err != nil {
		if isWouldBlock(err) {
			s.flushPendingAcks()
			return EventAgain, nil, 0, nil
		}
		return EventAgain, nil, 0, err
	}
	if datagram == nil {
		s.flushPendingAcks()
		return EventAgain, nil, 0, nil
	}

	h, payload, err := ParsePacket(datagram)
	if err != nil {
		s.trace("drop:parse", slog.String("err", err.Error()))
		return EventContinue, nil, 0, nil
	}

	if h.Type == TypeSyn {
		return s.handleSyn(h, addr)
	}

	c, ok := s.reg.lookup(addr.String(), h.ConnID)
	if !ok {
		s.trace("drop:no-conn", slog.Uint64("conn_id", uint64(h.ConnID)))
		return EventContinue, nil, 0, nil
	}
	c.lastRecvTime = s.clock

	if h.Type == TypeReset {
		c.state = StateDestroy
		c.debug("conn:reset-received")
		return EventContinue, c, 0, nil
	}

	return c.onPacket(h, payload, buf)
}

// deliverBuffered implements §4.5 step 1: before touching the network,
// check every CONNECTED/CONNECTED_FULL connection for EOF completion or a
// slot sitting at ack_nr+1 that a previous packet already buffered
// out-of-order. At most one connection is serviced per call.
func (s *Socket) deliverBuffered(buf []byte) (Events, *Conn, int, bool) {
	for _, c := range s.reg.all {
		if !c.state.IsConnectedLike() {
			continue
		}
		if c.receivedFin && c.eofSeqNr == c.ackNr && !c.receivedFinCompleted {
			c.receivedFinCompleted = true
			c.sendAck()
			return EventData, c, 0, true
		}
		next := c.ackNr.Add(1)
		stored, ok := c.recvRing.Get(uint16(next))
		if !ok {
			continue
		}
		if len(stored.payload) > len(buf) {
			return EventError, c, 0, true
		}
		c.recvRing.Remove(uint16(next))
		c.outOfOrderCount--
		n := copy(buf, stored.payload)
		c.ackNr = next
		c.needSendAck = true
		if stored.isFin {
			c.eofSeqNr = next
		}
		c.sendAck()
		return EventData, c, n, true
	}
	return 0, nil, 0, false
}

// flushPendingAcks emits any ACK owed by a connection that was deferred
// while other work was happening, once the socket has nothing left to
// drain this call (§4.5 step 2).
func (s *Socket) flushPendingAcks() {
	for _, c := range s.reg.all {
		if c.needSendAck {
			c.sendAck()
		}
	}
}

// recvOne performs a single non-blocking UDP read. net.UDPConn exposes no
// native non-blocking mode from the public API, so a zero-timeout poll(2)
// on the socket descriptor checks for a waiting datagram first and
// ReadFromUDP is called only when one is there, without dedicating a
// goroutine to the socket (§5's single-threaded requirement). A nil
// datagram means nothing was waiting.
func (s *Socket) recvOne() ([]byte, net.Addr, error) {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return nil, nil, err
	}
	ready := 0
	if err := raw.Control(func(fd uintptr) {
		ready, _ = unix.Poll([]unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}, 0)
	}); err != nil {
		return nil, nil, err
	}
	if ready <= 0 {
		return nil, nil, nil
	}
	var scratch [65536]byte
	n, addr, err := s.conn.ReadFromUDP(scratch[:])
	if err != nil {
		return nil, nil, err
	}
	out := make([]byte, n)
	copy(out, scratch[:n])
	return out, addr, nil
}

func isWouldBlock(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// handleSyn processes an inbound SYN, either accepting a brand new
// connection (SYN_RECV) or re-acking an already SYN_RECV one whose SYN was
// retransmitted (§4.5 point 3).
func (s *Socket) handleSyn(h Header, addr net.Addr) (Events, *Conn, int, error) {
	if existing, ok := s.reg.lookup(addr.String(), h.ConnID+1); ok && existing.state == StateSynRecv {
		existing.sendAck()
		return EventContinue, existing, 0, nil
	}
	if s.reg.len() >= MaxConnsPerSocket {
		s.sendReset(addr, h.ConnID)
		return EventContinue, nil, 0, nil
	}
	c := newConn(s)
	c.peerAddr = addr
	// Responder side of §4.2: the received conn_id becomes our send_id,
	// and conn_id+1 becomes our recv_id.
	c.sendID = h.ConnID
	c.recvID = h.ConnID + 1
	c.idSeed = h.ConnID
	c.ackNr = h.SeqNr
	c.seqNr = Seq16(s.idseeds.Next())
	c.peerRecvWindow = clampWindow(int(h.Window))
	c.state = StateSynRecv
	c.lastRecvTime = s.clock
	if err := s.reg.add(c); err != nil {
		s.sendReset(addr, h.ConnID)
		return EventContinue, nil, 0, nil
	}
	c.sendAck()
	c.debug("conn:syn-recv", slog.Uint64("recv_id", uint64(c.recvID)))
	return EventContinue, c, 0, nil
}

// onPacket dispatches one already-routed, non-SYN/RESET packet against its
// connection (§4.5 points 5-16).
func (c *Conn) onPacket(h Header, payload []byte, buf []byte) (Events, *Conn, int, error) {
	if c.state.IsTerminal() {
		return EventContinue, c, 0, nil
	}

	if !c.ackWindowValid(h.AckNr) {
		c.trace("drop:ack-window", slog.Uint64("ack_nr", uint64(h.AckNr)))
		return EventContinue, c, 0, nil
	}

	var ev Events
	switch c.state {
	case StateSynSent:
		if h.Type == TypeState || h.Type == TypeData {
			c.ackNr = h.SeqNr.Add(-1)
			c.state = StateConnected
			ev |= EventConnected
			c.debug("conn:connected (initiator)")
		}
	}

	ev |= c.ackCumulative(h.AckNr)
	c.updatePeerWindow(h.Window)
	if h.HasSack {
		c.processSelectiveAck(h.AckNr, h.SackBits)
	}

	if h.Type == TypeData && c.state == StateSynRecv {
		c.state = StateConnected
		ev |= EventAccept
	}

	if c.state == StateFinSent && c.queue == 0 {
		c.state = StateDestroy
	}

	if c.state == StateConnectedFull && !c.flightFull() {
		c.state = StateConnected
		if c.pollOutPending {
			c.pollOutPending = false
			ev |= EventPollOut
		}
	}

	if h.Type == TypeFin {
		if c.state == StateFinSent {
			c.state = StateDestroy
		} else {
			c.receivedFin = true
			c.eofSeqNr = h.SeqNr
		}
	}

	dataEv, n := c.deliverOrBuffer(h.SeqNr, h.Type, payload, buf)
	ev |= dataEv
	if ev == 0 {
		ev = EventContinue
	}
	return ev, c, n, nil
}

// ackWindowValid restates §4.5 point 5: ack_nr must not precede the oldest
// still-outstanding sequence number by more than AckRecvBehindAllowed, and
// must never be ahead of the next sequence number this side assigned.
func (c *Conn) ackWindowValid(ackNr Seq16) bool {
	hi := c.seqNr.Add(-1)
	lo := c.oldestUnackedSeq().Add(-AckRecvBehindAllowed)
	return InClosedRange(ackNr, lo, hi)
}

// ackCumulative advances past every slot up to and including ackNr,
// feeding each into ackPacket for RTT/RTO bookkeeping (§4.5 point 8,
// §4.6).
func (c *Conn) ackCumulative(ackNr Seq16) Events {
	if c.queue == 0 {
		return 0
	}
	oldest := c.oldestUnackedSeq()
	ackCnt := oldest.Diff(ackNr) + 1
	if ackCnt < 0 {
		ackCnt = 0
	}
	if ackCnt > c.queue {
		ackCnt = c.queue
	}
	for i := 0; i < ackCnt; i++ {
		seq := oldest.Add(i)
		slot, ok := c.sendRing.Get(uint16(seq))
		if !ok {
			continue
		}
		c.ackPacket(seq, slot)
		c.sendRing.Remove(uint16(seq))
	}
	c.queue -= ackCnt
	if c.queue == 0 {
		c.resetOldestResent()
	}
	return 0
}

// deliverOrBuffer implements §4.5 point 16: an in-order packet is copied
// straight into the caller's buffer in this same call; a future packet is
// stashed in the receive ring for a later ReadPoll's deliverBuffered scan
// to pick up; a packet so far behind it wraps is either treated as a lost
// ACK or dropped outright. A STATE packet carries the sender's next
// unassigned seq_nr rather than one of its own, so it is neither delivered
// nor buffered and leaves ack_nr unchanged.
func (c *Conn) deliverOrBuffer(seq Seq16, typ Type, payload []byte, buf []byte) (Events, int) {
	if typ == TypeState {
		return EventContinue, 0
	}
	next := c.ackNr.Add(1)
	off := next.Diff(seq)

	switch {
	case off == 0:
		if len(payload) > len(buf) {
			c.sendAck()
			return EventError, 0
		}
		n := copy(buf, payload)
		c.ackNr = seq
		c.needSendAck = true
		c.sendAck()
		if n == 0 {
			return EventContinue, 0
		}
		return EventData, n

	case off > 0 && off < QueueSizeMax:
		staleAgainstFin := c.receivedFin && !seq.LessEq(c.eofSeqNr)
		if c.recvRing.Has(uint16(seq)) || staleAgainstFin {
			return EventContinue, 0
		}
		stored := make([]byte, len(payload))
		copy(stored, payload)
		c.recvRing.EnsureCapacity(off + 1)
		c.recvRing.Set(uint16(seq), &recvSlot{payload: stored, isFin: typ == TypeFin})
		c.outOfOrderCount++
		c.needSendAck = true
		return EventContinue, 0

	default:
		// off < 0 or off >= QueueSizeMax: both represent, once folded back
		// into unsigned mod-2^16 arithmetic, a "huge" offset indicating a
		// packet far in the past (spec's wraparound case).
		if typ != TypeState {
			c.needSendAck = true
		}
		return EventContinue, 0
	}
}

// updatePeerWindow applies the peer-advertised receive window to this
// connection's effective send cap (§4.5 point 9).
func (c *Conn) updatePeerWindow(window uint32) {
	c.peerRecvWindow = clampWindow(int(window))
}

func clampWindow(w int) int {
	if w < 0 {
		return 0
	}
	if w > WindowSizeMax {
		return WindowSizeMax
	}
	return w
}
