package rdp

import "testing"

func newAcceptedTestConn(t *testing.T) *Conn {
	t.Helper()
	s := newLoopbackTestSocket(t)
	c := s.ConnCreate()
	c.peerAddr = s.conn.LocalAddr()
	c.sendID, c.recvID = 1, 2
	c.state = StateConnected
	c.seqNr = 100
	c.ackNr = 49
	if err := s.reg.add(c); err != nil {
		t.Fatalf("reg.add: %v", err)
	}
	return c
}

func TestDeliverOrBufferInOrderAdvancesAck(t *testing.T) {
	c := newAcceptedTestConn(t)
	buf := make([]byte, 32)
	ev, n := c.deliverOrBuffer(c.ackNr.Add(1), TypeData, []byte("hi"), buf)
	if ev != EventData || n != 2 {
		t.Fatalf("ev=%v n=%d, want EventData/2", ev, n)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("buf = %q, want %q", buf[:n], "hi")
	}
	if c.ackNr != 50 {
		t.Fatalf("ackNr = %d, want 50", c.ackNr)
	}
}

func TestDeliverOrBufferFutureSeqIsBuffered(t *testing.T) {
	c := newAcceptedTestConn(t)
	buf := make([]byte, 32)
	future := c.ackNr.Add(3)
	ev, n := c.deliverOrBuffer(future, TypeData, []byte("later"), buf)
	if ev != EventContinue || n != 0 {
		t.Fatalf("ev=%v n=%d, want EventContinue/0", ev, n)
	}
	if !c.recvRing.Has(uint16(future)) {
		t.Fatal("expected the future packet to be buffered in the receive ring")
	}
	if c.outOfOrderCount != 1 {
		t.Fatalf("outOfOrderCount = %d, want 1", c.outOfOrderCount)
	}
	if !c.needSendAck {
		t.Fatal("expected needSendAck to be set for a buffered out-of-order packet")
	}
}

func TestDeliverOrBufferDuplicateFutureIsDropped(t *testing.T) {
	c := newAcceptedTestConn(t)
	buf := make([]byte, 32)
	future := c.ackNr.Add(2)
	c.deliverOrBuffer(future, TypeData, []byte("first"), buf)
	c.outOfOrderCount = 1
	c.needSendAck = false
	ev, _ := c.deliverOrBuffer(future, TypeData, []byte("dup"), buf)
	if ev != EventContinue {
		t.Fatalf("ev = %v, want EventContinue", ev)
	}
	if c.outOfOrderCount != 1 {
		t.Fatalf("outOfOrderCount = %d, want 1 (duplicate must not re-buffer)", c.outOfOrderCount)
	}
}

func TestDeliverOrBufferDistantPastMarksNeedSendAck(t *testing.T) {
	c := newAcceptedTestConn(t)
	buf := make([]byte, 32)
	distantPast := c.ackNr.Add(-(QueueSizeMax + 100))
	ev, n := c.deliverOrBuffer(distantPast, TypeData, []byte("stale"), buf)
	if ev != EventContinue || n != 0 {
		t.Fatalf("ev=%v n=%d, want EventContinue/0", ev, n)
	}
	if !c.needSendAck {
		t.Fatal("expected a lost-ACK heuristic resend for a far-in-the-past DATA packet")
	}
}

func TestDeliverOrBufferDistantPastStateTypeIsDropped(t *testing.T) {
	c := newAcceptedTestConn(t)
	buf := make([]byte, 32)
	distantPast := c.ackNr.Add(-(QueueSizeMax + 100))
	c.needSendAck = false
	c.deliverOrBuffer(distantPast, TypeState, nil, buf)
	if c.needSendAck {
		t.Fatal("a stale pure-ACK (STATE) packet should not trigger a resend ACK")
	}
}

func TestAckWindowValidRejectsAckAheadOfSeqNr(t *testing.T) {
	c := newAcceptedTestConn(t)
	c.queue = 0
	if c.ackWindowValid(c.seqNr) {
		t.Fatal("ack_nr == seq_nr (nothing sent yet) should be invalid; want seq_nr-1")
	}
	if !c.ackWindowValid(c.seqNr.Add(-1)) {
		t.Fatal("ack_nr == seq_nr-1 should be valid when queue is empty")
	}
}

func TestAckWindowValidAllowsOutstandingRange(t *testing.T) {
	c := newAcceptedTestConn(t)
	c.queue = 5 // oldest unacked = seqNr-5 = 95, hi = seqNr-1 = 99
	if !c.ackWindowValid(97) {
		t.Fatal("an ack_nr within the outstanding range should be valid")
	}
	if c.ackWindowValid(c.seqNr) {
		t.Fatal("an ack_nr at or beyond seq_nr should be invalid")
	}
}

func TestAckCumulativeAdvancesQueueAndRemovesSlots(t *testing.T) {
	c := newAcceptedTestConn(t)
	c.queue = 3
	oldest := c.oldestUnackedSeq()
	for i := 0; i < 3; i++ {
		seq := oldest.Add(i)
		c.sendRing.Set(uint16(seq), &sendSlot{transmissions: 1, payload: []byte("x")})
	}
	c.ackCumulative(oldest.Add(1)) // ack first two slots
	if c.queue != 1 {
		t.Fatalf("queue = %d, want 1", c.queue)
	}
	if _, ok := c.sendRing.Get(uint16(oldest)); ok {
		t.Error("oldest slot should have been removed")
	}
	if _, ok := c.sendRing.Get(uint16(oldest.Add(2))); !ok {
		t.Error("the still-outstanding third slot should remain")
	}
}

func TestOnPacketSynSentToConnectedEmitsEventConnected(t *testing.T) {
	s := newLoopbackTestSocket(t)
	c := s.ConnCreate()
	c.peerAddr = s.conn.LocalAddr()
	c.sendID, c.recvID = 1, 2
	c.state = StateSynSent
	c.seqNr = 1
	c.queue = 1
	c.sendRing.Set(0, &sendSlot{typ: TypeSyn, transmissions: 1})
	if err := s.reg.add(c); err != nil {
		t.Fatalf("reg.add: %v", err)
	}

	buf := make([]byte, 32)
	h := Header{Type: TypeState, SeqNr: 10, AckNr: 0}
	ev, _, _, err := c.onPacket(h, nil, buf)
	if err != nil {
		t.Fatalf("onPacket: %v", err)
	}
	if !ev.Has(EventConnected) {
		t.Fatalf("ev = %v, want EventConnected set on the SYN_SENT->CONNECTED edge", ev)
	}
	if c.state != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", c.state)
	}
}

func TestHandleSynCreatesConnectionWithResponderIDs(t *testing.T) {
	s := newLoopbackTestSocket(t)
	addr := s.conn.LocalAddr()
	h := Header{Type: TypeSyn, ConnID: 500, SeqNr: 42, Window: 1024}
	ev, c, _, err := s.handleSyn(h, addr)
	if err != nil {
		t.Fatalf("handleSyn: %v", err)
	}
	if ev != EventContinue {
		t.Fatalf("ev = %v, want EventContinue (ACCEPT fires on first DATA, not SYN)", ev)
	}
	if c.sendID != 500 || c.recvID != 501 {
		t.Fatalf("sendID=%d recvID=%d, want 500/501", c.sendID, c.recvID)
	}
	if c.state != StateSynRecv {
		t.Fatalf("state = %v, want SYN_RECV", c.state)
	}
	if _, ok := s.reg.lookup(addr.String(), 501); !ok {
		t.Fatal("expected the new connection registered under recv_id 501")
	}
}

func TestHandleSynRetransmittedSynReAcksExisting(t *testing.T) {
	s := newLoopbackTestSocket(t)
	addr := s.conn.LocalAddr()
	h := Header{Type: TypeSyn, ConnID: 700, SeqNr: 7, Window: 1024}
	_, first, _, err := s.handleSyn(h, addr)
	if err != nil {
		t.Fatalf("first handleSyn: %v", err)
	}
	_, second, _, err := s.handleSyn(h, addr)
	if err != nil {
		t.Fatalf("second handleSyn: %v", err)
	}
	if second != first {
		t.Fatal("a retransmitted SYN should resolve to the already-registered connection")
	}
	if s.reg.len() != 1 {
		t.Fatalf("reg.len() = %d, want 1 (no duplicate connection created)", s.reg.len())
	}
}

func TestHandleSynAtCapacitySendsResetAndSkipsRegistration(t *testing.T) {
	s := newLoopbackTestSocket(t)
	addr := s.conn.LocalAddr()
	for i := 0; i < MaxConnsPerSocket; i++ {
		c := s.ConnCreate()
		c.peerAddr = fakeAddr("filler")
		c.recvID = uint16(i)
		if err := s.reg.add(c); err != nil {
			t.Fatalf("filling registry: %v", err)
		}
	}
	h := Header{Type: TypeSyn, ConnID: 900, SeqNr: 1, Window: 1024}
	ev, c, _, err := s.handleSyn(h, addr)
	if err != nil {
		t.Fatalf("handleSyn: %v", err)
	}
	if c != nil {
		t.Fatalf("expected no connection returned at capacity, got %v", c)
	}
	if ev != EventContinue {
		t.Fatalf("ev = %v, want EventContinue", ev)
	}
	if s.reg.len() != MaxConnsPerSocket {
		t.Fatalf("reg.len() = %d, want unchanged %d", s.reg.len(), MaxConnsPerSocket)
	}
}
