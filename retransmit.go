package rdp

import (
	"log/slog"
	"time"
)

// IntervalAction runs one maintenance pass over every non-terminal
// connection registered on the socket: RTO expiry, wait-cap teardown,
// window resizing, retransmission, keepalives, and registry reaping
// (§4.8). Callers invoke it whenever their timer fires at or after the
// deadline last returned, and otherwise drive the engine through
// ReadPoll.
func (s *Socket) IntervalAction() time.Time {
	s.clock = time.Now()
	soonest := s.clock.Add(SocketCheckMax)

	for _, c := range s.reg.all {
		if c.state.IsTerminal() {
			continue
		}
		c.tick(s.clock)
		if c.state.IsTerminal() {
			continue
		}
		if c.queue > 0 && c.rtoDeadline.Before(soonest) {
			soonest = c.rtoDeadline
		}
	}
	s.reg.reapDestroyed()

	if soonest.Before(s.clock.Add(SocketCheckMin)) {
		soonest = s.clock.Add(SocketCheckMin)
	}
	if soonest.After(s.clock.Add(SocketCheckMax)) {
		soonest = s.clock.Add(SocketCheckMax)
	}
	s.nextTick = soonest
	return soonest
}

// tick applies one connection's share of IntervalAction (§4.8 point 1-2).
func (c *Conn) tick(now time.Time) {
	if c.enforceWaitCaps(now) {
		return
	}

	if c.queue > 0 && !now.Before(c.rtoDeadline) {
		oldest := c.oldestUnackedSeq()
		oldestSlot, hasOldest := c.sendRing.Get(uint16(oldest))

		anyExpired := false
		for i := 0; i < c.queue; i++ {
			seq := oldest.Add(i)
			slot, ok := c.sendRing.Get(uint16(seq))
			if !ok || slot.transmissions == 0 {
				continue
			}
			if !now.Before(slot.lastSendTime.Add(c.rto)) {
				if !slot.needResend {
					c.flightBytes -= slot.size()
					if c.flightBytes < 0 {
						c.flightBytes = 0
					}
				}
				slot.needResend = true
				anyExpired = true
			}
		}

		if anyExpired {
			c.resizeFlightWindow(oldest)
			c.flush()
			c.debug("conn:rto", slog.Uint64("oldest_unacked", uint64(oldest)), slog.Int("flight_limit", c.flightLimit))
		}

		if hasOldest {
			c.rto = c.nextRTO - now.Sub(oldestSlot.lastSendTime)
		} else {
			c.rto = c.nextRTO
		}
		if c.rto < 0 {
			c.rto = 0
		}
		if c.nextRTO == 0 {
			c.rto = RTODefault
		}
		c.rtoDeadline = now.Add(c.rto)
	}

	if c.state.IsConnectedLike() && !now.Before(c.lastSentTime.Add(KeepaliveInterval)) {
		c.sendKeepalive()
	}
}

// enforceWaitCaps destroys a connection stuck in SYN_RECV or FIN_SENT past
// its wait cap, returning true if it did so.
func (c *Conn) enforceWaitCaps(now time.Time) bool {
	switch c.state {
	case StateSynRecv:
		if now.Sub(c.lastRecvTime) >= WaitSynRecv {
			c.state = StateDestroy
			return true
		}
	case StateFinSent:
		if now.Sub(c.lastRecvTime) >= WaitFinSent {
			c.state = StateDestroy
			return true
		}
	}
	return false
}

// resizeFlightWindow applies the multiplicative shrink/expand policy of
// §4.8: the first loss at a given oldest-unacked position merely records
// the sentinel; a repeated loss at the same position halves flight_limit,
// while progress since the last loss doubles it.
func (c *Conn) resizeFlightWindow(oldest Seq16) {
	if !c.oldestResentSet {
		c.oldestResent = oldest
		c.oldestResentSet = true
		return
	}
	if c.oldestResent == oldest {
		c.flightLimit /= WindowShrinkFactor
	} else {
		c.flightLimit *= WindowExpandFactor
		c.oldestResent = oldest
	}
	if c.flightLimit < c.mss() {
		c.flightLimit = c.mss()
	}
	if c.flightLimit > WindowSizeMax {
		c.flightLimit = WindowSizeMax
	}
}

// sendKeepalive emits an ACK with ack_nr decremented by one, without
// consuming a sequence number (§4.8 point 2). The peer accepts it as an
// ordinary STATE, which refreshes its last-receive time; the peer sends no
// reply to it.
func (c *Conn) sendKeepalive() {
	saved := c.ackNr
	c.ackNr = c.ackNr.Add(-1)
	c.sendAck()
	c.ackNr = saved
	c.lastSentTime = c.socket.clock
}
