package rdp

// selectiveAckStartSeq is the sequence number bit 0 of a SACK bitmap
// refers to: ack_nr+2, since ack_nr+1 is always the (unsent) next
// cumulative slot and carries no information (§4.7).
func selectiveAckStartSeq(ackNr Seq16) Seq16 {
	return ackNr.Add(2)
}

// processSelectiveAck walks a SACK bitmap from high bit to low, calling
// ackPacket for every set bit whose sequence number still falls inside
// the outstanding send window. Clear bits require no action: the regular
// RTO timer will eventually retransmit them (§4.7).
func (c *Conn) processSelectiveAck(ackNr Seq16, bits []byte) {
	if c.queue == 0 || len(bits) == 0 {
		return
	}
	start := selectiveAckStartSeq(ackNr)
	lo := c.oldestUnackedSeq()
	hi := c.seqNr.Add(-1)

	nbits := len(bits) * 8
	for i := nbits - 1; i >= 0; i-- {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		if bits[byteIdx]&(1<<bitIdx) == 0 {
			continue
		}
		seq := start.Add(i)
		if !InClosedRange(seq, lo, hi) {
			continue
		}
		slot, ok := c.sendRing.Get(uint16(seq))
		if !ok {
			continue
		}
		c.ackPacket(seq, slot)
		c.sendRing.Remove(uint16(seq))
	}
}

// buildSelectiveAckBits encodes the out-of-order receive ring into a SACK
// bitmap sized to ceil(out_of_order_cnt/8)+1, rounded up to a multiple of
// 4 bytes and at least 4 bytes long (§4.7).
func (c *Conn) buildSelectiveAckBits() []byte {
	if c.outOfOrderCount == 0 {
		return nil
	}
	n := (c.outOfOrderCount+7)/8 + 1
	if rem := n % 4; rem != 0 {
		n += 4 - rem
	}
	if n < 4 {
		n = 4
	}
	bits := make([]byte, n)
	start := selectiveAckStartSeq(c.ackNr)
	nbits := n * 8
	for i := 0; i < nbits; i++ {
		seq := start.Add(i)
		if c.recvRing.Has(uint16(seq)) {
			bits[i/8] |= 1 << uint(i%8)
		}
	}
	return bits
}
