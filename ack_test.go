package rdp

import (
	"testing"
	"time"
)

func TestSampleRTTFirstSample(t *testing.T) {
	c := &Conn{}
	c.sampleRTT(100 * time.Millisecond)
	if c.rtt != 100*time.Millisecond {
		t.Fatalf("rtt = %v, want 100ms", c.rtt)
	}
	if c.rttVar != 50*time.Millisecond {
		t.Fatalf("rttVar = %v, want 50ms", c.rttVar)
	}
	want := clampRTO(100*time.Millisecond + 4*50*time.Millisecond)
	if c.nextRTO != want {
		t.Fatalf("nextRTO = %v, want %v", c.nextRTO, want)
	}
}

func TestSampleRTTClampsToBounds(t *testing.T) {
	c := &Conn{}
	c.sampleRTT(1 * time.Millisecond)
	if c.nextRTO < RTOMin {
		t.Fatalf("nextRTO %v below RTOMin %v", c.nextRTO, RTOMin)
	}
	c.sampleRTT(10 * time.Second)
	if c.nextRTO > RTOMax {
		t.Fatalf("nextRTO %v above RTOMax %v", c.nextRTO, RTOMax)
	}
}

func TestAckPacketKarnsRuleSkipsRetransmitted(t *testing.T) {
	s := &Socket{clock: time.Now()}
	c := &Conn{socket: s}
	slot := &sendSlot{transmissions: 2, lastSendTime: s.clock.Add(-time.Second), payload: []byte("x")}
	c.flightBytes = 10
	c.ackPacket(1, slot)
	if c.rtt != 0 {
		t.Fatalf("rtt should remain unsampled for a retransmitted slot, got %v", c.rtt)
	}
	if c.flightBytes != 9 {
		t.Fatalf("flightBytes = %d, want 9 (payload was counted, not need_resend)", c.flightBytes)
	}
}

func TestAckPacketSamplesOnSingleTransmission(t *testing.T) {
	s := &Socket{clock: time.Now()}
	c := &Conn{socket: s}
	slot := &sendSlot{transmissions: 1, lastSendTime: s.clock.Add(-50 * time.Millisecond), payload: []byte("xy")}
	c.flightBytes = 2
	c.ackPacket(1, slot)
	if c.rtt == 0 {
		t.Fatal("expected an RTT sample from a once-transmitted slot")
	}
	if c.flightBytes != 0 {
		t.Fatalf("flightBytes = %d, want 0", c.flightBytes)
	}
}

func TestAckPacketNeedResendNotSubtracted(t *testing.T) {
	s := &Socket{clock: time.Now()}
	c := &Conn{socket: s}
	slot := &sendSlot{transmissions: 2, needResend: true, payload: []byte("xyz")}
	c.flightBytes = 5
	c.ackPacket(1, slot)
	if c.flightBytes != 5 {
		t.Fatalf("flightBytes changed for a need_resend slot: got %d, want 5", c.flightBytes)
	}
}
