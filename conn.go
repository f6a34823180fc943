package rdp

import (
	"net"
	"time"

	"github.com/sunderio/rdp/internal"
)

// sendSlot wraps one outbound packet awaiting acknowledgement (§3).
type sendSlot struct {
	typ           Type
	payload       []byte // owned; grows in place on piggyback coalescing
	lastSendTime  time.Time
	transmissions int
	needResend    bool
}

func (s *sendSlot) size() int { return len(s.payload) }

// recvSlot owns one out-of-order inbound payload (§3).
type recvSlot struct {
	payload []byte
	isFin   bool // packet carried the FIN flag (type==TypeFin)
}

// rttEstimator holds the Karn-style RTT/RTO state of §4.6.
type rttEstimator struct {
	rtt       time.Duration
	rttVar    time.Duration
	nextRTO   time.Duration
	rto       time.Duration
	rtoDeadline time.Time
}

// Conn is one logical, reliable, ordered byte-stream connection
// multiplexed on a shared Socket's UDP endpoint. A Conn is not safe for
// concurrent use from multiple goroutines: the engine is single-threaded
// and cooperative (§5); callers drive it exclusively through
// Socket.ReadPoll and Socket.IntervalAction.
type Conn struct {
	socket *Socket
	logger

	state State

	peerAddr net.Addr
	idSeed   uint16
	recvID   uint16
	sendID   uint16

	sendRing internal.SeqRing[*sendSlot]
	recvRing internal.SeqRing[*recvSlot]
	stage    internal.Ring // unsegmented bytes awaiting MSS-chunking into sendRing

	seqNr Seq16 // next sequence number to assign to a new outbound slot
	ackNr Seq16 // highest sequence number received contiguously from peer
	queue int   // count of unacked outbound slots

	eofSeqNr              Seq16
	receivedFin           bool
	receivedFinCompleted  bool
	needSendAck           bool

	rttEstimator

	flightBytes     int
	flightLimit     int
	peerRecvWindow  int
	selfRecvWindow  int
	oldestResent    Seq16 // meaningful only when oldestResentSet
	oldestResentSet bool  // false == the "-1" sentinel of §4.8

	outOfOrderCount int
	lastRecvTime    time.Time
	lastSentTime    time.Time

	pollOutPending bool // set when entering CONNECTED_FULL, cleared after emitting one POLLOUT

	userData any
}

// State returns the connection's current lifecycle state (§4.3).
func (c *Conn) State() State { return c.state }

// UserData returns the opaque value previously set with SetUserData.
func (c *Conn) UserData() any { return c.userData }

// SetUserData attaches an opaque value to the connection; the engine never
// inspects it.
func (c *Conn) SetUserData(v any) { c.userData = v }

// RemoteAddr returns the peer address, valid once the handshake has begun.
func (c *Conn) RemoteAddr() net.Addr { return c.peerAddr }

// mss returns the connection's maximum segment size, derived from its
// owning socket's address family (§C.3 of SPEC_FULL.md).
func (c *Conn) mss() int { return c.socket.mss }

// sendCap is the effective send window: min(flight_limit, peer_recv_window).
func (c *Conn) sendCap() int {
	if c.peerRecvWindow < c.flightLimit {
		return c.peerRecvWindow
	}
	return c.flightLimit
}

// flightFull reports whether sending one more MSS-sized segment would
// overflow the effective send window (§4.4 point 2).
func (c *Conn) flightFull() bool {
	return c.flightBytes+c.mss() > c.sendCap()
}

func (c *Conn) resetOldestResent() {
	c.oldestResentSet = false
	c.oldestResent = 0
}

// oldestUnackedSeq returns seq_nr-queue, the sequence number of the oldest
// still-outstanding outbound slot. Only meaningful when queue > 0.
func (c *Conn) oldestUnackedSeq() Seq16 {
	return c.seqNr.Add(-c.queue)
}

func newConn(s *Socket) *Conn {
	c := &Conn{
		socket:         s,
		sendRing:       internal.NewSeqRing[*sendSlot](64),
		recvRing:       internal.NewSeqRing[*recvSlot](64),
		flightLimit:    WindowSizeDefault,
		peerRecvWindow: WindowSizeDefault,
		selfRecvWindow: WindowSizeDefault,
		rttEstimator:   rttEstimator{rto: RTODefault},
	}
	c.stage.Buf = make([]byte, 64*1024)
	c.logger = s.logger
	return c
}
