package rdp

import "time"

// Protocol-level constants, carried over from original_source/rdp.c's
// preprocessor definitions (see SPEC_FULL.md §C.2) since spec.md left most
// of them as prose rather than exact figures.
const (
	// ProtocolVersion is the only version this engine speaks.
	ProtocolVersion = 1

	// QueueSizeMax is the maximum number of in-flight packets a single
	// connection's send ring may hold; one slot below this ceiling is
	// always reserved for an eventual FIN (see sendpath.go).
	QueueSizeMax = 16 * 1024

	// BufferSizeMax bounds both the send and receive byte budget of a
	// single connection.
	BufferSizeMax = 16 * 1024 * 1024

	// WindowSizeDefault is the initial flight_limit of a freshly opened
	// connection.
	WindowSizeDefault = BufferSizeMax / 4

	// WindowSizeMax is the ceiling flight_limit can expand to.
	WindowSizeMax = BufferSizeMax

	// WindowShrinkFactor/WindowExpandFactor drive the multiplicative
	// flight-window resize policy of retransmit.go.
	WindowShrinkFactor = 2
	WindowExpandFactor = 2

	// MaxConnsPerSocket caps the connection registry.
	MaxConnsPerSocket = 1024

	// RTO bounds and default, per §4.6/§8.
	RTOMin     = 200 * time.Millisecond
	RTOMax     = 1000 * time.Millisecond
	RTODefault = 500 * time.Millisecond

	// KeepaliveInterval is the idle duration after which a CONNECTED
	// connection emits an unsolicited STATE packet (§4.8 point 2).
	KeepaliveInterval = 29000 * time.Millisecond

	// WaitSynRecv/WaitFinSent bound how long a half-formed or
	// half-torn-down connection waits for progress before DESTROY.
	WaitSynRecv  = 10000 * time.Millisecond
	WaitFinSent  = 10000 * time.Millisecond

	// AckRecvBehindAllowed is the tolerance window (§4.5 point 5) absorbing
	// retransmitted ACKs that reference an already-advanced ack_nr.
	AckRecvBehindAllowed = 10

	// MaxVec caps the number of iovec-style segments a single WriteVec call
	// may accept (original_source/rdp.c RDP_MAX_VEC).
	MaxVec = 1024

	// MSS figures. The 1500 byte Ethernet MTU minus IP/UDP/tunnel overhead
	// budget, computed exactly as original_source/rdp.c does:
	//   1500 - ipHeader - 8(UDP) - 24(GRE) - 8(PPPoE) - 2(MPPE) - 36(fudge)
	ethernetMTU    = 1500
	udpHeaderSize  = 8
	greHeaderSize  = 24
	pppoeHeaderSz  = 8
	mppeHeaderSize = 2
	fudgeHeaderSz  = 36
	ipv4HeaderSize = 20
	ipv6HeaderSize = 40

	// MSSv4 is the on-wire maximum segment size for an IPv4 socket: 1402.
	MSSv4 = ethernetMTU - ipv4HeaderSize - udpHeaderSize - greHeaderSize - pppoeHeaderSz - mppeHeaderSize - fudgeHeaderSz
	// MSSv6 is the on-wire maximum segment size for an IPv6 socket: 1382.
	MSSv6 = ethernetMTU - ipv6HeaderSize - udpHeaderSize - greHeaderSize - pppoeHeaderSz - mppeHeaderSize - fudgeHeaderSz

	// SocketCheckMin/Max clamp the socket-wide tick deadline (§4.8 point 3).
	// Not given numerically by spec.md; see SPEC_FULL.md §E.6 for the
	// rationale behind these values.
	SocketCheckMin = 500 * time.Millisecond
	SocketCheckMax = 5000 * time.Millisecond

	// headerSize is the fixed wire header length (§3).
	headerSize = 12
)
