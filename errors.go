package rdp

import "errors"

// Caller-visible sentinel errors (§7). Check these with errors.Is.
var (
	// ErrAgain is returned by Write when the flight window is full
	// (CONNECTED_FULL) or the connection has not finished handshaking yet
	// (SYN_SENT). ReadPoll reports a drained socket as EventAgain with a
	// nil error instead.
	ErrAgain = errors.New("rdp: resource temporarily unavailable")

	// ErrInvalid is returned when an API is used against a connection in
	// an incompatible state, or with malformed arguments.
	ErrInvalid = errors.New("rdp: invalid argument or state")

	// ErrBufferTooSmall names the condition in which the caller-supplied
	// buffer cannot hold the next in-order payload. No function of this
	// package returns it: ReadPoll reports that condition as EventError with
	// a nil error, and the payload is not consumed.
	ErrBufferTooSmall = errors.New("rdp: buffer too small for next packet")

	// ErrResourceExhausted is returned by operations that would exceed a
	// hard resource bound (connection registry at capacity).
	ErrResourceExhausted = errors.New("rdp: resource exhausted")

	// ErrConnNotFound names the case in which no connection matches a given
	// key. No function of this package returns it: ReadPoll drops unmatched
	// inbound packets silently.
	ErrConnNotFound = errors.New("rdp: connection not found")

	// ErrSocketClosed is returned by SocketDestroy on a Socket that has
	// already been destroyed.
	ErrSocketClosed = errors.New("rdp: socket closed")
)

// errDropSegment is an internal sentinel signalling "this datagram must be
// silently dropped" (§7 protocol-violation policy). It is never returned to
// a caller of the public API, and no code path returns it: recvpath.go
// drops such datagrams by returning EventContinue directly.
var errDropSegment = errors.New("rdp: drop segment")
