package rdp

// State enumerates the seven states a connection progresses through, §4.3.
type State uint8

const (
	StateUninitialized State = iota // UNINITIALIZED
	StateSynSent                    // SYN_SENT
	StateSynRecv                    // SYN_RECV
	StateConnected                  // CONNECTED
	StateConnectedFull              // CONNECTED_FULL
	StateFinSent                    // FIN_SENT
	StateDestroy                    // DESTROY
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRecv:
		return "SYN_RECV"
	case StateConnected:
		return "CONNECTED"
	case StateConnectedFull:
		return "CONNECTED_FULL"
	case StateFinSent:
		return "FIN_SENT"
	case StateDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// IsConnectedLike reports whether s is CONNECTED or CONNECTED_FULL, the two
// states in which data may flow and read_poll processes ACKs normally.
func (s State) IsConnectedLike() bool {
	return s == StateConnected || s == StateConnectedFull
}

// IsTerminal reports whether s is DESTROY; such connections are reaped by
// the next tick and ignored by read_poll.
func (s State) IsTerminal() bool {
	return s == StateDestroy
}

// Events is a bit set of conditions read_poll reports back to the caller,
// per §6.
type Events uint16

const (
	EventContinue  Events = 1 << iota // a unit of internal work happened; no caller-visible payload
	EventAgain                        // the socket was drained; nothing more to do right now
	EventData                         // nbytes of payload were delivered (0 means EOF)
	EventAccept                       // a new incoming connection completed its handshake
	EventConnected                    // an outgoing connection completed its handshake
	EventPollOut                      // a connection transitioned out of CONNECTED_FULL
	EventError                        // the caller's buffer could not hold the next in-order packet
)

func (e Events) Has(flag Events) bool { return e&flag != 0 }
