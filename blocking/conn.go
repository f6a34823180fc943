// Package blocking wraps the cooperative, single-threaded rdp engine with a
// synchronous net.Conn-like API, the way tcp.Conn wraps tcp.Handler in the
// non-blocking stack this engine's idiom is drawn from: one pump goroutine
// drives Socket.ReadPoll/IntervalAction, and Read/Write/Dial/Accept spin
// with an exponential backoff under a shared mutex rather than blocking on
// channels, since the core engine has no internal synchronization to wait
// on.
package blocking

import (
	"bytes"
	"context"
	"errors"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/sunderio/rdp"
	"github.com/sunderio/rdp/internal"
)

var (
	errDeadlineExceeded = errors.New("rdp/blocking: i/o deadline exceeded")
	errClosed           = errors.New("rdp/blocking: connection closed")
)

// Socket drives one rdp.Socket's read and tick loop on a background
// goroutine so that Conn's blocking API has something to spin against.
type Socket struct {
	mu     sync.Mutex
	core   *rdp.Socket
	accept []*Conn
	conns  map[*rdp.Conn]*Conn
	done   chan struct{}
}

// NewSocket wraps an already-created rdp.Socket and starts its pump
// goroutine.
func NewSocket(core *rdp.Socket) *Socket {
	s := &Socket{core: core, conns: make(map[*rdp.Conn]*Conn), done: make(chan struct{})}
	go s.pump()
	return s
}

// wrap returns the blocking.Conn fronting a core connection, creating one
// the first time it is observed (an inbound handshake completing, or an
// outbound Dial that raced the pump goroutine).
func (s *Socket) wrap(core *rdp.Conn) *Conn {
	c, ok := s.conns[core]
	if !ok {
		c = &Conn{socket: s, core: core}
		s.conns[core] = c
	}
	return c
}

// Close stops the pump goroutine and destroys the underlying socket.
func (s *Socket) Close() error {
	close(s.done)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.SocketDestroy()
}

func (s *Socket) pump() {
	buf := make([]byte, 64*1024)
	next := time.Now()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		s.mu.Lock()
		for {
			ev, core, n, err := s.core.ReadPoll(buf)
			if err != nil || ev.Has(rdp.EventAgain) {
				break
			}
			if core == nil {
				continue
			}
			if ev.Has(rdp.EventAccept) {
				c := s.wrap(core)
				s.accept = append(s.accept, c)
			}
			if ev.Has(rdp.EventData) {
				c := s.wrap(core)
				c.inbox.Write(buf[:n])
			}
		}
		if !time.Now().Before(next) {
			next = s.core.IntervalAction()
		}
		s.mu.Unlock()
		time.Sleep(200 * time.Microsecond)
	}
}

// Dial opens an outbound connection and blocks (subject to ctx) until the
// handshake completes.
func (s *Socket) Dial(ctx context.Context, host, service string) (*Conn, error) {
	s.mu.Lock()
	core, err := s.core.NetConnect(host, service)
	var c *Conn
	if err == nil {
		c = s.wrap(core)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	backoff := internal.NewBackoff(internal.BackoffConnIO)
	for {
		s.mu.Lock()
		state := core.State()
		s.mu.Unlock()
		if state.IsConnectedLike() {
			return c, nil
		}
		if state.IsTerminal() {
			return nil, errors.New("rdp/blocking: connection reset during handshake")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		backoff.Miss()
	}
}

// Accept blocks until an inbound handshake completes.
func (s *Socket) Accept(ctx context.Context) (*Conn, error) {
	backoff := internal.NewBackoff(internal.BackoffConnIO)
	for {
		s.mu.Lock()
		if len(s.accept) > 0 {
			c := s.accept[0]
			s.accept = s.accept[1:]
			s.mu.Unlock()
			return c, nil
		}
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		backoff.Miss()
	}
}

// Conn is a synchronous view over one rdp.Conn.
type Conn struct {
	socket *Socket
	core   *rdp.Conn

	mu    sync.Mutex
	rdead time.Time
	wdead time.Time
	inbox bytes.Buffer // payload bytes delivered by the pump goroutine, awaiting Read
}

func (c *Conn) deadlineExceeded(dead *time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !dead.IsZero() && !time.Now().Before(*dead)
}

// Write stages and flushes b, spinning until the flight window accepts it
// all or the write deadline passes, mirroring the teacher's TCPConn.Write.
func (c *Conn) Write(b []byte) (int, error) {
	if c.deadlineExceeded(&c.wdead) {
		return 0, errDeadlineExceeded
	}
	if len(b) == 0 {
		return 0, nil
	}
	backoff := internal.NewBackoff(internal.BackoffConnIO)
	n := 0
	for n < len(b) {
		c.socket.mu.Lock()
		got, err := c.core.Write(b[n:])
		c.socket.mu.Unlock()
		n += got
		if err != nil && !errors.Is(err, rdp.ErrAgain) {
			return n, err
		}
		if got > 0 {
			backoff.Hit()
			runtime.Gosched()
		} else {
			backoff.Miss()
		}
		if c.deadlineExceeded(&c.wdead) {
			return n, errDeadlineExceeded
		}
	}
	return n, nil
}

// Read blocks until at least one byte is delivered, the core connection
// reaches DESTROY (errClosed), or the read deadline passes. A FIN from the
// peer alone does not end the wait.
func (c *Conn) Read(b []byte) (int, error) {
	if c.deadlineExceeded(&c.rdead) {
		return 0, errDeadlineExceeded
	}
	backoff := internal.NewBackoff(internal.BackoffConnIO)
	for {
		c.socket.mu.Lock()
		n, _ := c.inbox.Read(b)
		state := c.core.State()
		c.socket.mu.Unlock()
		if n > 0 {
			return n, nil
		}
		if state.IsTerminal() {
			return 0, errClosed
		}
		if c.deadlineExceeded(&c.rdead) {
			return 0, errDeadlineExceeded
		}
		backoff.Miss()
	}
}

// Close gracefully closes the connection, per rdp.Socket.ConnClose.
func (c *Conn) Close() error {
	c.socket.mu.Lock()
	defer c.socket.mu.Unlock()
	return c.socket.core.ConnClose(c.core)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.core.RemoteAddr() }

// SetDeadline sets both read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	c.rdead, c.wdead = t, t
	c.mu.Unlock()
	return nil
}

// SetReadDeadline sets the read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.rdead = t
	c.mu.Unlock()
	return nil
}

// SetWriteDeadline sets the write deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.wdead = t
	c.mu.Unlock()
	return nil
}
