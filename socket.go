package rdp

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/rs/xid"
	"github.com/sunderio/rdp/internal"
	"golang.org/x/sys/unix"
)

// SockProp identifies a property accessible through Socket.GetProp/SetProp
// (§6).
type SockProp int

const (
	PropFD SockProp = iota
	PropSndBuf
	PropRcvBuf
)

// SocketConfig configures a Socket at creation time. The zero value is
// usable: a nil Logger disables logging.
type SocketConfig struct {
	Logger *slog.Logger
}

// Socket owns a single non-blocking UDP endpoint multiplexing up to
// MaxConnsPerSocket logical connections (§3, §5).
type Socket struct {
	logger

	conn    *net.UDPConn
	mss     int
	scratch [2048]byte // reused encode buffer for transmitSlot/sendAck/sendReset

	reg      registry
	idseeds  internal.IDSeedGenerator
	clock    time.Time // snapshot refreshed once per ReadPoll/IntervalAction call
	nextTick time.Time

	metrics *Collector

	closed bool
}

// SocketCreate binds a non-blocking UDP socket to bindHost:bindService (IPv4
// or IPv6; the OS resolver picks the family, per §1's explicit Non-goal of
// dual-stack policy). version must be 1.
func SocketCreate(version int, bindHost, bindService string, cfg SocketConfig) (*Socket, error) {
	if version != ProtocolVersion {
		return nil, ErrInvalid
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(bindHost, bindService))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	mss := MSSv4
	if addr.IP != nil && addr.IP.To4() == nil {
		mss = MSSv6
	}
	now := time.Now()
	s := &Socket{
		conn:     conn,
		mss:      mss,
		reg:      newRegistry(),
		idseeds:  internal.NewIDSeedGenerator(now.UnixNano()),
		clock:    now,
		nextTick: now.Add(SocketCheckMin),
	}
	s.logger = logger{log: cfg.Logger, id: xid.New().String()}
	s.metrics = newCollector(s)
	s.debug("socket:create", slog.String("bind", addr.String()), slog.Int("mss", mss))
	return s, nil
}

// SocketDestroy closes the underlying descriptor and releases every
// connection still registered on the socket.
func (s *Socket) SocketDestroy() error {
	if s.closed {
		return ErrSocketClosed
	}
	s.closed = true
	for _, c := range s.reg.all {
		c.state = StateDestroy
	}
	s.reg = newRegistry()
	s.debug("socket:destroy")
	return s.conn.Close()
}

// Metrics returns a prometheus.Collector exposing this socket's counters
// (§B of SPEC_FULL.md). Safe to register exactly once per socket.
func (s *Socket) Metrics() *Collector { return s.metrics }

// GetProp reads a low level socket property.
func (s *Socket) GetProp(prop SockProp) (int, error) {
	switch prop {
	case PropFD:
		fd, err := s.fd()
		return int(fd), err
	case PropSndBuf:
		return s.sockopt(unix.SO_SNDBUF)
	case PropRcvBuf:
		return s.sockopt(unix.SO_RCVBUF)
	default:
		return 0, ErrInvalid
	}
}

// SetProp writes a low level socket property.
func (s *Socket) SetProp(prop SockProp, value int) error {
	switch prop {
	case PropSndBuf:
		return s.setSockopt(unix.SO_SNDBUF, value)
	case PropRcvBuf:
		return s.setSockopt(unix.SO_RCVBUF, value)
	default:
		return ErrInvalid
	}
}

func (s *Socket) fd() (uintptr, error) {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	err = raw.Control(func(f uintptr) { fd = f })
	return fd, err
}

func (s *Socket) sockopt(opt int) (int, error) {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var val int
	var operr error
	err = raw.Control(func(fd uintptr) {
		val, operr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	})
	if err != nil {
		return 0, err
	}
	return val, operr
}

func (s *Socket) setSockopt(opt, value int) error {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return err
	}
	var operr error
	err = raw.Control(func(fd uintptr) {
		operr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, value)
	})
	if err != nil {
		return err
	}
	return operr
}

// writeDatagram sends one already-encoded packet to addr.
func (s *Socket) writeDatagram(addr net.Addr, buf []byte) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return ErrInvalid
	}
	_, err := s.conn.WriteToUDP(buf, udpAddr)
	return err
}

// ConnCreate allocates a new connection in UNINITIALIZED state, not yet
// registered or connected to any peer.
func (s *Socket) ConnCreate() *Conn {
	return newConn(s)
}

// NetConnect is a convenience shortcut combining ConnCreate and
// ConnConnect against host:service.
func (s *Socket) NetConnect(host, service string) (*Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, service))
	if err != nil {
		return nil, err
	}
	c := s.ConnCreate()
	if err := s.ConnConnect(c, addr); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnConnect registers c against peerAddr and emits the initial SYN,
// transitioning UNINITIALIZED -> SYN_SENT (§4.3).
func (s *Socket) ConnConnect(c *Conn, peerAddr net.Addr) error {
	if c.state != StateUninitialized {
		return ErrInvalid
	}
	if s.reg.len() >= MaxConnsPerSocket {
		return ErrResourceExhausted
	}
	c.peerAddr = peerAddr
	if err := s.assignInitiatorIDs(c); err != nil {
		return err
	}
	c.seqNr = Seq16(s.idseeds.Next())
	c.ackNr = 0
	c.state = StateSynSent
	c.lastSentTime = s.clock
	if err := s.reg.add(c); err != nil {
		return err
	}
	c.sendSyn()
	c.debug("conn:connect", slog.Uint64("recv_id", uint64(c.recvID)), slog.Uint64("send_id", uint64(c.sendID)))
	return nil
}

// assignInitiatorIDs picks a random id_seed and derives recv_id/send_id per
// §4.2, re-rolling on registry collision. recv_id is the seed itself and
// send_id is seed+1, so that the responder's symmetric derivation (send_id =
// received conn_id, recv_id = conn_id+1) lines up: the initiator's send_id
// (placed in every non-SYN packet it emits) must equal the responder's
// recv_id, and vice versa.
func (s *Socket) assignInitiatorIDs(c *Conn) error {
	for tries := 0; tries < 64; tries++ {
		seed := s.idseeds.Next()
		if _, exists := s.reg.lookup(c.peerAddr.String(), seed); exists {
			continue
		}
		c.idSeed = seed
		c.recvID = seed
		c.sendID = seed + 1
		return nil
	}
	return errors.New("rdp: could not allocate a free connection id")
}

// ConnClose queues a FIN or transitions directly to DESTROY, depending on
// state (§4.3, §4.4).
func (s *Socket) ConnClose(c *Conn) error {
	switch c.state {
	case StateConnected, StateConnectedFull:
		if c.receivedFin {
			c.state = StateDestroy
			c.debug("conn:close->destroy (peer fin already seen)")
			return nil
		}
		c.queueFin()
		c.state = StateFinSent
		c.debug("conn:close->fin_sent")
	case StateSynSent:
		c.state = StateDestroy
	default:
		return ErrInvalid
	}
	return nil
}
