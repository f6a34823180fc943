package rdp

// registryKey uniquely identifies a connection by peer address and the
// recv_id the peer must present in conn_id (§3 invariant 5, §4.2).
type registryKey struct {
	addr   string // net.Addr.String(), canonical enough to key on
	recvID uint16
}

// registry maps (peer address, recv_id) to *Conn, enforcing the socket-wide
// connection cap (§5, §6).
type registry struct {
	byKey map[registryKey]*Conn
	all   []*Conn
}

func newRegistry() registry {
	return registry{byKey: make(map[registryKey]*Conn)}
}

func (r *registry) len() int { return len(r.byKey) }

func (r *registry) lookup(addr string, recvID uint16) (*Conn, bool) {
	c, ok := r.byKey[registryKey{addr, recvID}]
	return c, ok
}

// add registers c, returning ErrResourceExhausted if the socket is at
// capacity. Collisions on the key are a programming error (the caller is
// responsible for re-rolling id seeds on collision, §4.2) and panic.
func (r *registry) add(c *Conn) error {
	if len(r.byKey) >= MaxConnsPerSocket {
		return ErrResourceExhausted
	}
	key := registryKey{c.peerAddr.String(), c.recvID}
	if _, exists := r.byKey[key]; exists {
		panic("rdp: connection registry collision")
	}
	r.byKey[key] = c
	r.all = append(r.all, c)
	return nil
}

func (r *registry) remove(c *Conn) {
	key := registryKey{c.peerAddr.String(), c.recvID}
	delete(r.byKey, key)
}

// reapDestroyed drops every DESTROY connection from the registry and
// compacts the iteration slice, reusing its backing array.
func (r *registry) reapDestroyed() {
	kept := r.all[:0]
	for _, c := range r.all {
		if c.state == StateDestroy {
			r.remove(c)
			continue
		}
		kept = append(kept, c)
	}
	r.all = kept
}
