// Package rdp implements a reliable, ordered, flow-controlled byte-stream
// protocol on top of unreliable UDP datagrams, entirely in user space.
//
// The engine is single-threaded and cooperative: it owns no goroutines or
// mutexes of its own. A Socket multiplexes many Conns over one UDP
// endpoint; callers drive it by calling ReadPoll whenever the descriptor
// is readable and IntervalAction no later than the deadline it last
// returned. Package blocking offers a synchronous net.Conn-style wrapper
// for callers that would rather not manage that loop themselves.
package rdp
