// Package rte defines the runtime exchange contract that coordinates
// benchmark peers: configuration exchange, barriers, and point-to-point
// messaging. The benchmark engine depends only on Group and never branches
// on which binding backs it.
package rte

// Group is the rendezvous contract shared by all bindings. A Group is bound
// to exactly one process-local participant and is not safe for concurrent
// use; the benchmark driver calls it from a single sequential path.
type Group interface {
	// Size returns the total number of peers in the exchange group.
	Size() uint
	// Index returns the caller's own rank within [0, Size()).
	Index() uint
	// Barrier blocks until every peer in the group has called Barrier. There
	// is no timeout unless the binding is configured with one; a peer that
	// never arrives leaves the rest of the group blocked.
	Barrier() error
	// Send transfers len(data) bytes to the peer at dest. A rank sending to
	// itself appends to a process-local loopback queue instead of touching
	// the network.
	Send(dest uint, data []byte) error
	// Recv fills buf with len(buf) bytes originating from the peer at src.
	// A rank receiving from itself pops from the loopback queue; at least
	// len(buf) bytes must already be queued there.
	Recv(src uint, buf []byte) error
	// Report delivers a result snapshot to the registered sink exactly once
	// per call. Formatting and printing are the sink's concern.
	Report(result Result)
}
