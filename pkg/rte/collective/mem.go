package collective

import (
	"sync"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
)

// memNet is the shared state behind a group of MemRuntimes: one byte queue
// per (receiver, sender) pair and a generation-counted barrier.
type memNet struct {
	mu   sync.Mutex
	cond *sync.Cond
	// queues[dst][src] holds bytes in flight from src to dst, FIFO over raw
	// bytes rather than logical messages.
	queues     [][][]byte
	size       uint
	arrived    uint
	generation uint64
	closed     bool
}

// MemRuntime is an in-process collective runtime. NewMemGroup wires a full
// group whose members exchange bytes through shared memory, which makes it
// useful both as a reference Runtime and for exercising engines and the
// adapter in a single process. Rank-to-self traffic is served locally, as
// the Runtime contract requires.
type MemRuntime struct {
	net  *memNet
	rank uint
}

var _ Runtime = (*MemRuntime)(nil)

// NewMemGroup creates size wired-together runtimes, one per rank.
func NewMemGroup(size uint) []*MemRuntime {
	n := &memNet{size: size, queues: make([][][]byte, size)}
	n.cond = sync.NewCond(&n.mu)
	for i := range n.queues {
		n.queues[i] = make([][]byte, size)
	}
	group := make([]*MemRuntime, size)
	for i := range group {
		group[i] = &MemRuntime{net: n, rank: uint(i)}
	}
	return group
}

func (m *MemRuntime) Size() uint { return m.net.size }
func (m *MemRuntime) Rank() uint { return m.rank }

// Send appends data to the destination's inbound queue for this rank.
func (m *MemRuntime) Send(dest uint, data []byte) error {
	if dest >= m.net.size {
		return errors.Mark(
			errors.Newf("[collective] - rank %d outside group of %d", dest, m.net.size),
			rte.InvalidParameter,
		)
	}
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	if m.net.closed {
		return errors.Mark(errors.New("[collective] - group closed"), rte.TransferFailed)
	}
	m.net.queues[dest][m.rank] = append(m.net.queues[dest][m.rank], data...)
	m.net.cond.Broadcast()
	return nil
}

// Recv blocks until len(buf) bytes from src are queued, then pops them.
func (m *MemRuntime) Recv(src uint, buf []byte) error {
	if src >= m.net.size {
		return errors.Mark(
			errors.Newf("[collective] - rank %d outside group of %d", src, m.net.size),
			rte.InvalidParameter,
		)
	}
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	for len(m.net.queues[m.rank][src]) < len(buf) {
		if m.net.closed {
			return errors.Mark(errors.New("[collective] - group closed"), rte.TransferFailed)
		}
		m.net.cond.Wait()
	}
	q := m.net.queues[m.rank][src]
	copy(buf, q[:len(buf)])
	m.net.queues[m.rank][src] = q[:copy(q, q[len(buf):])]
	return nil
}

// Barrier blocks until every rank in the group has arrived at the same
// generation.
func (m *MemRuntime) Barrier() error {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	if m.net.closed {
		return errors.Mark(errors.New("[collective] - group closed"), rte.TransferFailed)
	}
	gen := m.net.generation
	m.net.arrived++
	if m.net.arrived == m.net.size {
		m.net.arrived = 0
		m.net.generation++
		m.net.cond.Broadcast()
		return nil
	}
	for m.net.generation == gen {
		if m.net.closed {
			return errors.Mark(errors.New("[collective] - group closed"), rte.TransferFailed)
		}
		m.net.cond.Wait()
	}
	return nil
}

// Close unblocks every waiting rank in the group. Safe to call from any
// member.
func (m *MemRuntime) Close() error {
	m.net.mu.Lock()
	m.net.closed = true
	m.net.mu.Unlock()
	m.net.cond.Broadcast()
	return nil
}
