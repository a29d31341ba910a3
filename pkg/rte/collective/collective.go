// Package collective adapts an externally supplied multi-process runtime to
// the runtime exchange contract. The adapter is a thin passthrough: every
// operation forwards one-to-one and failures propagate unchanged, with no
// retries.
package collective

import "github.com/arya-analytics/gauge/pkg/rte"

// Runtime is the coordination substrate the adapter delegates to. Group
// sizes are arbitrary (>= 1) and ranks are assigned by the runtime itself.
//
// Implementations must service rank-to-self traffic locally: the adapter
// forwards self-addressed sends and receives unchanged, so a runtime that
// routed them over the network would deadlock a point-to-point channel.
type Runtime interface {
	Size() uint
	Rank() uint
	Barrier() error
	Send(dest uint, data []byte) error
	Recv(src uint, buf []byte) error
}

// Group adapts a Runtime to rte.Group.
type Group struct {
	runtime Runtime
	sink    rte.Sink
}

var _ rte.Group = (*Group)(nil)

// Wrap binds a runtime and a report sink into an exchange group.
func Wrap(runtime Runtime, sink rte.Sink) *Group {
	return &Group{runtime: runtime, sink: sink}
}

func (g *Group) Size() uint  { return g.runtime.Size() }
func (g *Group) Index() uint { return g.runtime.Rank() }

func (g *Group) Barrier() error { return g.runtime.Barrier() }

func (g *Group) Send(dest uint, data []byte) error { return g.runtime.Send(dest, data) }

func (g *Group) Recv(src uint, buf []byte) error { return g.runtime.Recv(src, buf) }

// Report delivers the snapshot to the registered sink.
func (g *Group) Report(result rte.Result) {
	if g.sink != nil {
		g.sink.Report(result)
	}
}
