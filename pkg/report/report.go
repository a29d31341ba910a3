// Package report delivers benchmark result snapshots to presentation
// sinks: a tabular printer, a fan-out, and (in the fiber subpackage) an
// HTTP service.
package report

import "github.com/arya-analytics/gauge/pkg/rte"

// Fanout delivers every snapshot to each of its sinks in order.
type Fanout []rte.Sink

var _ rte.Sink = Fanout(nil)

func (f Fanout) Report(result rte.Result) {
	for _, s := range f {
		s.Report(result)
	}
}

// Discard drops every snapshot.
var Discard rte.Sink = rte.SinkFunc(func(rte.Result) {})
