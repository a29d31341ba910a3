package perf

import (
	"context"
	"math"
	"time"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
)

// Engine runs a benchmark over an established exchange group. The engine
// never knows which binding backs the group.
type Engine interface {
	Run(ctx context.Context, params Params, group rte.Group) (rte.Result, error)
}

// New selects the engine for the configured traffic pattern.
func New(p Params) (Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.TestType {
	case TypePingPong:
		return pingPong{}, nil
	case TypeStreamUni:
		return uniStream{}, nil
	default:
		return nil, errors.Mark(
			errors.Newf("[perf] - no engine for test type %s", p.TestType),
			rte.InvalidParameter,
		)
	}
}

// meter accumulates per-iteration measurements and produces result
// snapshots. The window resets on every snapshot, which is what feeds the
// moment-average columns.
type meter struct {
	msgSize      uint64
	start        time.Time
	windowStart  time.Time
	iters        uint64
	windowIters  uint64
	latSum       float64
	windowLatSum float64
	latMin       float64
}

func newMeter(msgSize uint64) *meter {
	now := time.Now()
	return &meter{msgSize: msgSize, start: now, windowStart: now, latMin: math.MaxFloat64}
}

// record counts one iteration with a measured latency in seconds.
func (m *meter) record(lat float64) {
	m.iters++
	m.windowIters++
	m.latSum += lat
	m.windowLatSum += lat
	if lat < m.latMin {
		m.latMin = lat
	}
}

// tick counts one iteration without a latency sample.
func (m *meter) tick() {
	m.iters++
	m.windowIters++
}

// due reports whether a progress snapshot should be delivered.
func (m *meter) due(interval float64) bool {
	return interval > 0 && time.Since(m.windowStart).Seconds() >= interval
}

// snapshot produces a result and resets the report window.
func (m *meter) snapshot(final bool) rte.Result {
	now := time.Now()
	elapsed := now.Sub(m.start)
	window := now.Sub(m.windowStart).Seconds()
	total := elapsed.Seconds()

	r := rte.Result{Iters: m.iters, Elapsed: elapsed, Final: final}
	if m.latSum > 0 {
		r.Latency = rte.Moments{
			Typical:      m.latMin,
			TotalAverage: m.latSum / float64(m.iters),
		}
		if m.windowIters > 0 {
			r.Latency.MomentAverage = m.windowLatSum / float64(m.windowIters)
		}
	}
	if window > 0 {
		r.Bandwidth.MomentAverage = float64(m.windowIters*m.msgSize) / window
		r.MsgRate.MomentAverage = float64(m.windowIters) / window
	}
	if total > 0 {
		r.Bandwidth.TotalAverage = float64(m.iters*m.msgSize) / total
		r.MsgRate.TotalAverage = float64(m.iters) / total
	}

	m.windowStart = now
	m.windowIters = 0
	m.windowLatSum = 0
	return r
}
