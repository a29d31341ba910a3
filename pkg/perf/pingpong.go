package perf

import (
	"context"
	"time"

	"github.com/arya-analytics/gauge/pkg/rte"
)

// pingPong bounces a fixed-size message between ranks 0 and 1. Rank 1
// initiates and measures half the round trip; rank 0 echoes. Ranks beyond
// the pair participate only in the barriers that bracket the run.
type pingPong struct{}

func (pingPong) Run(ctx context.Context, p Params, g rte.Group) (rte.Result, error) {
	me := g.Index()
	buf := make([]byte, p.MessageSize)

	if err := g.Barrier(); err != nil {
		return rte.Result{}, err
	}
	if me <= 1 {
		for i := uint64(0); i < p.WarmupIters; i++ {
			if err := bounce(me, g, buf); err != nil {
				return rte.Result{}, err
			}
		}
	}
	if err := g.Barrier(); err != nil {
		return rte.Result{}, err
	}

	m := newMeter(p.MessageSize)
	if me <= 1 {
		for i := uint64(0); i < p.MaxIters; i++ {
			if err := ctx.Err(); err != nil {
				return rte.Result{}, err
			}
			if me == 1 {
				start := time.Now()
				if err := bounce(me, g, buf); err != nil {
					return rte.Result{}, err
				}
				m.record(time.Since(start).Seconds() / 2)
			} else {
				if err := bounce(me, g, buf); err != nil {
					return rte.Result{}, err
				}
				m.tick()
			}
			if m.due(p.ReportInterval) {
				g.Report(m.snapshot(false))
			}
		}
	}

	final := m.snapshot(true)
	g.Report(final)
	if err := g.Barrier(); err != nil {
		return final, err
	}
	return final, nil
}

// bounce performs one round trip: rank 1 sends then receives, rank 0
// receives then echoes.
func bounce(me uint, g rte.Group, buf []byte) error {
	if me == 1 {
		if err := g.Send(0, buf); err != nil {
			return err
		}
		return g.Recv(0, buf)
	}
	if err := g.Recv(1, buf); err != nil {
		return err
	}
	return g.Send(1, buf)
}

// uniStream pushes a fixed-size message from rank 1 to rank 0 as fast as
// the channel allows, measuring bandwidth and message rate only.
type uniStream struct{}

func (uniStream) Run(ctx context.Context, p Params, g rte.Group) (rte.Result, error) {
	me := g.Index()
	buf := make([]byte, p.MessageSize)

	if err := g.Barrier(); err != nil {
		return rte.Result{}, err
	}
	if me <= 1 {
		for i := uint64(0); i < p.WarmupIters; i++ {
			if err := push(me, g, buf); err != nil {
				return rte.Result{}, err
			}
		}
	}
	if err := g.Barrier(); err != nil {
		return rte.Result{}, err
	}

	m := newMeter(p.MessageSize)
	if me <= 1 {
		for i := uint64(0); i < p.MaxIters; i++ {
			if err := ctx.Err(); err != nil {
				return rte.Result{}, err
			}
			if err := push(me, g, buf); err != nil {
				return rte.Result{}, err
			}
			m.tick()
			if m.due(p.ReportInterval) {
				g.Report(m.snapshot(false))
			}
		}
	}

	final := m.snapshot(true)
	g.Report(final)
	if err := g.Barrier(); err != nil {
		return final, err
	}
	return final, nil
}

func push(me uint, g rte.Group, buf []byte) error {
	if me == 1 {
		return g.Send(0, buf)
	}
	return g.Recv(1, buf)
}
