package rte

import "time"

// Moments holds the three views a benchmark keeps of a measured quantity:
// the best value observed, the average over the current report window, and
// the average over the entire run.
type Moments struct {
	Typical       float64 `json:"typical"`
	MomentAverage float64 `json:"momentAverage"`
	TotalAverage  float64 `json:"totalAverage"`
}

// Result is a progress or final snapshot of a benchmark run. Latency is in
// seconds, Bandwidth in bytes per second, MsgRate in messages per second.
type Result struct {
	Iters     uint64        `json:"iters"`
	Elapsed   time.Duration `json:"elapsed"`
	Latency   Moments       `json:"latency"`
	Bandwidth Moments       `json:"bandwidth"`
	MsgRate   Moments       `json:"msgRate"`
	// Final marks the snapshot delivered after the last iteration.
	Final bool `json:"final"`
}

// Sink receives result snapshots from a Group's Report operation.
type Sink interface {
	Report(result Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(result Result)

func (f SinkFunc) Report(result Result) { f(result) }
