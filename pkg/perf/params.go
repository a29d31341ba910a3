// Package perf holds the benchmark parameters exchanged between peers, the
// wire codec for them, and the engine boundary that runs a test over an
// established exchange group.
package perf

import (
	"os"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
)

// Command selects the operation the benchmark issues on every iteration.
// Wire values are fixed; do not reorder.
type Command uint8

const (
	CmdUnset Command = iota
	CmdPutShort
	CmdAMShort
)

func (c Command) String() string {
	switch c {
	case CmdPutShort:
		return "put_short"
	case CmdAMShort:
		return "am_short"
	default:
		return "(undefined)"
	}
}

// TestType selects the traffic pattern of the benchmark.
type TestType uint8

const (
	TypeUnset TestType = iota
	TypePingPong
	TypeStreamUni
)

func (t TestType) String() string {
	switch t {
	case TypePingPong:
		return "ping-pong"
	case TypeStreamUni:
		return "unidirectional stream"
	default:
		return "(undefined)"
	}
}

// DataLayout selects how message payloads are arranged in memory.
type DataLayout uint8

const (
	LayoutUnset DataLayout = iota
	LayoutBuffer
	LayoutScatter
)

// WaitMode selects how a peer waits for completions.
type WaitMode uint8

const (
	WaitUnset WaitMode = iota
	WaitPoll
	WaitSleep
)

// Params are the benchmark parameters agreed on by all peers before the run
// starts. The client side produces them and the server side consumes them;
// after the handshake both sides hold byte-identical copies.
type Params struct {
	Command    Command
	TestType   TestType
	DataLayout DataLayout
	WaitMode   WaitMode
	// WarmupIters iterations run before measurement starts.
	WarmupIters uint64
	// MaxIters bounds the measured portion of the run.
	MaxIters uint64
	// MessageSize is the payload size in bytes for every operation.
	MessageSize uint64
	// Alignment of payload buffers, in bytes.
	Alignment uint64
	// MaxTime caps the run in seconds. Zero means unlimited.
	MaxTime float64
	// ReportInterval is the seconds between progress reports.
	ReportInterval float64
}

// Default returns the parameter set used when flags are absent.
func Default() Params {
	return Params{
		DataLayout:     LayoutBuffer,
		WarmupIters:    10000,
		MaxIters:       1000000,
		MessageSize:    8,
		Alignment:      uint64(os.Getpagesize()),
		ReportInterval: 1.0,
	}
}

// Validate checks that the parameters describe a runnable test.
func (p Params) Validate() error {
	if p.Command == CmdUnset || p.TestType == TypeUnset {
		return errors.Mark(
			errors.New("[perf] - must specify test type"),
			rte.InvalidParameter,
		)
	}
	if p.MessageSize == 0 {
		return errors.Mark(
			errors.New("[perf] - message size must be positive"),
			rte.InvalidParameter,
		)
	}
	return nil
}

// ParseTest maps a test name from the CLI to its command and traffic
// pattern.
func ParseTest(name string) (Command, TestType, error) {
	switch name {
	case "put_lat":
		return CmdPutShort, TypePingPong, nil
	case "put_bw":
		return CmdPutShort, TypeStreamUni, nil
	case "am_lat":
		return CmdAMShort, TypePingPong, nil
	default:
		return CmdUnset, TypeUnset, errors.Mark(
			errors.Newf("[perf] - unknown test %q", name),
			rte.InvalidParameter,
		)
	}
}
