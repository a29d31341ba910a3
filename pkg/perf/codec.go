package perf

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
)

// The payload is a positional, fixed-size record: a version word followed by
// explicitly-widthed big-endian fields. Both ends must agree on the layout,
// which is why the version leads the record.
const (
	payloadVersion uint16 = 1

	// ParamsWireSize is the encoded size of Params in bytes.
	ParamsWireSize = 56
	// NameWireSize is the fixed size of the null-padded device and transport
	// name fields.
	NameWireSize = 64
)

// EncodeParams serializes p into its fixed wire layout.
func EncodeParams(p Params) []byte {
	b := make([]byte, ParamsWireSize)
	binary.BigEndian.PutUint16(b[0:2], payloadVersion)
	// b[2:4] reserved.
	b[4] = byte(p.Command)
	b[5] = byte(p.TestType)
	b[6] = byte(p.DataLayout)
	b[7] = byte(p.WaitMode)
	binary.BigEndian.PutUint64(b[8:16], p.WarmupIters)
	binary.BigEndian.PutUint64(b[16:24], p.MaxIters)
	binary.BigEndian.PutUint64(b[24:32], p.MessageSize)
	binary.BigEndian.PutUint64(b[32:40], p.Alignment)
	binary.BigEndian.PutUint64(b[40:48], math.Float64bits(p.MaxTime))
	binary.BigEndian.PutUint64(b[48:56], math.Float64bits(p.ReportInterval))
	return b
}

// DecodeParams parses a fixed wire layout produced by EncodeParams.
func DecodeParams(b []byte) (Params, error) {
	var p Params
	if len(b) != ParamsWireSize {
		return p, errors.Mark(
			errors.Newf("[perf] - payload must be %d bytes, got %d", ParamsWireSize, len(b)),
			rte.InvalidParameter,
		)
	}
	if v := binary.BigEndian.Uint16(b[0:2]); v != payloadVersion {
		return p, errors.Mark(
			errors.Newf("[perf] - unsupported payload version %d", v),
			rte.InvalidParameter,
		)
	}
	p.Command = Command(b[4])
	p.TestType = TestType(b[5])
	p.DataLayout = DataLayout(b[6])
	p.WaitMode = WaitMode(b[7])
	p.WarmupIters = binary.BigEndian.Uint64(b[8:16])
	p.MaxIters = binary.BigEndian.Uint64(b[16:24])
	p.MessageSize = binary.BigEndian.Uint64(b[24:32])
	p.Alignment = binary.BigEndian.Uint64(b[32:40])
	p.MaxTime = math.Float64frombits(binary.BigEndian.Uint64(b[40:48]))
	p.ReportInterval = math.Float64frombits(binary.BigEndian.Uint64(b[48:56]))
	return p, nil
}

// EncodeName serializes a device or transport name into its fixed-size,
// null-padded wire field. The trailing null is always preserved, so names
// may be at most NameWireSize-1 bytes.
func EncodeName(name string) ([]byte, error) {
	if len(name) >= NameWireSize {
		return nil, errors.Mark(
			errors.Newf("[perf] - name %q exceeds %d bytes", name, NameWireSize-1),
			rte.InvalidParameter,
		)
	}
	b := make([]byte, NameWireSize)
	copy(b, name)
	return b, nil
}

// DecodeName parses a fixed-size, null-padded name field.
func DecodeName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
