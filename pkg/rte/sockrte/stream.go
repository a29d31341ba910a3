// Package sockrte implements the runtime exchange contract over a single
// TCP connection between exactly two peers: the handshake that establishes
// the group, reliable full-buffer transfers, a sentinel barrier, and the
// self-loopback queue.
package sockrte

import (
	"io"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
)

// SendAll writes all of data to w, masking partial writes. A zero-length
// buffer succeeds without touching w. Any underlying failure is fatal to
// the connection and surfaces as rte.TransferFailed.
func SendAll(w io.Writer, data []byte) error {
	total := 0
	for total < len(data) {
		n, err := w.Write(data[total:])
		if err != nil {
			return errors.Mark(
				errors.Wrap(err, "[sockrte] - send failed"),
				rte.TransferFailed,
			)
		}
		total += n
	}
	return nil
}

// RecvAll fills buf from r, masking partial reads. A zero-length buffer
// succeeds without touching r. Any underlying failure, including a closed
// stream, surfaces as rte.TransferFailed.
func RecvAll(r io.Reader, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return errors.Mark(
				errors.Wrap(err, "[sockrte] - recv failed"),
				rte.TransferFailed,
			)
		}
	}
	return nil
}
