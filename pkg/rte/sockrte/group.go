package sockrte

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/arya-analytics/gauge/pkg/perf"
	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Role is assigned once at handshake time and is immutable thereafter. The
// peer that accepts the connection is the Server; the peer that initiates
// is the Client.
type Role uint8

const (
	Server Role = iota
	Client
)

func (r Role) String() string {
	if r == Server {
		return "server"
	}
	return "client"
}

// barrierMagic is the sentinel each peer sends and then expects back when
// rendezvousing at a barrier.
const barrierMagic uint32 = 0xdeadbeef

// Group is the exchange group state for the socket binding. It owns the
// connection for its lifetime and implements rte.Group for a two-party
// group. Not safe for concurrent use.
type Group struct {
	role            Role
	conn            net.Conn
	self            []byte
	params          perf.Params
	devName         string
	tlName          string
	sink            rte.Sink
	barrierDeadline time.Duration
	logger          *zap.Logger
}

var _ rte.Group = (*Group)(nil)

// Size of a socket-bound group is always two.
func (g *Group) Size() uint { return 2 }

// Index is derived from the role: the server is rank 0, the client rank 1.
func (g *Group) Index() uint {
	if g.role == Server {
		return 0
	}
	return 1
}

// Role returns the peer role assigned at handshake time.
func (g *Group) Role() Role { return g.role }

// Params returns the benchmark parameters agreed on during the handshake.
func (g *Group) Params() perf.Params { return g.params }

// DevName returns the device name exchanged during the handshake.
func (g *Group) DevName() string { return g.devName }

// TLName returns the transport name exchanged during the handshake.
func (g *Group) TLName() string { return g.tlName }

// Barrier exchanges the sentinel with the peer: send it, receive it back,
// assert equality. With two parties both executing the same sequence this
// degenerates to a ping-pong. Blocks forever unless Config.BarrierDeadline
// was set, which deviates from the original unbounded semantics.
func (g *Group) Barrier() error {
	if g.barrierDeadline > 0 {
		if err := g.conn.SetDeadline(time.Now().Add(g.barrierDeadline)); err != nil {
			return errors.Mark(
				errors.Wrap(err, "[sockrte] - barrier deadline"),
				rte.TransferFailed,
			)
		}
		defer func() { _ = g.conn.SetDeadline(time.Time{}) }()
	}
	var sync [4]byte
	binary.BigEndian.PutUint32(sync[:], barrierMagic)
	if err := SendAll(g.conn, sync[:]); err != nil {
		return err
	}
	sync = [4]byte{}
	if err := RecvAll(g.conn, sync[:]); err != nil {
		return err
	}
	if got := binary.BigEndian.Uint32(sync[:]); got != barrierMagic {
		return errors.Mark(
			errors.Newf("[sockrte] - barrier sentinel mismatch: %#x", got),
			rte.TransferFailed,
		)
	}
	return nil
}

// Send transfers data to the peer at dest. A rank sending to itself appends
// to the loopback queue and never touches the connection.
func (g *Group) Send(dest uint, data []byte) error {
	me := g.Index()
	switch dest {
	case me:
		g.self = append(g.self, data...)
		return nil
	case 1 - me:
		return SendAll(g.conn, data)
	default:
		return errors.Mark(
			errors.Newf("[sockrte] - rank %d outside two-party group", dest),
			rte.InvalidParameter,
		)
	}
}

// Recv fills buf with bytes from the peer at src. A rank receiving from
// itself pops from the front of the loopback queue; receiving more bytes
// than are queued is a contract violation and panics.
func (g *Group) Recv(src uint, buf []byte) error {
	me := g.Index()
	switch src {
	case me:
		if len(g.self) < len(buf) {
			panic("[sockrte] - loopback buffer underflow")
		}
		copy(buf, g.self[:len(buf)])
		g.self = g.self[:copy(g.self, g.self[len(buf):])]
		return nil
	case 1 - me:
		return RecvAll(g.conn, buf)
	default:
		return errors.Mark(
			errors.Newf("[sockrte] - rank %d outside two-party group", src),
			rte.InvalidParameter,
		)
	}
}

// Report delivers the snapshot to the registered sink.
func (g *Group) Report(result rte.Result) {
	if g.sink != nil {
		g.sink.Report(result)
	}
}

// Close tears the group down: the connection is closed exactly once and the
// loopback queue is released. The group must not be used afterwards.
func (g *Group) Close() error {
	g.self = nil
	if g.conn == nil {
		return nil
	}
	conn := g.conn
	g.conn = nil
	g.logger.Debug("closing exchange group", zap.Stringer("role", g.role))
	return conn.Close()
}
