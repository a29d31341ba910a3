package sockrte

import (
	"net"
	"strconv"
	"time"

	"github.com/arya-analytics/gauge/pkg/perf"
	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Config is the configuration for establishing a socket-bound exchange
// group.
type Config struct {
	// ServerAddr is the hostname of the peer acting as server. Empty means
	// this process acts as the server itself.
	ServerAddr string
	// Port is the TCP port used for the rendezvous.
	Port int
	// Params are the benchmark parameters. On the client path they are sent
	// to the server during the handshake; on the server path they are
	// replaced by the client's copy.
	Params perf.Params
	// DevName is the device under test. Mandatory on the client path.
	DevName string
	// TLName is the transport under test. Mandatory on the client path.
	TLName string
	// Sink receives result snapshots delivered through Report.
	Sink rte.Sink
	// BarrierDeadline bounds each barrier exchange. Zero keeps the original
	// semantics: block until the peer arrives, forever if it never does.
	BarrierDeadline time.Duration
	// Logger is the logger used by the binding.
	Logger *zap.Logger
}

func (cfg Config) logger() *zap.Logger {
	if cfg.Logger == nil {
		return zap.NewNop()
	}
	return cfg.Logger
}

// Setup establishes the exchange group: it listens and accepts when no
// server address is configured, and connects out otherwise.
func Setup(cfg Config) (*Group, error) {
	if cfg.ServerAddr == "" {
		l, err := Listen(cfg)
		if err != nil {
			return nil, err
		}
		cfg.logger().Info("waiting for connection", zap.Int("port", cfg.Port))
		return l.Accept()
	}
	return Connect(cfg)
}

// Listener is a bound, listening rendezvous socket waiting for its single
// inbound peer.
type Listener struct {
	cfg Config
	lis net.Listener
}

// Listen binds the configured port on any local address. The listener
// accepts exactly one connection per process invocation.
func Listen(cfg Config) (*Listener, error) {
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, errors.Mark(
			errors.Wrap(err, "[sockrte] - listen failed"),
			rte.IOError,
		)
	}
	return &Listener{cfg: cfg, lis: lis}, nil
}

// Addr returns the bound address, which carries the chosen port when the
// configuration asked for port 0.
func (l *Listener) Addr() net.Addr { return l.lis.Addr() }

// Close releases the listening socket without accepting.
func (l *Listener) Close() error { return l.lis.Close() }

// Accept blocks for one inbound connection, closes the listening socket,
// and completes the server side of the handshake: the parameters payload,
// the device name, and the transport name are received in that fixed order.
// The accepting peer is the Server, rank 0.
func (l *Listener) Accept() (*Group, error) {
	conn, err := l.lis.Accept()
	// Only one benchmark session per process invocation.
	_ = l.lis.Close()
	if err != nil {
		return nil, errors.Mark(
			errors.Wrap(err, "[sockrte] - accept failed"),
			rte.IOError,
		)
	}

	payload := make([]byte, perf.ParamsWireSize)
	if err := RecvAll(conn, payload); err != nil {
		return nil, closeOnErr(conn, err)
	}
	params, err := perf.DecodeParams(payload)
	if err != nil {
		return nil, closeOnErr(conn, err)
	}
	devName, err := recvName(conn)
	if err != nil {
		return nil, closeOnErr(conn, err)
	}
	tlName, err := recvName(conn)
	if err != nil {
		return nil, closeOnErr(conn, err)
	}

	logger := l.cfg.logger()
	logger.Info("peer connected",
		zap.String("dev", devName),
		zap.String("tl", tlName),
		zap.Stringer("remote", conn.RemoteAddr()),
	)
	return &Group{
		role:            Server,
		conn:            conn,
		params:          params,
		devName:         devName,
		tlName:          tlName,
		sink:            l.cfg.Sink,
		barrierDeadline: l.cfg.BarrierDeadline,
		logger:          logger,
	}, nil
}

// Connect completes the client side of the handshake: resolve the server,
// connect, then send the parameters payload, the device name, and the
// transport name in that fixed order. The protocol is positional, so the
// order must match the server's receive order exactly. The connecting peer
// is the Client, rank 1.
func Connect(cfg Config) (*Group, error) {
	// A peer connecting out must already know what it wants to test; fail
	// before any network I/O otherwise.
	if cfg.DevName == "" {
		return nil, errors.Mark(
			errors.New("[sockrte] - must specify device name"),
			rte.InvalidParameter,
		)
	}
	if cfg.TLName == "" {
		return nil, errors.Mark(
			errors.New("[sockrte] - must specify transport"),
			rte.InvalidParameter,
		)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	devName, err := perf.EncodeName(cfg.DevName)
	if err != nil {
		return nil, err
	}
	tlName, err := perf.EncodeName(cfg.TLName)
	if err != nil {
		return nil, err
	}

	addr, err := net.ResolveTCPAddr(
		"tcp",
		net.JoinHostPort(cfg.ServerAddr, strconv.Itoa(cfg.Port)),
	)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "[sockrte] - host %s not found", cfg.ServerAddr),
			rte.AddressResolutionFailed,
		)
	}
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "[sockrte] - connect to %s failed", addr),
			rte.Unreachable,
		)
	}

	if err := SendAll(conn, perf.EncodeParams(cfg.Params)); err != nil {
		return nil, closeOnErr(conn, err)
	}
	if err := SendAll(conn, devName); err != nil {
		return nil, closeOnErr(conn, err)
	}
	if err := SendAll(conn, tlName); err != nil {
		return nil, closeOnErr(conn, err)
	}

	logger := cfg.logger()
	logger.Info("connected to server", zap.Stringer("remote", conn.RemoteAddr()))
	return &Group{
		role:            Client,
		conn:            conn,
		params:          cfg.Params,
		devName:         cfg.DevName,
		tlName:          cfg.TLName,
		sink:            cfg.Sink,
		barrierDeadline: cfg.BarrierDeadline,
		logger:          logger,
	}, nil
}

func recvName(conn net.Conn) (string, error) {
	buf := make([]byte, perf.NameWireSize)
	if err := RecvAll(conn, buf); err != nil {
		return "", err
	}
	return perf.DecodeName(buf), nil
}

func closeOnErr(conn net.Conn, err error) error {
	_ = conn.Close()
	return err
}
