// Package mesh provides a collective runtime over libp2p: N ranks identified
// by a shared, rank-ordered multiaddr membership list, exchanging framed
// byte streams over a versioned stream protocol. It satisfies the
// collective.Runtime contract, so the adapter and the benchmark engine run
// unmodified over it.
package mesh

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/arya-analytics/gauge/pkg/rte/collective"
	"github.com/cockroachdb/errors"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const protocolID = "/gauge/rte/1.0.0"

const (
	barrierArrive  byte = 0xa5
	barrierRelease byte = 0x5a
)

// Config is the configuration for joining a mesh group.
type Config struct {
	// Rank is this process's index into the membership list.
	Rank uint
	// Size is the total number of ranks in the group.
	Size uint
	// Peers lists the full multiaddrs (including /p2p/ components) of every
	// member, in rank order. May be supplied later through Connect when the
	// operator gathers addresses after all nodes are up.
	Peers []string
	// ListenAddrs are the multiaddrs this node listens on. Defaults to an
	// ephemeral TCP port on all interfaces.
	ListenAddrs []string
	// DialTimeout bounds how long Send waits for a peer to become dialable.
	DialTimeout time.Duration
	// Logger is the logger used by the runtime.
	Logger *zap.Logger
}

// Runtime is a libp2p-backed collective runtime. Rank-to-self traffic is
// served from a local queue; everything else travels over per-peer streams.
type Runtime struct {
	cfg    Config
	host   host.Host
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	inbound [][]byte
	closed  bool

	sendMu  sync.Mutex
	infos   []*peer.AddrInfo
	streams map[uint]network.Stream
}

var _ collective.Runtime = (*Runtime)(nil)

// Listen starts the node's libp2p host and registers the stream handler.
// The returned runtime cannot send until Connect supplies the membership
// list; its own multiaddr is available through Addr for the operator to
// distribute.
func Listen(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.Size < 1 {
		return nil, errors.Mark(
			errors.New("[mesh] - group size must be at least 1"),
			rte.InvalidParameter,
		)
	}
	if cfg.Rank >= cfg.Size {
		return nil, errors.Mark(
			errors.Newf("[mesh] - rank %d outside group of %d", cfg.Rank, cfg.Size),
			rte.InvalidParameter,
		)
	}
	if len(cfg.ListenAddrs) == 0 {
		cfg.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	if err != nil {
		return nil, errors.Mark(
			errors.Wrap(err, "[mesh] - failed to start host"),
			rte.IOError,
		)
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &Runtime{
		cfg:     cfg,
		host:    h,
		ctx:     rctx,
		cancel:  cancel,
		logger:  cfg.Logger,
		inbound: make([][]byte, cfg.Size),
		infos:   make([]*peer.AddrInfo, cfg.Size),
		streams: make(map[uint]network.Stream),
	}
	r.cond = sync.NewCond(&r.mu)
	h.SetStreamHandler(protocolID, r.handleStream)
	r.logger.Info("mesh node listening",
		zap.Uint("rank", cfg.Rank),
		zap.String("addr", r.Addr()),
	)

	if len(cfg.Peers) > 0 {
		if err := r.Connect(cfg.Peers); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Join starts the host and wires the full membership list in one call.
func Join(ctx context.Context, cfg Config) (*Runtime, error) {
	if len(cfg.Peers) == 0 {
		return nil, errors.Mark(
			errors.New("[mesh] - membership list required"),
			rte.InvalidParameter,
		)
	}
	if cfg.Size == 0 {
		cfg.Size = uint(len(cfg.Peers))
	}
	return Listen(ctx, cfg)
}

// Addr returns this node's dialable multiaddr, including the /p2p/ peer
// component, for distribution to the rest of the group.
func (r *Runtime) Addr() string {
	addrs := r.host.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/p2p/%s", addrs[0], r.host.ID())
}

// Connect resolves the rank-ordered membership list. Streams are opened
// lazily on first send, so members may connect in any order.
func (r *Runtime) Connect(peers []string) error {
	if uint(len(peers)) != r.cfg.Size {
		return errors.Mark(
			errors.Newf("[mesh] - expected %d peers, got %d", r.cfg.Size, len(peers)),
			rte.InvalidParameter,
		)
	}
	infos := make([]*peer.AddrInfo, len(peers))
	for i, addr := range peers {
		if uint(i) == r.cfg.Rank {
			continue
		}
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			return errors.Mark(
				errors.Wrapf(err, "[mesh] - bad multiaddr for rank %d", i),
				rte.AddressResolutionFailed,
			)
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return errors.Mark(
				errors.Wrapf(err, "[mesh] - multiaddr for rank %d has no peer id", i),
				rte.AddressResolutionFailed,
			)
		}
		infos[i] = info
	}
	r.sendMu.Lock()
	r.infos = infos
	r.sendMu.Unlock()
	return nil
}

func (r *Runtime) Size() uint { return r.cfg.Size }
func (r *Runtime) Rank() uint { return r.cfg.Rank }

// Send transfers data to dest. Self-addressed traffic goes to the local
// queue, everything else through the destination's stream, framed with a
// 4-byte big-endian length prefix.
func (r *Runtime) Send(dest uint, data []byte) error {
	if dest >= r.cfg.Size {
		return errors.Mark(
			errors.Newf("[mesh] - rank %d outside group of %d", dest, r.cfg.Size),
			rte.InvalidParameter,
		)
	}
	if dest == r.cfg.Rank {
		r.mu.Lock()
		r.inbound[dest] = append(r.inbound[dest], data...)
		r.mu.Unlock()
		r.cond.Broadcast()
		return nil
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	s, err := r.stream(dest)
	if err != nil {
		return err
	}
	if err := writeFrame(s, data); err != nil {
		delete(r.streams, dest)
		_ = s.Reset()
		return errors.Mark(
			errors.Wrapf(err, "[mesh] - send to rank %d failed", dest),
			rte.TransferFailed,
		)
	}
	return nil
}

// Recv blocks until len(buf) bytes from src have arrived, then pops them in
// FIFO order.
func (r *Runtime) Recv(src uint, buf []byte) error {
	if src >= r.cfg.Size {
		return errors.Mark(
			errors.Newf("[mesh] - rank %d outside group of %d", src, r.cfg.Size),
			rte.InvalidParameter,
		)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.inbound[src]) < len(buf) {
		if r.closed {
			return errors.Mark(
				errors.New("[mesh] - runtime closed"),
				rte.TransferFailed,
			)
		}
		r.cond.Wait()
	}
	q := r.inbound[src]
	copy(buf, q[:len(buf)])
	r.inbound[src] = q[:copy(q, q[len(buf):])]
	return nil
}

// Barrier gathers a token from every rank at rank 0, which then releases
// the group. Rendezvous traffic rides the same framed streams as data.
func (r *Runtime) Barrier() error {
	if r.cfg.Size == 1 {
		return nil
	}
	tok := make([]byte, 1)
	if r.cfg.Rank == 0 {
		for rank := uint(1); rank < r.cfg.Size; rank++ {
			if err := r.Recv(rank, tok); err != nil {
				return err
			}
			if tok[0] != barrierArrive {
				return errors.Mark(
					errors.Newf("[mesh] - unexpected barrier token %#x from rank %d", tok[0], rank),
					rte.TransferFailed,
				)
			}
		}
		for rank := uint(1); rank < r.cfg.Size; rank++ {
			if err := r.Send(rank, []byte{barrierRelease}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := r.Send(0, []byte{barrierArrive}); err != nil {
		return err
	}
	if err := r.Recv(0, tok); err != nil {
		return err
	}
	if tok[0] != barrierRelease {
		return errors.Mark(
			errors.Newf("[mesh] - unexpected barrier token %#x from rank 0", tok[0]),
			rte.TransferFailed,
		)
	}
	return nil
}

// Close shuts the host down and unblocks any waiting receive.
func (r *Runtime) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
	r.cancel()
	return r.host.Close()
}

// stream returns the open outbound stream for dest, dialing and sending the
// rank hello on first use. Callers hold sendMu.
func (r *Runtime) stream(dest uint) (network.Stream, error) {
	if s, ok := r.streams[dest]; ok {
		return s, nil
	}
	info := r.infos[dest]
	if info == nil {
		return nil, errors.Mark(
			errors.Newf("[mesh] - no address for rank %d", dest),
			rte.InvalidParameter,
		)
	}

	deadline := time.Now().Add(r.cfg.DialTimeout)
	var s network.Stream
	for {
		ctx, cancel := context.WithDeadline(r.ctx, deadline)
		err := r.host.Connect(ctx, *info)
		if err == nil {
			s, err = r.host.NewStream(ctx, info.ID, protocolID)
		}
		cancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) || r.ctx.Err() != nil {
			return nil, errors.Mark(
				errors.Wrapf(err, "[mesh] - rank %d unreachable", dest),
				rte.Unreachable,
			)
		}
		time.Sleep(200 * time.Millisecond)
	}

	var hello [4]byte
	binary.BigEndian.PutUint32(hello[:], uint32(r.cfg.Rank))
	if _, err := s.Write(hello[:]); err != nil {
		_ = s.Reset()
		return nil, errors.Mark(
			errors.Wrapf(err, "[mesh] - hello to rank %d failed", dest),
			rte.TransferFailed,
		)
	}
	r.streams[dest] = s
	return s, nil
}

// handleStream reads the sender's rank hello, then appends every frame's
// payload to that rank's inbound queue until the stream closes.
func (r *Runtime) handleStream(s network.Stream) {
	defer func() { _ = s.Close() }()
	var hello [4]byte
	if err := readFull(s, hello[:]); err != nil {
		r.logger.Warn("mesh stream hello failed", zap.Error(err))
		_ = s.Reset()
		return
	}
	src := binary.BigEndian.Uint32(hello[:])
	if uint(src) >= r.cfg.Size || uint(src) == r.cfg.Rank {
		r.logger.Warn("mesh stream from unexpected rank", zap.Uint32("rank", src))
		_ = s.Reset()
		return
	}
	for {
		payload, err := readFrame(s)
		if err != nil {
			return
		}
		r.mu.Lock()
		closed := r.closed
		if !closed {
			r.inbound[src] = append(r.inbound[src], payload...)
		}
		r.mu.Unlock()
		r.cond.Broadcast()
		if closed {
			return
		}
	}
}

func writeFrame(s network.Stream, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := s.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := s.Write(payload)
	return err
}

func readFrame(s network.Stream) ([]byte, error) {
	var lenBuf [4]byte
	if err := readFull(s, lenBuf[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if err := readFull(s, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(s network.Stream, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}
