package childproc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/krisarmstrong/discoveryd/internal/config"
	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/ipc"
	"github.com/krisarmstrong/discoveryd/internal/logd"
	"github.com/krisarmstrong/discoveryd/internal/metrics"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/netproto"
	"github.com/krisarmstrong/discoveryd/internal/peertable"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// pairKey identifies one (protocol, local interface) transmission unit.
type pairKey struct {
	proto   netproto.Proto
	ifindex int
}

// Child is the unprivileged half of the runtime: it owns the
// transmission scheduler, the receive/auto-enable state machine, and
// the peer table, and speaks every command to the parent over conn.
type Child struct {
	conn    io.ReadWriteCloser
	writeMu sync.Mutex

	table  *netproto.Table
	cfg    *config.Config
	sys    *sysinfo.SysInfo
	log    *logd.Logger
	peers  *peertable.Table
	ifaces *netif.Table

	mu       sync.Mutex
	enabled  map[netproto.Proto]bool
	everSent map[pairKey]bool
	openedTx map[int]bool
}

// New builds a Child from an interface table and config the child
// process built itself (its own enumeration and flag parsing); the
// parent hands neither over.
func New(conn io.ReadWriteCloser, table *netproto.Table, cfg *config.Config, sys *sysinfo.SysInfo, log *logd.Logger, ifaces *netif.Table) *Child {
	enabled := make(map[netproto.Proto]bool, len(cfg.Protocols))
	for p, on := range cfg.Protocols {
		enabled[p] = on
		v := 0.0
		if on {
			v = 1
		}
		metrics.Get().AutoEnabled.WithLabelValues(p.String()).Set(v)
	}
	return &Child{
		conn:     conn,
		table:    table,
		cfg:      cfg,
		sys:      sys,
		log:      log,
		peers:    peertable.New(),
		ifaces:   ifaces,
		enabled:  enabled,
		everSent: make(map[pairKey]bool),
		openedTx: make(map[int]bool),
	}
}

// Peers exposes the live peer table, e.g. for a future status command.
func (c *Child) Peers() *peertable.Table { return c.peers }

// Run drives the scheduler and receiver until ctx is canceled (clean
// shutdown: goodbyes are sent) or a fatal error occurs. In run-once
// mode it performs exactly one transmission pass per enabled
// (proto, netif) pair and returns immediately without starting tickers.
func (c *Child) Run(ctx context.Context) error {
	if !c.cfg.Silent {
		for _, nif := range c.ifaces.All() {
			if err := c.ensureOpenTx(nif.Index); err != nil {
				c.log.Warn("open tx on %s: %v", nif.Name, err)
			}
		}
	}

	if c.cfg.RunOnce {
		c.transmitPass()
		c.closeSend()
		return nil
	}

	var wg sync.WaitGroup
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A scheduler goroutine is started per (proto, netif) pair only for
	// protocols enabled at startup. A protocol that transitions via
	// auto-enable after Run has begun starts decoding immediately but
	// does not gain a transmit schedule until the next restart; nothing
	// in the specification's scheduler section requires a live-started
	// pair to begin transmitting mid-run.
	if !c.cfg.Silent {
		for _, nif := range c.ifaces.All() {
			for _, m := range c.table.All() {
				if !c.protocolEnabled(m.Proto()) {
					continue
				}
				wg.Add(1)
				go c.schedulePair(childCtx, &wg, m, nif)
			}
		}
	}

	recvErr := make(chan error, 1)
	if c.cfg.Receive {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recvErr <- c.receiveLoop(childCtx)
		}()
	}

	var loopErr error
	select {
	case <-ctx.Done():
		loopErr = errs.Wrap(errs.Shutdown, "child context canceled", ctx.Err())
	case err := <-recvErr:
		loopErr = err
	}

	cancel()
	wg.Wait()

	if !c.cfg.Silent {
		c.sendGoodbyes()
	}
	c.closeSend()
	return loopErr
}

func (c *Child) protocolEnabled(p netproto.Proto) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[p]
}

// schedulePair runs one (proto, netif) pair's cadence loop: emit
// immediately, then on a jittered interval until ctx is canceled.
func (c *Child) schedulePair(ctx context.Context, wg *sync.WaitGroup, m netproto.Module, nif *netif.NetIf) {
	defer wg.Done()
	c.transmit(m, nif, netproto.EncodeOptions{PerIfaceChassis: c.cfg.PerIfaceChassis})
	for {
		d := jitter(defaultCadence, defaultJitterFraction)
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			if !c.protocolEnabled(m.Proto()) {
				continue
			}
			c.transmit(m, nif, netproto.EncodeOptions{PerIfaceChassis: c.cfg.PerIfaceChassis})
		}
	}
}

func (c *Child) transmitPass() {
	if c.cfg.Silent {
		return
	}
	for _, nif := range c.ifaces.All() {
		for _, m := range c.table.All() {
			if !c.protocolEnabled(m.Proto()) {
				continue
			}
			c.transmit(m, nif, netproto.EncodeOptions{PerIfaceChassis: c.cfg.PerIfaceChassis})
		}
	}
}

func (c *Child) transmit(m netproto.Module, nif *netif.NetIf, opts netproto.EncodeOptions) {
	buf := make([]byte, netproto.EtherMaxLen)
	n, err := m.Encode(nif, c.sys, opts, buf)
	if err != nil {
		// FrameOverflow (or any other encode failure) aborts only this
		// transmission; the scheduler advances to the next tick.
		c.log.Protocol(m.Proto().String(), logd.WARN, "encode on %s: %v", nif.Name, err)
		metrics.Get().EncodeErrors.WithLabelValues(m.Proto().String(), nif.Name).Inc()
		return
	}
	if err := c.sendFrame(nif.Index, buf[:n]); err != nil {
		c.log.Protocol(m.Proto().String(), logd.WARN, "send on %s: %v", nif.Name, err)
		return
	}
	metrics.Get().FramesSent.WithLabelValues(m.Proto().String(), nif.Name).Inc()
	c.mu.Lock()
	c.everSent[pairKey{m.Proto(), nif.Index}] = true
	c.mu.Unlock()
}

// sendGoodbyes emits a TTL=0 frame for every (proto, netif) pair that
// has sent at least once, exactly once each, per the specification's
// clean-shutdown guarantee.
func (c *Child) sendGoodbyes() {
	c.mu.Lock()
	pairs := make([]pairKey, 0, len(c.everSent))
	for k, sent := range c.everSent {
		if sent {
			pairs = append(pairs, k)
		}
	}
	c.mu.Unlock()

	for _, k := range pairs {
		m := c.table.Get(k.proto)
		nif := c.ifaces.Get(k.ifindex)
		if m == nil || nif == nil {
			continue
		}
		buf := make([]byte, netproto.EtherMaxLen)
		n, err := m.Encode(nif, c.sys, netproto.EncodeOptions{Goodbye: true, PerIfaceChassis: c.cfg.PerIfaceChassis}, buf)
		if err != nil {
			c.log.Protocol(k.proto.String(), logd.WARN, "encode goodbye on %s: %v", nif.Name, err)
			continue
		}
		if err := c.sendFrame(k.ifindex, buf[:n]); err != nil {
			c.log.Protocol(k.proto.String(), logd.WARN, "send goodbye on %s: %v", nif.Name, err)
		}
	}
}

func (c *Child) ensureOpenTx(ifindex int) error {
	c.mu.Lock()
	if c.openedTx[ifindex] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	body := ipc.OpenTxBody{IfIndex: uint32(ifindex)}
	if err := c.writeFrame(ipc.Frame{Tag: ipc.TagOpenTx, Body: body.Marshal()}); err != nil {
		return err
	}
	c.mu.Lock()
	c.openedTx[ifindex] = true
	c.mu.Unlock()
	return nil
}

func (c *Child) sendFrame(ifindex int, frame []byte) error {
	if err := c.ensureOpenTx(ifindex); err != nil {
		return err
	}
	body := ipc.SendBody{IfIndex: uint32(ifindex), Frame: frame}
	return c.writeFrame(ipc.Frame{Tag: ipc.TagSend, Body: body.Marshal()})
}

func (c *Child) writeFrame(f ipc.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ipc.WriteFrame(c.conn, f)
}

func (c *Child) closeSend() {
	c.writeFrame(ipc.Frame{Tag: ipc.TagShutdown})
	c.conn.Close()
}

// receiveLoop reads Recv messages from the parent and dispatches each
// to the peer table and auto-enable state machine until ctx is
// canceled or the parent connection closes.
func (c *Child) receiveLoop(ctx context.Context) error {
	type readResult struct {
		frame ipc.Frame
		err   error
	}
	frames := make(chan readResult, 1)
	go func() {
		for {
			f, err := ipc.ReadFrame(c.conn)
			frames <- readResult{f, err}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.peers.ExpireNow(time.Now())
		case r := <-frames:
			if r.err != nil {
				if r.err == io.EOF {
					return errs.New(errs.Shutdown, "parent closed message channel")
				}
				return errs.Wrap(errs.IoTransient, "read message frame", r.err)
			}
			c.handleFrame(r.frame)
		}
	}
}

func (c *Child) handleFrame(f ipc.Frame) {
	if f.Tag != ipc.TagRecv {
		c.log.Warn("unexpected tag from parent: %v", f.Tag)
		return
	}
	body, err := ipc.UnmarshalRecv(f.Body)
	if err != nil {
		c.log.Warn("malformed recv frame: %v", err)
		return
	}
	m, offset, ok := c.table.Dispatch(body.Frame)
	if !ok {
		return
	}
	fields, err := m.Decode(body.Frame, offset)
	if err != nil {
		// Malformed drops only this received frame.
		c.log.Protocol(m.Proto().String(), logd.DEBUG, "decode on ifindex %d: %v", body.IfIndex, err)
		metrics.Get().FramesDropped.WithLabelValues(m.Proto().String()).Inc()
		return
	}
	nifName := ""
	if nif := c.ifaces.Get(int(body.IfIndex)); nif != nil {
		nifName = nif.Name
	}
	metrics.Get().FramesReceived.WithLabelValues(m.Proto().String(), nifName).Inc()
	c.peers.Upsert(int(body.IfIndex), m.Proto(), fields)
	metrics.Get().PeerCount.WithLabelValues(m.Proto().String()).Set(float64(countByProto(c.peers.All(), m.Proto())))
	c.maybeAutoEnable(m.Proto())
}

// maybeAutoEnable implements the specification's irreversible
// auto-enable transition: a protocol with enabled=false becomes
// permanently enabled on its first successful decode.
func (c *Child) maybeAutoEnable(p netproto.Proto) {
	if !c.cfg.AutoEnable {
		return
	}
	c.mu.Lock()
	already := c.enabled[p]
	if !already {
		c.enabled[p] = true
	}
	c.mu.Unlock()
	if !already {
		c.log.Info("auto-enabled %s after first decoded frame", p)
		metrics.Get().AutoEnabled.WithLabelValues(p.String()).Set(1)
	}
}

func countByProto(entries []peertable.Entry, p netproto.Proto) int {
	n := 0
	for _, e := range entries {
		if e.Proto == p {
			n++
		}
	}
	return n
}
