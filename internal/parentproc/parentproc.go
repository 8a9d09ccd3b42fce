// Package parentproc implements the privileged parent half of the
// privilege-separated runtime: it is the only code in the process that
// touches raw sockets or interface descriptions, and speaks exactly the
// specification's IPC wire format to the unprivileged child over a pair
// of connected sockets. The command-dispatch-loop-plus-per-interface-
// receiver shape follows the teacher's pkg/protocols/packet.go send/
// receive split, generalized from one shared raw socket to one handle
// per bound interface as the specification's privsep model requires.
package parentproc

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/ipc"
	"github.com/krisarmstrong/discoveryd/internal/logd"
	"github.com/krisarmstrong/discoveryd/internal/platform"
)

// Parent owns every raw socket the daemon uses and forwards received
// frames to the child over conn as Recv messages. Exactly one Parent
// runs per daemon instance.
type Parent struct {
	adapter platform.Adapter
	conn    io.ReadWriteCloser
	log     *logd.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	handles map[int]platform.RawHandle
	names   map[int]string
}

// New builds a Parent. names should be pre-populated from an initial
// platform.Adapter.Enumerate() call so OpenTx commands (which carry only
// an ifindex, per the wire format) can be resolved to an interface name
// for BindTx and logging.
func New(adapter platform.Adapter, conn io.ReadWriteCloser, log *logd.Logger, names map[int]string) *Parent {
	if names == nil {
		names = make(map[int]string)
	}
	return &Parent{
		adapter: adapter,
		conn:    conn,
		log:     log,
		handles: make(map[int]platform.RawHandle),
		names:   names,
	}
}

// Run processes commands from the child until the child sends Shutdown,
// ctx is canceled, or a fatal error occurs. It always closes every raw
// handle and conn before returning.
func (p *Parent) Run(ctx context.Context) error {
	defer p.closeAll()

	type readResult struct {
		frame ipc.Frame
		err   error
	}
	frames := make(chan readResult, 1)
	go func() {
		for {
			f, err := ipc.ReadFrame(p.conn)
			frames <- readResult{f, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Shutdown, "parent context canceled", ctx.Err())
		case r := <-frames:
			if r.err != nil {
				if r.err == io.EOF {
					return errs.New(errs.Shutdown, "child closed command channel")
				}
				return errs.Wrap(errs.PrivsepProtocol, "read command frame", r.err)
			}
			if err := p.dispatch(r.frame); err != nil {
				if errs.Is(err, errs.Shutdown) {
					return err
				}
				k, _ := errs.KindOf(err)
				if k.Fatal() {
					return err
				}
				p.log.Warn("command dispatch: %v", err)
			}
		}
	}
}

func (p *Parent) dispatch(f ipc.Frame) error {
	switch f.Tag {
	case ipc.TagOpenTx:
		body, err := ipc.UnmarshalOpenTx(f.Body)
		if err != nil {
			return err
		}
		return p.openTx(int(body.IfIndex))
	case ipc.TagSend:
		body, err := ipc.UnmarshalSend(f.Body)
		if err != nil {
			return err
		}
		return p.send(int(body.IfIndex), body.Frame)
	case ipc.TagSetDescr:
		body, err := ipc.UnmarshalSetDescr(f.Body)
		if err != nil {
			return err
		}
		if err := p.adapter.SetDescr(body.Name, body.Descr); err != nil {
			return errs.Wrap(errs.IoTransient, "set interface description", err)
		}
		return nil
	case ipc.TagShutdown:
		return errs.New(errs.Shutdown, "shutdown requested by child")
	default:
		return errs.New(errs.PrivsepProtocol, "unexpected tag from child: "+f.Tag.String())
	}
}

func (p *Parent) openTx(ifindex int) error {
	p.mu.Lock()
	if _, exists := p.handles[ifindex]; exists {
		p.mu.Unlock()
		return nil
	}
	name := p.names[ifindex]
	p.mu.Unlock()

	handle, err := p.adapter.OpenRaw()
	if err != nil {
		return errs.Wrap(errs.PermissionDenied, "open raw socket", err)
	}
	if err := handle.BindTx(ifindex, name); err != nil {
		handle.Close()
		return errs.Wrap(errs.IoTransient, "bind raw socket to "+name, err)
	}

	p.mu.Lock()
	p.handles[ifindex] = handle
	p.mu.Unlock()

	go p.recvLoop(ifindex, handle)
	return nil
}

func (p *Parent) send(ifindex int, frame []byte) error {
	p.mu.Lock()
	handle, ok := p.handles[ifindex]
	p.mu.Unlock()
	if !ok {
		return errs.New(errs.IoTransient, "send on unopened ifindex")
	}
	if err := handle.Send(frame); err != nil {
		return errs.Wrap(errs.IoTransient, "send frame", err)
	}
	return nil
}

// recvLoop forwards every frame accepted by handle's BPF filter to the
// child as a Recv message. Read timeouts are routine (Recv sets a
// short deadline so the loop can notice Close) and are not logged.
func (p *Parent) recvLoop(ifindex int, handle platform.RawHandle) {
	buf := make([]byte, platform.RecvBufferSize)
	for {
		n, gotIfindex, err := handle.Recv(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			p.mu.Lock()
			_, stillOpen := p.handles[ifindex]
			p.mu.Unlock()
			if !stillOpen {
				return
			}
			p.log.Warn("recv on ifindex %d: %v", ifindex, err)
			continue
		}
		body := ipc.RecvBody{IfIndex: uint32(gotIfindex), Frame: append([]byte(nil), buf[:n]...)}
		if err := p.writeFrame(ipc.Frame{Tag: ipc.TagRecv, Body: body.Marshal()}); err != nil {
			p.log.Warn("forward recv to child: %v", err)
		}
	}
}

func (p *Parent) writeFrame(f ipc.Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return ipc.WriteFrame(p.conn, f)
}

func (p *Parent) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, h := range p.handles {
		h.Close()
		delete(p.handles, idx)
	}
	p.conn.Close()
}
