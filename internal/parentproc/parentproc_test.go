package parentproc

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/krisarmstrong/discoveryd/internal/ipc"
	"github.com/krisarmstrong/discoveryd/internal/logd"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/platform"
)

type errTimeout struct{}

func (errTimeout) Error() string   { return "i/o timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

// fakeHandle is a platform.RawHandle whose Recv always times out until
// closed, and which records every frame handed to Send.
type fakeHandle struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (h *fakeHandle) BindTx(ifindex int, ifname string) error { return nil }

func (h *fakeHandle) Send(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, append([]byte(nil), frame...))
	return nil
}

func (h *fakeHandle) Recv(buf []byte) (int, int, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, 0, errTimeout{}
	}
	time.Sleep(5 * time.Millisecond)
	return 0, 0, errTimeout{}
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

// fakeAdapter is a platform.Adapter backed by a single fakeHandle, enough
// to exercise OpenTx/Send/SetDescr dispatch without real sockets.
type fakeAdapter struct {
	mu     sync.Mutex
	handle *fakeHandle
	descrs map[string]string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{handle: &fakeHandle{}, descrs: make(map[string]string)}
}

func (a *fakeAdapter) Enumerate() ([]netif.Snapshot, error) { return nil, nil }

func (a *fakeAdapter) OpenRaw() (platform.RawHandle, error) { return a.handle, nil }

func (a *fakeAdapter) SetDescr(ifname, descr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.descrs[ifname] = descr
	return nil
}

func TestOpenTxSendSetDescrAndShutdown(t *testing.T) {
	adapter := newFakeAdapter()
	serverConn, clientConn := net.Pipe()
	log := logd.New(true, logd.CRIT, "test")
	p := New(adapter, serverConn, log, map[int]string{1: "eth0"})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagOpenTx, Body: ipc.OpenTxBody{IfIndex: 1}.Marshal()})
	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagSend, Body: ipc.SendBody{IfIndex: 1, Frame: []byte("hi")}.Marshal()})
	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagSetDescr, Body: ipc.SetDescrBody{Name: "eth0", Descr: "uplink"}.Marshal()})
	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagShutdown})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a Shutdown-kind error, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("parent did not shut down in time")
	}

	adapter.handle.mu.Lock()
	sent := adapter.handle.sent
	adapter.handle.mu.Unlock()
	if len(sent) != 1 || !bytes.Equal(sent[0], []byte("hi")) {
		t.Fatalf("sent = %+v, want one frame containing \"hi\"", sent)
	}
	if adapter.descrs["eth0"] != "uplink" {
		t.Fatalf("descr not applied: %+v", adapter.descrs)
	}
}

// TestSendOnUnopenedIfindexContinuesRunning covers the literal scenario
// from the specification: a Send command naming an ifindex the parent
// never opened must log a warning and leave the dispatch loop running,
// not tear down the parent.
func TestSendOnUnopenedIfindexContinuesRunning(t *testing.T) {
	adapter := newFakeAdapter()
	serverConn, clientConn := net.Pipe()
	log := logd.New(true, logd.CRIT, "test")
	p := New(adapter, serverConn, log, map[int]string{1: "eth0"})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagSend, Body: ipc.SendBody{IfIndex: 999, Frame: []byte("nope")}.Marshal()})

	// The loop must still be alive: a subsequent legitimate command is
	// serviced normally.
	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagOpenTx, Body: ipc.OpenTxBody{IfIndex: 1}.Marshal()})
	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagSend, Body: ipc.SendBody{IfIndex: 1, Frame: []byte("hi")}.Marshal()})
	mustWrite(t, clientConn, ipc.Frame{Tag: ipc.TagShutdown})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a Shutdown-kind error, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("parent did not shut down in time; the bad Send likely killed the dispatch loop")
	}

	adapter.handle.mu.Lock()
	sent := adapter.handle.sent
	adapter.handle.mu.Unlock()
	if len(sent) != 1 || !bytes.Equal(sent[0], []byte("hi")) {
		t.Fatalf("sent = %+v, want the one frame sent after recovering from the bad ifindex", sent)
	}
}

func mustWrite(t *testing.T, conn net.Conn, f ipc.Frame) {
	t.Helper()
	if err := ipc.WriteFrame(conn, f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}
