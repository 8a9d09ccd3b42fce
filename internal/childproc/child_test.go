package childproc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/krisarmstrong/discoveryd/internal/config"
	"github.com/krisarmstrong/discoveryd/internal/ipc"
	"github.com/krisarmstrong/discoveryd/internal/logd"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/netproto"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

func testIfaces() *netif.Table {
	enum := netif.NewEnumerator(nil, false, false)
	return enum.Classify([]netif.Snapshot{
		{Index: 2, Name: "eth0", HWAddr: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, MTU: 1500, Up: true, Running: true},
	})
}

func testSys() *sysinfo.SysInfo {
	return &sysinfo.SysInfo{Hostname: "host1", UptimeStart: time.Now()}
}

func TestRunOnceSendsOneFramePerPairThenShutdown(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	cfg := &config.Config{RunOnce: true, Protocols: map[netproto.Proto]bool{netproto.LLDP: true}}
	table := netproto.NewTable([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	child := New(serverConn, table, cfg, testSys(), logd.New(true, logd.CRIT, "test"), testIfaces())

	var tags []ipc.Tag
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f, err := ipc.ReadFrame(clientConn)
			if err != nil {
				return
			}
			tags = append(tags, f.Tag)
		}
	}()

	if err := child.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	clientConn.Close()
	<-done

	var sendCount, shutdownCount int
	for _, tg := range tags {
		if tg == ipc.TagSend {
			sendCount++
		}
		if tg == ipc.TagShutdown {
			shutdownCount++
		}
	}
	// One send for the single (LLDP, eth0) pair; run-once sends no goodbye.
	if sendCount != 1 {
		t.Fatalf("sendCount = %d, want 1 (one frame, no goodbye)", sendCount)
	}
	if shutdownCount != 1 {
		t.Fatalf("shutdownCount = %d, want 1", shutdownCount)
	}
}

func TestReceiveLoopDispatchesToPeerTable(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	cfg := &config.Config{
		RunOnce:  false,
		Silent:   true,
		Receive:  true,
		Protocols: map[netproto.Proto]bool{},
	}
	primary := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	table := netproto.NewTable(primary)
	child := New(serverConn, table, cfg, testSys(), logd.New(true, logd.CRIT, "test"), testIfaces())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- child.Run(ctx) }()

	// Drain whatever the child writes back (OpenTx/Send/Shutdown frames)
	// so the child's blocking net.Pipe writes never stall the test.
	go func() {
		for {
			if _, err := ipc.ReadFrame(clientConn); err != nil {
				return
			}
		}
	}()

	// Build a real LLDP frame via the module itself and feed it back to
	// the child as if the parent had received it.
	lldp := table.Get(netproto.LLDP)
	nif := testIfaces().All()[0]
	buf := make([]byte, netproto.EtherMaxLen)
	n, err := lldp.Encode(nif, testSys(), netproto.EncodeOptions{}, buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	body := ipc.RecvBody{IfIndex: uint32(nif.Index), Frame: buf[:n]}
	if err := ipc.WriteFrame(clientConn, ipc.Frame{Tag: ipc.TagRecv, Body: body.Marshal()}); err != nil {
		t.Fatalf("write recv frame: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(child.Peers().All()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("peer table never populated")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("child did not shut down")
	}
}
