package netproto

import (
	"bytes"
	"net"
	"testing"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

func testNetIf(name string, mac net.HardwareAddr) *netif.NetIf {
	return &netif.NetIf{Index: 1, Name: name, HWAddr: mac, MTU: 1500, Type: netif.Phys, VlanID: netif.NoVlan}
}

func testSysInfo(hostname string) *sysinfo.SysInfo {
	return &sysinfo.SysInfo{Hostname: hostname, OSName: "linux", OSRelease: "1.0"}
}

// TestScenario1LLDPFirstBytes matches the specification's literal
// end-to-end scenario 1: foreground LLDP-only send on eth0 produces a
// frame whose first 14 bytes are the LLDP multicast MAC, the interface's
// MAC, and EtherType 0x88cc, with chassis ID TLV subtype 4 = the MAC.
func TestScenario1LLDPFirstBytes(t *testing.T) {
	mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	nif := testNetIf("eth0", mac)
	sys := testSysInfo("lab1")
	mod := NewLLDP(mac)

	out := make([]byte, EtherMaxLen)
	n, err := mod.Encode(nif, sys, EncodeOptions{}, out)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x88, 0xcc}
	if !bytes.Equal(out[:14], want) {
		t.Fatalf("first 14 bytes = % x, want % x", out[:14], want)
	}

	off, ok := mod.Check(out[:n])
	if !ok {
		t.Fatalf("check failed on our own encoded frame")
	}
	peer, err := mod.Decode(out[:n], off)
	if err != nil {
		t.Fatal(err)
	}
	if peer.ChassisID != mac.String() {
		t.Fatalf("chassis id = %q, want %q", peer.ChassisID, mac.String())
	}
	if peer.SystemName != "lab1" {
		t.Fatalf("system name = %q, want lab1", peer.SystemName)
	}
}

func TestEncodeDecodeRoundTripAllProtocols(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	nif := testNetIf("eth0", mac)
	nif.IPv4 = []net.IP{net.IPv4(10, 0, 0, 1)}
	sys := testSysInfo("host1")
	tbl := NewTable(mac)

	for _, mod := range tbl.All() {
		out := make([]byte, EtherMaxLen)
		n, err := mod.Encode(nif, sys, EncodeOptions{}, out)
		if err != nil {
			t.Fatalf("%s encode: %v", mod.Proto(), err)
		}
		if n < EtherMinLen || n > len(out) {
			t.Fatalf("%s encoded length %d out of bounds", mod.Proto(), n)
		}
		off, ok := mod.Check(out[:n])
		if !ok {
			t.Fatalf("%s check failed on its own frame", mod.Proto())
		}
		if _, err := mod.Decode(out[:n], off); err != nil {
			t.Fatalf("%s decode: %v", mod.Proto(), err)
		}
	}
}

func TestAtMostOneProtocolMatches(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	nif := testNetIf("eth0", mac)
	sys := testSysInfo("host1")
	tbl := NewTable(mac)

	for _, mod := range tbl.All() {
		out := make([]byte, EtherMaxLen)
		n, err := mod.Encode(nif, sys, EncodeOptions{}, out)
		if err != nil {
			t.Fatal(err)
		}
		matches := 0
		for _, other := range tbl.All() {
			if _, ok := other.Check(out[:n]); ok {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("%s frame matched %d modules, want 1", mod.Proto(), matches)
		}
	}
}

func TestGoodbyeTTLZero(t *testing.T) {
	mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	nif := testNetIf("eth0", mac)
	sys := testSysInfo("lab1")
	mod := NewLLDP(mac)

	out := make([]byte, EtherMaxLen)
	n, err := mod.Encode(nif, sys, EncodeOptions{Goodbye: true}, out)
	if err != nil {
		t.Fatal(err)
	}
	off, _ := mod.Check(out[:n])
	peer, err := mod.Decode(out[:n], off)
	if err != nil {
		t.Fatal(err)
	}
	if peer.TTL != 0 {
		t.Fatalf("goodbye TTL = %d, want 0", peer.TTL)
	}
}

func TestLLDPTruncatedTLVIsMalformed(t *testing.T) {
	mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	nif := testNetIf("eth0", mac)
	sys := testSysInfo("lab1")
	mod := NewLLDP(mac)

	out := make([]byte, EtherMaxLen)
	n, err := mod.Encode(nif, sys, EncodeOptions{}, out)
	if err != nil {
		t.Fatal(err)
	}
	off, _ := mod.Check(out[:n])

	// Corrupt the chassis TLV's length field to claim more bytes than the
	// frame actually has.
	corrupt := append([]byte(nil), out[:n]...)
	corrupt[off] = corrupt[off] | 0x01 // bump the 9-bit length's high bit

	_, err = mod.Decode(corrupt, off)
	if !errs.Is(err, errs.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}

// TestPerInterfaceChassisID exercises the chassis-ID TLV's content, not
// the Ethernet source MAC: the source is always the emitting interface's
// own hardware address per §4.2, regardless of this option.
func TestPerInterfaceChassisID(t *testing.T) {
	macA := net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x0a}
	macB := net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x0b}
	nifA := testNetIf("eth0", macA)
	nifB := testNetIf("eth1", macB)
	sys := testSysInfo("lab1")
	mod := NewLLDP(macA)

	chassisOf := func(nif *netif.NetIf, perIface bool) string {
		t.Helper()
		out := make([]byte, EtherMaxLen)
		n, err := mod.Encode(nif, sys, EncodeOptions{PerIfaceChassis: perIface}, out)
		if err != nil {
			t.Fatal(err)
		}
		off, ok := mod.Check(out[:n])
		if !ok {
			t.Fatalf("check failed on our own encoded frame")
		}
		peer, err := mod.Decode(out[:n], off)
		if err != nil {
			t.Fatal(err)
		}
		return peer.ChassisID
	}

	chassisA := chassisOf(nifA, true)
	chassisB := chassisOf(nifB, true)
	if chassisA == chassisB {
		t.Fatalf("expected distinct per-interface chassis ids")
	}

	chassisShared := chassisOf(nifB, false)
	if chassisShared != chassisA {
		t.Fatalf("chassis id = %q, want primary MAC %q when per-iface is off", chassisShared, chassisA)
	}
}
