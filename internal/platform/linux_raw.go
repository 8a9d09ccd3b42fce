//go:build linux

package platform

import (
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/packet"
	"golang.org/x/net/bpf"
)

// buildDiscoveryFilter assembles the classic BPF program attached to every
// raw socket opened by the parent from discoveryDestMACs: it accepts a frame if it matches any of the five
// neighbor-discovery multicast destination MACs, regardless of EtherType,
// and rejects everything else at the kernel. Matching on destination MAC
// alone (rather than also checking EtherType/LLC-SNAP) keeps the program
// small and fixed, per the specification; the child still runs each
// protocol's own check() before trusting a frame.
var discoveryDestMACs = [][6]byte{
	{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e}, // LLDP (bridge-group)
	{0x01, 0x00, 0x0c, 0xcc, 0xcc, 0xcc}, // CDP
	{0x00, 0xe0, 0x2b, 0x00, 0x00, 0x00}, // EDP
	{0x01, 0xe0, 0x52, 0xcc, 0xcc, 0xcc}, // FDP
	{0x01, 0x00, 0x81, 0x00, 0x01, 0x00}, // NDP
}

func buildDiscoveryFilter() ([]bpf.RawInstruction, error) {
	var prog []bpf.Instruction
	// Load the first 4 bytes and last 2 bytes of the destination MAC and
	// compare against each candidate, falling through to the next
	// candidate on mismatch; jump to "accept" on any match.
	nCandidates := len(discoveryDestMACs)
	for i, mac := range discoveryDestMACs {
		hi := uint32(mac[0])<<24 | uint32(mac[1])<<16 | uint32(mac[2])<<8 | uint32(mac[3])
		lo := uint32(mac[4])<<8 | uint32(mac[5])
		remaining := nCandidates - i - 1
		prog = append(prog,
			bpf.LoadAbsolute{Off: 0, Size: 4},
			bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: hi, SkipTrue: 2},
			bpf.LoadAbsolute{Off: 4, Size: 2},
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: lo, SkipTrue: uint8(1 + remaining*4)},
		)
	}
	prog = append(prog, bpf.RetConstant{Val: 0}) // reject
	prog = append(prog, bpf.RetConstant{Val: 0xffff})

	return bpf.Assemble(prog)
}

type linuxRawHandle struct {
	conn   *packet.Conn
	ifi    *net.Interface
	ifname string
}

func (a *linuxAdapter) OpenRaw() (RawHandle, error) {
	return &linuxRawHandle{}, nil
}

func (h *linuxRawHandle) BindTx(ifindex int, ifname string) error {
	ifi, err := net.InterfaceByIndex(ifindex)
	if err != nil {
		return fmt.Errorf("interface by index %d: %w", ifindex, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, 0x0003 /* ETH_P_ALL */, nil)
	if err != nil {
		return fmt.Errorf("open raw socket on %s: %w", ifname, err)
	}
	filter, err := buildDiscoveryFilter()
	if err != nil {
		conn.Close()
		return fmt.Errorf("assemble bpf filter: %w", err)
	}
	if err := conn.SetBPF(filter); err != nil {
		conn.Close()
		return fmt.Errorf("attach bpf filter on %s: %w", ifname, err)
	}
	h.conn = conn
	h.ifi = ifi
	h.ifname = ifname
	return nil
}

func (h *linuxRawHandle) Send(frame []byte) error {
	if h.conn == nil {
		return fmt.Errorf("send on %s: socket not bound", h.ifname)
	}
	dst := make(net.HardwareAddr, 6)
	copy(dst, frame[:6])
	_, err := h.conn.WriteTo(frame, &packet.Addr{HardwareAddr: dst})
	return err
}

func (h *linuxRawHandle) Recv(buf []byte) (int, int, error) {
	if h.conn == nil {
		return 0, 0, fmt.Errorf("recv: socket not bound")
	}
	h.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	n, _, err := h.conn.ReadFrom(buf)
	if err != nil {
		return 0, 0, err
	}
	return n, h.ifi.Index, nil
}

func (h *linuxRawHandle) Close() error {
	if h.conn == nil {
		return nil
	}
	return h.conn.Close()
}
