// Package netproto implements the five neighbor-discovery protocol
// modules (LLDP, CDP, EDP, FDP, NDP), each exposing the check/encode/decode
// contract from the specification over a common Ethernet/LLC-SNAP framing
// helper. TLV-level byte packing is grounded on the teacher's
// pkg/protocols/{lldp,cdp,edp,fdp}.go TLV builders (type<<1|len-high-bit,
// length, value); Ethernet header construction reuses the teacher's
// gopacket-based sendFrame pattern.
package netproto

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// Ethernet frame size bounds from the specification's data model.
const (
	EtherMinLen = 60
	EtherMaxLen = 1514
	etherHdrLen = 14
)

// Proto is the tagged variant over the fixed protocol set, replacing the
// function-pointer dispatch table the specification's design notes call
// out as not translating directly to Go.
type Proto int

const (
	LLDP Proto = iota
	CDP
	EDP
	FDP
	NDP
)

func (p Proto) String() string {
	switch p {
	case LLDP:
		return "LLDP"
	case CDP:
		return "CDP"
	case EDP:
		return "EDP"
	case FDP:
		return "FDP"
	case NDP:
		return "NDP"
	default:
		return "?"
	}
}

// PeerFields is what decode() extracts from a received frame.
type PeerFields struct {
	ChassisID  string
	PortID     string
	SystemName string
	TTL        uint16
}

// EncodeOptions carries the per-call knobs encode() needs beyond the
// interface and system identity: whether this is the goodbye (TTL=0)
// variant, and whether per-interface chassis IDs are in effect.
type EncodeOptions struct {
	Goodbye         bool
	PerIfaceChassis bool
}

// Module is the per-protocol implementation contract.
type Module interface {
	Proto() Proto
	MulticastMAC() net.HardwareAddr
	DefaultTTL() uint16
	// Check returns the payload offset if frame is unambiguously this
	// protocol.
	Check(frame []byte) (payloadOffset int, ok bool)
	// Encode lays down the full Ethernet+payload frame into out,
	// returning the total length written.
	Encode(nif *netif.NetIf, sys *sysinfo.SysInfo, opts EncodeOptions, out []byte) (int, error)
	// Decode extracts peer fields from frame starting at payloadOffset.
	Decode(frame []byte, payloadOffset int) (PeerFields, error)
}

// ChassisID returns the chassis identity for nif per the specification's
// chassis-ID policy: the primary MAC by default, or the interface's own
// MAC when per-interface chassis IDs are enabled.
func ChassisID(nif *netif.NetIf, primary net.HardwareAddr, perIface bool) net.HardwareAddr {
	if perIface {
		return nif.HWAddr
	}
	return primary
}

// writeEthernetHeader serializes an Ethernet II header (no LLC/SNAP) via
// gopacket, mirroring the teacher's pkg/protocols/lldp.go sendFrame.
func writeEthernetHeader(src, dst net.HardwareAddr, etherType layers.EthernetType, payload []byte, out []byte) (int, error) {
	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: etherType}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return 0, errs.Wrap(errs.Malformed, "serialize ethernet header", err)
	}
	b := buf.Bytes()
	if len(b) > len(out) {
		return 0, errs.New(errs.FrameOverflow, "encoded frame exceeds buffer capacity")
	}
	n := copy(out, b)
	return n, nil
}

// llcSnapHeader builds an 8-byte 802.2 LLC/SNAP header: DSAP=AA, SSAP=AA,
// Control=03 (unnumbered information), followed by the 3-octet OUI and
// 2-octet protocol ID.
func llcSnapHeader(oui [3]byte, pid uint16) []byte {
	h := make([]byte, 8)
	h[0] = 0xAA // DSAP
	h[1] = 0xAA // SSAP
	h[2] = 0x03 // control
	copy(h[3:6], oui[:])
	h[6] = byte(pid >> 8)
	h[7] = byte(pid)
	return h
}

// writeLLCFrame serializes an Ethernet header (length field, not
// EtherType, since 802.3/802.2 frames carry a length) followed by the
// LLC/SNAP header and payload.
func writeLLCFrame(src, dst net.HardwareAddr, oui [3]byte, pid uint16, payload []byte, out []byte) (int, error) {
	llc := llcSnapHeader(oui, pid)
	full := make([]byte, 0, len(llc)+len(payload))
	full = append(full, llc...)
	full = append(full, payload...)

	eth := &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetType(len(full))}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: false}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(full)); err != nil {
		return 0, errs.Wrap(errs.Malformed, "serialize llc/snap header", err)
	}
	b := buf.Bytes()
	if len(b) > len(out) {
		return 0, errs.New(errs.FrameOverflow, "encoded frame exceeds buffer capacity")
	}
	n := copy(out, b)
	return n, nil
}

// padToMin zero-pads out[:n] up to EtherMinLen, returning the new length.
func padToMin(out []byte, n int) (int, error) {
	if n >= EtherMinLen {
		return n, nil
	}
	if EtherMinLen > len(out) {
		return 0, errs.New(errs.FrameOverflow, "buffer too small to pad to minimum frame length")
	}
	for i := n; i < EtherMinLen; i++ {
		out[i] = 0
	}
	return EtherMinLen, nil
}

func matchesDestMAC(frame []byte, mac net.HardwareAddr) bool {
	if len(frame) < 6 {
		return false
	}
	return net.HardwareAddr(frame[:6]).String() == mac.String()
}

// unwrapVLAN skips a VLAN tag (EtherType 0x8100) if present immediately
// after the source MAC, returning a copy of the frame with the 4-byte tag
// removed (or frame itself when untagged).
func unwrapVLAN(frame []byte) []byte {
	if len(frame) < etherHdrLen+4 {
		return frame
	}
	etherType := uint16(frame[12])<<8 | uint16(frame[13])
	if etherType != 0x8100 {
		return frame
	}
	// Splice out the 4-byte VLAN tag, shifting the real EtherType up.
	out := make([]byte, 0, len(frame)-4)
	out = append(out, frame[:12]...)
	out = append(out, frame[16:]...)
	return out
}

func firstIPv4(nif *netif.NetIf) net.IP {
	for _, ip := range nif.IPv4 {
		return ip
	}
	return nil
}

func ttlOrDefault(goodbye bool, def uint16) uint16 {
	if goodbye {
		return 0
	}
	return def
}

