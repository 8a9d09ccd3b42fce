package netproto

import (
	"net"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// NDP (Nortel/SynOptics Discovery Protocol, "SONMP") carries a fixed
// 11-byte header and no TLVs: local IPv4, a 3-byte segment id, a chassis
// type byte, a backplane type byte, a link number, and a topology-state
// byte. There is no teacher precedent for this protocol; the header shape
// and constant chassis/backplane values are grounded on
// original_source/src/proto/ndp.c.
const (
	ndpChassisTypeOther    = 1
	ndpBackplaneTypeOther  = 1
	ndpDefaultTTL          = 180 // LADVD_TTL in original_source; see decode comment below
)

var ndpMulticastMAC = net.HardwareAddr{0x01, 0x00, 0x81, 0x00, 0x01, 0x00}
var ndpOUI = [3]byte{0x00, 0x00, 0x81}

const ndpPID = 0x01a1
const ndpHeaderLen = 11

type ndpModule struct {
	primaryMAC net.HardwareAddr
}

// NewNDP constructs the NDP module.
func NewNDP(primaryMAC net.HardwareAddr) Module { return &ndpModule{primaryMAC: primaryMAC} }

func (m *ndpModule) Proto() Proto                   { return NDP }
func (m *ndpModule) MulticastMAC() net.HardwareAddr { return ndpMulticastMAC }
func (m *ndpModule) DefaultTTL() uint16             { return ndpDefaultTTL }

func (m *ndpModule) Check(frame []byte) (int, bool) {
	frame = unwrapVLAN(frame)
	return checkLLCSNAP(frame, ndpMulticastMAC, ndpOUI, ndpPID)
}

func (m *ndpModule) Encode(nif *netif.NetIf, sys *sysinfo.SysInfo, opts EncodeOptions, out []byte) (int, error) {
	header := make([]byte, ndpHeaderLen)
	if ip := firstIPv4(nif); ip != nil {
		copy(header[0:4], ip.To4())
	}
	// segment id: low 3 bytes of the local ifindex, a stable stand-in for
	// the 802.5/FDDI ring number the original protocol was designed for.
	header[4] = byte(nif.Index >> 16)
	header[5] = byte(nif.Index >> 8)
	header[6] = byte(nif.Index)
	header[7] = ndpChassisTypeOther
	header[8] = ndpBackplaneTypeOther
	header[9] = byte(len(nif.Children))
	if opts.Goodbye {
		header[10] = 0
	} else {
		header[10] = 1 // topology state: 1 = stable
	}

	n, err := writeLLCFrame(nif.HWAddr, ndpMulticastMAC, ndpOUI, ndpPID, header, out)
	if err != nil {
		return 0, err
	}
	return padToMin(out, n)
}

func (m *ndpModule) Decode(frame []byte, payloadOffset int) (PeerFields, error) {
	if payloadOffset+ndpHeaderLen > len(frame) {
		return PeerFields{}, errs.New(errs.Malformed, "ndp header truncated")
	}
	h := frame[payloadOffset : payloadOffset+ndpHeaderLen]
	ip := net.IP(h[0:4])

	return PeerFields{
		ChassisID: ip.String(),
		PortID:    formatLinkNumber(h[9]),
		// NDP carries no system name field in its wire format.
		SystemName: "",
		// NDP carries no TTL field on the wire (see original_source's
		// "XXX: this should be improved" comment on ndp_decode). Rather
		// than invent topology-state-derived expiry, peer records use
		// this fixed default, matching the original's LADVD_TTL constant.
		TTL: ndpDefaultTTL,
	}, nil
}

func formatLinkNumber(n byte) string {
	return "link" + string(rune('0'+n%10))
}
