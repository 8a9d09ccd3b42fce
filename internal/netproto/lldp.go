package netproto

import (
	"net"

	"github.com/google/gopacket/layers"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
	"github.com/krisarmstrong/discoveryd/internal/tlv"
)

// LLDP TLV types, per IEEE 802.1AB. Field names and values are lifted
// directly from the teacher's pkg/protocols/lldp.go constant block.
const (
	lldpTLVEnd             = 0
	lldpTLVChassisID       = 1
	lldpTLVPortID          = 2
	lldpTLVTTL             = 3
	lldpTLVPortDescr       = 4
	lldpTLVSystemName      = 5
	lldpTLVSystemDescr     = 6
	lldpTLVCapabilities    = 7
	lldpTLVManagementAddr  = 8
	lldpTLVOrgSpecific     = 127
)

const (
	lldpChassisSubtypeMAC = 4
	lldpPortSubtypeIfName = 5
)

var lldpMulticastMAC = net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e}

const lldpEtherType = 0x88cc
const lldpDefaultTTL = 120

// lldpModule implements LLDP (IEEE 802.1AB) framing over plain EtherType
// 0x88cc, with no LLC/SNAP header.
type lldpModule struct {
	primaryMAC net.HardwareAddr
}

// NewLLDP constructs the LLDP module, using primaryMAC as the default
// chassis ID when per-interface chassis IDs are not in effect.
func NewLLDP(primaryMAC net.HardwareAddr) Module { return &lldpModule{primaryMAC: primaryMAC} }

func (m *lldpModule) Proto() Proto                 { return LLDP }
func (m *lldpModule) MulticastMAC() net.HardwareAddr { return lldpMulticastMAC }
func (m *lldpModule) DefaultTTL() uint16           { return lldpDefaultTTL }

func (m *lldpModule) Check(frame []byte) (int, bool) {
	frame = unwrapVLAN(frame)
	if len(frame) < etherHdrLen+2 {
		return 0, false
	}
	if !matchesDestMAC(frame, lldpMulticastMAC) {
		return 0, false
	}
	etherType := uint16(frame[12])<<8 | uint16(frame[13])
	if etherType != lldpEtherType {
		return 0, false
	}
	return etherHdrLen, true
}

func (m *lldpModule) Encode(nif *netif.NetIf, sys *sysinfo.SysInfo, opts EncodeOptions, out []byte) (int, error) {
	w := tlv.NewWriter(make([]byte, EtherMaxLen))

	chassis := ChassisID(nif, m.primaryMAC, opts.PerIfaceChassis)
	chassisVal := append([]byte{lldpChassisSubtypeMAC}, chassis...)
	if err := w.PutLLDPTLV(lldpTLVChassisID, chassisVal); err != nil {
		return 0, err
	}

	portVal := append([]byte{lldpPortSubtypeIfName}, []byte(nif.Name)...)
	if err := w.PutLLDPTLV(lldpTLVPortID, portVal); err != nil {
		return 0, err
	}

	ttl := ttlOrDefault(opts.Goodbye, lldpDefaultTTL)
	ttlVal := []byte{byte(ttl >> 8), byte(ttl)}
	if err := w.PutLLDPTLV(lldpTLVTTL, ttlVal); err != nil {
		return 0, err
	}

	if !opts.Goodbye {
		if sys.Hostname != "" {
			if err := w.PutLLDPTLV(lldpTLVSystemName, []byte(sys.Hostname)); err != nil {
				return 0, err
			}
		}
		descr := sys.OSName + " " + sys.OSRelease
		if err := w.PutLLDPTLV(lldpTLVSystemDescr, []byte(descr)); err != nil {
			return 0, err
		}
		capVal := []byte{byte(sys.Capabilities >> 8), byte(sys.Capabilities), byte(sys.Capabilities >> 8), byte(sys.Capabilities)}
		if err := w.PutLLDPTLV(lldpTLVCapabilities, capVal); err != nil {
			return 0, err
		}
		if ip := firstIPv4(nif); ip != nil {
			mgmt := buildManagementAddressValue(ip)
			if err := w.PutLLDPTLV(lldpTLVManagementAddr, mgmt); err != nil {
				return 0, err
			}
		}
	}

	if err := w.PutLLDPTLV(lldpTLVEnd, nil); err != nil {
		return 0, err
	}
	payload := w.Bytes()

	n, err := writeEthernetHeader(nif.HWAddr, lldpMulticastMAC, layers.EthernetType(lldpEtherType), payload, out)
	if err != nil {
		return 0, err
	}
	return padToMin(out, n)
}

func buildManagementAddressValue(ip net.IP) []byte {
	v4 := ip.To4()
	addrSubtype := byte(1)
	addrBytes := []byte(v4)
	if v4 == nil {
		addrSubtype = 2
		addrBytes = []byte(ip.To16())
	}
	val := make([]byte, 0, 1+1+len(addrBytes)+1+4+1)
	val = append(val, byte(1+len(addrBytes)))
	val = append(val, addrSubtype)
	val = append(val, addrBytes...)
	val = append(val, 2) // interface numbering subtype: ifIndex
	val = append(val, 0, 0, 0, 1)
	val = append(val, 0) // no OID
	return val
}

func (m *lldpModule) Decode(frame []byte, payloadOffset int) (PeerFields, error) {
	r := tlv.NewReader(frame)
	if err := r.Seek(payloadOffset); err != nil {
		return PeerFields{}, errs.Wrap(errs.Malformed, "lldp decode seek", err)
	}

	var out PeerFields
	for {
		if r.Remaining() < 2 {
			return PeerFields{}, errs.New(errs.Malformed, "lldp frame truncated before End TLV")
		}
		hdr, err := r.GetLLDPTLVHeader()
		if err != nil {
			return PeerFields{}, errs.Wrap(errs.Malformed, "lldp tlv header", err)
		}
		if hdr.Length > r.Remaining() {
			return PeerFields{}, errs.New(errs.Malformed, "lldp tlv length exceeds remaining frame")
		}
		value, err := r.GetBytes(hdr.Length)
		if err != nil {
			return PeerFields{}, errs.Wrap(errs.Malformed, "lldp tlv value", err)
		}

		switch hdr.Type {
		case lldpTLVEnd:
			return out, nil
		case lldpTLVChassisID:
			if len(value) > 1 {
				out.ChassisID = formatChassisValue(value[0], value[1:])
			}
		case lldpTLVPortID:
			if len(value) > 1 {
				out.PortID = string(value[1:])
			}
		case lldpTLVTTL:
			if len(value) >= 2 {
				out.TTL = uint16(value[0])<<8 | uint16(value[1])
			}
		case lldpTLVSystemName:
			out.SystemName = string(value)
		}
	}
}

func formatChassisValue(subtype byte, value []byte) string {
	if subtype == lldpChassisSubtypeMAC && len(value) == 6 {
		return net.HardwareAddr(value).String()
	}
	return string(value)
}
