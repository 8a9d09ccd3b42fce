package netproto

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// EDP TLV types, matching the teacher's pkg/protocols/edp.go constants
// (display string, info, warning, null terminator), plus a vlan TLV the
// teacher never modeled.
const (
	edpTLVDisplay = 0x01
	edpTLVInfo    = 0x02
	edpTLVWarning = 0x03
	edpTLVVlan    = 0x04
	edpTLVNull    = 0x99
)

var edpMulticastMAC = net.HardwareAddr{0x00, 0xe0, 0x2b, 0x00, 0x00, 0x00}
var edpOUI = [3]byte{0x00, 0xe0, 0x2b}

const edpPID = 0x00bb
const edpDefaultTTL = 120
const edpVersion = 1

type edpModule struct {
	primaryMAC net.HardwareAddr
}

// NewEDP constructs the EDP module.
func NewEDP(primaryMAC net.HardwareAddr) Module { return &edpModule{primaryMAC: primaryMAC} }

func (m *edpModule) Proto() Proto                   { return EDP }
func (m *edpModule) MulticastMAC() net.HardwareAddr { return edpMulticastMAC }
func (m *edpModule) DefaultTTL() uint16             { return edpDefaultTTL }

func (m *edpModule) Check(frame []byte) (int, bool) {
	frame = unwrapVLAN(frame)
	off, ok := checkLLCSNAP(frame, edpMulticastMAC, edpOUI, edpPID)
	if !ok {
		return 0, false
	}
	return off + 4, true // skip the 4-byte header Encode writes: version, TTL, two zero bytes
}

func (m *edpModule) Encode(nif *netif.NetIf, sys *sysinfo.SysInfo, opts EncodeOptions, out []byte) (int, error) {
	var tlvs []byte
	tlvs = append(tlvs, edpTLV(edpTLVDisplay, []byte(sys.Hostname))...)
	slotPort := fmt.Sprintf("0/%s", nif.Name)
	tlvs = append(tlvs, edpTLV(edpTLVInfo, []byte(slotPort))...)
	if nif.VlanID != netif.NoVlan {
		vlanVal := []byte{byte(nif.VlanID >> 8), byte(nif.VlanID)}
		tlvs = append(tlvs, edpTLV(edpTLVVlan, vlanVal)...)
	}
	tlvs = append(tlvs, edpTLV(edpTLVNull, nil)...)

	ttl := ttlOrDefault(opts.Goodbye, edpDefaultTTL)
	header := make([]byte, 4)
	header[0] = edpVersion
	header[1] = byte(ttl)

	payload := append(header, tlvs...)
	n, err := writeLLCFrame(nif.HWAddr, edpMulticastMAC, edpOUI, edpPID, payload, out)
	if err != nil {
		return 0, err
	}
	return padToMin(out, n)
}

func edpTLV(typ uint8, value []byte) []byte {
	b := make([]byte, 3+len(value))
	b[0] = typ
	binary.BigEndian.PutUint16(b[1:3], uint16(len(value)))
	copy(b[3:], value)
	return b
}

func (m *edpModule) Decode(frame []byte, payloadOffset int) (PeerFields, error) {
	var out PeerFields
	out.TTL = edpDefaultTTL
	if payloadOffset >= 4 {
		out.TTL = uint16(frame[payloadOffset-3]) // header[1], the TTL byte written by Encode
	}
	pos := payloadOffset
	for pos+3 <= len(frame) {
		typ := frame[pos]
		length := int(binary.BigEndian.Uint16(frame[pos+1 : pos+3]))
		if pos+3+length > len(frame) {
			return PeerFields{}, errs.New(errs.Malformed, "edp tlv length exceeds remaining frame")
		}
		value := frame[pos+3 : pos+3+length]
		switch typ {
		case edpTLVDisplay:
			out.SystemName = string(value)
			out.ChassisID = string(value)
		case edpTLVInfo:
			out.PortID = string(value)
		case edpTLVVlan:
			// VlanID isn't part of PeerFields; decoded only to validate
			// the TLV's length and advance the cursor past it.
		case edpTLVNull:
			return out, nil
		}
		pos += 3 + length
	}
	return out, nil
}
