package netproto

import (
	"encoding/binary"
	"net"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// CDP TLV types, matching the constants in the teacher's
// pkg/protocols/cdp.go (device-ID, port-ID, capabilities, software
// version, platform, duplex, native VLAN).
const (
	cdpTLVDeviceID     = 0x0001
	cdpTLVPortID       = 0x0002
	cdpTLVCapabilities = 0x0004
	cdpTLVSoftware     = 0x0005
	cdpTLVPlatform     = 0x0006
	cdpTLVNativeVLAN   = 0x000a
	cdpTLVDuplex       = 0x000b
)

var cdpMulticastMAC = net.HardwareAddr{0x01, 0x00, 0x0c, 0xcc, 0xcc, 0xcc}

const cdpOUI0, cdpOUI1, cdpOUI2 = 0x00, 0x00, 0x0c
const cdpPID = 0x2000
const cdpDefaultTTL = 180
const cdpVersion = 2

var cdpOUI = [3]byte{cdpOUI0, cdpOUI1, cdpOUI2}

type cdpModule struct {
	primaryMAC net.HardwareAddr
}

// NewCDP constructs the CDP module.
func NewCDP(primaryMAC net.HardwareAddr) Module { return &cdpModule{primaryMAC: primaryMAC} }

func (m *cdpModule) Proto() Proto                  { return CDP }
func (m *cdpModule) MulticastMAC() net.HardwareAddr { return cdpMulticastMAC }
func (m *cdpModule) DefaultTTL() uint16            { return cdpDefaultTTL }

func (m *cdpModule) Check(frame []byte) (int, bool) {
	frame = unwrapVLAN(frame)
	off, ok := checkLLCSNAP(frame, cdpMulticastMAC, cdpOUI, cdpPID)
	if !ok {
		return 0, false
	}
	return off + 4, true // skip CDP's version/ttl/checksum header
}

func (m *cdpModule) Encode(nif *netif.NetIf, sys *sysinfo.SysInfo, opts EncodeOptions, out []byte) (int, error) {
	var tlvs []byte

	tlvs = append(tlvs, cdpTLV(cdpTLVDeviceID, []byte(sys.Hostname))...)
	tlvs = append(tlvs, cdpTLV(cdpTLVPortID, []byte(nif.Name))...)
	tlvs = append(tlvs, cdpTLV(cdpTLVCapabilities, []byte{0, 0, 0, byte(sys.Capabilities)})...)
	tlvs = append(tlvs, cdpTLV(cdpTLVSoftware, []byte(sys.OSName+" "+sys.OSRelease))...)
	tlvs = append(tlvs, cdpTLV(cdpTLVPlatform, []byte(sys.OSName))...)

	ttl := ttlOrDefault(opts.Goodbye, cdpDefaultTTL)
	header := make([]byte, 4)
	header[0] = cdpVersion
	header[1] = byte(ttl)
	binary.BigEndian.PutUint16(header[2:4], 0) // checksum left zero; not verified on decode

	payload := append(header, tlvs...)
	n, err := writeLLCFrame(nif.HWAddr, cdpMulticastMAC, cdpOUI, cdpPID, payload, out)
	if err != nil {
		return 0, err
	}
	return padToMin(out, n)
}

func cdpTLV(typ uint16, value []byte) []byte {
	length := 4 + len(value)
	b := make([]byte, length)
	binary.BigEndian.PutUint16(b[0:2], typ)
	binary.BigEndian.PutUint16(b[2:4], uint16(length))
	copy(b[4:], value)
	return b
}

func (m *cdpModule) Decode(frame []byte, payloadOffset int) (PeerFields, error) {
	var out PeerFields
	out.TTL = cdpDefaultTTL
	if ttlPos := payloadOffset - 3; ttlPos >= 0 && ttlPos < len(frame) {
		out.TTL = uint16(frame[ttlPos])
	}
	pos := payloadOffset
	for pos+4 <= len(frame) {
		typ := binary.BigEndian.Uint16(frame[pos : pos+2])
		length := int(binary.BigEndian.Uint16(frame[pos+2 : pos+4]))
		if length < 4 || pos+length > len(frame) {
			return PeerFields{}, errs.New(errs.Malformed, "cdp tlv length exceeds remaining frame")
		}
		value := frame[pos+4 : pos+length]
		switch typ {
		case cdpTLVDeviceID:
			out.ChassisID = string(value)
			out.SystemName = string(value)
		case cdpTLVPortID:
			out.PortID = string(value)
		}
		pos += length
	}
	return out, nil
}

// checkLLCSNAP validates an 802.2 LLC/SNAP header (DSAP/SSAP=AA,
// control=03) with the given OUI and protocol ID, returning the offset of
// the protocol payload immediately following it.
func checkLLCSNAP(frame []byte, dst net.HardwareAddr, oui [3]byte, pid uint16) (int, bool) {
	if len(frame) < etherHdrLen+8 {
		return 0, false
	}
	if !matchesDestMAC(frame, dst) {
		return 0, false
	}
	llc := frame[etherHdrLen : etherHdrLen+8]
	if llc[0] != 0xAA || llc[1] != 0xAA || llc[2] != 0x03 {
		return 0, false
	}
	if llc[3] != oui[0] || llc[4] != oui[1] || llc[5] != oui[2] {
		return 0, false
	}
	gotPID := uint16(llc[6])<<8 | uint16(llc[7])
	if gotPID != pid {
		return 0, false
	}
	return etherHdrLen + 8, true
}
