package netproto

import (
	"encoding/binary"
	"net"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// FDP mirrors CDP's TLV encoding with Foundry's OUI, per the
// specification; TLV type numbers reuse the teacher's
// pkg/protocols/fdp.go constant block (device-ID, port, platform,
// capabilities, software, IP address).
const (
	fdpTLVDeviceID     = 0x0001
	fdpTLVPort         = 0x0002
	fdpTLVPlatform     = 0x0003
	fdpTLVCapabilities = 0x0004
	fdpTLVSoftware     = 0x0005
)

var fdpMulticastMAC = net.HardwareAddr{0x01, 0xe0, 0x52, 0xcc, 0xcc, 0xcc}
var fdpOUI = [3]byte{0x00, 0xe0, 0x52}

const fdpPID = 0x020b
const fdpDefaultTTL = 180
const fdpVersion = 1

type fdpModule struct {
	primaryMAC net.HardwareAddr
}

// NewFDP constructs the FDP module.
func NewFDP(primaryMAC net.HardwareAddr) Module { return &fdpModule{primaryMAC: primaryMAC} }

func (m *fdpModule) Proto() Proto                   { return FDP }
func (m *fdpModule) MulticastMAC() net.HardwareAddr { return fdpMulticastMAC }
func (m *fdpModule) DefaultTTL() uint16             { return fdpDefaultTTL }

func (m *fdpModule) Check(frame []byte) (int, bool) {
	frame = unwrapVLAN(frame)
	off, ok := checkLLCSNAP(frame, fdpMulticastMAC, fdpOUI, fdpPID)
	if !ok {
		return 0, false
	}
	return off + 4, true
}

func (m *fdpModule) Encode(nif *netif.NetIf, sys *sysinfo.SysInfo, opts EncodeOptions, out []byte) (int, error) {
	var tlvs []byte
	tlvs = append(tlvs, cdpTLV(fdpTLVDeviceID, []byte(sys.Hostname))...)
	tlvs = append(tlvs, cdpTLV(fdpTLVPort, []byte(nif.Name))...)
	tlvs = append(tlvs, cdpTLV(fdpTLVPlatform, []byte(sys.OSName))...)
	tlvs = append(tlvs, cdpTLV(fdpTLVCapabilities, []byte{0, 0, 0, byte(sys.Capabilities)})...)
	tlvs = append(tlvs, cdpTLV(fdpTLVSoftware, []byte(sys.OSName+" "+sys.OSRelease))...)

	ttl := ttlOrDefault(opts.Goodbye, fdpDefaultTTL)
	header := make([]byte, 4)
	header[0] = fdpVersion
	header[1] = byte(ttl)
	binary.BigEndian.PutUint16(header[2:4], 0)

	payload := append(header, tlvs...)
	n, err := writeLLCFrame(nif.HWAddr, fdpMulticastMAC, fdpOUI, fdpPID, payload, out)
	if err != nil {
		return 0, err
	}
	return padToMin(out, n)
}

func (m *fdpModule) Decode(frame []byte, payloadOffset int) (PeerFields, error) {
	var out PeerFields
	out.TTL = fdpDefaultTTL
	if ttlPos := payloadOffset - 3; ttlPos >= 0 && ttlPos < len(frame) {
		out.TTL = uint16(frame[ttlPos])
	}
	pos := payloadOffset
	for pos+4 <= len(frame) {
		typ := binary.BigEndian.Uint16(frame[pos : pos+2])
		length := int(binary.BigEndian.Uint16(frame[pos+2 : pos+4]))
		if length < 4 || pos+length > len(frame) {
			return PeerFields{}, errs.New(errs.Malformed, "fdp tlv length exceeds remaining frame")
		}
		value := frame[pos+4 : pos+length]
		switch typ {
		case fdpTLVDeviceID:
			out.ChassisID = string(value)
			out.SystemName = string(value)
		case fdpTLVPort:
			out.PortID = string(value)
		}
		pos += length
	}
	return out, nil
}
