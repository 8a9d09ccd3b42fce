// Package sysinfo collects the local system identity advertised in every
// protocol's chassis/system TLVs: hostname, OS, uptime, management
// addresses, LLDP capabilities, and the optional LLDP-MED fields.
package sysinfo

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// MedDeviceType enumerates the LLDP-MED device classes.
type MedDeviceType int

const (
	MedNone MedDeviceType = iota
	MedEndpointClassI
	MedEndpointClassII
	MedEndpointClassIII
	MedNetworkConnectivity
)

// SysInfo is the daemon's view of local system identity, built once at
// startup and passed explicitly into both processes per the
// specification's "no ambient state" design note.
type SysInfo struct {
	Hostname     string
	OSName       string
	OSRelease    string
	UptimeStart  time.Time
	MgmtIPv4     net.IP
	MgmtIPv6     net.IP
	MgmtIfName   string
	Capabilities uint16
	MedDevice    MedDeviceType
	Country      string
	Location     string
	PhysIfCount  int
}

// Uptime returns seconds elapsed since the collector was created.
func (s *SysInfo) Uptime() uint32 {
	d := time.Since(s.UptimeStart)
	if d < 0 {
		return 0
	}
	return uint32(d.Seconds())
}

// Collect gathers hostname/OS identity once at startup. Management
// address selection and physif count are filled in by the caller once
// the interface table is available.
func Collect() (*SysInfo, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}
	release := kernelRelease()
	return &SysInfo{
		Hostname:    hostname,
		OSName:      runtime.GOOS,
		OSRelease:   release,
		UptimeStart: time.Now(),
	}, nil
}

func kernelRelease() string {
	f, err := os.Open("/proc/version")
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 3 {
			return fields[2]
		}
	}
	return ""
}

// ValidateCountry enforces the specification's country-code grammar:
// exactly two uppercase ASCII letters.
func ValidateCountry(cc string) bool {
	if len(cc) != 2 {
		return false
	}
	for _, r := range cc {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseCapabilities renders the LLDP capabilities bitmap as a
// human-readable list, used only for logging.
func ParseCapabilities(bitmap uint16) string {
	names := []struct {
		bit  uint16
		name string
	}{
		{1 << 0, "other"},
		{1 << 1, "repeater"},
		{1 << 2, "bridge"},
		{1 << 3, "wlan-ap"},
		{1 << 4, "router"},
		{1 << 5, "phone"},
		{1 << 6, "docsis"},
		{1 << 7, "station"},
	}
	var parts []string
	for _, n := range names {
		if bitmap&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// FormatUptime renders seconds as a ladvd-style "Nd Nh Nm Ns" string, used
// only for DEBUG logging of local identity at startup.
func FormatUptime(seconds uint32) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
