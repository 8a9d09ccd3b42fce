//go:build linux

package platform

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/vishvananda/netlink"

	"github.com/krisarmstrong/discoveryd/internal/netif"
)

// linuxAdapter backs the platform contract with netlink for enumeration
// and mdlayher/packet for raw I/O, replacing tonhe-nbor's
// /sys/class/net + net.InterfaceByName scraping
// (platform/interfaces_linux.go) with a single netlink-backed view that
// resolves bond/bridge/vlan parent relationships directly instead of
// re-deriving them from sysfs symlinks.
type linuxAdapter struct{}

// New returns the Linux platform adapter.
func New() Adapter { return &linuxAdapter{} }

func (a *linuxAdapter) Enumerate() ([]netif.Snapshot, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netlink link list: %w", err)
	}

	snaps := make([]netif.Snapshot, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()

		v4, v6, err := addrsFor(link)
		if err != nil {
			continue
		}

		snap := netif.Snapshot{
			Index:       attrs.Index,
			Name:        attrs.Name,
			HWAddr:      attrs.HardwareAddr,
			MTU:         attrs.MTU,
			Up:          attrs.Flags&netFlagUp != 0,
			Running:     attrs.OperState == netlink.OperUp,
			Promisc:     attrs.Promisc != 0,
			IPv4:        v4,
			IPv6:        v6,
			VlanID:      netif.NoVlan,
			MasterIndex: attrs.MasterIndex,
			IsWireless:  isWireless(attrs.Name),
		}

		switch t := link.(type) {
		case *netlink.Vlan:
			snap.VlanID = t.VlanId
			snap.VlanParent = attrs.ParentIndex
		case *netlink.Bond:
			snap.IsBond = true
		case *netlink.Bridge:
			snap.IsBridge = true
		case *netlink.Tuntap:
			snap.IsTap = true
		}

		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// netFlagUp is net.FlagUp's bit value; netlink.LinkAttrs.Flags is a
// net.Flags, so this untyped constant compares against it directly.
const netFlagUp = 1 << 0

func addrsFor(link netlink.Link) ([]net.IP, []net.IP, error) {
	v4addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, nil, err
	}
	v6addrs, err := netlink.AddrList(link, netlink.FAMILY_V6)
	if err != nil {
		return nil, nil, err
	}
	var v4, v6 []net.IP
	for _, a := range v4addrs {
		v4 = append(v4, a.IP)
	}
	for _, a := range v6addrs {
		v6 = append(v6, a.IP)
	}
	return v4, v6, nil
}

func isWireless(name string) bool {
	_, err := os.Stat(filepath.Join("/sys/class/net", name, "wireless"))
	return err == nil
}

func (a *linuxAdapter) SetDescr(ifname, descr string) error {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("link by name %s: %w", ifname, err)
	}
	return netlink.LinkSetAlias(link, descr)
}
