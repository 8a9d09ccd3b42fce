// Package netif models discovered network interfaces and the enumeration/
// classification pass that builds the active interface table each cycle.
// The shape — an owning container indexed by ifindex with parent/child
// relationships resolved as index lookups rather than pointers — follows
// the specification's re-architecture guidance; the field set is adapted
// from the teacher's absent equivalent and from tonhe-nbor's
// platform/interfaces_linux.go enumeration fields (speed, up/running,
// v4/v6 address lists, wireless detection).
package netif

import (
	"net"
	"time"
)

// Type classifies an interface the way the enumerator sees it.
type Type int

const (
	Phys Type = iota
	Bond
	Bridge
	Vlan
	Wireless
	Tap
	Other
)

func (t Type) String() string {
	switch t {
	case Phys:
		return "phys"
	case Bond:
		return "bond"
	case Bridge:
		return "bridge"
	case Vlan:
		return "vlan"
	case Wireless:
		return "wireless"
	case Tap:
		return "tap"
	default:
		return "other"
	}
}

// NoVlan marks a NetIf with no VLAN id.
const NoVlan = -1

// NetIf is one entry in the active interface table.
type NetIf struct {
	Index       int
	Name        string
	HWAddr      net.HardwareAddr
	MTU         int
	Type        Type
	Up          bool
	Running     bool
	Promisc     bool
	IPv4        []net.IP
	IPv6        []net.IP
	ParentIndex int // 0 when there is no parent
	Children    []int
	VlanID      int // NoVlan when not a VLAN interface
	Description string
	LastTxOK    time.Time
}

// Snapshot is what a platform adapter reports for one interface before
// parent/child relationships are resolved; the enumerator turns a list of
// these into a Table.
type Snapshot struct {
	Index       int
	Name        string
	HWAddr      net.HardwareAddr
	MTU         int
	Up          bool
	Running     bool
	Promisc     bool
	IPv4        []net.IP
	IPv6        []net.IP
	IsBond      bool
	IsBridge    bool
	IsWireless  bool
	IsTap       bool
	MasterIndex int // bond/bridge master ifindex, 0 if none
	VlanID      int // NoVlan if not a VLAN device
	VlanParent  int // parent ifindex for a VLAN device, 0 if unknown
}

// Enumerator resolves the active table from the interface snapshots a
// platform adapter reported.
type Enumerator struct {
	Exclude     map[string]struct{}
	IncludeTap  bool
	IncludeWifi bool
}

// NewEnumerator builds an Enumerator from an exclude-name set.
func NewEnumerator(exclude []string, includeTap, includeWifi bool) *Enumerator {
	m := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		m[name] = struct{}{}
	}
	return &Enumerator{Exclude: m, IncludeTap: includeTap, IncludeWifi: includeWifi}
}

// Classify resolves snapshots into a Table: filters down/not-running,
// loopback, excluded, and (unless enabled) tap and wireless interfaces,
// then links bond/bridge/vlan children back to their parents.
func (e *Enumerator) Classify(snaps []Snapshot) *Table {
	tbl := &Table{byIndex: make(map[int]*NetIf)}

	kept := make(map[int]Snapshot, len(snaps))
	for _, s := range snaps {
		if s.Name == "lo" || isLoopbackHW(s.HWAddr) {
			continue
		}
		if _, excluded := e.Exclude[s.Name]; excluded {
			continue
		}
		if !s.Up || !s.Running {
			continue
		}
		if s.IsTap && !e.IncludeTap {
			continue
		}
		if s.IsWireless && !e.IncludeWifi {
			continue
		}
		kept[s.Index] = s
	}

	for idx, s := range kept {
		nif := &NetIf{
			Index:   idx,
			Name:    s.Name,
			HWAddr:  s.HWAddr,
			MTU:     s.MTU,
			Up:      s.Up,
			Running: s.Running,
			Promisc: s.Promisc,
			IPv4:    s.IPv4,
			IPv6:    s.IPv6,
			VlanID:  NoVlan,
		}
		switch {
		case s.VlanID >= 0:
			nif.Type = Vlan
			nif.VlanID = s.VlanID
			nif.ParentIndex = s.VlanParent
		case s.IsBond:
			nif.Type = Bond
		case s.IsBridge:
			nif.Type = Bridge
		case s.IsWireless:
			nif.Type = Wireless
		case s.IsTap:
			nif.Type = Tap
		default:
			nif.Type = Phys
			if s.MasterIndex != 0 {
				nif.ParentIndex = s.MasterIndex
			}
		}
		tbl.byIndex[idx] = nif
	}

	// Inherit the parent's hwaddr for VLAN children that report none of
	// their own, per the specification's invariant that a VLAN's hwaddr
	// equals its parent's unless overridden.
	for _, nif := range tbl.byIndex {
		if nif.Type == Vlan && len(nif.HWAddr) == 0 && nif.ParentIndex != 0 {
			if parent, ok := tbl.byIndex[nif.ParentIndex]; ok {
				nif.HWAddr = parent.HWAddr
			}
		}
		if nif.ParentIndex != 0 {
			if parent, ok := tbl.byIndex[nif.ParentIndex]; ok {
				parent.Children = append(parent.Children, nif.Index)
			} else {
				nif.ParentIndex = 0
			}
		}
	}

	return tbl
}

func isLoopbackHW(hw net.HardwareAddr) bool {
	for _, b := range hw {
		if b != 0 {
			return false
		}
	}
	return len(hw) > 0
}

// Table is the active, post-classification interface set, owned
// exclusively by the child process.
type Table struct {
	byIndex map[int]*NetIf
}

// Get returns the interface at index, or nil if absent.
func (t *Table) Get(index int) *NetIf { return t.byIndex[index] }

// All returns every interface in enumeration (index) order.
func (t *Table) All() []*NetIf {
	out := make([]*NetIf, 0, len(t.byIndex))
	for _, nif := range t.byIndex {
		out = append(out, nif)
	}
	sortByIndex(out)
	return out
}

// PhysCount returns the number of post-filter physical interfaces.
func (t *Table) PhysCount() int {
	n := 0
	for _, nif := range t.byIndex {
		if nif.Type == Phys {
			n++
		}
	}
	return n
}

// Equal reports whether two tables have the same interfaces with the same
// observable fields, order-insensitively — the idempotence property
// required of repeated enumeration passes.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.byIndex) != len(other.byIndex) {
		return false
	}
	for idx, a := range t.byIndex {
		b, ok := other.byIndex[idx]
		if !ok {
			return false
		}
		if a.Name != b.Name || a.Type != b.Type || a.MTU != b.MTU ||
			a.Up != b.Up || a.Running != b.Running || a.ParentIndex != b.ParentIndex ||
			a.VlanID != b.VlanID || string(a.HWAddr) != string(b.HWAddr) {
			return false
		}
	}
	return true
}

func sortByIndex(nifs []*NetIf) {
	for i := 1; i < len(nifs); i++ {
		for j := i; j > 0 && nifs[j].Index < nifs[j-1].Index; j-- {
			nifs[j], nifs[j-1] = nifs[j-1], nifs[j]
		}
	}
}
