package netproto

import "net"

// Table is the static, ordered set of protocol modules iterated by both
// the transmission scheduler and the receive dispatcher.
type Table struct {
	modules []Module
}

// NewTable builds the fixed LLDP/CDP/EDP/FDP/NDP module table, keyed to
// the host's primary MAC address (used as the default chassis ID).
func NewTable(primaryMAC net.HardwareAddr) *Table {
	return &Table{modules: []Module{
		NewLLDP(primaryMAC),
		NewCDP(primaryMAC),
		NewEDP(primaryMAC),
		NewFDP(primaryMAC),
		NewNDP(primaryMAC),
	}}
}

// All returns every module in table order.
func (t *Table) All() []Module { return t.modules }

// Get returns the module for p.
func (t *Table) Get(p Proto) Module {
	for _, m := range t.modules {
		if m.Proto() == p {
			return m
		}
	}
	return nil
}

// Dispatch offers frame to every module's Check in table order, returning
// the first match. The specification guarantees at most one protocol's
// check can match a well-formed frame, since each keys off a distinct
// destination MAC; table order only matters for malformed/ambiguous input.
func (t *Table) Dispatch(frame []byte) (Module, int, bool) {
	for _, m := range t.modules {
		if off, ok := m.Check(frame); ok {
			return m, off, true
		}
	}
	return nil, 0, false
}
