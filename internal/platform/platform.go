// Package platform is the narrow adapter the specification requires
// between the portable daemon logic and per-OS kernel glue: interface
// enumeration and raw-socket I/O. Exactly one adapter is live per process
// (selected by build tag); the parent process is the only consumer of
// OpenRaw/Send/Recv/SetDescr, while the child calls Enumerate directly to
// rebuild its interface table.
package platform

import "github.com/krisarmstrong/discoveryd/internal/netif"

// RecvBufferSize is large enough for any frame OpenRaw's filter admits,
// including a VLAN-tagged maximum-length Ethernet frame.
const RecvBufferSize = 1600

// RawHandle is an opaque raw-socket handle returned by OpenRaw.
type RawHandle interface {
	// BindTx attaches the handle for transmission on the given interface.
	BindTx(ifindex int, ifname string) error
	// Send writes a complete frame to the bound interface.
	Send(frame []byte) error
	// Recv blocks for the next frame accepted by the attached filter,
	// returning the ifindex it arrived on.
	Recv(buf []byte) (n int, ifindex int, err error)
	// Close releases the underlying descriptor.
	Close() error
}

// Adapter is the platform contract from the specification's external
// interfaces section, kept intentionally small: enumerate, open a raw
// socket, bind/send/recv on it, and optionally write an interface
// description.
type Adapter interface {
	Enumerate() ([]netif.Snapshot, error)
	OpenRaw() (RawHandle, error)
	SetDescr(ifname, descr string) error
}
