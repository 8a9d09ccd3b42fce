//go:build !linux

package platform

import (
	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netif"
)

// stubAdapter is the non-Linux placeholder. The specification calls for a
// /dev/bpfN-based adapter on BSD-family systems; that backend is not
// implemented here (see DESIGN.md) and this adapter reports PermissionDenied-
// shaped errors so callers fail loudly at startup instead of silently no-op'ing.
type stubAdapter struct{}

// New returns the non-Linux placeholder adapter.
func New() Adapter { return &stubAdapter{} }

func (a *stubAdapter) Enumerate() ([]netif.Snapshot, error) {
	return nil, errs.New(errs.PermissionDenied, "platform: interface enumeration not implemented on this OS")
}

func (a *stubAdapter) OpenRaw() (RawHandle, error) {
	return nil, errs.New(errs.PermissionDenied, "platform: raw sockets not implemented on this OS")
}

func (a *stubAdapter) SetDescr(ifname, descr string) error {
	return errs.New(errs.PermissionDenied, "platform: interface description writeback not implemented on this OS")
}
