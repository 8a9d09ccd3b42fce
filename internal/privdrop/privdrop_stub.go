//go:build !linux

package privdrop

import "github.com/krisarmstrong/discoveryd/internal/errs"

// Apply is not implemented on non-Linux platforms; see internal/platform's
// stub adapter for the matching scope cut, justified in DESIGN.md.
func Apply(t Target) error {
	if t.User == "" && t.Root == "" {
		return nil
	}
	return errs.New(errs.PermissionDenied, "privilege drop is not implemented on this platform")
}
