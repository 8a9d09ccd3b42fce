//go:build linux

package privdrop

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/krisarmstrong/discoveryd/internal/errs"
)

// Apply chroots into t.Root (if set) and then permanently drops to
// t.User's uid/gid (if set). Order matters: chroot first, since after
// Setuid the process may no longer hold permission to chroot.
func Apply(t Target) error {
	if t.Root != "" {
		if err := syscall.Chdir(t.Root); err != nil {
			return errs.Wrap(errs.PermissionDenied, "chdir to chroot root "+t.Root, err)
		}
		if err := syscall.Chroot("."); err != nil {
			return errs.Wrap(errs.PermissionDenied, "chroot to "+t.Root, err)
		}
		if err := syscall.Chdir("/"); err != nil {
			return errs.Wrap(errs.PermissionDenied, "chdir to / inside chroot", err)
		}
	}

	if t.User == "" {
		return nil
	}
	uid, gid, err := resolveUser(t.User)
	if err != nil {
		return errs.Wrap(errs.ConfigInvalid, "resolve drop-privileges user "+t.User, err)
	}
	if err := unix.Setgroups(nil); err != nil {
		return errs.Wrap(errs.PermissionDenied, "clear supplementary groups", err)
	}
	if err := unix.Setgid(gid); err != nil {
		return errs.Wrap(errs.PermissionDenied, "setgid", err)
	}
	if err := unix.Setuid(uid); err != nil {
		return errs.Wrap(errs.PermissionDenied, "setuid", err)
	}
	return nil
}

func resolveUser(name string) (uid, gid int, err error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	return uid, gid, nil
}
