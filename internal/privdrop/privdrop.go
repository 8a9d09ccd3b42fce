// Package privdrop drops the child process's privileges after the child
// has enumerated interfaces itself and before it starts its scheduler;
// the raw sockets are opened later by the parent, on the OpenTx commands
// the child sends once running. The Chroot/Setuid
// sequencing follows the teacher's cmd/chroot_linux.go jail setup,
// simplified to the single chdir+chroot+chdir dance this daemon needs
// (no bind mounts: the child does no filesystem I/O once unprivileged).
package privdrop

// Target names the unprivileged identity and optional filesystem root
// the child should drop into.
type Target struct {
	User string // empty means "do not change uid/gid"
	Root string // empty means "do not chroot"
}
