// Command discoveryd is a privilege-separated link-layer neighbor-
// discovery daemon. A single binary plays both roles: invoked normally
// it becomes the privileged parent and re-execs itself (passing one end
// of a socketpair as fd 3) to become the unprivileged child, mirroring
// the teacher's single-binary-multiple-roles cmd/niac/main.go structure
// generalized from a CLI-mode dispatch to a parent/child process split.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/krisarmstrong/discoveryd/internal/childproc"
	"github.com/krisarmstrong/discoveryd/internal/config"
	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/history"
	"github.com/krisarmstrong/discoveryd/internal/logd"
	"github.com/krisarmstrong/discoveryd/internal/metrics"
	"github.com/krisarmstrong/discoveryd/internal/netif"
	"github.com/krisarmstrong/discoveryd/internal/netproto"
	"github.com/krisarmstrong/discoveryd/internal/parentproc"
	"github.com/krisarmstrong/discoveryd/internal/platform"
	"github.com/krisarmstrong/discoveryd/internal/privdrop"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// childMarker is argv[1] in the re-exec'd child invocation, stripped
// before the remaining arguments reach config.Parse.
const childMarker = "-discoveryd-child"

func main() {
	args := os.Args[1:]
	isChild := len(args) > 0 && args[0] == childMarker
	if isChild {
		args = args[1:]
	}

	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := logd.CRIT
	switch {
	case cfg.Verbosity >= 3:
		level = logd.DEBUG
	case cfg.Verbosity == 2:
		level = logd.INFO
	case cfg.Verbosity == 1:
		level = logd.WARN
	}
	log := logd.New(cfg.Foreground, level, "discoveryd")

	var runErr error
	if isChild {
		runErr = runChild(cfg, log)
	} else {
		runErr = runParent(cfg, log)
	}
	if runErr != nil {
		if errs.Is(runErr, errs.Shutdown) {
			os.Exit(0)
		}
		log.Crit("fatal: %v", runErr)
		os.Exit(1)
	}
}

// runParent is the privileged half: it enumerates interfaces, opens the
// IPC socketpair, re-execs itself as the child, and runs the parent
// command-dispatch loop until shutdown.
func runParent(cfg *config.Config, log *logd.Logger) error {
	adapter := platform.New()
	snaps, err := adapter.Enumerate()
	if err != nil {
		return errs.Wrap(errs.IoFatal, "enumerate interfaces", err)
	}
	names := make(map[int]string, len(snaps))
	for _, s := range snaps {
		names[s.Index] = s.Name
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return errs.Wrap(errs.IoFatal, "create ipc socketpair", err)
	}
	parentFile := os.NewFile(uintptr(fds[0]), "discoveryd-parent-ipc")
	childFile := os.NewFile(uintptr(fds[1]), "discoveryd-child-ipc")
	defer parentFile.Close()

	conn, err := net.FileConn(parentFile)
	if err != nil {
		return errs.Wrap(errs.IoFatal, "wrap parent ipc fd", err)
	}

	self, err := os.Executable()
	if err != nil {
		return errs.Wrap(errs.IoFatal, "resolve executable path", err)
	}
	childArgs := append([]string{childMarker}, os.Args[1:]...)
	cmd := exec.Command(self, childArgs...)
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.IoFatal, "start child process", err)
	}
	childFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, closing ipc to child")
		cancel()
	}()

	p := parentproc.New(adapter, conn, log, names)
	runErr := p.Run(ctx)

	waitErr := cmd.Wait()
	if waitErr != nil {
		log.Warn("child exited: %v", waitErr)
	}
	return runErr
}

// runChild is the unprivileged half: it inherits fd 3 as its IPC
// connection to the parent, drops privileges, and runs the scheduler
// and receive loop until shutdown.
func runChild(cfg *config.Config, log *logd.Logger) error {
	const ipcFD = 3
	f := os.NewFile(uintptr(ipcFD), "discoveryd-child-ipc")
	conn, err := net.FileConn(f)
	if err != nil {
		return errs.Wrap(errs.PrivsepProtocol, "wrap child ipc fd", err)
	}
	f.Close()

	sys, err := sysinfo.Collect()
	if err != nil {
		return errs.Wrap(errs.IoFatal, "collect system info", err)
	}
	sys.Country = cfg.Country
	sys.Location = cfg.Location

	adapter := platform.New()
	snaps, err := adapter.Enumerate()
	if err != nil {
		return errs.Wrap(errs.IoFatal, "enumerate interfaces", err)
	}
	enum := netif.NewEnumerator(cfg.Exclude, cfg.IncludeTap, cfg.IncludeWireless)
	ifaces := enum.Classify(snaps)
	sys.PhysIfCount = ifaces.PhysCount()

	var primary net.HardwareAddr
	for _, nif := range ifaces.All() {
		if nif.Type == netif.Phys {
			primary = nif.HWAddr
			break
		}
	}

	if err := privdrop.Apply(privdrop.Target{User: cfg.DropUser}); err != nil {
		return err
	}

	table := netproto.NewTable(primary)
	child := childproc.New(conn, table, cfg, sys, log, ifaces)

	histStore, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Warn("run history disabled: %v", err)
	}
	defer histStore.Close()
	if prev, err := histStore.ListRuns(1); err == nil && len(prev) > 0 {
		log.Info("previous run ended %s, exit reason %q", prev[0].EndedAt.Format(time.RFC3339), prev[0].ExitReason)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, sending goodbyes")
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Warn("metrics server: %v", err)
			}
		}()
	}

	started := time.Now()
	runErr := child.Run(ctx)

	histStore.AddRun(history.Record{
		StartedAt:      started,
		EndedAt:        time.Now(),
		InterfaceCount: ifaces.PhysCount(),
		ExitReason:     exitReason(runErr),
	})
	return runErr
}

func exitReason(err error) string {
	if err == nil {
		return "clean"
	}
	if k, ok := errs.KindOf(err); ok {
		return k.String()
	}
	return err.Error()
}
