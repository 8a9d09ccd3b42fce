// Package config builds the single explicit Config value threaded into
// both the parent and child initializers, per the specification's design
// note against ambient global state. Flag wiring follows the teacher's
// stdlib-flag legacy mode in cmd/niac/main.go rather than reaching for a
// subcommand framework, since core configuration here is flags-only.
package config

import (
	"flag"
	"fmt"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netproto"
	"github.com/krisarmstrong/discoveryd/internal/sysinfo"
)

// Config is built once from CLI flags and validated before the parent
// forks the child. Neither process reads flags or environment directly;
// both receive this value explicitly.
type Config struct {
	AutoEnable      bool
	Country         string
	Exclude         []string
	Foreground      bool
	Location        string
	MgmtIface       string
	UseMgmtAddrs    bool
	RunOnce         bool
	PerIfaceChassis bool
	Receive         bool
	Silent          bool
	IncludeTap      bool
	DropUser        string
	Verbosity       int
	IncludeWireless bool
	StoreDescr      bool
	UseDescr        bool
	Protocols       map[netproto.Proto]bool

	HistoryPath string // "disabled" (default) turns the run-history store off
	MetricsAddr string // "" (default) turns the /metrics listener off
}

// verbosityFlag is a flag.Value that counts repeated -v occurrences, the way
// getopt-style CLIs (including the original this daemon reimplements)
// treat repeated single-letter flags.
type verbosityFlag struct{ n *int }

func (v verbosityFlag) String() string { return "" }
func (v verbosityFlag) Set(string) error {
	*v.n++
	return nil
}
func (v verbosityFlag) IsBoolFlag() bool { return true }

// excludeFlag collects repeated -e occurrences into a slice.
type excludeFlag struct{ names *[]string }

func (e excludeFlag) String() string { return "" }
func (e excludeFlag) Set(v string) error {
	*e.names = append(*e.names, v)
	return nil
}

// Parse parses args (typically os.Args[1:]) into a Config and validates
// it, returning a ConfigInvalid error on any bad combination.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("discoveryd", flag.ContinueOnError)

	cfg := &Config{Protocols: make(map[netproto.Proto]bool)}

	fs.BoolVar(&cfg.AutoEnable, "a", false, "auto-enable protocols on first decoded frame")
	fs.StringVar(&cfg.Country, "c", "", "two-letter country code")
	fs.Var(excludeFlag{&cfg.Exclude}, "e", "exclude interface (repeatable)")
	fs.BoolVar(&cfg.Foreground, "f", false, "run in foreground, log to stderr")
	fs.StringVar(&cfg.Location, "l", "", "location string")
	fs.StringVar(&cfg.MgmtIface, "m", "", "management interface")
	fs.BoolVar(&cfg.UseMgmtAddrs, "n", false, "use management addresses on all interfaces")
	fs.BoolVar(&cfg.RunOnce, "o", false, "run once and exit")
	fs.BoolVar(&cfg.PerIfaceChassis, "q", false, "use per-interface chassis id")
	fs.BoolVar(&cfg.Receive, "r", false, "receive and decode neighbor frames")
	fs.BoolVar(&cfg.Silent, "s", false, "do not send frames")
	fs.BoolVar(&cfg.IncludeTap, "t", false, "include tun/tap interfaces")
	fs.StringVar(&cfg.DropUser, "u", "", "unprivileged user to drop privileges to")
	fs.Var(verbosityFlag{&cfg.Verbosity}, "v", "increase verbosity (repeatable)")
	fs.BoolVar(&cfg.IncludeWireless, "w", false, "include wireless interfaces")
	fs.BoolVar(&cfg.StoreDescr, "z", false, "store received info in interface description")
	fs.BoolVar(&cfg.UseDescr, "y", false, "prefer description-sourced identity (implies -z)")

	var enableLLDP, enableCDP, enableEDP, enableFDP, enableNDP bool
	fs.BoolVar(&enableLLDP, "L", false, "enable LLDP")
	fs.BoolVar(&enableCDP, "C", false, "enable CDP")
	fs.BoolVar(&enableEDP, "E", false, "enable EDP")
	fs.BoolVar(&enableFDP, "F", false, "enable FDP")
	fs.BoolVar(&enableNDP, "N", false, "enable NDP")

	fs.StringVar(&cfg.HistoryPath, "history", "disabled", "bbolt run-history database path, or \"disabled\"")
	fs.StringVar(&cfg.MetricsAddr, "metrics", "", "loopback address to serve /metrics on, empty disables it")

	if err := fs.Parse(args); err != nil {
		return nil, errs.Wrap(errs.ConfigInvalid, "parse flags", err)
	}

	cfg.Protocols[netproto.LLDP] = enableLLDP
	cfg.Protocols[netproto.CDP] = enableCDP
	cfg.Protocols[netproto.EDP] = enableEDP
	cfg.Protocols[netproto.FDP] = enableFDP
	cfg.Protocols[netproto.NDP] = enableNDP

	// The original's -y/-z argument parsing fell through without an
	// explicit break, leaving it ambiguous whether -y implies -z. Treated
	// here as two independent booleans except for this one explicit
	// implication, which is the more conservative reading of the
	// manpage's "-y also sets -z" description in the specification.
	if cfg.UseDescr {
		cfg.StoreDescr = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the specification calls out explicitly:
// at least one protocol enabled (or auto-enable), and a well-formed
// two-letter country code.
func (c *Config) Validate() error {
	anyEnabled := false
	for _, enabled := range c.Protocols {
		if enabled {
			anyEnabled = true
		}
	}
	if !anyEnabled && !c.AutoEnable {
		return errs.New(errs.ConfigInvalid, "no protocols enabled and -a (auto-enable) not set")
	}
	if c.Country != "" && !sysinfo.ValidateCountry(c.Country) {
		return errs.New(errs.ConfigInvalid, fmt.Sprintf("invalid country code %q: must be two uppercase ASCII letters", c.Country))
	}
	return nil
}
