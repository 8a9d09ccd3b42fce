package config

import (
	"testing"

	"github.com/krisarmstrong/discoveryd/internal/errs"
	"github.com/krisarmstrong/discoveryd/internal/netproto"
)

func TestNoProtocolsWithoutAutoEnableIsConfigInvalid(t *testing.T) {
	_, err := Parse([]string{"-f"})
	if !errs.Is(err, errs.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestAutoEnableAloneIsValid(t *testing.T) {
	cfg, err := Parse([]string{"-a", "-f"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.AutoEnable {
		t.Fatalf("expected AutoEnable true")
	}
}

func TestCountryCodeValidation(t *testing.T) {
	cases := []struct {
		code string
		ok   bool
	}{
		{"AB", true},
		{"abc", false},
		{"A1", false},
	}
	for _, c := range cases {
		_, err := Parse([]string{"-L", "-c", c.code})
		got := err == nil
		if got != c.ok {
			t.Errorf("country %q: got ok=%v, want %v (err=%v)", c.code, got, c.ok, err)
		}
	}
}

func TestUseDescrImpliesStoreDescr(t *testing.T) {
	cfg, err := Parse([]string{"-L", "-y"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.StoreDescr {
		t.Fatalf("-y should imply -z (StoreDescr)")
	}
}

func TestRepeatedVerbosityCounts(t *testing.T) {
	cfg, err := Parse([]string{"-L", "-v", "-v", "-v"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Verbosity != 3 {
		t.Fatalf("verbosity = %d, want 3", cfg.Verbosity)
	}
}

func TestExcludeRepeatable(t *testing.T) {
	cfg, err := Parse([]string{"-L", "-e", "eth1", "-e", "eth2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Exclude) != 2 || cfg.Exclude[0] != "eth1" || cfg.Exclude[1] != "eth2" {
		t.Fatalf("exclude = %+v", cfg.Exclude)
	}
}

func TestProtocolFlagsEnableOnlyNamed(t *testing.T) {
	cfg, err := Parse([]string{"-L", "-C"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Protocols[netproto.LLDP] || !cfg.Protocols[netproto.CDP] {
		t.Fatalf("expected LLDP and CDP enabled: %+v", cfg.Protocols)
	}
	if cfg.Protocols[netproto.EDP] || cfg.Protocols[netproto.FDP] || cfg.Protocols[netproto.NDP] {
		t.Fatalf("expected only LLDP/CDP enabled: %+v", cfg.Protocols)
	}
}
