package peertable

import (
	"testing"
	"time"

	"github.com/krisarmstrong/discoveryd/internal/netproto"
)

func TestUpsertAndExpire(t *testing.T) {
	tbl := New()
	tbl.Upsert(1, netproto.LLDP, netproto.PeerFields{ChassisID: "aa:bb", PortID: "eth0", TTL: 1})
	if len(tbl.All()) != 1 {
		t.Fatalf("expected one entry")
	}
	touched := tbl.ExpireNow(time.Now().Add(2 * time.Second))
	if len(touched) != 1 || touched[0] != 1 {
		t.Fatalf("expected ifindex 1 touched, got %+v", touched)
	}
	if len(tbl.All()) != 0 {
		t.Fatalf("expected entry expired")
	}
}

func TestGoodbyeRemovesImmediately(t *testing.T) {
	tbl := New()
	tbl.Upsert(1, netproto.CDP, netproto.PeerFields{ChassisID: "aa", PortID: "p1", TTL: 120})
	if len(tbl.All()) != 1 {
		t.Fatalf("expected one entry before goodbye")
	}
	tbl.Upsert(1, netproto.CDP, netproto.PeerFields{ChassisID: "aa", PortID: "p1", TTL: 0})
	if len(tbl.All()) != 0 {
		t.Fatalf("expected goodbye to remove entry immediately")
	}
}

func TestForInterfaceFiltersByIfindex(t *testing.T) {
	tbl := New()
	tbl.Upsert(1, netproto.LLDP, netproto.PeerFields{ChassisID: "a", PortID: "p", TTL: 120})
	tbl.Upsert(2, netproto.LLDP, netproto.PeerFields{ChassisID: "b", PortID: "p", TTL: 120})
	if got := tbl.ForInterface(1); len(got) != 1 {
		t.Fatalf("ForInterface(1) = %+v, want 1 entry", got)
	}
}

func TestDistinctProtocolsDoNotCollide(t *testing.T) {
	tbl := New()
	fields := netproto.PeerFields{ChassisID: "a", PortID: "p", TTL: 120}
	tbl.Upsert(1, netproto.LLDP, fields)
	tbl.Upsert(1, netproto.CDP, fields)
	if len(tbl.All()) != 2 {
		t.Fatalf("expected two distinct entries for two protocols, got %d", len(tbl.All()))
	}
}
