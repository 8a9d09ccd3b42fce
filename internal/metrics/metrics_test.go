package metrics

import "testing"

func TestGetIsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatalf("Get() returned distinct registries across calls")
	}
}

func TestCountersAreUsable(t *testing.T) {
	r := Get()
	r.FramesSent.WithLabelValues("LLDP", "eth0").Inc()
	r.PeerCount.WithLabelValues("LLDP").Set(3)
}
