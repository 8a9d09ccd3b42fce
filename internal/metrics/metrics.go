// Package metrics is discoveryd's Prometheus registry: per-protocol
// frame counters and peer-table gauges, served over /metrics on a
// loopback-only HTTP listener when enabled. The once-initialized
// global Registry and promauto construction follow the teacher's
// internal/metrics/prometheus.go exactly; the metric set is specific
// to neighbor-discovery (frames sent/received/dropped per protocol,
// live peer count) rather than firewall traffic counters.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
	// startedAt is when the process loaded this package; the Uptime
	// gauge is measured from it.
	startedAt = time.Now()
)

// Registry holds every metric discoveryd exports.
type Registry struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	EncodeErrors   *prometheus.CounterVec
	PeerCount      *prometheus.GaugeVec
	AutoEnabled    *prometheus.GaugeVec
	Uptime         prometheus.Gauge
}

// Get returns the global registry, creating and registering its
// metrics with the default Prometheus registerer on first call.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discoveryd_frames_sent_total",
		Help: "Total neighbor-discovery frames transmitted, by protocol and interface.",
	}, []string{"proto", "iface"})

	r.FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discoveryd_frames_received_total",
		Help: "Total neighbor-discovery frames successfully decoded, by protocol and interface.",
	}, []string{"proto", "iface"})

	r.FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discoveryd_frames_dropped_total",
		Help: "Total received frames dropped as malformed, by protocol.",
	}, []string{"proto"})

	r.EncodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discoveryd_encode_errors_total",
		Help: "Total frame encode failures, by protocol and interface.",
	}, []string{"proto", "iface"})

	r.PeerCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discoveryd_peers",
		Help: "Current number of live peer table entries, by protocol.",
	}, []string{"proto"})

	r.AutoEnabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discoveryd_protocol_enabled",
		Help: "1 if a protocol is currently enabled (configured or auto-enabled), else 0.",
	}, []string{"proto"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discoveryd_uptime_seconds",
		Help: "Seconds since the daemon started.",
	})

	return r
}

// Serve starts a loopback-only /metrics HTTP listener on addr and
// blocks until ctx is canceled, at which point it shuts the server down
// gracefully. Callers should only invoke this when the config's metrics
// address is non-empty.
func Serve(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("metrics address %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("metrics address %q is not a loopback address", addr)
	}
	mux := http.NewServeMux()
	handler := promhttp.Handler()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Get().Uptime.Set(time.Since(startedAt).Seconds())
		handler.ServeHTTP(w, r)
	}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
