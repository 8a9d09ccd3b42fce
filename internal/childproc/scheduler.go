// Package childproc implements the unprivileged child half of the
// privilege-separated runtime: the transmission scheduler, the receive/
// auto-enable state machine, and the peer table. It runs one goroutine
// per (proto,netif) transmit pair plus a receive loop over the IPC
// connection to the parent, not a single-threaded event loop. The per-
// (proto,netif) ticker-with-jitter shape is this daemon's own design
// (the teacher has no equivalent scheduler); the receive dispatch and
// auto-enable bookkeeping follow the specification directly, grounded
// on the teacher's pkg/protocols/neighbors.go for the peer-table side
// (factored out into internal/peertable) and its logging conventions
// for state-change notices.
package childproc

import (
	"math/rand"
	"time"
)

// jitter returns base adjusted by a uniform random factor in
// [-fraction, +fraction], per the specification's "jittered by ±10%"
// transmission cadence. Uses the top-level math/rand source, which is
// safe for concurrent use by the multiple per-(proto,netif) scheduler
// goroutines that call this, unlike a shared *rand.Rand.
func jitter(base time.Duration, fraction float64) time.Duration {
	if base <= 0 {
		return base
	}
	delta := (rand.Float64()*2 - 1) * fraction
	d := float64(base) * (1 + delta)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// defaultCadence is the specification's default transmission interval.
const defaultCadence = 30 * time.Second

// defaultJitterFraction is the specification's ±10% cadence jitter.
const defaultJitterFraction = 0.10
