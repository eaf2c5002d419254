package supervisor

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls the wait between runs of a restarted instance.
type BackoffConfig struct {
	Initial    time.Duration // first delay of a crash loop
	Max        time.Duration // delay cap
	Multiplier float64       // growth per consecutive unhealthy run
	JitterPct  float64       // total spread around the delay; 0.4 is ±20%

	// StableAfter is the uptime from which a run no longer counts towards
	// a crash loop.
	StableAfter time.Duration
}

// DefaultBackoffConfig returns the delays used when none are configured.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:     250 * time.Millisecond,
		Max:         5 * time.Second,
		Multiplier:  1.7,
		JitterPct:   0.4,
		StableAfter: 30 * time.Second,
	}
}

// withDefaults fills unset fields. A zero JitterPct stays zero.
func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Max < c.Initial {
		c.Max = max(d.Max, c.Initial)
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.StableAfter <= 0 {
		c.StableAfter = d.StableAfter
	}
	return c
}

// Backoff computes restart delays for one instance. Consecutive unhealthy
// runs grow the delay; a healthy run starts the sequence over. The jitter
// sequence depends only on the instance ID and seed.
type Backoff struct {
	config   BackoffConfig
	rng      *rand.Rand
	failures int // consecutive unhealthy runs
}

// NewBackoff creates the backoff of an instance.
func NewBackoff(instanceID int, seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg.withDefaults(),
		rng:    NewJitterSource(seed).ForInstance(instanceID),
	}
}

// Delay returns the wait before restarting after a run that ended with
// exitCode after uptime, and records that run.
func (b *Backoff) Delay(policy RestartPolicy, uptime time.Duration, exitCode int) time.Duration {
	if b.Healthy(policy, uptime, exitCode) {
		b.failures = 0
	}
	d := b.delay(b.failures)
	b.failures++
	return d
}

// Healthy reports whether a run resets the crash-loop count. Runs cut short
// by a timeout or kill never do. A long enough run always does, and under
// RestartAlways so does a clean exit, since a job that finishes and is
// rerun is not crashing.
func (b *Backoff) Healthy(policy RestartPolicy, uptime time.Duration, exitCode int) bool {
	switch {
	case exitCode == TimeoutExitCode || exitCode == KilledExitCode:
		return false
	case uptime >= b.config.StableAfter:
		return true
	default:
		return policy == RestartAlways && exitCode == 0
	}
}

// delay is the jittered delay after n consecutive unhealthy runs.
func (b *Backoff) delay(n int) time.Duration {
	d := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(n))
	d = min(d, float64(b.config.Max))
	if b.config.JitterPct > 0 {
		spread := d * b.config.JitterPct
		d += spread*b.rng.Float64() - spread/2
	}
	return time.Duration(max(d, 0))
}

// Failures returns the number of consecutive unhealthy runs recorded.
func (b *Backoff) Failures() int {
	return b.failures
}

// Reset forgets the crash loop.
func (b *Backoff) Reset() {
	b.failures = 0
}
