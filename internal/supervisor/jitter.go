package supervisor

import (
	"math/rand"
	"time"
)

// JitterSource provides deterministic per-instance jitter. Instances keep
// their relative start offsets across a run, so a burst of starts does not
// line up again after restarts.
type JitterSource struct {
	seed int64
}

// NewJitterSource creates a jitter source with the given seed.
func NewJitterSource(seed int64) *JitterSource {
	return &JitterSource{seed: seed}
}

// NewJitterSourceFromTime creates a jitter source seeded from the current time.
func NewJitterSourceFromTime() *JitterSource {
	return NewJitterSource(time.Now().UnixNano())
}

// Seed returns the seed, for instances that derive their own backoff.
func (j *JitterSource) Seed() int64 {
	return j.seed
}

// ForInstance returns a random number generator seeded for one instance.
func (j *JitterSource) ForInstance(instanceID int) *rand.Rand {
	return rand.New(rand.NewSource(int64(instanceID) ^ j.seed))
}

// InstanceJitter returns a jitter duration for an instance within [0, maxJitter).
func (j *JitterSource) InstanceJitter(instanceID int, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(j.ForInstance(instanceID).Int63n(int64(maxJitter)))
}
