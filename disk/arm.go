package disk

import (
	"sync"
	"time"
)

// Arm is the single simulated disk head shared by every connection to
// a disk service. SeekTo blocks for the simulated seek time before
// updating the head position; the Arm's mutex, which callers take with
// Lock around SeekTo and the sector access, is the sole serialization
// point across R/W from different connections (spec.md §4.1, §5). Grounded in the teacher's util/timed_disk, which
// wraps a disk.Disk to record op latency around each call; here the
// wrapper doesn't just record latency, it manufactures it, since the
// spec calls for an actual simulated seek cost rather than a measured
// one.
type Arm struct {
	mu          sync.Mutex
	cylinder    int
	trackMicros int
}

func NewArm(trackMicros int) *Arm {
	return &Arm{trackMicros: trackMicros}
}

// SeekTo simulates moving the head to cylinder c, sleeping
// |c-cylinder|*trackMicros microseconds, then updates the head
// position. SeekTo does not lock by itself: call sites must call Lock
// before it and hold the lock for the duration of the sector access
// that follows, then Unlock, per spec.md §4.1's "atomic with respect to
// other R/W" requirement.
func (a *Arm) SeekTo(c int) {
	delta := c - a.cylinder
	if delta < 0 {
		delta = -delta
	}
	if delta > 0 && a.trackMicros > 0 {
		sleepMicros(delta * a.trackMicros)
	}
	a.cylinder = c
}

func (a *Arm) Lock()   { a.mu.Lock() }
func (a *Arm) Unlock() { a.mu.Unlock() }

// sleepMicros sleeps for the given duration, tolerating the sleep
// returning early; spec.md §4.1 only requires best-effort sleep.
func sleepMicros(us int) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}
