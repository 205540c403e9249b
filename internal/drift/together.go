package drift

import (
	"sync"
	"time"
)

// TogetherDetector notices a local play and a remote play landing within
// window of each other.
type TogetherDetector struct {
	window time.Duration

	mu         sync.Mutex
	lastLocal  time.Time
	lastRemote time.Time
}

func NewTogetherDetector(window time.Duration) *TogetherDetector {
	return &TogetherDetector{window: window}
}

// Local records a local play at t and reports whether it pairs with a remote one.
func (d *TogetherDetector) Local(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastLocal = t
	return d.match()
}

// Remote records a remote play received at t.
func (d *TogetherDetector) Remote(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastRemote = t
	return d.match()
}

// match consumes both plays so one pair is reported once.
func (d *TogetherDetector) match() bool {
	if d.lastLocal.IsZero() || d.lastRemote.IsZero() {
		return false
	}

	diff := d.lastLocal.Sub(d.lastRemote)
	if diff < 0 {
		diff = -diff
	}

	if diff > d.window {
		return false
	}

	d.lastLocal = time.Time{}
	d.lastRemote = time.Time{}

	return true
}
