package window

import (
	"fmt"
	"sync"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

// DefaultRollover is the number of samples kept by a display window
const DefaultRollover = 300

// Window is a thread-safe, bounded, time-ordered sequence of the most recent
// samples. When full, appending evicts the oldest entry. Samples are expected to
// arrive in ascending timestamp order; Window does not reorder them.
type Window struct {
	rollover int

	mu    sync.Mutex
	ring  []sample.Sample
	start int // Index of the oldest sample
	size  int
}

// New creates an empty window holding at most rollover samples.
// Returns an error if rollover is not positive.
func New(rollover int) (*Window, error) {
	if rollover <= 0 {
		return nil, fmt.Errorf("invalid window rollover: %d", rollover)
	}
	return &Window{
		rollover: rollover,
		ring:     make([]sample.Sample, rollover),
	}, nil
}

// Seed replaces the window contents with samples, which must be ascending. Only
// the last Cap() samples are kept.
func (w *Window) Seed(samples []sample.Sample) {
	if len(samples) > w.rollover {
		samples = samples[len(samples)-w.rollover:]
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.ring)
	copy(w.ring, samples)
	w.start = 0
	w.size = len(samples)
}

// Push appends s as the newest sample, evicting the oldest when the window is full.
func (w *Window) Push(s sample.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size < w.rollover {
		w.ring[(w.start+w.size)%w.rollover] = s
		w.size++
		return
	}

	w.ring[w.start] = s
	w.start = (w.start + 1) % w.rollover
}

// Snapshot returns a copy of the window contents, oldest first.
func (w *Window) Snapshot() []sample.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]sample.Sample, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.ring[(w.start+i)%w.rollover]
	}
	return out
}

// Newest returns the most recent sample. The second result is false if the
// window is empty.
func (w *Window) Newest() (sample.Sample, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == 0 {
		return sample.Sample{}, false
	}
	return w.ring[(w.start+w.size-1)%w.rollover], true
}

// Len returns the current number of samples in the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Cap returns the rollover limit.
func (w *Window) Cap() int {
	return w.rollover
}
