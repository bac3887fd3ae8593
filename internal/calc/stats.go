// Basic calculation functions
package calc

import (
	"slices"
	"sync"
)

type number interface {
	~uint64 | ~int64 | ~float64
}

// Mean of values after dropping trimFraction of them from each end of the
// sorted order. At least one value always remains.
func TrimmedMean[T number](values []T, trimFraction float64) (mean T) {
	n := len(values)
	if n == 0 {
		return
	}
	trimFraction = max(trimFraction, 0)

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	trimCount := int(float64(n) * trimFraction)
	if trimCount*2 >= n {
		trimCount = (n - 1) / 2
	}
	kept := sorted[trimCount : n-trimCount]

	var sum T
	for _, v := range kept {
		sum += v
	}
	mean = sum / T(len(kept))
	return
}

// Fixed-size window of recent samples; the oldest is overwritten when full
type Window[T number] struct {
	mutex   sync.Mutex
	samples []T
	next    int
	full    bool
}

func NewWindow[T number](size int) *Window[T] {
	return &Window[T]{samples: make([]T, max(size, 1))}
}

func (window *Window[T]) Add(sample T) {
	window.mutex.Lock()
	window.samples[window.next] = sample
	window.next = (window.next + 1) % len(window.samples)
	if window.next == 0 {
		window.full = true
	}
	window.mutex.Unlock()
}

// Returns the retained samples, oldest first, and empties the window
func (window *Window[T]) Drain() (samples []T) {
	window.mutex.Lock()
	defer window.mutex.Unlock()

	if window.full {
		samples = append(samples, window.samples[window.next:]...)
	}
	samples = append(samples, window.samples[:window.next]...)
	window.next = 0
	window.full = false
	return
}
