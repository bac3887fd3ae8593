// Time-sliced in-memory store for session metrics
package metrics

import (
	"slices"
	"strings"
	"sync"
	"time"
)

type timeSlice struct {
	start   time.Time
	metrics map[string]Metric // key: namespace/name
}

type Registry struct {
	mutex  sync.RWMutex
	slices []*timeSlice // oldest first
}

func New() *Registry {
	return &Registry{}
}

// Stores a batch under the interval slice containing now
func (registry *Registry) Record(now time.Time, interval time.Duration, batch []Metric) {
	start := now
	if interval > 0 {
		start = now.Truncate(interval)
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	var slice *timeSlice
	if count := len(registry.slices); count > 0 && registry.slices[count-1].start.Equal(start) {
		slice = registry.slices[count-1]
	} else {
		slice = &timeSlice{start: start, metrics: make(map[string]Metric)}
		registry.slices = append(registry.slices, slice)
		slices.SortStableFunc(registry.slices, func(a, b *timeSlice) int {
			return a.start.Compare(b.start)
		})
	}

	for _, metric := range batch {
		key := strings.Join(metric.Namespace, "/") + "/" + metric.Name
		existing, seen := slice.metrics[key]
		if seen && metric.Type == Counter {
			metric.Value.Raw = addRaw(existing.Value.Raw, metric.Value.Raw)
		}
		slice.metrics[key] = metric
	}
}

// Deletes slices older than maxAge
func (registry *Registry) Prune(now time.Time, maxAge time.Duration) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	registry.slices = slices.DeleteFunc(registry.slices, func(slice *timeSlice) bool {
		return now.Sub(slice.start) > maxAge
	})
}

// All metrics with the given name (empty matches all) under the namespace
// prefix, oldest first. Zero start/end leave that side open.
func (registry *Registry) Search(name string, namespacePrefix []string, start, end time.Time) (results []Metric) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	for _, slice := range registry.slices {
		if !start.IsZero() && slice.start.Before(start) {
			continue
		}
		if !end.IsZero() && slice.start.After(end) {
			continue
		}

		keys := make([]string, 0, len(slice.metrics))
		for key := range slice.metrics {
			keys = append(keys, key)
		}
		slices.Sort(keys)

		for _, key := range keys {
			metric := slice.metrics[key]
			if name != "" && metric.Name != name {
				continue
			}
			if !hasPrefix(metric.Namespace, namespacePrefix) {
				continue
			}
			results = append(results, metric)
		}
	}
	return
}

// Sum of a counter, or the latest value of a gauge, across retained slices
func (registry *Registry) Total(name string, namespacePrefix []string) (total uint64) {
	for _, metric := range registry.Search(name, namespacePrefix, time.Time{}, time.Time{}) {
		value, ok := metric.Value.Raw.(uint64)
		if !ok {
			continue
		}
		if metric.Type == Gauge {
			total = value
		} else {
			total += value
		}
	}
	return
}

func hasPrefix(namespace, prefix []string) bool {
	if len(namespace) < len(prefix) {
		return false
	}
	return slices.Equal(namespace[:len(prefix)], prefix)
}

func addRaw(a, b any) any {
	switch av := a.(type) {
	case uint64:
		if bv, ok := b.(uint64); ok {
			return av + bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av + bv
		}
	}
	return b
}
