package metrics

import (
	"context"
	"time"
)

// Collects from every source each interval until ctx is done, pruning
// slices older than maxAge. Runs one final collection on exit.
func Run(ctx context.Context, registry *Registry, interval time.Duration, maxAge time.Duration, sources ...Source) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			Collect(registry, time.Now(), interval, sources...)
			return
		case now := <-ticker.C:
			Collect(registry, now, interval, sources...)
			if maxAge > 0 {
				registry.Prune(now, maxAge)
			}
		}
	}
}

// Single collection pass
func Collect(registry *Registry, now time.Time, interval time.Duration, sources ...Source) {
	for _, source := range sources {
		registry.Record(now, interval, source.CollectMetrics(interval))
	}
}
