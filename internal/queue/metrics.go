package queue

import (
	"sync/atomic"
	"time"
	"zephyr/internal/metrics"
)

type MetricStorage struct {
	Depth atomic.Uint64 // Current notices in queue
	Bytes atomic.Uint64 // Current datagram bytes in queue

	Pushed  atomic.Uint64
	Popped  atomic.Uint64
	Dropped atomic.Uint64 // rejected for exceeding a bound
}

func (inbox *Inbox) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   inbox.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("depth", inbox.Metrics.Depth.Load(), "count", metrics.Gauge, "Current number of notices waiting to be received")
	add("byte_sum", inbox.Metrics.Bytes.Load(), "bytes", metrics.Gauge, "Datagram bytes of all queued notices")
	add("pushed", inbox.Metrics.Pushed.Swap(0), "count", metrics.Counter, "Notices queued in the interval")
	add("popped", inbox.Metrics.Popped.Swap(0), "count", metrics.Counter, "Notices handed to the caller in the interval")
	add("dropped", inbox.Metrics.Dropped.Swap(0), "count", metrics.Counter, "Notices dropped because the queue was full in the interval")
	return
}
