package metrics

import "time"

type MetricType string

const (
	Counter MetricType = "counter" // per-interval count, summed across intervals
	Gauge   MetricType = "gauge"   // point-in-time level
)

// Container for a metric and associated data
type Metric struct {
	Name        string // e.g. sent, timeouts, depth
	Description string
	Namespace   []string // e.g. "Session/Engine"
	Value       MetricValue
	Type        MetricType
	Timestamp   time.Time
}

type MetricValue struct {
	Raw      any    // uint64 or float64
	Unit     string // "count", "bytes", "ns"
	Interval time.Duration
}

// Anything that can report its own metrics for an interval
type Source interface {
	CollectMetrics(interval time.Duration) []Metric
}

// JSON export form
type JMetric struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Namespace   string       `json:"namespace"`
	Value       JMetricValue `json:"value"`
	Type        string       `json:"type"`
	Timestamp   string       `json:"timestamp"`
}

type JMetricValue struct {
	Raw      string `json:"raw"`
	Unit     string `json:"unit"`
	Interval string `json:"interval"`
}
