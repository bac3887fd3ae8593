package server

import (
	"context"
	"time"
	"zephyr/internal/metrics"
)

type httpLogWriter struct {
	ctx context.Context
}

type Jerror struct {
	Msg string `json:"error"`
}

type JTotal struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Total     uint64 `json:"total"`
}

// Read side of the metric registry
type Querier interface {
	Search(name string, namespacePrefix []string, start, end time.Time) []metrics.Metric
	Total(name string, namespacePrefix []string) uint64
}
