package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"zephyr/internal/global"
	"zephyr/internal/metrics"
)

const defaultWindow = -1 * time.Minute

// Metric samples in a time window: /data/<namespace...>?name=&starttime=&endtime=
func handleData(ctx context.Context, registry Querier, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	namespace := namespaceFromPath(clientRequest.URL.Path, global.DataPath)
	name := clientRequest.FormValue("name")

	now := time.Now()
	start, err := parseQueryTime(clientRequest.FormValue("starttime"), now, now.Add(defaultWindow))
	if err != nil {
		jResp(ctx, serverResponder, http.StatusBadRequest, Jerror{Msg: err.Error()})
		return
	}
	end, err := parseQueryTime(clientRequest.FormValue("endtime"), now, now)
	if err != nil {
		jResp(ctx, serverResponder, http.StatusBadRequest, Jerror{Msg: err.Error()})
		return
	}

	results := []metrics.JMetric{}
	for _, metric := range registry.Search(name, namespace, start, end) {
		results = append(results, metric.Convert())
	}
	if len(results) == 0 {
		jResp(ctx, serverResponder, http.StatusNotFound, Jerror{Msg: "Search returned no results"})
		return
	}
	jResp(ctx, serverResponder, http.StatusOK, results)
}

// Running total of one metric: /totals/<namespace...>?name=
func handleTotals(ctx context.Context, registry Querier, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	namespace := namespaceFromPath(clientRequest.URL.Path, global.TotalsPath)
	name := clientRequest.FormValue("name")
	if name == "" {
		jResp(ctx, serverResponder, http.StatusBadRequest, Jerror{Msg: "name is required"})
		return
	}

	jResp(ctx, serverResponder, http.StatusOK, JTotal{
		Name:      name,
		Namespace: strings.Join(namespace, "/"),
		Total:     registry.Total(name, namespace),
	})
}

// Accepts "", "now", a signed offset like "-5m", or an RFC3339 timestamp
func parseQueryTime(raw string, now time.Time, fallback time.Time) (parsed time.Time, err error) {
	switch {
	case raw == "":
		parsed = fallback
	case raw == "now":
		parsed = now
	case raw[0] == '-' || raw[0] == '+':
		var offset time.Duration
		offset, err = time.ParseDuration(raw)
		if err != nil {
			err = fmt.Errorf("invalid time offset '%s'", raw)
			return
		}
		parsed = now.Add(offset)
	default:
		parsed, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			err = fmt.Errorf("invalid timestamp '%s'", raw)
		}
	}
	return
}
