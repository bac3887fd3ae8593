package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Converts internal metric type to export (JSON) metric
func (inMetric Metric) Convert() (outMetric JMetric) {
	outMetric = JMetric{
		Name:        inMetric.Name,
		Description: inMetric.Description,
		Namespace:   strings.Join(inMetric.Namespace, "/"),
		Type:        string(inMetric.Type),
		Timestamp:   inMetric.Timestamp.Format(time.RFC3339Nano),
		Value: JMetricValue{
			Raw:      fmt.Sprintf("%v", inMetric.Value.Raw),
			Unit:     inMetric.Value.Unit,
			Interval: inMetric.Value.Interval.String(),
		},
	}
	return
}

// Writes one JSON object per line
func WriteJSON(w io.Writer, collection []Metric) (err error) {
	encoder := json.NewEncoder(w)
	for _, metric := range collection {
		err = encoder.Encode(metric.Convert())
		if err != nil {
			err = fmt.Errorf("failed to write metric %s: %w", metric.Name, err)
			return
		}
	}
	return
}
