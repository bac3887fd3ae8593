package logctx

import (
	"fmt"
	"sort"
	"strings"
)

// Fixed width RFC3339 timestamp with nanoseconds always 9 digits
const timestampLayout string = "2006-01-02T15:04:05.000000000Z07:00"

// Stringify full event. Only parts that are present are printed.
func (event Event) Format() (text string) {
	var parts []string
	if !event.Timestamp.IsZero() {
		parts = append(parts, "["+event.Timestamp.Format(timestampLayout)+"]")
	}
	if len(event.Tags) > 0 {
		parts = append(parts, "["+strings.Join(event.Tags, "/")+"]")
	}
	if event.Severity != "" {
		parts = append(parts, "["+event.Severity+"]")
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	text = strings.Join(parts, " ")
	return
}

func suppressionNotice(event Event, count int) (text string) {
	text = Event{
		Timestamp: event.Timestamp,
		Tags:      event.Tags,
		Severity:  event.Severity,
		Message:   fmt.Sprintf("Suppressed %d repeated messages: %s", count, strings.TrimSuffix(event.Message, "\n")),
	}.Format() + "\n"
	return
}

// Snapshot of buffered events, oldest first, each terminated by a newline
func (logger *Logger) GetFormattedLogLines() (formatted []string) {
	logger.mutex.Lock()
	events := make([]Event, len(logger.queue))
	copy(events, logger.queue)
	logger.mutex.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].Timestamp, events[j].Timestamp
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.Before(tj)
	})

	formatted = make([]string, 0, len(events))
	for _, event := range events {
		line := event.Format()
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		formatted = append(formatted, line)
	}
	return
}
