package logctx

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
	"zephyr/internal/global"
)

func TestLogEventFiltering(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	ctx := New(context.Background(), global.NSTest, global.VerbosityProgress, done)
	logger := GetLogger(ctx)
	if logger == nil {
		t.Fatalf("expected logger in context, got nil")
	}

	tests := []struct {
		name       string
		printLevel int
		eventLevel int
		severity   string
		message    string
		vars       []any
		wantCount  int
		wantText   string
	}{
		{
			name:       "at print level",
			printLevel: 2,
			eventLevel: 2,
			severity:   global.InfoLog,
			message:    "sent notice\n",
			wantCount:  1,
			wantText:   "sent notice\n",
		},
		{
			name:       "above print level dropped",
			printLevel: 1,
			eventLevel: 4,
			severity:   global.InfoLog,
			message:    "raw bytes\n",
			wantCount:  0,
		},
		{
			name:       "errors ignore print level",
			printLevel: 0,
			eventLevel: 5,
			severity:   global.ErrorLog,
			message:    "socket closed\n",
			wantCount:  1,
			wantText:   "socket closed\n",
		},
		{
			name:       "formatting applied",
			printLevel: 3,
			eventLevel: 1,
			severity:   global.WarnLog,
			message:    "dropped %d notices\n",
			vars:       []any{3},
			wantCount:  1,
			wantText:   "dropped 3 notices\n",
		},
		{
			name:       "verb without vars left alone",
			printLevel: 3,
			eventLevel: 1,
			severity:   global.InfoLog,
			message:    "100%d literal\n",
			wantCount:  1,
			wantText:   "100%d literal\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger.mutex.Lock()
			logger.queue = nil
			logger.mutex.Unlock()

			SetLogLevel(ctx, tt.printLevel)
			LogEvent(ctx, tt.eventLevel, tt.severity, tt.message, tt.vars...)

			if got := logger.Queued(); got != tt.wantCount {
				t.Fatalf("expected %d queued events, got %d", tt.wantCount, got)
			}
			if tt.wantCount == 0 {
				return
			}
			logger.mutex.Lock()
			event := logger.queue[0]
			logger.mutex.Unlock()
			if event.Message != tt.wantText {
				t.Errorf("message mismatch: got %q want %q", event.Message, tt.wantText)
			}
			if event.Severity != tt.severity {
				t.Errorf("severity mismatch: got %q want %q", event.Severity, tt.severity)
			}
			if time.Since(event.Timestamp) > time.Second {
				t.Errorf("event timestamp too old: %v", event.Timestamp)
			}
		})
	}
}

func TestLogEventWithoutLogger(t *testing.T) {
	// Must be a silent no-op
	LogEvent(context.Background(), global.VerbosityStandard, global.ErrorLog, "nobody listening\n")
}

func TestTagsCopyOnWrite(t *testing.T) {
	base := AppendCtxTag(context.Background(), global.NSSession)
	engine := AppendCtxTag(base, global.NSEngine)
	subs := AppendCtxTag(base, global.NSSubs)

	if got := GetTagList(base); !reflect.DeepEqual(got, []string{global.NSSession}) {
		t.Fatalf("parent tags mutated: %v", got)
	}
	if got := GetTagList(engine); !reflect.DeepEqual(got, []string{global.NSSession, global.NSEngine}) {
		t.Fatalf("unexpected engine tags: %v", got)
	}
	if got := GetTagList(subs); !reflect.DeepEqual(got, []string{global.NSSession, global.NSSubs}) {
		t.Fatalf("unexpected subscription tags: %v", got)
	}

	returned := GetTagList(engine)
	returned[0] = "mutated"
	if got := GetTagList(engine); got[0] != global.NSSession {
		t.Fatalf("returned slice aliases context storage")
	}

	popped := RemoveLastCtxTag(RemoveLastCtxTag(RemoveLastCtxTag(engine)))
	if got := GetTagList(popped); len(got) != 0 {
		t.Fatalf("expected empty tags after removing past start, got %v", got)
	}
}

func TestEventFormat(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 5, time.UTC)

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "all parts",
			event: Event{Timestamp: ts, Tags: []string{"Session", "Engine"}, Severity: "Warn", Message: "ack timeout"},
			want:  "[2026-03-14T09:26:53.000000005Z] [Session/Engine] [Warn] ack timeout",
		},
		{
			name:  "message only",
			event: Event{Message: "bare"},
			want:  "bare",
		},
		{
			name:  "empty",
			event: Event{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Format(); got != tt.want {
				t.Errorf("\ngot  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestGetFormattedLogLinesOrdering(t *testing.T) {
	logger := NewLogger(global.NSTest, global.VerbosityDebug, nil)
	base := time.Now()

	logger.queue = []Event{
		{Timestamp: base.Add(2 * time.Second), Message: "second"},
		{Message: "undated"},
		{Timestamp: base.Add(time.Second), Message: "first"},
	}

	lines := logger.GetFormattedLogLines()
	want := []string{"first", "second", "undated"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if !strings.Contains(lines[i], want[i]) || !strings.HasSuffix(lines[i], "\n") {
			t.Errorf("line %d: got %q, want containing %q with newline", i, lines[i], want[i])
		}
	}
}

func TestWatcherDrainsAndSuppresses(t *testing.T) {
	done := make(chan struct{})
	ctx := New(context.Background(), global.NSTest, global.VerbosityDebug, done)
	logger := GetLogger(ctx)

	var output bytes.Buffer
	StartWatcher(logger, &output)

	LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "first line\n")
	for i := 0; i < dedupMinRepeats+1; i++ {
		LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "stray ack ignored\n")
	}

	// Let the watcher drain before shutting down
	deadline := time.Now().Add(2 * time.Second)
	for logger.Queued() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	close(done)
	logger.Wake()
	logger.Wait()

	out := output.String()
	if !strings.Contains(out, "first line") {
		t.Fatalf("missing first line in output:\n%s", out)
	}
	if strings.Count(out, "stray ack ignored") != 2 {
		t.Fatalf("expected one original and one suppression line, got:\n%s", out)
	}
	if !strings.Contains(out, "Suppressed") {
		t.Fatalf("expected suppression notice, got:\n%s", out)
	}
}
