// Context-carried buffered logger. Events are queued by producers and
// written out by a single watcher goroutine.
package logctx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"zephyr/internal/global"
)

// Log Event Structure
type Event struct {
	Timestamp time.Time
	Severity  string
	Tags      []string
	Message   string
}

type Logger struct {
	ID         string
	CreatedAt  time.Time
	Done       <-chan struct{}
	PrintLevel int // events above this verbosity are discarded (errors always kept)

	mutex sync.Mutex // protects queue and PrintLevel
	cond  *sync.Cond // signals watcher on new events
	queue []Event
	wg    sync.WaitGroup // holds exit until watchers finish
}

// Creates a logger without attaching it to a context
func NewLogger(id string, logLevel int, done <-chan struct{}) (logger *Logger) {
	logger = &Logger{
		ID:         id,
		CreatedAt:  time.Now(),
		Done:       done,
		PrintLevel: logLevel,
	}
	logger.cond = sync.NewCond(&logger.mutex)
	return
}

// Creates a logger and embeds it in a child of baseCtx
func New(baseCtx context.Context, id string, logLevel int, done <-chan struct{}) (ctxLogger context.Context) {
	ctxLogger = WithLogger(baseCtx, NewLogger(id, logLevel, done))
	return
}

func WithLogger(ctx context.Context, logger *Logger) (ctxLogger context.Context) {
	ctxLogger = context.WithValue(ctx, global.LoggerKey, logger)
	return
}

// Extracts Logger from context or returns nil
func GetLogger(ctx context.Context) (logger *Logger) {
	if ctx == nil {
		return
	}
	logger, _ = ctx.Value(global.LoggerKey).(*Logger)
	return
}

func SetLogLevel(ctx context.Context, newLevel int) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}
	logger.mutex.Lock()
	logger.PrintLevel = newLevel
	logger.mutex.Unlock()
}

// Entry for logging events. Message is only run through Sprintf when vars are supplied.
func LogEvent(ctx context.Context, eventLevel int, severity string, message string, vars ...any) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}

	if len(vars) > 0 && strings.Contains(message, "%") {
		message = fmt.Sprintf(message, vars...)
	}
	logger.record(eventLevel, severity, GetTagList(ctx), message)
}

func (logger *Logger) record(eventLevel int, severity string, tags []string, message string) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	if eventLevel > logger.PrintLevel && severity != global.ErrorLog {
		return
	}

	logger.queue = append(logger.queue, Event{
		Timestamp: time.Now(),
		Tags:      tags,
		Severity:  severity,
		Message:   message,
	})
	logger.cond.Signal()
}

// Number of events not yet consumed by a watcher
func (logger *Logger) Queued() (count int) {
	logger.mutex.Lock()
	count = len(logger.queue)
	logger.mutex.Unlock()
	return
}
