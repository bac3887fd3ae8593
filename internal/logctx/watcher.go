package logctx

import (
	"io"
	"time"
)

const (
	dedupWindow      = 5 * time.Second
	dedupMinRepeats  = 10
	suppressCooldown = 1 * time.Minute
)

type dedupState struct {
	lastMsg          string
	repeatCount      int
	lastSuppressTime time.Time
}

// Starts a goroutine that drains events into output until logger.Done is closed
// and the queue is empty. Highly repetitive messages are collapsed.
func StartWatcher(logger *Logger, output io.Writer) {
	logger.wg.Add(1)

	go func() {
		defer logger.wg.Done()

		var dedup dedupState
		for {
			event, ok := logger.next()
			if !ok {
				return
			}

			now := time.Now()
			if event.Message != "" && event.Message == dedup.lastMsg && now.Sub(event.Timestamp) <= dedupWindow {
				dedup.repeatCount++
				if dedup.repeatCount >= dedupMinRepeats && now.Sub(dedup.lastSuppressTime) >= suppressCooldown {
					io.WriteString(output, suppressionNotice(event, dedup.repeatCount))
					dedup.lastSuppressTime = now
					dedup.repeatCount = 0
				}
				continue
			}
			dedup.lastMsg = event.Message
			dedup.repeatCount = 1

			io.WriteString(output, event.Format())
		}
	}()
}

// Blocks until an event is available. Returns false once done and drained.
func (logger *Logger) next() (event Event, ok bool) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	for len(logger.queue) == 0 {
		select {
		case <-logger.Done:
			return
		default:
		}
		logger.cond.Wait()
	}

	event = logger.queue[0]
	logger.queue = logger.queue[1:]
	ok = true
	return
}

// Hold main thread exit until watchers are finished
func (logger *Logger) Wait() {
	logger.wg.Wait()
}

// Wakes any watcher blocked waiting for events (used after closing Done)
func (logger *Logger) Wake() {
	logger.mutex.Lock()
	logger.cond.Broadcast()
	logger.mutex.Unlock()
}
