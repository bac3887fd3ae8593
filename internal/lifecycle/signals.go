package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
)

// Anything with resources to release on exit
type Closer interface {
	Close() error
}

// Cancels the returned context on the first SIGINT, SIGTERM or SIGQUIT and
// closes each closer. Call stop to detach the handler.
func SignalHandler(ctx context.Context, closers ...Closer) (sigCtx context.Context, stop func()) {
	sigCtx, cancel := context.WithCancel(ctx)

	// Channel for handling interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "Received signal: %v\n", sig)

			err := NotifyStopping(ctx)
			if err != nil {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify stopping failed: %v\n", err)
			}
			cancel()
			for _, closer := range closers {
				err = closer.Close()
				if err != nil {
					logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Shutdown error: %v\n", err)
				}
			}
		case <-done:
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() { close(done) })
		cancel()
	}
	return
}
