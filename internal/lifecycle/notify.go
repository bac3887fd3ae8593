// Process lifecycle for long-running client modes: exit signals and
// service manager readiness.
package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
)

const notifySocketEnv string = "NOTIFY_SOCKET"

// Tells systemd the session is open and receiving
func NotifyReady(ctx context.Context, status string) (err error) {
	err = notify(ctx, "READY=1", "STATUS="+status)
	return
}

// Tells systemd shutdown has begun
func NotifyStopping(ctx context.Context) (err error) {
	err = notify(ctx, "STOPPING=1")
	return
}

func NotifyStatus(ctx context.Context, status string) (err error) {
	err = notify(ctx, "STATUS="+status)
	return
}

// Writes one sd_notify datagram. No-op outside a notify-type service.
func notify(ctx context.Context, assignments ...string) (err error) {
	socketPath := os.Getenv(notifySocketEnv)
	if socketPath == "" {
		return
	}
	// Abstract namespace sockets are announced with a leading '@'
	if strings.HasPrefix(socketPath, "@") {
		socketPath = "\x00" + socketPath[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socketPath, Net: "unixgram"})
	if err != nil {
		err = fmt.Errorf("notify dial failed: %w", err)
		return
	}
	defer conn.Close()

	message := strings.Join(assignments, "\n")
	_, err = conn.Write([]byte(message))
	if err != nil {
		err = fmt.Errorf("notify write failed: %w", err)
		return
	}

	logctx.LogEvent(ctx, global.VerbosityDebug, global.InfoLog, "notified service manager: %q\n", message)
	return
}
