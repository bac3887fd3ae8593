package beats

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/pkg/protocol"
)

// Writes a notice and its delivery metadata to the configured beats server
func (mod *OutModule) Write(ctx context.Context, notice *protocol.Notice, from netip.AddrPort) (sent int, err error) {
	if mod == nil {
		return
	}

	fields := make([]string, 0, len(notice.Body))
	for _, field := range notice.Body {
		fields = append(fields, string(field))
	}

	event := map[string]interface{}{
		// Minimum required fields
		"@timestamp": notice.Time().UTC(),
		"message":    strings.Join(fields, "\n"),

		"source": map[string]interface{}{
			"ip":   from.Addr().String(),
			"port": from.Port(),
		},
		"agent": map[string]interface{}{
			"program": global.ProgBaseName,
			"version": global.ProgVersion,
			"pid":     os.Getpid(),
		},
		"zephyr": map[string]interface{}{
			"uid":           notice.UID.String(),
			"kind":          notice.Kind.String(),
			"class":         notice.Class,
			"instance":      notice.Instance,
			"opcode":        notice.Opcode,
			"sender":        notice.Sender,
			"recipient":     notice.Recipient,
			"auth":          notice.Authenticated.String(),
			"fields":        fields,
			"defaultFormat": notice.DefaultFormat,
		},
	}
	events := []interface{}{event}

	sent, err = mod.sink.Send(events)
	if err != nil {
		err = fmt.Errorf("failed sending notice %s to %s: %w", notice.UID, mod.endpoint, err)
		return
	}
	logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
		"forwarded notice %s to %s\n", notice.UID, mod.endpoint)
	return
}
