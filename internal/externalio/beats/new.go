package beats

import (
	"fmt"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
)

const sendTimeout = 3 * time.Second

// Creates new beats (lumberjack) output module. Returns nil nil if no endpoint.
func NewOutput(endpoint string) (module *OutModule, err error) {
	if endpoint == "" {
		return
	}

	compression := lumberjack.CompressionLevel(3)
	timeout := lumberjack.Timeout(sendTimeout)

	ljClient, err := lumberjack.SyncDial(endpoint, compression, timeout)
	if err != nil {
		err = fmt.Errorf("failed connection to beats server: %w", err)
		return
	}

	module = &OutModule{
		sink:     ljClient,
		endpoint: endpoint,
	}
	return
}
