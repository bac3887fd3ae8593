package beats

import (
	lumberjack "github.com/elastic/go-lumber/client/v2"
)

// Forwards received notices to a Beats/Logstash endpoint
type OutModule struct {
	sink     *lumberjack.SyncClient
	endpoint string
}
