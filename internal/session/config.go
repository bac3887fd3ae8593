package session

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"os/user"
	"strings"
	"time"
	"zephyr/internal/global"
)

// Loads JSON config from file
func LoadConfig(path string) (cfg JSONConfig, err error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %w", err)
		return
	}

	err = json.Unmarshal(configFile, &cfg)
	if err != nil {
		err = fmt.Errorf("invalid config syntax in '%s': %v", path, err)
		return
	}

	return
}

// Parses JSON config into session config. Missing values are filled in by Open.
func (cfg JSONConfig) NewSessionConf() (config Config, err error) {
	// Identity
	config.Realm = cfg.Realm
	config.Sender = cfg.Sender
	config.KeyFile = cfg.KeyFile

	// Network settings
	config.Server = cfg.Server
	config.ReceiveBuffer = cfg.ReceiveBuffer
	config.MaxPacketLen = cfg.MaxPacketLen
	if cfg.LocalPort < 0 || cfg.LocalPort > 65535 {
		err = fmt.Errorf("local port %d out of range", cfg.LocalPort)
		return
	}
	config.LocalPort = uint16(cfg.LocalPort)
	for _, text := range cfg.TrustedServers {
		var addr netip.Addr
		addr, err = netip.ParseAddr(strings.TrimSpace(text))
		if err != nil {
			err = fmt.Errorf("invalid trusted server address '%s': %v", text, err)
			return
		}
		config.TrustedServers = append(config.TrustedServers, addr)
	}

	// Delivery settings
	config.AckTimeout, err = parseDuration(cfg.AckTimeout)
	if err != nil {
		err = fmt.Errorf("failed to parse acknowledgement timeout: %v", err)
		return
	}
	config.ReassemblyTimeout, err = parseDuration(cfg.ReassemblyTimeout)
	if err != nil {
		err = fmt.Errorf("failed to parse reassembly timeout: %v", err)
		return
	}
	config.Retry.Retries = cfg.Retries
	config.Retry.Multiplier = cfg.RetryBackoff.Multiplier
	config.Retry.Jitter = cfg.RetryBackoff.Jitter
	config.Retry.InitialDelay, err = parseDuration(cfg.RetryBackoff.Initial)
	if err != nil {
		err = fmt.Errorf("failed to parse initial retry delay: %v", err)
		return
	}
	config.Retry.MaxDelay, err = parseDuration(cfg.RetryBackoff.Max)
	if err != nil {
		err = fmt.Errorf("failed to parse maximum retry delay: %v", err)
		return
	}

	// Queue settings
	config.MaxQueuedNotices = cfg.Queue.MaxNotices
	config.MaxQueueBytes = cfg.Queue.MaxBytes

	// Outputs
	config.BeatsAddress = cfg.BeatsAddress

	// Metric settings
	config.MetricCollectionInterval, err = parseDuration(cfg.Metrics.Interval)
	if err != nil {
		err = fmt.Errorf("failed to parse metric collection interval time: %v", err)
		return
	}
	config.MetricMaxAge, err = parseDuration(cfg.Metrics.MaxAge)
	if err != nil {
		err = fmt.Errorf("failed to parse metric max age time: %v", err)
		return
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		err = fmt.Errorf("metric query server port %d out of range", cfg.Metrics.Port)
		return
	}
	config.MetricQueryServerPort = cfg.Metrics.Port
	return
}

// Empty strings are left for setDefaults
func parseDuration(text string) (duration time.Duration, err error) {
	if text == "" {
		return
	}
	duration, err = time.ParseDuration(text)
	if err != nil {
		return
	}
	if duration < 0 {
		err = fmt.Errorf("negative duration %s", text)
	}
	return
}

// Sets defaults for any missing/invalid values
func (cfg *Config) setDefaults() {
	// Identity
	if cfg.Realm == "" {
		cfg.Realm = os.Getenv("ZEPHYR_REALM")
	}
	if cfg.Realm == "" {
		cfg.Realm = global.DefaultRealm
	}
	if cfg.Sender == "" {
		cfg.Sender = os.Getenv("USER")
	}
	if cfg.Sender == "" {
		current, err := user.Current()
		if err == nil {
			cfg.Sender = current.Username
		}
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = global.DefaultKeyFile
	}

	// Network
	if cfg.Server == "" {
		cfg.Server = global.DefaultServerAddress
	}

	// Delivery
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = global.DefaultAckTimeout
	}
	if cfg.ReassemblyTimeout == 0 {
		cfg.ReassemblyTimeout = global.DefaultReassemblyTimeout
	}
	if cfg.Retry.Retries < 0 {
		cfg.Retry.Retries = 0
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = global.DefaultRetryInitial
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = global.DefaultRetryMultiplier
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = global.DefaultRetryMax
	}

	// Queue
	if cfg.MaxQueuedNotices <= 0 {
		cfg.MaxQueuedNotices = global.DefaultMaxQueuedNotices
	}

	// Metrics
	if cfg.MetricCollectionInterval == 0 {
		cfg.MetricCollectionInterval = global.DefaultMetricInterval
	}
	if cfg.MetricMaxAge == 0 {
		cfg.MetricMaxAge = global.DefaultMetricMaxAge
	}
}

// Copy of cfg with the defaults Open applies
func (cfg Config) WithDefaults() Config {
	cfg.setDefaults()
	return cfg
}
