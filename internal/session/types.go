package session

import (
	"context"
	"net/netip"
	"sync"
	"time"
	"zephyr/internal/auth"
	"zephyr/internal/engine"
	"zephyr/internal/metrics"
	"zephyr/internal/network"
	"zephyr/internal/queue"
	"zephyr/internal/subscription"
)

type JSONConfig struct {
	Realm          string   `json:"realm"`
	Sender         string   `json:"sender"`
	KeyFile        string   `json:"keyFile,omitempty"`
	Server         string   `json:"server"`
	LocalPort      int      `json:"localPort,omitempty"`
	ReceiveBuffer  int      `json:"receiveBuffer,omitempty"`
	MaxPacketLen   int      `json:"maxPacketLen,omitempty"`
	TrustedServers []string `json:"trustedServers,omitempty"`

	AckTimeout        string `json:"ackTimeout,omitempty"`
	ReassemblyTimeout string `json:"reassemblyTimeout,omitempty"`
	Retries           int    `json:"retries,omitempty"`
	RetryBackoff      struct {
		Initial    string  `json:"initial,omitempty"`
		Multiplier float64 `json:"multiplier,omitempty"`
		Max        string  `json:"max,omitempty"`
		Jitter     bool    `json:"jitter,omitempty"`
	} `json:"retryBackoff"`

	Queue struct {
		MaxNotices int    `json:"maxNotices,omitempty"`
		MaxBytes   uint64 `json:"maxBytes,omitempty"`
	} `json:"queue"`

	BeatsAddress string `json:"beatsAddress,omitempty"`

	Metrics struct {
		Interval string `json:"collectionInterval,omitempty"`
		MaxAge   string `json:"maximumRetention,omitempty"`
		Port     int    `json:"queryServerPort,omitempty"`
	} `json:"metrics"`
}

type Config struct {
	// Identity
	Realm   string
	Sender  string
	KeyFile string

	// Network
	Server         string
	LocalPort      uint16
	ReceiveBuffer  int
	MaxPacketLen   int // 0 uses the protocol default, clamped to the path MTU
	TrustedServers []netip.Addr
	PollSlice      time.Duration

	// Delivery
	AckTimeout        time.Duration
	ReassemblyTimeout time.Duration
	Retry             engine.RetryPolicy

	// Queue boundaries
	MaxQueuedNotices int
	MaxQueueBytes    uint64

	// Outputs
	BeatsAddress string

	// Metrics
	MetricCollectionInterval time.Duration
	MetricMaxAge             time.Duration
	MetricQueryServerPort    int // 0 disables the local query server
}

// One client port bound to one server, with everything that speaks over it
type Session struct {
	Namespace     []string
	Engine        *engine.Engine
	Subscriptions *subscription.Manager
	Verifier      *auth.Verifier
	Inbox         *queue.Inbox
	Metrics       *metrics.Registry

	cfg       Config
	transport *network.Transport

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}
