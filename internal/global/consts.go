package global

import "time"

const (
	// Descriptive Names for available verbosity levels
	VerbosityNone int = iota
	VerbosityStandard
	VerbosityProgress
	VerbosityData
	VerbosityFullData
	VerbosityDebug

	// Descriptive names for available severity levels
	ErrorLog string = "Error"
	WarnLog  string = "Warn"
	InfoLog  string = "Info"
)

const (
	ProgVersion  string = "v0.3.0"
	ProgBaseName string = "zctl"

	// Context keys
	LoggerKey  CtxKey = "logger"  // Event queue (mostly for variable log verbosity handling)
	LogTagsKey CtxKey = "logtags" // List of tags in order of broad->specific appended/popped at various parts of the program

	DefaultConfigPath string = "/etc/zephyr/zctl.json"
	DefaultKeyFile    string = "/etc/zephyr/session.keys"
	DefaultSubsFile   string = ".zephyr.subs" // relative to home directory
	DefaultRealm      string = "ATHENA.MIT.EDU"

	// Well known ports
	DefaultHostManagerPort int    = 2104 // zephyr-hm
	DefaultServerPort      int    = 2103 // zephyr-clt
	DefaultServerAddress   string = "127.0.0.1:2104"

	// Engine defaults
	DefaultAckTimeout        time.Duration = 10 * time.Second
	DefaultRetryInitial      time.Duration = 250 * time.Millisecond
	DefaultRetryMultiplier   float64       = 2.0
	DefaultRetryMax          time.Duration = 5 * time.Second
	DefaultReassemblyTimeout time.Duration = 30 * time.Second
	DefaultOutcomeRetention  time.Duration = 1 * time.Minute
	DefaultMaxQueuedNotices  int           = 4096
	DefaultMaxQueueBytes     uint64        = 64 << 20
	DefaultPollSlice         time.Duration = 100 * time.Millisecond

	// Metric collection
	DefaultMetricInterval time.Duration = 15 * time.Second
	DefaultMetricMaxAge   time.Duration = 1 * time.Hour

	// Local metric query server
	HTTPListenAddr   string        = "127.0.0.1"
	DataPath         string        = "/data/"
	TotalsPath       string        = "/totals/"
	HTTPReadTimeout  time.Duration = 5 * time.Second
	HTTPWriteTimeout time.Duration = 10 * time.Second
	HTTPIdleTimeout  time.Duration = 30 * time.Second

	// Namespacing Name Components
	NSMetric  string = "Metrics"
	NSTest    string = "Test"
	NSCLI     string = "CLI"
	NSSession string = "Session"
	NSEngine  string = "Engine"
	NSSubs    string = "Subscriptions"
	NSAuth    string = "Auth"
	NSNet     string = "Transport"
	NSQueue   string = "Queue"
	NSWatcher string = "Watcher"
	NSoBeats  string = "Beats"
	NSHTTP    string = "MetricServer"
)
