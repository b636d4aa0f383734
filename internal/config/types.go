package config

// Config is the on-disk configuration (JSON or YAML).
//
// Every section is optional: Parse starts from Default() and the file only
// overrides what it sets. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m"); intervals also accept the forms understood by
// repeater.ParseInterval.
type Config struct {
	Ditto   DittoConfig    `json:"ditto"`
	Load    LoadConfig     `json:"load"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	HTTP    HTTPConfig     `json:"http,omitempty"`
}

// DittoConfig configures the registry client. Environment variables
// (DITTO_BASE, DITTO_AUTH_BASIC, DITTO_USERNAME, DITTO_PASSWORD, DITTO_TIMEOUT)
// override these values.
type DittoConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	AuthBasic string `json:"auth_basic,omitempty"` // never logged
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"` // never logged
	// Timeout is a Go duration string or a bare number of seconds.
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// LoadConfig describes the synthetic load.
type LoadConfig struct {
	Namespace string      `json:"namespace"`
	Stations  ClassConfig `json:"stations"`
	Buses     ClassConfig `json:"buses"`

	// Duration bounds the run; "0s" or empty runs until interrupted.
	Duration string `json:"duration,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
	// Seed fixes the random source; 0 seeds from the clock.
	Seed int64 `json:"seed,omitempty"`
	// Base is the [lat, lon] the fleets are placed around.
	Base []float64 `json:"base,omitempty"`
	// JoinTimeout bounds how long shutdown waits for each task.
	JoinTimeout string `json:"join_timeout,omitempty"`
}

// ClassConfig is the per-class batch size, pool size and tick interval.
// Count 0 disables the class. Pool 0 means max(count, 100).
type ClassConfig struct {
	Count    int    `json:"count"`
	Pool     int    `json:"pool,omitempty"`
	Interval string `json:"interval"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional push journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dittoload.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HTTPConfig controls the optional diagnostics endpoint
// (/healthz, /metrics, /debug/tasks, /debug/pprof).
//
// Prefer binding to localhost (e.g. "127.0.0.1:9090").
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}

const (
	DefaultNamespace        = "org.example"
	DefaultStationsCount    = 100
	DefaultStationsInterval = "30s"
	DefaultBusesCount       = 100
	DefaultBusesInterval    = "5s"
	DefaultJoinTimeout      = "5s"
	DefaultHTTPAddr         = "127.0.0.1:9090"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Load: LoadConfig{
			Namespace:   DefaultNamespace,
			Stations:    ClassConfig{Count: DefaultStationsCount, Interval: DefaultStationsInterval},
			Buses:       ClassConfig{Count: DefaultBusesCount, Interval: DefaultBusesInterval},
			JoinTimeout: DefaultJoinTimeout,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
