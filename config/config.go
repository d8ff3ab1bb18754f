package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Occupancy    OccupancyConfig    `yaml:"occupancy"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	Availability AvailabilityConfig `yaml:"availability"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	IoTAPIKey       string  `yaml:"iot_api_key"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// OccupancyConfig controls how sensor readings are resolved into occupancy state.
type OccupancyConfig struct {
	// StaleAfterSeconds evicts a cached occupancy status this long after its
	// last update. Zero keeps entries until the next reading overwrites them.
	StaleAfterSeconds int           `yaml:"stale_after_seconds"`
	StaleAfter        time.Duration `yaml:"-"`
	// Classrooms seeds the classroom registry at startup with full names
	// such as "A-101". Existing rows are left untouched.
	Classrooms []string `yaml:"classrooms"`
}

// RealtimeConfig holds the WebSocket hub configuration.
type RealtimeConfig struct {
	Path           string `yaml:"path"`
	SendBufferSize int    `yaml:"send_buffer_size"`
	AllowedOrigin  string `yaml:"allowed_origin"`
}

// AvailabilityConfig controls the periodic availability broadcast.
type AvailabilityConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the push notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Occupancy.StaleAfterSeconds < 0 {
		cfg.Occupancy.StaleAfterSeconds = 0
	}
	cfg.Occupancy.StaleAfter = time.Duration(cfg.Occupancy.StaleAfterSeconds) * time.Second

	if cfg.Realtime.Path == "" {
		cfg.Realtime.Path = "/ws"
	}
	if cfg.Realtime.SendBufferSize <= 0 {
		cfg.Realtime.SendBufferSize = 64
	}

	if cfg.Availability.IntervalSeconds <= 0 {
		cfg.Availability.IntervalSeconds = 60
	}
	cfg.Availability.Interval = time.Duration(cfg.Availability.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
