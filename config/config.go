package config

import (
	"errors"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Backend     BackendConfig     `yaml:"backend"`
	Serial      SerialConfig      `yaml:"serial"`
	Mapping     MappingConfig     `yaml:"mapping"`
	Forwarder   ForwarderConfig   `yaml:"forwarder"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Reservation ReservationConfig `yaml:"reservation"`
	Database    DatabaseConfig    `yaml:"database"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the local HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// BackendConfig describes how to reach the parking data store.
type BackendConfig struct {
	URL                   string        `yaml:"url"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds"`
	RequestTimeout        time.Duration `yaml:"-"`
	SensorPutTimeoutMs    int           `yaml:"sensor_put_timeout_ms"`
	SensorPutTimeout      time.Duration `yaml:"-"`
	BreakerFailures       int           `yaml:"breaker_failures"`
	BreakerOpenSeconds    int           `yaml:"breaker_open_seconds"`
}

// SerialConfig holds the serial port parameters.
type SerialConfig struct {
	Port                  string        `yaml:"port"`
	BaudRate              int           `yaml:"baud_rate"`
	MaxReopenIntervalSecs int           `yaml:"max_reopen_interval_seconds"`
	MaxReopenInterval     time.Duration `yaml:"-"`
}

// MappingConfig controls sensor auto-detection against the data store.
// Auto-detection is on unless explicitly disabled; SensorID1/SensorID2 are
// the legacy fixed IDs used when it is disabled or has not produced a
// mapping yet.
type MappingConfig struct {
	AutoDetectSet          *bool         `yaml:"auto_detect"`
	AutoDetect             bool          `yaml:"-"`
	RefreshIntervalSeconds int           `yaml:"refresh_interval_seconds"`
	RefreshInterval        time.Duration `yaml:"-"`
	SensorID1              int           `yaml:"sensor_id1"`
	SensorID2              int           `yaml:"sensor_id2"`
}

// ForwarderConfig tunes the sensor-update change filter.
type ForwarderConfig struct {
	MinChangeInches float64       `yaml:"min_change_inches"`
	MinIntervalMs   int           `yaml:"min_interval_ms"`
	MinInterval     time.Duration `yaml:"-"`
	PoolSize        int           `yaml:"pool_size"`
}

// IngestConfig tunes the serial line state machine.
type IngestConfig struct {
	SequenceResetMs int           `yaml:"sequence_reset_ms"`
	SequenceReset   time.Duration `yaml:"-"`
}

// ReservationConfig tunes the hold-payment flow and availability polling.
type ReservationConfig struct {
	HoldAmount          float64       `yaml:"hold_amount"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path and applies environment
// overrides. A missing file is not an error; defaults plus environment are
// enough to run the bridge against a local backend.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err == nil {
		decodeErr := yaml.NewDecoder(f).Decode(&cfg)
		f.Close()
		// An empty file decodes to io.EOF; treat it like a missing one.
		if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
			return nil, decodeErr
		}
	} else if os.IsNotExist(err) {
		log.Printf("config file %s not found, using defaults and environment", path)
	} else {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv overlays the recognized environment variables on top of the file
// configuration. A local .env file is honored first, matching the tooling
// the Arduino bridge historically shipped with.
func (c *Config) applyEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("COM_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("BAUD_RATE"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			c.Serial.BaudRate = baud
		} else {
			log.Printf("warning: invalid BAUD_RATE %q ignored", v)
		}
	}
	if v := os.Getenv("AUTO_DETECT_SENSORS"); v != "" {
		enabled := v != "false"
		c.Mapping.AutoDetectSet = &enabled
	}
	if v := os.Getenv("SENSOR_ID1"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Mapping.SensorID1 = id
		}
	}
	if v := os.Getenv("SENSOR_ID2"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Mapping.SensorID2 = id
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 3001
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 5
	}

	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:8888"
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		c.Backend.RequestTimeoutSeconds = 5
	}
	c.Backend.RequestTimeout = time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
	if c.Backend.SensorPutTimeoutMs <= 0 {
		c.Backend.SensorPutTimeoutMs = 1500
	}
	c.Backend.SensorPutTimeout = time.Duration(c.Backend.SensorPutTimeoutMs) * time.Millisecond
	if c.Backend.BreakerFailures <= 0 {
		c.Backend.BreakerFailures = 5
	}
	if c.Backend.BreakerOpenSeconds <= 0 {
		c.Backend.BreakerOpenSeconds = 15
	}

	if c.Serial.Port == "" {
		c.Serial.Port = "COM5"
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = 9600
	}
	if c.Serial.MaxReopenIntervalSecs <= 0 {
		c.Serial.MaxReopenIntervalSecs = 30
	}
	c.Serial.MaxReopenInterval = time.Duration(c.Serial.MaxReopenIntervalSecs) * time.Second

	// Auto-detection is the default posture; routing falls back to the
	// static sensor IDs only on explicit opt-out.
	c.Mapping.AutoDetect = c.Mapping.AutoDetectSet == nil || *c.Mapping.AutoDetectSet

	if c.Mapping.RefreshIntervalSeconds <= 0 {
		c.Mapping.RefreshIntervalSeconds = 300
	}
	c.Mapping.RefreshInterval = time.Duration(c.Mapping.RefreshIntervalSeconds) * time.Second

	if c.Forwarder.MinChangeInches <= 0 {
		c.Forwarder.MinChangeInches = 1
	}
	if c.Forwarder.MinIntervalMs <= 0 {
		c.Forwarder.MinIntervalMs = 300
	}
	c.Forwarder.MinInterval = time.Duration(c.Forwarder.MinIntervalMs) * time.Millisecond
	if c.Forwarder.PoolSize <= 0 {
		c.Forwarder.PoolSize = 2
	}

	if c.Ingest.SequenceResetMs <= 0 {
		c.Ingest.SequenceResetMs = 2000
	}
	c.Ingest.SequenceReset = time.Duration(c.Ingest.SequenceResetMs) * time.Millisecond

	if c.Reservation.HoldAmount <= 0 {
		c.Reservation.HoldAmount = 30.00
	}
	if c.Reservation.PollIntervalSeconds <= 0 {
		c.Reservation.PollIntervalSeconds = 60
	}
	c.Reservation.PollInterval = time.Duration(c.Reservation.PollIntervalSeconds) * time.Second

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		c.WorkerPool.Size = 1
	}
}
