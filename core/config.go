package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the control plane processes.
// It supports four-layer configuration priority:
//  1. Default values (lowest priority)
//  2. YAML file referenced by LIFTPLANE_CONFIG
//  3. Environment variables
//  4. Functional options (highest priority)
type Config struct {
	// Building layout
	Floors    int `yaml:"floors"`
	Elevators int `yaml:"elevators"`

	// SchedulerID names the scheduler instance; it becomes the
	// consumer name inside the scheduler consumer group.
	SchedulerID string `yaml:"scheduler_id"`

	Redis     RedisConfig     `yaml:"redis"`
	Timing    TimingConfig    `yaml:"timing"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RedisConfig describes the shared broker/store connection.
// URL takes precedence over the discrete fields when set.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// TimingConfig holds the simulated physical timings of an elevator.
type TimingConfig struct {
	FloorTravelTime   time.Duration `yaml:"floor_travel_time"`
	DoorOperationTime time.Duration `yaml:"door_operation_time"`
	DwellTime         time.Duration `yaml:"dwell_time"`
}

// HTTPConfig contains the gateway HTTP server configuration.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls the production logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"; auto-detected when empty
}

// TelemetryConfig controls distributed tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // OTLP gRPC endpoint; stdout exporter when empty
	ServiceName string `yaml:"service_name"`
}

// Option is a functional option for Config
type Option func(*Config)

// WithFloors sets the number of floors in the building
func WithFloors(n int) Option {
	return func(c *Config) { c.Floors = n }
}

// WithElevators sets the number of elevators in the building
func WithElevators(n int) Option {
	return func(c *Config) { c.Elevators = n }
}

// WithSchedulerID sets the scheduler instance id
func WithSchedulerID(id string) Option {
	return func(c *Config) { c.SchedulerID = id }
}

// WithRedisURL sets the broker/store connection URL
func WithRedisURL(url string) Option {
	return func(c *Config) { c.Redis.URL = url }
}

// WithTiming overrides the simulated elevator timings
func WithTiming(travel, door, dwell time.Duration) Option {
	return func(c *Config) {
		c.Timing.FloorTravelTime = travel
		c.Timing.DoorOperationTime = door
		c.Timing.DwellTime = dwell
	}
}

// WithHTTPAddr sets the gateway listen address
func WithHTTPAddr(addr string) Option {
	return func(c *Config) { c.HTTP.Addr = addr }
}

// NewConfig builds a Config from defaults, an optional YAML file,
// environment variables, and functional options, then validates it.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("LIFTPLANE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvironment()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Floors:      10,
		Elevators:   3,
		SchedulerID: "1",
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Timing: TimingConfig{
			FloorTravelTime:   1 * time.Second,
			DoorOperationTime: 1500 * time.Millisecond,
			DwellTime:         2 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "liftplane",
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, ErrInvalidConfiguration)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %v: %w", path, err, ErrInvalidConfiguration)
	}
	return nil
}

func (c *Config) applyEnvironment() {
	if v := os.Getenv("NUM_FLOORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Floors = n
		}
	}
	if v := os.Getenv("NUM_ELEVATORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Elevators = n
		}
	}
	if v := os.Getenv("SCHEDULER_ID"); v != "" {
		c.SchedulerID = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = n
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	if v := os.Getenv("FLOOR_TRAVEL_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timing.FloorTravelTime = d
		}
	}
	if v := os.Getenv("DOOR_OPERATION_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timing.DoorOperationTime = d
		}
	}
	if v := os.Getenv("DWELL_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timing.DwellTime = d
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("TELEMETRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
}

// Validate checks the configuration for invalid combinations
func (c *Config) Validate() error {
	if c.Floors < 2 {
		return fmt.Errorf("floors must be at least 2, got %d: %w", c.Floors, ErrInvalidConfiguration)
	}
	if c.Elevators < 1 {
		return fmt.Errorf("elevators must be at least 1, got %d: %w", c.Elevators, ErrInvalidConfiguration)
	}
	if c.SchedulerID == "" {
		return fmt.Errorf("scheduler id must not be empty: %w", ErrInvalidConfiguration)
	}
	if c.Timing.FloorTravelTime <= 0 || c.Timing.DoorOperationTime <= 0 || c.Timing.DwellTime < 0 {
		return fmt.Errorf("timings must be positive: %w", ErrInvalidConfiguration)
	}
	if c.Redis.URL == "" && c.Redis.Host == "" {
		return fmt.Errorf("redis host or url is required: %w", ErrMissingConfiguration)
	}
	return nil
}
