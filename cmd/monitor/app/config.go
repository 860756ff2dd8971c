package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/environmental-monitor/internal/publish"
	"github.com/roman-kulish/environmental-monitor/internal/sample"
	"github.com/roman-kulish/environmental-monitor/internal/sampler"
	"github.com/roman-kulish/environmental-monitor/internal/sensor"
	"github.com/roman-kulish/environmental-monitor/internal/sensor/command"
	"github.com/roman-kulish/environmental-monitor/internal/sensor/simulated"
	"github.com/roman-kulish/environmental-monitor/internal/stream"
	"github.com/roman-kulish/environmental-monitor/internal/window"
)

const (
	DriverSimulated = "simulated"
	DriverCommand   = "command"

	defaultDataDirectory   = "."
	defaultDBFileName      = "environmental_monitor.db"
	defaultListen          = ":5006"
	defaultHTTPTimeout     = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Sampler  SamplerConfig `yaml:"sampler"`
	Sensors  SensorsConfig `yaml:"sensors"`
	Storage  StorageConfig `yaml:"storage"`
	Stream   StreamConfig  `yaml:"stream"`
	HTTP     HTTPConfig    `yaml:"http"`
	Publish  PublishConfig `yaml:"publish"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level returns the configured log level, INFO if unset
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level '%s'", s.LogLevel)
	}
	return level, nil
}

// SamplerConfig represents sampling scheduler settings
type SamplerConfig struct {
	Cadence           Duration               `yaml:"cadence"`
	ReadTimeout       Duration               `yaml:"readTimeout"`
	PollInterval      Duration               `yaml:"pollInterval"`
	PublishTimeout    Duration               `yaml:"publishTimeout"`
	SettleReads       int                    `yaml:"settleReads"`
	TemperatureMode   sample.TemperatureMode `yaml:"temperatureMode"`
	UVIntegrationTime sample.IntegrationTime `yaml:"uvIntegrationTime"`
	Backoff           BackoffConfig          `yaml:"backoff"`
	DegradedThreshold int                    `yaml:"degradedThreshold"`
}

// BackoffConfig bounds the delay between failed sampling attempts. Zero values
// disable backoff: a failed attempt is retried at the next poll.
type BackoffConfig struct {
	Min Duration `yaml:"min"`
	Max Duration `yaml:"max"`
}

// SensorsConfig selects the sensor backend
type SensorsConfig struct {
	Driver     string            `yaml:"driver"`
	Simulated  *simulated.Config `yaml:"simulated"`
	Climate    *command.Config   `yaml:"climate"`
	AirQuality *command.Config   `yaml:"airQuality"`
	Light      *command.Config   `yaml:"light"`
	UV         *command.Config   `yaml:"uv"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	FileName      string `yaml:"fileName"`
}

// StreamConfig represents display session settings
type StreamConfig struct {
	Rollover     int      `yaml:"rollover"`
	TickInterval Duration `yaml:"tickInterval"`
	SessionTTL   Duration `yaml:"sessionTTL"` // Idle sessions are closed after this long
}

// HTTPConfig represents the query server settings
type HTTPConfig struct {
	Listen          string   `yaml:"listen"`
	AllowedOrigins  []string `yaml:"allowedOrigins"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// PublishConfig enables the optional sample publishers
type PublishConfig struct {
	Redis *publish.RedisConfig `yaml:"redis"`
	MQTT  *publish.MQTTConfig  `yaml:"mqtt"`
}

// LoadConfig reads, defaults and validates the configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	s := &c.Sampler
	if s.Cadence == 0 {
		s.Cadence = Duration(sampler.DefaultCadence)
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(sampler.DefaultReadTimeout)
	}
	if s.PollInterval == 0 {
		s.PollInterval = Duration(sampler.DefaultPollInterval)
	}
	if s.PublishTimeout == 0 {
		s.PublishTimeout = Duration(sampler.DefaultPublishTimeout)
	}
	if s.SettleReads == 0 {
		s.SettleReads = sensor.DefaultSettleReads
	}
	if s.TemperatureMode == "" {
		s.TemperatureMode = sample.TemperatureExact
	}
	if s.UVIntegrationTime == "" {
		s.UVIntegrationTime = sample.Integration1T
	}
	if s.DegradedThreshold == 0 {
		s.DegradedThreshold = sampler.DefaultDegradedThreshold
	}

	if c.Sensors.Driver == "" {
		c.Sensors.Driver = DriverSimulated
	}

	if c.Storage.DataDirectory == "" {
		c.Storage.DataDirectory = defaultDataDirectory
	}
	if c.Storage.FileName == "" {
		c.Storage.FileName = defaultDBFileName
	}

	if c.Stream.Rollover == 0 {
		c.Stream.Rollover = window.DefaultRollover
	}
	if c.Stream.TickInterval == 0 {
		c.Stream.TickInterval = c.Sampler.Cadence
	}
	if c.Stream.SessionTTL == 0 {
		c.Stream.SessionTTL = Duration(stream.DefaultSessionTTL)
	}

	h := &c.HTTP
	if h.Listen == "" {
		h.Listen = defaultListen
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = Duration(defaultHTTPTimeout)
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = Duration(defaultHTTPTimeout)
	}
	if h.IdleTimeout == 0 {
		h.IdleTimeout = Duration(4 * defaultHTTPTimeout)
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
}

func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if err := c.Sampler.Validate(); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	if err := c.Sensors.Validate(); err != nil {
		return fmt.Errorf("sensors: %w", err)
	}
	if c.Stream.Rollover <= 0 {
		return fmt.Errorf("stream: rollover must be positive: %d", c.Stream.Rollover)
	}
	if c.Stream.TickInterval <= 0 {
		return fmt.Errorf("stream: tick interval must be positive: %s", c.Stream.TickInterval)
	}
	if c.Stream.SessionTTL < c.Stream.TickInterval {
		return fmt.Errorf("stream: session TTL %s is shorter than the tick interval %s", c.Stream.SessionTTL, c.Stream.TickInterval)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if c.Publish.Redis != nil {
		if err := c.Publish.Redis.Validate(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	if c.Publish.MQTT != nil {
		if err := c.Publish.MQTT.Validate(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}

func (c *SamplerConfig) Validate() error {
	for name, d := range map[string]Duration{
		"cadence":      c.Cadence,
		"readTimeout":  c.ReadTimeout,
		"pollInterval":   c.PollInterval,
		"publishTimeout": c.PublishTimeout,
		"backoff.min":  c.Backoff.Min,
		"backoff.max":  c.Backoff.Max,
	} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if c.Cadence == 0 || c.ReadTimeout == 0 || c.PollInterval == 0 || c.PublishTimeout == 0 {
		return fmt.Errorf("cadence, readTimeout, pollInterval and publishTimeout must be positive")
	}
	if c.SettleReads < 1 {
		return fmt.Errorf("settleReads must be at least 1: %d", c.SettleReads)
	}
	if c.Backoff.Max < c.Backoff.Min {
		return fmt.Errorf("backoff max %s is less than min %s", c.Backoff.Max, c.Backoff.Min)
	}
	if c.DegradedThreshold < 1 {
		return fmt.Errorf("degradedThreshold must be at least 1: %d", c.DegradedThreshold)
	}
	if err := c.TemperatureMode.Validate(); err != nil {
		return err
	}
	return c.UVIntegrationTime.Validate()
}

func (c *SensorsConfig) Validate() error {
	switch c.Driver {
	case DriverSimulated:
		return nil

	case DriverCommand:
		for name, dc := range map[string]*command.Config{
			sensor.DeviceClimate:    c.Climate,
			sensor.DeviceAirQuality: c.AirQuality,
			sensor.DeviceLight:      c.Light,
			sensor.DeviceUV:         c.UV,
		} {
			if dc == nil {
				return fmt.Errorf("%s: device configuration is required", name)
			}
			if err := dc.Validate(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown driver '%s'", c.Driver)
	}
}

func (c *HTTPConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	for name, d := range map[string]Duration{
		"readTimeout":     c.ReadTimeout,
		"writeTimeout":    c.WriteTimeout,
		"idleTimeout":     c.IdleTimeout,
		"shutdownTimeout": c.ShutdownTimeout,
	} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
