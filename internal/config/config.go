package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Audio output modes
const (
	OutputDevice = "device"
	OutputWAV    = "wav"
	OutputNull   = "null"
)

// Config represents the complete receiver configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Audio   AudioConfig   `yaml:"audio"`
	Station StationConfig `yaml:"station"`
	Status  StatusConfig  `yaml:"status"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains UDP receiver configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port" env:"POSTLOCUTOR_UDP_PORT, overwrite"`
	BindAddress string `yaml:"bind_address" env:"POSTLOCUTOR_BIND_ADDRESS, overwrite"`
	BufferSize  int    `yaml:"buffer_size" env:"POSTLOCUTOR_SOCKET_BUFFER, overwrite"`
	ReadTimeout int    `yaml:"read_timeout"` // seconds
}

// HTTPConfig contains monitoring API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port" env:"POSTLOCUTOR_HTTP_PORT, overwrite"`
	Address string `yaml:"address" env:"POSTLOCUTOR_HTTP_ADDRESS, overwrite"`
	Enabled bool   `yaml:"enabled" env:"POSTLOCUTOR_HTTP_ENABLED, overwrite"`
}

// AudioConfig contains decode and playback parameters
type AudioConfig struct {
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	FrameDuration  int    `yaml:"frame_duration_ms"`
	BufferCapacity int    `yaml:"buffer_capacity" env:"POSTLOCUTOR_BUFFER_CAPACITY, overwrite"`
	Output         string `yaml:"output" env:"POSTLOCUTOR_AUDIO_OUTPUT, overwrite"`
	WAVPath        string `yaml:"wav_path" env:"POSTLOCUTOR_WAV_PATH, overwrite"`
	DeviceBufferMs int    `yaml:"device_buffer_ms"`
}

// StationConfig contains station tracker configuration
type StationConfig struct {
	Timeout int `yaml:"timeout_seconds"` // 0 disables expiry
}

// StatusConfig contains periodic status report configuration
type StatusConfig struct {
	Interval int `yaml:"interval_seconds"` // 0 disables the periodic report
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"POSTLOCUTOR_LOG_LEVEL, overwrite"`
	Format string `yaml:"format" env:"POSTLOCUTOR_LOG_FORMAT, overwrite"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:     8080,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			ReadTimeout: 1,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Audio: AudioConfig{
			SampleRate:     48000,
			Channels:       1,
			FrameDuration:  40,
			BufferCapacity: 50,
			Output:         OutputDevice,
			DeviceBufferMs: 80,
		},
		Station: StationConfig{
			Timeout: 300,
		},
		Status: StatusConfig{
			Interval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadEnv loads a .env file from the working directory into the process
// environment. The returned error satisfies os.IsNotExist when there is none.
func LoadEnv() error {
	return godotenv.Load()
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	return LoadWithLookuper(path, envconfig.OsLookuper())
}

// LoadWithLookuper is Load with an explicit environment source
func LoadWithLookuper(path string, lookuper envconfig.Lookuper) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if c.Station.Timeout < 0 {
		return fmt.Errorf("station config: timeout_seconds cannot be negative, got %d", c.Station.Timeout)
	}

	if c.Status.Interval < 0 {
		return fmt.Errorf("status config: interval_seconds cannot be negative, got %d", c.Status.Interval)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	validRates := map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}
	if !validRates[a.SampleRate] {
		return fmt.Errorf("sample_rate must be one of 8000, 12000, 16000, 24000, 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	validDurations := map[int]bool{10: true, 20: true, 40: true, 60: true}
	if !validDurations[a.FrameDuration] {
		return fmt.Errorf("frame_duration_ms must be one of 10, 20, 40, 60, got %d", a.FrameDuration)
	}

	if a.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity must be at least 1, got %d", a.BufferCapacity)
	}

	switch a.Output {
	case OutputDevice:
		if a.DeviceBufferMs < 0 {
			return fmt.Errorf("device_buffer_ms cannot be negative, got %d", a.DeviceBufferMs)
		}
	case OutputWAV:
		if a.WAVPath == "" {
			return fmt.Errorf("wav_path is required when output is '%s'", OutputWAV)
		}
	case OutputNull:
	default:
		return fmt.Errorf("output must be one of [device, wav, null], got '%s'", a.Output)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Any other output value is treated as a file path
	return nil
}

// GetReadTimeout returns the socket read deadline as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetFrameDuration returns the playback chunk duration as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameDuration) * time.Millisecond
}

// GetDeviceBuffer returns the device-side buffer length as a time.Duration
func (a *AudioConfig) GetDeviceBuffer() time.Duration {
	return time.Duration(a.DeviceBufferMs) * time.Millisecond
}

// GetTimeout returns the station inactivity timeout as a time.Duration
func (s *StationConfig) GetTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetInterval returns the status report interval as a time.Duration
func (s *StatusConfig) GetInterval() time.Duration {
	return time.Duration(s.Interval) * time.Second
}
