// Package config loads server settings from defaults, a .env file, the
// environment and an optional JSON file, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment variable the server reads.
const EnvPrefix = "RENDEZVOUS_"

type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Static    *StaticConfig    `json:"static"`
	Log       *LogConfig       `json:"log"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
}

type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	// AllowedOrigins lists browser origins allowed to open a WebSocket in
	// addition to the server's own host. "*" allows any.
	AllowedOrigins []string `json:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
	HubBufferSize  int           `json:"hub_buffer_size"`
}

type StaticConfig struct {
	Root string `json:"root"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// RateLimitConfig caps inbound messages per session. Messages = 0 disables it.
type RateLimitConfig struct {
	Messages int           `json:"messages"`
	Window   time.Duration `json:"window"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     256,
			MaxMessageSize: 64 * 1024,
			HubBufferSize:  1024,
		},
		Static: &StaticConfig{
			Root: "./public",
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: &RateLimitConfig{
			Messages: 0,
			Window:   time.Minute,
		},
	}
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must be longer than the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}
	if c.WebSocket.HubBufferSize <= 0 {
		return fmt.Errorf("hub buffer size must be positive")
	}

	if c.Static == nil || c.Static.Root == "" {
		return fmt.Errorf("static root cannot be empty")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Log.Format)
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.Messages < 0 {
		return fmt.Errorf("rate limit messages cannot be negative")
	}
	if c.RateLimit.Messages > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none)
// into the process environment. Variables already set are not overwritten.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv returns defaults overridden by RENDEZVOUS_* variables.
// Unparseable values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	setString(&config.HTTP.Host, "HTTP_HOST")
	setInt(&config.HTTP.Port, "HTTP_PORT")
	setDuration(&config.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT")
	setDuration(&config.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	setDuration(&config.HTTP.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT")
	if origins := os.Getenv(EnvPrefix + "HTTP_ALLOWED_ORIGINS"); origins != "" {
		config.HTTP.AllowedOrigins = splitList(origins)
	}

	setDuration(&config.WebSocket.PingInterval, "WEBSOCKET_PING_INTERVAL")
	setDuration(&config.WebSocket.ReadTimeout, "WEBSOCKET_READ_TIMEOUT")
	setDuration(&config.WebSocket.WriteTimeout, "WEBSOCKET_WRITE_TIMEOUT")
	setInt(&config.WebSocket.BufferSize, "WEBSOCKET_BUFFER_SIZE")
	setInt(&config.WebSocket.HubBufferSize, "WEBSOCKET_HUB_BUFFER_SIZE")
	if size := os.Getenv(EnvPrefix + "WEBSOCKET_MAX_MESSAGE_SIZE"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			config.WebSocket.MaxMessageSize = n
		}
	}

	setString(&config.Static.Root, "STATIC_ROOT")

	setString(&config.Log.Level, "LOG_LEVEL")
	setString(&config.Log.Format, "LOG_FORMAT")

	setInt(&config.RateLimit.Messages, "RATE_LIMIT_MESSAGES")
	setDuration(&config.RateLimit.Window, "RATE_LIMIT_WINDOW")
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConfigFile is the JSON layout of a config file. Durations are strings such
// as "30s".
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Static    *StaticConfig        `json:"static"`
	Log       *LogConfig           `json:"log"`
	RateLimit *RateLimitConfigFile `json:"rate_limit"`
}

type HTTPConfigFile struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     string   `json:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	BufferSize     int    `json:"buffer_size"`
	MaxMessageSize int64  `json:"max_message_size"`
	HubBufferSize  int    `json:"hub_buffer_size"`
}

type RateLimitConfigFile struct {
	Messages *int   `json:"messages"`
	Window   string `json:"window"`
}

// LoadFromFile returns defaults overridden by the JSON file at path.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f := file.HTTP; f != nil {
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.AllowedOrigins != nil {
			config.HTTP.AllowedOrigins = f.AllowedOrigins
		}
		if err := parseDurations(path, map[string]durationField{
			"http.read_timeout":     {f.ReadTimeout, &config.HTTP.ReadTimeout},
			"http.write_timeout":    {f.WriteTimeout, &config.HTTP.WriteTimeout},
			"http.shutdown_timeout": {f.ShutdownTimeout, &config.HTTP.ShutdownTimeout},
		}); err != nil {
			return err
		}
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		if f.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = f.MaxMessageSize
		}
		if f.HubBufferSize > 0 {
			config.WebSocket.HubBufferSize = f.HubBufferSize
		}
		if err := parseDurations(path, map[string]durationField{
			"websocket.ping_interval": {f.PingInterval, &config.WebSocket.PingInterval},
			"websocket.read_timeout":  {f.ReadTimeout, &config.WebSocket.ReadTimeout},
			"websocket.write_timeout": {f.WriteTimeout, &config.WebSocket.WriteTimeout},
		}); err != nil {
			return err
		}
	}

	if f := file.Static; f != nil && f.Root != "" {
		config.Static.Root = f.Root
	}

	if f := file.Log; f != nil {
		if f.Level != "" {
			config.Log.Level = f.Level
		}
		if f.Format != "" {
			config.Log.Format = f.Format
		}
	}

	if f := file.RateLimit; f != nil {
		if f.Messages != nil {
			config.RateLimit.Messages = *f.Messages
		}
		if err := parseDurations(path, map[string]durationField{
			"rate_limit.window": {f.Window, &config.RateLimit.Window},
		}); err != nil {
			return err
		}
	}

	return nil
}

type durationField struct {
	raw string
	dst *time.Duration
}

func parseDurations(path string, fields map[string]durationField) error {
	for name, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", name, path, err)
		}
		*f.dst = d
	}
	return nil
}

// LoadConfigWithPrecedence builds the runtime config: defaults, then .env,
// then environment variables, then the file at path if one is given.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config := LoadFromEnv()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
