// Package server provides configuration helpers that define runtime defaults,
// validation, and environment parsing for the pooled HTTP server.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHost         = "0.0.0.0"
	defaultPort         = 1337
	defaultPoolSize     = 4
	defaultSlowDelay    = 5 * time.Second
	defaultStaticDir    = "."
	defaultMaxLineBytes = 8192
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"

	minMaxLineBytes = 16
)

// Config holds the server configuration settings. A Config is built once at
// startup and handed to NewServer by value; the server never mutates it.
type Config struct {
	Host         string
	Port         int
	PoolSize     int
	QueueLimit   int
	SlowDelay    time.Duration
	StaticDir    string
	MaxLineBytes int
	ReusePort    bool
	LogLevel     string
	LogFormat    string
}

func defaultConfig() Config {
	return Config{
		Host:         defaultHost,
		Port:         defaultPort,
		PoolSize:     defaultPoolSize,
		SlowDelay:    defaultSlowDelay,
		StaticDir:    defaultStaticDir,
		MaxLineBytes: defaultMaxLineBytes,
		LogLevel:     defaultLogLevel,
		LogFormat:    defaultLogFormat,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset or malformed values fall back to their defaults instead of failing.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if host := strings.TrimSpace(os.Getenv("HOST")); host != "" {
		cfg.Host = host
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = parsePort(port, cfg.Port)
	}

	if size := os.Getenv("POOL_SIZE"); size != "" {
		cfg.PoolSize = parseIntValue(size, cfg.PoolSize)
	}

	if limit := os.Getenv("QUEUE_LIMIT"); limit != "" {
		cfg.QueueLimit = parseNonNegative(limit, cfg.QueueLimit)
	}

	if delay := os.Getenv("SLEEP_DELAY"); delay != "" {
		cfg.SlowDelay = parseDelay(delay, cfg.SlowDelay)
	}

	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	if maxLine := os.Getenv("MAX_LINE"); maxLine != "" {
		if n := parseIntValue(maxLine, cfg.MaxLineBytes); n >= minMaxLineBytes {
			cfg.MaxLineBytes = n
		}
	}

	if reuse := os.Getenv("REUSE_PORT"); reuse != "" {
		if b, err := strconv.ParseBool(reuse); err == nil {
			cfg.ReusePort = b
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(level))
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = parseLogFormat(format, cfg.LogFormat)
	}

	return &cfg
}

// Address returns the host:port pair the server binds to.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Network returns the listen network for Host: "tcp4" for an IPv4 literal,
// "tcp6" for an IPv6 literal, and "tcp" for host names.
func (c Config) Network() string {
	ip := net.ParseIP(c.Host)
	switch {
	case ip == nil:
		return "tcp"
	case ip.To4() != nil:
		return "tcp4"
	default:
		return "tcp6"
	}
}

// Validate reports settings that no default can repair. Configs produced by
// NewConfigFromEnv always validate; hand-built ones may not.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPoolSize, c.PoolSize))
	}
	if c.QueueLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid queue limit %d", c.QueueLimit))
	}
	if c.SlowDelay <= 0 {
		errs = append(errs, fmt.Errorf("invalid slow delay %s", c.SlowDelay))
	}
	if c.MaxLineBytes < minMaxLineBytes {
		errs = append(errs, fmt.Errorf("max line bytes must be at least %d, got %d", minMaxLineBytes, c.MaxLineBytes))
	}

	return errors.Join(errs...)
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseNonNegative(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parsePort(value string, defaultValue int) int {
	if port, err := strconv.ParseUint(strings.TrimSpace(value), 10, 16); err == nil {
		return int(port)
	}
	return defaultValue
}

// parseDelay accepts a Go duration ("250ms") or a bare number of seconds.
func parseDelay(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseLogFormat(value, defaultValue string) string {
	switch f := strings.ToLower(strings.TrimSpace(value)); f {
	case "text", "json":
		return f
	default:
		return defaultValue
	}
}
