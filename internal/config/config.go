// Package config loads greeter settings from defaults, an optional config
// file, GREETER_* environment variables and bound command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Transports accepted by Config.Transport.
const (
	TransportHTTPX = "httpx"
	TransportNet   = "net"
)

// EnvPrefix prefixes environment overrides: GREETER_ADDR,
// GREETER_HTTP_IDLE_TIMEOUT, GREETER_LOG_LEVEL, ...
const EnvPrefix = "GREETER"

// Config is the complete runtime configuration.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	Transport       string        `mapstructure:"transport"`
	Gzip            bool          `mapstructure:"gzip"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HTTP            HTTPConfig    `mapstructure:"http"`
	Log             LogConfig     `mapstructure:"log"`
}

// HTTPConfig holds server limits. Zero durations disable the timeout.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

// LogConfig selects the log level, format and destination. An empty File
// logs to stderr; otherwise the file is rotated by size.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var defaults = map[string]any{
	"addr":                     "127.0.0.1:8000",
	"transport":                TransportHTTPX,
	"gzip":                     false,
	"shutdown_timeout":         10 * time.Second,
	"http.read_header_timeout": 5 * time.Second,
	"http.read_timeout":        30 * time.Second,
	"http.write_timeout":       30 * time.Second,
	"http.idle_timeout":        60 * time.Second,
	"http.max_header_bytes":    8 << 10,
	"http.max_body_bytes":      int64(1 << 20),
	"log.level":                "info",
	"log.format":               "text",
	"log.file":                 "",
	"log.max_size_mb":          50,
	"log.max_backups":          5,
	"log.max_age_days":         7,
}

// New returns a viper instance with defaults and environment overrides
// installed. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := withDefaults()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func withDefaults() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	var cfg Config
	if err := withDefaults().Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load reads file into v and decodes the result. With an empty file it
// looks for greeter.{yaml,json,toml} in the working directory and in
// $HOME/.greeter, and a missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("greeter")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.greeter")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that decoding cannot.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return &Error{Field: "addr", Message: err.Error()}
	}
	switch c.Transport {
	case TransportHTTPX, TransportNet:
	default:
		return &Error{Field: "transport", Message: fmt.Sprintf("unknown transport %q (want %s or %s)", c.Transport, TransportHTTPX, TransportNet)}
	}
	if c.ShutdownTimeout <= 0 {
		return &Error{Field: "shutdown_timeout", Message: "must be positive"}
	}
	for name, d := range map[string]time.Duration{
		"http.read_header_timeout": c.HTTP.ReadHeaderTimeout,
		"http.read_timeout":        c.HTTP.ReadTimeout,
		"http.write_timeout":       c.HTTP.WriteTimeout,
		"http.idle_timeout":        c.HTTP.IdleTimeout,
	} {
		if d < 0 {
			return &Error{Field: name, Message: "must not be negative"}
		}
	}
	if c.HTTP.MaxHeaderBytes < 0 || c.HTTP.MaxBodyBytes < 0 {
		return &Error{Field: "http", Message: "size limits must not be negative"}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return &Error{Field: "log.level", Message: err.Error()}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &Error{Field: "log.format", Message: fmt.Sprintf("unknown format %q (want text or json)", c.Log.Format)}
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// Error reports an invalid configuration field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
