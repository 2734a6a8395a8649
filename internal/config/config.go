package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
)

// Keys double as environment variable names once upper-cased, and as the
// variable names read from a .env file.
const (
	KeyServer           = "freeipa_server"
	KeyUsername         = "freeipa_username"
	KeyPassword         = "freeipa_password"
	KeyVerifySSL        = "freeipa_verify_ssl"
	KeyAutoConnect      = "freeipa_auto_connect"
	KeyTimeout          = "freeipa_timeout"
	KeyPhoneCountryCode = "freeipa_phone_country_code"
	KeyHost             = "host"
	KeyPort             = "port"
	KeyMCPPath          = "mcp_path"
	KeySSEPath          = "mcp_sse_path"
	KeyRateLimit        = "rate_limit_per_min"
	KeyTrustedProxies   = "trusted_proxies"
	KeyToolPrefix       = "mcp_tool_prefix"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
)

// DefaultEnvFile is read when present.
const DefaultEnvFile = ".env"

// Config is the process configuration, read once at startup.
type Config struct {
	Server           string
	Username         string
	Password         string
	VerifySSL        bool
	AutoConnect      bool
	Timeout          time.Duration
	PhoneCountryCode string

	Host               string
	Port               int
	MCPPath            string
	SSEPath            string
	RateLimitPerMinute int
	// TrustedProxies are addresses or CIDR prefixes, read as a
	// comma-separated list.
	TrustedProxies []string
	// ToolPrefix namespaces the exposed tool names when set.
	ToolPrefix string

	LogLevel  string
	LogFormat string
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyVerifySSL, false)
	v.SetDefault(KeyAutoConnect, true)
	v.SetDefault(KeyTimeout, "30s")
	v.SetDefault(KeyPhoneCountryCode, "90")
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8000)
	v.SetDefault(KeyMCPPath, "/mcp")
	v.SetDefault(KeySSEPath, "/sse")
	v.SetDefault(KeyRateLimit, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.AutomaticEnv()
	return v
}

// Load reads envFile (if it exists) into v and resolves the configuration.
// Precedence is flags, then environment, then the file, then defaults. An
// explicitly named file that does not exist is an error; the default .env
// is optional.
func Load(v *viper.Viper, envFile string) (Config, error) {
	if v == nil {
		v = New()
	}
	optional := envFile == ""
	if optional {
		envFile = DefaultEnvFile
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || !optional {
			return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	timeout, err := parseDuration(v.GetString(KeyTimeout))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyTimeout, err)
	}
	cfg := Config{
		Server:             strings.TrimSpace(v.GetString(KeyServer)),
		Username:           strings.TrimSpace(v.GetString(KeyUsername)),
		Password:           v.GetString(KeyPassword),
		VerifySSL:          v.GetBool(KeyVerifySSL),
		AutoConnect:        v.GetBool(KeyAutoConnect),
		Timeout:            timeout,
		PhoneCountryCode:   strings.TrimLeft(strings.TrimSpace(v.GetString(KeyPhoneCountryCode)), "+"),
		Host:               v.GetString(KeyHost),
		Port:               v.GetInt(KeyPort),
		MCPPath:            v.GetString(KeyMCPPath),
		SSEPath:            v.GetString(KeySSEPath),
		RateLimitPerMinute: v.GetInt(KeyRateLimit),
		TrustedProxies:     splitList(v.GetString(KeyTrustedProxies)),
		ToolPrefix:         strings.TrimSpace(v.GetString(KeyToolPrefix)),
		LogLevel:           strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:          strings.ToLower(v.GetString(KeyLogFormat)),
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations. Missing FreeIPA credentials are
// not an error: the server starts disconnected.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: %s must be between 1 and 65535, got %d", KeyPort, c.Port)
	case c.Timeout <= 0:
		return fmt.Errorf("config: %s must be positive", KeyTimeout)
	case c.RateLimitPerMinute < 0:
		return fmt.Errorf("config: %s must not be negative", KeyRateLimit)
	case c.MCPPath == c.SSEPath:
		return fmt.Errorf("config: %s and %s must differ", KeyMCPPath, KeySSEPath)
	}
	if strings.ContainsFunc(c.ToolPrefix, func(r rune) bool {
		return !(r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) {
		return fmt.Errorf("config: %s may only contain letters, digits, '-' and '_', got %q", KeyToolPrefix, c.ToolPrefix)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config: %s must be text or json, got %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Credentials returns the default connection parameters.
func (c Config) Credentials() ipamgr.Credentials {
	return ipamgr.Credentials{
		Server:    c.Server,
		Username:  c.Username,
		Password:  c.Password,
		VerifySSL: c.VerifySSL,
	}
}

// HasCredentials reports whether auto-connect can be attempted.
func (c Config) HasCredentials() bool {
	return c.Credentials().Validate() == nil
}

// Logger builds the process logger.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown %s %q", KeyLogLevel, s)
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
