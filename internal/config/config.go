// ABOUTME: Configuration loading and parsing for onebot-gateway
// ABOUTME: YAML or TOML files with environment variable expansion, defaults and duration parsing

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "ONEBOT_GATEWAY_CONFIG"

// Defaults applied by ApplyDefaults.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 6700
	DefaultAdminAddr      = "127.0.0.1:6701"
	DefaultActionTimeout  = 30 * time.Second
	DefaultStopTimeout    = 5 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultReadLimit      = 10 << 20
	DefaultMaxQueue       = 4
	DefaultDedupeTTL      = 5 * time.Minute
	DefaultDedupeSize     = 10000
	DefaultOverflowNotice = "message skipped due to load, try later"
)

// minJWTSecretLength mirrors auth.MinSecretLength.
const minJWTSecretLength = 32

// Config represents the complete onebot-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Gate      GateConfig      `yaml:"gate" toml:"gate"`
	QQ        QQConfig        `yaml:"qq" toml:"qq"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	Host        string `yaml:"host" toml:"host"`
	Port        int    `yaml:"port" toml:"port"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	// AdminAddr is the admin HTTP API listen address. "-" disables it.
	AdminAddr string `yaml:"admin_addr" toml:"admin_addr"`
}

// ListenAddr returns host:port for the reverse WebSocket listener.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// AdminEnabled reports whether the admin API should be served.
func (s ServerConfig) AdminEnabled() bool {
	return s.AdminAddr != "-"
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TransportConfig holds reverse WebSocket timing and limits
type TransportConfig struct {
	ActionTimeout time.Duration `yaml:"-" toml:"-"`
	StopTimeout   time.Duration `yaml:"-" toml:"-"`
	PingInterval  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ActionTimeoutRaw string `yaml:"action_timeout" toml:"action_timeout"`
	StopTimeoutRaw   string `yaml:"stop_timeout" toml:"stop_timeout"`
	PingIntervalRaw  string `yaml:"ping_interval" toml:"ping_interval"`

	ReadLimit               int64 `yaml:"read_limit" toml:"read_limit"`
	FailPendingOnDisconnect *bool `yaml:"fail_pending_on_disconnect" toml:"fail_pending_on_disconnect"`
}

// FailPending reports whether pending actions fail as soon as their
// connection drops. Defaults to true.
func (t TransportConfig) FailPending() bool {
	return t.FailPendingOnDisconnect == nil || *t.FailPendingOnDisconnect
}

// GateConfig holds admission gate limits
type GateConfig struct {
	// MaxQueue is the number of turns allowed to wait per session. Negative means unbounded.
	MaxQueue *int `yaml:"max_queue" toml:"max_queue"`
}

// Limit returns the configured queue limit, DefaultMaxQueue when unset.
func (g GateConfig) Limit() int {
	if g.MaxQueue == nil {
		return DefaultMaxQueue
	}
	return *g.MaxQueue
}

// QQConfig holds the QQ channel adapter configuration
type QQConfig struct {
	RequireMention *bool   `yaml:"require_mention" toml:"require_mention"`
	AllowedUsers   []int64 `yaml:"allowed_users" toml:"allowed_users"`
	AllowedGroups  []int64 `yaml:"allowed_groups" toml:"allowed_groups"`
	OverflowNotice string  `yaml:"overflow_notice" toml:"overflow_notice"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
	DedupeSize   int           `yaml:"dedupe_size" toml:"dedupe_size"`
}

// MentionRequired reports whether group messages must @-mention the bot.
// Defaults to true.
func (q QQConfig) MentionRequired() bool {
	return q.RequireMention == nil || *q.RequireMention
}

// DatabaseConfig holds database configuration. An empty path disables the audit ledger.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, formatFor(path))
}

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes, defaults and validates raw configuration bytes.
func Parse(data []byte, format Format) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// envVarPattern matches ${VAR_NAME}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = DefaultAdminAddr
	}
	if c.Transport.ActionTimeout == 0 {
		c.Transport.ActionTimeout = DefaultActionTimeout
	}
	if c.Transport.StopTimeout == 0 {
		c.Transport.StopTimeout = DefaultStopTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.ReadLimit == 0 {
		c.Transport.ReadLimit = DefaultReadLimit
	}
	if c.QQ.OverflowNotice == "" {
		c.QQ.OverflowNotice = DefaultOverflowNotice
	}
	if c.QQ.DedupeTTL == 0 {
		c.QQ.DedupeTTL = DefaultDedupeTTL
	}
	if c.QQ.DedupeSize == 0 {
		c.QQ.DedupeSize = DefaultDedupeSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLength)
	}

	if c.Transport.ActionTimeout < 0 {
		return errors.New("transport.action_timeout must be positive")
	}
	if c.Transport.StopTimeout < 0 {
		return errors.New("transport.stop_timeout must be positive")
	}
	if c.Transport.PingInterval < 0 {
		return errors.New("transport.ping_interval must be positive")
	}
	if c.Transport.ReadLimit < 0 {
		return errors.New("transport.read_limit must be positive")
	}

	if c.QQ.DedupeTTL < 0 {
		return errors.New("qq.dedupe_ttl must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"transport.action_timeout", cfg.Transport.ActionTimeoutRaw, &cfg.Transport.ActionTimeout},
		{"transport.stop_timeout", cfg.Transport.StopTimeoutRaw, &cfg.Transport.StopTimeout},
		{"transport.ping_interval", cfg.Transport.PingIntervalRaw, &cfg.Transport.PingInterval},
		{"qq.dedupe_ttl", cfg.QQ.DedupeTTLRaw, &cfg.QQ.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath resolves the config file location: the ONEBOT_GATEWAY_CONFIG
// environment variable, then $XDG_CONFIG_HOME/onebot-gateway/gateway.yaml,
// then ~/.config/onebot-gateway/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "onebot-gateway", "gateway.yaml")
}
