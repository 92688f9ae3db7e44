package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// Server
	Host        string
	Port        string
	Environment string
	SiteTitle   string

	// Peers whose forwarding headers are believed. Empty means the socket
	// address is always the client address.
	TrustedProxies []netip.Prefix

	// Database: a postgres URL or a sqlite file name under DataDir
	Database string
	DataDir  string

	// Session
	SessionKey          string
	SessionTTL          time.Duration
	SessionCookieSecure bool
	SessionPruneSpec    string

	// Mail
	Mail MailConfig

	// Observability
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough is configured to deliver mail.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != ""
}

func Load() (*Config, error) {
	proxies, err := ParseTrustedProxies(getEnv("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TrustedProxies:      proxies,
		Host:                getEnv("HOST", "0.0.0.0"),
		Port:                getEnv("PORT", "3000"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		SiteTitle:           getEnv("SITE_TITLE", "neighbor.group"),
		Database:            getEnv("DATABASE", "main.db"),
		DataDir:             getEnv("DATA_DIR", "data"),
		SessionKey:          getEnv("SESSION_KEY", ""),
		SessionTTL:          getEnvDuration("SESSION_TTL", 14*24*time.Hour),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		SessionPruneSpec:    getEnv("SESSION_PRUNE_SCHEDULE", "@hourly"),
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("DATABASE environment variable must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SessionKey != "" && len(c.SessionKey) < 32 {
		return fmt.Errorf("SESSION_KEY must be at least 32 characters")
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("SMTP_PORT out of range: %d", c.Mail.Port)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// DSN resolves the store selector into a driver name and data source.
func (c *Config) DSN() (driver, dsn string) {
	if strings.HasPrefix(c.Database, "postgres://") || strings.HasPrefix(c.Database, "postgresql://") {
		return DriverPostgres, c.Database
	}
	if c.Database == ":memory:" || strings.HasPrefix(c.Database, "file:") || filepath.IsAbs(c.Database) {
		return DriverSQLite, c.Database
	}
	return DriverSQLite, filepath.Join(c.DataDir, c.Database)
}

// ParseTrustedProxies reads a comma-separated list of addresses and CIDR
// prefixes.
func ParseTrustedProxies(value string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.Contains(field, "/") {
			prefix, err := netip.ParsePrefix(field)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid prefix %q: %w", field, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(field)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q: %w", field, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
