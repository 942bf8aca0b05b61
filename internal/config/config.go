// Package config handles loading and validating the admin service
// configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the admin API server configuration.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ListenPort      int           `yaml:"listen_port"`
	APIToken        string        `yaml:"api_token"`
	InstanceID      string        `yaml:"instance_id"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HealthCheckPort int           `yaml:"health_check_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	StatusInterval  time.Duration `yaml:"status_interval"`
	Debug           bool          `yaml:"debug"`
}

// WarehouseConfig holds the warehouse endpoint and session pool settings.
type WarehouseConfig struct {
	Host           string        `yaml:"host"`
	HTTPPath       string        `yaml:"http_path"`
	Token          string        `yaml:"token"`
	Catalog        string        `yaml:"catalog"`
	Schema         string        `yaml:"schema"`
	Table          string        `yaml:"table"`
	MaxSessions    int           `yaml:"max_sessions"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	MaxIdleTime    time.Duration `yaml:"max_idle_time"`
}

// FullTableName returns the fully qualified table name. Identifiers
// containing hyphens are backtick-quoted, since the warehouse rejects
// them bare.
func (w *WarehouseConfig) FullTableName() string {
	return quoteIdent(w.Catalog) + "." + quoteIdent(w.Schema) + "." + quoteIdent(w.Table)
}

func quoteIdent(s string) string {
	if strings.Contains(s, "-") {
		return "`" + s + "`"
	}
	return s
}

// RedisConfig holds the read-cache Redis connection configuration.
// An empty Addr disables caching.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// AuditConfig holds the local audit trail settings.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Redis     RedisConfig     `yaml:"redis"`
	Audit     AuditConfig     `yaml:"audit"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// validate checks mandatory fields.
func (c *Config) validate() error {
	if c.Server.APIToken == "" {
		return fmt.Errorf("server.api_token is required")
	}
	if c.Warehouse.Host == "" {
		return fmt.Errorf("warehouse.host is required")
	}
	if c.Warehouse.HTTPPath == "" {
		return fmt.Errorf("warehouse.http_path is required")
	}
	if c.Warehouse.Token == "" {
		return fmt.Errorf("warehouse.token is required")
	}
	if c.Warehouse.MaxSessions < 0 {
		return fmt.Errorf("warehouse.max_sessions must be positive")
	}
	return nil
}

// applyDefaults fills in reasonable defaults for unset optional fields.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0"
	}
	if c.Server.ListenPort == 0 {
		c.Server.ListenPort = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.HealthCheckPort == 0 {
		c.Server.HealthCheckPort = 8081
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.StatusInterval == 0 {
		c.Server.StatusInterval = 2 * time.Second
	}
	if c.Server.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.Server.InstanceID = hostname
	}

	if c.Warehouse.Catalog == "" {
		c.Warehouse.Catalog = "main"
	}
	if c.Warehouse.Schema == "" {
		c.Warehouse.Schema = "default"
	}
	if c.Warehouse.Table == "" {
		c.Warehouse.Table = "country_currency"
	}
	if c.Warehouse.MaxSessions == 0 {
		c.Warehouse.MaxSessions = 5
	}
	if c.Warehouse.AcquireTimeout == 0 {
		c.Warehouse.AcquireTimeout = 30 * time.Second
	}
	if c.Warehouse.ConnectTimeout == 0 {
		c.Warehouse.ConnectTimeout = 30 * time.Second
	}
	if c.Warehouse.PingTimeout == 0 {
		c.Warehouse.PingTimeout = 5 * time.Second
	}

	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 60 * time.Second
	}

	if c.Audit.Path == "" {
		c.Audit.Path = "refadmin_audit.db"
	}
}
