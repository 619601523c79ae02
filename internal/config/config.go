package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the dashboard backend.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Assistant   AssistantConfig           `json:"assistant" yaml:"assistant"`
	Email       EmailConfig               `json:"email" yaml:"email"`
	RateLimit   RateLimitConfig           `json:"rate_limit" yaml:"rate_limit"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	// TimeZone is the IANA zone used to bound analytics days. Empty means local.
	TimeZone string `json:"time_zone" yaml:"time_zone"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type AssistantConfig struct {
	Provider       string `json:"provider" yaml:"provider"`
	Model          string `json:"model" yaml:"model"`
	SystemPrompt   string `json:"system_prompt" yaml:"system_prompt"`
	HistoryLimit   int    `json:"history_limit" yaml:"history_limit"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type EmailConfig struct {
	Region          string `json:"region" yaml:"region"`
	Source          string `json:"source" yaml:"source"`
	AdminAddress    string `json:"admin_address" yaml:"admin_address"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	NotifyOnChange  bool   `json:"notify_on_change" yaml:"notify_on_change"`
}

type RateLimitConfig struct {
	AIPerMinute    int `json:"ai_per_minute" yaml:"ai_per_minute"`
	EmailPerMinute int `json:"email_per_minute" yaml:"email_per_minute"`
}

const (
	DefaultServerAddress    = ":8090"
	DefaultProvider         = "openrouter"
	DefaultHistoryLimit     = 5
	DefaultAssistantTimeout = 2 * time.Minute
	DefaultEmailRegion      = "us-east-1"
)

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	// relative sqlite paths are resolved against the config file directory
	if sqliteCfg, ok := cfg.Databases["sqlite3"]; ok && sqliteCfg.DSN != "" &&
		!strings.HasPrefix(sqliteCfg.DSN, "file:") && sqliteCfg.DSN != ":memory:" &&
		!filepath.IsAbs(sqliteCfg.DSN) {
		sqliteCfg.DSN = filepath.Join(filepath.Dir(absPath), sqliteCfg.DSN)
		cfg.Databases["sqlite3"] = sqliteCfg
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if c.Databases == nil {
			c.Databases = make(map[string]DatabaseConfig)
		}
		pg := c.Databases["postgres"]
		pg.DSN = v
		c.Databases["postgres"] = pg
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if n, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = n
			}
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("OPEN_ROUTER_API_KEY"); v != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers[DefaultProvider]
		p.APIKey = v
		c.Providers[DefaultProvider] = p
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Email.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.Email.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.Email.SecretAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SENDER_EMAIL"); v != "" {
		c.Email.Source = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		c.Email.AdminAddress = v
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.Assistant.Provider == "" {
		c.Assistant.Provider = DefaultProvider
	}
	if c.Assistant.HistoryLimit <= 0 {
		c.Assistant.HistoryLimit = DefaultHistoryLimit
	}
	if c.Email.Region == "" {
		c.Email.Region = DefaultEmailRegion
	}
}

func (c *Config) validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	if c.BasicConfig.TimeZone != "" {
		if _, err := time.LoadLocation(c.BasicConfig.TimeZone); err != nil {
			return fmt.Errorf("invalid time_zone %q: %w", c.BasicConfig.TimeZone, err)
		}
	}
	return nil
}

// Location returns the zone analytics days are bounded in.
func (c *Config) Location() *time.Location {
	if c == nil || c.BasicConfig.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.BasicConfig.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AssistantTimeout bounds a single completion call.
func (c *Config) AssistantTimeout() time.Duration {
	if c == nil || c.Assistant.TimeoutSeconds <= 0 {
		return DefaultAssistantTimeout
	}
	return time.Duration(c.Assistant.TimeoutSeconds) * time.Second
}
