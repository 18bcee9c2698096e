// Package config loads chatguard configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/creastat/chatguard/guardrail"
	"github.com/creastat/chatguard/subject"
)

// EnvPrefix prefixes environment overrides, e.g. CHATGUARD_STORE_DRIVER.
const EnvPrefix = "CHATGUARD"

// Store drivers.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

// Config is the application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Session   SessionConfig   `mapstructure:"session"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	Caller bool   `mapstructure:"caller"`
}

// GuardrailConfig configures the evaluator. Subjects and OffTopic replace
// the built-in keyword library when set.
type GuardrailConfig struct {
	MaxLength       int                      `mapstructure:"max_length"`
	MinLength       int                      `mapstructure:"min_length"`
	MaxRepeat       int                      `mapstructure:"max_repeat"`
	StrictRelevance bool                     `mapstructure:"strict_relevance"`
	Subjects        map[string]SubjectConfig `mapstructure:"subjects"`
	OffTopic        []string                 `mapstructure:"off_topic"`
}

// SubjectConfig describes one selectable subject.
type SubjectConfig struct {
	Context  string   `mapstructure:"context"`
	Keywords []string `mapstructure:"keywords"`
}

type SessionConfig struct {
	MaxMessages      int           `mapstructure:"max_messages"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MessageRetention time.Duration `mapstructure:"message_retention"`
	ListLimit        int           `mapstructure:"list_limit"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
}

type ReaperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.caller", false)

	v.SetDefault("guardrail.max_length", guardrail.DefaultMaxLength)
	v.SetDefault("guardrail.min_length", guardrail.DefaultMinLength)
	v.SetDefault("guardrail.max_repeat", guardrail.DefaultMaxRepeat)
	v.SetDefault("guardrail.strict_relevance", false)

	v.SetDefault("session.max_messages", 20)
	v.SetDefault("session.timeout", 30*time.Minute)
	v.SetDefault("session.message_retention", 7*24*time.Hour)
	v.SetDefault("session.list_limit", 100)
	v.SetDefault("session.store_timeout", 5*time.Second)

	v.SetDefault("reaper.interval", 30*time.Minute)
	v.SetDefault("reaper.run_on_start", false)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite.path", "data/chatguard.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", time.Duration(0))
	v.SetDefault("store.supabase.url", "")
	v.SetDefault("store.supabase.api_key", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Load reads the configuration. An explicit configPath must exist; with an
// empty path, config.yaml is looked up in ./configs and . and defaults
// apply when it is missing.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Guardrail.MaxLength <= 0 {
		return fmt.Errorf("guardrail.max_length must be positive, got %d", c.Guardrail.MaxLength)
	}
	if c.Guardrail.MinLength < 0 || c.Guardrail.MinLength > c.Guardrail.MaxLength {
		return fmt.Errorf("guardrail.min_length must be between 0 and max_length, got %d", c.Guardrail.MinLength)
	}
	for name, s := range c.Guardrail.Subjects {
		if strings.TrimSpace(s.Context) == "" {
			return fmt.Errorf("guardrail.subjects.%s.context is required", name)
		}
	}

	if c.Session.MaxMessages < 2 {
		return fmt.Errorf("session.max_messages must be at least 2, got %d", c.Session.MaxMessages)
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be positive")
	}
	if c.Session.MessageRetention <= 0 {
		return fmt.Errorf("session.message_retention must be positive")
	}
	if c.Reaper.Interval <= 0 {
		return fmt.Errorf("reaper.interval must be positive")
	}

	switch c.Store.Driver {
	case DriverNone, DriverMemory:
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required")
		}
	case DriverSupabase:
		if c.Store.Supabase.URL == "" || c.Store.Supabase.APIKey == "" {
			return fmt.Errorf("store.supabase.url and store.supabase.api_key are required")
		}
	default:
		return fmt.Errorf("invalid store driver: %s, must be one of none, memory, redis, sqlite, supabase", c.Store.Driver)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	return nil
}

// SubjectKeywords returns the base keyword lists per subject.
func (g GuardrailConfig) SubjectKeywords() map[string][]string {
	if len(g.Subjects) == 0 {
		return guardrail.DefaultSubjectKeywords()
	}
	out := make(map[string][]string, len(g.Subjects))
	for name, s := range g.Subjects {
		out[strings.ToLower(name)] = s.Keywords
	}
	return out
}

// SubjectContexts returns the description of each subject.
func (g GuardrailConfig) SubjectContexts() map[string]string {
	if len(g.Subjects) == 0 {
		return subject.DefaultContexts()
	}
	out := make(map[string]string, len(g.Subjects))
	for name, s := range g.Subjects {
		out[strings.ToLower(name)] = s.Context
	}
	return out
}

// OffTopicKeywords returns the off-topic list.
func (g GuardrailConfig) OffTopicKeywords() []string {
	if len(g.OffTopic) == 0 {
		return guardrail.DefaultOffTopicKeywords()
	}
	return g.OffTopic
}

// Dictionary builds the expanded guard-rail dictionary.
func (g GuardrailConfig) Dictionary() guardrail.Dictionary {
	return guardrail.NewDictionary(g.SubjectKeywords(), g.OffTopicKeywords())
}

// Options returns the evaluator options.
func (g GuardrailConfig) Options() []guardrail.Option {
	opts := []guardrail.Option{
		guardrail.WithMaxLength(g.MaxLength),
		guardrail.WithMinLength(g.MinLength),
		guardrail.WithMaxRepeat(g.MaxRepeat),
	}
	if g.StrictRelevance {
		opts = append(opts, guardrail.WithStrictRelevance())
	}
	return opts
}
