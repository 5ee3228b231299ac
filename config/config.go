package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Paperless PaperlessConfig `yaml:"paperless"`
	Worker    WorkerConfig    `yaml:"worker"`
	Stamp     StampConfig     `yaml:"stamp"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Minio     MinioConfig     `yaml:"minio"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port      int  `yaml:"port"`
	Disabled  bool `yaml:"disabled"`
	RateLimit int  `yaml:"rate_limit"` // requests per minute per client
}

type PaperlessConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageSize       int    `yaml:"page_size"`
}

type WorkerConfig struct {
	SlowDocumentMS         int `yaml:"slow_document_ms"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

type StampConfig struct {
	PollInterval int                   `yaml:"poll_interval"` // seconds
	DefaultColor string                `yaml:"default_color"`
	Opacity      float64               `yaml:"opacity"`
	Types        map[string]TypeConfig `yaml:"types"`
}

type TypeConfig struct {
	Text         string `yaml:"text"`
	Color        string `yaml:"color"`
	DateField    string `yaml:"date_field"`
	DateFallback string `yaml:"date_fallback"` // document-created, omit
	Priority     int    `yaml:"priority"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory, sqlite, redis
	Path        string `yaml:"path"`
	MaxOutcomes int    `yaml:"max_outcomes"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

var GlobalConfig *Config

// Load reads the YAML file at path and applies defaults.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)

	GlobalConfig = &cfg
	return &cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as empty
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 100
	}
	if cfg.Paperless.TimeoutSeconds == 0 {
		cfg.Paperless.TimeoutSeconds = 30
	}
	if cfg.Paperless.PageSize == 0 {
		cfg.Paperless.PageSize = 100
	}
	if cfg.Worker.SlowDocumentMS == 0 {
		cfg.Worker.SlowDocumentMS = 5000
	}
	if cfg.Worker.ShutdownTimeoutSeconds == 0 {
		cfg.Worker.ShutdownTimeoutSeconds = 30
	}
	if cfg.Stamp.PollInterval == 0 {
		cfg.Stamp.PollInterval = DefaultPollInterval
	}
	if cfg.Stamp.DefaultColor == "" {
		cfg.Stamp.DefaultColor = DefaultColor
	}
	if cfg.Stamp.Opacity == 0 {
		cfg.Stamp.Opacity = DefaultOpacity
	}
	if cfg.Stamp.Types == nil {
		cfg.Stamp.Types = make(map[string]TypeConfig)
	}
	for name := range builtinTypes {
		if _, ok := cfg.Stamp.Types[name]; !ok {
			cfg.Stamp.Types[name] = TypeConfig{}
		}
	}
	normalized := make(map[string]TypeConfig, len(cfg.Stamp.Types))
	for name, tc := range cfg.Stamp.Types {
		name = normalizeType(name)
		normalized[name] = typeDefaults(name, tc)
	}
	cfg.Stamp.Types = normalized

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverSQLite
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "paperless-stamp.db"
	}
	if cfg.Store.MaxOutcomes == 0 {
		cfg.Store.MaxOutcomes = 1000
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "paperless-stamp:"
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.Minio.Bucket == "" {
		cfg.Minio.Bucket = "stamped"
	}
	if cfg.Minio.Region == "" {
		cfg.Minio.Region = "us-east-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	var missing []string
	if c.Paperless.URL == "" {
		missing = append(missing, "PAPERLESS_URL")
	}
	if c.Paperless.Token == "" {
		missing = append(missing, "PAPERLESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
