package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when no --config flag is given. It may be absent.
const ConfigPath = "storefront.yaml"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	defaultLogLevel       = "info"
	defaultRequestTimeout = "15s"
	defaultDataDir        = "data"
	defaultProfile        = "default"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	LogLevel           string `yaml:"logLevel"`
	IdentityServiceURL string `yaml:"identityServiceURL"`
	RequestTimeout     string `yaml:"requestTimeout"`
	StorageBackend     string `yaml:"storageBackend"`
	DataDir            string `yaml:"dataDir"`
	Profile            string `yaml:"profile"`
	RedisAddr          string `yaml:"redisAddr"`
	RedisPassword      string `yaml:"redisPassword"`
	RedisPrefix        string `yaml:"redisPrefix"`
	DatabaseURL        string `yaml:"databaseURL"`
}

// Load reads config from path (defaults to storefront.yaml), applies
// environment overrides and validates the result. A missing default file is
// not an error; a missing explicit path is.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_IDENTITY_SERVICE_URL"); v != "" {
		cfg.IdentityServiceURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_DATA_DIR"); v != "" {
		cfg.DataDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_PROFILE"); v != "" {
		cfg.Profile = strings.TrimSpace(v)
	}
	if v := os.Getenv("STOREFRONT_REDIS_PREFIX"); v != "" {
		cfg.RedisPrefix = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendFile
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.Profile == "" {
		cfg.Profile = defaultProfile
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.IdentityServiceURL) == "" {
		return errors.New("config: identityServiceURL is required (set in storefront.yaml or STOREFRONT_IDENTITY_SERVICE_URL)")
	}
	u, err := url.Parse(cfg.IdentityServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: identityServiceURL %q is not an absolute URL", cfg.IdentityServiceURL)
	}
	if _, err := ParseRequestTimeout(cfg.RequestTimeout); err != nil {
		return err
	}
	switch cfg.StorageBackend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis storage backend")
		}
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres storage backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (memory, file, redis or postgres)", cfg.StorageBackend)
	}
	return nil
}

// ParseRequestTimeout parses the identity request timeout. Empty means the
// client default.
func ParseRequestTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid requestTimeout duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("config: requestTimeout must be positive")
	}
	return dur, nil
}
