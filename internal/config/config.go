package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultWeatherAPIURL     = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"
	DefaultRedisURL          = "redis://localhost:6379/0"
	DefaultCacheTTL          = 12 * time.Hour
	DefaultWeatherPerHour    = 50
	DefaultOtherPerHour      = 100
	DefaultMaxCityLength     = 100
	defaultWeatherAPITimeout = 5 * time.Second
)

// Config holds service configuration loaded from .env, YAML and the environment.
type Config struct {
	Env     string
	Version string

	ServerPort string `validate:"required,numeric"`

	WeatherAPIKey     string        `validate:"required"`
	WeatherAPIURL     string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`
	RequestTimeout    time.Duration `validate:"gt=0"`

	CacheBackend          string        `validate:"oneof=redis memcached sqlite in_memory"`
	CacheTTL              time.Duration `validate:"gt=0"`
	RedisURL              string        `validate:"required_if=CacheBackend redis"`
	MemcachedAddrs        string        `validate:"required_if=CacheBackend memcached"`
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	SQLitePath            string `validate:"required_if=CacheBackend sqlite"`
	SQLitePurgeInterval   time.Duration
	WarmCache             bool
	WarmInterval          time.Duration

	MaxCityLength   int `validate:"gte=1"`
	CoalesceEnabled bool

	// Per-client allowances; 0 disables the limiter for that route group.
	RateLimitWeatherPerHour int `validate:"gte=0"`
	RateLimitDefaultPerHour int `validate:"gte=0"`
	RateLimitSweepInterval  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int `validate:"gte=1"`
	CircuitBreakerSuccessThreshold int `validate:"gte=1"`
	CircuitBreakerTimeout          time.Duration

	HealthWindow     time.Duration
	DegradedErrorPct int `validate:"gte=1,lte=100"`

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	TrackedCities []string
}

type fileConfig struct {
	Version string `yaml:"version"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		Warm         bool   `yaml:"warm"`
		WarmInterval string `yaml:"warm_interval"`
		Redis        struct {
			URL string `yaml:"url"`
		} `yaml:"redis"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		SQLite struct {
			Path          string `yaml:"path"`
			PurgeInterval string `yaml:"purge_interval"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Validation struct {
		MaxCityLength int `yaml:"max_city_length"`
	} `yaml:"validation"`

	Coalesce struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"coalesce"`

	RateLimit struct {
		WeatherPerHour *int   `yaml:"weather_per_hour"`
		DefaultPerHour *int   `yaml:"default_per_hour"`
		SweepInterval  string `yaml:"sweep_interval"`
	} `yaml:"rate_limit"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

var validate = validator.New()

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env, dir/config/{ENV_NAME}.yaml (default dev) and
// dir/config/secrets.yaml, then applies environment overrides. Process
// environment wins over .env; a missing file of any kind leaves defaults.
// The API key comes from WEATHER_API_KEY or the secrets file and is required.
func LoadFrom(dir string) (*Config, error) {
	dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	getenv := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(dotenv[key])
	}

	env := getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, "config", env+".yaml")
	if err := readYAML(configPath, &fc); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	cfg := &Config{Env: env, Version: fc.Version}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	cfg.ServerPort = firstNonEmpty(getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		var sec secretsFile
		if err := readYAML(filepath.Join(dir, "config", "secrets.yaml"), &sec); err != nil {
			return nil, fmt.Errorf("secrets file: %w", err)
		}
		cfg.WeatherAPIKey = strings.TrimSpace(sec.WeatherAPIKey)
	}
	if cfg.WeatherAPIKey == "" {
		return nil, errors.New("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, DefaultWeatherAPIURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, defaultWeatherAPITimeout)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(getenv("CACHE_BACKEND"), strings.TrimSpace(fc.Cache.Backend), "redis"))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, DefaultCacheTTL)
	cfg.RedisURL = firstNonEmpty(getenv("REDIS_CONNECTION_STRING"), fc.Cache.Redis.URL, DefaultRedisURL)
	cfg.MemcachedAddrs = firstNonEmpty(getenv("MEMCACHED_ADDRS"), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.SQLitePath = firstNonEmpty(getenv("SQLITE_PATH"), fc.Cache.SQLite.Path, "weather-cache.db")
	cfg.SQLitePurgeInterval = parseDuration(fc.Cache.SQLite.PurgeInterval, 10*time.Minute)
	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.MaxCityLength = fc.Validation.MaxCityLength
	if cfg.MaxCityLength <= 0 {
		cfg.MaxCityLength = DefaultMaxCityLength
	}
	cfg.CoalesceEnabled = fc.Coalesce.Enabled

	cfg.RateLimitWeatherPerHour = intOrDefault(fc.RateLimit.WeatherPerHour, DefaultWeatherPerHour)
	cfg.RateLimitDefaultPerHour = intOrDefault(fc.RateLimit.DefaultPerHour, DefaultOtherPerHour)
	cfg.RateLimitSweepInterval = parseDuration(fc.RateLimit.SweepInterval, 5*time.Minute)

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAML unmarshals path into v. A missing file is not an error.
func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// validate checks struct tags, then fixes up cross-field constraints:
// the request deadline must leave room for the upstream call.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RequestTimeout <= c.WeatherAPITimeout {
		c.RequestTimeout = c.WeatherAPITimeout + time.Second
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
