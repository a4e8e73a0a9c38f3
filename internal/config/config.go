package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"driver-scheduler/internal/distance"
	"driver-scheduler/internal/scheduling"
)

// Cache backends selectable through CACHE_BACKEND
const (
	CacheBackendFile     = "file"
	CacheBackendSQLite   = "sqlite"
	CacheBackendRedis    = "redis"
	CacheBackendPostgres = "postgres"
)

// Config holds every tunable for both binaries. Values come from the
// environment, falling back to defaults that run locally with no setup.
type Config struct {
	ServerAddr string

	OSRMBaseURL         string
	OSRMTimeout         time.Duration
	ProviderMinInterval time.Duration

	CacheBackend  string
	CacheFile     string // empty means the default path under the home directory
	SQLitePath    string // same
	RedisAddr     string
	RedisPassword string
	RedisCacheKey string
	PGDSN         string

	Scheduler  scheduling.Config
	RunTimeout time.Duration
	RunHistory bool

	KafkaBrokers []string
	KafkaTopic   string
}

func defaultConfig() Config {
	return Config{
		ServerAddr:          "127.0.0.1:8080",
		OSRMBaseURL:         distance.DefaultBaseURL,
		OSRMTimeout:         distance.DefaultTimeout,
		ProviderMinInterval: distance.DefaultMinInterval,
		CacheBackend:        CacheBackendFile,
		RedisAddr:           "localhost:6379",
		RedisCacheKey:       "distance_cache",
		Scheduler:           scheduling.DefaultConfig(),
		RunTimeout:          10 * time.Minute,
		KafkaTopic:          "driver-schedules",
	}
}

// Load reads the configuration from the environment. All invalid values are
// reported together.
func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.ServerAddr, "SERVER_ADDR")

	setStringFromEnv(&cfg.OSRMBaseURL, "OSRM_BASE_URL")
	setDurationFromEnv(&cfg.OSRMTimeout, "OSRM_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ProviderMinInterval, "PROVIDER_MIN_INTERVAL", &errs)

	if v := strings.TrimSpace(os.Getenv("CACHE_BACKEND")); v != "" {
		cfg.CacheBackend = strings.ToLower(v)
	}
	setStringFromEnv(&cfg.CacheFile, "CACHE_FILE")
	setStringFromEnv(&cfg.SQLitePath, "SQLITE_PATH")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisCacheKey, "REDIS_CACHE_KEY")
	cfg.PGDSN = strings.TrimSpace(os.Getenv("PG_DSN"))

	setIntFromEnv(&cfg.Scheduler.Workers, "SCHEDULER_WORKERS", &errs)
	setFloatFromEnv(&cfg.Scheduler.HourlyCost, "SCHEDULER_HOURLY_COST", &errs)
	setDurationFromEnv(&cfg.Scheduler.Buffer, "SCHEDULER_BUFFER", &errs)
	setFloatFromEnv(&cfg.Scheduler.AvgSpeedKmh, "SCHEDULER_AVG_SPEED_KMH", &errs)
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_TIE_BREAK")); v != "" {
		policy, err := scheduling.ParseTieBreak(strings.ToLower(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid SCHEDULER_TIE_BREAK: %w", err))
		} else {
			cfg.Scheduler.TieBreak = policy
		}
	}

	setDurationFromEnv(&cfg.RunTimeout, "RUN_TIMEOUT", &errs)
	cfg.RunHistory = strings.EqualFold(os.Getenv("RUN_HISTORY"), "true")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	errs = append(errs, cfg.validate()...)

	return cfg, errors.Join(errs...)
}

func (c Config) validate() []error {
	var errs []error

	switch c.CacheBackend {
	case CacheBackendFile, CacheBackendSQLite, CacheBackendRedis:
	case CacheBackendPostgres:
		if c.PGDSN == "" {
			errs = append(errs, fmt.Errorf("PG_DSN is required when CACHE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}

	if c.Scheduler.Workers <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_WORKERS must be > 0"))
	}
	if c.Scheduler.HourlyCost < 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_HOURLY_COST must be >= 0"))
	}
	if c.Scheduler.Buffer < 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_BUFFER must be >= 0"))
	}
	if c.Scheduler.AvgSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_AVG_SPEED_KMH must be > 0"))
	}
	if c.OSRMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OSRM_TIMEOUT must be > 0"))
	}
	if c.ProviderMinInterval < 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_MIN_INTERVAL must be >= 0"))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RUN_TIMEOUT must be > 0"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("KAFKA_TOPIC must be set when KAFKA_BROKERS is"))
	}

	return errs
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	var out []string
	for _, r := range strings.Split(v, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
