package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Match     MatchConfig
	Travel    TravelConfig
	Geocode   GeocodeConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host        string `mapstructure:"POSTGRES_HOST"`
	Port        int    `mapstructure:"POSTGRES_PORT"`
	User        string `mapstructure:"POSTGRES_USER"`
	Password    string `mapstructure:"POSTGRES_PASSWORD"`
	DBName      string `mapstructure:"POSTGRES_DB"`
	SSLMode     string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns    int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns    int32  `mapstructure:"POSTGRES_MIN_CONNS"`
	ProjectName string `mapstructure:"PROJECT_NAME"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// MatchConfig governs the matcher's (C5) travel budget.
type MatchConfig struct {
	MaxTravelMinutes float64 `mapstructure:"MAX_TRAVEL_MINUTES"`
}

// TravelConfig governs the travel-time cache (C3).
type TravelConfig struct {
	PeakBucketName   string        `mapstructure:"PEAK_BUCKET_NAME"`
	PeakSampleTimes  string        `mapstructure:"PEAK_SAMPLE_TIMES"`
	TrafficModel     string        `mapstructure:"TRAFFIC_MODEL"`
	TTLDays          int           `mapstructure:"TRAVEL_TIME_TTL_DAYS"`
	ConcurrencyLimit int64         `mapstructure:"TRAVEL_CONCURRENCY_LIMIT"`
	LegacyBuckets    string        `mapstructure:"TRAVEL_LEGACY_BUCKETS"`
	ProviderTimeout  time.Duration `mapstructure:"TRAVEL_PROVIDER_TIMEOUT"`
}

// SampleTimeList splits PeakSampleTimes on commas.
func (t TravelConfig) SampleTimeList() []string {
	return splitNonEmpty(t.PeakSampleTimes)
}

// LegacyBucketList splits LegacyBuckets on commas.
func (t TravelConfig) LegacyBucketList() []string {
	return splitNonEmpty(t.LegacyBuckets)
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GeocodeConfig governs the geocoder (C2).
type GeocodeConfig struct {
	GoogleAPIKey       string        `mapstructure:"GEOCODE_GOOGLE_API_KEY"`
	MinRequestSpacing  time.Duration `mapstructure:"GEOCODE_MIN_SPACING"`
	MaxRetries         int           `mapstructure:"GEOCODE_MAX_RETRIES"`
	BreakerThreshold   int           `mapstructure:"GEOCODE_BREAKER_THRESHOLD"`
	CacheTTLDays       int           `mapstructure:"GEOCODE_CACHE_TTL_DAYS"`
}

// SchedulerConfig governs the nightly auto-match scheduler.
type SchedulerConfig struct {
	Enabled   bool   `mapstructure:"SCHEDULER_ENABLED"`
	CronLocal string `mapstructure:"SCHEDULER_CRON_LOCAL"` // "HH:MM"
	Timezone  string `mapstructure:"TIMEZONE"`
}

// LogConfig governs the zap logger built by InitLogger.
type LogConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"` // "console" or "json"
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CronSpec converts SCHEDULER_CRON_LOCAL's "HH:MM" into a 5-field cron
// expression ("M H * * *") for robfig/cron.
func (s *SchedulerConfig) CronSpec() (string, error) {
	parts := strings.Split(s.CronLocal, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("scheduler: invalid SCHEDULER_CRON_LOCAL %q, want HH:MM", s.CronLocal)
	}
	return fmt.Sprintf("%s %s * * *", parts[1], parts[0]), nil
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "geomatch")
	viper.SetDefault("POSTGRES_PASSWORD", "geomatch_secret")
	viper.SetDefault("POSTGRES_DB", "geomatch_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)
	viper.SetDefault("PROJECT_NAME", "geomatch")

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("MAX_TRAVEL_MINUTES", 30.0)

	viper.SetDefault("PEAK_BUCKET_NAME", "weekday_2to8")
	viper.SetDefault("PEAK_SAMPLE_TIMES", "14:30,16:30,18:30")
	viper.SetDefault("TRAFFIC_MODEL", "pessimistic")
	viper.SetDefault("TRAVEL_TIME_TTL_DAYS", 14)
	viper.SetDefault("TRAVEL_CONCURRENCY_LIMIT", 5)
	viper.SetDefault("TRAVEL_LEGACY_BUCKETS", "pm_rush,evening_peak")
	viper.SetDefault("TRAVEL_PROVIDER_TIMEOUT", "8s")

	viper.SetDefault("GEOCODE_GOOGLE_API_KEY", "")
	viper.SetDefault("GEOCODE_MIN_SPACING", "100ms")
	viper.SetDefault("GEOCODE_MAX_RETRIES", 3)
	viper.SetDefault("GEOCODE_BREAKER_THRESHOLD", 5)
	viper.SetDefault("GEOCODE_CACHE_TTL_DAYS", 0)

	viper.SetDefault("SCHEDULER_ENABLED", false)
	viper.SetDefault("SCHEDULER_CRON_LOCAL", "02:00")
	viper.SetDefault("TIMEZONE", "America/New_York")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "console")

	// Try to read .env file. If it doesn't exist (e.g., inside a container),
	// env vars injected by the orchestrator are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	cfg.Postgres = PostgresConfig{
		Host:        viper.GetString("POSTGRES_HOST"),
		Port:        viper.GetInt("POSTGRES_PORT"),
		User:        viper.GetString("POSTGRES_USER"),
		Password:    viper.GetString("POSTGRES_PASSWORD"),
		DBName:      viper.GetString("POSTGRES_DB"),
		SSLMode:     viper.GetString("POSTGRES_SSLMODE"),
		MaxConns:    viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns:    viper.GetInt32("POSTGRES_MIN_CONNS"),
		ProjectName: viper.GetString("PROJECT_NAME"),
	}

	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.Match = MatchConfig{
		MaxTravelMinutes: viper.GetFloat64("MAX_TRAVEL_MINUTES"),
	}

	cfg.Travel = TravelConfig{
		PeakBucketName:   viper.GetString("PEAK_BUCKET_NAME"),
		PeakSampleTimes:  viper.GetString("PEAK_SAMPLE_TIMES"),
		TrafficModel:     viper.GetString("TRAFFIC_MODEL"),
		TTLDays:          viper.GetInt("TRAVEL_TIME_TTL_DAYS"),
		ConcurrencyLimit: viper.GetInt64("TRAVEL_CONCURRENCY_LIMIT"),
		LegacyBuckets:    viper.GetString("TRAVEL_LEGACY_BUCKETS"),
		ProviderTimeout:  viper.GetDuration("TRAVEL_PROVIDER_TIMEOUT"),
	}

	cfg.Geocode = GeocodeConfig{
		GoogleAPIKey:      viper.GetString("GEOCODE_GOOGLE_API_KEY"),
		MinRequestSpacing: viper.GetDuration("GEOCODE_MIN_SPACING"),
		MaxRetries:        viper.GetInt("GEOCODE_MAX_RETRIES"),
		BreakerThreshold:  viper.GetInt("GEOCODE_BREAKER_THRESHOLD"),
		CacheTTLDays:      viper.GetInt("GEOCODE_CACHE_TTL_DAYS"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:   viper.GetBool("SCHEDULER_ENABLED"),
		CronLocal: viper.GetString("SCHEDULER_CRON_LOCAL"),
		Timezone:  viper.GetString("TIMEZONE"),
	}

	cfg.Log = LogConfig{
		Level:  viper.GetString("LOG_LEVEL"),
		Format: viper.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

// InitLogger builds a zap.Logger from LogConfig and installs it as the
// global logger. "console" favors human-readable dev output; anything
// else builds a production JSON encoder.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
