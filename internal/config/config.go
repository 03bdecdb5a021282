package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingJWTSecret is returned when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Session  SessionConfig
	Routes   RoutesConfig
	Notify   NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	PasswordResetTTLMinutes int
	Argon2MemoryKiB         uint32
	Argon2Iterations        uint32
	Argon2Parallelism       uint8
	HashConcurrency         int
	CookieSecure            bool
	RevocationCheck         bool
	RevocationCacheSeconds  int
	LoginRateLimitPerMinute int
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Store                  string
	StoreTimeoutMillis     int
	CleanupIntervalMinutes int
}

// NotificationConfig controls outbound notification stubs.
type NotificationConfig struct {
	EmailFrom    string
	ResetPageURL string
}

// RoutesConfig overrides the built-in route classification.
type RoutesConfig struct {
	Public []string
}

// Load reads configuration from environment variables, applying defaults where possible.
// A missing JWT_SECRET is fatal; there is no built-in fallback secret.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "storefront-auth"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               os.Getenv("JWT_SECRET"),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 30),
			Argon2MemoryKiB:         uint32(getEnvAsInt("AUTH_ARGON2_MEMORY_KIB", 64*1024)),
			Argon2Iterations:        uint32(getEnvAsInt("AUTH_ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:       uint8(getEnvAsInt("AUTH_ARGON2_PARALLELISM", 2)),
			HashConcurrency:         getEnvAsInt("AUTH_HASH_CONCURRENCY", 8),
			CookieSecure:            getEnvAsBool("AUTH_COOKIE_SECURE", env == "production"),
			RevocationCheck:         getEnvAsBool("AUTH_REVOCATION_CHECK", false),
			RevocationCacheSeconds:  getEnvAsInt("AUTH_REVOCATION_CACHE_SECONDS", 30),
			LoginRateLimitPerMinute: getEnvAsInt("AUTH_LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		Session: SessionConfig{
			Store:                  strings.ToLower(getEnv("SESSION_STORE", "redis")),
			StoreTimeoutMillis:     getEnvAsInt("SESSION_STORE_TIMEOUT_MS", 2000),
			CleanupIntervalMinutes: getEnvAsInt("SESSION_CLEANUP_INTERVAL_MINUTES", 60),
		},
		Routes: RoutesConfig{
			Public: getEnvAsList("ROUTES_PUBLIC"),
		},
		Notify: NotificationConfig{
			EmailFrom:    os.Getenv("NOTIFY_EMAIL_FROM"),
			ResetPageURL: getEnv("NOTIFY_RESET_PAGE_URL", "/redefinir-senha"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot safely start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	switch c.Session.Store {
	case "redis", "postgres":
	default:
		return fmt.Errorf("invalid SESSION_STORE %q: want redis or postgres", c.Session.Store)
	}
	if c.Session.Store == "postgres" && c.Postgres.DSN == "" {
		return errors.New("SESSION_STORE=postgres requires POSTGRES_DSN")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PasswordResetTTL returns the lifetime of password reset tokens.
func (a AuthConfig) PasswordResetTTL() time.Duration {
	if a.PasswordResetTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(a.PasswordResetTTLMinutes) * time.Minute
}

// RevocationCacheTTL returns how long a positive session lookup is trusted.
func (a AuthConfig) RevocationCacheTTL() time.Duration {
	if a.RevocationCacheSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RevocationCacheSeconds) * time.Second
}

// StoreTimeout bounds every session store round-trip.
func (s SessionConfig) StoreTimeout() time.Duration {
	if s.StoreTimeoutMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(s.StoreTimeoutMillis) * time.Millisecond
}

// CleanupInterval returns the expired-session sweep period.
func (s SessionConfig) CleanupInterval() time.Duration {
	if s.CleanupIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(s.CleanupIntervalMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
