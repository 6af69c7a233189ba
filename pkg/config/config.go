package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	OAuth         OAuthConfig
	Email         EmailConfig
	Storage       StorageConfig
	Import        ImportConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	// AuthRateLimitPerMinute applies to login, register and password reset.
	AuthRateLimitPerMinute int
	TrustedProxies         []string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	ShutdownTimeout        time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionSecret   string
	CookieDomain    string
	CookieSecure    bool
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	CallbackBaseURL    string
	// FrontendRedirectURL receives the user after a successful OAuth login.
	FrontendRedirectURL string
}

// Enabled reports whether at least one OAuth provider is configured.
func (c OAuthConfig) Enabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
	AppURL       string
}

type StorageConfig struct {
	LocalPath string
	// AgeRecipient enables encryption at rest for archived statements.
	AgeRecipient string
	AgeIdentity  string
}

type ImportConfig struct {
	MaxFileSizeBytes int64
	BatchSize        int
	DefaultCurrency  string
}

// JobsConfig holds the schedules of background jobs in standard cron syntax.
type JobsConfig struct {
	Enabled                bool
	RecomputeSchedule      string
	SessionCleanupSchedule string
}

type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
	MetricsPort    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:                   getEnv("SERVER_HOST", "localhost"),
			Port:                   getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:                getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:         getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond:     getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:         getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			AuthRateLimitPerMinute: getEnvAsInt("SERVER_AUTH_RATE_LIMIT_PER_MINUTE", 10),
			TrustedProxies:         getEnvAsSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:        getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 20*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "split_budget"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: int32(getEnvAsInt("POSTGRES_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("POSTGRES_MIN_CONNS", 5)),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			SessionSecret:   getEnv("SESSION_SECRET", ""),
			CookieDomain:    getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:    getEnvAsBool("COOKIE_SECURE", false),
		},
		OAuth: OAuthConfig{
			GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
			CallbackBaseURL:     getEnv("OAUTH_CALLBACK_BASE_URL", "http://localhost:8080"),
			FrontendRedirectURL: getEnv("OAUTH_FRONTEND_REDIRECT_URL", "http://localhost:3000/auth/callback"),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromAddress:  getEnv("RESEND_FROM_EMAIL", "Split Budget <hello@split-budget.app>"),
			AppURL:       getEnv("APP_URL", "http://localhost:3000"),
		},
		Storage: StorageConfig{
			LocalPath:    getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			AgeRecipient: getEnv("STORAGE_AGE_RECIPIENT", ""),
			AgeIdentity:  getEnv("STORAGE_AGE_IDENTITY", ""),
		},
		Import: ImportConfig{
			MaxFileSizeBytes: int64(getEnvAsInt("IMPORT_MAX_FILE_SIZE_BYTES", 10<<20)),
			BatchSize:        getEnvAsInt("IMPORT_BATCH_SIZE", 500),
			DefaultCurrency:  getEnv("DEFAULT_CURRENCY", "EUR"),
		},
		Jobs: JobsConfig{
			Enabled:                getEnvAsBool("JOBS_ENABLED", true),
			RecomputeSchedule:      getEnv("JOBS_RECOMPUTE_SCHEDULE", "0 2 * * *"),
			SessionCleanupSchedule: getEnv("JOBS_SESSION_CLEANUP_SCHEDULE", "@hourly"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if cfg.Auth.JWTSecret == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSecret = "dev-secret-change-me"
	}
	if cfg.Auth.SessionSecret == "" && !cfg.IsProduction() {
		cfg.Auth.SessionSecret = "dev-session-secret-change-me-32b"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if len(c.Auth.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("POSTGRES_HOST is required"))
	}
	if c.Server.RateLimitPerSecond <= 0 || c.Server.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit values must be positive"))
	}
	if c.Server.AuthRateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("SERVER_AUTH_RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.Import.BatchSize <= 0 {
		errs = append(errs, errors.New("IMPORT_BATCH_SIZE must be positive"))
	}
	if c.Jobs.Enabled {
		for name, spec := range map[string]string{
			"JOBS_RECOMPUTE_SCHEDULE":       c.Jobs.RecomputeSchedule,
			"JOBS_SESSION_CLEANUP_SCHEDULE": c.Jobs.SessionCleanupSchedule,
		} {
			if _, err := cron.ParseStandard(spec); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
