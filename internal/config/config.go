package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Board    BoardConfig
	Storage  StorageConfig
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
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// BoardConfig tunes the board/list viewports.
type BoardConfig struct {
	// ResultLimit caps a single viewport load.
	ResultLimit int
	// SLAWindowHours is the near-deadline window for the SLA-only filter.
	SLAWindowHours int
	// MonitorEmail grants the team-monitor role to one account.
	MonitorEmail string
	// MonitoredAssignees lists the display names selectable in the monitor view.
	MonitoredAssignees []string
	// SessionIdleMinutes controls eviction of abandoned viewport sessions.
	SessionIdleMinutes int
	// FeedChannel is the pub/sub channel carrying change notifications.
	FeedChannel string
}

// StorageConfig holds attachment storage values.
type StorageConfig struct {
	Dir        string
	PublicBase string
	MaxFiles   int
	MaxFileMB  int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "talep-board"),
			Env:                   getEnv("APP_ENV", "development"),
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
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 480),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Board: BoardConfig{
			ResultLimit:        getEnvAsInt("BOARD_RESULT_LIMIT", 500),
			SLAWindowHours:     getEnvAsInt("BOARD_SLA_WINDOW_HOURS", 24),
			MonitorEmail:       strings.ToLower(getEnv("BOARD_MONITOR_EMAIL", "")),
			MonitoredAssignees: splitList(os.Getenv("BOARD_MONITORED_ASSIGNEES")),
			SessionIdleMinutes: getEnvAsInt("BOARD_SESSION_IDLE_MINUTES", 30),
			FeedChannel:        getEnv("BOARD_FEED_CHANNEL", "talepler.changes"),
		},
		Storage: StorageConfig{
			Dir:        getEnv("STORAGE_DIR", "data/attachments"),
			PublicBase: getEnv("STORAGE_PUBLIC_BASE", "/attachments"),
			MaxFiles:   getEnvAsInt("STORAGE_MAX_FILES", 10),
			MaxFileMB:  int64(getEnvAsInt("STORAGE_MAX_FILE_MB", 15)),
		},
	}

	return cfg, nil
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

// SLAWindow returns the near-deadline window as a duration.
func (b BoardConfig) SLAWindow() time.Duration {
	if b.SLAWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.SLAWindowHours) * time.Hour
}

// SessionIdle returns the session eviction threshold.
func (b BoardConfig) SessionIdle() time.Duration {
	if b.SessionIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(b.SessionIdleMinutes) * time.Minute
}

func splitList(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
