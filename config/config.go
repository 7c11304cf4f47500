package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds process configuration. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type Config struct {
	Port     string `env:"PORT" env-default:"8080"`
	Env      string `env:"GO_ENV" env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	Database DatabaseConfig
	Redis    RedisConfig
	Sheets   SheetsConfig
	PubSub   PubSubConfig
	Import   ImportConfig
	Sync     SyncConfig

	CorsAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" env-default:""`
	SkipMigrations     bool   `env:"SKIP_MIGRATIONS" env-default:"false"`
}

type DatabaseConfig struct {
	Driver               string `env:"DB_DRIVER" env-default:"mysql"`
	User                 string `env:"DB_USER"`
	Password             string `env:"DB_PASSWORD"`
	Host                 string `env:"DB_HOST" env-default:"127.0.0.1"`
	Port                 string `env:"DB_PORT" env-default:"3306"`
	Name                 string `env:"DB_NAME" env-default:"dashboard"`
	SqlitePath           string `env:"SQLITE_PATH" env-default:"dashboard.db"`
	MaxOpenConns         int    `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns         int    `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetimeSecs  int    `env:"DB_CONN_MAX_LIFETIME_SECONDS" env-default:"300"`
	ConnMaxIdleTimeSecs  int    `env:"DB_CONN_MAX_IDLE_TIME_SECONDS" env-default:"60"`
	MaxConnectAttempts   int    `env:"DB_MAX_CONNECT_ATTEMPTS" env-default:"0"`
	SlowQueryThresholdMs int    `env:"DB_SLOW_QUERY_MS" env-default:"1000"`
}

type RedisConfig struct {
	Address         string `env:"REDIS_ADDRESS" env-default:""`
	Password        string `env:"REDIS_PASSWORD" env-default:""`
	DB              int    `env:"REDIS_DB" env-default:"0"`
	CacheTTLSeconds int    `env:"CACHE_TTL_SECONDS" env-default:"300"`
}

type SheetsConfig struct {
	SpreadsheetID   string `env:"GOOGLE_SHEETS_ID" env-default:""`
	TargetsSheetID  string `env:"GOOGLE_SHEETS_TARGETS_ID" env-default:""`
	CredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON" env-default:""`
	CredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE" env-default:""`
	UseMock         bool   `env:"SHEETS_USE_MOCK" env-default:"false"`
}

type PubSubConfig struct {
	ProjectID       string `env:"PUBSUB_PROJECT_ID" env-default:""`
	CredentialsJSON string `env:"PUBSUB_CREDENTIALS_JSON" env-default:""`
	SyncTopic       string `env:"SYNC_TOPIC" env-default:"dashboard-sync"`
	CreateTopic     bool   `env:"SYNC_CREATE_TOPIC" env-default:"false"`
	PushEnabled     bool   `env:"ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT" env-default:"true"`
}

type ImportConfig struct {
	UploadDir     string `env:"IMPORT_UPLOAD_DIR" env-default:"uploads"`
	ArchiveBucket string `env:"IMPORT_ARCHIVE_BUCKET" env-default:""`
	MaxBytes      int64  `env:"IMPORT_MAX_BYTES" env-default:"16777216"`
}

type SyncConfig struct {
	LockTTLSeconds   int `env:"SYNC_LOCK_TTL_SECONDS" env-default:"900"`
	FreshnessMinutes int `env:"SYNC_FRESHNESS_MINUTES" env-default:"30"`
	LookbackDays     int `env:"METRICS_LOOKBACK_DAYS" env-default:"30"`
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver != DriverMySQL && cfg.Database.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

func (c RedisConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c SyncConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c SyncConfig) Freshness() time.Duration {
	if c.FreshnessMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.FreshnessMinutes) * time.Minute
}

func (c SyncConfig) Lookback() time.Duration {
	if c.LookbackDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// UseMockSource reports whether the sheet adapter should serve canned rows.
func (c SheetsConfig) UseMockSource() bool {
	return c.UseMock || strings.TrimSpace(c.SpreadsheetID) == ""
}
