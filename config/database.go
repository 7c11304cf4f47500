package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// ConnectDatabaseWithRetry opens the store configured by cfg, retrying with
// exponential backoff until it connects, ctx is cancelled, or
// MaxConnectAttempts (when > 0) is exhausted.
func ConnectDatabaseWithRetry(ctx context.Context, cfg DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	var attempt int
	for {
		attempt++
		db, err := gorm.Open(dialector, initConfig(cfg))
		if err == nil {
			tunePool(db, cfg)
			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to database (driver=%s attempt=%d)", cfg.Driver, attempt)
			return db, nil
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("connect database after %d attempts: %w", attempt, err)
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func dialectorFor(cfg DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.Open(cfg.SqlitePath), nil
	case DriverMySQL:
		network := "tcp"
		address := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
		// Cloud SQL exposes a unix socket under /cloudsql/<CONNECTION_NAME>.
		if strings.HasPrefix(cfg.Host, "/cloudsql/") {
			network = "unix"
			address = cfg.Host
		}
		dsn := fmt.Sprintf("%s:%s@%s(%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			cfg.User,
			cfg.Password,
			network,
			address,
			cfg.Name,
		)
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func tunePool(db *gorm.DB, cfg DatabaseConfig) {
	sqlDB, err := db.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if cfg.Driver == DriverSQLite {
		// a single writer avoids "database is locked" under concurrent handlers
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSecs > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSecs) * time.Second)
	}
	if cfg.ConnMaxIdleTimeSecs > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeSecs) * time.Second)
	}
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func initConfig(cfg DatabaseConfig) *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(cfg),
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func initLog(cfg DatabaseConfig) logger.Interface {
	slow := time.Duration(cfg.SlowQueryThresholdMs) * time.Millisecond
	if slow <= 0 {
		slow = time.Second
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             slow,
			IgnoreRecordNotFoundError: true,
		},
	)
}
