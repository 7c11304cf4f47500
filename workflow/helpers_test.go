package workflow

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.MigrateTable(db))
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestReconciler(db *gorm.DB) *Reconciler {
	return NewReconciler(db, NewPriorityResolver(), utils.NewValidator(), quietLogger(), nil)
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func fare(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func ride(at time.Time, rider, driver, region string, status models.RideStatus) models.RideRecord {
	return models.RideRecord{
		RideAt:     at,
		RiderName:  rider,
		DriverName: driver,
		Region:     region,
		Status:     status,
	}
}
