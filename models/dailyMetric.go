package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DailyMetric is a derived rollup of RideRecords.
//
// Grain: (metric_date, region). Rows are never edited by hand; a recompute
// deletes every row of its window and inserts the fresh rollups.
type DailyMetric struct {
	ID              int             `gorm:"primary_key" json:"id"`
	MetricDate      time.Time       `gorm:"type:date;not null;uniqueIndex:idx_daily_metric_date_region,priority:1" json:"metric_date"`
	Region          string          `gorm:"size:50;not null;uniqueIndex:idx_daily_metric_date_region,priority:2;index" json:"region"`
	TotalRides      int             `gorm:"not null;default:0" json:"total_rides"`
	CompletedRides  int             `gorm:"not null;default:0" json:"completed_rides"`
	CancelledRides  int             `gorm:"not null;default:0" json:"cancelled_rides"`
	LostRides       int             `gorm:"not null;default:0" json:"lost_rides"`
	TotalRevenue    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_revenue"`
	ActiveDrivers   int             `gorm:"not null;default:0" json:"active_drivers"`
	UniqueRiders    int             `gorm:"not null;default:0" json:"unique_riders"`
	AverageRating   float64         `gorm:"not null;default:0" json:"average_rating"`
	AverageDistance float64         `gorm:"not null;default:0" json:"average_distance"`
	AverageDuration float64         `gorm:"not null;default:0" json:"average_duration"`
	CompletionRate  float64         `gorm:"not null;default:0" json:"completion_rate"`
	AverageFare     float64         `gorm:"not null;default:0" json:"average_fare"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DayStart truncates t to UTC midnight.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DeleteDailyMetricsFrom(ctx context.Context, db *gorm.DB, start time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("metric_date >= ?", DayStart(start)).
		Delete(&DailyMetric{})
	return res.RowsAffected, res.Error
}

type DailyMetricFilter struct {
	From   time.Time
	To     time.Time
	Region string
}

func ListDailyMetrics(ctx context.Context, db *gorm.DB, filter DailyMetricFilter) ([]DailyMetric, error) {
	q := db.WithContext(ctx).Model(&DailyMetric{})
	if !filter.From.IsZero() {
		q = q.Where("metric_date >= ?", DayStart(filter.From))
	}
	if !filter.To.IsZero() {
		q = q.Where("metric_date <= ?", DayStart(filter.To))
	}
	if filter.Region != "" {
		q = q.Where("region = ?", filter.Region)
	}
	var metrics []DailyMetric
	err := q.Order("metric_date, region").Find(&metrics).Error
	return metrics, err
}

func CountDailyMetricsSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&DailyMetric{}).
		Where("metric_date >= ?", DayStart(since)).
		Count(&count).Error
	return count, err
}
