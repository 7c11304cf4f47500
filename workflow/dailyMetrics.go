package workflow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const metricsBatchSize = 500

type MetricsResult struct {
	MetricsCreated int    `json:"metrics_created"`
	MetricsDeleted int64  `json:"metrics_deleted"`
	From           string `json:"from"`
}

// MetricsAggregator rebuilds DailyMetric rollups from raw rides.
type MetricsAggregator struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

func NewMetricsAggregator(db *gorm.DB, logger logrus.FieldLogger) *MetricsAggregator {
	return &MetricsAggregator{db: db, logger: logger}
}

// Recompute replaces every DailyMetric dated on or after start with rollups
// of the rides from that day on. start is truncated to UTC midnight.
func (m *MetricsAggregator) Recompute(ctx context.Context, start time.Time) (MetricsResult, error) {
	start = models.DayStart(start)
	result := MetricsResult{From: start.Format("2006-01-02")}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := models.DeleteDailyMetricsFrom(ctx, tx, start)
		if err != nil {
			return fmt.Errorf("delete metrics: %w", err)
		}
		result.MetricsDeleted = deleted

		acc := newMetricsAccumulator()
		var batch []models.RideRecord
		var addErr error
		res := tx.WithContext(ctx).
			Where("ride_at >= ?", start).
			Order("id").
			FindInBatches(&batch, metricsBatchSize, func(_ *gorm.DB, _ int) error {
				for i := range batch {
					if addErr = acc.add(&batch[i]); addErr != nil {
						return addErr
					}
				}
				return nil
			})
		if res.Error != nil {
			return fmt.Errorf("aggregate rides: %w", res.Error)
		}

		rows := acc.metrics()
		if len(rows) == 0 {
			return nil
		}
		if err := tx.WithContext(ctx).CreateInBatches(rows, metricsBatchSize).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				return fmt.Errorf("metrics window recomputed concurrently: %w", err)
			}
			return fmt.Errorf("insert metrics: %w", err)
		}
		result.MetricsCreated = len(rows)
		return nil
	})
	if err != nil {
		config.LogError(m.logger, "metricsAggregator", "Recompute", result.From, nil, err)
		return MetricsResult{From: result.From}, err
	}

	m.logger.WithFields(logrus.Fields{
		"from":    result.From,
		"created": result.MetricsCreated,
		"deleted": result.MetricsDeleted,
	}).Info("daily metrics recomputed")
	return result, nil
}

type metricsGroupKey struct {
	day    time.Time
	region string
}

type runningMean struct {
	sum   float64
	count int
}

func (r *runningMean) add(v float64) {
	r.sum += v
	r.count++
}

func (r runningMean) value() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

type metricsGroup struct {
	total, completed, cancelled, lost int
	revenue                           decimal.Decimal
	drivers                           map[string]struct{}
	riders                            map[string]struct{}
	rating, distance, duration        runningMean
}

type metricsAccumulator struct {
	groups map[metricsGroupKey]*metricsGroup
}

func newMetricsAccumulator() *metricsAccumulator {
	return &metricsAccumulator{groups: make(map[metricsGroupKey]*metricsGroup)}
}

func (a *metricsAccumulator) add(ride *models.RideRecord) error {
	key := metricsGroupKey{day: models.DayStart(ride.RideAt), region: ride.Region}
	g, ok := a.groups[key]
	if !ok {
		g = &metricsGroup{
			revenue: decimal.Zero,
			drivers: make(map[string]struct{}),
			riders:  make(map[string]struct{}),
		}
		a.groups[key] = g
	}

	switch ride.Status {
	case models.RideStatusCompleted:
		g.completed++
		if ride.Fare.Valid {
			g.revenue = g.revenue.Add(ride.Fare.Decimal)
		}
	case models.RideStatusCancelled:
		g.cancelled++
	case models.RideStatusLost:
		g.lost++
	default:
		return fmt.Errorf("ride %d: unknown status %q", ride.ID, ride.Status)
	}
	g.total++

	if ride.DriverName != "" {
		g.drivers[ride.DriverName] = struct{}{}
	}
	if ride.RiderName != "" {
		g.riders[ride.RiderName] = struct{}{}
	}
	if ride.Rating != nil {
		g.rating.add(float64(*ride.Rating))
	}
	if ride.DistanceKm != nil {
		g.distance.add(*ride.DistanceKm)
	}
	if ride.DurationMinutes != nil {
		g.duration.add(float64(*ride.DurationMinutes))
	}
	return nil
}

// metrics returns the rollups ordered by day then region.
func (a *metricsAccumulator) metrics() []models.DailyMetric {
	keys := make([]metricsGroupKey, 0, len(a.groups))
	for k := range a.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].day.Equal(keys[j].day) {
			return keys[i].day.Before(keys[j].day)
		}
		return keys[i].region < keys[j].region
	})

	out := make([]models.DailyMetric, 0, len(keys))
	for _, k := range keys {
		out = append(out, buildDailyMetric(k.day, k.region, a.groups[k]))
	}
	return out
}

func buildDailyMetric(day time.Time, region string, g *metricsGroup) models.DailyMetric {
	return models.DailyMetric{
		MetricDate:      day,
		Region:          region,
		TotalRides:      g.total,
		CompletedRides:  g.completed,
		CancelledRides:  g.cancelled,
		LostRides:       g.lost,
		TotalRevenue:    g.revenue,
		ActiveDrivers:   len(g.drivers),
		UniqueRiders:    len(g.riders),
		AverageRating:   g.rating.value(),
		AverageDistance: g.distance.value(),
		AverageDuration: g.duration.value(),
		CompletionRate:  completionRate(g.completed, g.total),
		AverageFare:     averageFare(g.revenue, g.completed),
	}
}

// completionRate is a percentage rounded to two decimals; 0 when total is 0.
func completionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*10000) / 100
}

func averageFare(revenue decimal.Decimal, completed int) float64 {
	if completed == 0 {
		return 0
	}
	return revenue.Div(decimal.NewFromInt(int64(completed))).InexactFloat64()
}
