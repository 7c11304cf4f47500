package reports

import (
	"context"
	"math"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultMetricsDays = 30

type DailyMetricsFilter = models.DailyMetricFilter

type DailyMetricsTotals struct {
	TotalRides     int             `json:"total_rides"`
	CompletedRides int             `json:"completed_rides"`
	CancelledRides int             `json:"cancelled_rides"`
	LostRides      int             `json:"lost_rides"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	CompletionRate float64         `json:"completion_rate"`
	AverageFare    float64         `json:"average_fare"`
}

type DailyMetricsResponse struct {
	From    *string              `json:"from"`
	To      *string              `json:"to"`
	Region  string               `json:"region,omitempty"`
	Metrics []models.DailyMetric `json:"metrics"`
	Totals  DailyMetricsTotals   `json:"totals"`
}

// DailyMetricsReport lists the stored rollups of the window and totals them.
// Rates are recomputed from the summed counts, not averaged per day.
func DailyMetricsReport(ctx context.Context, db *gorm.DB, filter DailyMetricsFilter) (*DailyMetricsResponse, error) {
	rows, err := models.ListDailyMetrics(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	resp := &DailyMetricsResponse{
		From:    dateOrNil(filter.From),
		To:      dateOrNil(filter.To),
		Region:  filter.Region,
		Metrics: rows,
	}
	if resp.Metrics == nil {
		resp.Metrics = []models.DailyMetric{}
	}

	t := &resp.Totals
	for _, m := range rows {
		t.TotalRides += m.TotalRides
		t.CompletedRides += m.CompletedRides
		t.CancelledRides += m.CancelledRides
		t.LostRides += m.LostRides
		t.TotalRevenue = t.TotalRevenue.Add(m.TotalRevenue)
	}
	if t.TotalRides > 0 {
		t.CompletionRate = math.Round(float64(t.CompletedRides)/float64(t.TotalRides)*10000) / 100
	}
	if t.CompletedRides > 0 {
		t.AverageFare = t.TotalRevenue.Div(decimal.NewFromInt(int64(t.CompletedRides))).Round(2).InexactFloat64()
	}
	return resp, nil
}

func dateOrNil(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.Format("2006-01-02")
	return &v
}
