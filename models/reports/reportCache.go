package reports

import (
	"context"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultSlowReport = 500 * time.Millisecond

// Service serves the dashboard read paths through the cache. A nil cache
// disables caching.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	logger logrus.FieldLogger
	slow   time.Duration
	now    func() time.Time
}

func NewService(db *gorm.DB, c cache.Cache, logger logrus.FieldLogger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		logger: logger,
		slow:   defaultSlowReport,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) logSlowReport(ctx context.Context, name string, started time.Time, extra logrus.Fields) {
	d := time.Since(started)
	if d < s.slow {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	s.logger.WithFields(extra).WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
	}).Warn("slow report")
}

// cached returns the value stored under key or computes and stores it.
// Cache failures are logged and fall through to load.
func cached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if s.cache == nil {
		return load()
	}
	var hit T
	ok, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("report cache read failed")
	} else if ok {
		return hit, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("report cache write failed")
	}
	return value, nil
}

func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}

func (s *Service) Overview(ctx context.Context, periodDays int) (*ExpenseOverviewResponse, error) {
	start := time.Now()
	defer s.logSlowReport(ctx, "expense_overview", start, logrus.Fields{"period_days": periodDays})

	key := cache.Key("finance_overview", map[string]interface{}{"period": periodDays, "day": s.today()})
	return cached(ctx, s, key, cache.TTLOverview, func() (*ExpenseOverviewResponse, error) {
		return ExpenseOverview(ctx, s.db, periodDays, s.now())
	})
}

func (s *Service) Suppliers(ctx context.Context, periodDays, limit int) (*SupplierRankingResponse, error) {
	start := time.Now()
	defer s.logSlowReport(ctx, "supplier_ranking", start, logrus.Fields{"period_days": periodDays, "limit": limit})

	key := cache.Key("finance_suppliers", map[string]interface{}{"period": periodDays, "limit": limit, "day": s.today()})
	return cached(ctx, s, key, cache.TTLOverview, func() (*SupplierRankingResponse, error) {
		return SupplierRanking(ctx, s.db, periodDays, limit, s.now())
	})
}

// Grouping is not cached; exports always read the current documents.
func (s *Service) Grouping(ctx context.Context, periodDays int) (ExpenseGrouping, error) {
	docs, err := ListExpenseDocumentsSince(ctx, s.db, periodStart(s.now(), periodDays))
	if err != nil {
		return ExpenseGrouping{}, err
	}
	grouping := GroupExpenseDocuments(docs)
	for _, d := range grouping.Dangling {
		s.logger.WithFields(logrus.Fields{
			"document_id":        d.ID,
			"linked_document_id": *d.LinkedDocumentID,
		}).Warn("payment receipt links to a missing invoice")
	}
	return grouping, nil
}

func (s *Service) DailyMetrics(ctx context.Context, filter DailyMetricsFilter) (*DailyMetricsResponse, error) {
	start := time.Now()
	defer s.logSlowReport(ctx, "daily_metrics", start, logrus.Fields{"from": filter.From, "to": filter.To, "region": filter.Region})

	if filter.From.IsZero() && filter.To.IsZero() {
		filter.To = s.now()
		filter.From = filter.To.AddDate(0, 0, -defaultMetricsDays)
	}
	key := cache.Key("metrics", map[string]interface{}{
		"from":   filter.From.Format("2006-01-02"),
		"to":     filter.To.Format("2006-01-02"),
		"region": filter.Region,
	})
	return cached(ctx, s, key, cache.TTLMetrics, func() (*DailyMetricsResponse, error) {
		return DailyMetricsReport(ctx, s.db, filter)
	})
}
