package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/daaty/dashboard-mobilidade-urbana-main/workflow")

// Batch is what an external source returns for one entity: the rows that
// converted into typed records and the number that did not.
type Batch[T any] struct {
	Records  []T
	Rejected int
}

// ExternalSource supplies records owned by the spreadsheet origin.
type ExternalSource interface {
	FetchRides(ctx context.Context) (Batch[models.RideRecord], error)
	FetchDrivers(ctx context.Context) (Batch[models.DriverRecord], error)
	FetchTargets(ctx context.Context) (Batch[models.TargetRecord], error)
	// Name identifies the source in results and logs ("google_sheets", "mock").
	Name() string
}

type SourceStageResult struct {
	Source  string           `json:"source"`
	Skipped bool             `json:"skipped"`
	Reason  string           `json:"reason,omitempty"`
	Rides   *ReconcileResult `json:"rides,omitempty"`
	Drivers *ReconcileResult `json:"drivers,omitempty"`
	Targets *ReconcileResult `json:"targets,omitempty"`
}

func (s *SourceStageResult) errorCount() int {
	n := 0
	for _, r := range []*ReconcileResult{s.Rides, s.Drivers, s.Targets} {
		if r != nil {
			n += r.Errors
		}
	}
	return n
}

// SyncSummary counts stored records per origin after a sync.
type SyncSummary struct {
	Rides         map[models.Origin]int64 `json:"rides"`
	Drivers       map[models.Origin]int64 `json:"drivers"`
	Targets       map[models.Origin]int64 `json:"targets"`
	RecentMetrics int64                   `json:"recent_metrics"`
}

// SyncResult is always returned, also on failure. Stages that ran before a
// failure keep their results and their effects.
type SyncResult struct {
	Success    bool               `json:"success"`
	RunID      uint               `json:"run_id,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Source     *SourceStageResult `json:"google_sheets,omitempty"`
	Metrics    *MetricsResult     `json:"metrics,omitempty"`
	Duplicates *DuplicateResult   `json:"duplicates,omitempty"`
	Summary    *SyncSummary       `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`

	Err error `json:"-"`
}

type SyncDependencies struct {
	DB         *gorm.DB
	Source     ExternalSource
	Reconciler *Reconciler
	Metrics    *MetricsAggregator
	Duplicates *DuplicateResolver
	Locker     SyncLocker
	Cache      cache.Cache
	Collectors *SyncMetrics
	Logger     logrus.FieldLogger
	Config     config.SyncConfig
	Now        func() time.Time
}

// SyncService sequences a full sync:
// source → reconcile → recompute metrics → resolve duplicates → summary.
type SyncService struct {
	SyncDependencies
}

func NewSyncService(deps SyncDependencies) *SyncService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Locker == nil {
		deps.Locker = NewSyncLocker(nil, 0, deps.Logger)
	}
	return &SyncService{SyncDependencies: deps}
}

func (s *SyncService) now() time.Time {
	return s.Now().UTC()
}

// SyncAll runs every stage in order. Without force, the source stage is skipped
// when spreadsheet rides were stored within the freshness window.
func (s *SyncService) SyncAll(ctx context.Context, force bool, trigger models.SyncTrigger) SyncResult {
	started := s.now()
	result := SyncResult{Timestamp: started}

	release, err := s.Locker.TryLock(ctx)
	if err != nil {
		return s.fail(result, "lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Logger.WithError(err).Warn("sync lock not released")
		}
	}()

	ctx, span := tracer.Start(ctx, "sync.all")
	span.SetAttributes(attribute.Bool("sync.force", force), attribute.String("sync.trigger", string(trigger)))
	defer span.End()

	run, err := models.StartSyncRun(ctx, s.DB, trigger, force, started)
	if err != nil {
		return s.fail(result, "audit", err)
	}
	result.RunID = run.ID

	result = s.runStages(ctx, force, result)

	s.finishRun(ctx, run, &result)
	if result.Success {
		s.invalidateCache(ctx)
	} else {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

func (s *SyncService) runStages(ctx context.Context, force bool, result SyncResult) SyncResult {
	sourceResult, err := s.syncSource(ctx, force)
	result.Source = sourceResult
	if err != nil {
		return s.fail(result, "source", err)
	}

	start := s.now().Add(-s.Config.Lookback())
	metrics, err := s.recompute(ctx, start)
	if err != nil {
		return s.fail(result, "metrics", err)
	}
	result.Metrics = &metrics

	duplicates, err := s.resolveDuplicates(ctx)
	if err != nil {
		return s.fail(result, "duplicates", err)
	}
	result.Duplicates = &duplicates

	summary, err := s.Summary(ctx)
	if err != nil {
		return s.fail(result, "summary", err)
	}
	result.Summary = summary
	result.Success = true
	return result
}

func (s *SyncService) fail(result SyncResult, stage string, err error) SyncResult {
	result.Success = false
	result.Err = err
	result.Error = err.Error()
	if errors.Is(err, context.Canceled) {
		result.Error = "sync cancelled"
	}
	config.LogError(s.Logger, "syncService", "SyncAll", stage, result.RunID, err)
	return result
}

// stage wraps fn in a span and records its duration.
func stage[T any](ctx context.Context, s *SyncService, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "sync."+name)
	defer span.End()

	out, err := fn(ctx)
	s.Collectors.observeStage(name, started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.Logger.WithFields(logrus.Fields{
		"stage":    name,
		"duration": time.Since(started).String(),
	}).Debug("sync stage finished")
	return out, err
}

func (s *SyncService) syncSource(ctx context.Context, force bool) (*SourceStageResult, error) {
	return stage(ctx, s, "source", func(ctx context.Context) (*SourceStageResult, error) {
		if s.Source == nil {
			return &SourceStageResult{Skipped: true, Reason: "source not configured"}, nil
		}
		out := &SourceStageResult{Source: s.Source.Name()}

		if !force {
			since := s.now().Add(-s.Config.Freshness())
			fresh, err := models.HasRecentRides(ctx, s.DB, models.OriginSheets, since)
			if err != nil {
				return out, fmt.Errorf("freshness check: %w", err)
			}
			if fresh {
				out.Skipped = true
				out.Reason = fmt.Sprintf("data synced within the last %d minutes", int(s.Config.Freshness().Minutes()))
				return out, nil
			}
		}

		rides, err := s.Source.FetchRides(ctx)
		if err != nil {
			return out, fmt.Errorf("fetch rides: %w", err)
		}
		ridesResult, err := s.Reconciler.ReconcileRides(ctx, rides.Records, models.OriginSheets)
		if err != nil {
			return out, err
		}
		ridesResult.Errors += rides.Rejected
		out.Rides = &ridesResult

		drivers, err := s.Source.FetchDrivers(ctx)
		if err != nil {
			return out, fmt.Errorf("fetch drivers: %w", err)
		}
		driversResult, err := s.Reconciler.ReconcileDrivers(ctx, drivers.Records, models.OriginSheets)
		if err != nil {
			return out, err
		}
		driversResult.Errors += drivers.Rejected
		out.Drivers = &driversResult

		targets, err := s.Source.FetchTargets(ctx)
		if err != nil {
			return out, fmt.Errorf("fetch targets: %w", err)
		}
		targetsResult, err := s.Reconciler.ReconcileTargets(ctx, targets.Records, models.OriginSheets)
		if err != nil {
			return out, err
		}
		targetsResult.Errors += targets.Rejected
		out.Targets = &targetsResult
		return out, nil
	})
}

func (s *SyncService) recompute(ctx context.Context, start time.Time) (MetricsResult, error) {
	return stage(ctx, s, "metrics", func(ctx context.Context) (MetricsResult, error) {
		return s.Metrics.Recompute(ctx, start)
	})
}

func (s *SyncService) resolveDuplicates(ctx context.Context) (DuplicateResult, error) {
	return stage(ctx, s, "duplicates", func(ctx context.Context) (DuplicateResult, error) {
		return s.Duplicates.Resolve(ctx)
	})
}

// RecomputeMetrics runs the metrics stage alone.
func (s *SyncService) RecomputeMetrics(ctx context.Context, start time.Time) (MetricsResult, error) {
	out, err := s.recompute(ctx, start)
	if err == nil {
		s.invalidateCache(ctx)
	}
	return out, err
}

// ResolveDuplicates runs the duplicate stage alone.
func (s *SyncService) ResolveDuplicates(ctx context.Context) (DuplicateResult, error) {
	out, err := s.resolveDuplicates(ctx)
	if err == nil && out.DuplicatesResolved > 0 {
		s.invalidateCache(ctx)
	}
	return out, err
}

func (s *SyncService) Summary(ctx context.Context) (*SyncSummary, error) {
	rides, err := models.CountByOrigin(ctx, s.DB, &models.RideRecord{})
	if err != nil {
		return nil, err
	}
	drivers, err := models.CountByOrigin(ctx, s.DB, &models.DriverRecord{})
	if err != nil {
		return nil, err
	}
	targets, err := models.CountByOrigin(ctx, s.DB, &models.TargetRecord{})
	if err != nil {
		return nil, err
	}
	recent, err := models.CountDailyMetricsSince(ctx, s.DB, s.now().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	return &SyncSummary{
		Rides:         rides,
		Drivers:       drivers,
		Targets:       targets,
		RecentMetrics: recent,
	}, nil
}

type SyncStatus struct {
	Summary *SyncSummary    `json:"summary"`
	LastRun *models.SyncRun `json:"last_run"`
	Source  string          `json:"source"`
}

func (s *SyncService) Status(ctx context.Context) (*SyncStatus, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	last, err := models.LastSyncRun(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	status := &SyncStatus{Summary: summary, LastRun: last}
	if s.Source != nil {
		status.Source = s.Source.Name()
	}
	return status, nil
}

func (s *SyncService) finishRun(ctx context.Context, run *models.SyncRun, result *SyncResult) {
	errorCount := 0
	if result.Source != nil {
		errorCount = result.Source.errorCount()
	}
	run.ErrorCount = errorCount
	switch {
	case !result.Success:
		run.Status = models.SyncRunStatusFailed
		run.ErrorMessage = result.Error
	case errorCount > 0:
		run.Status = models.SyncRunStatusPartial
	default:
		run.Status = models.SyncRunStatusSuccess
	}
	if stats, err := json.Marshal(result); err == nil {
		run.StatsJSON = stats
	}

	finished := s.now()
	if err := models.FinishSyncRun(context.WithoutCancel(ctx), s.DB, run, finished); err != nil {
		config.LogError(s.Logger, "syncService", "finishRun", "", run.ID, err)
	}
	s.Collectors.observeRun(string(run.Status), finished, result.Success)

	s.Logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"status":      run.Status,
		"error_count": run.ErrorCount,
		"duration_ms": run.DurationMs,
	}).Info("sync finished")
}

func (s *SyncService) invalidateCache(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	n, err := s.Cache.InvalidatePattern(ctx, cache.KeyPrefix+":*")
	if err != nil {
		s.Logger.WithError(err).Warn("cache invalidation failed")
		return
	}
	s.Logger.WithField("keys", n).Debug("cache invalidated")
}

// SyncSource runs only the spreadsheet stage, under the same lock as SyncAll.
// Unlike SyncAll, a missing source is an error here.
func (s *SyncService) SyncSource(ctx context.Context, force bool) (*SourceStageResult, error) {
	if s.Source == nil {
		return nil, utils.ErrSourceNotConfigured
	}
	release, err := s.Locker.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Logger.WithError(err).Warn("sync lock not released")
		}
	}()

	out, err := s.syncSource(ctx, force)
	if err != nil {
		config.LogError(s.Logger, "syncService", "SyncSource", "", force, err)
		return out, err
	}
	if !out.Skipped {
		s.invalidateCache(ctx)
	}
	return out, nil
}

func (s *SyncService) Runs(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return models.ListSyncRuns(ctx, s.DB, limit)
}

// DefaultMetricsStart is the first day recomputed when no start is given.
func (s *SyncService) DefaultMetricsStart() time.Time {
	return models.DayStart(s.now().Add(-s.Config.Lookback()))
}
