package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSource struct {
	rides     Batch[models.RideRecord]
	drivers   Batch[models.DriverRecord]
	targets   Batch[models.TargetRecord]
	driverErr error
	calls     int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchRides(context.Context) (Batch[models.RideRecord], error) {
	f.calls++
	return f.rides, nil
}

func (f *fakeSource) FetchDrivers(context.Context) (Batch[models.DriverRecord], error) {
	return f.drivers, f.driverErr
}

func (f *fakeSource) FetchTargets(context.Context) (Batch[models.TargetRecord], error) {
	return f.targets, nil
}

var syncNow = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestSyncService(t *testing.T, db *gorm.DB, source ExternalSource, c cache.Cache, collectors *SyncMetrics) *SyncService {
	t.Helper()
	logger := quietLogger()
	priority := NewPriorityResolver()
	return NewSyncService(SyncDependencies{
		DB:         db,
		Source:     source,
		Reconciler: NewReconciler(db, priority, utils.NewValidator(), logger, collectors),
		Metrics:    NewMetricsAggregator(db, logger),
		Duplicates: NewDuplicateResolver(db, priority, logger),
		Cache:      c,
		Collectors: collectors,
		Logger:     logger,
		Config:     config.SyncConfig{FreshnessMinutes: 30, LookbackDays: 30},
		Now:        func() time.Time { return syncNow },
	})
}

func sampleSource() *fakeSource {
	completed := ride(syncNow.Add(-48*time.Hour), "Ana", "Carlos", "São Paulo", models.RideStatusCompleted)
	completed.Fare = fare("25.50")
	cancelled := ride(syncNow.Add(-47*time.Hour), "Bia", "Carlos", "São Paulo", models.RideStatusCancelled)
	return &fakeSource{
		rides: Batch[models.RideRecord]{Records: []models.RideRecord{completed, cancelled}, Rejected: 1},
		drivers: Batch[models.DriverRecord]{Records: []models.DriverRecord{
			{Name: "Carlos", Region: "São Paulo", Status: models.DriverStatusActive},
		}},
		targets: Batch[models.TargetRecord]{Records: []models.TargetRecord{
			{Region: "São Paulo", Month: syncNow, TargetRides: 300},
		}},
	}
}

func TestSyncAll_RunsEveryStage(t *testing.T) {
	db := setupTestDB(t)
	c := cache.NewMemoryCache(time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "dashboard:overview:abc", 1, time.Minute))

	registry := prometheus.NewRegistry()
	collectors, err := NewSyncMetrics(registry)
	require.NoError(t, err)

	svc := newTestSyncService(t, db, sampleSource(), c, collectors)
	result := svc.SyncAll(ctx, false, models.SyncTriggeredManual)

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Source)
	assert.False(t, result.Source.Skipped)
	assert.Equal(t, 2, result.Source.Rides.Imported)
	assert.Equal(t, 1, result.Source.Rides.Errors)
	assert.Equal(t, 1, result.Source.Drivers.Created)
	assert.Equal(t, 1, result.Source.Targets.Created)
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 1, result.Metrics.MetricsCreated)
	require.NotNil(t, result.Duplicates)
	require.NotNil(t, result.Summary)
	assert.Equal(t, int64(2), result.Summary.Rides[models.OriginSheets])
	assert.Equal(t, int64(1), result.Summary.Drivers[models.OriginSheets])

	run, err := models.LastSyncRun(ctx, db)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, result.RunID, run.ID)
	assert.Equal(t, models.SyncRunStatusPartial, run.Status)
	assert.Equal(t, 1, run.ErrorCount)
	assert.NotNil(t, run.FinishedAt)

	var cached int
	found, err := c.Get(ctx, "dashboard:overview:abc", &cached)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.runs.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collectors.records.WithLabelValues("rides", "created")))
}

func TestSyncAll_FreshDataSkipsSourceUnlessForced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// created_at is the real clock, so make the service clock agree
	recent := ride(syncNow.Add(-72*time.Hour), "Caio", "Dora", "Campinas", models.RideStatusLost)
	recent.Origin = models.OriginSheets
	require.NoError(t, db.Create(&recent).Error)

	source := sampleSource()
	svc := newTestSyncService(t, db, source, nil, nil)
	svc.Now = func() time.Time { return recent.CreatedAt.Add(5 * time.Minute) }

	result := svc.SyncAll(ctx, false, models.SyncTriggeredSystem)
	require.True(t, result.Success, result.Error)
	assert.True(t, result.Source.Skipped)
	assert.NotEmpty(t, result.Source.Reason)
	assert.Zero(t, source.calls)
	assert.NotNil(t, result.Metrics)
	assert.NotNil(t, result.Summary)

	forced := svc.SyncAll(ctx, true, models.SyncTriggeredManual)
	require.True(t, forced.Success, forced.Error)
	assert.False(t, forced.Source.Skipped)
	assert.Equal(t, 1, source.calls)
}

func TestSyncAll_StageFailureKeepsEarlierEffects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	source := sampleSource()
	source.driverErr = errors.New("sheet unavailable")
	svc := newTestSyncService(t, db, source, nil, nil)

	result := svc.SyncAll(ctx, true, models.SyncTriggeredManual)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "sheet unavailable")
	require.NotNil(t, result.Source)
	require.NotNil(t, result.Source.Rides)
	assert.Equal(t, 2, result.Source.Rides.Imported)
	assert.Nil(t, result.Source.Drivers)
	assert.Nil(t, result.Metrics)
	assert.Nil(t, result.Duplicates)
	assert.Nil(t, result.Summary)

	var rides int64
	require.NoError(t, db.Model(&models.RideRecord{}).Count(&rides).Error)
	assert.Equal(t, int64(2), rides)

	run, err := models.LastSyncRun(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "sheet unavailable")
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context) (func(context.Context) error, error) {
	return nil, utils.ErrSyncInProgress
}

func TestSyncAll_RefusesConcurrentRun(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestSyncService(t, db, sampleSource(), nil, nil)
	svc.Locker = busyLocker{}

	result := svc.SyncAll(context.Background(), true, models.SyncTriggeredManual)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, utils.ErrSyncInProgress)

	run, err := models.LastSyncRun(context.Background(), db)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestLocalSyncLocker(t *testing.T) {
	locker := NewSyncLocker(nil, time.Minute, nil)
	ctx := context.Background()

	release, err := locker.TryLock(ctx)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx)
	assert.ErrorIs(t, err, utils.ErrSyncInProgress)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := locker.TryLock(ctx)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestSyncService_Status(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestSyncService(t, db, sampleSource(), nil, nil)
	ctx := context.Background()

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LastRun)
	assert.Equal(t, "fake", status.Source)

	svc.SyncAll(ctx, true, models.SyncTriggeredManual)
	status, err = svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, int64(2), status.Summary.Rides[models.OriginSheets])
}

func TestSyncSource_RequiresSource(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestSyncService(t, db, nil, nil, nil)

	out, err := svc.SyncSource(context.Background(), true)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, utils.ErrSourceNotConfigured)

	result := svc.SyncAll(context.Background(), true, models.SyncTriggeredManual)
	assert.True(t, result.Success)
	require.NotNil(t, result.Source)
	assert.True(t, result.Source.Skipped)
}
