package workflow

import (
	"context"
	"fmt"

	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileResult counts the outcome of one reconciliation batch.
// Imported is Created plus Updated; skipped records are not imported.
type ReconcileResult struct {
	Imported int `json:"imported"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

type recordOutcome int

const (
	outcomeCreated recordOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

func (r *ReconcileResult) add(o recordOutcome) {
	switch o {
	case outcomeCreated:
		r.Created++
		r.Imported++
	case outcomeUpdated:
		r.Updated++
		r.Imported++
	case outcomeSkipped:
		r.Skipped++
	}
}

// Reconciler writes externally sourced records into the store while
// respecting origin priority.
type Reconciler struct {
	db       *gorm.DB
	priority PriorityResolver
	validate *validator.Validate
	logger   logrus.FieldLogger
	metrics  *SyncMetrics
}

func NewReconciler(db *gorm.DB, priority PriorityResolver, validate *validator.Validate, logger logrus.FieldLogger, metrics *SyncMetrics) *Reconciler {
	return &Reconciler{
		db:       db,
		priority: priority,
		validate: validate,
		logger:   logger,
		metrics:  metrics,
	}
}

// ReconcileRides matches each ride on its natural key and creates, updates or
// skips it. A failing record is counted and the batch continues; only a
// failure of the surrounding transaction is returned.
func (r *Reconciler) ReconcileRides(ctx context.Context, rides []models.RideRecord, origin models.Origin) (ReconcileResult, error) {
	if !origin.IsValid() {
		return ReconcileResult{}, fmt.Errorf("reconcile rides: invalid origin %q", origin)
	}
	result, err := reconcileEach(ctx, r, "rides", rides, func(tx *gorm.DB, ride *models.RideRecord) (recordOutcome, error) {
		return r.reconcileRide(ctx, tx, ride, origin)
	})
	r.metrics.observeRecords("rides", result)
	return result, err
}

func (r *Reconciler) reconcileRide(ctx context.Context, tx *gorm.DB, in *models.RideRecord, origin models.Origin) (recordOutcome, error) {
	if err := r.validate.Struct(in); err != nil {
		return outcomeSkipped, err
	}
	in.RideAt = models.NormalizeRideTime(in.RideAt)

	existing, err := models.FindRideByNaturalKey(ctx, tx, in.NaturalKey())
	if err != nil {
		return outcomeSkipped, err
	}
	if existing == nil {
		ride := *in
		ride.ID = 0
		ride.Origin = origin
		if err := tx.WithContext(ctx).Create(&ride).Error; err != nil {
			return outcomeSkipped, err
		}
		return outcomeCreated, nil
	}

	if !r.priority.MayOverwrite(existing.Origin, origin) {
		return outcomeSkipped, nil
	}
	existing.ApplyIncoming(in)
	if r.priority.Rank(origin) < r.priority.Rank(existing.Origin) {
		existing.Origin = origin
	}
	if err := tx.WithContext(ctx).Save(existing).Error; err != nil {
		return outcomeSkipped, err
	}
	return outcomeUpdated, nil
}

// reconcileEach runs step for every item inside one transaction. Each item gets
// its own savepoint so a failed statement only rolls back that item.
func reconcileEach[T any](ctx context.Context, r *Reconciler, entity string, items []T, step func(tx *gorm.DB, item *T) (recordOutcome, error)) (ReconcileResult, error) {
	var result ReconcileResult
	if len(items) == 0 {
		return result, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			sp := fmt.Sprintf("rec_%d", i)
			if err := tx.SavePoint(sp).Error; err != nil {
				return err
			}
			outcome, err := step(tx, &items[i])
			if err != nil {
				if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
					return rbErr
				}
				result.Errors++
				r.logger.WithFields(logrus.Fields{
					"entity": entity,
					"index":  i,
				}).WithError(err).Warn("record not reconciled")
				continue
			}
			if err := tx.Exec("RELEASE SAVEPOINT " + sp).Error; err != nil {
				return err
			}
			result.add(outcome)
		}
		return nil
	})
	if err != nil {
		config.LogError(r.logger, "reconciler", "reconcileEach", entity, len(items), err)
		return ReconcileResult{}, fmt.Errorf("reconcile %s: %w", entity, err)
	}

	r.logger.WithFields(logrus.Fields{
		"entity":   entity,
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	}).Info("reconciliation finished")
	return result, nil
}
