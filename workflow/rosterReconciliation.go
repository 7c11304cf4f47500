package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"gorm.io/gorm"
)

// ReconcileDrivers applies the ride rules to the driver roster, keyed on
// (name, region).
func (r *Reconciler) ReconcileDrivers(ctx context.Context, drivers []models.DriverRecord, origin models.Origin) (ReconcileResult, error) {
	if !origin.IsValid() {
		return ReconcileResult{}, fmt.Errorf("reconcile drivers: invalid origin %q", origin)
	}
	result, err := reconcileEach(ctx, r, "drivers", drivers, func(tx *gorm.DB, in *models.DriverRecord) (recordOutcome, error) {
		in.Name = strings.TrimSpace(in.Name)
		in.Region = strings.TrimSpace(in.Region)
		if err := r.validate.Struct(in); err != nil {
			return outcomeSkipped, err
		}
		existing, err := models.FindDriverByNaturalKey(ctx, tx, in.Name, in.Region)
		if err != nil {
			return outcomeSkipped, err
		}
		if existing == nil {
			driver := *in
			driver.ID = 0
			driver.Origin = origin
			return outcomeCreated, tx.WithContext(ctx).Create(&driver).Error
		}
		if !r.priority.MayOverwrite(existing.Origin, origin) {
			return outcomeSkipped, nil
		}
		existing.ApplyIncoming(in)
		if r.priority.Rank(origin) < r.priority.Rank(existing.Origin) {
			existing.Origin = origin
		}
		return outcomeUpdated, tx.WithContext(ctx).Save(existing).Error
	})
	r.metrics.observeRecords("drivers", result)
	return result, err
}

// ReconcileTargets applies the ride rules to monthly targets, keyed on
// (region, month).
func (r *Reconciler) ReconcileTargets(ctx context.Context, targets []models.TargetRecord, origin models.Origin) (ReconcileResult, error) {
	if !origin.IsValid() {
		return ReconcileResult{}, fmt.Errorf("reconcile targets: invalid origin %q", origin)
	}
	result, err := reconcileEach(ctx, r, "targets", targets, func(tx *gorm.DB, in *models.TargetRecord) (recordOutcome, error) {
		in.Region = strings.TrimSpace(in.Region)
		in.Month = models.MonthStart(in.Month)
		if err := r.validate.Struct(in); err != nil {
			return outcomeSkipped, err
		}
		existing, err := models.FindTargetByNaturalKey(ctx, tx, in.Region, in.Month)
		if err != nil {
			return outcomeSkipped, err
		}
		if existing == nil {
			target := *in
			target.ID = 0
			target.Origin = origin
			return outcomeCreated, tx.WithContext(ctx).Create(&target).Error
		}
		if !r.priority.MayOverwrite(existing.Origin, origin) {
			return outcomeSkipped, nil
		}
		existing.ApplyIncoming(in)
		if r.priority.Rank(origin) < r.priority.Rank(existing.Origin) {
			existing.Origin = origin
		}
		return outcomeUpdated, tx.WithContext(ctx).Save(existing).Error
	})
	r.metrics.observeRecords("targets", result)
	return result, err
}
