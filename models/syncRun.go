package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// SyncRun is the audit row of one full sync.
type SyncRun struct {
	ID           uint          `gorm:"primary_key" json:"id"`
	TriggeredBy  SyncTrigger   `gorm:"type:varchar(20);not null" json:"triggered_by"`
	Force        bool          `gorm:"not null;default:false" json:"force"`
	Status       SyncRunStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	StatsJSON    []byte        `gorm:"type:text" json:"stats"`
	ErrorCount   int           `gorm:"not null;default:0" json:"error_count"`
	ErrorMessage string        `gorm:"type:text" json:"error_message"`
	StartedAt    time.Time     `gorm:"not null;index" json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at"`
	DurationMs   int64         `json:"duration_ms"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func StartSyncRun(ctx context.Context, db *gorm.DB, trigger SyncTrigger, force bool, now time.Time) (*SyncRun, error) {
	run := &SyncRun{
		TriggeredBy: trigger,
		Force:       force,
		Status:      SyncRunStatusRunning,
		StartedAt:   now,
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func FinishSyncRun(ctx context.Context, db *gorm.DB, run *SyncRun, finishedAt time.Time) error {
	run.FinishedAt = &finishedAt
	run.DurationMs = finishedAt.Sub(run.StartedAt).Milliseconds()
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":        run.Status,
		"stats_json":    run.StatsJSON,
		"error_count":   run.ErrorCount,
		"error_message": run.ErrorMessage,
		"finished_at":   run.FinishedAt,
		"duration_ms":   run.DurationMs,
	}).Error
}

// LastSyncRun returns nil when no run has been recorded.
func LastSyncRun(ctx context.Context, db *gorm.DB) (*SyncRun, error) {
	var run SyncRun
	err := db.WithContext(ctx).Order("started_at DESC, id DESC").Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func ListSyncRuns(ctx context.Context, db *gorm.DB, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []SyncRun
	err := db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
