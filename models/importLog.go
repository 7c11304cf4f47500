package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ImportLog audits one bulk-file import. Rows are created when an import
// starts and updated once when it finishes; they are never deleted here.
type ImportLog struct {
	ID           int          `gorm:"primary_key" json:"id"`
	Filename     string       `gorm:"size:255;not null" json:"filename"`
	FileSize     int64        `json:"file_size"`
	ImportType   ImportType   `gorm:"type:varchar(20);not null" json:"import_type"`
	TotalRows    int          `gorm:"not null;default:0" json:"total_rows"`
	SuccessRows  int          `gorm:"not null;default:0" json:"success_rows"`
	ErrorRows    int          `gorm:"not null;default:0" json:"error_rows"`
	Status       ImportStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	ErrorMessage string       `gorm:"type:text" json:"error_message"`
	StartedAt    time.Time    `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at"`
}

func CreateImportLog(ctx context.Context, db *gorm.DB, filename string, size int64, importType ImportType, now time.Time) (*ImportLog, error) {
	log := &ImportLog{
		Filename:   filename,
		FileSize:   size,
		ImportType: importType,
		Status:     ImportStatusProcessing,
		StartedAt:  now,
	}
	if err := db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, err
	}
	return log, nil
}

// FinishImportLog records the final counts and status.
func FinishImportLog(ctx context.Context, db *gorm.DB, log *ImportLog, now time.Time) error {
	log.CompletedAt = &now
	return db.WithContext(ctx).Model(log).Updates(map[string]interface{}{
		"total_rows":    log.TotalRows,
		"success_rows":  log.SuccessRows,
		"error_rows":    log.ErrorRows,
		"status":        log.Status,
		"error_message": log.ErrorMessage,
		"completed_at":  log.CompletedAt,
	}).Error
}

func ListImportLogs(ctx context.Context, db *gorm.DB, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []ImportLog
	err := db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
