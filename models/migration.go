package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&RideRecord{},
		&DriverRecord{},
		&TargetRecord{},
		&DailyMetric{},
		&ExpenseDocument{},
		&ImportLog{},
		&SyncRun{},
	)
}
