package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DriverRecord is one driver on the roster of a region. Natural key: (name, region).
type DriverRecord struct {
	ID           int          `gorm:"primary_key" json:"id"`
	Name         string       `gorm:"size:100;not null;index:idx_driver_natural_key,priority:1" json:"name" validate:"required,max=100"`
	Phone        *string      `gorm:"size:20" json:"phone"`
	Region       string       `gorm:"size:50;not null;index:idx_driver_natural_key,priority:2" json:"region" validate:"required,max=50"`
	Status       DriverStatus `gorm:"type:varchar(20);not null;default:active" json:"status" validate:"required"`
	RegisteredAt *time.Time   `json:"registered_at"`
	Origin       Origin       `gorm:"type:varchar(20);not null;index" json:"origin"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *DriverRecord) ApplyIncoming(in *DriverRecord) {
	if in.Phone != nil {
		d.Phone = in.Phone
	}
	if in.Status.IsValid() {
		d.Status = in.Status
	}
	if in.RegisteredAt != nil && d.RegisteredAt == nil {
		d.RegisteredAt = in.RegisteredAt
	}
}

func FindDriverByNaturalKey(ctx context.Context, db *gorm.DB, name, region string) (*DriverRecord, error) {
	var driver DriverRecord
	err := db.WithContext(ctx).
		Where("name = ? AND region = ?", name, region).
		Order("id").
		Take(&driver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// TargetRecord is the monthly goal of a region. Month is always the first day
// of the month at UTC midnight.
type TargetRecord struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	Region        string              `gorm:"size:50;not null;uniqueIndex:idx_target_region_month,priority:1" json:"region" validate:"required,max=50"`
	Month         time.Time           `gorm:"type:date;not null;uniqueIndex:idx_target_region_month,priority:2" json:"month" validate:"required"`
	TargetRides   int                 `gorm:"not null" json:"target_rides" validate:"gte=0"`
	TargetRevenue decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"target_revenue"`
	TargetDrivers *int                `json:"target_drivers" validate:"omitempty,gte=0"`
	Origin        Origin              `gorm:"type:varchar(20);not null;index" json:"origin"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *TargetRecord) ApplyIncoming(in *TargetRecord) {
	if in.TargetRides > 0 {
		t.TargetRides = in.TargetRides
	}
	if in.TargetRevenue.Valid {
		t.TargetRevenue = in.TargetRevenue
	}
	if in.TargetDrivers != nil {
		t.TargetDrivers = in.TargetDrivers
	}
}

// MonthStart truncates t to the first day of its month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func FindTargetByNaturalKey(ctx context.Context, db *gorm.DB, region string, month time.Time) (*TargetRecord, error) {
	var target TargetRecord
	err := db.WithContext(ctx).
		Where("region = ? AND month = ?", region, MonthStart(month)).
		Take(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &target, nil
}
