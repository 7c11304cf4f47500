package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RideRecord is one ride attempt. Several sources may describe the same ride;
// they are matched on NaturalKey, and the table deliberately carries no unique
// constraint on it (collisions are cleaned up by duplicate resolution).
type RideRecord struct {
	ID                 int                 `gorm:"primary_key" json:"id"`
	RideAt             time.Time           `gorm:"not null;index:idx_ride_natural_key,priority:1;index" json:"ride_at" validate:"required"`
	RiderName          string              `gorm:"size:100;not null;index:idx_ride_natural_key,priority:2" json:"rider_name" validate:"required,max=100"`
	RiderPhone         *string             `gorm:"size:20" json:"rider_phone"`
	DriverName         string              `gorm:"size:100;not null;index:idx_ride_natural_key,priority:3" json:"driver_name" validate:"max=100"`
	Region             string              `gorm:"size:50;not null;index:idx_ride_natural_key,priority:4;index" json:"region" validate:"required,max=50"`
	Status             RideStatus          `gorm:"type:varchar(20);not null;index" json:"status" validate:"required"`
	Fare               decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"fare"`
	DistanceKm         *float64            `json:"distance_km" validate:"omitempty,gte=0"`
	DurationMinutes    *int                `json:"duration_minutes" validate:"omitempty,gte=0"`
	Rating             *int                `json:"rating" validate:"omitempty,min=1,max=5"`
	CancellationReason *string             `gorm:"size:255" json:"cancellation_reason"`
	Origin             Origin              `gorm:"type:varchar(20);not null;index" json:"origin"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// RideKey identifies "the same real-world ride" across sources.
type RideKey struct {
	RideAt     time.Time
	RiderName  string
	DriverName string
	Region     string
}

func (r *RideRecord) NaturalKey() RideKey {
	return RideKey{
		RideAt:     r.RideAt,
		RiderName:  r.RiderName,
		DriverName: r.DriverName,
		Region:     r.Region,
	}
}

// ApplyIncoming overwrites fields of r with the non-null values of in.
// Null incoming values never blank a populated field.
func (r *RideRecord) ApplyIncoming(in *RideRecord) {
	if in.RiderPhone != nil {
		r.RiderPhone = in.RiderPhone
	}
	if in.Fare.Valid {
		r.Fare = in.Fare
	}
	if in.DistanceKm != nil {
		r.DistanceKm = in.DistanceKm
	}
	if in.DurationMinutes != nil {
		r.DurationMinutes = in.DurationMinutes
	}
	if in.Rating != nil {
		r.Rating = in.Rating
	}
	if in.CancellationReason != nil {
		r.CancellationReason = in.CancellationReason
	}
	if in.Status.IsValid() {
		r.Status = in.Status
	}
}

// FillMissingFrom copies fields from other only where r has none.
// It reports whether anything changed.
func (r *RideRecord) FillMissingFrom(other *RideRecord) bool {
	changed := false
	if r.RiderPhone == nil && other.RiderPhone != nil {
		r.RiderPhone = other.RiderPhone
		changed = true
	}
	if !r.Fare.Valid && other.Fare.Valid {
		r.Fare = other.Fare
		changed = true
	}
	if r.DistanceKm == nil && other.DistanceKm != nil {
		r.DistanceKm = other.DistanceKm
		changed = true
	}
	if r.DurationMinutes == nil && other.DurationMinutes != nil {
		r.DurationMinutes = other.DurationMinutes
		changed = true
	}
	if r.Rating == nil && other.Rating != nil {
		r.Rating = other.Rating
		changed = true
	}
	if r.CancellationReason == nil && other.CancellationReason != nil {
		r.CancellationReason = other.CancellationReason
		changed = true
	}
	return changed
}

// NormalizeRideTime keeps natural-key timestamps comparable across drivers.
func NormalizeRideTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FindRideByNaturalKey returns nil when no ride matches.
func FindRideByNaturalKey(ctx context.Context, db *gorm.DB, key RideKey) (*RideRecord, error) {
	var ride RideRecord
	err := db.WithContext(ctx).
		Where("ride_at = ? AND rider_name = ? AND driver_name = ? AND region = ?",
			key.RideAt, key.RiderName, key.DriverName, key.Region).
		Order("id").
		Take(&ride).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

// FindRidesByNaturalKey returns every ride sharing key.
func FindRidesByNaturalKey(ctx context.Context, db *gorm.DB, key RideKey) ([]RideRecord, error) {
	var rides []RideRecord
	err := db.WithContext(ctx).
		Where("ride_at = ? AND rider_name = ? AND driver_name = ? AND region = ?",
			key.RideAt, key.RiderName, key.DriverName, key.Region).
		Order("id").
		Find(&rides).Error
	return rides, err
}

// FindDuplicateRideKeys lists natural keys carried by more than one ride.
func FindDuplicateRideKeys(ctx context.Context, db *gorm.DB) ([]RideKey, error) {
	var keys []RideKey
	err := db.WithContext(ctx).
		Model(&RideRecord{}).
		Select("ride_at, rider_name, driver_name, region").
		Group("ride_at, rider_name, driver_name, region").
		Having("COUNT(*) > 1").
		Scan(&keys).Error
	return keys, err
}

// HasRecentRides reports whether any ride of origin was created at or after since.
func HasRecentRides(ctx context.Context, db *gorm.DB, origin Origin, since time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&RideRecord{}).
		Where("origin = ? AND created_at >= ?", origin, since).
		Count(&count).Error
	return count > 0, err
}

// CountByOrigin returns row counts per origin for model.
func CountByOrigin(ctx context.Context, db *gorm.DB, model interface{}) (map[Origin]int64, error) {
	var rows []struct {
		Origin Origin
		Total  int64
	}
	err := db.WithContext(ctx).
		Model(model).
		Select("origin, COUNT(*) AS total").
		Group("origin").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[Origin]int64, len(rows))
	for _, row := range rows {
		out[row.Origin] = row.Total
	}
	return out, nil
}
