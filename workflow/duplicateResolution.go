package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DuplicateResult struct {
	DuplicatesResolved int `json:"duplicates_resolved"`
	GroupsResolved     int `json:"groups_resolved"`
}

// DuplicateResolver collapses rides sharing a natural key into one survivor.
type DuplicateResolver struct {
	db       *gorm.DB
	priority PriorityResolver
	logger   logrus.FieldLogger
}

func NewDuplicateResolver(db *gorm.DB, priority PriorityResolver, logger logrus.FieldLogger) *DuplicateResolver {
	return &DuplicateResolver{db: db, priority: priority, logger: logger}
}

// Resolve keeps one ride per natural key. The survivor is the best ranked
// origin, then the most recently created; fields only populated on a
// discarded duplicate are merged into it before the duplicate is deleted.
func (d *DuplicateResolver) Resolve(ctx context.Context) (DuplicateResult, error) {
	var result DuplicateResult

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keys, err := models.FindDuplicateRideKeys(ctx, tx)
		if err != nil {
			return fmt.Errorf("find duplicate keys: %w", err)
		}
		for _, key := range keys {
			group, err := models.FindRidesByNaturalKey(ctx, tx, key)
			if err != nil {
				return err
			}
			if len(group) < 2 {
				continue
			}
			d.orderSurvivorFirst(group)

			survivor := &group[0]
			changed := false
			ids := make([]int, 0, len(group)-1)
			for i := 1; i < len(group); i++ {
				if survivor.FillMissingFrom(&group[i]) {
					changed = true
				}
				ids = append(ids, group[i].ID)
			}
			if changed {
				if err := tx.WithContext(ctx).Save(survivor).Error; err != nil {
					return err
				}
			}
			if err := tx.WithContext(ctx).Delete(&models.RideRecord{}, ids).Error; err != nil {
				return err
			}
			result.DuplicatesResolved += len(ids)
			result.GroupsResolved++
		}
		return nil
	})
	if err != nil {
		config.LogError(d.logger, "duplicateResolver", "Resolve", "", nil, err)
		return DuplicateResult{}, fmt.Errorf("resolve duplicates: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"groups":     result.GroupsResolved,
		"duplicates": result.DuplicatesResolved,
	}).Info("duplicate rides resolved")
	return result, nil
}

// orderSurvivorFirst sorts by origin rank ascending, then created_at
// descending. ID descending breaks remaining ties so the order is stable.
func (d *DuplicateResolver) orderSurvivorFirst(group []models.RideRecord) {
	sort.SliceStable(group, func(i, j int) bool {
		ri, rj := d.priority.Rank(group[i].Origin), d.priority.Rank(group[j].Origin)
		if ri != rj {
			return ri < rj
		}
		if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		}
		return group[i].ID > group[j].ID
	})
}
