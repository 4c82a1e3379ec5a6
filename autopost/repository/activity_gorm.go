package repository

import (
	"context"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"gorm.io/gorm"
)

type ActivityGormRepository struct {
	db *gorm.DB
}

func NewActivityGormRepository(db *gorm.DB) *ActivityGormRepository {
	return &ActivityGormRepository{db: db}
}

func (r *ActivityGormRepository) Append(ctx context.Context, e activity.Entry) error {
	model := toActivityEntryModel(e)
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListByOwner returns the newest entries first.
func (r *ActivityGormRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]activity.Entry, error) {
	var models []activityEntryModel
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromActivityEntryModels(models), nil
}

// ListByItem returns an item's entries in the order they were written.
func (r *ActivityGormRepository) ListByItem(ctx context.Context, itemID string) ([]activity.Entry, error) {
	var models []activityEntryModel
	if err := r.db.WithContext(ctx).Where("item_id = ?", itemID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromActivityEntryModels(models), nil
}

func (r *ActivityGormRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&activityEntryModel{})
	return res.RowsAffected, res.Error
}

func (r *ActivityGormRepository) Purge(ctx context.Context, retain bool, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("retain = ? AND created_at < ?", retain, before.UTC()).
		Delete(&activityEntryModel{})
	return res.RowsAffected, res.Error
}

func fromActivityEntryModels(models []activityEntryModel) []activity.Entry {
	res := make([]activity.Entry, len(models))
	for i, m := range models {
		res[i] = fromActivityEntryModel(m)
	}
	return res
}
