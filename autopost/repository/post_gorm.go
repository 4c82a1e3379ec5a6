package repository

import (
	"context"
	"errors"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"gorm.io/gorm"
)

type PostGormRepository struct {
	db *gorm.DB
}

func NewPostGormRepository(db *gorm.DB) *PostGormRepository {
	return &PostGormRepository{db: db}
}

func (r *PostGormRepository) Create(ctx context.Context, item post.ScheduledItem) error {
	model := toScheduledItemModel(item)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *PostGormRepository) Get(ctx context.Context, id string) (post.ScheduledItem, error) {
	var m scheduledItemModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return post.ScheduledItem{}, common.ErrPostNotFound
		}
		return post.ScheduledItem{}, err
	}
	return fromScheduledItemModel(m), nil
}

func (r *PostGormRepository) Update(ctx context.Context, item post.ScheduledItem) error {
	model := toScheduledItemModel(item)
	res := r.db.WithContext(ctx).Model(&scheduledItemModel{}).Where("id = ?", item.ID).Select("*").Omit("id", "created_at").Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrPostNotFound
	}
	return nil
}

func (r *PostGormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&scheduledItemModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrPostNotFound
	}
	return nil
}

func (r *PostGormRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]post.ScheduledItem, error) {
	var models []scheduledItemModel
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromScheduledItemModels(models), nil
}

func (r *PostGormRepository) ListByTopic(ctx context.Context, topicID string) ([]post.ScheduledItem, error) {
	var models []scheduledItemModel
	if err := r.db.WithContext(ctx).Where("topic_id = ?", topicID).Order("scheduled_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromScheduledItemModels(models), nil
}

// ListDue returns every PENDING item whose scheduled time has been reached,
// oldest first. Backoff filtering is left to the caller.
func (r *PostGormRepository) ListDue(ctx context.Context, now time.Time) ([]post.ScheduledItem, error) {
	var models []scheduledItemModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(post.StatusPending), now.UTC()).
		Order("scheduled_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return fromScheduledItemModels(models), nil
}

func (r *PostGormRepository) ExistsForTopicAt(ctx context.Context, topicID string, at time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("topic_id = ? AND scheduled_at = ?", topicID, at.UTC()).
		Count(&count).Error
	return count > 0, err
}

func (r *PostGormRepository) ExistsForOwnerAt(ctx context.Context, ownerID string, at time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("owner_id = ? AND scheduled_at = ?", ownerID, at.UTC()).
		Count(&count).Error
	return count > 0, err
}

func (r *PostGormRepository) CountByTopicAndStatus(ctx context.Context, topicID string, status post.Status) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("topic_id = ? AND status = ?", topicID, string(status)).
		Count(&count).Error
	return count, err
}

func (r *PostGormRepository) MarkAttempt(ctx context.Context, id string, at time.Time) (bool, error) {
	at = at.UTC()
	res := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("id = ? AND status = ?", id, string(post.StatusPending)).
		Updates(map[string]interface{}{
			"last_attempt_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostGormRepository) CompleteAttempt(ctx context.Context, id string, result post.AttemptResult, at time.Time) (bool, error) {
	at = at.UTC()
	updates := map[string]interface{}{
		"status":      string(result.Status),
		"retry_count": result.RetryCount,
		"last_error":  nullString(result.LastError),
		"updated_at":  at,
	}
	if result.ExternalID != "" {
		updates["external_id"] = result.ExternalID
	}
	if result.Text != "" {
		updates["text"] = result.Text
	}
	if result.MediaRef != "" {
		updates["media_ref"] = result.MediaRef
	}

	res := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("id = ? AND status = ?", id, string(post.StatusPending)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostGormRepository) UpdatePayload(ctx context.Context, id, text, mediaRef string, at time.Time) (bool, error) {
	return r.updatePending(ctx, id, map[string]interface{}{
		"text":       nullString(text),
		"media_ref":  nullString(mediaRef),
		"updated_at": at.UTC(),
	})
}

func (r *PostGormRepository) SetContentTag(ctx context.Context, id string, tag post.ContentTag, at time.Time) (bool, error) {
	return r.updatePending(ctx, id, map[string]interface{}{
		"content_tag": nullString(string(tag)),
		"updated_at":  at.UTC(),
	})
}

func (r *PostGormRepository) ResetForRetry(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("id = ? AND status IN ?", id, []string{string(post.StatusPending), string(post.StatusFailed)}).
		Updates(map[string]interface{}{
			"status":          string(post.StatusPending),
			"retry_count":     0,
			"last_error":      nil,
			"last_attempt_at": nil,
			"updated_at":      at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostGormRepository) updatePending(ctx context.Context, id string, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&scheduledItemModel{}).
		Where("id = ? AND status = ?", id, string(post.StatusPending)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostGormRepository) DeleteByTopic(ctx context.Context, topicID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("topic_id = ?", topicID).Delete(&scheduledItemModel{})
	return res.RowsAffected, res.Error
}

func (r *PostGormRepository) DeleteTerminalBefore(ctx context.Context, status post.Status, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), before.UTC()).
		Delete(&scheduledItemModel{})
	return res.RowsAffected, res.Error
}

func fromScheduledItemModels(models []scheduledItemModel) []post.ScheduledItem {
	res := make([]post.ScheduledItem, len(models))
	for i, m := range models {
		res[i] = fromScheduledItemModel(m)
	}
	return res
}
