package repository

import (
	"context"
	"errors"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"gorm.io/gorm"
)

type TopicGormRepository struct {
	db *gorm.DB
}

func NewTopicGormRepository(db *gorm.DB) *TopicGormRepository {
	return &TopicGormRepository{db: db}
}

func (r *TopicGormRepository) Create(ctx context.Context, p topic.Plan) error {
	model := toTopicPlanModel(p)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *TopicGormRepository) Get(ctx context.Context, id string) (topic.Plan, error) {
	var m topicPlanModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return topic.Plan{}, common.ErrTopicNotFound
		}
		return topic.Plan{}, err
	}
	return fromTopicPlanModel(m), nil
}

func (r *TopicGormRepository) Update(ctx context.Context, p topic.Plan) error {
	model := toTopicPlanModel(p)
	res := r.db.WithContext(ctx).Model(&topicPlanModel{}).Where("id = ?", p.ID).Select("*").Omit("id", "created_at").Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrTopicNotFound
	}
	return nil
}

func (r *TopicGormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&topicPlanModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrTopicNotFound
	}
	return nil
}

func (r *TopicGormRepository) ListByOwner(ctx context.Context, ownerID string) ([]topic.Plan, error) {
	var models []topicPlanModel
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromTopicPlanModels(models), nil
}

func (r *TopicGormRepository) ListAll(ctx context.Context) ([]topic.Plan, error) {
	var models []topicPlanModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromTopicPlanModels(models), nil
}

func (r *TopicGormRepository) IncrementGenerated(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&topicPlanModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"generated_count": gorm.Expr("generated_count + 1"),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func fromTopicPlanModels(models []topicPlanModel) []topic.Plan {
	res := make([]topic.Plan, len(models))
	for i, m := range models {
		res[i] = fromTopicPlanModel(m)
	}
	return res
}
