package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/pkg/crypto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PageGormRepository struct {
	db     *gorm.DB
	tokens *crypto.TokenCipher
}

type PageRepositoryOption func(*PageGormRepository)

// WithTokenCipher seals access tokens before they are written.
func WithTokenCipher(c *crypto.TokenCipher) PageRepositoryOption {
	return func(r *PageGormRepository) { r.tokens = c }
}

func NewPageGormRepository(db *gorm.DB, opts ...PageRepositoryOption) *PageGormRepository {
	r := &PageGormRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PageGormRepository) Upsert(ctx context.Context, p page.Page) error {
	model := toPageModel(p)
	sealed, err := r.tokens.Seal(model.AccessToken)
	if err != nil {
		return err
	}
	model.AccessToken = sealed
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "external_id", "access_token", "updated_at"}),
	}).Create(&model).Error
}

func (r *PageGormRepository) Get(ctx context.Context, id string) (page.Page, error) {
	var m pageModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return page.Page{}, common.ErrPageNotFound
		}
		return page.Page{}, err
	}
	return r.open(m)
}

func (r *PageGormRepository) List(ctx context.Context) ([]page.Page, error) {
	var models []pageModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]page.Page, len(models))
	for i, m := range models {
		p, err := r.open(m)
		if err != nil {
			return nil, err
		}
		res[i] = p
	}
	return res, nil
}

func (r *PageGormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&pageModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrPageNotFound
	}
	return nil
}

func (r *PageGormRepository) open(m pageModel) (page.Page, error) {
	token, err := r.tokens.Open(m.AccessToken)
	if err != nil {
		return page.Page{}, fmt.Errorf("page %s: %w", m.ID, err)
	}
	m.AccessToken = token
	return fromPageModel(m), nil
}
