package page

import (
	"context"
	"time"
)

// Page is a tenant: one Facebook Page the scheduler publishes to.
type Page struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ExternalID  string    `json:"external_id"` // Facebook page id
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	Upsert(ctx context.Context, p Page) error
	Get(ctx context.Context, id string) (Page, error)
	List(ctx context.Context) ([]Page, error)
	Delete(ctx context.Context, id string) error
}
