package topic

import (
	"context"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
)

type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Advance moves t forward by one cadence period.
func (c Cadence) Advance(t time.Time) time.Time {
	switch c {
	case CadenceWeekly:
		return t.AddDate(0, 0, 7)
	case CadenceMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Plan is a recurring generation definition.
type Plan struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Name         string          `json:"name"`
	PostsPerDay  int             `json:"posts_per_day"`
	TimeSlots    []string        `json:"time_slots"` // "HH:MM", ordered
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Cadence      Cadence         `json:"cadence"`
	IncludeMedia bool            `json:"include_media"`
	ContentTag   post.ContentTag `json:"content_tag,omitempty"`
	// GeneratedCount is the number of items the background planner has produced.
	GeneratedCount int       `json:"generated_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, p Plan) error
	Get(ctx context.Context, id string) (Plan, error)
	Update(ctx context.Context, p Plan) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]Plan, error)
	ListAll(ctx context.Context) ([]Plan, error)
	IncrementGenerated(ctx context.Context, id string) error
}
