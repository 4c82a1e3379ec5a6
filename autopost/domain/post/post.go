package post

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPosted  Status = "POSTED"
	StatusFailed  Status = "FAILED"
)

// IsTerminal reports whether no further delivery attempts will be made.
func (s Status) IsTerminal() bool {
	return s == StatusPosted || s == StatusFailed
}

// ContentTag classifies an item for prompt selection.
type ContentTag string

const (
	TagNormal   ContentTag = "NORMAL"
	TagTrending ContentTag = "TRENDING"
	TagCritical ContentTag = "CRITICAL"
)

func (t ContentTag) Valid() bool {
	switch t {
	case "", TagNormal, TagTrending, TagCritical:
		return true
	}
	return false
}

// ScheduledItem is one unit of future delivery work.
type ScheduledItem struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	TopicID       *string    `json:"topic_id,omitempty"` // nil for manually created items
	Text          string     `json:"text"`
	MediaRef      string     `json:"media_ref,omitempty"`
	Angle         string     `json:"angle,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Status        Status     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
	ContentTag    ContentTag `json:"content_tag,omitempty"`
	Auto          bool       `json:"auto"` // produced by the background planner
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NeedsContent reports whether the text still has to be generated before delivery.
func (i ScheduledItem) NeedsContent() bool {
	return i.Text == "" && i.TopicID != nil
}

// AttemptResult is the outcome written back after one delivery attempt.
type AttemptResult struct {
	Status     Status
	RetryCount int
	LastError  string
	ExternalID string
	Text       string
	MediaRef   string
}

// Repository is the persistence contract the scheduler and planner rely on.
type Repository interface {
	Create(ctx context.Context, item ScheduledItem) error
	Get(ctx context.Context, id string) (ScheduledItem, error)
	Update(ctx context.Context, item ScheduledItem) error
	Delete(ctx context.Context, id string) error

	ListByOwner(ctx context.Context, ownerID string, limit int) ([]ScheduledItem, error)
	ListByTopic(ctx context.Context, topicID string) ([]ScheduledItem, error)
	ListDue(ctx context.Context, now time.Time) ([]ScheduledItem, error)

	// ExistsForTopicAt reports whether an item already occupies (topicID, at).
	ExistsForTopicAt(ctx context.Context, topicID string, at time.Time) (bool, error)
	// ExistsForOwnerAt reports whether any item of the owner occupies at.
	ExistsForOwnerAt(ctx context.Context, ownerID string, at time.Time) (bool, error)
	CountByTopicAndStatus(ctx context.Context, topicID string, status Status) (int64, error)

	// MarkAttempt stamps lastAttemptAt on a still-PENDING item. It returns
	// false when the item is gone or no longer pending.
	MarkAttempt(ctx context.Context, id string, at time.Time) (bool, error)
	// CompleteAttempt writes the attempt outcome on a still-PENDING item.
	// It returns false when the item was deleted or changed meanwhile.
	CompleteAttempt(ctx context.Context, id string, res AttemptResult, at time.Time) (bool, error)

	// UpdatePayload and SetContentTag only touch a PENDING item. They
	// return false when the item is gone or has left PENDING.
	UpdatePayload(ctx context.Context, id, text, mediaRef string, at time.Time) (bool, error)
	SetContentTag(ctx context.Context, id string, tag ContentTag, at time.Time) (bool, error)
	// ResetForRetry puts a PENDING or FAILED item back to PENDING with an
	// empty retry budget. POSTED items are never reset.
	ResetForRetry(ctx context.Context, id string, at time.Time) (bool, error)

	DeleteByTopic(ctx context.Context, topicID string) (int64, error)
	DeleteTerminalBefore(ctx context.Context, status Status, before time.Time) (int64, error)
}
