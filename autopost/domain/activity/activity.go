package activity

import (
	"context"
	"time"
)

// Action is the closed set of event kinds an activity entry can carry.
type Action string

const (
	ActionPostScheduled      Action = "POST_SCHEDULED"
	ActionPostAttempt        Action = "POST_ATTEMPT"
	ActionPostSuccess        Action = "POST_SUCCESS"
	ActionPostRetryScheduled Action = "POST_RETRY_SCHEDULED"
	ActionPostRetryExhausted Action = "POST_RETRY_EXHAUSTED"
	ActionPostFailed         Action = "POST_FAILED"
	ActionPostSkipped        Action = "POST_SKIPPED"
	ActionPostDiscarded      Action = "POST_DISCARDED"
	ActionPostDeleted        Action = "POST_DELETED"
	ActionPostEdited         Action = "POST_EDITED"
	ActionPostNow            Action = "POST_NOW"
	ActionRetryTriggered     Action = "RETRY_TRIGGERED"
	ActionContentMarked      Action = "CONTENT_MARKED"
	ActionBackoffWait        Action = "BACKOFF_WAIT"
	ActionSchedulerTick      Action = "SCHEDULER_TICK"
	ActionSchedulerError     Action = "SCHEDULER_ERROR"
	ActionGenerationAborted  Action = "GENERATION_ABORTED"
	ActionProviderDisabled   Action = "PROVIDER_DISABLED"
	ActionTopicCreated       Action = "TOPIC_CREATED"
	ActionTopicUpdated       Action = "TOPIC_UPDATED"
	ActionTopicDeleted       Action = "TOPIC_DELETED"
	ActionTopicExpired       Action = "TOPIC_EXPIRED"
	ActionTopicCompleted     Action = "TOPIC_COMPLETED"
	ActionPostsGenerated     Action = "POSTS_GENERATED"
	ActionAutogenToggled     Action = "AUTOGEN_TOGGLED"
	ActionReplySent          Action = "REPLY_SENT"
	ActionReplyFailed        Action = "REPLY_FAILED"
	ActionLogsCleared        Action = "LOGS_CLEARED"
)

// IsRetryClass is true for the entries written once per failed delivery attempt.
func (a Action) IsRetryClass() bool {
	return a == ActionPostRetryScheduled || a == ActionPostRetryExhausted
}

// Source identifies the component that produced an entry.
type Source string

const (
	SourceScheduler Source = "scheduler"
	SourcePlanner   Source = "planner"
	SourceGenerator Source = "generator"
	SourceOperator  Source = "operator"
)

type Entry struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"owner_id,omitempty"` // empty for process-wide events
	TopicID *string `json:"topic_id,omitempty"`
	ItemID  *string `json:"item_id,omitempty"`
	Action  Action  `json:"action"`
	Message string  `json:"message"`
	Source  Source  `json:"source"`
	// Retain selects the long retention window when old entries are purged.
	Retain    bool      `json:"retain"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder is what components use to append to the activity log.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Entry, error)
	ListByItem(ctx context.Context, itemID string) ([]Entry, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
	// Purge removes entries with the given retain flag created before cutoff.
	Purge(ctx context.Context, retain bool, before time.Time) (int64, error)
}
