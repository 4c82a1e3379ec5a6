package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type scheduledItemModel struct {
	ID            string         `gorm:"primaryKey;column:id"`
	OwnerID       string         `gorm:"column:owner_id;not null;index;index:idx_owner_slot"`
	TopicID       sql.NullString `gorm:"column:topic_id;index;uniqueIndex:idx_topic_slot"`
	Text          sql.NullString `gorm:"column:text"`
	MediaRef      sql.NullString `gorm:"column:media_ref"`
	Angle         sql.NullString `gorm:"column:angle"`
	ScheduledAt   time.Time      `gorm:"column:scheduled_at;not null;index;uniqueIndex:idx_topic_slot;index:idx_owner_slot"`
	Status        string         `gorm:"column:status;default:'PENDING';index"`
	RetryCount    int            `gorm:"column:retry_count;default:0"`
	LastAttemptAt *time.Time     `gorm:"column:last_attempt_at"`
	LastError     sql.NullString `gorm:"column:last_error"`
	ExternalID    sql.NullString `gorm:"column:external_id"`
	ContentTag    sql.NullString `gorm:"column:content_tag"`
	Auto          bool           `gorm:"column:auto;default:false"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null;index;autoUpdateTime:false"`
}

func (scheduledItemModel) TableName() string { return "scheduled_items" }

type topicPlanModel struct {
	ID             string         `gorm:"primaryKey;column:id"`
	OwnerID        string         `gorm:"column:owner_id;not null;index"`
	Name           string         `gorm:"column:name;not null"`
	PostsPerDay    int            `gorm:"column:posts_per_day;not null;default:1"`
	TimeSlots      string         `gorm:"column:time_slots;type:text"` // JSON
	StartDate      time.Time      `gorm:"column:start_date;not null"`
	EndDate        time.Time      `gorm:"column:end_date;not null"`
	Cadence        string         `gorm:"column:cadence;default:'daily'"`
	IncludeMedia   bool           `gorm:"column:include_media;default:false"`
	ContentTag     sql.NullString `gorm:"column:content_tag"`
	GeneratedCount int            `gorm:"column:generated_count;default:0"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (topicPlanModel) TableName() string { return "topic_plans" }

type activityEntryModel struct {
	ID        string         `gorm:"primaryKey;column:id"`
	OwnerID   string         `gorm:"column:owner_id;index"`
	TopicID   sql.NullString `gorm:"column:topic_id"`
	ItemID    sql.NullString `gorm:"column:item_id;index"`
	Action    string         `gorm:"column:action;not null"`
	Message   string         `gorm:"column:message;not null"`
	Source    string         `gorm:"column:source"`
	Retain    bool           `gorm:"column:retain;default:false;index:idx_retain_created"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index:idx_retain_created"`
}

func (activityEntryModel) TableName() string { return "activity_log" }

type pageModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	Name        string    `gorm:"column:name;not null"`
	ExternalID  string    `gorm:"column:external_id;not null;uniqueIndex"`
	AccessToken string    `gorm:"column:access_token;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (pageModel) TableName() string { return "pages" }

// AutoMigrate creates or updates every table owned by this package.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&scheduledItemModel{},
		&topicPlanModel{},
		&activityEntryModel{},
		&pageModel{},
	)
}

// --- Mappers ---

func toScheduledItemModel(i post.ScheduledItem) scheduledItemModel {
	var lastAttempt *time.Time
	if i.LastAttemptAt != nil {
		t := i.LastAttemptAt.UTC()
		lastAttempt = &t
	}
	return scheduledItemModel{
		ID:            i.ID,
		OwnerID:       i.OwnerID,
		TopicID:       nullString(derefString(i.TopicID)),
		Text:          nullString(i.Text),
		MediaRef:      nullString(i.MediaRef),
		Angle:         nullString(i.Angle),
		ScheduledAt:   i.ScheduledAt.UTC(),
		Status:        string(i.Status),
		RetryCount:    i.RetryCount,
		LastAttemptAt: lastAttempt,
		LastError:     nullString(i.LastError),
		ExternalID:    nullString(i.ExternalID),
		ContentTag:    nullString(string(i.ContentTag)),
		Auto:          i.Auto,
		CreatedAt:     i.CreatedAt.UTC(),
		UpdatedAt:     i.UpdatedAt.UTC(),
	}
}

func fromScheduledItemModel(m scheduledItemModel) post.ScheduledItem {
	item := post.ScheduledItem{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Text:          nullStringValue(m.Text),
		MediaRef:      nullStringValue(m.MediaRef),
		Angle:         nullStringValue(m.Angle),
		ScheduledAt:   m.ScheduledAt.UTC(),
		Status:        post.Status(m.Status),
		RetryCount:    m.RetryCount,
		LastAttemptAt: m.LastAttemptAt,
		LastError:     nullStringValue(m.LastError),
		ExternalID:    nullStringValue(m.ExternalID),
		ContentTag:    post.ContentTag(nullStringValue(m.ContentTag)),
		Auto:          m.Auto,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.TopicID.Valid && m.TopicID.String != "" {
		id := m.TopicID.String
		item.TopicID = &id
	}
	return item
}

func toTopicPlanModel(p topic.Plan) topicPlanModel {
	slots, _ := json.Marshal(p.TimeSlots)
	return topicPlanModel{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		PostsPerDay:    p.PostsPerDay,
		TimeSlots:      string(slots),
		StartDate:      p.StartDate.UTC(),
		EndDate:        p.EndDate.UTC(),
		Cadence:        string(p.Cadence),
		IncludeMedia:   p.IncludeMedia,
		ContentTag:     nullString(string(p.ContentTag)),
		GeneratedCount: p.GeneratedCount,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func fromTopicPlanModel(m topicPlanModel) topic.Plan {
	var slots []string
	if m.TimeSlots != "" && m.TimeSlots != "null" {
		_ = json.Unmarshal([]byte(m.TimeSlots), &slots)
	}
	return topic.Plan{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Name:           m.Name,
		PostsPerDay:    m.PostsPerDay,
		TimeSlots:      slots,
		StartDate:      m.StartDate.UTC(),
		EndDate:        m.EndDate.UTC(),
		Cadence:        topic.Cadence(m.Cadence),
		IncludeMedia:   m.IncludeMedia,
		ContentTag:     post.ContentTag(nullStringValue(m.ContentTag)),
		GeneratedCount: m.GeneratedCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toActivityEntryModel(e activity.Entry) activityEntryModel {
	return activityEntryModel{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		TopicID:   nullString(derefString(e.TopicID)),
		ItemID:    nullString(derefString(e.ItemID)),
		Action:    string(e.Action),
		Message:   e.Message,
		Source:    string(e.Source),
		Retain:    e.Retain,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func fromActivityEntryModel(m activityEntryModel) activity.Entry {
	e := activity.Entry{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Action:    activity.Action(m.Action),
		Message:   m.Message,
		Source:    activity.Source(m.Source),
		Retain:    m.Retain,
		CreatedAt: m.CreatedAt,
	}
	if v := nullStringValue(m.TopicID); v != "" {
		e.TopicID = &v
	}
	if v := nullStringValue(m.ItemID); v != "" {
		e.ItemID = &v
	}
	return e
}

func toPageModel(p page.Page) pageModel {
	return pageModel{
		ID:          p.ID,
		Name:        p.Name,
		ExternalID:  p.ExternalID,
		AccessToken: p.AccessToken,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func fromPageModel(m pageModel) page.Page {
	return page.Page{
		ID:          m.ID,
		Name:        m.Name,
		ExternalID:  m.ExternalID,
		AccessToken: m.AccessToken,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullStringValue returns a trimmed string or empty if null to prevent legacy data panics.
func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return strings.TrimSpace(ns.String)
}
