package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/sirupsen/logrus"
)

// Monitor is the activity.Recorder shared by every component. It persists
// entries, mirrors them to the process log and fans them out to live
// subscribers. A failed write is logged and dropped.
type Monitor struct {
	repo activity.Repository

	mu     sync.RWMutex
	subs   map[int]func(activity.Entry)
	nextID int
}

var _ activity.Recorder = (*Monitor)(nil)

func NewMonitor(repo activity.Repository) *Monitor {
	return &Monitor{
		repo: repo,
		subs: make(map[int]func(activity.Entry)),
	}
}

func (m *Monitor) Record(ctx context.Context, e activity.Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	fields := logrus.Fields{
		"action": e.Action,
		"source": e.Source,
	}
	if e.OwnerID != "" {
		fields["owner_id"] = e.OwnerID
	}
	if e.ItemID != nil {
		fields["item_id"] = *e.ItemID
	}
	if e.TopicID != nil {
		fields["topic_id"] = *e.TopicID
	}
	entry := logrus.WithFields(fields)
	switch e.Action {
	case activity.ActionPostFailed, activity.ActionSchedulerError, activity.ActionGenerationAborted, activity.ActionReplyFailed:
		entry.Warn("[MONITOR] " + e.Message)
	case activity.ActionSchedulerTick, activity.ActionBackoffWait, activity.ActionPostAttempt:
		entry.Debug("[MONITOR] " + e.Message)
	default:
		entry.Info("[MONITOR] " + e.Message)
	}

	if m.repo != nil {
		if err := m.repo.Append(ctx, e); err != nil {
			logrus.WithError(err).WithField("action", e.Action).Error("[MONITOR] Failed to persist activity entry")
		}
	}

	m.mu.RLock()
	subs := make([]func(activity.Entry), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

// Subscribe registers fn for every future entry. The returned func removes it.
// fn runs on the recording goroutine and must not block.
func (m *Monitor) Subscribe(fn func(activity.Entry)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func itemEntry(item post.ScheduledItem, action activity.Action, source activity.Source, retain bool, format string, args ...any) activity.Entry {
	id := item.ID
	return activity.Entry{
		OwnerID: item.OwnerID,
		TopicID: item.TopicID,
		ItemID:  &id,
		Action:  action,
		Message: fmt.Sprintf(format, args...),
		Source:  source,
		Retain:  retain,
	}
}

// humanizeDelay renders d as "30 seconds" or "2 minutes".
func humanizeDelay(d time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}
