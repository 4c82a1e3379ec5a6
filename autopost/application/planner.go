package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"github.com/re178/mega-facebook-autoposter/generation"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/timeutils"
	"github.com/re178/mega-facebook-autoposter/validations"
	"github.com/sirupsen/logrus"
)

type PlannerConfig struct {
	Interval time.Duration
	// MaxIterations bounds the day loop of one expansion.
	MaxIterations int
	// MaxPostsPerTopic caps what the background planner produces per topic.
	MaxPostsPerTopic int
	// GenerateAhead fills text when items are created instead of at delivery.
	GenerateAhead bool
	Location      *time.Location
}

// Slot is one concrete delivery time produced by Expand.
type Slot struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Angle       string    `json:"angle"`
	Index       int       `json:"index"`
}

type ExpandOptions struct {
	// Immediate expands only today, when today is inside the plan window,
	// and keeps slots already in the past.
	Immediate bool
	Now       time.Time
}

type MaterializeReport struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"` // slot already taken
	Failed  int `json:"failed"`  // content generation failed
}

type AutoReport struct {
	Created   int `json:"created"`
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
}

// Planner turns topic plans into scheduled items, on demand and, when the
// auto-generation flag is on, continuously in the background.
type Planner struct {
	topics    topic.Repository
	posts     post.Repository
	generator ContentGenerator
	recorder  activity.Recorder
	autoOn    func(ctx context.Context) bool
	onCreated func(ctx context.Context)

	cfg     PlannerConfig
	now     func() time.Time
	running atomic.Bool
}

type PlannerOption func(*Planner)

func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *Planner) { p.now = now }
}

// WithAutoGenerationFlag gates RunAutoCycle on fn.
func WithAutoGenerationFlag(fn func(ctx context.Context) bool) PlannerOption {
	return func(p *Planner) { p.autoOn = fn }
}

// WithOnCreated is called after a pass created at least one item.
func WithOnCreated(fn func(ctx context.Context)) PlannerOption {
	return func(p *Planner) { p.onCreated = fn }
}

func NewPlanner(
	topics topic.Repository,
	posts post.Repository,
	generator ContentGenerator,
	recorder activity.Recorder,
	cfg PlannerConfig,
	opts ...PlannerOption,
) *Planner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 500
	}
	if cfg.MaxPostsPerTopic <= 0 {
		cfg.MaxPostsPerTopic = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	p := &Planner{
		topics:    topics,
		posts:     posts,
		generator: generator,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Expand computes the delivery slots of plan. It never returns two slots
// with the same time and never iterates more than MaxIterations days.
func (p *Planner) Expand(plan topic.Plan, opts ExpandOptions) ([]Slot, error) {
	if err := validations.ValidateTopicPlan(context.Background(), plan); err != nil {
		return nil, err
	}
	clocks, err := timeutils.ParseClocks(plan.TimeSlots)
	if err != nil {
		return nil, pkgError.PlanningError(err.Error())
	}

	now := opts.Now
	if now.IsZero() {
		now = p.now()
	}
	loc := p.cfg.Location

	day := timeutils.StartOfDay(plan.StartDate, loc)
	last := timeutils.StartOfDay(plan.EndDate, loc)
	if opts.Immediate {
		// Only today, and only while today lies inside the plan window.
		today := timeutils.StartOfDay(now, loc)
		if today.Before(day) || today.After(last) {
			return nil, nil
		}
		day, last = today, today
	}

	var (
		slots []Slot
		seen  = make(map[int64]bool)
		index int
	)
	for i := 0; i < p.cfg.MaxIterations && !day.After(last); i++ {
		for n := 0; n < plan.PostsPerDay; n++ {
			at := clocks[n%len(clocks)].At(day, loc)
			slotIndex := index
			index++
			if seen[at.Unix()] {
				continue
			}
			seen[at.Unix()] = true
			if !opts.Immediate && at.Before(now) {
				continue
			}
			slots = append(slots, Slot{ScheduledAt: at, Angle: generation.AngleFor(slotIndex), Index: slotIndex})
		}
		day = plan.Cadence.Advance(day)
	}
	return slots, nil
}

// Materialize creates the items of a plan that do not exist yet. Calling it
// again on an unchanged plan creates nothing.
func (p *Planner) Materialize(ctx context.Context, topicID string, immediate bool) (MaterializeReport, error) {
	var report MaterializeReport

	plan, err := p.topics.Get(ctx, topicID)
	if err != nil {
		if errors.Is(err, common.ErrTopicNotFound) {
			return report, pkgError.NotFoundError(fmt.Sprintf("topic %s not found", topicID))
		}
		return report, err
	}
	slots, err := p.Expand(plan, ExpandOptions{Immediate: immediate})
	if err != nil {
		return report, err
	}

	for _, slot := range slots {
		exists, err := p.posts.ExistsForTopicAt(ctx, plan.ID, slot.ScheduledAt)
		if err != nil {
			return report, err
		}
		if exists {
			report.Skipped++
			continue
		}

		item := p.newItem(plan, slot.ScheduledAt, slot.Angle, plan.ContentTag)
		if p.cfg.GenerateAhead {
			if !p.fill(ctx, plan, &item) {
				report.Failed++
				continue
			}
		}
		if err := p.posts.Create(ctx, item); err != nil {
			logrus.WithError(err).WithField("topic_id", plan.ID).Warn("[PLANNER] Failed to create post, slot skipped")
			report.Skipped++
			continue
		}
		report.Created++
		p.record(ctx, itemEntry(item, activity.ActionPostScheduled, activity.SourcePlanner, true,
			"post scheduled for %s (%s angle)", item.ScheduledAt.In(p.cfg.Location).Format("2006-01-02 15:04"), item.Angle))
	}

	if report.Created > 0 || report.Failed > 0 {
		tid := plan.ID
		p.record(ctx, activity.Entry{
			OwnerID: plan.OwnerID,
			TopicID: &tid,
			Action:  activity.ActionPostsGenerated,
			Message: fmt.Sprintf("%d post(s) scheduled for %q, %d already present, %d failed to generate", report.Created, plan.Name, report.Skipped, report.Failed),
			Source:  activity.SourcePlanner,
			Retain:  true,
		})
	}
	if report.Created > 0 && p.onCreated != nil {
		p.onCreated(ctx)
	}
	return report, nil
}

// Start runs the background planner until ctx is done.
func (p *Planner) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	logrus.Infof("[PLANNER] Started, cycle every %s", p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("[PLANNER] Stopped")
			return
		case <-ticker.C:
			p.RunAutoCycle(ctx)
		}
	}
}

// RunAutoCycle is one pass of the background planner: expire or complete
// topics, then give every remaining topic its next item when it has none
// pending.
func (p *Planner) RunAutoCycle(ctx context.Context) (report AutoReport) {
	if !p.running.CompareAndSwap(false, true) {
		return report
	}
	defer p.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[PLANNER] Cycle panicked: %v", r)
			p.record(ctx, activity.Entry{
				Action:  activity.ActionSchedulerError,
				Message: fmt.Sprintf("planner cycle crashed: %v", r),
				Source:  activity.SourcePlanner,
				Retain:  true,
			})
		}
	}()

	if p.autoOn == nil || !p.autoOn(ctx) {
		return report
	}

	plans, err := p.topics.ListAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("[PLANNER] Failed to list topics")
		return report
	}

	for _, plan := range plans {
		now := p.now()
		if done, action := p.finished(plan, now); done {
			if err := p.topics.Delete(ctx, plan.ID); err != nil && !errors.Is(err, common.ErrTopicNotFound) {
				logrus.WithError(err).WithField("topic_id", plan.ID).Error("[PLANNER] Failed to delete finished topic")
				continue
			}
			if action == activity.ActionTopicExpired {
				report.Expired++
			} else {
				report.Completed++
			}
			tid := plan.ID
			p.record(ctx, activity.Entry{
				OwnerID: plan.OwnerID,
				TopicID: &tid,
				Action:  action,
				Message: fmt.Sprintf("topic %q removed after %d generated post(s)", plan.Name, plan.GeneratedCount),
				Source:  activity.SourcePlanner,
				Retain:  true,
			})
			continue
		}

		created, err := p.autoGenerate(ctx, plan, now)
		if err != nil {
			logrus.WithError(err).WithField("topic_id", plan.ID).Warn("[PLANNER] Auto generation failed")
			continue
		}
		if created {
			report.Created++
		}
	}

	if report.Created > 0 && p.onCreated != nil {
		p.onCreated(ctx)
	}
	return report
}

// finished reports whether plan should be garbage-collected, and why.
func (p *Planner) finished(plan topic.Plan, now time.Time) (bool, activity.Action) {
	windowEnd := timeutils.StartOfDay(plan.EndDate, p.cfg.Location).AddDate(0, 0, 1)
	if !now.Before(windowEnd) {
		return true, activity.ActionTopicExpired
	}
	if plan.GeneratedCount >= p.cfg.MaxPostsPerTopic || plan.GeneratedCount >= len(generation.Angles) {
		return true, activity.ActionTopicCompleted
	}
	return false, ""
}

func (p *Planner) autoGenerate(ctx context.Context, plan topic.Plan, now time.Time) (bool, error) {
	pending, err := p.posts.CountByTopicAndStatus(ctx, plan.ID, post.StatusPending)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	slots, err := p.Expand(plan, ExpandOptions{Now: now})
	if err != nil {
		return false, err
	}
	var at time.Time
	for _, slot := range slots {
		taken, err := p.posts.ExistsForTopicAt(ctx, plan.ID, slot.ScheduledAt)
		if err != nil {
			return false, err
		}
		if !taken {
			taken, err = p.posts.ExistsForOwnerAt(ctx, plan.OwnerID, slot.ScheduledAt)
			if err != nil {
				return false, err
			}
		}
		if !taken {
			at = slot.ScheduledAt
			break
		}
	}
	if at.IsZero() {
		return false, nil
	}

	tag := plan.ContentTag
	if tag == "" || tag == post.TagNormal {
		if p.generator.DetectCritical(ctx, plan.Name) {
			tag = post.TagCritical
		}
	}

	item := p.newItem(plan, at, generation.AngleFor(plan.GeneratedCount), tag)
	item.Auto = true
	if !p.fill(ctx, plan, &item) {
		return false, nil
	}
	if err := p.posts.Create(ctx, item); err != nil {
		return false, err
	}
	if err := p.topics.IncrementGenerated(ctx, plan.ID); err != nil {
		logrus.WithError(err).WithField("topic_id", plan.ID).Warn("[PLANNER] Failed to bump generated count")
	}
	p.record(ctx, itemEntry(item, activity.ActionPostScheduled, activity.SourcePlanner, true,
		"auto post %d scheduled for %s (%s angle, %s)", plan.GeneratedCount+1,
		at.In(p.cfg.Location).Format("2006-01-02 15:04"), item.Angle, tagLabel(tag)))
	return true, nil
}

func (p *Planner) newItem(plan topic.Plan, at time.Time, angle string, tag post.ContentTag) post.ScheduledItem {
	now := p.now().UTC()
	tid := plan.ID
	if tag == "" {
		tag = post.TagNormal
	}
	return post.ScheduledItem{
		ID:          uuid.NewString(),
		OwnerID:     plan.OwnerID,
		TopicID:     &tid,
		Angle:       angle,
		ScheduledAt: at.UTC(),
		Status:      post.StatusPending,
		ContentTag:  tag,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// fill generates text and, maybe, media for item. It returns false when
// text generation failed; the item must then not be created.
func (p *Planner) fill(ctx context.Context, plan topic.Plan, item *post.ScheduledItem) bool {
	text, ok := p.generator.GenerateText(ctx, generation.TextRequest{
		OwnerID: plan.OwnerID,
		TopicID: item.TopicID,
		Topic:   plan.Name,
		Angle:   item.Angle,
		Tag:     item.ContentTag,
	})
	if !ok {
		return false
	}
	item.Text = text
	if p.generator.ShouldAttemptMedia(plan.IncludeMedia) {
		item.MediaRef, _ = p.generator.GenerateImage(ctx, generation.ImageRequest{
			OwnerID: plan.OwnerID,
			TopicID: item.TopicID,
			Topic:   plan.Name,
		})
	}
	return true
}

func (p *Planner) record(ctx context.Context, e activity.Entry) {
	if p.recorder != nil {
		p.recorder.Record(ctx, e)
	}
}

func tagLabel(tag post.ContentTag) string {
	switch tag {
	case post.TagCritical:
		return "critical"
	case post.TagTrending:
		return "trending"
	}
	return "normal"
}
