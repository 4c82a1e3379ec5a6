package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"github.com/re178/mega-facebook-autoposter/generation"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/publish"
	"github.com/re178/mega-facebook-autoposter/validations"
	"github.com/sirupsen/logrus"
)

// Settings is the persisted runtime configuration the operator can change.
type Settings interface {
	AutoGenerationEnabled(ctx context.Context) (bool, error)
	SetAutoGenerationEnabled(ctx context.Context, v bool) error
	SetSchedulerPaused(ctx context.Context, v bool) error
	SetMediaProbability(ctx context.Context, v float64) error
	SetProviderDisabled(ctx context.Context, name string, disabled bool) error
}

// ProviderAdmin is the operator view of the provider registry.
type ProviderAdmin interface {
	Snapshot() []generation.ProviderState
	SetEnabled(name string, enabled bool) error
}

type MediaTuner interface {
	SetMediaProbability(p float64)
}

// PostEdit carries the payload fields to change; nil leaves a field as is.
type PostEdit struct {
	Text     *string `json:"text,omitempty"`
	MediaRef *string `json:"media_ref,omitempty"`
}

// Control is the operator surface shared by the REST API, the MCP tools and
// the CLI.
type Control struct {
	posts     post.Repository
	topics    topic.Repository
	pages     page.Repository
	logs      activity.Repository
	planner   *Planner
	scheduler *Scheduler
	gateway   publish.Gateway
	recorder  activity.Recorder
	settings  Settings
	providers ProviderAdmin
	media     MediaTuner
	now       func() time.Time
}

type ControlDeps struct {
	Posts     post.Repository
	Topics    topic.Repository
	Pages     page.Repository
	Logs      activity.Repository
	Planner   *Planner
	Scheduler *Scheduler
	Gateway   publish.Gateway
	Recorder  activity.Recorder
	Settings  Settings
	Providers ProviderAdmin
	Media     MediaTuner
}

func NewControl(d ControlDeps) *Control {
	return &Control{
		posts:     d.Posts,
		topics:    d.Topics,
		pages:     d.Pages,
		logs:      d.Logs,
		planner:   d.Planner,
		scheduler: d.Scheduler,
		gateway:   d.Gateway,
		recorder:  d.Recorder,
		settings:  d.Settings,
		providers: d.Providers,
		media:     d.Media,
		now:       time.Now,
	}
}

// --- runtime flags ---

func (c *Control) AutoGeneration(ctx context.Context) (bool, error) {
	return c.settings.AutoGenerationEnabled(ctx)
}

func (c *Control) SetAutoGeneration(ctx context.Context, enabled bool) error {
	if err := c.settings.SetAutoGenerationEnabled(ctx, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	c.record(ctx, activity.Entry{
		Action:  activity.ActionAutogenToggled,
		Message: "auto generation " + state,
		Source:  activity.SourceOperator,
		Retain:  true,
	})
	return nil
}

func (c *Control) SetSchedulerPaused(ctx context.Context, paused bool) error {
	if err := c.settings.SetSchedulerPaused(ctx, paused); err != nil {
		return err
	}
	logrus.Infof("[CONTROL] Scheduler paused=%v", paused)
	return nil
}

func (c *Control) SetMediaProbability(ctx context.Context, p float64) error {
	if p < 0 || p > 1 {
		return pkgError.ValidationError("media probability must be between 0 and 1")
	}
	if err := c.settings.SetMediaProbability(ctx, p); err != nil {
		return err
	}
	if c.media != nil {
		c.media.SetMediaProbability(p)
	}
	return nil
}

// --- pages ---

func (c *Control) UpsertPage(ctx context.Context, p page.Page) (page.Page, error) {
	if err := validations.ValidatePage(ctx, p); err != nil {
		return page.Page{}, err
	}
	now := c.now().UTC()
	if existing, err := c.pages.Get(ctx, p.ID); err == nil {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := c.pages.Upsert(ctx, p); err != nil {
		return page.Page{}, err
	}
	return p, nil
}

func (c *Control) ListPages(ctx context.Context) ([]page.Page, error) {
	return c.pages.List(ctx)
}

func (c *Control) DeletePage(ctx context.Context, id string) error {
	return notFound(c.pages.Delete(ctx, id), "page", id)
}

// --- topics ---

func (c *Control) CreateTopic(ctx context.Context, plan topic.Plan) (topic.Plan, error) {
	if plan.Cadence == "" {
		plan.Cadence = topic.CadenceDaily
	}
	if plan.ContentTag == "" {
		plan.ContentTag = post.TagNormal
	}
	if err := validations.ValidateTopicPlan(ctx, plan); err != nil {
		return topic.Plan{}, err
	}
	now := c.now().UTC()
	plan.ID = uuid.NewString()
	plan.GeneratedCount = 0
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if err := c.topics.Create(ctx, plan); err != nil {
		return topic.Plan{}, err
	}
	c.record(ctx, topicEntry(plan, activity.ActionTopicCreated, "topic %q created (%d/day, %s)", plan.Name, plan.PostsPerDay, plan.Cadence))
	return plan, nil
}

func (c *Control) UpdateTopic(ctx context.Context, plan topic.Plan) (topic.Plan, error) {
	existing, err := c.topics.Get(ctx, plan.ID)
	if err != nil {
		return topic.Plan{}, notFound(err, "topic", plan.ID)
	}
	if plan.Cadence == "" {
		plan.Cadence = existing.Cadence
	}
	if plan.ContentTag == "" {
		plan.ContentTag = existing.ContentTag
	}
	plan.OwnerID = existing.OwnerID
	plan.GeneratedCount = existing.GeneratedCount
	plan.CreatedAt = existing.CreatedAt
	plan.UpdatedAt = c.now().UTC()
	if err := validations.ValidateTopicPlan(ctx, plan); err != nil {
		return topic.Plan{}, err
	}
	if err := c.topics.Update(ctx, plan); err != nil {
		return topic.Plan{}, notFound(err, "topic", plan.ID)
	}
	c.record(ctx, topicEntry(plan, activity.ActionTopicUpdated, "topic %q updated", plan.Name))
	return plan, nil
}

// DeleteTopic removes a topic together with every post it produced.
func (c *Control) DeleteTopic(ctx context.Context, id string) error {
	plan, err := c.topics.Get(ctx, id)
	if err != nil {
		return notFound(err, "topic", id)
	}
	items, err := c.posts.ListByTopic(ctx, id)
	if err != nil {
		return err
	}
	if _, err := c.posts.DeleteByTopic(ctx, id); err != nil {
		return err
	}
	for _, item := range items {
		c.record(ctx, itemEntry(item, activity.ActionPostDeleted, activity.SourceOperator, true, "post deleted with its topic"))
	}
	if err := c.topics.Delete(ctx, id); err != nil {
		return notFound(err, "topic", id)
	}
	c.record(ctx, topicEntry(plan, activity.ActionTopicDeleted, "topic %q deleted with %d post(s)", plan.Name, len(items)))
	return nil
}

func (c *Control) ListTopics(ctx context.Context, ownerID string) ([]topic.Plan, error) {
	return c.topics.ListByOwner(ctx, ownerID)
}

// GenerateNow materializes a topic's schedule right away.
func (c *Control) GenerateNow(ctx context.Context, topicID string, immediate bool) (MaterializeReport, error) {
	return c.planner.Materialize(ctx, topicID, immediate)
}

// PreviewTopic expands a plan without storing anything.
func (c *Control) PreviewTopic(plan topic.Plan, immediate bool) ([]Slot, error) {
	return c.planner.Expand(plan, ExpandOptions{Immediate: immediate})
}

// --- posts ---

func (c *Control) CreatePost(ctx context.Context, item post.ScheduledItem) (post.ScheduledItem, error) {
	if item.ContentTag == "" {
		item.ContentTag = post.TagNormal
	}
	if err := validations.ValidateManualPost(ctx, item); err != nil {
		return post.ScheduledItem{}, err
	}
	if _, err := c.pages.Get(ctx, item.OwnerID); err != nil {
		return post.ScheduledItem{}, notFound(err, "page", item.OwnerID)
	}
	now := c.now().UTC()
	item.ID = uuid.NewString()
	item.TopicID = nil
	item.Status = post.StatusPending
	item.RetryCount = 0
	item.LastAttemptAt = nil
	item.LastError = ""
	item.ExternalID = ""
	item.Auto = false
	item.ScheduledAt = item.ScheduledAt.UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if err := c.posts.Create(ctx, item); err != nil {
		return post.ScheduledItem{}, err
	}
	c.record(ctx, itemEntry(item, activity.ActionPostScheduled, activity.SourceOperator, true,
		"manual post scheduled for %s", item.ScheduledAt.Format(time.RFC3339)))
	if !item.ScheduledAt.After(now) && c.scheduler != nil {
		c.scheduler.Notify(ctx)
	}
	return item, nil
}

func (c *Control) GetPost(ctx context.Context, id string) (post.ScheduledItem, error) {
	item, err := c.posts.Get(ctx, id)
	return item, notFound(err, "post", id)
}

func (c *Control) ListPosts(ctx context.Context, ownerID string, limit int) ([]post.ScheduledItem, error) {
	return c.posts.ListByOwner(ctx, ownerID, limit)
}

// RetryPost puts a post back to PENDING with a fresh retry budget. The next
// tick attempts it without waiting for backoff.
func (c *Control) RetryPost(ctx context.Context, id string) (post.ScheduledItem, error) {
	item, err := c.posts.Get(ctx, id)
	if err != nil {
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	if item.Status == post.StatusPosted {
		return post.ScheduledItem{}, pkgError.ConflictError("post was already published")
	}
	err = c.hold(ctx, id, func(ctx context.Context) error {
		return c.resetForRetry(ctx, id)
	})
	if err != nil {
		return post.ScheduledItem{}, err
	}
	item, err = c.posts.Get(ctx, id)
	if err != nil {
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	c.record(ctx, itemEntry(item, activity.ActionRetryTriggered, activity.SourceOperator, true, "manual retry requested"))
	if c.scheduler != nil {
		c.scheduler.Notify(ctx)
	}
	return item, nil
}

// PublishNow delivers a post immediately, regardless of its scheduled time.
func (c *Control) PublishNow(ctx context.Context, id string) (post.ScheduledItem, error) {
	item, err := c.posts.Get(ctx, id)
	if err != nil {
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	if item.Status == post.StatusPosted {
		return post.ScheduledItem{}, pkgError.ConflictError("post was already published")
	}
	if item.Status == post.StatusFailed {
		if err := c.resetForRetry(ctx, id); err != nil {
			return post.ScheduledItem{}, err
		}
	}
	c.record(ctx, itemEntry(item, activity.ActionPostNow, activity.SourceOperator, true, "immediate publish requested"))

	if err := c.scheduler.ProcessNow(ctx, id); err != nil {
		switch {
		case errors.Is(err, common.ErrPostInFlight):
			return post.ScheduledItem{}, pkgError.ConflictError("post is being delivered right now")
		case errors.Is(err, common.ErrPageNotFound):
			return post.ScheduledItem{}, notFound(err, "page", item.OwnerID)
		}
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	return c.GetPost(ctx, id)
}

func (c *Control) DeletePost(ctx context.Context, id string) error {
	item, err := c.posts.Get(ctx, id)
	if err != nil {
		return notFound(err, "post", id)
	}
	if err := c.posts.Delete(ctx, id); err != nil {
		return notFound(err, "post", id)
	}
	c.record(ctx, itemEntry(item, activity.ActionPostDeleted, activity.SourceOperator, true, "post deleted"))
	return nil
}

// EditPost changes the payload of a post that has not been delivered yet.
func (c *Control) EditPost(ctx context.Context, id string, edit PostEdit) (post.ScheduledItem, error) {
	item, err := c.posts.Get(ctx, id)
	if err != nil {
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	if item.Status != post.StatusPending {
		return post.ScheduledItem{}, pkgError.ConflictError(common.ErrPostNotEditable.Error())
	}
	if edit.Text != nil {
		text := strings.TrimSpace(*edit.Text)
		if text == "" && item.TopicID == nil {
			return post.ScheduledItem{}, pkgError.ValidationError("text: cannot be blank")
		}
		item.Text = text
	}
	if edit.MediaRef != nil {
		item.MediaRef = strings.TrimSpace(*edit.MediaRef)
	}

	err = c.hold(ctx, id, func(ctx context.Context) error {
		ok, err := c.posts.UpdatePayload(ctx, id, item.Text, item.MediaRef, c.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return c.notEditable(ctx, id)
		}
		return nil
	})
	if err != nil {
		return post.ScheduledItem{}, err
	}
	if item, err = c.posts.Get(ctx, id); err != nil {
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	c.record(ctx, itemEntry(item, activity.ActionPostEdited, activity.SourceOperator, true, "post payload edited"))
	return item, nil
}

// MarkContent retags a pending post; the tag selects the prompt when its
// text is generated.
func (c *Control) MarkContent(ctx context.Context, id string, tag post.ContentTag) (post.ScheduledItem, error) {
	if tag == "" || !tag.Valid() {
		return post.ScheduledItem{}, pkgError.ValidationError("content tag must be NORMAL, TRENDING or CRITICAL")
	}
	err := c.hold(ctx, id, func(ctx context.Context) error {
		ok, err := c.posts.SetContentTag(ctx, id, tag, c.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return c.notEditable(ctx, id)
		}
		return nil
	})
	if err != nil {
		return post.ScheduledItem{}, err
	}
	item, err := c.posts.Get(ctx, id)
	if err != nil {
		return post.ScheduledItem{}, notFound(err, "post", id)
	}
	c.record(ctx, itemEntry(item, activity.ActionContentMarked, activity.SourceOperator, true, "content marked %s", tag))
	return item, nil
}

// --- activity log ---

func (c *Control) ActivityLog(ctx context.Context, ownerID string, limit int) ([]activity.Entry, error) {
	return c.logs.ListByOwner(ctx, ownerID, limit)
}

func (c *Control) PostHistory(ctx context.Context, itemID string) ([]activity.Entry, error) {
	return c.logs.ListByItem(ctx, itemID)
}

func (c *Control) ClearActivityLog(ctx context.Context, ownerID string) (int64, error) {
	n, err := c.logs.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	c.record(ctx, activity.Entry{
		OwnerID: ownerID,
		Action:  activity.ActionLogsCleared,
		Message: fmt.Sprintf("%d log entries cleared", n),
		Source:  activity.SourceOperator,
		Retain:  true,
	})
	return n, nil
}

// --- providers ---

func (c *Control) Providers() []generation.ProviderState {
	return c.providers.Snapshot()
}

func (c *Control) SetProviderEnabled(ctx context.Context, name string, enabled bool) error {
	if err := c.providers.SetEnabled(name, enabled); err != nil {
		if errors.Is(err, generation.ErrUnknownProvider) {
			return pkgError.NotFoundError(err.Error())
		}
		return err
	}
	return c.settings.SetProviderDisabled(ctx, name, !enabled)
}

// --- replies ---

func (c *Control) Reply(ctx context.Context, ownerID string, thread publish.ThreadRef, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", pkgError.ValidationError("text: cannot be blank")
	}
	pg, err := c.pages.Get(ctx, ownerID)
	if err != nil {
		return "", notFound(err, "page", ownerID)
	}
	id, err := c.gateway.Reply(ctx, thread, publish.Credentials{PageID: pg.ExternalID, AccessToken: pg.AccessToken}, text)
	if err != nil {
		c.record(ctx, activity.Entry{
			OwnerID: ownerID,
			Action:  activity.ActionReplyFailed,
			Message: fmt.Sprintf("reply to %s %s failed (%s): %v", thread.Kind, thread.ID, publish.Classify(err), err),
			Source:  activity.SourceOperator,
			Retain:  true,
		})
		return "", err
	}
	c.record(ctx, activity.Entry{
		OwnerID: ownerID,
		Action:  activity.ActionReplySent,
		Message: fmt.Sprintf("replied to %s %s", thread.Kind, thread.ID),
		Source:  activity.SourceOperator,
		Retain:  true,
	})
	return id, nil
}

// hold runs fn under the item's delivery claim so an operator write never
// lands in the middle of an attempt.
func (c *Control) hold(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	if c.scheduler == nil {
		return fn(ctx)
	}
	err := c.scheduler.Hold(ctx, id, fn)
	if errors.Is(err, common.ErrPostInFlight) {
		return pkgError.ConflictError("post is being delivered right now")
	}
	return err
}

func (c *Control) resetForRetry(ctx context.Context, id string) error {
	ok, err := c.posts.ResetForRetry(ctx, id, c.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		if _, err := c.posts.Get(ctx, id); err != nil {
			return notFound(err, "post", id)
		}
		return pkgError.ConflictError("post was already published")
	}
	return nil
}

// notEditable explains why a guarded write matched no row.
func (c *Control) notEditable(ctx context.Context, id string) error {
	if _, err := c.posts.Get(ctx, id); err != nil {
		return notFound(err, "post", id)
	}
	return pkgError.ConflictError(common.ErrPostNotEditable.Error())
}

func (c *Control) record(ctx context.Context, e activity.Entry) {
	if c.recorder != nil {
		c.recorder.Record(ctx, e)
	}
}

func topicEntry(plan topic.Plan, action activity.Action, format string, args ...any) activity.Entry {
	tid := plan.ID
	return activity.Entry{
		OwnerID: plan.OwnerID,
		TopicID: &tid,
		Action:  action,
		Message: fmt.Sprintf(format, args...),
		Source:  activity.SourceOperator,
		Retain:  true,
	}
}

// notFound converts domain not-found sentinels into the HTTP-facing error.
func notFound(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrPostNotFound), errors.Is(err, common.ErrTopicNotFound), errors.Is(err, common.ErrPageNotFound):
		return pkgError.NotFoundError(fmt.Sprintf("%s %s not found", kind, id))
	}
	return err
}
