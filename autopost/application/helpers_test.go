package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"github.com/re178/mega-facebook-autoposter/autopost/repository"
	"github.com/re178/mega-facebook-autoposter/core/database"
	"github.com/re178/mega-facebook-autoposter/generation"
	"github.com/re178/mega-facebook-autoposter/publish"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeGenerator struct {
	mu       sync.Mutex
	fail     bool
	media    string
	mediaOn  bool
	critical bool
	requests []generation.TextRequest
}

func (g *fakeGenerator) GenerateText(_ context.Context, req generation.TextRequest) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.fail {
		return "", false
	}
	return fmt.Sprintf("about %s (%s)", req.Topic, req.Angle), true
}

func (g *fakeGenerator) GenerateImage(context.Context, generation.ImageRequest) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.media, g.media != ""
}

func (g *fakeGenerator) ShouldAttemptMedia(include bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return include && g.mediaOn
}

func (g *fakeGenerator) DetectCritical(context.Context, string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.critical
}

func (g *fakeGenerator) textRequests() []generation.TextRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.TextRequest(nil), g.requests...)
}

type publishedPost struct {
	Creds    publish.Credentials
	Text     string
	MediaRef string
}

type fakeGateway struct {
	mu        sync.Mutex
	err       error
	replyErr  error
	calls     int
	published []publishedPost
	replies   []publish.ThreadRef
	// onPublish runs before the result is returned, outside the lock.
	onPublish func()
}

func (g *fakeGateway) Publish(_ context.Context, creds publish.Credentials, text, mediaRef string) (string, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	err := g.err
	hook := g.onPublish
	if err == nil {
		g.published = append(g.published, publishedPost{Creds: creds, Text: text, MediaRef: mediaRef})
	}
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("fb_%d", n), nil
}

func (g *fakeGateway) Reply(_ context.Context, thread publish.ThreadRef, _ publish.Credentials, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replyErr != nil {
		return "", g.replyErr
	}
	g.replies = append(g.replies, thread)
	return "reply_" + thread.ID, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type testEnv struct {
	db      *gorm.DB
	posts   *repository.PostGormRepository
	topics  *repository.TopicGormRepository
	pages   *repository.PageGormRepository
	logs    *repository.ActivityGormRepository
	monitor *Monitor
	gen     *fakeGenerator
	gateway *fakeGateway
	clock   *testClock
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(context.Background(), db))

	logs := repository.NewActivityGormRepository(db)
	return &testEnv{
		db:      db,
		posts:   repository.NewPostGormRepository(db),
		topics:  repository.NewTopicGormRepository(db),
		pages:   repository.NewPageGormRepository(db),
		logs:    logs,
		monitor: NewMonitor(logs),
		gen:     &fakeGenerator{},
		gateway: &fakeGateway{},
		clock:   newTestClock(now),
	}
}

func (e *testEnv) scheduler(cfg SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	opts = append([]SchedulerOption{WithSchedulerClock(e.clock.Now)}, opts...)
	return NewScheduler(e.posts, e.topics, e.pages, e.gen, e.gateway, e.monitor, cfg, opts...)
}

func (e *testEnv) planner(cfg PlannerConfig, opts ...PlannerOption) *Planner {
	opts = append([]PlannerOption{WithPlannerClock(e.clock.Now)}, opts...)
	return NewPlanner(e.topics, e.posts, e.gen, e.monitor, cfg, opts...)
}

func (e *testEnv) addPage(t *testing.T, id string) {
	t.Helper()
	now := e.clock.Now()
	require.NoError(t, e.pages.Upsert(context.Background(), page.Page{
		ID:          id,
		Name:        "Page " + id,
		ExternalID:  "fb-" + id,
		AccessToken: "token-" + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func (e *testEnv) addItem(t *testing.T, id, owner string, at time.Time, text string) post.ScheduledItem {
	t.Helper()
	now := e.clock.Now()
	item := post.ScheduledItem{
		ID:          id,
		OwnerID:     owner,
		Text:        text,
		ScheduledAt: at,
		Status:      post.StatusPending,
		ContentTag:  post.TagNormal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.posts.Create(context.Background(), item))
	return item
}

func (e *testEnv) addTopic(t *testing.T, plan topic.Plan) topic.Plan {
	t.Helper()
	if plan.Cadence == "" {
		plan.Cadence = topic.CadenceDaily
	}
	now := e.clock.Now()
	plan.CreatedAt, plan.UpdatedAt = now, now
	require.NoError(t, e.topics.Create(context.Background(), plan))
	return plan
}

func (e *testEnv) item(t *testing.T, id string) post.ScheduledItem {
	t.Helper()
	item, err := e.posts.Get(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (e *testEnv) actions(t *testing.T, itemID string) map[activity.Action]int {
	t.Helper()
	entries, err := e.logs.ListByItem(context.Background(), itemID)
	require.NoError(t, err)
	counts := make(map[activity.Action]int)
	for _, en := range entries {
		counts[en.Action]++
	}
	return counts
}

func (e *testEnv) ownerActions(t *testing.T, owner string) map[activity.Action]int {
	t.Helper()
	entries, err := e.logs.ListByOwner(context.Background(), owner, 0)
	require.NoError(t, err)
	counts := make(map[activity.Action]int)
	for _, en := range entries {
		counts[en.Action]++
	}
	return counts
}

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}
