package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/autopost/repository"
	"github.com/re178/mega-facebook-autoposter/core/database"
	settingsApp "github.com/re178/mega-facebook-autoposter/core/settings/application"
	"github.com/re178/mega-facebook-autoposter/generation"
	"github.com/re178/mega-facebook-autoposter/publish"
	"github.com/re178/mega-facebook-autoposter/ui/rest/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) GenerateText(_ context.Context, req generation.TextRequest) (string, bool) {
	return "post about " + req.Topic, true
}

func (stubGenerator) GenerateImage(context.Context, generation.ImageRequest) (string, bool) {
	return "", false
}

func (stubGenerator) ShouldAttemptMedia(bool) bool { return false }

func (stubGenerator) DetectCritical(context.Context, string) bool { return false }

type stubGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *stubGateway) Publish(context.Context, publish.Credentials, string, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return fmt.Sprintf("fb_%d", g.calls), nil
}

func (g *stubGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *stubGateway) Reply(_ context.Context, thread publish.ThreadRef, _ publish.Credentials, _ string) (string, error) {
	return "reply_" + thread.ID, nil
}

type stubTextProvider struct{}

func (stubTextProvider) Name() string { return "openai" }

func (stubTextProvider) DailyLimit() int { return 0 }

func (stubTextProvider) Generate(context.Context, string) (string, error) { return "text", nil }

type apiResponse struct {
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Results json.RawMessage `json:"results"`
}

func newTestApp(t *testing.T) (*fiber.App, *stubGateway) {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(ctx, db))

	settings := settingsApp.NewSettingsService(db)
	require.NoError(t, settings.Init(ctx))

	posts := repository.NewPostGormRepository(db)
	topics := repository.NewTopicGormRepository(db)
	pages := repository.NewPageGormRepository(db)
	logs := repository.NewActivityGormRepository(db)
	monitor := application.NewMonitor(logs)
	gateway := &stubGateway{}

	registry := generation.NewRegistry(generation.RegistryConfig{}, monitor)
	require.NoError(t, registry.Register(generation.KindText, stubTextProvider{}))

	gen := stubGenerator{}
	control := application.NewControl(application.ControlDeps{
		Posts:     posts,
		Topics:    topics,
		Pages:     pages,
		Logs:      logs,
		Planner:   application.NewPlanner(topics, posts, gen, monitor, application.PlannerConfig{}),
		Scheduler: application.NewScheduler(posts, topics, pages, gen, gateway, monitor, application.SchedulerConfig{}),
		Gateway:   gateway,
		Recorder:  monitor,
		Settings:  settings,
		Providers: registry,
	})

	app := fiber.New()
	app.Use(middleware.Recovery())
	api := app.Group("/api")
	InitRestApp(api)
	InitRestSystem(api, control)
	InitRestPages(api, control)
	InitRestTopics(api, control, time.UTC)
	InitRestPosts(api, control)
	return app, gateway
}

func call(t *testing.T, app *fiber.App, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func addPage(t *testing.T, app *fiber.App, id string) {
	t.Helper()
	status, _ := call(t, app, http.MethodPut, "/api/pages/"+id, PageRequest{Name: "Page", ExternalID: "fb-" + id, AccessToken: "token"})
	require.Equal(t, http.StatusOK, status)
}

func TestPages(t *testing.T) {
	app, _ := newTestApp(t)
	addPage(t, app, "p1")

	status, res := call(t, app, http.MethodGet, "/api/pages", nil)
	require.Equal(t, http.StatusOK, status)
	var pages []map[string]any
	require.NoError(t, json.Unmarshal(res.Results, &pages))
	require.Len(t, pages, 1)
	assert.Equal(t, "fb-p1", pages[0]["external_id"])
	assert.NotContains(t, pages[0], "access_token")

	status, res = call(t, app, http.MethodPut, "/api/pages/p2", PageRequest{Name: "No token"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status, _ = call(t, app, http.MethodDelete, "/api/pages/p1", nil)
	assert.Equal(t, http.StatusOK, status)
	status, res = call(t, app, http.MethodDelete, "/api/pages/p1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}

func TestTopicLifecycle(t *testing.T) {
	app, _ := newTestApp(t)
	addPage(t, app, "p1")

	req := TopicRequest{
		OwnerID:     "p1",
		Name:        "Morning coffee",
		PostsPerDay: 2,
		TimeSlots:   []string{"09:00", "18:00"},
		StartDate:   "2099-01-01",
		EndDate:     "2099-01-02",
	}

	status, res := call(t, app, http.MethodPost, "/api/topics/preview", req)
	require.Equal(t, http.StatusOK, status)
	var slots []application.Slot
	require.NoError(t, json.Unmarshal(res.Results, &slots))
	require.Len(t, slots, 4)
	assert.Equal(t, time.Date(2099, 1, 1, 9, 0, 0, 0, time.UTC), slots[0].ScheduledAt.UTC())

	status, res = call(t, app, http.MethodPost, "/api/topics?generate=true", req)
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		Topic     struct{ ID string }           `json:"topic"`
		Generated application.MaterializeReport `json:"generated"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &created))
	assert.NotEmpty(t, created.Topic.ID)
	assert.Equal(t, 4, created.Generated.Created)

	status, res = call(t, app, http.MethodGet, "/api/pages/p1/posts", nil)
	require.Equal(t, http.StatusOK, status)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(res.Results, &items))
	assert.Len(t, items, 4)

	status, res = call(t, app, http.MethodPost, "/api/topics/"+created.Topic.ID+"/generate", nil)
	require.Equal(t, http.StatusOK, status)
	var again application.MaterializeReport
	require.NoError(t, json.Unmarshal(res.Results, &again))
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 4, again.Skipped)

	status, _ = call(t, app, http.MethodDelete, "/api/topics/"+created.Topic.ID, nil)
	require.Equal(t, http.StatusOK, status)
	_, res = call(t, app, http.MethodGet, "/api/pages/p1/posts", nil)
	require.NoError(t, json.Unmarshal(res.Results, &items))
	assert.Empty(t, items)
}

func TestTopicRejectsBadPlans(t *testing.T) {
	app, _ := newTestApp(t)

	status, res := call(t, app, http.MethodPost, "/api/topics", TopicRequest{
		OwnerID: "p1", Name: "x", PostsPerDay: 1, TimeSlots: []string{"09:00"},
		StartDate: "01/01/2099", EndDate: "2099-01-02",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "PLANNING_ERROR", res.Code)

	status, res = call(t, app, http.MethodPost, "/api/topics", TopicRequest{
		OwnerID: "p1", Name: "x", PostsPerDay: 1, TimeSlots: []string{"9am"},
		StartDate: "2099-01-01", EndDate: "2099-01-02",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "PLANNING_ERROR", res.Code)
}

func TestManualPostFlow(t *testing.T) {
	app, gateway := newTestApp(t)
	addPage(t, app, "p1")

	status, res := call(t, app, http.MethodPost, "/api/posts", PostRequest{
		OwnerID:     "p1",
		Text:        "hello world",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, status)
	var item struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &item))
	assert.Equal(t, "PENDING", item.Status)

	status, res = call(t, app, http.MethodPut, "/api/posts/"+item.ID+"/tag", MarkContentRequest{Tag: "URGENT"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status, _ = call(t, app, http.MethodPatch, "/api/posts/"+item.ID, map[string]string{"text": "edited"})
	require.Equal(t, http.StatusOK, status)

	status, res = call(t, app, http.MethodPost, "/api/posts/"+item.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(res.Results, &item))
	assert.Equal(t, "POSTED", item.Status)
	assert.Equal(t, 1, gateway.Calls())

	status, res = call(t, app, http.MethodPost, "/api/posts/"+item.ID+"/publish", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT_ERROR", res.Code)

	status, _ = call(t, app, http.MethodPatch, "/api/posts/"+item.ID, map[string]string{"text": "too late"})
	assert.Equal(t, http.StatusConflict, status)

	status, res = call(t, app, http.MethodGet, "/api/posts/"+item.ID+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	var history []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &history))
	var actions []string
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Contains(t, actions, "POST_SCHEDULED")
	assert.Contains(t, actions, "POST_EDITED")
	assert.Contains(t, actions, "POST_NOW")
	assert.Contains(t, actions, "POST_SUCCESS")

	status, res = call(t, app, http.MethodGet, "/api/posts/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}

func TestPostForUnknownPage(t *testing.T) {
	app, _ := newTestApp(t)

	status, res := call(t, app, http.MethodPost, "/api/posts", PostRequest{
		OwnerID:     "ghost",
		Text:        "hello",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}

func TestSettingsAndProviders(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := call(t, app, http.MethodPut, "/api/settings/autogen", ToggleRequest{Enabled: true})
	require.Equal(t, http.StatusOK, status)
	_, res := call(t, app, http.MethodGet, "/api/settings/autogen", nil)
	var state struct{ Enabled bool }
	require.NoError(t, json.Unmarshal(res.Results, &state))
	assert.True(t, state.Enabled)

	status, res = call(t, app, http.MethodPut, "/api/settings/media", MediaProbabilityRequest{Probability: 1.5})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status, res = call(t, app, http.MethodPut, "/api/providers/openai", ToggleRequest{Enabled: false})
	require.Equal(t, http.StatusOK, status)
	var providers []generation.ProviderState
	require.NoError(t, json.Unmarshal(res.Results, &providers))
	require.Len(t, providers, 1)
	assert.False(t, providers[0].Enabled)

	status, res = call(t, app, http.MethodPut, "/api/providers/nope", ToggleRequest{Enabled: true})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}

func TestActivityLogAndReplies(t *testing.T) {
	app, _ := newTestApp(t)
	addPage(t, app, "p1")

	status, res := call(t, app, http.MethodPost, "/api/pages/p1/replies", ReplyRequest{Kind: "tweet", ID: "c1", Text: "thanks"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status, res = call(t, app, http.MethodPost, "/api/pages/p1/replies", ReplyRequest{Kind: "comment", ID: "c1", Text: "thanks"})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":"reply_c1"}`, string(res.Results))

	_, res = call(t, app, http.MethodGet, "/api/pages/p1/logs", nil)
	var entries []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "REPLY_SENT", entries[0].Action)

	status, _ = call(t, app, http.MethodDelete, "/api/pages/p1/logs", nil)
	require.Equal(t, http.StatusOK, status)
	_, res = call(t, app, http.MethodGet, "/api/pages/p1/logs", nil)
	require.NoError(t, json.Unmarshal(res.Results, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "LOGS_CLEARED", entries[0].Action)
}

func TestHealthStatus(t *testing.T) {
	app := fiber.New()
	InitRestHealth(app.Group("/api"), map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"valkey":   PingFunc(func(context.Context) error { return fmt.Errorf("connection refused") }),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
