package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"github.com/re178/mega-facebook-autoposter/autopost/repository"
	"github.com/re178/mega-facebook-autoposter/core/database"
	"github.com/re178/mega-facebook-autoposter/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.NewInMemory()
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(context.Background(), db))
	return db
}

func strPtr(s string) *string { return &s }

func newItem(id, owner string, at time.Time) post.ScheduledItem {
	now := time.Now().UTC()
	return post.ScheduledItem{
		ID:          id,
		OwnerID:     owner,
		Text:        "hello " + id,
		ScheduledAt: at,
		Status:      post.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostRepository_CreateGetUpdateDelete(t *testing.T) {
	repo := repository.NewPostGormRepository(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	item := newItem("p1", "page-1", at)
	item.TopicID = strPtr("t1")
	item.ContentTag = post.TagTrending
	require.NoError(t, repo.Create(ctx, item))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "page-1", got.OwnerID)
	require.NotNil(t, got.TopicID)
	assert.Equal(t, "t1", *got.TopicID)
	assert.True(t, got.ScheduledAt.Equal(at))
	assert.Equal(t, post.TagTrending, got.ContentTag)
	assert.Nil(t, got.LastAttemptAt)

	got.Text = "edited"
	got.RetryCount = 0
	require.NoError(t, repo.Update(ctx, got))
	got, _ = repo.Get(ctx, "p1")
	assert.Equal(t, "edited", got.Text)

	require.NoError(t, repo.Delete(ctx, "p1"))
	_, err = repo.Get(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrPostNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "p1"), common.ErrPostNotFound)
	assert.ErrorIs(t, repo.Update(ctx, got), common.ErrPostNotFound)
}

func TestPostRepository_ListDueOnlyPendingAndReached(t *testing.T) {
	repo := repository.NewPostGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newItem("due", "o", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, newItem("exact", "o", now)))
	require.NoError(t, repo.Create(ctx, newItem("future", "o", now.Add(time.Minute))))
	posted := newItem("posted", "o", now.Add(-time.Hour))
	posted.Status = post.StatusPosted
	require.NoError(t, repo.Create(ctx, posted))

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"due", "exact"}, ids)
}

func TestPostRepository_ExistsAndCount(t *testing.T) {
	repo := repository.NewPostGormRepository(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	item := newItem("p1", "o1", at)
	item.TopicID = strPtr("t1")
	require.NoError(t, repo.Create(ctx, item))

	ok, err := repo.ExistsForTopicAt(ctx, "t1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = repo.ExistsForTopicAt(ctx, "t1", at.Add(time.Hour))
	assert.False(t, ok)
	ok, _ = repo.ExistsForOwnerAt(ctx, "o1", at)
	assert.True(t, ok)
	ok, _ = repo.ExistsForOwnerAt(ctx, "o2", at)
	assert.False(t, ok)

	n, err := repo.CountByTopicAndStatus(ctx, "t1", post.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// (topic, scheduledAt) is unique at the storage level too.
	dup := newItem("p2", "o1", at)
	dup.TopicID = strPtr("t1")
	assert.Error(t, repo.Create(ctx, dup))
}

func TestPostRepository_ConditionalAttemptWrites(t *testing.T) {
	repo := repository.NewPostGormRepository(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newItem("p1", "o", at)))

	attempt := at.Add(5 * time.Second)
	ok, err := repo.MarkAttempt(ctx, "p1", attempt)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := repo.Get(ctx, "p1")
	require.NotNil(t, got.LastAttemptAt)
	assert.True(t, got.LastAttemptAt.Equal(attempt))

	ok, err = repo.CompleteAttempt(ctx, "p1", post.AttemptResult{
		Status:     post.StatusPosted,
		ExternalID: "fb_123",
	}, attempt.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ = repo.Get(ctx, "p1")
	assert.Equal(t, post.StatusPosted, got.Status)
	assert.Equal(t, "fb_123", got.ExternalID)

	// Terminal items are not touched again.
	ok, err = repo.CompleteAttempt(ctx, "p1", post.AttemptResult{Status: post.StatusFailed}, attempt)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = repo.MarkAttempt(ctx, "p1", attempt)
	assert.False(t, ok)

	// Deleted items are not resurrected.
	ok, err = repo.CompleteAttempt(ctx, "missing", post.AttemptResult{Status: post.StatusPosted}, attempt)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrPostNotFound)
}

func TestPostRepository_OperatorWritesKeepDeliveryState(t *testing.T) {
	repo := repository.NewPostGormRepository(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newItem("p1", "o", at)))

	// A failed attempt leaves the item PENDING with retry state.
	ok, err := repo.CompleteAttempt(ctx, "p1", post.AttemptResult{
		Status:     post.StatusPending,
		RetryCount: 1,
		LastError:  "timeout",
	}, at)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = repo.MarkAttempt(ctx, "p1", at)
	require.NoError(t, err)

	ok, err = repo.UpdatePayload(ctx, "p1", "edited", "https://cdn.example/a.png", at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SetContentTag(ctx, "p1", post.TagCritical, at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := repo.Get(ctx, "p1")
	assert.Equal(t, "edited", got.Text)
	assert.Equal(t, "https://cdn.example/a.png", got.MediaRef)
	assert.Equal(t, post.TagCritical, got.ContentTag)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "timeout", got.LastError)
	assert.NotNil(t, got.LastAttemptAt)

	ok, err = repo.CompleteAttempt(ctx, "p1", post.AttemptResult{Status: post.StatusPosted, ExternalID: "fb_1"}, at)
	require.NoError(t, err)
	require.True(t, ok)

	// Delivered items refuse every operator write.
	ok, err = repo.UpdatePayload(ctx, "p1", "late edit", "", at)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = repo.SetContentTag(ctx, "p1", post.TagNormal, at)
	assert.False(t, ok)
	ok, _ = repo.ResetForRetry(ctx, "p1", at)
	assert.False(t, ok)

	got, _ = repo.Get(ctx, "p1")
	assert.Equal(t, post.StatusPosted, got.Status)
	assert.Equal(t, "edited", got.Text)
	assert.Equal(t, "fb_1", got.ExternalID)

	ok, _ = repo.UpdatePayload(ctx, "missing", "x", "", at)
	assert.False(t, ok)
}

func TestPostRepository_ResetForRetry(t *testing.T) {
	repo := repository.NewPostGormRepository(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	failed := newItem("f1", "o", at)
	failed.Status = post.StatusFailed
	failed.RetryCount = 3
	failed.LastError = "boom"
	failed.LastAttemptAt = &at
	require.NoError(t, repo.Create(ctx, failed))

	ok, err := repo.ResetForRetry(ctx, "f1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := repo.Get(ctx, "f1")
	assert.Equal(t, post.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)
	assert.Nil(t, got.LastAttemptAt)
}

func TestPostRepository_DeleteTerminalBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewPostGormRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	old := newItem("old", "o", base)
	old.Status = post.StatusPosted
	old.UpdatedAt = base
	fresh := newItem("fresh", "o", base)
	fresh.Status = post.StatusPosted
	fresh.UpdatedAt = base.Add(time.Hour)
	pending := newItem("pending", "o", base)
	pending.UpdatedAt = base
	for _, it := range []post.ScheduledItem{old, fresh, pending} {
		require.NoError(t, repo.Create(ctx, it))
	}

	n, err := repo.DeleteTerminalBefore(ctx, post.StatusPosted, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Get(ctx, "old")
	assert.ErrorIs(t, err, common.ErrPostNotFound)
	_, err = repo.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "pending")
	assert.NoError(t, err)
}

func TestTopicRepository_RoundTripAndIncrement(t *testing.T) {
	repo := repository.NewTopicGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	plan := topic.Plan{
		ID:          "t1",
		OwnerID:     "o1",
		Name:        "Morning coffee",
		PostsPerDay: 2,
		TimeSlots:   []string{"09:00", "18:00"},
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		Cadence:     topic.CadenceWeekly,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, plan))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "18:00"}, got.TimeSlots)
	assert.Equal(t, topic.CadenceWeekly, got.Cadence)

	require.NoError(t, repo.IncrementGenerated(ctx, "t1"))
	require.NoError(t, repo.IncrementGenerated(ctx, "t1"))
	got, _ = repo.Get(ctx, "t1")
	assert.Equal(t, 2, got.GeneratedCount)

	list, err := repo.ListByOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "t1"))
	_, err = repo.Get(ctx, "t1")
	assert.ErrorIs(t, err, common.ErrTopicNotFound)
}

func TestActivityRepository_PurgeRespectsRetainFlag(t *testing.T) {
	repo := repository.NewActivityGormRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []activity.Entry{
		{ID: "a", OwnerID: "o", Action: activity.ActionSchedulerTick, Message: "tick", CreatedAt: base},
		{ID: "b", OwnerID: "o", Action: activity.ActionPostSuccess, Message: "ok", Retain: true, CreatedAt: base},
		{ID: "c", OwnerID: "o", ItemID: strPtr("p1"), Action: activity.ActionPostAttempt, Message: "try", CreatedAt: base.Add(time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
	}

	n, err := repo.Purge(ctx, false, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := repo.ListByOwner(ctx, "o", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID, "newest first")

	byItem, err := repo.ListByItem(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	require.NotNil(t, byItem[0].ItemID)

	n, err = repo.DeleteByOwner(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPageRepository_Upsert(t *testing.T) {
	repo := repository.NewPageGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, page.Page{ID: "o1", Name: "Shop", ExternalID: "123", AccessToken: "tok", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Upsert(ctx, page.Page{ID: "o1", Name: "Shop", ExternalID: "123", AccessToken: "tok2", CreatedAt: now, UpdatedAt: now}))

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.AccessToken)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "o1"))
	_, err = repo.Get(ctx, "o1")
	assert.ErrorIs(t, err, common.ErrPageNotFound)
}

func TestPageRepository_SealsTokens(t *testing.T) {
	db := setupTestDB(t)
	cipher, err := crypto.NewTokenCipher("page-secret")
	require.NoError(t, err)
	repo := repository.NewPageGormRepository(db, repository.WithTokenCipher(cipher))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, page.Page{ID: "o1", Name: "Shop", ExternalID: "123", AccessToken: "EAAB", CreatedAt: now, UpdatedAt: now}))

	var stored string
	require.NoError(t, db.Table("pages").Select("access_token").Where("id = ?", "o1").Scan(&stored).Error)
	assert.True(t, crypto.IsSealed(stored))

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "EAAB", got.AccessToken)

	plain := repository.NewPageGormRepository(db)
	_, err = plain.Get(ctx, "o1")
	assert.ErrorIs(t, err, crypto.ErrNoKey)
}
