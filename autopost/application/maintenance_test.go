package application

import (
	"context"
	"testing"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenance_RunOnceRemovesExpiredData(t *testing.T) {
	now := date(2024, 3, 10, 12, 0)
	env := newTestEnv(t, now)
	ctx := context.Background()

	old := now.Add(-48 * time.Hour)
	for id, status := range map[string]post.Status{"posted-old": post.StatusPosted, "failed-old": post.StatusFailed, "pending-old": post.StatusPending} {
		item := env.addItem(t, id, "p1", old, "x")
		item.Status = status
		item.UpdatedAt = old
		require.NoError(t, env.posts.Update(ctx, item))
	}
	recent := env.addItem(t, "posted-recent", "p1", now, "x")
	recent.Status = post.StatusPosted
	recent.UpdatedAt = now.Add(-time.Hour)
	require.NoError(t, env.posts.Update(ctx, recent))

	require.NoError(t, env.logs.Append(ctx, activity.Entry{ID: "l1", Action: activity.ActionPostAttempt, Message: "old", CreatedAt: old}))
	require.NoError(t, env.logs.Append(ctx, activity.Entry{ID: "l2", Action: activity.ActionPostFailed, Message: "old kept", Retain: true, CreatedAt: old}))
	require.NoError(t, env.logs.Append(ctx, activity.Entry{ID: "l3", Action: activity.ActionPostAttempt, Message: "new", CreatedAt: now}))

	m := NewMaintenance(env.posts, env.logs, MaintenanceConfig{
		PostedRetention: 24 * time.Hour,
		FailedRetention: 24 * time.Hour,
		LogRetention:    24 * time.Hour,
	})
	m.now = env.clock.Now

	report, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.PostedRemoved)
	assert.Equal(t, int64(1), report.FailedRemoved)
	assert.Equal(t, int64(1), report.LogsPurged)

	_, err = env.posts.Get(ctx, "pending-old")
	assert.NoError(t, err)
	_, err = env.posts.Get(ctx, "posted-recent")
	assert.NoError(t, err)

	remaining, err := env.logs.ListByOwner(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	m.cfg.RetainedLogRetention = 24 * time.Hour
	report, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.LogsPurged)
}

func TestMaintenance_StartRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t, time.Now())
	m := NewMaintenance(env.posts, env.logs, MaintenanceConfig{Spec: "every now and then"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, m.Start(ctx))
}
