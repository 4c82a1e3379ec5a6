package application

import (
	"context"
	"testing"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RecordPersistsAndFansOut(t *testing.T) {
	env := newTestEnv(t, time.Now())
	ctx := context.Background()

	var got []activity.Entry
	unsubscribe := env.monitor.Subscribe(func(e activity.Entry) { got = append(got, e) })

	env.monitor.Record(ctx, activity.Entry{OwnerID: "p1", Action: activity.ActionAutogenToggled, Message: "on", Source: activity.SourceOperator})
	unsubscribe()
	env.monitor.Record(ctx, activity.Entry{OwnerID: "p1", Action: activity.ActionAutogenToggled, Message: "off", Source: activity.SourceOperator})

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	stored, err := env.logs.ListByOwner(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestHumanizeDelay(t *testing.T) {
	assert.Equal(t, "30 seconds", humanizeDelay(30*time.Second))
	assert.Equal(t, "2 minutes", humanizeDelay(2*time.Minute))
}
