package websocket

import (
	"testing"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWantsFiltersByOwner(t *testing.T) {
	all := client{}
	p1 := client{owner: "p1"}

	assert.True(t, wants(all, BroadcastMessage{Owner: "p2"}))
	assert.True(t, wants(p1, BroadcastMessage{Owner: "p1"}))
	assert.False(t, wants(p1, BroadcastMessage{Owner: "p2"}))
	assert.True(t, wants(p1, BroadcastMessage{}), "process-wide entries reach everyone")
}

func TestPublishActivityNeverBlocks(t *testing.T) {
	// drain whatever earlier tests left behind
	for len(Broadcast) > 0 {
		<-Broadcast
	}
	t.Cleanup(func() {
		for len(Broadcast) > 0 {
			<-Broadcast
		}
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(Broadcast)+10; i++ {
			PublishActivity(activity.Entry{OwnerID: "p1", Action: activity.ActionPostSuccess, CreatedAt: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishActivity blocked on a full queue")
	}
	require.Equal(t, cap(Broadcast), len(Broadcast))

	msg := <-Broadcast
	assert.Equal(t, "ACTIVITY", msg.Code)
	assert.Equal(t, "p1", msg.Owner)
	assert.Equal(t, string(activity.ActionPostSuccess), msg.Message)
}
