package msgworker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewDeliveryWorkerPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	require.True(t, pool.TryDispatch(DeliveryJob{
		OwnerID: "page-1",
		ItemID:  "item-1",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 10*time.Millisecond, "dispatch must not wait for the handler")
}

// Attempts for the same item run one after another, in dispatch order.
func TestPool_SameItemSequentialProcessing(t *testing.T) {
	pool := NewDeliveryWorkerPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var results []int
	var mu sync.Mutex
	var inFlight int32
	var overlapped int32
	var wg sync.WaitGroup

	for i := 1; i <= 5; i++ {
		val := i
		wg.Add(1)
		require.True(t, pool.TryDispatch(DeliveryJob{
			OwnerID: "page-1",
			ItemID:  "item-1",
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				atomic.AddInt32(&inFlight, -1)
				return nil
			},
		}))
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, results)
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapped), "same item must never be processed concurrently")
}

func TestPool_DifferentItemsParallelProcessing(t *testing.T) {
	pool := NewDeliveryWorkerPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var activeCount int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		require.True(t, pool.TryDispatch(DeliveryJob{
			OwnerID: "page-1",
			ItemID:  fmt.Sprintf("item-%d", i),
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				current := atomic.AddInt32(&activeCount, 1)
				for {
					max := atomic.LoadInt32(&maxActive)
					if current <= max || atomic.CompareAndSwapInt32(&maxActive, max, current) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				atomic.AddInt32(&activeCount, -1)
				return nil
			},
		}))
	}

	wg.Wait()

	max := atomic.LoadInt32(&maxActive)
	assert.GreaterOrEqual(t, max, int32(2), "different items should run in parallel")
	assert.LessOrEqual(t, max, int32(4), "must not exceed the worker count")
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool := NewDeliveryWorkerPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())

	pool.Start(ctx)

	var completed int32

	for i := 0; i < 2; i++ {
		require.True(t, pool.TryDispatch(DeliveryJob{
			OwnerID: "page-1",
			ItemID:  string(rune('A' + i)),
			Handler: func(ctx context.Context) error {
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&completed, 1)
				return nil
			},
		}))
	}

	time.Sleep(10 * time.Millisecond)

	cancel()
	pool.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&completed), "in-flight jobs complete on shutdown")
}

func TestPool_DispatchAfterStopIsRejected(t *testing.T) {
	pool := NewDeliveryWorkerPool(1, 1)
	pool.Start(context.Background())
	pool.Stop()

	ok := pool.TryDispatch(DeliveryJob{ItemID: "x", Handler: func(ctx context.Context) error { return nil }})
	assert.False(t, ok)
	assert.Equal(t, int64(1), pool.GetStats().TotalDropped)
}

func TestPool_FullQueueRejects(t *testing.T) {
	pool := NewDeliveryWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	pool.Start(context.Background())
	defer pool.Stop()

	require.True(t, pool.TryDispatch(DeliveryJob{ItemID: "a", Handler: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.True(t, pool.TryDispatch(DeliveryJob{ItemID: "b", Handler: func(ctx context.Context) error { return nil }}))
	assert.False(t, pool.TryDispatch(DeliveryJob{ItemID: "c", Handler: func(ctx context.Context) error { return nil }}))

	stats := pool.GetStats()
	assert.Equal(t, 1, stats.ActiveWorkers)
	assert.Equal(t, 0, stats.InFlight["a"])
	assert.Equal(t, int64(1), stats.TotalDropped)
	close(release)
}

func TestPool_ConsistentHashing(t *testing.T) {
	pool := NewDeliveryWorkerPool(4, 100)

	shard1 := pool.shardForItem("item-123")
	shard2 := pool.shardForItem("item-123")

	assert.Equal(t, shard1, shard2)
	assert.GreaterOrEqual(t, shard1, 0)
	assert.Less(t, shard1, 4)
}

func TestPool_FairDistribution(t *testing.T) {
	numWorkers := 4
	pool := NewDeliveryWorkerPool(numWorkers, 100)

	shardCounts := make(map[int]int)
	for i := 0; i < 400; i++ {
		shardCounts[pool.shardForItem(fmt.Sprintf("item-%d", i))]++
	}

	for shard, count := range shardCounts {
		assert.Greater(t, count, 60, "worker %d should receive >60 items", shard)
		assert.Less(t, count, 140, "worker %d should receive <140 items", shard)
	}
}
