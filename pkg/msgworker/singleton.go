package msgworker

import (
	"context"
	"sync"

	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
)

var (
	globalPool   *DeliveryWorkerPool
	globalOnce   sync.Once
	globalCancel context.CancelFunc
)

// GetGlobalPool returns the process-wide delivery pool, sized from
// WORKER_POOL_SIZE and WORKER_QUEUE_SIZE and started on first use.
func GetGlobalPool() *DeliveryWorkerPool {
	globalOnce.Do(func() {
		var size, queue int
		if cfg := coreconfig.Global; cfg != nil {
			size, queue = cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize
		}
		var ctx context.Context
		ctx, globalCancel = context.WithCancel(context.Background())
		globalPool = NewDeliveryWorkerPool(size, queue)
		globalPool.Start(ctx)
	})
	return globalPool
}

func StopGlobalPool() {
	if globalPool == nil {
		return
	}
	globalPool.Stop()
	globalCancel()
}
