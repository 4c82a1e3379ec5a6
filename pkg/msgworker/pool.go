package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DeliveryJob is one delivery attempt for a scheduled item. Jobs with the
// same ItemID always land on the same worker, so attempts for one item never
// overlap and run in dispatch order.
type DeliveryJob struct {
	OwnerID string
	ItemID  string
	Handler func(ctx context.Context) error
}

type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	InFlight        map[string]int `json:"in_flight"` // item id -> worker id
}

type WorkerStats struct {
	WorkerID      int    `json:"worker_id"`
	QueueDepth    int    `json:"queue_depth"`
	CurrentItem   string `json:"current_item,omitempty"`
	JobsProcessed int64  `json:"jobs_processed"`
}

// DeliveryWorkerPool bounds how many deliveries run at once.
type DeliveryWorkerPool struct {
	queueSize int
	workers   []*worker

	// mu guards stopped against queue closing; TryDispatch only needs the read side.
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	dispatched atomic.Int64
	processed  atomic.Int64
	dropped    atomic.Int64
	errors     atomic.Int64
}

type worker struct {
	id      int
	queue   chan DeliveryJob
	done    atomic.Int64
	current atomic.Pointer[string]
}

func NewDeliveryWorkerPool(numWorkers, queueSize int) *DeliveryWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	p := &DeliveryWorkerPool{queueSize: queueSize, workers: make([]*worker, numWorkers)}
	for i := range p.workers {
		p.workers[i] = &worker{id: i, queue: make(chan DeliveryJob, queueSize)}
	}
	return p
}

// Start launches the workers. ctx is handed to every job; workers exit only
// once Stop has closed their queues, so accepted jobs always run.
func (p *DeliveryWorkerPool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.run(ctx, w)
	}
	logrus.Infof("[DELIVERY_POOL] Started with %d workers, queue size: %d", len(p.workers), p.queueSize)
}

// TryDispatch queues job without blocking and reports whether it was accepted.
func (p *DeliveryWorkerPool) TryDispatch(job DeliveryJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		return false
	}
	w := p.workers[p.shardForItem(job.ItemID)]
	select {
	case w.queue <- job:
		p.dispatched.Add(1)
		return true
	default:
		p.dropped.Add(1)
		logrus.Warnf("[DELIVERY_POOL] Worker %d queue full, rejecting item %s of %s", w.id, job.ItemID, job.OwnerID)
		return false
	}
}

// Stop rejects new jobs, lets queued ones finish and waits for every worker.
func (p *DeliveryWorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, w := range p.workers {
		close(w.queue)
	}
	p.mu.Unlock()

	logrus.Info("[DELIVERY_POOL] Stopping workers...")
	p.wg.Wait()
	logrus.Info("[DELIVERY_POOL] All workers stopped")
}

func (p *DeliveryWorkerPool) shardForItem(itemID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(itemID))
	return int(h.Sum32() % uint32(len(p.workers)))
}

func (p *DeliveryWorkerPool) GetStats() PoolStats {
	stats := PoolStats{
		NumWorkers:      len(p.workers),
		QueueSize:       p.queueSize,
		TotalDispatched: p.dispatched.Load(),
		TotalProcessed:  p.processed.Load(),
		TotalDropped:    p.dropped.Load(),
		TotalErrors:     p.errors.Load(),
		WorkerStats:     make([]WorkerStats, 0, len(p.workers)),
		InFlight:        make(map[string]int),
	}
	for _, w := range p.workers {
		ws := WorkerStats{WorkerID: w.id, QueueDepth: len(w.queue), JobsProcessed: w.done.Load()}
		if item := w.current.Load(); item != nil {
			ws.CurrentItem = *item
			stats.ActiveWorkers++
			stats.InFlight[*item] = w.id
		}
		stats.WorkerStats = append(stats.WorkerStats, ws)
	}
	return stats
}

func (p *DeliveryWorkerPool) run(ctx context.Context, w *worker) {
	defer p.wg.Done()
	for job := range w.queue {
		p.process(ctx, w, job)
	}
	logrus.Debugf("[DELIVERY_POOL] Worker %d stopped", w.id)
}

func (p *DeliveryWorkerPool) process(ctx context.Context, w *worker, job DeliveryJob) {
	item := job.ItemID
	w.current.Store(&item)
	defer func() {
		if r := recover(); r != nil {
			p.errors.Add(1)
			logrus.Errorf("[DELIVERY_POOL] Worker %d panic for item %s: %v", w.id, job.ItemID, r)
		}
		w.current.Store(nil)
		w.done.Add(1)
		p.processed.Add(1)
	}()

	if err := job.Handler(ctx); err != nil {
		p.errors.Add(1)
		logrus.WithError(err).Errorf("[DELIVERY_POOL] Worker %d job failed for item %s", w.id, job.ItemID)
	}
}
