package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
)

type fakeProvider struct {
	name  string
	limit int
	out   string
	err   error
	calls int32
}

func (p *fakeProvider) Name() string    { return p.name }
func (p *fakeProvider) DailyLimit() int { return p.limit }

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return "", p.err
	}
	return p.out, nil
}

func (p *fakeProvider) Calls() int { return int(atomic.LoadInt32(&p.calls)) }

func failing(name string) *fakeProvider {
	return &fakeProvider{name: name, err: errors.New(name + " is down")}
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (r *memoryRecorder) Record(ctx context.Context, e activity.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *memoryRecorder) count(action activity.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
