package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/pkg/timeutils"
	"github.com/sirupsen/logrus"
)

type RegistryConfig struct {
	BaseCooldown time.Duration
	MaxCooldown  time.Duration
	// Location decides where the calendar day used for quotas starts.
	Location *time.Location
}

type providerEntry struct {
	provider      Provider
	kind          Kind
	enabled       bool
	failures      int
	cooldownUntil time.Time
	callsToday    int
	quotaLogged   bool
	lastError     string
}

func (e *providerEntry) quotaExhausted() bool {
	limit := e.provider.DailyLimit()
	return limit > 0 && e.callsToday >= limit
}

// Registry holds the ordered text and image pools and their quota and
// cooldown state. It is shared by every tenant; all methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	cfg      RegistryConfig
	pools    map[Kind][]*providerEntry
	byName   map[string]*providerEntry
	day      time.Time
	now      func() time.Time
	recorder activity.Recorder
}

type RegistryOption func(*Registry)

// WithRegistryClock replaces time.Now, mainly for tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(cfg RegistryConfig, recorder activity.Recorder, opts ...RegistryOption) *Registry {
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = time.Minute
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	r := &Registry{
		cfg:      cfg,
		pools:    make(map[Kind][]*providerEntry),
		byName:   make(map[string]*providerEntry),
		now:      time.Now,
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.day = timeutils.StartOfDay(r.now(), cfg.Location)
	return r
}

// Register appends p to the end of the kind's pool, so registration order is
// priority order. Names must be unique across pools.
func (r *Registry) Register(kind Kind, p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	e := &providerEntry{provider: p, kind: kind, enabled: true}
	r.pools[kind] = append(r.pools[kind], e)
	r.byName[p.Name()] = e
	logrus.WithFields(logrus.Fields{
		"provider":    p.Name(),
		"kind":        kind,
		"daily_limit": p.DailyLimit(),
	}).Info("[PROVIDERS] Registered")
	return nil
}

// PoolSize returns how many providers the kind's pool holds.
func (r *Registry) PoolSize(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools[kind])
}

// Select returns the first provider of the pool, in priority order, that is
// enabled, out of cooldown, under quota and not in excluded.
func (r *Registry) Select(ctx context.Context, kind Kind, excluded map[string]bool) (Provider, bool) {
	var pending []activity.Entry

	r.mu.Lock()
	now := r.now()
	r.rollDayLocked(now)

	var selected Provider
	for _, e := range r.pools[kind] {
		name := e.provider.Name()
		if excluded[name] || !e.enabled {
			continue
		}
		if now.Before(e.cooldownUntil) {
			continue
		}
		if e.quotaExhausted() {
			if !e.quotaLogged {
				e.quotaLogged = true
				pending = append(pending, r.quotaEntry(e, now))
			}
			continue
		}
		selected = e.provider
		break
	}
	r.mu.Unlock()

	r.flush(ctx, pending)
	return selected, selected != nil
}

// RecordSuccess counts one call against today's quota and clears the failure streak.
func (r *Registry) RecordSuccess(ctx context.Context, name string) {
	var pending []activity.Entry

	r.mu.Lock()
	now := r.now()
	r.rollDayLocked(now)
	if e, ok := r.byName[name]; ok {
		e.callsToday++
		e.failures = 0
		e.cooldownUntil = time.Time{}
		e.lastError = ""
		if e.quotaExhausted() && !e.quotaLogged {
			e.quotaLogged = true
			pending = append(pending, r.quotaEntry(e, now))
		}
	}
	r.mu.Unlock()

	r.flush(ctx, pending)
}

// RecordFailure extends the failure streak and puts the provider in cooldown
// for min(failures × base, max).
func (r *Registry) RecordFailure(name string, cause error) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byName[name]
	if !ok {
		return 0
	}
	now := r.now()
	e.failures++
	cooldown := r.cooldownFor(e.failures)
	e.cooldownUntil = now.Add(cooldown)
	if cause != nil {
		e.lastError = cause.Error()
	}

	logrus.WithFields(logrus.Fields{
		"provider": name,
		"failures": e.failures,
		"cooldown": cooldown.String(),
	}).WithError(cause).Warn("[PROVIDERS] Provider call failed")
	return cooldown
}

func (r *Registry) cooldownFor(failures int) time.Duration {
	d := time.Duration(failures) * r.cfg.BaseCooldown
	if d > r.cfg.MaxCooldown || d <= 0 {
		d = r.cfg.MaxCooldown
	}
	return d
}

// SetEnabled switches a provider on or off without touching its counters.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	e.enabled = enabled
	logrus.Infof("[PROVIDERS] %s enabled=%v", name, enabled)
	return nil
}

// Snapshot returns every provider's state, text pool first, in priority order.
func (r *Registry) Snapshot() []ProviderState {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.rollDayLocked(now)

	var out []ProviderState
	for _, kind := range []Kind{KindText, KindImage} {
		for _, e := range r.pools[kind] {
			st := ProviderState{
				Name:                e.provider.Name(),
				Kind:                kind,
				Enabled:             e.enabled,
				ConsecutiveFailures: e.failures,
				CallsUsedToday:      e.callsToday,
				DailyQuota:          e.provider.DailyLimit(),
				LastError:           e.lastError,
			}
			if now.Before(e.cooldownUntil) {
				until := e.cooldownUntil
				st.CooldownUntil = &until
			}
			out = append(out, st)
		}
	}
	return out
}

// rollDayLocked resets quota counters once the calendar day has changed.
func (r *Registry) rollDayLocked(now time.Time) {
	today := timeutils.StartOfDay(now, r.cfg.Location)
	if !today.After(r.day) {
		return
	}
	r.day = today
	for _, e := range r.byName {
		e.callsToday = 0
		e.quotaLogged = false
	}
	logrus.Debugf("[PROVIDERS] Daily quotas reset for %s", today.Format("2006-01-02"))
}

func (r *Registry) quotaEntry(e *providerEntry, now time.Time) activity.Entry {
	return activity.Entry{
		ID:        uuid.NewString(),
		Action:    activity.ActionProviderDisabled,
		Message:   fmt.Sprintf("%s provider %s reached its daily quota of %d calls", e.kind, e.provider.Name(), e.provider.DailyLimit()),
		Source:    activity.SourceGenerator,
		Retain:    true,
		CreatedAt: now,
	}
}

func (r *Registry) flush(ctx context.Context, entries []activity.Entry) {
	if r.recorder == nil {
		return
	}
	for _, e := range entries {
		r.recorder.Record(ctx, e)
	}
}
