package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(clock *fakeClock, rec activity.Recorder) *Registry {
	return NewRegistry(RegistryConfig{
		BaseCooldown: time.Minute,
		MaxCooldown:  5 * time.Minute,
		Location:     time.UTC,
	}, rec, WithRegistryClock(clock.Now))
}

func TestRegistry_SelectsInPriorityOrder(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	r := newTestRegistry(clock, nil)
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "a"}))
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "b"}))
	require.NoError(t, r.Register(KindImage, &fakeProvider{name: "img"}))

	p, ok := r.Select(context.Background(), KindText, nil)
	require.True(t, ok)
	assert.Equal(t, "a", p.Name())

	p, ok = r.Select(context.Background(), KindText, map[string]bool{"a": true})
	require.True(t, ok)
	assert.Equal(t, "b", p.Name())

	_, ok = r.Select(context.Background(), KindText, map[string]bool{"a": true, "b": true})
	assert.False(t, ok)

	assert.Error(t, r.Register(KindText, &fakeProvider{name: "a"}), "duplicate names are rejected")
}

func TestRegistry_CooldownIsLinearAndCapped(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	r := newTestRegistry(clock, nil)
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "a"}))

	cause := errors.New("boom")
	assert.Equal(t, 1*time.Minute, r.RecordFailure("a", cause))
	assert.Equal(t, 2*time.Minute, r.RecordFailure("a", cause))
	assert.Equal(t, 3*time.Minute, r.RecordFailure("a", cause))
	for i := 0; i < 5; i++ {
		r.RecordFailure("a", cause)
	}
	assert.Equal(t, 5*time.Minute, r.RecordFailure("a", cause), "capped at max")
}

func TestRegistry_NeverSelectsProviderInCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	r := newTestRegistry(clock, nil)
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "a"}))
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "b"}))

	r.RecordFailure("a", errors.New("timeout"))

	p, ok := r.Select(context.Background(), KindText, nil)
	require.True(t, ok)
	assert.Equal(t, "b", p.Name())

	clock.Advance(59 * time.Second)
	p, _ = r.Select(context.Background(), KindText, nil)
	assert.Equal(t, "b", p.Name())

	clock.Advance(time.Second)
	p, _ = r.Select(context.Background(), KindText, nil)
	assert.Equal(t, "a", p.Name(), "eligible again once cooldown has passed")

	r.RecordSuccess(context.Background(), "a")
	st := r.Snapshot()
	assert.Equal(t, 0, st[0].ConsecutiveFailures)
	assert.Nil(t, st[0].CooldownUntil)
}

func TestRegistry_QuotaExhaustionAndDailyReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)}
	rec := &memoryRecorder{}
	r := newTestRegistry(clock, rec)
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "a", limit: 2}))
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "b"}))
	ctx := context.Background()

	r.RecordSuccess(ctx, "a")
	p, _ := r.Select(ctx, KindText, nil)
	assert.Equal(t, "a", p.Name())
	r.RecordSuccess(ctx, "a")

	for i := 0; i < 3; i++ {
		p, ok := r.Select(ctx, KindText, nil)
		require.True(t, ok)
		assert.Equal(t, "b", p.Name(), "quota-exhausted provider is skipped")
	}
	assert.Equal(t, 1, rec.count(activity.ActionProviderDisabled), "logged once per day")

	clock.Advance(3 * time.Hour) // next calendar day
	p, _ = r.Select(ctx, KindText, nil)
	assert.Equal(t, "a", p.Name())
	assert.Equal(t, 0, r.Snapshot()[0].CallsUsedToday)
}

func TestRegistry_DisabledProviderIsSkipped(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	r := newTestRegistry(clock, nil)
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "a"}))
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "b"}))

	require.NoError(t, r.SetEnabled("a", false))
	p, _ := r.Select(context.Background(), KindText, nil)
	assert.Equal(t, "b", p.Name())

	assert.ErrorIs(t, r.SetEnabled("zzz", true), ErrUnknownProvider)
}

func TestRegistry_ConcurrentSuccessesAreNotLost(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	r := newTestRegistry(clock, nil)
	require.NoError(t, r.Register(KindText, &fakeProvider{name: "a"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordSuccess(context.Background(), "a")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Snapshot()[0].CallsUsedToday)
}
