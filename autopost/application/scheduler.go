package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/common"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	"github.com/re178/mega-facebook-autoposter/generation"
	"github.com/re178/mega-facebook-autoposter/pkg/msgworker"
	"github.com/re178/mega-facebook-autoposter/publish"
	"github.com/sirupsen/logrus"
)

type SchedulerConfig struct {
	TickInterval        time.Duration
	MaxRetries          int
	BackoffBase         time.Duration
	TickLogInterval     time.Duration
	FailFastOnPermanent bool
}

// TickReport summarises what one tick did.
type TickReport struct {
	Overlapped bool // another tick was still running, nothing was done
	Paused     bool
	Due        int
	Waiting    int // still in backoff
	Busy       int // claimed elsewhere or dropped by a full queue
	Posted     int
	Retried    int
	Failed     int
	Discarded  int
	Skipped    int
}

type outcome int

const (
	outcomeGone outcome = iota
	outcomeBusy
	outcomeSkipped
	outcomePosted
	outcomeRetried
	outcomeFailed
	outcomeDiscarded
)

func (r *TickReport) add(o outcome) {
	switch o {
	case outcomeBusy:
		r.Busy++
	case outcomeSkipped:
		r.Skipped++
	case outcomePosted:
		r.Posted++
	case outcomeRetried:
		r.Retried++
	case outcomeFailed:
		r.Failed++
	case outcomeDiscarded:
		r.Discarded++
	}
}

// Scheduler polls for due items and delivers them. Ticks never overlap, and
// an item is only ever handled by the worker holding its claim.
type Scheduler struct {
	posts     post.Repository
	topics    topic.Repository
	pages     page.Repository
	generator ContentGenerator
	gateway   publish.Gateway
	recorder  activity.Recorder
	pool      *msgworker.DeliveryWorkerPool
	claims    Claimer
	signal    WakeSignal
	paused    func(ctx context.Context) bool

	cfg    SchedulerConfig
	policy publish.RetryPolicy
	now    func() time.Time

	running     atomic.Bool
	lastTickLog time.Time
	wake        chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithWorkerPool runs deliveries on pool instead of the tick goroutine.
func WithWorkerPool(pool *msgworker.DeliveryWorkerPool) SchedulerOption {
	return func(s *Scheduler) { s.pool = pool }
}

func WithClaimer(c Claimer) SchedulerOption {
	return func(s *Scheduler) { s.claims = c }
}

func WithWakeSignal(sig WakeSignal) SchedulerOption {
	return func(s *Scheduler) { s.signal = sig }
}

// WithPauseCheck makes ticks no-ops while fn reports true.
func WithPauseCheck(fn func(ctx context.Context) bool) SchedulerOption {
	return func(s *Scheduler) { s.paused = fn }
}

func NewScheduler(
	posts post.Repository,
	topics topic.Repository,
	pages page.Repository,
	generator ContentGenerator,
	gateway publish.Gateway,
	recorder activity.Recorder,
	cfg SchedulerConfig,
	opts ...SchedulerOption,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.TickLogInterval <= 0 {
		cfg.TickLogInterval = 5 * time.Minute
	}
	s := &Scheduler{
		posts:     posts,
		topics:    topics,
		pages:     pages,
		generator: generator,
		gateway:   gateway,
		recorder:  recorder,
		claims:    NewLocalClaims(),
		cfg:       cfg,
		policy: publish.RetryPolicy{
			MaxRetries:          cfg.MaxRetries,
			Base:                cfg.BackoffBase,
			FailFastOnPermanent: cfg.FailFastOnPermanent,
		},
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs ticks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	if s.signal != nil {
		go s.signal.Listen(ctx, func(string) {
			logrus.Debug("[SCHEDULER] Wake-up signal received")
			s.Trigger()
		})
	}

	logrus.Infof("[SCHEDULER] Started, tick every %s, max retries %d", s.cfg.TickInterval, s.cfg.MaxRetries)
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("[SCHEDULER] Stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.wake:
			s.Tick(ctx)
		}
	}
}

// Trigger asks the running loop for an early tick.
func (s *Scheduler) Trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Notify wakes this scheduler and, through the wake signal, its peers.
func (s *Scheduler) Notify(ctx context.Context) {
	s.Trigger()
	if s.signal != nil {
		if err := s.signal.Notify(ctx, "due"); err != nil {
			logrus.WithError(err).Warn("[SCHEDULER] Failed to publish wake-up signal")
		}
	}
}

// Tick runs one polling pass. It returns immediately when a previous tick
// is still in progress.
func (s *Scheduler) Tick(ctx context.Context) (report TickReport) {
	if !s.running.CompareAndSwap(false, true) {
		logrus.Debug("[SCHEDULER] Previous tick still running, skipping")
		report.Overlapped = true
		return report
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[SCHEDULER] Tick panicked: %v", r)
			s.record(ctx, activity.Entry{
				Action:  activity.ActionSchedulerError,
				Message: fmt.Sprintf("scheduler tick crashed: %v", r),
				Source:  activity.SourceScheduler,
				Retain:  true,
			})
		}
	}()

	if s.paused != nil && s.paused(ctx) {
		report.Paused = true
		return report
	}

	now := s.now()
	items, err := s.posts.ListDue(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("[SCHEDULER] Failed to load due items")
		s.record(ctx, activity.Entry{
			Action:  activity.ActionSchedulerError,
			Message: fmt.Sprintf("failed to load due posts: %v", err),
			Source:  activity.SourceScheduler,
			Retain:  true,
		})
		return report
	}
	report.Due = len(items)
	s.logTick(ctx, now, len(items))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	collect := func(o outcome) {
		mu.Lock()
		report.add(o)
		mu.Unlock()
	}

	for _, item := range items {
		if wait := s.backoffRemaining(item, now); wait > 0 {
			report.Waiting++
			s.record(ctx, itemEntry(item, activity.ActionBackoffWait, activity.SourceScheduler, false,
				"retry %d/%d waiting %s more", item.RetryCount, s.cfg.MaxRetries, humanizeDelay(wait)))
			continue
		}
		s.dispatch(ctx, item, false, &wg, collect)
	}
	wg.Wait()

	if report.Posted+report.Retried+report.Failed > 0 {
		logrus.WithFields(logrus.Fields{
			"due":       report.Due,
			"posted":    report.Posted,
			"retried":   report.Retried,
			"failed":    report.Failed,
			"waiting":   report.Waiting,
			"discarded": report.Discarded,
		}).Info("[SCHEDULER] Tick finished")
	}
	return report
}

// ProcessNow delivers one item immediately, ignoring scheduledAt and backoff.
func (s *Scheduler) ProcessNow(ctx context.Context, itemID string) error {
	token, ok, err := s.claims.Claim(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrPostInFlight
	}
	defer s.claims.Release(context.Background(), itemID, token)

	switch s.deliver(ctx, itemID, token, true) {
	case outcomeGone, outcomeDiscarded:
		return common.ErrPostNotFound
	case outcomeSkipped:
		return common.ErrPageNotFound
	}
	return nil
}

// Hold runs fn while holding the item's delivery claim. It returns
// common.ErrPostInFlight when a delivery currently owns the item.
func (s *Scheduler) Hold(ctx context.Context, itemID string, fn func(ctx context.Context) error) error {
	token, ok, err := s.claims.Claim(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrPostInFlight
	}
	defer s.claims.Release(context.Background(), itemID, token)
	return fn(ctx)
}

func (s *Scheduler) dispatch(ctx context.Context, item post.ScheduledItem, force bool, wg *sync.WaitGroup, collect func(outcome)) {
	token, ok, err := s.claims.Claim(ctx, item.ID)
	if err != nil {
		logrus.WithError(err).WithField("item_id", item.ID).Warn("[SCHEDULER] Claim failed")
		collect(outcomeBusy)
		return
	}
	if !ok {
		logrus.WithField("item_id", item.ID).Debug("[SCHEDULER] Item claimed elsewhere, skipping")
		collect(outcomeBusy)
		return
	}

	run := func(context.Context) error {
		defer wg.Done()
		defer s.claims.Release(context.Background(), item.ID, token)
		collect(s.deliver(ctx, item.ID, token, force))
		return nil
	}

	wg.Add(1)
	if s.pool == nil {
		_ = run(ctx)
		return
	}
	if !s.pool.TryDispatch(msgworker.DeliveryJob{OwnerID: item.OwnerID, ItemID: item.ID, Handler: run}) {
		wg.Done()
		s.claims.Release(context.Background(), item.ID, token)
		collect(outcomeBusy)
	}
}

// deliver runs one attempt for an item the caller has claimed.
func (s *Scheduler) deliver(ctx context.Context, itemID, token string, force bool) outcome {
	// Re-read: the item may have been deleted or edited since the due query.
	item, err := s.posts.Get(ctx, itemID)
	if err != nil {
		if !errors.Is(err, common.ErrPostNotFound) {
			logrus.WithError(err).WithField("item_id", itemID).Error("[SCHEDULER] Failed to reload item")
		}
		return outcomeGone
	}
	if item.Status != post.StatusPending {
		return outcomeGone
	}
	now := s.now()
	if !force && (item.ScheduledAt.After(now) || s.backoffRemaining(item, now) > 0) {
		return outcomeGone
	}

	pg, err := s.pages.Get(ctx, item.OwnerID)
	if err != nil {
		s.record(ctx, itemEntry(item, activity.ActionPostSkipped, activity.SourceScheduler, false,
			"page %s is not configured, post skipped", item.OwnerID))
		return outcomeSkipped
	}

	marked, err := s.posts.MarkAttempt(ctx, item.ID, now)
	if err != nil {
		logrus.WithError(err).WithField("item_id", item.ID).Error("[SCHEDULER] Failed to stamp attempt")
		return outcomeGone
	}
	if !marked {
		return outcomeGone
	}
	s.record(ctx, itemEntry(item, activity.ActionPostAttempt, activity.SourceScheduler, false,
		"delivery attempt %d/%d", item.RetryCount+1, s.cfg.MaxRetries))

	text, media := item.Text, item.MediaRef
	var generated bool
	if item.NeedsContent() {
		text, media, err = s.fillContent(ctx, item)
		if err != nil {
			return s.fail(ctx, item, err)
		}
		generated = true
	}

	// Generation may have outlived the claim; never publish without it.
	held, err := s.claims.Refresh(ctx, item.ID, token)
	if err != nil {
		logrus.WithError(err).WithField("item_id", item.ID).Warn("[SCHEDULER] Failed to refresh item claim, attempt abandoned")
		return outcomeBusy
	}
	if !held {
		logrus.WithField("item_id", item.ID).Warn("[SCHEDULER] Item claim taken over before publishing, attempt abandoned")
		return outcomeBusy
	}

	creds := publish.Credentials{PageID: pg.ExternalID, AccessToken: pg.AccessToken}
	externalID, err := s.gateway.Publish(ctx, creds, text, media)
	if err != nil {
		return s.fail(ctx, item, err)
	}

	res := post.AttemptResult{Status: post.StatusPosted, RetryCount: 0, ExternalID: externalID}
	if generated {
		res.Text, res.MediaRef = text, media
	}
	ok, err := s.posts.CompleteAttempt(ctx, item.ID, res, s.now())
	if err != nil {
		logrus.WithError(err).WithField("item_id", item.ID).Error("[SCHEDULER] Failed to store delivery result")
		return outcomeGone
	}
	if !ok {
		s.record(ctx, itemEntry(item, activity.ActionPostDiscarded, activity.SourceScheduler, true,
			"post was published as %s but had been removed meanwhile, result discarded", externalID))
		return outcomeDiscarded
	}
	s.record(ctx, itemEntry(item, activity.ActionPostSuccess, activity.SourceScheduler, true,
		"published as %s", externalID))
	return outcomePosted
}

func (s *Scheduler) fillContent(ctx context.Context, item post.ScheduledItem) (string, string, error) {
	plan, err := s.topics.Get(ctx, *item.TopicID)
	if err != nil {
		return "", "", fmt.Errorf("topic for generated post unavailable: %w", err)
	}
	text, ok := s.generator.GenerateText(ctx, generation.TextRequest{
		OwnerID: item.OwnerID,
		TopicID: item.TopicID,
		ItemID:  &item.ID,
		Topic:   plan.Name,
		Angle:   item.Angle,
		Tag:     item.ContentTag,
	})
	if !ok {
		return "", "", generation.ErrPoolExhausted
	}
	media := item.MediaRef
	if media == "" && s.generator.ShouldAttemptMedia(plan.IncludeMedia) {
		media, _ = s.generator.GenerateImage(ctx, generation.ImageRequest{
			OwnerID: item.OwnerID,
			TopicID: item.TopicID,
			ItemID:  &item.ID,
			Topic:   plan.Name,
		})
	}
	return text, media, nil
}

func (s *Scheduler) fail(ctx context.Context, item post.ScheduledItem, cause error) outcome {
	retries, terminal := s.policy.Next(item.RetryCount, cause)
	class := publish.Classify(cause)

	res := post.AttemptResult{Status: post.StatusPending, RetryCount: retries, LastError: cause.Error()}
	if terminal {
		res.Status = post.StatusFailed
	}
	ok, err := s.posts.CompleteAttempt(ctx, item.ID, res, s.now())
	if err != nil {
		logrus.WithError(err).WithField("item_id", item.ID).Error("[SCHEDULER] Failed to store delivery result")
		return outcomeGone
	}
	if !ok {
		s.record(ctx, itemEntry(item, activity.ActionPostDiscarded, activity.SourceScheduler, true,
			"post was removed during a failed attempt, result discarded"))
		return outcomeDiscarded
	}

	if !terminal {
		delay := s.policy.Backoff(retries)
		s.record(ctx, itemEntry(item, activity.ActionPostRetryScheduled, activity.SourceScheduler, false,
			"attempt %d/%d failed (%s): %v, next try in %s", retries, s.cfg.MaxRetries, class, cause, humanizeDelay(delay)))
		return outcomeRetried
	}

	s.record(ctx, itemEntry(item, activity.ActionPostRetryExhausted, activity.SourceScheduler, true,
		"attempt %d/%d failed (%s): %v, no retries left", retries, s.cfg.MaxRetries, class, cause))
	s.record(ctx, itemEntry(item, activity.ActionPostFailed, activity.SourceScheduler, true,
		"post failed permanently: %v", cause))
	return outcomeFailed
}

// backoffRemaining is how long item still has to wait before its next attempt.
func (s *Scheduler) backoffRemaining(item post.ScheduledItem, now time.Time) time.Duration {
	if item.RetryCount <= 0 {
		return 0
	}
	last := item.UpdatedAt
	if item.LastAttemptAt != nil {
		last = *item.LastAttemptAt
	}
	wait := s.policy.Backoff(item.RetryCount) - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

func (s *Scheduler) logTick(ctx context.Context, now time.Time, due int) {
	if !s.lastTickLog.IsZero() && now.Sub(s.lastTickLog) < s.cfg.TickLogInterval {
		return
	}
	s.lastTickLog = now
	s.record(ctx, activity.Entry{
		Action:  activity.ActionSchedulerTick,
		Message: fmt.Sprintf("scheduler alive, %d post(s) due", due),
		Source:  activity.SourceScheduler,
	})
}

func (s *Scheduler) record(ctx context.Context, e activity.Entry) {
	if s.recorder != nil {
		s.recorder.Record(ctx, e)
	}
}
