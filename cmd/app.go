package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/application"
	"github.com/re178/mega-facebook-autoposter/autopost/repository"
	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	coreDB "github.com/re178/mega-facebook-autoposter/core/database"
	settingsApp "github.com/re178/mega-facebook-autoposter/core/settings/application"
	"github.com/re178/mega-facebook-autoposter/generation"
	"github.com/re178/mega-facebook-autoposter/generation/providers"
	"github.com/re178/mega-facebook-autoposter/infrastructure/valkey"
	"github.com/re178/mega-facebook-autoposter/pkg/crypto"
	"github.com/re178/mega-facebook-autoposter/pkg/msgworker"
	"github.com/re178/mega-facebook-autoposter/pkg/utils"
	"github.com/re178/mega-facebook-autoposter/publish/facebook"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// appContainer holds every long-lived component of one process.
type appContainer struct {
	cfg      *coreconfig.Config
	location *time.Location
	serverID string

	db       *gorm.DB
	valkey   *valkey.Client
	settings *settingsApp.SettingsService

	posts  *repository.PostGormRepository
	topics *repository.TopicGormRepository
	pages  *repository.PageGormRepository
	logs   *repository.ActivityGormRepository

	monitor     *application.Monitor
	registry    *generation.Registry
	generator   *generation.Generator
	gateway     *facebook.Client
	pool        *msgworker.DeliveryWorkerPool
	scheduler   *application.Scheduler
	planner     *application.Planner
	maintenance *application.Maintenance
	control     *application.Control
}

// bootstrap opens storage and wires the scheduling core. Delivery workers
// are only started when withWorkers is set; processes that never tick do
// not need them.
func bootstrap(ctx context.Context, withWorkers bool) (*appContainer, error) {
	cfg := coreconfig.Global
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	a := &appContainer{
		cfg:      cfg,
		location: cfg.Scheduler.Location(),
		serverID: utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages),
	}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}
	a.settings = settingsApp.NewSettingsService(db)
	dynamic, err := a.settings.GetDynamicSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime settings: %w", err)
	}

	a.posts = repository.NewPostGormRepository(db)
	a.topics = repository.NewTopicGormRepository(db)
	tokens, err := crypto.NewTokenCipher(cfg.App.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_SECRET_KEY: %w", err)
	}
	if tokens == nil {
		logrus.Warn("[APP] APP_SECRET_KEY not set, page access tokens are stored unencrypted")
	}
	a.pages = repository.NewPageGormRepository(db, repository.WithTokenCipher(tokens))
	a.logs = repository.NewActivityGormRepository(db)
	a.monitor = application.NewMonitor(a.logs)

	if err := a.buildGeneration(dynamic); err != nil {
		return nil, err
	}

	a.gateway = facebook.NewClient(facebook.Config{
		BaseURL:       cfg.Publish.GraphURL,
		Version:       cfg.Publish.GraphVersion,
		RatePerSecond: cfg.Publish.RatePerSecond,
		Timeout:       cfg.Publish.Timeout,
	})

	schedulerOpts := []application.SchedulerOption{
		application.WithPauseCheck(a.schedulerPaused),
	}
	if cfg.Database.ValkeyEnabled {
		client, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.valkey = client
		schedulerOpts = append(schedulerOpts,
			application.WithClaimer(valkey.NewItemClaims(client, a.serverID, claimTTL(cfg))),
			application.WithWakeSignal(valkey.NewSignal(client, "scheduler_wake")),
		)
		logrus.Infof("[VALKEY] Connected to %s as %s", cfg.Database.ValkeyAddress, a.serverID)
	}
	if withWorkers {
		a.pool = msgworker.GetGlobalPool()
		schedulerOpts = append(schedulerOpts, application.WithWorkerPool(a.pool))
	}

	a.scheduler = application.NewScheduler(a.posts, a.topics, a.pages, a.generator, a.gateway, a.monitor,
		application.SchedulerConfig{
			TickInterval:        cfg.Scheduler.TickInterval,
			MaxRetries:          cfg.Scheduler.MaxRetries,
			BackoffBase:         cfg.Scheduler.BackoffBase,
			TickLogInterval:     cfg.Scheduler.TickLogInterval,
			FailFastOnPermanent: cfg.Scheduler.FailFastOnPermanent,
		}, schedulerOpts...)

	a.planner = application.NewPlanner(a.topics, a.posts, a.generator, a.monitor,
		application.PlannerConfig{
			Interval:         cfg.Planner.Interval,
			MaxIterations:    cfg.Planner.MaxIterations,
			MaxPostsPerTopic: cfg.Planner.MaxPostsPerTopic,
			GenerateAhead:    cfg.Planner.GenerateAhead,
			Location:         a.location,
		},
		application.WithAutoGenerationFlag(a.autoGenerationEnabled),
		application.WithOnCreated(a.scheduler.Notify),
	)

	a.maintenance = application.NewMaintenance(a.posts, a.logs, application.MaintenanceConfig{
		Spec:                 cfg.Scheduler.MaintenanceSpec,
		PostedRetention:      cfg.Scheduler.PostedRetention,
		FailedRetention:      cfg.Scheduler.FailedRetention,
		LogRetention:         cfg.Scheduler.LogRetention,
		RetainedLogRetention: cfg.Scheduler.RetainedLogRetention,
		Location:             a.location,
	})

	a.control = application.NewControl(application.ControlDeps{
		Posts:     a.posts,
		Topics:    a.topics,
		Pages:     a.pages,
		Logs:      a.logs,
		Planner:   a.planner,
		Scheduler: a.scheduler,
		Gateway:   a.gateway,
		Recorder:  a.monitor,
		Settings:  a.settings,
		Providers: a.registry,
		Media:     a.generator,
	})
	return a, nil
}

func (a *appContainer) buildGeneration(dynamic *settingsApp.DynamicSettings) error {
	cfg := a.cfg
	a.registry = generation.NewRegistry(generation.RegistryConfig{
		BaseCooldown: cfg.Generation.BaseCooldown,
		MaxCooldown:  cfg.Generation.MaxCooldown,
		Location:     a.location,
	}, a.monitor)

	pool, found, err := providers.LoadPoolFile(cfg.Generation.ProvidersFile)
	if err != nil {
		return err
	}
	if !found {
		logrus.Infof("[PROVIDERS] %s not found, building pool from API keys", cfg.Generation.ProvidersFile)
		pool = providers.DefaultPool(cfg.APIKeys)
	}
	detector, err := providers.Build(pool, a.registry, cfg.APIKeys, cfg.Paths.Media)
	if err != nil {
		return err
	}
	if a.registry.PoolSize(generation.KindText) == 0 {
		logrus.Warn("[PROVIDERS] No text provider configured, topic posts will fail to generate")
	}
	for _, name := range dynamic.DisabledProviders {
		if err := a.registry.SetEnabled(name, false); err != nil {
			logrus.WithError(err).Warn("[PROVIDERS] Ignoring stale disabled provider")
		}
	}

	probability := cfg.Generation.MediaProbability
	if dynamic.MediaProbability != nil {
		probability = *dynamic.MediaProbability
	}
	var opts []generation.GeneratorOption
	if detector != nil {
		opts = append(opts, generation.WithSignalDetector(detector))
	}
	a.generator = generation.NewGenerator(a.registry, a.monitor, generation.GeneratorConfig{
		MediaProbability: probability,
		CallTimeout:      cfg.Generation.CallTimeout,
	}, opts...)
	return nil
}

// claimTTL keeps a delivery claim alive through one text call, one image
// call and the publish that follows its pre-publish refresh.
func claimTTL(cfg *coreconfig.Config) time.Duration {
	floor := 2*cfg.Generation.CallTimeout + cfg.Publish.Timeout + 30*time.Second
	if cfg.Scheduler.ClaimTTL < floor {
		return floor
	}
	return cfg.Scheduler.ClaimTTL
}

func (a *appContainer) schedulerPaused(ctx context.Context) bool {
	ds, err := a.settings.GetDynamicSettings(ctx)
	if err != nil {
		logrus.WithError(err).Warn("[SCHEDULER] Failed to read pause flag")
		return false
	}
	return ds.SchedulerPaused
}

func (a *appContainer) autoGenerationEnabled(ctx context.Context) bool {
	on, err := a.settings.AutoGenerationEnabled(ctx)
	if err != nil {
		logrus.WithError(err).Warn("[PLANNER] Failed to read auto generation flag")
		return false
	}
	return on
}

func (a *appContainer) pingDatabase(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stop releases the process resources in reverse order of creation.
func (a *appContainer) Stop() {
	logrus.Info("[APP] Stopping application...")

	if a.pool != nil {
		msgworker.StopGlobalPool()
	}
	if a.valkey != nil {
		a.valkey.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
