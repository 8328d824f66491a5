// cmd/notification-worker/main.go
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"jobboard-notifier/internal/api"
	"jobboard-notifier/internal/common/config"
	"jobboard-notifier/internal/common/database"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/common/observability"
	"jobboard-notifier/internal/dispatcher"
	"jobboard-notifier/internal/ingest"
	"jobboard-notifier/internal/matcher"
	"jobboard-notifier/internal/queue"
	"jobboard-notifier/internal/repository"
	"jobboard-notifier/internal/scheduler"
	"jobboard-notifier/internal/searchhistory"
	"jobboard-notifier/internal/sink"
	"jobboard-notifier/pkg/registry"

	// Queue handlers (3)
	gn "jobboard-notifier/internal/workers/queue/generic-notification"
	ja "jobboard-notifier/internal/workers/queue/job-application"
	njp "jobboard-notifier/internal/workers/queue/new-job-posting"

	// Scheduled sweeps (4)
	jal "jobboard-notifier/internal/workers/sweeps/job-alerts"
	nc "jobboard-notifier/internal/workers/sweeps/notification-cleanup"
	qc "jobboard-notifier/internal/workers/sweeps/queue-cleanup"
	rj "jobboard-notifier/internal/workers/sweeps/related-jobs"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func workerTimeout(cfg *config.Config, taskType string) time.Duration {
	return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
}

func main() {
	bootLog := logger.New("info", "console")
	bootLog.Info("Starting notification worker...")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}
	bootLog.Sync()

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		if err := obs.EnableTracing(ctx, observability.TracingConfig{
			Endpoint:       cfg.Tracing.JaegerEndpoint,
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Environment,
		}); err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		}
	}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.Migrate(); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
		version, dirty, _ := pg.MigrationVersion()
		zapLog.Info("Schema is current", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	if cluster, version, err := esClient.Info(ctx); err == nil {
		zapLog.Info("Elasticsearch connected successfully", zap.String("cluster", cluster), zap.String("version", version))
	} else {
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		total, idle := redis.PoolStats()
		zapLog.Info("Redis connected successfully", zap.Uint32("conns", total), zap.Uint32("idle", idle))
	}

	// --- Stores ---
	jobs := repository.NewJobRepository(pg)
	alerts := repository.NewAlertRepository(pg)
	users := repository.NewUserRepository(pg)
	notificationLogs := repository.NewNotificationLogRepository(pg)

	searches := searchhistory.NewStore(esClient.Client, cfg.Database.Elasticsearch.SearchHistoryIndex, log)
	if err := searches.EnsureIndex(ctx); err != nil {
		zapLog.Warn("search history index check failed", zap.String("index", searches.Index()), zap.Error(err))
	}

	reg := registry.Default()
	maxAttempts := make(map[string]int)
	for _, qt := range reg.Types() {
		if w, ok := cfg.Workers[qt]; ok && w.MaxRetries > 0 {
			maxAttempts[qt] = w.MaxRetries
		}
	}
	queueStore := queue.NewStore(pg, queue.StoreOptions{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		MaxAttemptsByType: maxAttempts,
		Backoff: queue.Backoff{
			Base: config.GetDuration(cfg.Queue.BackoffBase),
			Max:  config.GetDuration(cfg.Queue.BackoffMax),
		},
		Registry: reg,
	})

	// --- Notification dispatch ---
	out, err := sink.New(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("sink init failed", zap.Error(err))
	}
	zapLog.Info("Notification sink ready", zap.String("sink", out.Name()), zap.String("channel", string(out.Channel())))

	var dedupe dispatcher.Deduper
	if cfg.Notifications.DedupeEnabled && redis != nil {
		dedupe = dispatcher.NewRedisDeduper(redis.GetClient(), config.GetDuration(cfg.Notifications.DedupeTTL))
	}
	sender := dispatcher.New(out, notificationLogs, dedupe, dispatcher.NewRenderer(cfg.Notifications.FrontendURL), log)
	m := matcher.New(cfg.Notifications.MatchesUnfiltered())

	// --- START: Register queue handlers ---
	handlers := map[string]queue.Handler{}

	if taskType := njp.TaskType; config.IsWorkerEnabled(cfg, taskType) {
		handlers[taskType] = njp.NewHandler(
			&njp.Config{Timeout: workerTimeout(cfg, taskType)},
			jobs, alerts, m, sender, log,
		)
	}

	if taskType := ja.TaskType; config.IsWorkerEnabled(cfg, taskType) {
		handlers[taskType] = ja.NewHandler(&ja.Config{Timeout: workerTimeout(cfg, taskType)}, log)
	}

	if taskType := gn.TaskType; config.IsWorkerEnabled(cfg, taskType) {
		handlers[taskType] = gn.NewHandler(&gn.Config{Timeout: workerTimeout(cfg, taskType)}, log)
	}

	// Disabled types stay pending instead of failing as unknown.
	itemTimeouts := map[string]time.Duration{}
	var paused []string
	for _, qt := range reg.Types() {
		if _, ok := handlers[qt]; !ok {
			paused = append(paused, qt)
			continue
		}
		itemTimeouts[qt] = workerTimeout(cfg, qt)
	}

	processor := queue.NewProcessor(queueStore, queue.ProcessorConfig{
		Interval:        config.GetDuration(cfg.Queue.Interval),
		BatchSize:       cfg.Queue.BatchSize,
		BatchTimeout:    config.GetDuration(cfg.Queue.BatchTimeout),
		FinalizeTimeout: config.GetDuration(cfg.Queue.FinalizeTimeout),
		StaleAfter:      config.GetDuration(cfg.Queue.StaleAfter),
		ItemTimeouts:    itemTimeouts,
		Paused:          paused,
	}, obs, log)
	for qt, h := range handlers {
		processor.Register(qt, h)
		zapLog.Info("queue handler registered", zap.String("queueType", qt), zap.Duration("timeout", itemTimeouts[qt]))
	}
	// --- END: Register queue handlers ---

	// --- START: Register scheduled sweeps ---
	sched, err := scheduler.New(cfg.Scheduler.Timezone, obs, log)
	if err != nil {
		zapLog.Fatal("scheduler init failed", zap.Error(err))
	}

	addTask := func(name string, fn scheduler.TaskFunc) {
		if !config.IsWorkerEnabled(cfg, name) {
			zapLog.Info("task disabled", zap.String("task", name))
			return
		}
		spec := cfg.Scheduler.Tasks[name]
		if err := sched.AddTask(name, spec, fn, workerTimeout(cfg, name)); err != nil {
			zapLog.Fatal("task registration failed", zap.String("task", name), zap.Error(err))
		}
		zapLog.Info("task registered", zap.String("task", name), zap.String("spec", spec))
	}

	addTask(jal.TaskType, jal.NewHandler(
		&jal.Config{
			Timeout:    workerTimeout(cfg, jal.TaskType),
			BatchLimit: cfg.Notifications.AlertBatchLimit,
		},
		alerts, jobs, m, sender, log,
	).Run)

	relatedCfg := rj.LoadConfig()
	relatedCfg.Timeout = workerTimeout(cfg, rj.TaskType)
	relatedCfg.Limit = cfg.Notifications.RelatedBatchLimit
	addTask(rj.TaskType, rj.NewHandler(relatedCfg, searches, users, jobs, sender, log).Run)

	addTask(nc.TaskType, nc.NewHandler(
		&nc.Config{
			Timeout:               workerTimeout(cfg, nc.TaskType),
			LogRetentionMonths:    cfg.Notifications.LogRetentionMonths,
			SearchRetentionMonths: cfg.Notifications.SearchRetentionMonths,
		},
		notificationLogs, searches, log,
	).Run)

	addTask(qc.TaskType, qc.NewHandler(
		&qc.Config{
			Timeout:       workerTimeout(cfg, qc.TaskType),
			RetentionDays: cfg.Queue.RetentionDays,
		},
		queueStore, log,
	).Run)
	// --- END: Register scheduled sweeps ---

	processor.Start()
	sched.Start()

	// --- Optional job event ingest ---
	ingestCtx, stopIngest := context.WithCancel(ctx)
	ingestDone := make(chan struct{})
	if cfg.Ingest.Kafka.Enabled {
		consumer := ingest.NewConsumer(ingest.ConsumerConfig{
			Brokers: cfg.Ingest.Kafka.Brokers,
			Topic:   cfg.Ingest.Kafka.Topic,
			GroupID: cfg.Ingest.Kafka.GroupID,
		}, queueStore, log)
		go func() {
			defer close(ingestDone)
			defer consumer.Close()
			consumer.Run(ingestCtx)
		}()
	} else {
		close(ingestDone)
	}

	// --- Ops API, health & metrics server ---
	checks := map[string]api.Pinger{"postgres": pg, "elasticsearch": esClient}
	if redis != nil {
		checks["redis"] = redis
	}
	server := api.NewServer(api.Deps{
		Queue:         queueStore,
		Processor:     processor,
		Scheduler:     sched,
		Searches:      searches,
		Notifications: notificationLogs,
		Checks:        checks,
		RetentionDays: cfg.Queue.RetentionDays,
	}, log)

	router := server.Router()
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("Ops server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Ops server failed", zap.Error(err))
		}
	}()

	zapLog.Info("Notification worker started",
		zap.Strings("queueTypes", reg.Types()),
		zap.Strings("pausedQueueTypes", paused),
		zap.Strings("tasks", sched.Status().Tasks),
	)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(ctx, config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	stopIngest()
	<-ingestDone

	sched.Stop(shutdownCtx)

	processorStopped := make(chan struct{})
	go func() {
		processor.Stop()
		close(processorStopped)
	}()
	select {
	case <-processorStopped:
	case <-shutdownCtx.Done():
		// Cancelled handlers still get their results written back; unstarted
		// items are released to pending.
		zapLog.Warn("queue processor did not stop within the grace period, aborting batch")
		processor.Abort()
		select {
		case <-processorStopped:
		case <-time.After(config.GetDuration(cfg.Queue.FinalizeTimeout) * time.Duration(cfg.Queue.BatchSize+1)):
			zapLog.Error("queue processor abort timed out, stale claims will be recovered on next start")
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down ops server", zap.Error(err))
	}

	zapLog.Info("Notification worker stopped")
}
