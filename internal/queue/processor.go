// internal/queue/processor.go
package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/common/metrics"
	"jobboard-notifier/internal/common/observability"
	"jobboard-notifier/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler executes one claimed item. A nil error completes the item.
type Handler interface {
	Handle(ctx context.Context, item models.QueueItem) error
}

type HandlerFunc func(ctx context.Context, item models.QueueItem) error

func (f HandlerFunc) Handle(ctx context.Context, item models.QueueItem) error {
	return f(ctx, item)
}

// ItemStore is the part of Store the processor drives.
type ItemStore interface {
	ClaimBatch(ctx context.Context, limit int, exclude []string) ([]models.QueueItem, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, item models.QueueItem, message string, retry bool) (models.QueueStatus, error)
	Release(ctx context.Context, id int64) error
	RecoverStale(ctx context.Context, olderThan time.Duration) (requeued, failed int64, err error)
}

type ProcessorConfig struct {
	Interval     time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	ItemTimeouts map[string]time.Duration
	// FinalizeTimeout bounds each write-back. It does not inherit the batch
	// deadline, so results still land after handlers used up the batch.
	FinalizeTimeout time.Duration
	// StaleAfter is how long an item may sit in processing before the next
	// batch takes it back. Zero derives it from the batch bounds.
	StaleAfter time.Duration
	// Paused queue types are not claimed; their items stay pending.
	Paused []string
}

// BatchResult summarizes one processing tick.
type BatchResult struct {
	Skipped   bool `json:"skipped"`
	Claimed   int  `json:"claimed"`
	Completed int  `json:"completed"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Released  int  `json:"released"`
	Recovered int  `json:"recovered"`
}

// Processor drains the queue on an interval. Only one batch runs at a time;
// a tick that fires while a batch is in flight is dropped.
type Processor struct {
	store    ItemStore
	handlers map[string]Handler
	errs     *errors.ErrorHandler
	obs      *observability.Observability
	log      logger.Logger
	cfg      ProcessorConfig

	busy atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	abort   context.CancelFunc
	wg      sync.WaitGroup
}

func NewProcessor(store ItemStore, cfg ProcessorConfig, obs *observability.Observability, log logger.Logger) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Minute
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.BatchTimeout
		if worst := cfg.BatchTimeout + time.Duration(cfg.BatchSize)*cfg.FinalizeTimeout; worst > cfg.StaleAfter {
			cfg.StaleAfter = worst
		}
	}
	log = log.WithFields(map[string]interface{}{"component": "queue-processor"})
	return &Processor{
		store:    store,
		handlers: make(map[string]Handler),
		errs:     errors.NewErrorHandler(log),
		obs:      obs,
		log:      log,
		cfg:      cfg,
	}
}

// Register binds a handler to a queue type. Call before Start.
func (p *Processor) Register(queueType string, h Handler) {
	p.handlers[queueType] = h
}

func (p *Processor) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	ctx, abort := context.WithCancel(context.Background())
	p.abort = abort
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, p.stopCh)
	p.log.Info("queue processor started", map[string]interface{}{
		"interval":  p.cfg.Interval.String(),
		"batchSize": p.cfg.BatchSize,
	})
}

// Stop prevents new ticks and waits for an in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	abort := p.abort
	p.mu.Unlock()

	p.wg.Wait()
	abort()
	p.log.Info("queue processor stopped", nil)
}

// Abort cancels the batch started by the interval loop. Handlers see their
// context end, and the outcomes are still written back.
func (p *Processor) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.abort != nil {
		p.abort()
	}
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// IsBusy reports whether a batch is in flight.
func (p *Processor) IsBusy() bool {
	return p.busy.Load()
}

func (p *Processor) run(ctx context.Context, stopCh <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-stopCh:
			return
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	if _, err := p.ProcessBatch(ctx); err != nil {
		p.log.Error("queue batch failed", map[string]interface{}{"error": err})
	}
}

// ProcessBatch claims and executes one batch. It is what each tick runs and
// also serves on-demand processing. When a batch is already in flight it
// returns immediately with Skipped set. The batch never runs longer than
// BatchTimeout; items it had no time to start go back to pending.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchResult, error) {
	if !p.busy.CompareAndSwap(false, true) {
		metrics.QueueTicksSkipped.Inc()
		p.log.Debug("queue batch still in flight, skipping tick", nil)
		return BatchResult{Skipped: true}, nil
	}
	defer p.busy.Store(false)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	ctx, span := p.startSpan(ctx, "queue.process_batch", attribute.Int("batch_size", p.cfg.BatchSize))
	defer span.End()

	var result BatchResult
	requeued, failed, err := p.store.RecoverStale(ctx, p.cfg.StaleAfter)
	if err != nil {
		p.log.Warn("stale claim recovery failed", map[string]interface{}{"error": err})
	} else if requeued+failed > 0 {
		result.Recovered = int(requeued + failed)
		p.log.Warn("recovered stale queue claims", map[string]interface{}{
			"requeued":   requeued,
			"failed":     failed,
			"staleAfter": p.cfg.StaleAfter.String(),
		})
	}

	items, err := p.store.ClaimBatch(ctx, p.cfg.BatchSize, p.cfg.Paused)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return result, err
	}

	result.Claimed = len(items)
	if len(items) == 0 {
		return result, nil
	}
	p.log.Info("processing queue items", map[string]interface{}{"count": len(items)})

	for _, item := range items {
		if ctx.Err() != nil {
			if p.release(ctx, item) {
				result.Released++
			}
			continue
		}
		switch p.processItem(ctx, item) {
		case models.QueueStatusCompleted:
			result.Completed++
		case models.QueueStatusPending:
			result.Retried++
		case models.QueueStatusFailed:
			result.Failed++
		}
	}

	p.log.Info("queue batch finished", map[string]interface{}{
		"claimed":   result.Claimed,
		"completed": result.Completed,
		"retried":   result.Retried,
		"failed":    result.Failed,
		"released":  result.Released,
	})
	return result, nil
}

// finalizeContext keeps the values of ctx but not its deadline or cancellation.
func (p *Processor) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalizeTimeout)
}

func (p *Processor) release(ctx context.Context, item models.QueueItem) bool {
	fctx, cancel := p.finalizeContext(ctx)
	defer cancel()

	if err := p.store.Release(fctx, item.ID); err != nil {
		p.log.Error("failed to release unstarted item", map[string]interface{}{
			"itemId": item.ID,
			"error":  err,
		})
		return false
	}
	return true
}

// processItem runs one item and writes its outcome back. Failures are
// contained here so the rest of the batch proceeds.
func (p *Processor) processItem(ctx context.Context, item models.QueueItem) models.QueueStatus {
	start := time.Now()
	log := p.log.WithFields(map[string]interface{}{
		"itemId":    item.ID,
		"queueType": item.QueueType,
		"attempt":   item.Attempts,
	})

	ctx, span := p.startSpan(ctx, "queue.process_item",
		attribute.Int64("item_id", item.ID),
		attribute.String("queue_type", item.QueueType),
		attribute.Int("attempt", item.Attempts),
	)
	defer span.End()

	handleErr := p.handle(ctx, item)
	metrics.QueueItemDuration.WithLabelValues(item.QueueType).Observe(time.Since(start).Seconds())

	fctx, cancel := p.finalizeContext(ctx)
	defer cancel()

	if handleErr == nil {
		if err := p.store.Complete(fctx, item.ID); err != nil {
			log.Error("failed to mark item completed", map[string]interface{}{"error": err})
			return models.QueueStatusProcessing
		}
		metrics.QueueItemsCompleted.WithLabelValues(item.QueueType).Inc()
		p.recordOutcome(fctx, item.QueueType, "completed", time.Since(start))
		log.Debug("queue item completed", nil)
		return models.QueueStatusCompleted
	}

	span.RecordError(handleErr)
	span.SetStatus(codes.Error, handleErr.Error())

	stdErr, retry := p.errs.HandleItemError(item.ID, item.QueueType, handleErr, item.Attempts, item.MaxAttempts)
	status, err := p.store.Fail(fctx, item, failureMessage(stdErr), retry)
	if err != nil {
		log.Error("failed to record item failure", map[string]interface{}{"error": err})
		return models.QueueStatusProcessing
	}

	terminal := status == models.QueueStatusFailed
	metrics.QueueItemsFailed.WithLabelValues(item.QueueType, string(stdErr.Code), strconv.FormatBool(terminal)).Inc()
	p.recordOutcome(fctx, item.QueueType, string(status), time.Since(start))
	if terminal {
		log.Warn("queue item failed permanently", map[string]interface{}{"maxAttempts": item.MaxAttempts})
	}
	return status
}

func (p *Processor) handle(ctx context.Context, item models.QueueItem) (err error) {
	h, ok := p.handlers[item.QueueType]
	if !ok {
		return errors.NewUnknownQueueTypeError(item.QueueType)
	}

	if timeout, ok := p.cfg.ItemTimeouts[item.QueueType]; ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewQueueHandlerFailedError(item.QueueType, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, item)
}

func (p *Processor) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p.obs == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.obs.StartSpan(ctx, name, attrs...)
}

func (p *Processor) recordOutcome(ctx context.Context, queueType, status string, d time.Duration) {
	if p.obs == nil {
		return
	}
	p.obs.RecordItemProcessed(ctx, queueType, status)
	p.obs.RecordItemDuration(ctx, d, queueType, status)
}

func failureMessage(e *errors.StandardError) string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}
