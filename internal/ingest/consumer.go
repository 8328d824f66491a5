// internal/ingest/consumer.go
package ingest

import (
	"context"
	stderrors "errors"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"

	"github.com/segmentio/kafka-go"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, req models.EnqueueRequest) (int64, error)
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// EnqueueAttempts bounds retries of a failing enqueue before the
	// message is dropped.
	EnqueueAttempts int
	RetryDelay      time.Duration
}

// Consumer turns job board events into queue items. Each message is
// committed once it has been enqueued or judged unusable.
type Consumer struct {
	reader MessageReader
	queue  Enqueuer
	log    logger.Logger
	cfg    ConsumerConfig
}

func NewConsumer(cfg ConsumerConfig, queue Enqueuer, log logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return NewConsumerWithReader(reader, cfg, queue, log)
}

func NewConsumerWithReader(reader MessageReader, cfg ConsumerConfig, queue Enqueuer, log logger.Logger) *Consumer {
	if cfg.EnqueueAttempts <= 0 {
		cfg.EnqueueAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Consumer{
		reader: reader,
		queue:  queue,
		log: log.WithFields(map[string]interface{}{
			"component": "job-event-consumer",
			"topic":     cfg.Topic,
		}),
		cfg: cfg,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("job event consumer started", nil)
	defer c.log.Info("job event consumer stopped", nil)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("failed to fetch message", map[string]interface{}{"error": err})
			if !sleep(ctx, c.cfg.RetryDelay) {
				return nil
			}
			continue
		}

		c.HandleMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("failed to commit message", map[string]interface{}{
				"offset": msg.Offset,
				"error":  err,
			})
		}
	}
}

// HandleMessage enqueues the work for one message. It returns the new
// queue item id, or 0 when the message was skipped.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) int64 {
	log := c.log.WithFields(map[string]interface{}{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	req, err := ToEnqueueRequest(msg.Value)
	if stderrors.Is(err, ErrIgnoredEvent) {
		log.Debug("ignoring event", map[string]interface{}{"reason": err.Error()})
		return 0
	}
	if err != nil {
		log.Warn("skipping malformed job event", map[string]interface{}{"error": err})
		return 0
	}

	for attempt := 1; ; attempt++ {
		id, err := c.queue.Enqueue(ctx, req)
		if err == nil {
			log.Info("job event enqueued", map[string]interface{}{
				"queueType": req.QueueType,
				"jobId":     *req.JobID,
				"itemId":    id,
			})
			return id
		}

		stdErr := errors.Normalize(err)
		if !stdErr.Retryable || attempt >= c.cfg.EnqueueAttempts {
			log.Error("dropping job event after enqueue failure", map[string]interface{}{
				"queueType": req.QueueType,
				"attempts":  attempt,
				"code":      stdErr.Code,
				"error":     err,
			})
			return 0
		}
		if !sleep(ctx, c.cfg.RetryDelay*time.Duration(1<<(attempt-1))) {
			return 0
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
