package worker

import (
	"context"
	"time"

	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	"github.com/wxmarkets/billing-service/internal/config"
	"github.com/wxmarkets/billing-service/internal/usecase"
	"go.uber.org/zap"
)

// RetryWorker sweeps stored webhook events that are pending, failed and due,
// or stuck in processing past their claim deadline, and runs them through the
// same processor as live deliveries. It is the at-least-once backstop for
// events the provider has given up redelivering.
type RetryWorker struct {
	webhookRepo repository.WebhookRepository
	processor   *usecase.EventProcessor
	interval    time.Duration
	batchSize   int
	logger      *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func NewRetryWorker(
	webhookRepo repository.WebhookRepository,
	processor *usecase.EventProcessor,
	cfg config.WorkerConfig,
	logger *zap.Logger,
) *RetryWorker {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	return &RetryWorker{
		webhookRepo: webhookRepo,
		processor:   processor,
		interval:    interval,
		batchSize:   batchSize,
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start runs the sweep loop in the background until ctx is canceled or Stop
// is called.
func (w *RetryWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *RetryWorker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *RetryWorker) run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("Webhook retry worker started",
		zap.Duration("sweep_interval", w.interval),
		zap.Int("batch_size", w.batchSize))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetryWorker) sweep(ctx context.Context) {
	events, err := w.webhookRepo.GetPendingEvents(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("Failed to list retryable webhook events", zap.Error(err))
		return
	}

	if len(events) == 0 {
		return
	}

	w.logger.Info("Sweeping webhook events", zap.Int("count", len(events)))

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}

		claimed, err := w.webhookRepo.MarkProcessing(ctx, event.ProviderEventID, w.processor.ClaimTTL())
		if err != nil {
			w.logger.Error("Failed to claim webhook event",
				zap.String("event_id", event.ProviderEventID),
				zap.Error(err))
			continue
		}

		if !claimed {
			// Another instance got there first or the event just finished.
			continue
		}

		result, err := w.processor.ReprocessStored(ctx, event)
		if err != nil {
			// MarkFailed already recorded the error and the next retry time.
			w.logger.Warn("Webhook event retry failed",
				zap.String("event_id", event.ProviderEventID),
				zap.String("event_type", event.EventType),
				zap.Int("attempts", event.ProcessingAttempts+1),
				zap.Error(err))
			continue
		}

		w.logger.Info("Webhook event reprocessed",
			zap.String("event_id", event.ProviderEventID),
			zap.String("outcome", string(result.Outcome)))
	}
}
