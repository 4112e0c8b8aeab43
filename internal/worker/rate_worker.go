package worker

import (
	"context"
	"sync"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/observability"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/service"
	"go.uber.org/zap"
)

// RateWorker refreshes every active exchange rate subscription on a fixed
// cadence. Between refreshes the provider serves the last fetched quote.
type RateWorker struct {
	rates    *service.RateProvider
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateWorker constructs a worker with the default five minute cadence.
func NewRateWorker(rates *service.RateProvider) *RateWorker {
	return &RateWorker{
		rates:    rates,
		interval: 5 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the refresh interval.
func (w *RateWorker) WithInterval(interval time.Duration) *RateWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and refreshes rates at the configured interval.
func (w *RateWorker) Start(ctx context.Context) {
	zap.L().Info("rate worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("rate worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("rate worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *RateWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *RateWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *RateWorker) runOnce(ctx context.Context) {
	result := "success"
	if err := w.rates.RefreshAll(ctx); err != nil {
		result = "error"
	}
	observability.IncrementWorkerRun("rates", result)
}
