package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
)

// InsertSource is the report insert feed the alerter listens on.
type InsertSource interface {
	SubscribeToInserts(fn func(domain.Report)) (domain.Subscription, error)
}

// Alerter generates an alert for every inserted report and dispatches it.
// Alerts are dispatched inside the feed callback, one at a time in arrival
// order, so a feed that acknowledges after the callback returns only
// acknowledges reports that were alerted on.
type Alerter struct {
	source     InsertSource
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool

	// mu is held while an alert is dispatched; stopped is set once Run has
	// cancelled its subscription.
	mu      sync.Mutex
	stopped bool
}

// NewAlerter creates an Alerter.
func NewAlerter(source InsertSource, dispatcher *Dispatcher, logger *slog.Logger, metrics *observability.Metrics) *Alerter {
	return &Alerter{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil while the alerter holds a live feed subscription.
func (a *Alerter) CheckReadiness(_ context.Context) error {
	if !a.ready.Load() {
		return errors.New("alerter is not subscribed to report inserts")
	}
	return nil
}

// Run subscribes to the insert feed and dispatches alerts until ctx is
// cancelled. Subscribe failures are retried with exponential backoff. On
// cancellation Run waits for an in-flight dispatch to finish before returning.
func (a *Alerter) Run(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = false
	a.mu.Unlock()

	sub, ok := a.subscribe(ctx)
	if !ok {
		return nil
	}

	a.ready.Store(true)
	a.metrics.AlerterRunning.Set(1)
	a.logger.Info("alerter started")

	<-ctx.Done()
	a.logger.Info("alerter stopping", "reason", ctx.Err())

	sub.Cancel()
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	a.ready.Store(false)
	a.metrics.AlerterRunning.Set(0)
	return nil
}

func (a *Alerter) subscribe(ctx context.Context) (domain.Subscription, bool) {
	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		sub, err := a.source.SubscribeToInserts(a.deliver(ctx))
		if err == nil {
			return sub, true
		}
		a.logger.Error("subscribe to report inserts failed", "error", err, "retry_in", backoff)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return nil, false
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
}

// deliver is the feed callback. A report that reaches it is dispatched in
// full, even while Run is shutting down; reports arriving after the
// subscription was cancelled are left to the feed.
func (a *Alerter) deliver(ctx context.Context) func(domain.Report) {
	dispatchCtx := context.WithoutCancel(ctx)
	return func(r domain.Report) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.stopped {
			return
		}
		a.handle(dispatchCtx, r)
	}
}

func (a *Alerter) handle(ctx context.Context, r domain.Report) {
	al := domain.GenerateAlert(r)
	if a.dispatcher.Dispatch(ctx, al) {
		a.logger.Info("alert dispatched",
			"report_id", r.ID,
			"priority", al.Priority,
			"urgency_score", al.Metadata.UrgencyScore,
		)
	}
}
