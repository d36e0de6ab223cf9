// Package alert turns report inserts into admin alerts and fans them out to
// the UI-facing sinks.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SneHope/TVH-NotiZAR/internal/cache"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
)

// ErrSkipped is returned by a sink that deliberately did nothing, such as a
// notification without permission. The dispatcher counts it but does not warn.
var ErrSkipped = errors.New("sink skipped")

// Sink is one alert side effect.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, a domain.Alert) error
}

// Dispatcher delivers each alert at most once per report id to every enabled
// sink. A failing sink never affects the others.
type Dispatcher struct {
	sinks   []Sink
	seen    *cache.LRU[string, struct{}]
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	disabled map[string]bool
}

// NewDispatcher creates a dispatcher remembering the last dedupSize report ids.
func NewDispatcher(sinks []Sink, dedupSize int, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		seen:     cache.New[string, struct{}](dedupSize),
		logger:   logger,
		metrics:  metrics,
		disabled: make(map[string]bool),
	}
}

// Dispatch fans a out to the enabled sinks. It returns false when the report
// was already announced.
func (d *Dispatcher) Dispatch(ctx context.Context, a domain.Alert) bool {
	if !d.seen.Add(a.Report.ID, struct{}{}) {
		d.metrics.AlertsDuplicate.Inc()
		d.logger.Debug("duplicate alert suppressed", "report_id", a.Report.ID)
		return false
	}

	d.metrics.AlertsGenerated.WithLabelValues(string(a.Priority)).Inc()
	d.metrics.AlertUrgencyScore.Observe(float64(a.Metadata.UrgencyScore))

	for _, s := range d.sinks {
		if !d.Enabled(s.Name()) {
			continue
		}
		d.deliver(ctx, s, a)
	}
	return true
}

// SetEnabled toggles a sink by name.
func (d *Dispatcher) SetEnabled(name string, enabled bool) error {
	if !d.known(name) {
		return fmt.Errorf("unknown sink %q", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled[name] = !enabled
	return nil
}

// Enabled reports whether the named sink receives alerts.
func (d *Dispatcher) Enabled(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.disabled[name]
}

func (d *Dispatcher) known(name string) bool {
	for _, s := range d.sinks {
		if s.Name() == name {
			return true
		}
	}
	return false
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, a domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.SinkDeliveries.WithLabelValues(s.Name(), "error").Inc()
			d.logger.Warn("alert sink panicked", "sink", s.Name(), "report_id", a.Report.ID, "panic", r)
		}
	}()

	err := s.Deliver(ctx, a)
	switch {
	case err == nil:
		d.metrics.SinkDeliveries.WithLabelValues(s.Name(), "delivered").Inc()
	case errors.Is(err, ErrSkipped):
		d.metrics.SinkDeliveries.WithLabelValues(s.Name(), "skipped").Inc()
		d.logger.Debug("alert sink skipped", "sink", s.Name(), "report_id", a.Report.ID, "reason", err)
	default:
		d.metrics.SinkDeliveries.WithLabelValues(s.Name(), "error").Inc()
		d.logger.Warn("alert sink failed", "sink", s.Name(), "report_id", a.Report.ID, "error", err)
	}
}
