// Package dashboard holds the admin dashboard state. The store stays the
// system of record; the presenter only caches query results and folds in live
// inserts between refreshes.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

const recentLimit = 10

// Source lists reports for the dashboard.
type Source interface {
	List(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error)
}

// View is a point-in-time dashboard snapshot.
type View struct {
	domain.Summary
	ActiveReports int             `json:"activeReports"`
	Recent        []domain.Report `json:"recent"`
	RefreshedAt   time.Time       `json:"refreshedAt"`
}

// Presenter owns the dashboard state.
type Presenter struct {
	source Source
	clock  clockwork.Clock
	logger *slog.Logger

	mu          sync.RWMutex
	reports     map[string]domain.Report
	refreshedAt time.Time
}

// NewPresenter creates an empty presenter. Call Refresh to populate it.
func NewPresenter(source Source, clock clockwork.Clock, logger *slog.Logger) *Presenter {
	return &Presenter{
		source:  source,
		clock:   clock,
		logger:  logger,
		reports: make(map[string]domain.Report),
	}
}

// Refresh replaces the state with a fresh store query.
func (p *Presenter) Refresh(ctx context.Context) error {
	reports, err := p.source.List(ctx, domain.ReportFilter{})
	if err != nil {
		return fmt.Errorf("refresh dashboard: %w", err)
	}

	next := make(map[string]domain.Report, len(reports))
	for _, r := range reports {
		next[r.ID] = r.Public()
	}

	p.mu.Lock()
	p.reports = next
	p.refreshedAt = p.clock.Now().UTC()
	p.mu.Unlock()
	return nil
}

// Apply folds a live insert into the state. Applying the same report twice
// has no further effect.
func (p *Presenter) Apply(r domain.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.reports[r.ID]; ok {
		return
	}
	p.reports[r.ID] = r.Public()
}

// Snapshot returns the current aggregated view.
func (p *Presenter) Snapshot() View {
	p.mu.RLock()
	reports := make([]domain.Report, 0, len(p.reports))
	for _, r := range p.reports {
		reports = append(reports, r)
	}
	refreshedAt := p.refreshedAt
	p.mu.RUnlock()

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].ID > reports[j].ID
		}
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})

	active := 0
	for _, r := range reports {
		if r.Status.IsActive() {
			active++
		}
	}
	recent := reports
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}

	return View{
		Summary:       domain.Summarize(reports),
		ActiveReports: active,
		Recent:        recent,
		RefreshedAt:   refreshedAt,
	}
}

// Run refreshes the state every interval until ctx is cancelled. Refresh
// failures keep the previous state.
func (p *Presenter) Run(ctx context.Context, interval time.Duration) error {
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("dashboard refresh failed", "error", err)
	}

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("dashboard refresh failed", "error", err)
			}
		}
	}
}
