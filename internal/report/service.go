// Package report owns the report lifecycle: submission, queries, status
// transitions, admin annotations, and the insert feeds the admin side
// subscribes to.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
)

// Store persists reports, admin updates and announcements. Implementations
// wrap transport failures with domain.ErrStore and report missing records
// with domain.ErrNotFound.
type Store interface {
	InsertReport(ctx context.Context, r domain.Report) (domain.Report, error)
	ListReports(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error)
	GetReport(ctx context.Context, id string) (domain.Report, error)
	UpdateReportStatus(ctx context.Context, id string, status domain.Status, resolvedAt *time.Time) error
	InsertAdminUpdate(ctx context.Context, u domain.AdminUpdate) (domain.AdminUpdate, error)
	ListAdminUpdates(ctx context.Context, reportID string) ([]domain.AdminUpdate, error)
	MarkAdminUpdateRead(ctx context.Context, id string) error
	InsertAnnouncement(ctx context.Context, a domain.Announcement) (domain.Announcement, error)
	ListAnnouncements(ctx context.Context, limit int) ([]domain.Announcement, error)
}

const (
	defaultStoreTimeout = 5 * time.Second
	defaultAuthor       = "Admin"
)

// Service is the report store interface and lifecycle manager.
type Service struct {
	store    Store
	reports  domain.Feed[domain.Report]
	updates  domain.Feed[domain.AdminUpdate]
	geocoder domain.Geocoder
	clock    clockwork.Clock
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithGeocoder enables best-effort location enrichment on submit.
func WithGeocoder(g domain.Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source for createdAt and resolvedAt.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService wires a Service.
func NewService(
	store Store,
	reports domain.Feed[domain.Report],
	updates domain.Feed[domain.AdminUpdate],
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		store:   store,
		reports: reports,
		updates: updates,
		clock:   clockwork.NewRealClock(),
		timeout: defaultStoreTimeout,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and persists a new report, then announces it on the
// report feed. A publish failure does not fail the submission.
func (s *Service) Submit(ctx context.Context, in domain.ReportInput) (domain.Report, error) {
	in = in.Normalize()
	if err := validateStruct(in); err != nil {
		s.metrics.ReportSubmitErrors.WithLabelValues("validation").Inc()
		return domain.Report{}, err
	}

	r := domain.NewReport(in, s.clock.Now())
	if s.geocoder != nil {
		r = domain.EnrichLocation(ctx, r, s.geocoder, s.logger)
	}

	var created domain.Report
	err := s.withStore(ctx, "insert_report", func(ctx context.Context) error {
		var err error
		created, err = s.store.InsertReport(ctx, r)
		return err
	})
	if err != nil {
		s.metrics.ReportSubmitErrors.WithLabelValues("store").Inc()
		return domain.Report{}, err
	}
	s.metrics.ReportsSubmitted.Inc()
	s.logger.Info("report submitted",
		"report_id", created.ID,
		"report_type", created.ReportType,
		"anonymous", created.IsAnonymous,
	)

	if err := s.reports.Publish(ctx, created); err != nil {
		s.metrics.FeedPublishErrors.Inc()
		s.logger.Error("publish report insert failed", "report_id", created.ID, "error", err)
	}
	return created, nil
}

// List returns reports matching f, newest first.
func (s *Service) List(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
	f, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	var out []domain.Report
	err = s.withStore(ctx, "list_reports", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListReports(ctx, f)
		return err
	})
	return out, err
}

// GetByID returns a single report.
func (s *Service) GetByID(ctx context.Context, id string) (domain.Report, error) {
	var out domain.Report
	err := s.withStore(ctx, "get_report", func(ctx context.Context) error {
		var err error
		out, err = s.store.GetReport(ctx, id)
		return err
	})
	return out, err
}

// UpdateStatus moves a report along its lifecycle. Repeating the current
// status succeeds without writing. Concurrent updates are last-write-wins.
func (s *Service) UpdateStatus(ctx context.Context, id string, next domain.Status) error {
	next, err := domain.ParseStatus(string(next))
	if err != nil {
		return err
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == next {
		return nil
	}
	if err := domain.ValidateTransition(current.Status, next); err != nil {
		s.metrics.InvalidTransitions.Inc()
		s.logger.Warn("status transition refused",
			"report_id", id,
			"from", current.Status,
			"to", next,
		)
		return err
	}

	var resolvedAt *time.Time
	if next == domain.StatusResolved {
		now := s.clock.Now().UTC()
		resolvedAt = &now
	}
	err = s.withStore(ctx, "update_status", func(ctx context.Context) error {
		return s.store.UpdateReportStatus(ctx, id, next, resolvedAt)
	})
	if err != nil {
		return err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(current.Status), string(next)).Inc()
	s.logger.Info("report status updated", "report_id", id, "from", current.Status, "to", next)
	return nil
}

// SubscribeToInserts registers fn for every report inserted after the call.
func (s *Service) SubscribeToInserts(fn func(domain.Report)) (domain.Subscription, error) {
	sub, err := s.reports.Subscribe(fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe to report inserts: %w", err)
	}
	return sub, nil
}

// AddAdminUpdate attaches an admin message to an existing report.
func (s *Service) AddAdminUpdate(ctx context.Context, in domain.AdminUpdateInput) (domain.AdminUpdate, error) {
	in.ReportID = trim(in.ReportID)
	in.AdminID = trim(in.AdminID)
	in.Message = trim(in.Message)
	if err := validateStruct(in); err != nil {
		return domain.AdminUpdate{}, err
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return domain.AdminUpdate{}, err
	}

	if _, err := s.GetByID(ctx, in.ReportID); err != nil {
		return domain.AdminUpdate{}, err
	}

	u := domain.AdminUpdate{
		ReportID:  in.ReportID,
		AdminID:   in.AdminID,
		Message:   in.Message,
		Priority:  priority,
		CreatedAt: s.clock.Now().UTC(),
	}
	var created domain.AdminUpdate
	err = s.withStore(ctx, "insert_admin_update", func(ctx context.Context) error {
		var err error
		created, err = s.store.InsertAdminUpdate(ctx, u)
		return err
	})
	if err != nil {
		return domain.AdminUpdate{}, err
	}
	s.logger.Info("admin update added", "update_id", created.ID, "report_id", created.ReportID, "priority", created.Priority)

	if err := s.updates.Publish(ctx, created); err != nil {
		s.metrics.FeedPublishErrors.Inc()
		s.logger.Error("publish admin update failed", "update_id", created.ID, "error", err)
	}
	return created, nil
}

// ListAdminUpdates returns a report's admin updates, newest first.
func (s *Service) ListAdminUpdates(ctx context.Context, reportID string) ([]domain.AdminUpdate, error) {
	var out []domain.AdminUpdate
	err := s.withStore(ctx, "list_admin_updates", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListAdminUpdates(ctx, reportID)
		return err
	})
	return out, err
}

// MarkUpdateRead flags an admin update as read.
func (s *Service) MarkUpdateRead(ctx context.Context, updateID string) error {
	return s.withStore(ctx, "mark_update_read", func(ctx context.Context) error {
		return s.store.MarkAdminUpdateRead(ctx, updateID)
	})
}

// SubscribeToAdminUpdates registers fn for every admin update inserted after the call.
func (s *Service) SubscribeToAdminUpdates(fn func(domain.AdminUpdate)) (domain.Subscription, error) {
	sub, err := s.updates.Subscribe(fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe to admin updates: %w", err)
	}
	return sub, nil
}

// PublishAnnouncement stores a community announcement.
func (s *Service) PublishAnnouncement(ctx context.Context, in domain.AnnouncementInput) (domain.Announcement, error) {
	in.Title = trim(in.Title)
	in.Content = trim(in.Content)
	in.Author = trim(in.Author)
	if err := validateStruct(in); err != nil {
		return domain.Announcement{}, err
	}
	if in.Author == "" {
		in.Author = defaultAuthor
	}

	a := domain.Announcement{
		Title:     in.Title,
		Content:   in.Content,
		Author:    in.Author,
		CreatedAt: s.clock.Now().UTC(),
	}
	var created domain.Announcement
	err := s.withStore(ctx, "insert_announcement", func(ctx context.Context) error {
		var err error
		created, err = s.store.InsertAnnouncement(ctx, a)
		return err
	})
	if err != nil {
		return domain.Announcement{}, err
	}
	s.logger.Info("announcement published", "announcement_id", created.ID, "author", created.Author)
	return created, nil
}

// ListAnnouncements returns announcements newest first. A limit of zero
// returns all of them.
func (s *Service) ListAnnouncements(ctx context.Context, limit int) ([]domain.Announcement, error) {
	if limit < 0 {
		return nil, &domain.ValidationError{Fields: []string{"limit"}}
	}
	var out []domain.Announcement
	err := s.withStore(ctx, "list_announcements", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListAnnouncements(ctx, limit)
		return err
	})
	return out, err
}

// Export builds the administrative snapshot of reports created in [start, end].
func (s *Service) Export(ctx context.Context, start, end time.Time) (domain.ExportSnapshot, error) {
	if !end.IsZero() && end.Before(start) {
		return domain.ExportSnapshot{}, &domain.ValidationError{Fields: []string{"start", "end"}}
	}
	reports, err := s.List(ctx, domain.ReportFilter{From: start, To: end})
	if err != nil {
		return domain.ExportSnapshot{}, err
	}
	return domain.BuildExport(s.clock.Now(), start, end, reports), nil
}

// withStore runs fn under the store timeout and records its duration. A
// deadline expiry is reported as a store failure.
func (s *Service) withStore(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	s.metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil && !isDomainErr(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, ctx.Err())
	}
	return err
}
