// Package sqlite persists reports and admin updates with gorm on a pure-Go
// SQLite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

// Store is the gorm-backed report store.
type Store struct {
	db *gorm.DB
}

// Open connects to the DSN, creating the parent directory of file databases,
// and migrates the schema.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if err := ensureDirectory(dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer, and each connection to :memory: is a
	// separate database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Info("database opened", "driver", "sqlite", "dsn", dsn)
	return s, nil
}

// NewStore wraps an existing gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables and fills the fold columns of rows
// written before they existed.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&reportRow{}, &adminUpdateRow{}, &announcementRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	var stale []reportRow
	if err := db.Where("report_type_fold = '' AND report_type <> ''").Find(&stale).Error; err != nil {
		return fmt.Errorf("find unfolded reports: %w", err)
	}
	for _, row := range stale {
		err := db.Model(&reportRow{}).Where("id = ?", row.ID).Updates(map[string]any{
			"report_type_fold": fold(row.ReportType),
			"location_fold":    fold(row.Location),
		}).Error
		if err != nil {
			return fmt.Errorf("fold report %s: %w", row.ID, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeErr("get sql db", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertReport persists r, assigning a new id when r has none.
func (s *Store) InsertReport(ctx context.Context, r domain.Report) (domain.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := toReportRow(r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Report{}, storeErr("insert report", err)
	}
	return row.toDomain(), nil
}

// ListReports returns reports matching f, newest first.
func (s *Store) ListReports(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
	query := s.db.WithContext(ctx).Model(&reportRow{})
	if typ := fold(f.ReportType); typ != "" {
		query = query.Where("report_type_fold = ?", typ)
	}
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if f.ActiveOnly {
		active := make([]string, 0, 2)
		for _, st := range domain.ActiveStatuses() {
			active = append(active, string(st))
		}
		query = query.Where("status IN ?", active)
	}
	if loc := fold(f.Location); loc != "" {
		query = query.Where(`location_fold LIKE ? ESCAPE '\'`, "%"+escapeLike(loc)+"%")
	}
	if !f.From.IsZero() {
		query = query.Where("created_at >= ?", f.From.UnixNano())
	}
	if !f.To.IsZero() {
		query = query.Where("created_at <= ?", f.To.UnixNano())
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var rows []reportRow
	if err := query.Order("created_at desc").Order("rowid desc").Find(&rows).Error; err != nil {
		return nil, storeErr("query reports", err)
	}

	reports := make([]domain.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toDomain())
	}
	return reports, nil
}

// GetReport returns a report by id.
func (s *Store) GetReport(ctx context.Context, id string) (domain.Report, error) {
	var row reportRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Report{}, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
		}
		return domain.Report{}, storeErr("query report", err)
	}
	return row.toDomain(), nil
}

// UpdateReportStatus writes a new status. resolvedAt is stored only when non-nil.
func (s *Store) UpdateReportStatus(ctx context.Context, id string, status domain.Status, resolvedAt *time.Time) error {
	updates := map[string]any{"status": string(status)}
	if resolvedAt != nil {
		updates["resolved_at"] = resolvedAt.UnixNano()
	}
	result := s.db.WithContext(ctx).Model(&reportRow{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return storeErr("update report status", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// InsertAdminUpdate persists u, assigning a new id when u has none.
func (s *Store) InsertAdminUpdate(ctx context.Context, u domain.AdminUpdate) (domain.AdminUpdate, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := toAdminUpdateRow(u)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.AdminUpdate{}, storeErr("insert admin update", err)
	}
	return row.toDomain(), nil
}

// ListAdminUpdates returns a report's updates, newest first.
func (s *Store) ListAdminUpdates(ctx context.Context, reportID string) ([]domain.AdminUpdate, error) {
	var rows []adminUpdateRow
	if err := s.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("created_at desc").
		Order("rowid desc").
		Find(&rows).Error; err != nil {
		return nil, storeErr("query admin updates", err)
	}

	updates := make([]domain.AdminUpdate, 0, len(rows))
	for _, row := range rows {
		updates = append(updates, row.toDomain())
	}
	return updates, nil
}

// MarkAdminUpdateRead sets is_read. Marking an already-read update succeeds.
func (s *Store) MarkAdminUpdateRead(ctx context.Context, id string) error {
	var row adminUpdateRow
	db := s.db.WithContext(ctx)
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("admin update %s: %w", id, domain.ErrNotFound)
		}
		return storeErr("query admin update", err)
	}
	if row.IsRead {
		return nil
	}
	if err := db.Model(&adminUpdateRow{}).Where("id = ?", id).Update("is_read", true).Error; err != nil {
		return storeErr("mark admin update read", err)
	}
	return nil
}

// InsertAnnouncement persists a, assigning a new id when a has none.
func (s *Store) InsertAnnouncement(ctx context.Context, a domain.Announcement) (domain.Announcement, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := toAnnouncementRow(a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Announcement{}, storeErr("insert announcement", err)
	}
	return row.toDomain(), nil
}

// ListAnnouncements returns the newest announcements first. A limit of zero
// returns all of them.
func (s *Store) ListAnnouncements(ctx context.Context, limit int) ([]domain.Announcement, error) {
	query := s.db.WithContext(ctx).Order("created_at desc").Order("rowid desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []announcementRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, storeErr("query announcements", err)
	}
	out := make([]domain.Announcement, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func ensureDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || isMemory(candidate) {
		return nil
	}
	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %q: %w", dir, err)
	}
	return nil
}
