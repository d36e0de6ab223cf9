package sqlite

import (
	"strings"
	"time"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

// reportRow is the persisted form of domain.Report. Timestamps are stored as
// Unix nanoseconds so range filters and ordering compare numerically. The
// *_fold columns hold Unicode lower-cased copies for case-insensitive
// filters, since SQLite's LOWER only folds ASCII.
type reportRow struct {
	ID               string   `gorm:"column:id;primaryKey;type:text"`
	ReporterName     string   `gorm:"column:reporter_name;type:text"`
	ReporterEmail    string   `gorm:"column:reporter_email;type:text"`
	ReporterIDNumber string   `gorm:"column:reporter_id_number;type:text"`
	IsAnonymous      bool     `gorm:"column:is_anonymous;not null;default:0"`
	ReportType       string   `gorm:"column:report_type;type:text;not null"`
	ReportTypeFold   string   `gorm:"column:report_type_fold;type:text;not null;default:'';index"`
	Description      string   `gorm:"column:description;type:text;not null"`
	Location         string   `gorm:"column:location;type:text;not null"`
	LocationFold     string   `gorm:"column:location_fold;type:text;not null;default:''"`
	ImageURL         string   `gorm:"column:image_url;type:text"`
	Status           string   `gorm:"column:status;type:text;not null;index"`
	CreatedAt        int64    `gorm:"column:created_at;not null;index;autoCreateTime:false"`
	ResolvedAt       *int64   `gorm:"column:resolved_at"`
	Lat              *float64 `gorm:"column:lat"`
	Lng              *float64 `gorm:"column:lng"`
	PlaceName        string   `gorm:"column:place_name;type:text"`
	GeoSource        string   `gorm:"column:geo_source;type:text"`
}

func (reportRow) TableName() string {
	return "reports"
}

type adminUpdateRow struct {
	ID        string `gorm:"column:id;primaryKey;type:text"`
	ReportID  string `gorm:"column:report_id;type:text;not null;index"`
	AdminID   string `gorm:"column:admin_id;type:text;not null"`
	Message   string `gorm:"column:message;type:text;not null"`
	Priority  string `gorm:"column:priority;type:text;not null"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	IsRead    bool   `gorm:"column:is_read;not null;default:0"`
}

func (adminUpdateRow) TableName() string {
	return "admin_updates"
}

type announcementRow struct {
	ID        string `gorm:"column:id;primaryKey;type:text"`
	Title     string `gorm:"column:title;type:text;not null"`
	Content   string `gorm:"column:content;type:text;not null"`
	Author    string `gorm:"column:author;type:text;not null"`
	CreatedAt int64  `gorm:"column:created_at;not null;index;autoCreateTime:false"`
}

func (announcementRow) TableName() string {
	return "announcements"
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toReportRow(r domain.Report) reportRow {
	row := reportRow{
		ID:               r.ID,
		ReporterName:     r.ReporterName,
		ReporterEmail:    r.ReporterEmail,
		ReporterIDNumber: r.ReporterIDNumber,
		IsAnonymous:      r.IsAnonymous,
		ReportType:       r.ReportType,
		ReportTypeFold:   fold(r.ReportType),
		Description:      r.Description,
		Location:         r.Location,
		LocationFold:     fold(r.Location),
		ImageURL:         r.ImageURL,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt.UnixNano(),
		PlaceName:        r.PlaceName,
		GeoSource:        r.GeoSource,
	}
	if r.ResolvedAt != nil {
		ns := r.ResolvedAt.UnixNano()
		row.ResolvedAt = &ns
	}
	if r.Geo != nil {
		lat, lng := r.Geo.Lat, r.Geo.Lon
		row.Lat, row.Lng = &lat, &lng
	}
	return row
}

func (row reportRow) toDomain() domain.Report {
	r := domain.Report{
		ID:               row.ID,
		ReporterName:     row.ReporterName,
		ReporterEmail:    row.ReporterEmail,
		ReporterIDNumber: row.ReporterIDNumber,
		IsAnonymous:      row.IsAnonymous,
		ReportType:       row.ReportType,
		Description:      row.Description,
		Location:         row.Location,
		ImageURL:         row.ImageURL,
		Status:           domain.Status(row.Status),
		CreatedAt:        fromNanos(row.CreatedAt),
		PlaceName:        row.PlaceName,
		GeoSource:        row.GeoSource,
	}
	if row.ResolvedAt != nil {
		t := fromNanos(*row.ResolvedAt)
		r.ResolvedAt = &t
	}
	if row.Lat != nil && row.Lng != nil {
		r.Geo = &domain.Geo{Lat: *row.Lat, Lon: *row.Lng}
	}
	return r
}

func toAdminUpdateRow(u domain.AdminUpdate) adminUpdateRow {
	return adminUpdateRow{
		ID:        u.ID,
		ReportID:  u.ReportID,
		AdminID:   u.AdminID,
		Message:   u.Message,
		Priority:  string(u.Priority),
		CreatedAt: u.CreatedAt.UnixNano(),
		IsRead:    u.IsRead,
	}
}

func (row adminUpdateRow) toDomain() domain.AdminUpdate {
	return domain.AdminUpdate{
		ID:        row.ID,
		ReportID:  row.ReportID,
		AdminID:   row.AdminID,
		Message:   row.Message,
		Priority:  domain.Priority(row.Priority),
		CreatedAt: fromNanos(row.CreatedAt),
		IsRead:    row.IsRead,
	}
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func toAnnouncementRow(a domain.Announcement) announcementRow {
	return announcementRow{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		Author:    a.Author,
		CreatedAt: a.CreatedAt.UnixNano(),
	}
}

func (row announcementRow) toDomain() domain.Announcement {
	return domain.Announcement{
		ID:        row.ID,
		Title:     row.Title,
		Content:   row.Content,
		Author:    row.Author,
		CreatedAt: fromNanos(row.CreatedAt),
	}
}
