package domain

import (
	"context"
	"strings"
	"time"
)

// Status is a report's position in its lifecycle.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// Priority classifies how urgently an alert or admin update needs attention.
type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityHigh      Priority = "high"
	PriorityNormal    Priority = "normal"
)

// ParsePriority accepts a priority label case-insensitively. An empty label
// defaults to normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "", PriorityNormal:
		return PriorityNormal, nil
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityEmergency:
		return PriorityEmergency, nil
	default:
		return "", &ValidationError{Fields: []string{"priority"}}
	}
}

// Geo is a WGS-84 coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// ReportInput is the payload of a public report submission.
type ReportInput struct {
	ReporterName     string `json:"reporter_name,omitempty"`
	ReporterEmail    string `json:"reporter_email,omitempty"`
	ReporterIDNumber string `json:"reporter_id_number,omitempty"`
	IsAnonymous      bool   `json:"is_anonymous"`
	ReportType       string `json:"report_type" validate:"required"`
	Description      string `json:"description" validate:"required"`
	Location         string `json:"location" validate:"required"`

	// Public URL of an uploaded photo of the incident.
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,http_url"`
}

// Normalize trims every text field. Anonymous submissions keep whatever
// identity fields were sent; redaction happens on the way out.
func (in ReportInput) Normalize() ReportInput {
	in.ReporterName = strings.TrimSpace(in.ReporterName)
	in.ReporterEmail = strings.TrimSpace(in.ReporterEmail)
	in.ReporterIDNumber = strings.TrimSpace(in.ReporterIDNumber)
	in.ReportType = strings.TrimSpace(in.ReportType)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	return in
}

// Report is a persisted incident submission.
type Report struct {
	ID               string     `json:"id"`
	ReporterName     string     `json:"reporter_name,omitempty"`
	ReporterEmail    string     `json:"reporter_email,omitempty"`
	ReporterIDNumber string     `json:"reporter_id_number,omitempty"`
	IsAnonymous      bool       `json:"is_anonymous"`
	ReportType       string     `json:"report_type"`
	Description      string     `json:"description"`
	Location         string     `json:"location"`
	ImageURL         string     `json:"image_url,omitempty"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`

	// Geocoding enrichment fields.
	Geo       *Geo   `json:"geo,omitempty"`
	PlaceName string `json:"place_name,omitempty"`
	GeoSource string `json:"geo_source,omitempty"` // "forward", "reverse", "original", "failed"
}

// NewReport builds the initial submitted state of a report from a normalized
// input. The store assigns the ID.
func NewReport(in ReportInput, now time.Time) Report {
	return Report{
		ReporterName:     in.ReporterName,
		ReporterEmail:    in.ReporterEmail,
		ReporterIDNumber: in.ReporterIDNumber,
		IsAnonymous:      in.IsAnonymous,
		ReportType:       in.ReportType,
		Description:      in.Description,
		Location:         in.Location,
		ImageURL:         in.ImageURL,
		Status:           StatusSubmitted,
		CreatedAt:        now.UTC(),
	}
}

// Redacted returns a copy safe for display: anonymous reports lose every
// reporter-identifying field.
func (r Report) Redacted() Report {
	if !r.IsAnonymous {
		return r
	}
	r.ReporterName = ""
	r.ReporterEmail = ""
	r.ReporterIDNumber = ""
	return r
}

// Public returns a copy safe for unauthenticated readers. Contact details and
// the ID number never leave the admin side; the name is kept only for
// identified reports.
func (r Report) Public() Report {
	r = r.Redacted()
	r.ReporterEmail = ""
	r.ReporterIDNumber = ""
	return r
}

// ReportFilter narrows a report listing. Zero values match everything.
type ReportFilter struct {
	ReportType string
	Status     Status
	ActiveOnly bool   // submitted or investigating
	Location   string // case-insensitive substring
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// ActiveStatuses are the statuses that still need admin attention.
func ActiveStatuses() []Status {
	return []Status{StatusSubmitted, StatusInvestigating}
}

// AdminUpdate is a message an administrator attaches to a report.
type AdminUpdate struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"report_id"`
	AdminID   string    `json:"admin_id"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

// AdminUpdateInput is the payload of an admin annotation.
type AdminUpdateInput struct {
	ReportID string `json:"report_id" validate:"required"`
	AdminID  string `json:"admin_id" validate:"required"`
	Message  string `json:"message" validate:"required"`
	Priority string `json:"priority,omitempty"`
}

// Announcement is a community notice published by an administrator.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// AnnouncementInput is the payload of a new announcement. Author defaults
// to "Admin".
type AnnouncementInput struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
	Author  string `json:"author,omitempty"`
}

// Subscription is a live registration on a change feed.
type Subscription interface {
	// Cancel stops delivery. It is safe to call from inside a callback and
	// more than once.
	Cancel()
}

// Feed is a push channel of newly inserted records.
type Feed[T any] interface {
	Publish(ctx context.Context, v T) error
	Subscribe(fn func(T)) (Subscription, error)
}
