package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AlertTypeNewReport tags alerts raised for freshly inserted reports.
const AlertTypeNewReport = "new_report"

const (
	ActionView         = "view"
	ActionUpdateStatus = "update-status"
	ActionContact      = "contact-reporter"
	ActionEscalate     = "escalate"

	UserTypeAnonymous  = "anonymous"
	UserTypeIdentified = "identified"
)

const (
	excerptLength       = 100
	longDescriptionSize = 200
	baseUrgency         = 50
	longDescriptionBump = 10
)

var (
	emergencyKeywords = []string{"emergency", "urgent", "danger", "critical", "accident", "fire", "medical"}
	highKeywords      = []string{"complaint", "issue", "problem", "broken", "not working"}

	// urgencyOffsets adjusts the base score per report type. Unlisted types add nothing.
	urgencyOffsets = map[string]int{
		"emergency":  40,
		"complaint":  30,
		"incident":   25,
		"feedback":   -10,
		"suggestion": -15,
	}
)

// Alert is the admin-facing summary of a newly inserted report.
type Alert struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Priority  Priority      `json:"priority"`
	Report    AlertReport   `json:"report"`
	Metadata  AlertMetadata `json:"metadata"`
	Actions   []string      `json:"actions"`
}

// AlertReport is the report excerpt carried by an alert. Reporter fields are
// only populated for identified reporters.
type AlertReport struct {
	ID            string    `json:"id"`
	ReportType    string    `json:"report_type"`
	Location      string    `json:"location"`
	CreatedAt     time.Time `json:"created_at"`
	Status        Status    `json:"status"`
	Excerpt       string    `json:"excerpt"`
	ReporterName  string    `json:"reporter_name,omitempty"`
	ReporterEmail string    `json:"reporter_email,omitempty"`
}

// AlertMetadata describes the reporter and the computed urgency.
type AlertMetadata struct {
	UserType       string `json:"user_type"`
	HasContactInfo bool   `json:"has_contact_info"`
	UrgencyScore   int    `json:"urgency_score"`
}

// GenerateAlert derives the admin alert for a report. Apart from the
// timestamp, the output depends only on the report.
func GenerateAlert(r Report) Alert {
	priority := ClassifyPriority(r.Description, r.ReportType)

	ar := AlertReport{
		ID:         r.ID,
		ReportType: r.ReportType,
		Location:   r.Location,
		CreatedAt:  r.CreatedAt,
		Status:     r.Status,
		Excerpt:    excerpt(r.Description, excerptLength),
	}
	meta := AlertMetadata{
		UserType:     UserTypeAnonymous,
		UrgencyScore: UrgencyScore(r.ReportType, r.Description),
	}
	if !r.IsAnonymous {
		ar.ReporterName = r.ReporterName
		ar.ReporterEmail = r.ReporterEmail
		meta.UserType = UserTypeIdentified
		meta.HasContactInfo = r.ReporterEmail != ""
	}

	actions := []string{ActionView, ActionUpdateStatus}
	if meta.HasContactInfo {
		actions = append(actions, ActionContact)
	}
	if priority == PriorityEmergency {
		actions = append(actions, ActionEscalate)
	}

	return Alert{
		Type:      AlertTypeNewReport,
		Timestamp: clock.Now().UTC(),
		Priority:  priority,
		Report:    ar,
		Metadata:  meta,
		Actions:   actions,
	}
}

// ClassifyPriority applies the keyword rules, first match wins.
func ClassifyPriority(description, reportType string) Priority {
	desc := strings.ToLower(description)
	typ := strings.ToLower(reportType)

	if containsAny(desc, emergencyKeywords) || containsAny(typ, emergencyKeywords) {
		return PriorityEmergency
	}
	if containsAny(desc, highKeywords) || containsAny(typ, highKeywords) {
		return PriorityHigh
	}
	if strings.TrimSpace(typ) == "complaint" {
		return PriorityHigh
	}
	return PriorityNormal
}

// UrgencyScore returns a 0-100 heuristic used for sorting and display.
func UrgencyScore(reportType, description string) int {
	score := baseUrgency + urgencyOffsets[strings.ToLower(strings.TrimSpace(reportType))]
	if utf8.RuneCountInString(description) > longDescriptionSize {
		score += longDescriptionBump
	}
	return min(max(score, 0), 100)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// excerpt cuts s to n runes, appending an ellipsis when anything was dropped.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
