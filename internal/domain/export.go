package domain

import (
	"sort"
	"time"
)

// Summary aggregates a set of reports for dashboards and exports.
type Summary struct {
	TotalReports      int            `json:"totalReports"`
	ReportsByType     map[string]int `json:"reportsByType"`
	ReportsByStatus   map[string]int `json:"reportsByStatus"`
	ReportsByLocation map[string]int `json:"reportsByLocation"`
}

// Timeframe bounds an export.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExportSnapshot is the administrative export document. It is a flat
// aggregate with no schema version.
type ExportSnapshot struct {
	ExportDate time.Time `json:"exportDate"`
	Timeframe  Timeframe `json:"timeframe"`
	Summary    Summary   `json:"summary"`
	Reports    []Report  `json:"reports"`
}

// Summarize counts reports by type, status, and location.
func Summarize(reports []Report) Summary {
	s := Summary{
		TotalReports:      len(reports),
		ReportsByType:     make(map[string]int),
		ReportsByStatus:   make(map[string]int),
		ReportsByLocation: make(map[string]int),
	}
	for _, r := range reports {
		s.ReportsByType[r.ReportType]++
		s.ReportsByStatus[string(r.Status)]++
		s.ReportsByLocation[locationKey(r)]++
	}
	return s
}

// BuildExport assembles an export snapshot. Reports are redacted and ordered
// newest first.
func BuildExport(now, start, end time.Time, reports []Report) ExportSnapshot {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.Redacted())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return ExportSnapshot{
		ExportDate: now.UTC(),
		Timeframe:  Timeframe{Start: start.UTC(), End: end.UTC()},
		Summary:    Summarize(out),
		Reports:    out,
	}
}

// locationKey prefers the geocoded place name so that coordinate-only
// locations group under a readable label.
func locationKey(r Report) string {
	if r.PlaceName != "" {
		return r.PlaceName
	}
	return r.Location
}
