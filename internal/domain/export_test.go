package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	reports := []Report{
		{ReportType: "incident", Status: StatusSubmitted, Location: "Hatfield"},
		{ReportType: "incident", Status: StatusResolved, Location: "Lat: -25.7479, Lng: 28.2293", PlaceName: "Arcadia"},
		{ReportType: "complaint", Status: StatusSubmitted, Location: "Hatfield"},
	}

	s := Summarize(reports)

	assert.Equal(t, 3, s.TotalReports)
	assert.Equal(t, map[string]int{"incident": 2, "complaint": 1}, s.ReportsByType)
	assert.Equal(t, map[string]int{"submitted": 2, "resolved": 1}, s.ReportsByStatus)
	assert.Equal(t, map[string]int{"Hatfield": 2, "Arcadia": 1}, s.ReportsByLocation)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalReports)
	assert.NotNil(t, s.ReportsByType)
}

func TestBuildExport(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	reports := []Report{
		{ID: "old", CreatedAt: base, ReporterName: "A", IsAnonymous: true, ReportType: "incident", Status: StatusSubmitted},
		{ID: "new", CreatedAt: base.Add(time.Hour), ReporterName: "B", ReportType: "incident", Status: StatusSubmitted},
	}

	snap := BuildExport(base.Add(2*time.Hour), base, base.Add(24*time.Hour), reports)

	require.Len(t, snap.Reports, 2)
	assert.Equal(t, "new", snap.Reports[0].ID)
	assert.Equal(t, "old", snap.Reports[1].ID)
	assert.Empty(t, snap.Reports[1].ReporterName)
	assert.Equal(t, "B", snap.Reports[0].ReporterName)
	assert.Equal(t, 2, snap.Summary.TotalReports)
	assert.Equal(t, base, snap.Timeframe.Start)
	assert.Equal(t, "A", reports[0].ReporterName, "input must be untouched")
}
