// Command seed loads fixture reports into a NotiZAR store through the report
// service, so seeded rows pass the same validation and lifecycle rules as
// live submissions.
//
// Usage:
//
//	go run ./cmd/seed -dsn file:notizar.db -file data/mock/reports.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SneHope/TVH-NotiZAR/internal/adapter/sqlite"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/feed"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
	"github.com/SneHope/TVH-NotiZAR/internal/report"
)

// seedEntry is one fixture report. HoursAgo backdates its creation and
// Status, when set, is applied after submission.
type seedEntry struct {
	domain.ReportInput
	Status   string `json:"status,omitempty"`
	HoursAgo int    `json:"hours_ago"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dsn := flag.String("dsn", "file:notizar.db", "sqlite DSN to seed")
	file := flag.String("file", "data/mock/reports.json", "JSON fixture of reports")
	flag.Parse()

	entries, err := readEntries(*file)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := sqlite.Open(ctx, *dsn, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Sort oldest first and walk a fake clock forward so each report gets
	// its backdated creation time.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].HoursAgo > entries[j].HoursAgo })
	now := time.Now().UTC().Truncate(time.Minute)
	clock := clockwork.NewFakeClockAt(now.Add(-time.Duration(entries[0].HoursAgo) * time.Hour))

	reports := feed.NewHub[domain.Report]()
	updates := feed.NewHub[domain.AdminUpdate]()
	defer reports.Close()
	defer updates.Close()

	svc := report.NewService(store, reports, updates, logger, observability.NewMetricsForTesting(), report.WithClock(clock))

	byStatus := map[domain.Status]int{}
	for i, e := range entries {
		at := now.Add(-time.Duration(e.HoursAgo) * time.Hour)
		if d := at.Sub(clock.Now()); d > 0 {
			clock.Advance(d)
		}

		r, err := svc.Submit(ctx, e.ReportInput)
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.ReportType, err)
		}
		if e.Status != "" {
			if err := svc.UpdateStatus(ctx, r.ID, domain.Status(e.Status)); err != nil {
				return fmt.Errorf("entry %d (%s): status %q: %w", i, e.ReportType, e.Status, err)
			}
			r.Status, _ = domain.ParseStatus(e.Status)
		}
		byStatus[r.Status]++
	}

	log.Printf("seeded %d reports into %s", len(entries), *dsn)
	for _, st := range []domain.Status{domain.StatusSubmitted, domain.StatusInvestigating, domain.StatusResolved} {
		log.Printf("  %-13s %d", st, byStatus[st])
	}
	return nil
}

func readEntries(path string) ([]seedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("fixture %s has no reports", path)
	}
	return entries, nil
}
