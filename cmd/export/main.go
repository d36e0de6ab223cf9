// Command export writes the administrative report snapshot for a time window
// as JSON. Anonymous reports are redacted exactly as in the admin API.
//
// Usage:
//
//	go run ./cmd/export -dsn file:notizar.db \
//	  -start 2025-01-01T00:00:00Z -end 2025-02-01T00:00:00Z \
//	  -out notizar-reports.json
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
	"path/filepath"
	"time"

	"github.com/SneHope/TVH-NotiZAR/internal/adapter/sqlite"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/feed"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
	"github.com/SneHope/TVH-NotiZAR/internal/report"
)

const defaultWindow = 30 * 24 * time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dsn := flag.String("dsn", "file:notizar.db", "sqlite DSN to export from")
	startFlag := flag.String("start", "", "window start, RFC3339 (default: 30 days before end)")
	endFlag := flag.String("end", "", "window end, RFC3339 (default: now)")
	out := flag.String("out", "", "output path (default: stdout)")
	flag.Parse()

	end := time.Now().UTC()
	if *endFlag != "" {
		t, err := time.Parse(time.RFC3339, *endFlag)
		if err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
		end = t
	}
	start := end.Add(-defaultWindow)
	if *startFlag != "" {
		t, err := time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		start = t
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := sqlite.Open(ctx, *dsn, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	reports := feed.NewHub[domain.Report]()
	updates := feed.NewHub[domain.AdminUpdate]()
	defer reports.Close()
	defer updates.Close()

	svc := report.NewService(store, reports, updates, logger, observability.NewMetricsForTesting())
	snap, err := svc.Export(ctx, start, end)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if *out == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	if err := writeJSON(*out, snap); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	log.Printf("exported %d reports (%s to %s) to %s",
		snap.Summary.TotalReports, start.Format(time.RFC3339), end.Format(time.RFC3339), *out)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
