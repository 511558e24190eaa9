// Package export renders the day's scheduled pins as a bulk-upload
// CSV, optionally bundled into a ZIP with per-pin overlay text files.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pinloop/internal/model"
	"pinloop/internal/storage"
)

// Pinterest rejects longer fields, so we clip before writing.
const (
	maxTitleChars       = 100
	maxDescriptionChars = 500
)

var csvHeader = []string{
	"Title", "Hook", "Media URL", "Pinterest board",
	"Description", "Link", "Publish date", "Keywords",
}

// Options controls one export run.
type Options struct {
	Date   time.Time
	OutDir string
	Bundle bool
	DryRun bool
}

// Result reports what an export produced.
type Result struct {
	Path   string
	Rows   int
	Marked int
}

// Service writes export files from the live schedule.
type Service struct {
	store storage.Storage
	log   *slog.Logger
}

func New(store storage.Storage, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Run exports all not-yet-posted slots for the given date and flips
// them to exported, unless dry-run. With Bundle set the CSV is wrapped
// in a ZIP alongside one overlay .txt per pin.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Date.IsZero() {
		opts.Date = time.Now().UTC()
	}
	rows, err := s.store.ListExportRows(ctx, opts.Date)
	if err != nil {
		return nil, fmt.Errorf("list export rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no scheduled pins on %s", opts.Date.Format("2006-01-02"))
	}

	day := opts.Date.Format("2006-01-02")
	var path string
	if opts.Bundle {
		path = filepath.Join(opts.OutDir, "pins_"+day+".zip")
		err = writeBundle(path, day, rows)
	} else {
		path = filepath.Join(opts.OutDir, "pins_"+day+".csv")
		err = writeCSVFile(path, rows)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Path: path, Rows: len(rows)}
	if !opts.DryRun {
		marked, err := s.store.MarkExported(ctx, opts.Date)
		if err != nil {
			return nil, fmt.Errorf("mark exported: %w", err)
		}
		res.Marked = marked
	}

	s.log.Info("export complete",
		"date", day, "rows", len(rows), "path", path, "marked", res.Marked)
	return res, nil
}

func writeCSVFile(path string, rows []model.ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := WriteCSV(f, rows); err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV renders rows in the Pinterest bulk-upload column order.
func WriteCSV(w io.Writer, rows []model.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			clip(row.Title, maxTitleChars),
			row.Hook,
			row.ImageURL,
			row.Board,
			clip(row.Description, maxDescriptionChars),
			row.Link,
			row.PublishDate.Format("2006-01-02"),
			strings.Join(row.Keywords, ", "),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// writeBundle wraps the CSV plus one overlay text file per pin into a
// single ZIP, so the design tool picks up image copy next to the sheet.
func writeBundle(path, day string, rows []model.ExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return err
	}
	entry, err := zw.Create("pins_" + day + ".csv")
	if err != nil {
		return fmt.Errorf("add csv to bundle: %w", err)
	}
	if _, err := entry.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write csv to bundle: %w", err)
	}

	for _, row := range rows {
		entry, err := zw.Create(OverlayName(row))
		if err != nil {
			return fmt.Errorf("add overlay to bundle: %w", err)
		}
		if _, err := entry.Write([]byte(OverlayText(row))); err != nil {
			return fmt.Errorf("write overlay to bundle: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}
	return f.Close()
}

// OverlayName builds the per-pin text file name inside a bundle.
func OverlayName(row model.ExportRow) string {
	name := slugify(row.MockupName)
	if name == "" {
		name = "pin"
	}
	return fmt.Sprintf("overlays/%s_%d.txt", name, row.PinID)
}

// OverlayText is the copy a designer pastes onto the pin image.
func OverlayText(row model.ExportRow) string {
	if row.Hook == "" {
		return clip(row.Title, maxTitleChars) + "\n"
	}
	return clip(row.Title, maxTitleChars) + "\n" + row.Hook + "\n"
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
