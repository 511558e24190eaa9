package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pinloop/internal/model"
	"pinloop/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

// seedSchedule puts two pins on the wire for 2024-01-01: one scheduled
// with a hook and keywords, one without.
func seedSchedule(t *testing.T, s *storage.SQLite) {
	t.Helper()
	ctx := context.Background()

	camp := model.Campaign{Name: "Ruoth Trivia"}
	if err := s.UpsertCampaign(ctx, &camp); err != nil {
		t.Fatalf("upsert campaign: %v", err)
	}
	pillar := model.Pillar{CampaignID: camp.ID, Name: "Baking Basics"}
	if err := s.UpsertPillar(ctx, &pillar); err != nil {
		t.Fatalf("upsert pillar: %v", err)
	}
	head := model.Headline{PillarID: pillar.ID, Text: "What is autolyse?"}
	if err := s.UpsertHeadline(ctx, &head); err != nil {
		t.Fatalf("upsert headline: %v", err)
	}

	long := strings.Repeat("x", 600)
	vars := []model.PinVariation{
		{
			HeadlineID:  head.ID,
			MockupName:  "Chalkboard Mockup",
			Description: long,
			Link:        "https://ruoth.example/autolyse",
			ImageURL:    "https://cdn.example.com/1.png",
			Hook:        "Still guessing this one pastry term?",
		},
		{
			HeadlineID:  head.ID,
			MockupName:  "Marble Counter",
			Description: "Short one.",
			Link:        "https://ruoth.example/autolyse-2",
			ImageURL:    "https://cdn.example.com/2.png",
		},
	}
	board := model.Board{Name: "Baking Tips", Slug: "baking-tips"}
	if err := s.UpsertBoard(ctx, &board); err != nil {
		t.Fatalf("upsert board: %v", err)
	}

	date := mustDate(t, "2024-01-01")
	var slots []model.ScheduledPin
	for i := range vars {
		if err := s.CreatePinVariation(ctx, &vars[i]); err != nil {
			t.Fatalf("create variation: %v", err)
		}
		slots = append(slots, model.ScheduledPin{
			PinID:       vars[i].ID,
			BoardID:     board.ID,
			PublishDate: date,
			CampaignDay: 1,
			SlotNumber:  i + 1,
			Status:      model.StatusScheduled,
		})
	}
	if _, err := s.ReplaceSchedule(ctx, date, 30, slots, false); err != nil {
		t.Fatalf("replace schedule: %v", err)
	}

	if err := s.UpsertKeywordVolume(ctx, "sourdough starter", 2400); err != nil {
		t.Fatalf("upsert keyword: %v", err)
	}
	kws, err := s.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("list keywords: %v", err)
	}
	links := []model.PinKeyword{{PinID: vars[0].ID, KeywordID: kws[0].ID, Relevance: 1, AutoAssigned: true}}
	if err := s.ReplacePinKeywords(ctx, vars[0].ID, links); err != nil {
		t.Fatalf("replace pin keywords: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seedSchedule(t, store)
	return New(store, testLogger()), store
}

func readCSV(t *testing.T, r io.Reader) [][]string {
	t.Helper()
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}

func TestRunWritesCSVAndMarksExported(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	res, err := svc.Run(ctx, Options{Date: mustDate(t, "2024-01-01"), OutDir: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Rows != 2 || res.Marked != 2 {
		t.Errorf("rows=%d marked=%d, want 2 and 2", res.Rows, res.Marked)
	}
	if filepath.Base(res.Path) != "pins_2024-01-01.csv" {
		t.Errorf("path = %s", res.Path)
	}

	f, err := os.Open(res.Path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	records := readCSV(t, f)

	wantHeader := []string{"Title", "Hook", "Media URL", "Pinterest board", "Description", "Link", "Publish date", "Keywords"}
	if diff := cmp.Diff(wantHeader, records[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}

	hooked := records[1]
	if hooked[0] != "What is autolyse?" {
		t.Errorf("title = %q", hooked[0])
	}
	if hooked[1] != "Still guessing this one pastry term?" {
		t.Errorf("hook = %q", hooked[1])
	}
	if hooked[3] != "Baking Tips" {
		t.Errorf("board = %q", hooked[3])
	}
	if len(hooked[4]) != 500 {
		t.Errorf("description length = %d, want clipped to 500", len(hooked[4]))
	}
	if hooked[6] != "2024-01-01" {
		t.Errorf("publish date = %q", hooked[6])
	}
	if hooked[7] != "sourdough starter" {
		t.Errorf("keywords = %q", hooked[7])
	}

	// Exported slots drop out of the next day's pull.
	rows, err := store.ListExportRows(ctx, mustDate(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("list after export: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("exported rows gone from view: got %d, want 2 (exported stays until posted)", len(rows))
	}
}

func TestRunDryRunLeavesStatus(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Run(ctx, Options{Date: mustDate(t, "2024-01-01"), OutDir: t.TempDir(), DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Marked != 0 {
		t.Errorf("dry run marked %d slots", res.Marked)
	}

	marked, err := store.MarkExported(ctx, mustDate(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	if marked != 2 {
		t.Errorf("slots already consumed by dry run: marked %d, want 2", marked)
	}
}

func TestRunNoRows(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Run(context.Background(), Options{Date: mustDate(t, "2024-02-15"), OutDir: t.TempDir()})
	if err == nil {
		t.Fatal("want error for empty date")
	}
	if !strings.Contains(err.Error(), "no scheduled pins") {
		t.Errorf("err = %v", err)
	}
}

func TestRunBundle(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Run(context.Background(), Options{
		Date:   mustDate(t, "2024-01-01"),
		OutDir: t.TempDir(),
		Bundle: true,
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if filepath.Base(res.Path) != "pins_2024-01-01.zip" {
		t.Errorf("path = %s", res.Path)
	}

	zr, err := zip.OpenReader(res.Path)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer zr.Close()

	names := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = f
	}
	if _, ok := names["pins_2024-01-01.csv"]; !ok {
		t.Error("bundle missing CSV")
	}

	var overlays []string
	for name := range names {
		if strings.HasPrefix(name, "overlays/") {
			overlays = append(overlays, name)
		}
	}
	if len(overlays) != 2 {
		t.Fatalf("got %d overlays, want 2: %v", len(overlays), overlays)
	}

	for _, name := range overlays {
		if !strings.HasPrefix(name, "overlays/chalkboard-mockup_") && !strings.HasPrefix(name, "overlays/marble-counter_") {
			t.Errorf("unexpected overlay name %q", name)
		}
		rc, err := names[name].Open()
		if err != nil {
			t.Fatalf("open overlay: %v", err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read overlay: %v", err)
		}
		rc.Close()
		if !strings.HasPrefix(buf.String(), "What is autolyse?\n") {
			t.Errorf("overlay %q missing title line: %q", name, buf.String())
		}
	}
}

func TestOverlayText(t *testing.T) {
	row := model.ExportRow{Title: "T", Hook: "H"}
	if got := OverlayText(row); got != "T\nH\n" {
		t.Errorf("OverlayText = %q", got)
	}
	row.Hook = ""
	if got := OverlayText(row); got != "T\n" {
		t.Errorf("OverlayText without hook = %q", got)
	}
}
