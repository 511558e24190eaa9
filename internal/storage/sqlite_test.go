package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pinloop/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedContent creates one campaign with two pillars, a headline each and
// n variations per headline, plus five boards. Returns the variation IDs.
func seedContent(t *testing.T, s *SQLite, perHeadline int) []int64 {
	t.Helper()
	ctx := context.Background()

	camp := model.Campaign{Name: "Ruoth Trivia"}
	if err := s.UpsertCampaign(ctx, &camp); err != nil {
		t.Fatalf("upsert campaign: %v", err)
	}

	var pinIDs []int64
	for _, name := range []string{"Baking Basics", "Kitchen Economics"} {
		pillar := model.Pillar{CampaignID: camp.ID, Name: name, Tagline: name + " tagline"}
		if err := s.UpsertPillar(ctx, &pillar); err != nil {
			t.Fatalf("upsert pillar: %v", err)
		}
		head := model.Headline{PillarID: pillar.ID, Text: "What makes " + name + " tick?"}
		if err := s.UpsertHeadline(ctx, &head); err != nil {
			t.Fatalf("upsert headline: %v", err)
		}
		for i := 0; i < perHeadline; i++ {
			v := model.PinVariation{
				HeadlineID:  head.ID,
				CTA:         "Learn more",
				MockupName:  "mockup",
				Description: "A trivia pin about " + name,
				ImageURL:    "https://cdn.example.com/pin.png",
			}
			if err := s.CreatePinVariation(ctx, &v); err != nil {
				t.Fatalf("create variation: %v", err)
			}
			pinIDs = append(pinIDs, v.ID)
		}
	}

	for _, slug := range []string{"baking-tips", "bread-science", "pastry-pro", "kitchen-math", "trivia-corner"} {
		b := model.Board{Name: slug, Slug: slug}
		if err := s.UpsertBoard(ctx, &b); err != nil {
			t.Fatalf("upsert board: %v", err)
		}
	}
	return pinIDs
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func TestUpsertBoardIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	a := model.Board{Name: "Baking", Slug: "baking"}
	if err := s.UpsertBoard(ctx, &a); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b := model.Board{Name: "Baking Tips", Slug: "baking"}
	if err := s.UpsertBoard(ctx, &b); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("same slug produced two IDs: %d and %d", a.ID, b.ID)
	}

	boards, err := s.ListBoards(ctx)
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 1 || boards[0].Name != "Baking Tips" {
		t.Errorf("boards = %+v, want single renamed board", boards)
	}
}

func TestUpsertContentHierarchyIdempotent(t *testing.T) {
	s := newTestDB(t)
	first := seedContent(t, s, 2)

	// Re-seeding adds nothing at the campaign/pillar/headline level.
	ctx := context.Background()
	camp := model.Campaign{Name: "Ruoth Trivia"}
	if err := s.UpsertCampaign(ctx, &camp); err != nil {
		t.Fatalf("re-upsert campaign: %v", err)
	}
	pillar := model.Pillar{CampaignID: camp.ID, Name: "Baking Basics", Tagline: "updated"}
	if err := s.UpsertPillar(ctx, &pillar); err != nil {
		t.Fatalf("re-upsert pillar: %v", err)
	}

	items, err := s.ListPinItems(ctx)
	if err != nil {
		t.Fatalf("list pin items: %v", err)
	}
	if len(items) != len(first) {
		t.Errorf("re-seed changed variation count: %d -> %d", len(first), len(items))
	}
}

func scheduleFor(pinIDs []int64, boardIDs []int64, date time.Time) []model.ScheduledPin {
	var slots []model.ScheduledPin
	for i, pin := range pinIDs {
		slots = append(slots, model.ScheduledPin{
			PinID:       pin,
			BoardID:     boardIDs[i%len(boardIDs)],
			PublishDate: date,
			CampaignDay: 1,
			SlotNumber:  i + 1,
		})
	}
	return slots
}

func boardIDs(t *testing.T, s *SQLite) []int64 {
	t.Helper()
	boards, err := s.ListBoards(context.Background())
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	ids := make([]int64, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
	}
	return ids
}

func TestReplaceScheduleIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 2)
	boards := boardIDs(t, s)
	date := mustDate(t, "2024-01-01")

	slots := scheduleFor(pins, boards, date)
	if _, err := s.ReplaceSchedule(ctx, date, 30, slots, false); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	deleted, err := s.ReplaceSchedule(ctx, date, 30, slots, false)
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if deleted != len(slots) {
		t.Errorf("second run deleted %d slots, want %d", deleted, len(slots))
	}

	rows, err := s.ListExportRows(ctx, date)
	if err != nil {
		t.Fatalf("list export rows: %v", err)
	}
	if len(rows) != len(slots) {
		t.Errorf("after rerun %d rows, want %d (slots accumulated?)", len(rows), len(slots))
	}
}

func TestReplaceScheduleAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 2)
	boards := boardIDs(t, s)
	date := mustDate(t, "2024-01-01")

	good := scheduleFor(pins, boards, date)
	if _, err := s.ReplaceSchedule(ctx, date, 30, good, false); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}

	// A batch with an internal duplicate trips the unique constraint
	// mid-insert; the earlier delete must roll back with it.
	bad := scheduleFor(pins[:1], boards[:1], date)
	bad = append(bad, bad[0])
	if _, err := s.ReplaceSchedule(ctx, date, 30, bad, false); err == nil {
		t.Fatal("duplicate batch committed, want error")
	}

	rows, err := s.ListExportRows(ctx, date)
	if err != nil {
		t.Fatalf("list export rows: %v", err)
	}
	if len(rows) != len(good) {
		t.Errorf("prior schedule not intact after failed commit: %d rows, want %d", len(rows), len(good))
	}
}

func TestReplaceScheduleExportedCollision(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 2)
	boards := boardIDs(t, s)
	date := mustDate(t, "2024-01-01")

	slots := scheduleFor(pins, boards, date)
	if _, err := s.ReplaceSchedule(ctx, date, 30, slots, false); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if _, err := s.MarkExported(ctx, date); err != nil {
		t.Fatalf("mark exported: %v", err)
	}

	// Exported slots survive the window delete, so an identical plan
	// collides and the whole replace rolls back.
	_, err := s.ReplaceSchedule(ctx, date, 30, slots, false)
	if err == nil {
		t.Fatal("want collision error against exported slots")
	}
	if !strings.Contains(err.Error(), "rerun with reset") {
		t.Errorf("collision error does not point at reset: %v", err)
	}

	rows, err := s.ListExportRows(ctx, date)
	if err != nil {
		t.Fatalf("list export rows: %v", err)
	}
	if len(rows) != len(slots) {
		t.Errorf("exported slots disturbed by failed replace: %d rows, want %d", len(rows), len(slots))
	}

	// Reset clears the exported slots and the same plan goes through.
	deleted, err := s.ReplaceSchedule(ctx, date, 30, slots, true)
	if err != nil {
		t.Fatalf("reset replace: %v", err)
	}
	if deleted != len(slots) {
		t.Errorf("reset deleted %d slots, want %d", deleted, len(slots))
	}
}

func TestReplaceScheduleReset(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 2)
	boards := boardIDs(t, s)

	older := mustDate(t, "2023-12-01")
	if _, err := s.ReplaceSchedule(ctx, older, 30, scheduleFor(pins, boards, older), false); err != nil {
		t.Fatalf("seed old schedule: %v", err)
	}
	if _, err := s.MarkExported(ctx, older); err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	if _, err := s.MarkPosted(ctx, older); err != nil {
		t.Fatalf("mark posted: %v", err)
	}

	date := mustDate(t, "2024-01-01")
	if _, err := s.ReplaceSchedule(ctx, date, 30, scheduleFor(pins, boards, date), false); err != nil {
		t.Fatalf("schedule window: %v", err)
	}

	// Reset wipes unposted slots everywhere but posted history survives.
	deleted, err := s.ReplaceSchedule(ctx, date, 30, nil, true)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if deleted != len(pins) {
		t.Errorf("reset deleted %d slots, want %d", deleted, len(pins))
	}
	posted, err := s.ListExportRows(ctx, older)
	if err != nil {
		t.Fatalf("list old rows: %v", err)
	}
	if len(posted) != 0 {
		t.Errorf("posted rows leaked into export view: %d", len(posted))
	}
}

func TestMarkStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 1)
	boards := boardIDs(t, s)
	date := mustDate(t, "2024-01-01")

	if _, err := s.ReplaceSchedule(ctx, date, 30, scheduleFor(pins, boards, date), false); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	n, err := s.MarkExported(ctx, date)
	if err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	if n != len(pins) {
		t.Errorf("exported %d, want %d", n, len(pins))
	}

	// Second export pass finds nothing in scheduled state.
	n, err = s.MarkExported(ctx, date)
	if err != nil {
		t.Fatalf("mark exported again: %v", err)
	}
	if n != 0 {
		t.Errorf("re-export transitioned %d rows, want 0", n)
	}

	n, err = s.MarkPosted(ctx, date)
	if err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if n != len(pins) {
		t.Errorf("posted %d, want %d", n, len(pins))
	}
}

func TestListExportRowsCarriesKeywords(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 1)
	boards := boardIDs(t, s)
	date := mustDate(t, "2024-01-01")

	for _, phrase := range []string{"sourdough", "proofing"} {
		if err := s.UpsertKeywordVolume(ctx, phrase, 1200); err != nil {
			t.Fatalf("upsert keyword: %v", err)
		}
	}
	kws, err := s.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("list keywords: %v", err)
	}
	assignments := []model.PinKeyword{
		{PinID: pins[0], KeywordID: kws[0].ID, AutoAssigned: true, Relevance: 1},
		{PinID: pins[0], KeywordID: kws[1].ID, AutoAssigned: true, Relevance: 1},
	}
	if err := s.ReplacePinKeywords(ctx, pins[0], assignments); err != nil {
		t.Fatalf("replace pin keywords: %v", err)
	}

	if _, err := s.ReplaceSchedule(ctx, date, 30, scheduleFor(pins[:1], boards, date), false); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	rows, err := s.ListExportRows(ctx, date)
	if err != nil {
		t.Fatalf("list export rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if diff := cmp.Diff([]string{"sourdough", "proofing"}, rows[0].Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestKeywordUsageReflectsReplacement(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 2)

	for _, phrase := range []string{"a", "b", "c"} {
		if err := s.UpsertKeywordVolume(ctx, phrase, 100); err != nil {
			t.Fatalf("upsert keyword: %v", err)
		}
	}
	kws, err := s.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("list keywords: %v", err)
	}

	set := func(pin int64, ids ...int64) {
		t.Helper()
		var as []model.PinKeyword
		for _, id := range ids {
			as = append(as, model.PinKeyword{PinID: pin, KeywordID: id, AutoAssigned: true})
		}
		if err := s.ReplacePinKeywords(ctx, pin, as); err != nil {
			t.Fatalf("replace: %v", err)
		}
	}
	set(pins[0], kws[0].ID, kws[1].ID)
	set(pins[1], kws[0].ID)
	// Full replace drops the old pair.
	set(pins[0], kws[2].ID)

	usage, err := s.KeywordUsage(ctx)
	if err != nil {
		t.Fatalf("keyword usage: %v", err)
	}
	want := map[int64]int{kws[0].ID: 1, kws[2].ID: 1}
	if diff := cmp.Diff(want, usage); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
}

func TestPillarSummaries(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	seedContent(t, s, 4)

	sums, err := s.PillarSummaries(ctx)
	if err != nil {
		t.Fatalf("pillar summaries: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d pillars, want 2", len(sums))
	}
	for _, sum := range sums {
		if sum.Headlines != 1 || sum.Variations != 4 {
			t.Errorf("%s: %d headlines / %d variations, want 1/4", sum.Name, sum.Headlines, sum.Variations)
		}
		if sum.PercentComplete() != 100 {
			t.Errorf("%s: %d%% complete, want 100", sum.Name, sum.PercentComplete())
		}
	}
}

func TestHookCandidatesAndRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 2)

	cands, err := s.ListHookCandidates(ctx, 100)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(cands) != len(pins) {
		t.Fatalf("got %d candidates, want %d", len(cands), len(pins))
	}
	if cands[0].Pillar == "" || cands[0].Question == "" || cands[0].Campaign == "" {
		t.Errorf("candidate context incomplete: %+v", cands[0])
	}

	if err := s.UpdatePinHook(ctx, pins[0], "Still guessing this one?", time.Now()); err != nil {
		t.Fatalf("update hook: %v", err)
	}

	cands, err = s.ListHookCandidates(ctx, 100)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(cands) != len(pins)-1 {
		t.Errorf("got %d candidates after hook set, want %d", len(cands), len(pins)-1)
	}

	recent, err := s.RecentHooks(ctx, 12)
	if err != nil {
		t.Fatalf("recent hooks: %v", err)
	}
	if diff := cmp.Diff([]string{"Still guessing this one?"}, recent); diff != "" {
		t.Errorf("recent hooks mismatch (-want +got):\n%s", diff)
	}
}

func TestRepurposeSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	pins := seedContent(t, s, 1)

	for _, platform := range []model.Platform{model.PlatformInstagram, model.PlatformInstagram, model.PlatformTikTok} {
		p := model.RepurposedPost{PinID: pins[0], Platform: platform}
		if err := s.CreateRepurposedPost(ctx, &p); err != nil {
			t.Fatalf("create repurposed post: %v", err)
		}
		if p.ID == 0 {
			t.Error("repurposed post ID not populated")
		}
	}

	sum, err := s.RepurposeSummary(ctx)
	if err != nil {
		t.Fatalf("repurpose summary: %v", err)
	}
	want := map[model.Platform]int{model.PlatformInstagram: 2, model.PlatformTikTok: 1}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}
