// Package scheduler runs SmartLoop planning against the store: dry-run,
// preview, or transactional commit of the live calendar.
package scheduler

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pinloop/internal/model"
	"pinloop/internal/smartloop"
	"pinloop/internal/storage"
)

// Mode selects what a scheduling run does with the computed plan.
type Mode string

// Execution modes, mutually exclusive per invocation.
const (
	ModeCommit  Mode = "commit"
	ModePreview Mode = "preview"
	ModeDryRun  Mode = "dry-run"
)

// Options controls one scheduling run.
type Options struct {
	Mode   Mode
	Config smartloop.Config
	Reset  bool
	Rand   *rand.Rand
}

// Result reports what a run produced.
type Result struct {
	RunID        string
	Mode         Mode
	StartDate    time.Time
	ItemCount    int
	SlotCount    int
	Deleted      int
	Warnings     []string
	Distribution []string
	SnapshotPath string
}

// Service orchestrates plan computation and persistence.
type Service struct {
	store      storage.Storage
	log        *slog.Logger
	scratchDir string

	// Serializes commits so concurrent triggers cannot interleave the
	// delete+insert window swap.
	commitMu sync.Mutex
}

// New creates a scheduling Service. Dry-run snapshots land in scratchDir.
func New(store storage.Storage, log *slog.Logger, scratchDir string) *Service {
	return &Service{store: store, log: log, scratchDir: scratchDir}
}

// Run computes a SmartLoop plan and applies it according to the mode.
// Commit replaces the live window inside one transaction; preview swaps
// the preview store; dry-run only writes a CSV snapshot. Soft warnings
// ride along in the result, fatal preconditions abort before any
// mutation.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = ModeCommit
	}

	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	pinItems, err := s.store.ListPinItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pin items: %w", err)
	}

	items := make([]smartloop.Item, len(pinItems))
	for i, it := range pinItems {
		items[i] = smartloop.Item{
			ID:         it.PinID,
			PillarID:   it.PillarID,
			PillarName: it.PillarName,
			Title:      it.Title,
		}
	}

	plan, err := smartloop.Build(items, boards, opts.Config, opts.Rand)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Mode:         opts.Mode,
		StartDate:    plan.StartDate,
		ItemCount:    len(items),
		SlotCount:    len(plan.Slots),
		Warnings:     plan.Warnings,
		Distribution: plan.FormatDistribution(),
	}
	for _, w := range plan.Warnings {
		s.log.Warn("schedule warning", "warning", w)
	}

	slots := make([]model.ScheduledPin, len(plan.Slots))
	for i, slot := range plan.Slots {
		slots[i] = model.ScheduledPin{
			PinID:       slot.Item.ID,
			BoardID:     slot.Board.ID,
			PublishDate: slot.PublishDate,
			CampaignDay: slot.DayIndex + 1,
			SlotNumber:  slot.SlotNumber,
			Status:      model.StatusScheduled,
		}
	}

	switch opts.Mode {
	case ModeDryRun:
		path, err := s.writeSnapshot(plan)
		if err != nil {
			return nil, err
		}
		res.SnapshotPath = path
		s.log.Info("dry run complete", "slots", len(slots), "snapshot", path)
		return res, nil

	case ModePreview:
		if err := s.store.ReplacePreview(ctx, slots); err != nil {
			return nil, fmt.Errorf("replace preview: %w", err)
		}

	case ModeCommit:
		s.commitMu.Lock()
		deleted, err := s.store.ReplaceSchedule(ctx, plan.StartDate, plan.Config.Days, slots, opts.Reset)
		s.commitMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("commit schedule: %w", err)
		}
		res.Deleted = deleted

	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	run := &model.ScheduleRun{
		ID:        uuid.NewString(),
		Mode:      string(opts.Mode),
		StartDate: plan.StartDate,
		Days:      plan.Config.Days,
		Repeats:   plan.Config.Repeats,
		ItemCount: len(items),
		SlotCount: len(slots),
		Warnings:  joinWarnings(plan.Warnings),
	}
	// The schedule is already applied at this point. A lost audit row is
	// not worth making the operator second-guess a successful commit.
	if err := s.store.CreateScheduleRun(ctx, run); err != nil {
		s.log.Warn("record run", "run_id", run.ID, "error", err)
	} else {
		res.RunID = run.ID
	}

	s.log.Info("schedule run complete",
		"run_id", run.ID, "mode", opts.Mode, "start", plan.StartDate.Format("2006-01-02"),
		"slots", len(slots), "deleted", res.Deleted, "warnings", len(plan.Warnings))
	return res, nil
}

// writeSnapshot dumps the plan to a scratch CSV for operator review.
func (s *Service) writeSnapshot(plan *smartloop.Plan) (string, error) {
	f, err := os.CreateTemp(s.scratchDir, "smartloop-dryrun-*.csv")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Publish date", "Day", "Slot", "Pin ID", "Pillar", "Board"}); err != nil {
		return "", fmt.Errorf("write snapshot header: %w", err)
	}
	for _, slot := range plan.Slots {
		record := []string{
			slot.PublishDate.Format("2006-01-02"),
			strconv.Itoa(slot.DayIndex + 1),
			strconv.Itoa(slot.SlotNumber),
			strconv.FormatInt(slot.Item.ID, 10),
			slot.Item.PillarName,
			slot.Board.Name,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write snapshot row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush snapshot: %w", err)
	}
	return f.Name(), nil
}

func joinWarnings(warnings []string) string {
	out := ""
	for i, w := range warnings {
		if i > 0 {
			out += "; "
		}
		out += w
	}
	return out
}
