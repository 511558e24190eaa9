// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"pinloop/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	// Content hierarchy.
	UpsertCampaign(ctx context.Context, c *model.Campaign) error
	UpsertPillar(ctx context.Context, p *model.Pillar) error
	UpsertHeadline(ctx context.Context, h *model.Headline) error
	CreatePinVariation(ctx context.Context, v *model.PinVariation) error
	ListPinItems(ctx context.Context) ([]model.PinItem, error)
	PillarSummaries(ctx context.Context) ([]model.PillarSummary, error)

	// Boards.
	UpsertBoard(ctx context.Context, b *model.Board) error
	ListBoards(ctx context.Context) ([]model.Board, error)

	// Schedule slots. ReplaceSchedule runs as one transaction: a failure
	// partway leaves the prior schedule intact.
	ReplaceSchedule(ctx context.Context, start time.Time, days int, slots []model.ScheduledPin, reset bool) (int, error)
	ReplacePreview(ctx context.Context, slots []model.ScheduledPin) error
	ListExportRows(ctx context.Context, date time.Time) ([]model.ExportRow, error)
	MarkExported(ctx context.Context, date time.Time) (int, error)
	MarkPosted(ctx context.Context, date time.Time) (int, error)
	CreateScheduleRun(ctx context.Context, run *model.ScheduleRun) error

	// Keywords.
	ListKeywords(ctx context.Context) ([]model.Keyword, error)
	UpsertKeywordVolume(ctx context.Context, phrase string, volume int) error
	UpdateKeywordTier(ctx context.Context, id int64, tier model.KeywordTier) error
	KeywordUsage(ctx context.Context) (map[int64]int, error)
	ReplacePinKeywords(ctx context.Context, pinID int64, assignments []model.PinKeyword) error

	// Hooks.
	ListHookCandidates(ctx context.Context, limit int) ([]model.HookCandidate, error)
	RecentHooks(ctx context.Context, limit int) ([]string, error)
	UpdatePinHook(ctx context.Context, pinID int64, hook string, at time.Time) error

	// Repurposing.
	CreateRepurposedPost(ctx context.Context, p *model.RepurposedPost) error
	RepurposeSummary(ctx context.Context) (map[model.Platform]int, error)

	Close() error
}
