package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pinloop/internal/storage"
)

// recentWindow is how many prior hooks the anti-repetition check sees.
const recentWindow = 12

// Service fills in missing hooks for stored pin variations.
type Service struct {
	store storage.Storage
	gen   *Generator
	log   *slog.Logger
}

// NewService creates a hook Service.
func NewService(store storage.Storage, gen *Generator, log *slog.Logger) *Service {
	return &Service{store: store, gen: gen, log: log}
}

// GenerateMissing produces hooks for up to limit pins that lack one.
// Each generated hook immediately joins the recency window so the next
// pin in the batch avoids repeating it. Returns how many pins were
// updated.
func (s *Service) GenerateMissing(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	cands, err := s.store.ListHookCandidates(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}
	recent, err := s.store.RecentHooks(ctx, recentWindow)
	if err != nil {
		return 0, fmt.Errorf("recent hooks: %w", err)
	}

	updated := 0
	for _, cand := range cands {
		hook := s.gen.Generate(ctx, cand, recent)
		if err := s.store.UpdatePinHook(ctx, cand.PinID, hook, time.Now().UTC()); err != nil {
			return updated, fmt.Errorf("store hook for pin %d: %w", cand.PinID, err)
		}
		updated++

		recent = append(recent, hook)
		if len(recent) > recentWindow {
			recent = recent[len(recent)-recentWindow:]
		}
	}
	return updated, nil
}
