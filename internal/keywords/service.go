package keywords

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"pinloop/internal/model"
	"pinloop/internal/storage"
)

// Service runs keyword maintenance against the store.
type Service struct {
	store storage.Storage
	log   *slog.Logger
}

// NewService creates a keyword Service.
func NewService(store storage.Storage, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// RecomputeTiers rederives every keyword's tier from its stored volume.
// Tiers are overwritable, never hand-edited.
func (s *Service) RecomputeTiers(ctx context.Context) (int, error) {
	kws, err := s.store.ListKeywords(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keywords: %w", err)
	}

	updated := 0
	for _, k := range kws {
		tier := model.TierFor(k.AvgMonthlySearches)
		if err := s.store.UpdateKeywordTier(ctx, k.ID, tier); err != nil {
			return updated, fmt.Errorf("keyword %q: %w", k.Phrase, err)
		}
		updated++
	}
	return updated, nil
}

// ImportVolumes reads a two-column CSV (phrase, avg_monthly_searches),
// upserts the volumes and recomputes tiers. A header row is skipped when
// its second column is not numeric.
func (s *Service) ImportVolumes(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	imported := 0
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read csv line %d: %w", line, err)
		}

		phrase := strings.TrimSpace(record[0])
		volume, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return imported, fmt.Errorf("line %d: bad volume %q", line, record[1])
		}
		if phrase == "" {
			continue
		}

		if err := s.store.UpsertKeywordVolume(ctx, phrase, volume); err != nil {
			return imported, fmt.Errorf("upsert %q: %w", phrase, err)
		}
		imported++
	}

	if _, err := s.RecomputeTiers(ctx); err != nil {
		return imported, err
	}
	return imported, nil
}

// AssignReport summarizes one balancing batch.
type AssignReport struct {
	Assigned int
	Failures []Failure
}

// AssignAll rebalances keywords across every pin variation. The global
// usage counter is rebuilt from stored assignments, then mutated in-batch
// so later pins see earlier picks. Per-pin failures are reported, never
// fatal.
func (s *Service) AssignAll(ctx context.Context, rng *rand.Rand) (*AssignReport, error) {
	items, err := s.store.ListPinItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pin items: %w", err)
	}
	kws, err := s.store.ListKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	usage, err := s.store.KeywordUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyword usage: %w", err)
	}

	var pools Pools
	for _, k := range kws {
		switch k.Tier {
		case model.TierHigh:
			pools.High = append(pools.High, k)
		case model.TierMid:
			pools.Mid = append(pools.Mid, k)
		case model.TierNiche:
			pools.Niche = append(pools.Niche, k)
		}
	}

	pinIDs := make([]int64, len(items))
	for i, it := range items {
		pinIDs[i] = it.PinID
	}

	selections, failures := Balance(pinIDs, pools, usage, DefaultCap, rng)

	report := &AssignReport{Failures: failures}
	for _, sel := range selections {
		assignments := make([]model.PinKeyword, len(sel.Keywords))
		for i, k := range sel.Keywords {
			assignments[i] = model.PinKeyword{
				PinID:        sel.PinID,
				KeywordID:    k.ID,
				AutoAssigned: true,
				Relevance:    1,
			}
		}
		if err := s.store.ReplacePinKeywords(ctx, sel.PinID, assignments); err != nil {
			return report, fmt.Errorf("replace keywords for pin %d: %w", sel.PinID, err)
		}
		report.Assigned++
	}

	for _, f := range failures {
		s.log.Warn("keyword assignment skipped", "pin_id", f.PinID, "reason", f.Reason)
	}
	return report, nil
}
