// Package keywords assigns SEO keywords to pin variations: tiering by
// search volume and a usage-balanced draw across tiers.
package keywords

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"pinloop/internal/model"
)

// DefaultCap is the maximum keywords one variation carries.
const DefaultCap = 7

// Pools holds the drawable keywords per tier. Low-tier keywords are not
// auto-assigned.
type Pools struct {
	High  []model.Keyword
	Mid   []model.Keyword
	Niche []model.Keyword
}

// Selection is the replacement keyword set for one variation.
type Selection struct {
	PinID    int64
	Keywords []model.Keyword
}

// Failure reports one variation that could not be assigned.
type Failure struct {
	PinID  int64
	Reason string
}

// Balance draws a keyword set for every pin in order. The usage map is
// mutated as selections are made so later pins feel the pressure of
// earlier picks within the same batch. Pool exhaustion fails only the
// affected pin; the rest of the batch still completes.
func Balance(pinIDs []int64, pools Pools, usage map[int64]int, limit int, rng *rand.Rand) ([]Selection, []Failure) {
	if limit <= 0 {
		limit = DefaultCap
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if usage == nil {
		usage = make(map[int64]int)
	}

	var selections []Selection
	var failures []Failure

	for _, pinID := range pinIDs {
		nHigh := 2 + rng.IntN(3)
		nMid := 1 + rng.IntN(2)
		nNiche := 1 + rng.IntN(2)

		// Over the cap, shrink the least-prioritized tier first.
		for nHigh+nMid+nNiche > limit {
			switch {
			case nNiche > 0:
				nNiche--
			case nMid > 0:
				nMid--
			default:
				nHigh--
			}
		}

		picked := make([]model.Keyword, 0, limit)
		ok := true
		for _, draw := range []struct {
			tier model.KeywordTier
			pool []model.Keyword
			need int
		}{
			{model.TierHigh, pools.High, nHigh},
			{model.TierMid, pools.Mid, nMid},
			{model.TierNiche, pools.Niche, nNiche},
		} {
			sel, err := pickLeastUsed(draw.pool, draw.need, usage)
			if err != nil {
				failures = append(failures, Failure{
					PinID:  pinID,
					Reason: fmt.Sprintf("%s tier: %v", draw.tier, err),
				})
				ok = false
				break
			}
			picked = append(picked, sel...)
		}
		if !ok {
			continue
		}

		// Count usage immediately so the next pin in this batch sees it.
		for _, k := range picked {
			usage[k.ID]++
		}
		selections = append(selections, Selection{PinID: pinID, Keywords: picked})
	}

	return selections, failures
}

// pickLeastUsed prefers never-used keywords in stable pool order and
// falls back to the least-used ones when the fresh pool runs short.
func pickLeastUsed(pool []model.Keyword, need int, usage map[int64]int) ([]model.Keyword, error) {
	if need == 0 {
		return nil, nil
	}
	if need > len(pool) {
		return nil, fmt.Errorf("pool exhausted: need %d, have %d", need, len(pool))
	}

	fresh := make([]model.Keyword, 0, need)
	for _, k := range pool {
		if usage[k.ID] == 0 {
			fresh = append(fresh, k)
			if len(fresh) == need {
				return fresh, nil
			}
		}
	}

	sorted := make([]model.Keyword, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(a, b int) bool {
		return usage[sorted[a].ID] < usage[sorted[b].ID]
	})
	return sorted[:need], nil
}
