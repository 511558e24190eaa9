// Package smartloop computes the rotating publish calendar: every content
// item is paired with each board in a fixed rotation and spread across the
// campaign window at a fixed interval.
package smartloop

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"pinloop/internal/model"
)

// ErrInsufficientBoards is returned when fewer boards exist than the
// rotation requires. This aborts the run before any mutation.
var ErrInsufficientBoards = errors.New("not enough boards for rotation")

// Item is the flat view of a pin variation the planner needs. The planner
// never touches the persistence layer.
type Item struct {
	ID         int64
	PillarID   int64
	PillarName string
	Title      string
}

// Config controls the shape of the calendar.
type Config struct {
	// Days is the campaign window length. Default 30.
	Days int
	// Repeats is how many times each item is published, once per board.
	// Default 5.
	Repeats int
	// StartDate overrides the computed start. Zero means next Monday.
	StartDate time.Time
	// ExpectedItems is the historically expected pool size. A deviation
	// produces a warning, never an abort. Default 120.
	ExpectedItems int
	// DayTolerance is how far above the per-day target a day may go
	// before it is flagged. Default 2.
	DayTolerance int
}

func (c Config) withDefaults() Config {
	if c.Days <= 0 {
		c.Days = 30
	}
	if c.Repeats <= 0 {
		c.Repeats = 5
	}
	if c.ExpectedItems <= 0 {
		c.ExpectedItems = 120
	}
	if c.DayTolerance <= 0 {
		c.DayTolerance = 2
	}
	return c
}

// Spacing is the gap in days between repeat occurrences of one item.
func (c Config) Spacing() int {
	return c.Days / c.Repeats
}

// Slot is one planned (item, board, date) assignment.
type Slot struct {
	Item        Item
	Board       model.Board
	PublishDate time.Time
	DayIndex    int
	SlotNumber  int
}

// Plan is the full computed calendar plus diagnostics.
type Plan struct {
	Config    Config
	StartDate time.Time
	Slots     []Slot
	Warnings  []string
}

// NextMonday returns the next Monday strictly after today. When today is
// a Monday the start is a full week out.
func NextMonday(today time.Time) time.Time {
	days := (8 - int(today.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days)
}

// Build computes the calendar for items over boards. Items are shuffled
// with rng before assignment so reruns produce different arrangements;
// pass a seeded source for reproducible output. The item at shuffled
// position i lands on day (i + r*S) mod Days for repeat r, on board r of
// the rotation, which makes a same-item same-board same-date collision
// structurally impossible.
func Build(items []Item, boards []model.Board, cfg Config, rng *rand.Rand) (*Plan, error) {
	cfg = cfg.withDefaults()

	if len(boards) < cfg.Repeats {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBoards, len(boards), cfg.Repeats)
	}
	rotation := boards[:cfg.Repeats]

	start := cfg.StartDate
	if start.IsZero() {
		start = NextMonday(time.Now())
	}
	// Calendar dates only; drop time-of-day.
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	plan := &Plan{Config: cfg, StartDate: start}

	if len(items) != cfg.ExpectedItems {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("have %d variations, expected %d", len(items), cfg.ExpectedItems))
	}

	shuffled := make([]Item, len(items))
	copy(shuffled, items)
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(shuffled), func(a, b int) {
		shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
	})

	spacing := cfg.Spacing()
	byDay := make([][]Slot, cfg.Days)
	for i, item := range shuffled {
		for r := 0; r < cfg.Repeats; r++ {
			day := (i + r*spacing) % cfg.Days
			byDay[day] = append(byDay[day], Slot{
				Item:        item,
				Board:       rotation[r],
				PublishDate: start.AddDate(0, 0, day),
				DayIndex:    day,
			})
		}
	}

	target := (len(items)*cfg.Repeats + cfg.Days - 1) / cfg.Days
	for day, slots := range byDay {
		for n := range slots {
			slots[n].SlotNumber = n + 1
		}
		if len(slots) > target+cfg.DayTolerance {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("day %d carries %d pins, target %d", day+1, len(slots), target))
		}
		plan.Slots = append(plan.Slots, slots...)
	}

	return plan, nil
}

// PillarDistribution counts planned items per pillar per day index.
// Clustering is reported for operator review, never enforced.
func (p *Plan) PillarDistribution() map[int]map[string]int {
	dist := make(map[int]map[string]int)
	for _, s := range p.Slots {
		if dist[s.DayIndex] == nil {
			dist[s.DayIndex] = make(map[string]int)
		}
		dist[s.DayIndex][s.Item.PillarName]++
	}
	return dist
}

// FormatDistribution renders the pillar distribution as one line per day.
func (p *Plan) FormatDistribution() []string {
	dist := p.PillarDistribution()

	days := make([]int, 0, len(dist))
	for d := range dist {
		days = append(days, d)
	}
	sort.Ints(days)

	lines := make([]string, 0, len(days))
	for _, d := range days {
		pillars := make([]string, 0, len(dist[d]))
		for name := range dist[d] {
			pillars = append(pillars, name)
		}
		sort.Strings(pillars)

		line := fmt.Sprintf("day %2d (%s):", d+1, p.StartDate.AddDate(0, 0, d).Format("2006-01-02"))
		for _, name := range pillars {
			line += fmt.Sprintf(" %s=%d", name, dist[d][name])
		}
		lines = append(lines, line)
	}
	return lines
}
