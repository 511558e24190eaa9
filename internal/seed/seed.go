// Package seed imports a YAML content plan (boards, campaign, pillars,
// headlines, variations) into the store.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"pinloop/internal/model"
	"pinloop/internal/storage"
)

// Plan is the YAML document an operator hands to `pinloop seed`.
type Plan struct {
	Boards   []BoardPlan  `yaml:"boards"`
	Campaign CampaignPlan `yaml:"campaign"`
}

type BoardPlan struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

type CampaignPlan struct {
	Name    string       `yaml:"name"`
	Pillars []PillarPlan `yaml:"pillars"`
}

type PillarPlan struct {
	Name      string         `yaml:"name"`
	Tagline   string         `yaml:"tagline"`
	Headlines []HeadlinePlan `yaml:"headlines"`
}

type HeadlinePlan struct {
	Text       string          `yaml:"text"`
	Variations []VariationPlan `yaml:"variations"`
}

type VariationPlan struct {
	CTA             string `yaml:"cta"`
	BackgroundStyle string `yaml:"background_style"`
	MockupName      string `yaml:"mockup_name"`
	BadgeIcon       string `yaml:"badge_icon"`
	Description     string `yaml:"description"`
	Link            string `yaml:"link"`
	ImageURL        string `yaml:"image_url"`
}

// Result counts what an import touched.
type Result struct {
	Boards     int
	Pillars    int
	Headlines  int
	Variations int
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := plan.validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}

func (p *Plan) validate() error {
	if p.Campaign.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	for i, b := range p.Boards {
		if b.Slug == "" {
			return fmt.Errorf("board %d: slug is required", i)
		}
	}
	for _, pillar := range p.Campaign.Pillars {
		if pillar.Name == "" {
			return fmt.Errorf("pillar name is required")
		}
		for _, head := range pillar.Headlines {
			if head.Text == "" {
				return fmt.Errorf("pillar %q: headline text is required", pillar.Name)
			}
		}
	}
	return nil
}

// Importer writes plans into the store. Boards, campaign, pillars and
// headlines upsert; variations always insert, so re-running a plan
// grows the variation pool.
type Importer struct {
	store storage.Storage
	log   *slog.Logger
}

func NewImporter(store storage.Storage, log *slog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import persists the plan and returns per-entity counts.
func (im *Importer) Import(ctx context.Context, plan *Plan) (*Result, error) {
	var res Result

	for _, b := range plan.Boards {
		board := model.Board{Name: b.Name, Slug: b.Slug}
		if board.Name == "" {
			board.Name = b.Slug
		}
		if err := im.store.UpsertBoard(ctx, &board); err != nil {
			return nil, fmt.Errorf("upsert board %q: %w", b.Slug, err)
		}
		res.Boards++
	}

	camp := model.Campaign{Name: plan.Campaign.Name}
	if err := im.store.UpsertCampaign(ctx, &camp); err != nil {
		return nil, fmt.Errorf("upsert campaign %q: %w", camp.Name, err)
	}

	for _, p := range plan.Campaign.Pillars {
		pillar := model.Pillar{CampaignID: camp.ID, Name: p.Name, Tagline: p.Tagline}
		if err := im.store.UpsertPillar(ctx, &pillar); err != nil {
			return nil, fmt.Errorf("upsert pillar %q: %w", p.Name, err)
		}
		res.Pillars++

		for _, h := range p.Headlines {
			head := model.Headline{PillarID: pillar.ID, Text: h.Text}
			if err := im.store.UpsertHeadline(ctx, &head); err != nil {
				return nil, fmt.Errorf("upsert headline %q: %w", h.Text, err)
			}
			res.Headlines++

			for _, v := range h.Variations {
				variation := model.PinVariation{
					HeadlineID:      head.ID,
					CTA:             v.CTA,
					BackgroundStyle: v.BackgroundStyle,
					MockupName:      v.MockupName,
					BadgeIcon:       v.BadgeIcon,
					Description:     v.Description,
					Link:            v.Link,
					ImageURL:        v.ImageURL,
				}
				if err := im.store.CreatePinVariation(ctx, &variation); err != nil {
					return nil, fmt.Errorf("create variation for %q: %w", h.Text, err)
				}
				res.Variations++
			}
		}
	}

	im.log.Info("plan imported",
		"campaign", camp.Name, "boards", res.Boards,
		"pillars", res.Pillars, "headlines", res.Headlines, "variations", res.Variations)
	return &res, nil
}
