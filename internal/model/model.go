// Package model defines the domain types used across the application.
package model

import "time"

// Campaign is the top of the content hierarchy.
type Campaign struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Pillar is a content theme inside a campaign.
type Pillar struct {
	ID         int64
	CampaignID int64
	Name       string
	Tagline    string
}

// Headline is a single message under a pillar. Each headline is expected
// to accumulate four pin variations.
type Headline struct {
	ID       int64
	PillarID int64
	Text     string
}

// PinVariation is one publishable rendition of a headline.
type PinVariation struct {
	ID              int64
	HeadlineID      int64
	CTA             string
	BackgroundStyle string
	MockupName      string
	BadgeIcon       string
	Description     string
	Link            string
	ImageURL        string
	Hook            string
	HookGeneratedAt *time.Time
}

// Board is a Pinterest board used as a rotation slot.
type Board struct {
	ID   int64
	Name string
	Slug string
}

// PinStatus tracks a scheduled pin through export and posting.
type PinStatus string

// Scheduled pin lifecycle states.
const (
	StatusScheduled PinStatus = "scheduled"
	StatusExported  PinStatus = "exported"
	StatusPosted    PinStatus = "posted"
)

// ScheduledPin is one (pin, board, date) slot in the publish calendar.
// No two slots may share the same pin, board and publish date.
type ScheduledPin struct {
	ID          int64
	PinID       int64
	BoardID     int64
	PublishDate time.Time
	CampaignDay int
	SlotNumber  int
	Status      PinStatus
}

// KeywordTier groups keywords by monthly search volume.
type KeywordTier string

// Tier buckets derived from average monthly searches.
const (
	TierHigh  KeywordTier = "high"
	TierMid   KeywordTier = "mid"
	TierNiche KeywordTier = "niche"
	TierLow   KeywordTier = "low"
)

// TierFor maps a monthly search volume onto its tier.
func TierFor(volume int) KeywordTier {
	switch {
	case volume >= 1000:
		return TierHigh
	case volume >= 300:
		return TierMid
	case volume >= 50:
		return TierNiche
	default:
		return TierLow
	}
}

// Keyword is an SEO phrase with a volume-derived tier.
type Keyword struct {
	ID                 int64
	Phrase             string
	AvgMonthlySearches int
	Tier               KeywordTier
}

// PinKeyword joins a pin variation to a keyword.
type PinKeyword struct {
	PinID        int64
	KeywordID    int64
	AutoAssigned bool
	Relevance    float64
}

// Platform identifies a repurposing destination.
type Platform string

// Supported repurposing platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
)

// RepurposedPost records that a pin's content was reused on another platform.
type RepurposedPost struct {
	ID       int64
	PinID    int64
	Platform Platform
	URL      string
	Notes    string
	PostedAt time.Time
}

// ScheduleRun is an audit record of one scheduling invocation.
type ScheduleRun struct {
	ID        string
	Mode      string
	StartDate time.Time
	Days      int
	Repeats   int
	ItemCount int
	SlotCount int
	Warnings  string
	CreatedAt time.Time
}

// PinItem is the flat view of a variation handed to the planner:
// identity plus pillar, detached from any persistence handle.
type PinItem struct {
	PinID      int64
	PillarID   int64
	PillarName string
	Title      string
}

// HookCandidate carries everything hook generation needs for one pin.
type HookCandidate struct {
	PinID       int64
	Campaign    string
	Pillar      string
	Tagline     string
	Question    string
	Description string
	Keywords    []string
}

// ExportRow is one line of the Pinterest bulk-upload CSV.
type ExportRow struct {
	PinID       int64
	Title       string
	Hook        string
	ImageURL    string
	Board       string
	Description string
	Link        string
	PublishDate time.Time
	Keywords    []string
	MockupName  string
}

// PillarSummary reports content completion for one pillar.
type PillarSummary struct {
	PillarID   int64
	Name       string
	Headlines  int
	Variations int
}

// TargetVariations is the number of variations a full pillar carries:
// headlines * 4 renditions each.
func (s PillarSummary) TargetVariations() int {
	return s.Headlines * 4
}

// PercentComplete reports variation progress against the target.
func (s PillarSummary) PercentComplete() int {
	target := s.TargetVariations()
	if target == 0 {
		return 0
	}
	return s.Variations * 100 / target
}
