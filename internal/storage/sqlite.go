package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"pinloop/internal/model"
	"pinloop/migrations"
)

const (
	timeLayout = "2006-01-02T15:04:05Z"
	dateLayout = "2006-01-02"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertCampaign inserts a campaign or adopts the existing row by name.
func (s *SQLite) UpsertCampaign(ctx context.Context, c *model.Campaign) error {
	err := s.db.QueryRowContext(ctx, `SELECT id FROM campaigns WHERE name = ?`, c.Name).Scan(&c.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find campaign: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (name, created_at) VALUES (?, ?)`, c.Name, now)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// UpsertPillar inserts a pillar or adopts the existing (campaign, name)
// row, refreshing its tagline.
func (s *SQLite) UpsertPillar(ctx context.Context, p *model.Pillar) error {
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pillars WHERE campaign_id = ? AND name = ?`, p.CampaignID, p.Name).Scan(&p.ID)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `UPDATE pillars SET tagline = ? WHERE id = ?`, p.Tagline, p.ID)
		if err != nil {
			return fmt.Errorf("update pillar: %w", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find pillar: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pillars (campaign_id, name, tagline) VALUES (?, ?, ?)`,
		p.CampaignID, p.Name, p.Tagline)
	if err != nil {
		return fmt.Errorf("insert pillar: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// UpsertHeadline inserts a headline or adopts the existing (pillar, text) row.
func (s *SQLite) UpsertHeadline(ctx context.Context, h *model.Headline) error {
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM headlines WHERE pillar_id = ? AND text = ?`, h.PillarID, h.Text).Scan(&h.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find headline: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO headlines (pillar_id, text) VALUES (?, ?)`, h.PillarID, h.Text)
	if err != nil {
		return fmt.Errorf("insert headline: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	h.ID = id
	return nil
}

// CreatePinVariation inserts a new pin variation and populates its ID.
func (s *SQLite) CreatePinVariation(ctx context.Context, v *model.PinVariation) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pin_variations
		   (headline_id, cta, background_style, mockup_name, badge_icon, description, link, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.HeadlineID, v.CTA, v.BackgroundStyle, v.MockupName, v.BadgeIcon,
		v.Description, v.Link, v.ImageURL)
	if err != nil {
		return fmt.Errorf("insert variation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	v.ID = id
	return nil
}

// ListPinItems returns every variation as a flat planner record.
func (s *SQLite) ListPinItems(ctx context.Context) ([]model.PinItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, p.id, p.name, h.text
		 FROM pin_variations v
		 JOIN headlines h ON h.id = v.headline_id
		 JOIN pillars p ON p.id = h.pillar_id
		 ORDER BY v.id`)
	if err != nil {
		return nil, fmt.Errorf("query pin items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.PinItem
	for rows.Next() {
		var it model.PinItem
		if err := rows.Scan(&it.PinID, &it.PillarID, &it.PillarName, &it.Title); err != nil {
			return nil, fmt.Errorf("scan pin item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// PillarSummaries aggregates headline and variation counts per pillar.
func (s *SQLite) PillarSummaries(ctx context.Context) ([]model.PillarSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, COUNT(DISTINCT h.id), COUNT(v.id)
		 FROM pillars p
		 LEFT JOIN headlines h ON h.pillar_id = p.id
		 LEFT JOIN pin_variations v ON v.headline_id = h.id
		 GROUP BY p.id, p.name
		 ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("query pillar summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sums []model.PillarSummary
	for rows.Next() {
		var sum model.PillarSummary
		if err := rows.Scan(&sum.PillarID, &sum.Name, &sum.Headlines, &sum.Variations); err != nil {
			return nil, fmt.Errorf("scan pillar summary: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// UpsertBoard inserts a board or adopts the existing row by slug,
// refreshing its display name.
func (s *SQLite) UpsertBoard(ctx context.Context, b *model.Board) error {
	err := s.db.QueryRowContext(ctx, `SELECT id FROM boards WHERE slug = ?`, b.Slug).Scan(&b.ID)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `UPDATE boards SET name = ? WHERE id = ?`, b.Name, b.ID)
		if err != nil {
			return fmt.Errorf("update board: %w", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find board: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (name, slug) VALUES (?, ?)`, b.Name, b.Slug)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// ListBoards returns all boards in stable creation order.
func (s *SQLite) ListBoards(ctx context.Context) ([]model.Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM boards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []model.Board
	for rows.Next() {
		var b model.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// ReplaceSchedule swaps the live schedule for the window in one
// transaction. Scheduled slots inside [start, start+days-1] are removed;
// with reset every unposted slot goes regardless of date. Returns how
// many rows the delete phase removed.
func (s *SQLite) ReplaceSchedule(ctx context.Context, start time.Time, days int, slots []model.ScheduledPin, reset bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if reset {
		res, err = tx.ExecContext(ctx,
			`DELETE FROM scheduled_pins WHERE status != ?`, string(model.StatusPosted))
	} else {
		end := start.AddDate(0, 0, days-1)
		res, err = tx.ExecContext(ctx,
			`DELETE FROM scheduled_pins
			 WHERE status = ? AND publish_date BETWEEN ? AND ?`,
			string(model.StatusScheduled), start.Format(dateLayout), end.Format(dateLayout))
	}
	if err != nil {
		return 0, fmt.Errorf("delete slots: %w", err)
	}
	deleted64, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scheduled_pins
		   (pin_id, board_id, publish_date, campaign_day, slot_number, status)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, slot := range slots {
		_, err := stmt.ExecContext(ctx,
			slot.PinID, slot.BoardID, slot.PublishDate.Format(dateLayout),
			slot.CampaignDay, slot.SlotNumber, string(model.StatusScheduled))
		if err != nil {
			// A plain commit keeps exported slots in the window, so a
			// regenerated plan can re-derive one of them.
			if !reset && strings.Contains(err.Error(), "UNIQUE") {
				return 0, fmt.Errorf("insert slot pin=%d board=%d: collides with an exported slot, rerun with reset: %w",
					slot.PinID, slot.BoardID, err)
			}
			return 0, fmt.Errorf("insert slot pin=%d board=%d: %w", slot.PinID, slot.BoardID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit schedule: %w", err)
	}
	return int(deleted64), nil
}

// ReplacePreview swaps the full contents of the preview store.
func (s *SQLite) ReplacePreview(ctx context.Context, slots []model.ScheduledPin) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preview_pins`); err != nil {
		return fmt.Errorf("clear preview: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO preview_pins (pin_id, board_id, publish_date, campaign_day, slot_number)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, slot := range slots {
		_, err := stmt.ExecContext(ctx,
			slot.PinID, slot.BoardID, slot.PublishDate.Format(dateLayout),
			slot.CampaignDay, slot.SlotNumber)
		if err != nil {
			return fmt.Errorf("insert preview slot: %w", err)
		}
	}
	return tx.Commit()
}

// ListExportRows returns the export view of all not-yet-posted slots on
// the given date, keyword phrases included.
func (s *SQLite) ListExportRows(ctx context.Context, date time.Time) ([]model.ExportRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, h.text, v.hook, v.image_url, b.name, v.description, v.link, sp.publish_date, v.mockup_name
		 FROM scheduled_pins sp
		 JOIN pin_variations v ON v.id = sp.pin_id
		 JOIN headlines h ON h.id = v.headline_id
		 JOIN boards b ON b.id = sp.board_id
		 WHERE sp.publish_date = ? AND sp.status != ?
		 ORDER BY sp.slot_number, sp.id`,
		date.Format(dateLayout), string(model.StatusPosted))
	if err != nil {
		return nil, fmt.Errorf("query export rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ExportRow
	for rows.Next() {
		var r model.ExportRow
		var dateStr string
		err := rows.Scan(&r.PinID, &r.Title, &r.Hook, &r.ImageURL, &r.Board,
			&r.Description, &r.Link, &dateStr, &r.MockupName)
		if err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		r.PublishDate, _ = time.Parse(dateLayout, dateStr)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	phrases, err := s.keywordPhrases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Keywords = phrases[out[i].PinID]
	}
	return out, nil
}

// keywordPhrases maps pin IDs to their assigned keyword phrases.
func (s *SQLite) keywordPhrases(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pk.pin_id, k.phrase
		 FROM pin_keywords pk
		 JOIN keywords k ON k.id = pk.keyword_id
		 ORDER BY pk.pin_id, k.id`)
	if err != nil {
		return nil, fmt.Errorf("query keyword phrases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	phrases := make(map[int64][]string)
	for rows.Next() {
		var pinID int64
		var phrase string
		if err := rows.Scan(&pinID, &phrase); err != nil {
			return nil, fmt.Errorf("scan keyword phrase: %w", err)
		}
		phrases[pinID] = append(phrases[pinID], phrase)
	}
	return phrases, rows.Err()
}

// MarkExported transitions a day's scheduled slots to exported.
func (s *SQLite) MarkExported(ctx context.Context, date time.Time) (int, error) {
	return s.markStatus(ctx, date, model.StatusScheduled, model.StatusExported)
}

// MarkPosted transitions a day's exported slots to posted.
func (s *SQLite) MarkPosted(ctx context.Context, date time.Time) (int, error) {
	return s.markStatus(ctx, date, model.StatusExported, model.StatusPosted)
}

func (s *SQLite) markStatus(ctx context.Context, date time.Time, from, to model.PinStatus) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_pins SET status = ? WHERE publish_date = ? AND status = ?`,
		string(to), date.Format(dateLayout), string(from))
	if err != nil {
		return 0, fmt.Errorf("mark %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// CreateScheduleRun records one scheduling invocation.
func (s *SQLite) CreateScheduleRun(ctx context.Context, run *model.ScheduleRun) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_runs
		   (id, mode, start_date, days, repeats, item_count, slot_count, warnings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.StartDate.Format(dateLayout), run.Days, run.Repeats,
		run.ItemCount, run.SlotCount, run.Warnings, now)
	if err != nil {
		return fmt.Errorf("insert schedule run: %w", err)
	}
	run.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListKeywords returns all keywords in stable creation order.
func (s *SQLite) ListKeywords(ctx context.Context) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phrase, avg_monthly_searches, tier FROM keywords ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var kws []model.Keyword
	for rows.Next() {
		var k model.Keyword
		var tier string
		if err := rows.Scan(&k.ID, &k.Phrase, &k.AvgMonthlySearches, &tier); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		k.Tier = model.KeywordTier(tier)
		kws = append(kws, k)
	}
	return kws, rows.Err()
}

// UpsertKeywordVolume creates a keyword or refreshes its search volume.
func (s *SQLite) UpsertKeywordVolume(ctx context.Context, phrase string, volume int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (phrase, avg_monthly_searches) VALUES (?, ?)
		 ON CONFLICT (phrase) DO UPDATE SET avg_monthly_searches = excluded.avg_monthly_searches`,
		phrase, volume)
	if err != nil {
		return fmt.Errorf("upsert keyword: %w", err)
	}
	return nil
}

// UpdateKeywordTier overwrites a keyword's derived tier.
func (s *SQLite) UpdateKeywordTier(ctx context.Context, id int64, tier model.KeywordTier) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET tier = ? WHERE id = ?`, string(tier), id)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	return nil
}

// KeywordUsage counts current assignments per keyword across the corpus.
func (s *SQLite) KeywordUsage(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword_id, COUNT(*) FROM pin_keywords GROUP BY keyword_id`)
	if err != nil {
		return nil, fmt.Errorf("query keyword usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	usage := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage[id] = n
	}
	return usage, rows.Err()
}

// ReplacePinKeywords swaps a pin's keyword set wholesale.
func (s *SQLite) ReplacePinKeywords(ctx context.Context, pinID int64, assignments []model.PinKeyword) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pin_keywords WHERE pin_id = ?`, pinID); err != nil {
		return fmt.Errorf("clear pin keywords: %w", err)
	}
	for _, a := range assignments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pin_keywords (pin_id, keyword_id, auto_assigned, relevance)
			 VALUES (?, ?, ?, ?)`,
			pinID, a.KeywordID, boolToInt(a.AutoAssigned), a.Relevance)
		if err != nil {
			return fmt.Errorf("insert pin keyword: %w", err)
		}
	}
	return tx.Commit()
}

// ListHookCandidates returns pins that still need hooks, context included.
func (s *SQLite) ListHookCandidates(ctx context.Context, limit int) ([]model.HookCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, c.name, p.name, p.tagline, h.text, v.description
		 FROM pin_variations v
		 JOIN headlines h ON h.id = v.headline_id
		 JOIN pillars p ON p.id = h.pillar_id
		 JOIN campaigns c ON c.id = p.campaign_id
		 WHERE v.hook = ''
		 ORDER BY v.id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query hook candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cands []model.HookCandidate
	for rows.Next() {
		var c model.HookCandidate
		err := rows.Scan(&c.PinID, &c.Campaign, &c.Pillar, &c.Tagline, &c.Question, &c.Description)
		if err != nil {
			return nil, fmt.Errorf("scan hook candidate: %w", err)
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	phrases, err := s.keywordPhrases(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cands {
		kws := phrases[cands[i].PinID]
		if len(kws) > 12 {
			kws = kws[:12]
		}
		cands[i].Keywords = kws
	}
	return cands, nil
}

// RecentHooks returns the newest generated hooks for the anti-repetition
// window.
func (s *SQLite) RecentHooks(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hook FROM pin_variations
		 WHERE hook != '' AND hook_generated_at IS NOT NULL
		 ORDER BY hook_generated_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent hooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hooks []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

// UpdatePinHook stores a generated hook and its timestamp.
func (s *SQLite) UpdatePinHook(ctx context.Context, pinID int64, hook string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pin_variations SET hook = ?, hook_generated_at = ? WHERE id = ?`,
		hook, at.UTC().Format(timeLayout), pinID)
	if err != nil {
		return fmt.Errorf("update hook: %w", err)
	}
	return nil
}

// CreateRepurposedPost records a repurposing and populates its ID.
func (s *SQLite) CreateRepurposedPost(ctx context.Context, p *model.RepurposedPost) error {
	if p.PostedAt.IsZero() {
		p.PostedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO repurposed_posts (pin_id, platform, url, notes, posted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.PinID, string(p.Platform), p.URL, p.Notes, p.PostedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert repurposed post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// RepurposeSummary counts repurposed posts per platform.
func (s *SQLite) RepurposeSummary(ctx context.Context) (map[model.Platform]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, COUNT(*) FROM repurposed_posts GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("query repurpose summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.Platform]int)
	for rows.Next() {
		var platform string
		var n int
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("scan repurpose summary: %w", err)
		}
		out[model.Platform(platform)] = n
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
