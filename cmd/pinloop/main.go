package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"pinloop/internal/config"
	"pinloop/internal/export"
	"pinloop/internal/hooks"
	"pinloop/internal/keywords"
	"pinloop/internal/model"
	"pinloop/internal/scheduler"
	"pinloop/internal/seed"
	"pinloop/internal/smartloop"
	"pinloop/internal/storage"
)

// app carries the wiring every subcommand needs. The store opens
// lazily so commands that fail flag validation never touch the
// database.
type app struct {
	cfg   *config.Options
	log   *slog.Logger
	store *storage.SQLite
	ctx   context.Context
}

func (a *app) open() (*storage.SQLite, error) {
	if a.store != nil {
		return a.store, nil
	}
	if dir := filepath.Dir(a.cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := storage.NewSQLite(a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cfg config.Options
	a := &app{cfg: &cfg, ctx: ctx}
	defer a.close()

	parser := flags.NewParser(&cfg, flags.Default)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		a.log = newLogger(cfg.SlogLevel())
		return cmd.Execute(args)
	}

	addCommands(parser, a)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		if a.log != nil {
			a.log.Error("command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func addCommands(parser *flags.Parser, a *app) {
	must := func(_ *flags.Command, err error) {
		if err != nil {
			panic(err)
		}
	}

	must(parser.AddCommand("schedule", "Plan and commit the SmartLoop calendar",
		"Computes the SmartLoop plan for the current variation pool and applies it.",
		&scheduleCmd{app: a}))
	must(parser.AddCommand("export", "Export a day's pins as CSV",
		"Writes the bulk-upload CSV (or a ZIP bundle) for one publish date.",
		&exportCmd{app: a}))

	kw, err := parser.AddCommand("keywords", "Keyword tiers and assignment",
		"Recompute volume tiers, import volumes, or assign keywords to pins.",
		&keywordsCmd{})
	if err != nil {
		panic(err)
	}
	must(kw.AddCommand("tiers", "Recompute keyword tiers from volumes", "", &keywordsTiersCmd{app: a}))
	must(kw.AddCommand("import", "Import keyword volumes from CSV", "", &keywordsImportCmd{app: a}))
	must(kw.AddCommand("assign", "Assign balanced keyword sets to all pins", "", &keywordsAssignCmd{app: a}))

	must(parser.AddCommand("hooks", "Generate hooks for pins missing one",
		"Calls the text model with validation and retry, falling back to templates.",
		&hooksCmd{app: a}))
	must(parser.AddCommand("summary", "Show per-pillar content progress", "",
		&summaryCmd{app: a}))
	must(parser.AddCommand("posted", "Mark a day's exported pins as posted", "",
		&postedCmd{app: a}))
	must(parser.AddCommand("repurpose", "Record a pin's reuse on another platform", "",
		&repurposeCmd{app: a}))
	must(parser.AddCommand("seed", "Import a YAML content plan", "",
		&seedCmd{app: a}))
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

type scheduleCmd struct {
	app *app

	Days    int    `long:"days" default:"30" description:"Campaign window length in days"`
	Repeats int    `long:"repeats" default:"5" description:"Times each pin is published (one board per repeat)"`
	Start   string `long:"start" description:"Start date YYYY-MM-DD (default: next Monday)"`
	Seed    int64  `long:"seed" description:"Shuffle seed for reproducible plans"`
	Reset   bool   `long:"reset" description:"Clear all unposted slots before committing"`
	DryRun  bool   `long:"dry-run" description:"Write a CSV snapshot, change nothing"`
	Preview bool   `long:"preview" description:"Write the plan to the preview store"`
}

func (c *scheduleCmd) Execute(_ []string) error {
	if c.DryRun && c.Preview {
		return fmt.Errorf("--dry-run and --preview are mutually exclusive")
	}

	store, err := c.app.open()
	if err != nil {
		return err
	}

	var start time.Time
	if c.Start != "" {
		if start, err = parseDate(c.Start); err != nil {
			return err
		}
	}

	mode := scheduler.ModeCommit
	switch {
	case c.DryRun:
		mode = scheduler.ModeDryRun
	case c.Preview:
		mode = scheduler.ModePreview
	}
	if c.DryRun {
		if err := os.MkdirAll(c.app.cfg.ExportDir, 0o750); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}

	svc := scheduler.New(store, c.app.log, c.app.cfg.ExportDir)
	res, err := svc.Run(c.app.ctx, scheduler.Options{
		Mode: mode,
		Config: smartloop.Config{
			Days:      c.Days,
			Repeats:   c.Repeats,
			StartDate: start,
		},
		Reset: c.Reset,
		Rand:  newRand(c.Seed),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Scheduled %d slots for %d pins starting %s (%s)\n",
		res.SlotCount, res.ItemCount, res.StartDate.Format("2006-01-02"), res.Mode)
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, line := range res.Distribution {
		fmt.Println(line)
	}
	if res.SnapshotPath != "" {
		fmt.Printf("Snapshot: %s\n", res.SnapshotPath)
	}
	return nil
}

type exportCmd struct {
	app *app

	Date   string `long:"date" description:"Publish date YYYY-MM-DD (default: today)"`
	Output string `long:"output" description:"Output directory (default: EXPORT_DIR)"`
	DryRun bool   `long:"dry-run" description:"Write the file without marking pins exported"`
	Bundle bool   `long:"bundle" description:"Wrap the CSV and overlay texts in a ZIP"`
}

func (c *exportCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}
	date, err := parseDate(c.Date)
	if err != nil {
		return err
	}

	outDir := c.Output
	if outDir == "" {
		outDir = c.app.cfg.ExportDir
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	svc := export.New(store, c.app.log)
	res, err := svc.Run(c.app.ctx, export.Options{
		Date:   date,
		OutDir: outDir,
		Bundle: c.Bundle,
		DryRun: c.DryRun,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d pins to %s", res.Rows, res.Path)
	if res.Marked > 0 {
		fmt.Printf(" (%d marked exported)", res.Marked)
	}
	fmt.Println()
	return nil
}

type keywordsCmd struct{}

func (c *keywordsCmd) Execute(_ []string) error {
	return fmt.Errorf("specify a subcommand: tiers, import, or assign")
}

type keywordsTiersCmd struct {
	app *app
}

func (c *keywordsTiersCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}
	n, err := keywords.NewService(store, c.app.log).RecomputeTiers(c.app.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Retiered %d keywords\n", n)
	return nil
}

type keywordsImportCmd struct {
	app *app

	File string `long:"file" required:"true" description:"CSV file of phrase,avg_monthly_searches"`
}

func (c *keywordsImportCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}
	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("open volumes file: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := keywords.NewService(store, c.app.log).ImportVolumes(c.app.ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d keyword volumes\n", n)
	return nil
}

type keywordsAssignCmd struct {
	app *app

	Seed int64 `long:"seed" description:"Draw seed for reproducible assignments"`
}

func (c *keywordsAssignCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}
	report, err := keywords.NewService(store, c.app.log).AssignAll(c.app.ctx, newRand(c.Seed))
	if err != nil {
		return err
	}
	fmt.Printf("Assigned keywords to %d pins\n", report.Assigned)
	for _, f := range report.Failures {
		fmt.Printf("  pin %d skipped: %s\n", f.PinID, f.Reason)
	}
	return nil
}

type hooksCmd struct {
	app *app

	Limit int `long:"limit" default:"100" description:"Maximum pins to process"`
}

func (c *hooksCmd) Execute(_ []string) error {
	if err := c.app.cfg.RequireOpenAI(); err != nil {
		return err
	}
	store, err := c.app.open()
	if err != nil {
		return err
	}

	client := hooks.NewOpenAIClient(&http.Client{Timeout: 30 * time.Second},
		c.app.cfg.OpenAIBaseURL, c.app.cfg.OpenAIKey, c.app.cfg.OpenAIModel)
	gen := hooks.NewGenerator(client, c.app.log)

	n, err := hooks.NewService(store, gen, c.app.log).GenerateMissing(c.app.ctx, c.Limit)
	if err != nil {
		return err
	}
	fmt.Printf("Generated hooks for %d pins\n", n)
	return nil
}

type summaryCmd struct {
	app *app
}

func (c *summaryCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}
	summaries, err := store.PillarSummaries(c.app.ctx)
	if err != nil {
		return err
	}

	for _, s := range summaries {
		fmt.Printf("%-24s %d/5 headlines  %3d/%3d variations  %3d%%\n",
			s.Name, s.Headlines, s.Variations, s.TargetVariations(), s.PercentComplete())
	}
	return nil
}

type postedCmd struct {
	app *app

	Date string `long:"date" required:"true" description:"Publish date YYYY-MM-DD"`
}

func (c *postedCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}
	date, err := parseDate(c.Date)
	if err != nil {
		return err
	}
	n, err := store.MarkPosted(c.app.ctx, date)
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d pins posted for %s\n", n, date.Format("2006-01-02"))
	return nil
}

type repurposeCmd struct {
	app *app

	Pin      int64  `long:"pin" description:"Pin variation ID (omit to show the summary)"`
	Platform string `long:"platform" choice:"instagram" choice:"tiktok" choice:"facebook" choice:"youtube" description:"Destination platform"`
	URL      string `long:"url" description:"Link to the repurposed post"`
	Notes    string `long:"notes" description:"Free-form notes"`
}

func (c *repurposeCmd) Execute(_ []string) error {
	store, err := c.app.open()
	if err != nil {
		return err
	}

	if c.Pin == 0 {
		counts, err := store.RepurposeSummary(c.app.ctx)
		if err != nil {
			return err
		}
		for _, p := range []model.Platform{
			model.PlatformInstagram, model.PlatformTikTok,
			model.PlatformFacebook, model.PlatformYouTube,
		} {
			fmt.Printf("%-10s %d\n", p, counts[p])
		}
		return nil
	}
	if c.Platform == "" {
		return fmt.Errorf("--platform is required with --pin")
	}

	post := model.RepurposedPost{
		PinID:    c.Pin,
		Platform: model.Platform(c.Platform),
		URL:      c.URL,
		Notes:    c.Notes,
	}
	if err := store.CreateRepurposedPost(c.app.ctx, &post); err != nil {
		return err
	}

	counts, err := store.RepurposeSummary(c.app.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded pin %d on %s (%d total on that platform)\n",
		c.Pin, c.Platform, counts[post.Platform])
	return nil
}

type seedCmd struct {
	app *app

	File string `long:"file" required:"true" description:"YAML plan file"`
}

func (c *seedCmd) Execute(_ []string) error {
	plan, err := seed.Load(c.File)
	if err != nil {
		return err
	}
	store, err := c.app.open()
	if err != nil {
		return err
	}

	res, err := seed.NewImporter(store, c.app.log).Import(c.app.ctx, plan)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d boards, %d pillars, %d headlines, %d variations\n",
		res.Boards, res.Pillars, res.Headlines, res.Variations)
	return nil
}
