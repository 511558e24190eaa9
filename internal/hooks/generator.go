package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"pinloop/internal/model"
)

// TextClient is the interface to the external text-completion service.
type TextClient interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Generator wraps a TextClient with acceptance checking, a bounded retry
// ladder and a deterministic fallback. It never returns an empty or
// unvalidated hook, and never disguises the pin's own title or
// description as one.
type Generator struct {
	client      TextClient
	maxChars    int
	temperature float64
	rng         *rand.Rand
	log         *slog.Logger
}

// NewGenerator creates a Generator with the default budget (50 chars)
// and base temperature 0.9.
func NewGenerator(client TextClient, log *slog.Logger) *Generator {
	return &Generator{
		client:      client,
		maxChars:    DefaultMaxChars,
		temperature: 0.9,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:         log,
	}
}

// SetMaxChars overrides the character budget.
func (g *Generator) SetMaxChars(n int) {
	if n > 0 {
		g.maxChars = n
	}
}

// SetRand overrides the random source used for fallback selection.
func (g *Generator) SetRand(rng *rand.Rand) {
	g.rng = rng
}

// Generate produces one validated hook for the candidate. Three attempts
// run against the service, each with a tighter prompt and lower
// temperature; the first acceptable output wins. When all fail, a
// deterministic template keyed off the top keyword or pillar steps in.
func (g *Generator) Generate(ctx context.Context, cand model.HookCandidate, recent []string) string {
	prompt := g.buildPrompt(cand, recent)
	recentSet := RecentSet(recent)

	attempts := []struct {
		prompt string
		temp   float64
	}{
		{prompt, g.temperature},
		{prompt + fmt.Sprintf("\n\nRewrite: complete thought, no dangling ending, <= %d chars.", g.maxChars), g.temperature * 0.85},
		{prompt + fmt.Sprintf("\n\nRewrite: sharp, complete, question OR statement, <= %d chars.", g.maxChars), g.temperature * 0.7},
	}

	for i, a := range attempts {
		out, err := g.client.Complete(ctx, a.prompt, a.temp)
		if err != nil {
			g.log.Warn("hook generation call failed", "pin_id", cand.PinID, "attempt", i+1, "error", err)
			break
		}
		hook := Clamp(out, g.maxChars)
		if IsGood(hook, g.maxChars, recentSet) {
			g.log.Info("hook accepted", "pin_id", cand.PinID, "attempt", i+1, "len", len(hook))
			return hook
		}
		g.log.Info("hook rejected", "pin_id", cand.PinID, "attempt", i+1, "hook", hook)
	}

	return g.fallback(cand)
}

// fallback builds a safe templated hook that does not reveal the answer.
func (g *Generator) fallback(cand model.HookCandidate) string {
	if len(cand.Keywords) > 0 {
		token := OneLine(cand.Keywords[0])
		options := []string{
			fmt.Sprintf("Still guessing %s basics?", token),
			fmt.Sprintf("Ever messed up %s on a bake?", token),
			fmt.Sprintf("Pro bakers don't guess %s.", token),
		}
		return Clamp(options[g.rng.IntN(len(options))], g.maxChars)
	}

	pillar := strings.ToLower(cand.Pillar)
	for _, w := range []string{"profit", "cost", "pricing", "business", "margin"} {
		if strings.Contains(pillar, w) {
			return Clamp("Still guessing profits by eye?", g.maxChars)
		}
	}
	return Clamp("Still guessing this ingredient?", g.maxChars)
}

func (g *Generator) buildPrompt(cand model.HookCandidate, recent []string) string {
	pillarLine := OneLine(cand.Pillar)
	if tagline := OneLine(cand.Tagline); tagline != "" {
		pillarLine += " — " + tagline
	}

	window := make([]string, 0, 12)
	for _, h := range recent {
		if s := OneLine(h); s != "" {
			window = append(window, s)
		}
	}
	if len(window) > 12 {
		window = window[len(window)-12:]
	}

	keywords := make([]string, 0, len(cand.Keywords))
	for _, k := range cand.Keywords {
		if s := OneLine(k); s != "" {
			keywords = append(keywords, s)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write ONE scroll-stopping hook for a short-form culinary trivia video (Ruoth).\n\n")
	fmt.Fprintf(&b, "Audience: chefs, bakers, culinary pros + serious home bakers.\n")
	fmt.Fprintf(&b, "Goal: touch a nerve (status, competence, waste), without cringe.\n\n")
	fmt.Fprintf(&b, "ABSOLUTE RULES:\n")
	fmt.Fprintf(&b, "- EXACTLY one line\n")
	fmt.Fprintf(&b, "- MAX %d characters total (including spaces)\n", g.maxChars)
	fmt.Fprintf(&b, "- No emojis, no hashtags\n")
	fmt.Fprintf(&b, "- Do NOT repeat the trivia question verbatim\n")
	fmt.Fprintf(&b, "- Do NOT reveal the answer\n")
	fmt.Fprintf(&b, "- Avoid repeating phrases used in these recent hooks: %s\n\n", strings.Join(window, "; "))
	fmt.Fprintf(&b, "Use ONE of these proven patterns (keep it short):\n")
	fmt.Fprintf(&b, "- Still [undesirable habit]?\n")
	fmt.Fprintf(&b, "- Ever [bad consequence]?\n")
	fmt.Fprintf(&b, "- Would you [X] after seeing [Y]?\n")
	fmt.Fprintf(&b, "- Pro-level [X] doesn't look like [low standard]\n")
	fmt.Fprintf(&b, "- Stop [undesirable]. Start [ideal].\n\n")
	fmt.Fprintf(&b, "Context:\n")
	fmt.Fprintf(&b, "Pillar: %s\n", pillarLine)
	fmt.Fprintf(&b, "Trivia question: %s\n", OneLine(cand.Question))
	fmt.Fprintf(&b, "Description: %s\n", OneLine(cand.Description))
	fmt.Fprintf(&b, "Keywords: %s\n\n", strings.Join(keywords, ", "))
	fmt.Fprintf(&b, "Return ONLY the hook text. No quotes. No extra lines.")
	return b.String()
}
