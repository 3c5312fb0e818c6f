// Package guardrails post-processes model output before it reaches a
// family: respectful-language substitution first, then a readability pass
// that rewrites toward a target grade band.
package guardrails

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/chatcfd/chatcfd-api/internal/config"
	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/internal/metrics"
	"github.com/chatcfd/chatcfd-api/internal/rag/llm"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer replaces denylisted terms with approved phrasing. Matching is
// case-insensitive on whole words, so "class" never trips on "ass".
type Sanitizer struct {
	rules []rule
}

// NewSanitizer compiles the denylist. Terms apply longest first so an
// overlapping phrase wins over its prefix regardless of map order, keeping
// substitution deterministic. It rejects any replacement that itself
// contains a denylisted term; that would make the filter non-idempotent.
func NewSanitizer(denylist map[string]string) (*Sanitizer, error) {
	terms := make([]string, 0, len(denylist))
	for term := range denylist {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	s := &Sanitizer{}
	for _, term := range terms {
		p, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling denylist term %q: %w", term, err)
		}
		s.rules = append(s.rules, rule{pattern: p, replacement: denylist[term]})
	}
	for _, r := range s.rules {
		for _, other := range s.rules {
			if other.pattern.MatchString(r.replacement) {
				return nil, fmt.Errorf("replacement %q contains a denylisted term", r.replacement)
			}
		}
	}
	return s, nil
}

func (s *Sanitizer) Apply(text string) string {
	for _, r := range s.rules {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}

// Rewriter nudges text into a target grade band by asking the model to
// simplify or elaborate, bounded by MaxPasses.
type Rewriter struct {
	provider  llm.Provider
	model     string
	minGrade  float64
	maxGrade  float64
	maxPasses int
	sanitizer *Sanitizer
	logger    *logger_i.Logger
}

type RewriterOptions struct {
	Provider  llm.Provider
	Model     string
	MinGrade  float64
	MaxGrade  float64
	MaxPasses int
	Sanitizer *Sanitizer
}

func NewRewriter(opts RewriterOptions) *Rewriter {
	return &Rewriter{
		provider:  opts.Provider,
		model:     opts.Model,
		minGrade:  opts.MinGrade,
		maxGrade:  opts.MaxGrade,
		maxPasses: opts.MaxPasses,
		sanitizer: opts.Sanitizer,
		logger:    logger_i.NewLogger("Readability Rewriter"),
	}
}

// Process sanitizes text, then rewrites until the grade estimate lands in
// the band or the pass budget runs out. The returned flag is true when the
// final text is still outside the band. A rewrite failure is not an error;
// the caller still gets sanitized text back.
func (rw *Rewriter) Process(ctx context.Context, text string) (string, bool) {
	log := rw.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	best := rw.sanitizer.Apply(text)
	bestDistance := rw.distance(GradeLevel(best))
	if bestDistance == 0 {
		return best, false
	}

	current := best
	for pass := 1; pass <= rw.maxPasses; pass++ {
		metrics.IncrementRewritePasses()
		rewritten, err := rw.rewrite(ctx, current)
		if err != nil {
			log.Warn("Rewrite pass failed, returning sanitized text", "pass", pass, "error", err)
			return best, true
		}
		candidate := rw.sanitizer.Apply(rewritten)
		if strings.TrimSpace(candidate) == "" {
			log.Warn("Rewrite pass produced empty text", "pass", pass)
			continue
		}

		d := rw.distance(GradeLevel(candidate))
		if d < bestDistance {
			best, bestDistance = candidate, d
		}
		if d == 0 {
			return candidate, false
		}
		current = candidate
	}

	log.Info("Readability band not reached", "passes", rw.maxPasses, "distance", bestDistance)
	return best, true
}

// distance is 0 inside the band, otherwise how far the grade sits outside.
func (rw *Rewriter) distance(grade float64) float64 {
	if grade < rw.minGrade {
		return rw.minGrade - grade
	}
	if grade > rw.maxGrade {
		return grade - rw.maxGrade
	}
	return 0
}

func (rw *Rewriter) rewrite(ctx context.Context, text string) (string, error) {
	grade := GradeLevel(text)
	direction := "simpler"
	if grade < rw.minGrade {
		direction = "more detailed"
	}

	system := fmt.Sprintf(
		"You rewrite text for parents and caregivers. Rewrite the given text to be %s so it reads at a grade %s to %s level. Keep every fact, every citation marker, and the original meaning. Return only the rewritten text.",
		direction, trimFloat(rw.minGrade), trimFloat(rw.maxGrade))

	return rw.provider.Complete(ctx, []ragModel.ChatMessage{
		{Role: ragModel.RoleSystem, Content: system},
		{Role: ragModel.RoleUser, Content: text},
	}, rw.model)
}

func trimFloat(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.1f", f)
}
