package pattern

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

// FallbackConfidence is assigned when no evidence supports any pattern
// and the inference falls back to the most common format.
const FallbackConfidence = 0.2

// maxConfidence caps inferred confidence; evidence never proves a
// pattern outright.
const maxConfidence = 0.95

// Evidence is the input to an inference run.
type Evidence struct {
	// Emails are addresses discovered for the company domain.
	Emails []string
	// Roster lists known people at the company, used to anchor
	// classification of ambiguous locals.
	Roster []Person
	// Hint is a provider-reported pattern, used only when no email
	// evidence classifies.
	Hint Pattern
}

// Inference is the outcome of a pattern inference.
type Inference struct {
	Pattern        Pattern
	Confidence     float64
	Matched        int
	Total          int
	Notes          string
	EvidenceAbsent bool
}

// Infer determines the dominant email pattern from evidence. With no
// classifiable evidence it falls back to first.last at low confidence,
// or to the provider hint when one is present.
func Infer(ev Evidence) Inference {
	counts := make(map[Pattern]int)
	total := 0
	for _, email := range dedupe(ev.Emails) {
		at := strings.Index(email, "@")
		if at <= 0 {
			continue
		}
		p, ok := Classify(email[:at], ev.Roster)
		if !ok {
			continue
		}
		counts[p]++
		total++
	}

	if total == 0 {
		if ev.Hint.Valid() {
			return Inference{
				Pattern:        ev.Hint,
				Confidence:     0.6,
				Notes:          "no classifiable addresses, using provider pattern hint",
				EvidenceAbsent: true,
			}
		}
		return Inference{
			Pattern:        FirstDotLast,
			Confidence:     FallbackConfidence,
			Notes:          "no classifiable addresses, defaulting to first.last",
			EvidenceAbsent: true,
		}
	}

	dominant := Priority[0]
	best := -1
	for _, p := range Priority {
		if counts[p] > best {
			dominant = p
			best = counts[p]
		}
	}

	ratio := float64(best) / float64(total)
	confidence := ratio * (1 - math.Pow(0.5, float64(best)))
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return Inference{
		Pattern:    dominant,
		Confidence: confidence,
		Matched:    best,
		Total:      total,
		Notes:      fmt.Sprintf("%d of %d classified addresses follow %s", best, total, dominant),
	}
}

func dedupe(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Cache persists inference outcomes per company key.
type Cache interface {
	GetPatternCache(ctx context.Context, companyKey string) (*model.PatternCacheEntry, error)
	SetPatternCache(ctx context.Context, e model.PatternCacheEntry) error
	DeletePatternCache(ctx context.Context, companyKey string) error
}

// Inferencer runs cached pattern inference.
type Inferencer struct {
	cache Cache
	force bool
}

// NewInferencer creates an Inferencer. With force set, cached entries
// are recomputed and overwritten.
func NewInferencer(cache Cache, force bool) *Inferencer {
	return &Inferencer{cache: cache, force: force}
}

// Infer returns the pattern for a company, from cache when available.
// In force mode the cached entry is dropped before recomputing.
func (i *Inferencer) Infer(ctx context.Context, companyKey string, ev Evidence) (Inference, error) {
	if i.force {
		if err := i.cache.DeletePatternCache(ctx, companyKey); err != nil {
			return Inference{}, err
		}
	} else {
		cached, err := i.cache.GetPatternCache(ctx, companyKey)
		if err != nil {
			return Inference{}, err
		}
		if cached != nil {
			zap.L().Debug("pattern cache hit",
				zap.String("company_key", companyKey),
				zap.String("pattern", cached.Pattern))
			return Inference{
				Pattern:        Pattern(cached.Pattern),
				Confidence:     cached.Confidence,
				Matched:        cached.EmailCount,
				Total:          cached.EmailCount,
				Notes:          cached.Notes,
				EvidenceAbsent: cached.EmailCount == 0,
			}, nil
		}
	}

	inf := Infer(ev)
	err := i.cache.SetPatternCache(ctx, model.PatternCacheEntry{
		CompanyKey: companyKey,
		Pattern:    string(inf.Pattern),
		EmailCount: inf.Matched,
		Confidence: inf.Confidence,
		Notes:      inf.Notes,
	})
	if err != nil {
		return Inference{}, err
	}

	zap.L().Info("pattern inferred",
		zap.String("company_key", companyKey),
		zap.String("pattern", string(inf.Pattern)),
		zap.Float64("confidence", inf.Confidence),
		zap.Int("matched", inf.Matched),
		zap.Int("total", inf.Total))
	return inf, nil
}
