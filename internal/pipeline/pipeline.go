// Package pipeline runs the discovery flow end to end: resolve each
// company's domain, collect address evidence, infer the pattern and
// grade a candidate address per prospect.
package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rabiegha/b2b-email-campaign/internal/discovery"
	"github.com/Rabiegha/b2b-email-campaign/internal/domain"
	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/pattern"
	"github.com/Rabiegha/b2b-email-campaign/internal/resilience"
	"github.com/Rabiegha/b2b-email-campaign/internal/verify"
	"github.com/Rabiegha/b2b-email-campaign/pkg/hunter"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	ListProspects(ctx context.Context) ([]model.Prospect, error)
	ListProspectsWithoutSuggestion(ctx context.Context, limit int) ([]model.Prospect, error)
	UpsertSuggestion(ctx context.Context, s model.EmailSuggestion) (*model.EmailSuggestion, error)
}

// DomainResolver resolves a company name to a domain.
type DomainResolver interface {
	Resolve(ctx context.Context, company string) (domain.Resolution, error)
}

// Discoverer collects published addresses for a domain.
type Discoverer interface {
	Discover(ctx context.Context, domain string) ([]discovery.Found, error)
}

// Inferencer determines the dominant address pattern for a company.
type Inferencer interface {
	Infer(ctx context.Context, companyKey string, ev pattern.Evidence) (pattern.Inference, error)
}

// Verifier grades a candidate address for a person.
type Verifier interface {
	Verify(ctx context.Context, firstname, lastname, domain string, p pattern.Pattern, patternConfidence float64) verify.Result
}

// RunStats summarizes a pipeline run.
type RunStats struct {
	Companies  int
	Resolved   int
	Unresolved int
	Failed     int
	Found      int
	NotFound   int
}

// Progress is called after each company completes.
type Progress func(company string, done, total int)

// Pipeline orchestrates a discovery run over pending prospects.
type Pipeline struct {
	store      Store
	resolver   DomainResolver
	discoverer Discoverer
	inferencer Inferencer
	verifier   Verifier
	hunter     hunter.Client
	maxWorkers int
	force      bool
	progress   Progress
}

// Config wires a Pipeline. Hunter and Progress are optional. With Force
// set, prospects that already carry a suggestion are reprocessed and
// their suggestions overwritten.
type Config struct {
	Store      Store
	Resolver   DomainResolver
	Discoverer Discoverer
	Inferencer Inferencer
	Verifier   Verifier
	Hunter     hunter.Client
	MaxWorkers int
	Force      bool
	Progress   Progress
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	return &Pipeline{
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		discoverer: cfg.Discoverer,
		inferencer: cfg.Inferencer,
		verifier:   cfg.Verifier,
		hunter:     cfg.Hunter,
		maxWorkers: cfg.MaxWorkers,
		force:      cfg.Force,
		progress:   cfg.Progress,
	}
}

type companyBatch struct {
	key       string
	name      string
	prospects []model.Prospect
}

type companyOutcome struct {
	resolved bool
	found    int
	notFound int
}

// Run processes up to limit pending prospects, grouped per company and
// handled concurrently. A company failure is logged and counted without
// aborting the run; cancellation stops scheduling further companies.
// In force mode every prospect is selected, so existing suggestions get
// recomputed.
func (p *Pipeline) Run(ctx context.Context, limit int) (*RunStats, error) {
	prospects, err := p.selectProspects(ctx, limit)
	if err != nil {
		return nil, err
	}

	batches := groupByCompany(prospects)
	stats := &RunStats{Companies: len(batches)}
	if len(batches) == 0 {
		return stats, nil
	}

	zap.L().Info("pipeline started",
		zap.Int("prospects", len(prospects)),
		zap.Int("companies", len(batches)),
		zap.Int("concurrency", p.maxWorkers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	var resolved, unresolved, failed, found, notFound, done atomic.Int64
	for _, batch := range batches {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			log := zap.L().With(zap.String("company", batch.name))
			outcome, err := p.processCompany(gCtx, batch)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				failed.Add(1)
				log.Error("company processing failed", zap.Error(err))
			} else {
				if outcome.resolved {
					resolved.Add(1)
				} else {
					unresolved.Add(1)
				}
				found.Add(int64(outcome.found))
				notFound.Add(int64(outcome.notFound))
			}

			n := int(done.Add(1))
			if p.progress != nil {
				p.progress(batch.name, n, len(batches))
			}
			return nil
		})
	}

	err = g.Wait()
	stats.Resolved = int(resolved.Load())
	stats.Unresolved = int(unresolved.Load())
	stats.Failed = int(failed.Load())
	stats.Found = int(found.Load())
	stats.NotFound = int(notFound.Load())
	return stats, err
}

func (p *Pipeline) selectProspects(ctx context.Context, limit int) ([]model.Prospect, error) {
	if !p.force {
		return p.store.ListProspectsWithoutSuggestion(ctx, limit)
	}
	prospects, err := p.store.ListProspects(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(prospects) > limit {
		prospects = prospects[:limit]
	}
	return prospects, nil
}

func (p *Pipeline) processCompany(ctx context.Context, batch companyBatch) (companyOutcome, error) {
	var outcome companyOutcome

	res, err := p.resolver.Resolve(ctx, batch.name)
	if err != nil {
		return outcome, err
	}
	if !res.Resolved {
		for _, prospect := range batch.prospects {
			_, err := p.store.UpsertSuggestion(ctx, model.EmailSuggestion{
				ProspectID: prospect.ID,
				Status:     model.SuggestionNotFound,
				DebugNotes: "domain unresolved",
			})
			if err != nil {
				return outcome, err
			}
			outcome.notFound++
		}
		return outcome, nil
	}
	outcome.resolved = true

	ev := p.collectEvidence(ctx, batch, res.Domain)
	inf, err := p.inferencer.Infer(ctx, batch.key, ev)
	if err != nil {
		return outcome, err
	}

	for _, prospect := range batch.prospects {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		graded := p.verifier.Verify(ctx, prospect.Firstname, prospect.Lastname, res.Domain, inf.Pattern, inf.Confidence)

		suggestion := model.EmailSuggestion{
			ProspectID: prospect.ID,
			Domain:     res.Domain,
			Pattern:    string(graded.Pattern),
			Email:      graded.Email,
			Confidence: graded.Confidence,
			Status:     model.SuggestionFound,
			DebugNotes: joinNotes(inf.Notes, graded.Notes),
		}
		if graded.Status == verify.StatusRejected {
			suggestion.Status = model.SuggestionNotFound
			outcome.notFound++
		} else {
			outcome.found++
		}

		if _, err := p.store.UpsertSuggestion(ctx, suggestion); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// collectEvidence gathers address evidence from the site crawl and,
// when configured, the Hunter domain search. Evidence failures degrade
// to an empty pool rather than failing the company.
func (p *Pipeline) collectEvidence(ctx context.Context, batch companyBatch, companyDomain string) pattern.Evidence {
	ev := pattern.Evidence{}
	for _, prospect := range batch.prospects {
		ev.Roster = append(ev.Roster, pattern.Person{
			Firstname: prospect.Firstname,
			Lastname:  prospect.Lastname,
		})
	}

	found, err := p.discoverer.Discover(ctx, companyDomain)
	if err != nil {
		zap.L().Warn("site discovery failed",
			zap.String("domain", companyDomain),
			zap.Error(err))
	}
	for _, f := range found {
		ev.Emails = append(ev.Emails, f.Email)
	}

	if p.hunter != nil {
		cfg := resilience.DefaultRetryConfig()
		cfg.OnRetry = resilience.RetryLogger("hunter", "domain_search")
		data, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*hunter.DomainSearchData, error) {
			return p.hunter.DomainSearch(ctx, companyDomain)
		})
		if err != nil {
			zap.L().Warn("hunter domain search failed",
				zap.String("domain", companyDomain),
				zap.Error(err))
			return ev
		}
		for _, e := range data.Emails {
			ev.Emails = append(ev.Emails, e.Value)
			if e.FirstName != "" || e.LastName != "" {
				ev.Roster = append(ev.Roster, pattern.Person{
					Firstname: e.FirstName,
					Lastname:  e.LastName,
				})
			}
		}
		if hint, ok := pattern.FromHunter(data.Pattern); ok {
			ev.Hint = hint
		}
	}
	return ev
}

// groupByCompany batches prospects by company key, preserving the
// order in which companies first appear.
func groupByCompany(prospects []model.Prospect) []companyBatch {
	index := make(map[string]int)
	var batches []companyBatch
	for _, prospect := range prospects {
		i, ok := index[prospect.CompanyKey]
		if !ok {
			i = len(batches)
			index[prospect.CompanyKey] = i
			batches = append(batches, companyBatch{
				key:  prospect.CompanyKey,
				name: prospect.Company,
			})
		}
		batches[i].prospects = append(batches[i].prospects, prospect)
	}
	return batches
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
