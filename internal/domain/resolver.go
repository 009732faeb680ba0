// Package domain resolves a company name to its website domain using web
// search confirmed by MX records, with a slug-plus-TLD guess as fallback.
package domain

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/dnsx"
	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/normalize"
	"github.com/Rabiegha/b2b-email-campaign/internal/resilience"
	"github.com/Rabiegha/b2b-email-campaign/pkg/ddg"
)

// Resolution is the outcome of a company domain lookup.
type Resolution struct {
	Domain    string
	Method    model.ResolutionMethod
	Resolved  bool
	FromCache bool
}

// Cache persists successful resolutions per company key.
type Cache interface {
	GetDomainCache(ctx context.Context, companyKey string) (*model.DomainCacheEntry, error)
	SetDomainCache(ctx context.Context, e model.DomainCacheEntry) error
	DeleteDomainCache(ctx context.Context, companyKey string) error
}

// ignoredHosts are aggregator and social domains that rank well in
// search results but never are the company's own site.
var ignoredHosts = map[string]struct{}{
	"linkedin.com":           {},
	"facebook.com":           {},
	"instagram.com":          {},
	"twitter.com":            {},
	"x.com":                  {},
	"youtube.com":            {},
	"wikipedia.org":          {},
	"google.com":             {},
	"indeed.com":             {},
	"indeed.fr":              {},
	"glassdoor.com":          {},
	"glassdoor.fr":           {},
	"societe.com":            {},
	"pappers.fr":             {},
	"verif.com":              {},
	"kompass.com":            {},
	"pagesjaunes.fr":         {},
	"infogreffe.fr":          {},
	"lefigaro.fr":            {},
	"lesechos.fr":            {},
	"welcometothejungle.com": {},
}

// Resolver resolves company names to domains.
type Resolver struct {
	search ddg.Client
	dns    dnsx.MXResolver
	cache  Cache
	tlds   []string
	force  bool
}

// NewResolver creates a Resolver. With force set, cached resolutions are
// recomputed and overwritten. The tlds list drives the guess fallback.
func NewResolver(search ddg.Client, dns dnsx.MXResolver, cache Cache, tlds []string, force bool) *Resolver {
	return &Resolver{
		search: search,
		dns:    dns,
		cache:  cache,
		tlds:   tlds,
		force:  force,
	}
}

// Resolve finds the domain for a company. Only successful resolutions
// are cached, so transient search or DNS failures get retried on the
// next run. In force mode the cached entry is dropped up front, so a
// recompute that fails leaves no stale resolution behind.
func (r *Resolver) Resolve(ctx context.Context, company string) (Resolution, error) {
	key := normalize.CompanyKey(company)
	if key == "" {
		return Resolution{}, nil
	}

	if r.force {
		if err := r.cache.DeleteDomainCache(ctx, key); err != nil {
			return Resolution{}, err
		}
	} else {
		cached, err := r.cache.GetDomainCache(ctx, key)
		if err != nil {
			return Resolution{}, err
		}
		if cached != nil {
			zap.L().Debug("domain cache hit",
				zap.String("company_key", key),
				zap.String("domain", cached.Domain))
			return Resolution{
				Domain:    cached.Domain,
				Method:    cached.Method,
				Resolved:  true,
				FromCache: true,
			}, nil
		}
	}

	if domain := r.resolveBySearch(ctx, company); domain != "" {
		return r.confirm(ctx, key, domain, model.MethodSearch)
	}
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	if domain := r.resolveByGuess(ctx, company); domain != "" {
		return r.confirm(ctx, key, domain, model.MethodGuess)
	}
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	zap.L().Info("domain unresolved", zap.String("company", company))
	return Resolution{}, nil
}

func (r *Resolver) confirm(ctx context.Context, key, domain string, method model.ResolutionMethod) (Resolution, error) {
	err := r.cache.SetDomainCache(ctx, model.DomainCacheEntry{
		CompanyKey: key,
		Domain:     domain,
		Method:     method,
	})
	if err != nil {
		return Resolution{}, err
	}
	zap.L().Info("domain resolved",
		zap.String("company_key", key),
		zap.String("domain", domain),
		zap.String("method", string(method)))
	return Resolution{Domain: domain, Method: method, Resolved: true}, nil
}

// resolveBySearch queries the search engine and returns the first
// candidate domain, by result votes, that carries MX records.
func (r *Resolver) resolveBySearch(ctx context.Context, company string) string {
	queries := []string{
		fmt.Sprintf("%s site officiel", company),
		fmt.Sprintf("%s email contact", company),
	}

	votes := make(map[string]int)
	order := make(map[string]int)
	for _, query := range queries {
		cfg := resilience.DefaultRetryConfig()
		cfg.OnRetry = resilience.RetryLogger("ddg", "search")
		results, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]ddg.Result, error) {
			return r.search.Search(ctx, query)
		})
		if err != nil {
			zap.L().Warn("search failed",
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		for _, res := range results {
			host := candidateDomain(res.URL)
			if host == "" {
				continue
			}
			if _, seen := order[host]; !seen {
				order[host] = len(order)
			}
			votes[host]++
		}
	}

	candidates := make([]string, 0, len(votes))
	for host := range votes {
		candidates = append(candidates, host)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if votes[candidates[i]] != votes[candidates[j]] {
			return votes[candidates[i]] > votes[candidates[j]]
		}
		return order[candidates[i]] < order[candidates[j]]
	})

	for _, host := range candidates {
		if ctx.Err() != nil {
			return ""
		}
		if dnsx.HasMX(ctx, r.dns, host) {
			return host
		}
		zap.L().Debug("candidate rejected, no MX records", zap.String("domain", host))
	}
	return ""
}

// resolveByGuess tries the normalized company slug against a fixed TLD
// list and keeps the first variant that carries MX records.
func (r *Resolver) resolveByGuess(ctx context.Context, company string) string {
	slug := normalize.CompanySlug(company)
	if slug == "" {
		return ""
	}
	for _, tld := range r.tlds {
		if ctx.Err() != nil {
			return ""
		}
		guess := slug + tld
		if dnsx.HasMX(ctx, r.dns, guess) {
			return guess
		}
	}
	return ""
}

// candidateDomain extracts a registrable-looking domain from a result
// URL, dropping aggregator hosts and bare IPs.
func candidateDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	if !strings.Contains(host, ".") {
		return ""
	}
	if _, ignored := ignoredHosts[host]; ignored {
		return ""
	}

	// Aggregators also show up under country subdomains (fr.linkedin.com).
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		apex := strings.Join(parts[len(parts)-2:], ".")
		if _, ignored := ignoredHosts[apex]; ignored {
			return ""
		}
	}
	return host
}
