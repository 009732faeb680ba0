// Package discovery performs a bounded crawl of a company site to
// collect email addresses published on its own domain.
package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a page is read. Contact pages are small
// and addresses show up early.
const maxBodyBytes = 512 * 1024

// crawlPaths are the only paths fetched. The crawl never follows links.
var crawlPaths = []string{
	"",
	"contact",
	"contactez-nous",
	"equipe",
	"team",
	"about",
	"a-propos",
	"mentions-legales",
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Found is one address discovered on the site.
type Found struct {
	Email     string
	SourceURL string
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Discoverer) {
		d.http = hc
	}
}

// WithScheme overrides the URL scheme (for testing).
func WithScheme(scheme string) Option {
	return func(d *Discoverer) {
		d.scheme = scheme
	}
}

// WithHosts overrides the host variants tried for a domain (for testing).
func WithHosts(hosts func(domain string) []string) Option {
	return func(d *Discoverer) {
		d.hosts = hosts
	}
}

// Discoverer crawls a fixed set of pages per domain, rate limited and
// capped at maxPages requests.
type Discoverer struct {
	http     *http.Client
	limiter  *rate.Limiter
	maxPages int
	scheme   string
	hosts    func(domain string) []string
}

// New creates a Discoverer. rps bounds the request rate per run and
// maxPages the total pages fetched per domain.
func New(maxPages int, timeout time.Duration, rps float64, opts ...Option) *Discoverer {
	d := &Discoverer{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		maxPages: maxPages,
		scheme:   "https",
		hosts: func(domain string) []string {
			return []string{domain, "www." + domain}
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches the crawl paths on the domain and its www variant
// and returns the addresses found at that domain, deduplicated. Page
// fetch failures are skipped; only context cancellation aborts the run.
func (d *Discoverer) Discover(ctx context.Context, domain string) ([]Found, error) {
	seen := make(map[string]Found)
	fetched := 0

	for _, host := range d.hosts(domain) {
		for _, path := range crawlPaths {
			if fetched >= d.maxPages {
				break
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			pageURL := fmt.Sprintf("%s://%s/%s", d.scheme, host, path)
			fetched++

			body, err := d.fetch(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				zap.L().Debug("page fetch failed",
					zap.String("url", pageURL),
					zap.Error(err))
				continue
			}

			for _, email := range extractEmails(body, domain) {
				if _, ok := seen[email]; !ok {
					seen[email] = Found{Email: email, SourceURL: pageURL}
				}
			}
		}
	}

	found := make([]Found, 0, len(seen))
	for _, f := range seen {
		found = append(found, f)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Email < found[j].Email })

	zap.L().Debug("discovery finished",
		zap.String("domain", domain),
		zap.Int("pages", fetched),
		zap.Int("emails", len(found)))
	return found, nil
}

func (d *Discoverer) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; b2bcamp/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractEmails returns addresses in the page that belong to the
// crawled domain. Addresses at other domains, including subdomains,
// are dropped.
func extractEmails(page, domain string) []string {
	suffix := "@" + strings.ToLower(domain)
	var out []string
	for _, match := range emailRe.FindAllString(page, -1) {
		email := strings.ToLower(match)
		if strings.HasSuffix(email, suffix) {
			out = append(out, email)
		}
	}
	return out
}
