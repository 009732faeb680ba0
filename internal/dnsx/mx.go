// Package dnsx wraps MX lookups behind a small interface so domain
// resolution and SMTP probing can be tested without the network.
package dnsx

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// MXResolver abstracts DNS MX lookups so they can be replaced in tests.
type MXResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// Resolver implements MXResolver using the standard resolver with a
// per-lookup timeout.
type Resolver struct {
	r       *net.Resolver
	timeout time.Duration
}

// New creates a Resolver. A non-positive timeout defaults to 5s.
func New(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{r: net.DefaultResolver, timeout: timeout}
}

func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, eris.New("dnsx: domain is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.r.LookupMX(ctx, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "dnsx: lookup mx %s", domain)
	}
	return records, nil
}

// HasMX reports whether the domain publishes at least one usable MX record.
// Lookup failures count as no: the caller treats this as a plausibility
// check, not an error source.
func HasMX(ctx context.Context, r MXResolver, domain string) bool {
	records, err := r.LookupMX(ctx, domain)
	if err != nil {
		return false
	}
	for _, mx := range records {
		if strings.Trim(mx.Host, ".") != "" {
			return true
		}
	}
	return false
}

// PrimaryMX returns the lowest-preference MX host for a domain, with the
// trailing dot trimmed.
func PrimaryMX(ctx context.Context, r MXResolver, domain string) (string, error) {
	records, err := r.LookupMX(ctx, domain)
	if err != nil {
		return "", err
	}
	hosts := preferredHosts(records)
	if len(hosts) == 0 {
		return "", eris.Errorf("dnsx: no mx records for %s", domain)
	}
	return hosts[0], nil
}

// preferredHosts sorts MX records by preference and returns cleaned hosts.
func preferredHosts(records []*net.MX) []string {
	sorted := make([]*net.MX, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pref < sorted[j].Pref })

	var hosts []string
	for _, mx := range sorted {
		host := strings.Trim(mx.Host, ".")
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts
}
