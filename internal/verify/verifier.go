// Package verify grades candidate addresses built from an inferred
// pattern, using an external verification API and an SMTP probe.
package verify

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/pattern"
	"github.com/Rabiegha/b2b-email-campaign/internal/resilience"
	"github.com/Rabiegha/b2b-email-campaign/pkg/hunter"
)

// Status grades a candidate address.
type Status string

const (
	// StatusVerified means an external verifier reported the address
	// deliverable.
	StatusVerified Status = "VERIFIED"
	// StatusUnverified means no check disproved the address but none
	// confirmed it either.
	StatusUnverified Status = "UNVERIFIED"
	// StatusRejected means a check reported the address undeliverable.
	StatusRejected Status = "REJECTED"
)

// Result is a graded candidate address.
type Result struct {
	Email      string
	Pattern    pattern.Pattern
	Status     Status
	Confidence float64
	Notes      string
}

// Verifier grades candidates. Both the API client and the prober are
// optional; with neither, candidates stay at the pattern confidence.
type Verifier struct {
	hunter hunter.Client
	prober Prober
}

// New creates a Verifier. Pass nil for checks that are not configured.
func New(hunterClient hunter.Client, prober Prober) *Verifier {
	return &Verifier{hunter: hunterClient, prober: prober}
}

// Verify builds the candidate address for a person from the inferred
// pattern and grades it. patternConfidence seeds the final confidence.
func (v *Verifier) Verify(ctx context.Context, firstname, lastname, domain string, p pattern.Pattern, patternConfidence float64) Result {
	res := Result{
		Email:      p.Address(firstname, lastname, domain),
		Pattern:    p,
		Status:     StatusUnverified,
		Confidence: patternConfidence,
	}
	var notes []string

	if v.hunter != nil {
		cfg := resilience.DefaultRetryConfig()
		cfg.OnRetry = resilience.RetryLogger("hunter", "verify_email")
		data, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*hunter.VerifyData, error) {
			return v.hunter.VerifyEmail(ctx, res.Email)
		})
		switch {
		case err != nil:
			zap.L().Warn("email verification api failed",
				zap.String("email", res.Email),
				zap.Error(err))
			notes = append(notes, "verification api unavailable")
		case data.Result == hunter.ResultDeliverable:
			res.Status = StatusVerified
			res.Confidence = math.Min(0.95, math.Max(0.85, res.Confidence+0.1))
			notes = append(notes, "verification api: deliverable")
		case data.Result == hunter.ResultUndeliverable:
			res.Status = StatusRejected
			res.Confidence = 0.05
			notes = append(notes, "verification api: undeliverable")
		default:
			notes = append(notes, "verification api: "+data.Result)
		}
	}

	if res.Status == StatusUnverified && v.prober != nil {
		if v.prober.CatchAll(ctx, domain) {
			notes = append(notes, "domain accepts any recipient, probe not conclusive")
		} else {
			switch v.prober.Check(ctx, res.Email) {
			case ProbeAccepted:
				res.Confidence = math.Max(res.Confidence, 0.6)
				notes = append(notes, "recipient accepted by mail server")
			case ProbeRejected:
				res.Status = StatusRejected
				res.Confidence = 0.05
				notes = append(notes, "recipient rejected by mail server")
			case ProbeUnknown:
				notes = append(notes, "smtp probe inconclusive")
			}
		}
	}

	res.Notes = strings.Join(notes, "; ")
	return res
}
