// Package outbox materializes send-ready records by joining email
// suggestions with their company message, validating each pair and
// deduplicating against earlier runs.
package outbox

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/store"
)

// Validation failure reasons stored on ERROR records.
const (
	ReasonEmailNotFound   = "EMAIL_NOT_FOUND"
	ReasonInvalidEmail    = "INVALID_EMAIL"
	ReasonMessageNotFound = "MESSAGE_NOT_FOUND"
	ReasonEmptySubject    = "EMPTY_SUBJECT"
	ReasonEmptyBody       = "EMPTY_BODY"
	ReasonDuplicateEmail  = "DUPLICATE_EMAIL"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Store is the persistence surface the builder needs.
type Store interface {
	ListSuggestions(ctx context.Context) ([]model.SuggestionWithProspect, error)
	ListMessages(ctx context.Context) ([]model.Message, error)
	ListOutbox(ctx context.Context, filter store.OutboxFilter) ([]model.OutboxRecord, error)
	CreateOutboxRecord(ctx context.Context, r model.OutboxRecord) (*model.OutboxRecord, error)
}

// BuildStats summarizes a build run.
type BuildStats struct {
	Ready   int
	Errored int
	Skipped int
}

// Builder creates outbox records from suggestions and messages.
type Builder struct {
	store Store
}

// NewBuilder creates a Builder.
func NewBuilder(s Store) *Builder {
	return &Builder{store: s}
}

// Build walks all suggestions in confidence order and writes one outbox
// record per new (prospect, email) pair: READY when the pair validates,
// ERROR with a reason otherwise. Pairs already in the outbox from
// earlier runs are skipped, so rebuilding never duplicates sends.
func (b *Builder) Build(ctx context.Context) (*BuildStats, error) {
	suggestions, err := b.store.ListSuggestions(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := b.store.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := b.store.ListOutbox(ctx, store.OutboxFilter{})
	if err != nil {
		return nil, err
	}

	messageByKey := make(map[string]model.Message)
	for _, m := range messages {
		if _, ok := messageByKey[m.CompanyKey]; !ok {
			messageByKey[m.CompanyKey] = m
		}
	}

	seenPairs := make(map[string]struct{}, len(existing))
	emailOwner := make(map[string]string)
	for _, rec := range existing {
		seenPairs[pairKey(rec.ProspectID, rec.Email)] = struct{}{}
		if rec.Email != "" {
			if _, ok := emailOwner[rec.Email]; !ok {
				emailOwner[rec.Email] = rec.ProspectID
			}
		}
	}

	stats := &BuildStats{}
	for _, sugg := range suggestions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, ok := seenPairs[pairKey(sugg.ProspectID, sugg.Email)]; ok {
			stats.Skipped++
			continue
		}

		rec := model.OutboxRecord{
			ProspectID: sugg.ProspectID,
			Company:    sugg.Company,
			CompanyKey: sugg.CompanyKey,
			Email:      sugg.Email,
			Firstname:  sugg.Firstname,
			Lastname:   sugg.Lastname,
			Status:     model.StatusReady,
		}

		msg, hasMessage := messageByKey[sugg.CompanyKey]
		if hasMessage {
			rec.Subject = msg.Subject
			rec.Body = msg.Body
		}

		if reason := b.validate(sugg, hasMessage, msg, emailOwner); reason != "" {
			rec.Status = model.StatusError
			rec.ErrorMessage = reason
			stats.Errored++
		} else {
			emailOwner[sugg.Email] = sugg.ProspectID
			stats.Ready++
		}

		if _, err := b.store.CreateOutboxRecord(ctx, rec); err != nil {
			return stats, err
		}
		seenPairs[pairKey(sugg.ProspectID, sugg.Email)] = struct{}{}
	}

	zap.L().Info("outbox built",
		zap.Int("ready", stats.Ready),
		zap.Int("errored", stats.Errored),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func (b *Builder) validate(sugg model.SuggestionWithProspect, hasMessage bool, msg model.Message, emailOwner map[string]string) string {
	if sugg.Status != model.SuggestionFound || sugg.Email == "" {
		return ReasonEmailNotFound
	}
	if !emailRe.MatchString(sugg.Email) {
		return ReasonInvalidEmail
	}
	if owner, taken := emailOwner[sugg.Email]; taken && owner != sugg.ProspectID {
		return ReasonDuplicateEmail
	}
	if !hasMessage {
		return ReasonMessageNotFound
	}
	if msg.Subject == "" {
		return ReasonEmptySubject
	}
	if msg.Body == "" {
		return ReasonEmptyBody
	}
	return ""
}

func pairKey(prospectID, email string) string {
	return prospectID + "\x00" + email
}
