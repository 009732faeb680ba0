// Package store persists prospects, messages, suggestions, the outbox, the
// resolution caches and the bounce seen-set. Two backends are provided:
// SQLite (default, single file) and Postgres.
package store

import (
	"context"
	"time"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

// OutboxFilter specifies criteria for listing outbox records.
type OutboxFilter struct {
	Status model.OutboxStatus `json:"status,omitempty"`
	Search string             `json:"search,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// Store defines the persistence interface for the campaign pipeline.
type Store interface {
	// Prospects and messages (imported, read-only to the pipeline)
	CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error)
	ListProspects(ctx context.Context) ([]model.Prospect, error)
	ListProspectsWithoutSuggestion(ctx context.Context, limit int) ([]model.Prospect, error)
	CreateMessage(ctx context.Context, m model.Message) (*model.Message, error)
	ListMessages(ctx context.Context) ([]model.Message, error)

	// Suggestions (one per prospect, overwritten on re-discovery)
	UpsertSuggestion(ctx context.Context, s model.EmailSuggestion) (*model.EmailSuggestion, error)
	ListSuggestions(ctx context.Context) ([]model.SuggestionWithProspect, error)

	// Outbox
	CreateOutboxRecord(ctx context.Context, r model.OutboxRecord) (*model.OutboxRecord, error)
	ListOutbox(ctx context.Context, filter OutboxFilter) ([]model.OutboxRecord, error)
	// UpdateOutboxStatus enforces the status lifecycle: illegal transitions
	// return an error and leave the record untouched.
	UpdateOutboxStatus(ctx context.Context, id string, status model.OutboxStatus, errorMessage string, sentAt *time.Time) error
	FindSentByEmail(ctx context.Context, email string) (*model.OutboxRecord, error)
	CountOutboxByStatus(ctx context.Context) (map[model.OutboxStatus]int, error)

	// Domain resolution cache
	GetDomainCache(ctx context.Context, companyKey string) (*model.DomainCacheEntry, error)
	SetDomainCache(ctx context.Context, e model.DomainCacheEntry) error
	DeleteDomainCache(ctx context.Context, companyKey string) error

	// Pattern inference cache
	GetPatternCache(ctx context.Context, companyKey string) (*model.PatternCacheEntry, error)
	SetPatternCache(ctx context.Context, e model.PatternCacheEntry) error
	DeletePatternCache(ctx context.Context, companyKey string) error

	// Bounce seen-set
	HasSeenBounce(ctx context.Context, uid string) (bool, error)
	MarkBounceSeen(ctx context.Context, uid string) error
	CountSeenBounces(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
