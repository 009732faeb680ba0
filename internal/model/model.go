// Package model defines the record types shared across the discovery, outbox
// and dispatch components.
package model

import "time"

// Prospect is a person to contact, imported from a spreadsheet. Immutable
// once imported; the pipeline only reads it.
type Prospect struct {
	ID         string    `json:"id"`
	Firstname  string    `json:"firstname"`
	Lastname   string    `json:"lastname"`
	Company    string    `json:"company"`
	CompanyKey string    `json:"company_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is the prepared content for one company. Immutable.
type Message struct {
	ID         string    `json:"id"`
	Company    string    `json:"company"`
	CompanyKey string    `json:"company_key"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// SuggestionStatus tells whether discovery produced an address for a prospect.
type SuggestionStatus string

const (
	SuggestionFound    SuggestionStatus = "FOUND"
	SuggestionNotFound SuggestionStatus = "NOT_FOUND"
)

// EmailSuggestion is the discovery output for one prospect: the generated
// address plus everything needed to judge it.
type EmailSuggestion struct {
	ID         string           `json:"id"`
	ProspectID string           `json:"prospect_id"`
	Domain     string           `json:"domain"`
	Pattern    string           `json:"pattern"`
	Email      string           `json:"email"`
	Confidence float64          `json:"confidence"`
	Status     SuggestionStatus `json:"status"`
	// DebugNotes records why this pattern/domain was chosen, including
	// whether the result rests on evidence or on the fallback.
	DebugNotes string    `json:"debug_notes"`
	CreatedAt  time.Time `json:"created_at"`
}

// SuggestionWithProspect is a suggestion joined with its prospect, as the
// outbox builder and exporter consume it.
type SuggestionWithProspect struct {
	EmailSuggestion
	Firstname  string `json:"firstname"`
	Lastname   string `json:"lastname"`
	Company    string `json:"company"`
	CompanyKey string `json:"company_key"`
}

// ResolutionMethod tags how a domain was resolved.
type ResolutionMethod string

const (
	MethodSearch ResolutionMethod = "search"
	MethodGuess  ResolutionMethod = "guess"
)

// DomainCacheEntry memoizes a successful domain resolution. Not a source of
// truth: re-resolution may overwrite it.
type DomainCacheEntry struct {
	CompanyKey string           `json:"company_key"`
	Domain     string           `json:"domain"`
	Method     ResolutionMethod `json:"method"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// PatternCacheEntry memoizes a pattern inference for a company.
type PatternCacheEntry struct {
	CompanyKey string    `json:"company_key"`
	Pattern    string    `json:"pattern"`
	EmailCount int       `json:"email_count"`
	Confidence float64   `json:"confidence"`
	Notes      string    `json:"notes"`
	InferredAt time.Time `json:"inferred_at"`
}

// OutboxRecord is the dispatch unit: one prospect, one address, one message.
// At most one record exists per (prospect, email) pair.
type OutboxRecord struct {
	ID           string       `json:"id"`
	ProspectID   string       `json:"prospect_id"`
	Company      string       `json:"company"`
	CompanyKey   string       `json:"company_key"`
	Email        string       `json:"email"`
	Firstname    string       `json:"firstname"`
	Lastname     string       `json:"lastname"`
	Subject      string       `json:"subject"`
	Body         string       `json:"body"`
	Status       OutboxStatus `json:"status"`
	SentAt       *time.Time   `json:"sent_at,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
