package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustProspect(t *testing.T, s *SQLiteStore, firstname, lastname, company, key string) *model.Prospect {
	t.Helper()
	p, err := s.CreateProspect(context.Background(), model.Prospect{
		Firstname:  firstname,
		Lastname:   lastname,
		Company:    company,
		CompanyKey: key,
	})
	require.NoError(t, err)
	return p
}

func TestCreateAndListProspects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProspect(t, s, "Jean", "Dupont", "Acme SAS", "acme")
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	mustProspect(t, s, "Marie", "Curie", "Acme SAS", "acme")

	list, err := s.ListProspects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Jean", list[0].Firstname)
	assert.Equal(t, "acme", list[0].CompanyKey)
}

func TestListProspectsWithoutSuggestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	p2 := mustProspect(t, s, "Marie", "Curie", "Beta", "beta")
	p3 := mustProspect(t, s, "Paul", "Martin", "Gamma", "gamma")

	_, err := s.UpsertSuggestion(ctx, model.EmailSuggestion{
		ProspectID: p1.ID,
		Domain:     "acme.fr",
		Pattern:    "first.last",
		Email:      "jean.dupont@acme.fr",
		Confidence: 0.9,
		Status:     model.SuggestionFound,
	})
	require.NoError(t, err)

	pending, err := s.ListProspectsWithoutSuggestion(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, p2.ID, pending[0].ID)
	assert.Equal(t, p3.ID, pending[1].ID)

	limited, err := s.ListProspectsWithoutSuggestion(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, p2.ID, limited[0].ID)
}

func TestUpsertSuggestionReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")

	_, err := s.UpsertSuggestion(ctx, model.EmailSuggestion{
		ProspectID: p.ID,
		Status:     model.SuggestionNotFound,
		DebugNotes: "domain unresolved",
	})
	require.NoError(t, err)

	_, err = s.UpsertSuggestion(ctx, model.EmailSuggestion{
		ProspectID: p.ID,
		Domain:     "acme.fr",
		Pattern:    "first.last",
		Email:      "jean.dupont@acme.fr",
		Confidence: 0.85,
		Status:     model.SuggestionFound,
	})
	require.NoError(t, err)

	list, err := s.ListSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "jean.dupont@acme.fr", list[0].Email)
	assert.Equal(t, model.SuggestionFound, list[0].Status)
	assert.Equal(t, "Jean", list[0].Firstname)
	assert.Equal(t, "Acme", list[0].Company)
}

func TestListSuggestionsOrderedByConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustProspect(t, s, "A", "A", "Acme", "acme")
	p2 := mustProspect(t, s, "B", "B", "Beta", "beta")

	_, err := s.UpsertSuggestion(ctx, model.EmailSuggestion{ProspectID: p1.ID, Confidence: 0.2, Status: model.SuggestionFound})
	require.NoError(t, err)
	_, err = s.UpsertSuggestion(ctx, model.EmailSuggestion{ProspectID: p2.ID, Confidence: 0.9, Status: model.SuggestionFound})
	require.NoError(t, err)

	list, err := s.ListSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p2.ID, list[0].ProspectID)
}

func outboxFixture(prospectID string) model.OutboxRecord {
	return model.OutboxRecord{
		ProspectID: prospectID,
		Company:    "Acme",
		CompanyKey: "acme",
		Email:      "jean.dupont@acme.fr",
		Firstname:  "Jean",
		Lastname:   "Dupont",
		Subject:    "Bonjour",
		Body:       "Hello.",
		Status:     model.StatusReady,
	}
}

func TestOutboxUniquePerProspectEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	_, err := s.CreateOutboxRecord(ctx, outboxFixture(p.ID))
	require.NoError(t, err)

	_, err = s.CreateOutboxRecord(ctx, outboxFixture(p.ID))
	assert.Error(t, err)
}

func TestUpdateOutboxStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	rec, err := s.CreateOutboxRecord(ctx, outboxFixture(p.ID))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.UpdateOutboxStatus(ctx, rec.ID, model.StatusSent, "", &now))

	list, err := s.ListOutbox(ctx, OutboxFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusSent, list[0].Status)
	require.NotNil(t, list[0].SentAt)

	require.NoError(t, s.UpdateOutboxStatus(ctx, rec.ID, model.StatusBounced, "5.2.2 mailbox full", nil))

	err = s.UpdateOutboxStatus(ctx, rec.ID, model.StatusSent, "", nil)
	assert.Error(t, err)
}

func TestUpdateOutboxStatusRejectsErrorToSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	rec, err := s.CreateOutboxRecord(ctx, outboxFixture(p.ID))
	require.NoError(t, err)

	require.NoError(t, s.UpdateOutboxStatus(ctx, rec.ID, model.StatusError, "SEND_FAILED: timeout", nil))

	err = s.UpdateOutboxStatus(ctx, rec.ID, model.StatusSent, "", nil)
	assert.Error(t, err)

	list, err := s.ListOutbox(ctx, OutboxFilter{Status: model.StatusError})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SEND_FAILED: timeout", list[0].ErrorMessage)
}

func TestListOutboxFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	p2 := mustProspect(t, s, "Marie", "Curie", "Beta Corp", "beta corp")

	r1 := outboxFixture(p1.ID)
	_, err := s.CreateOutboxRecord(ctx, r1)
	require.NoError(t, err)

	r2 := outboxFixture(p2.ID)
	r2.Company = "Beta Corp"
	r2.CompanyKey = "beta corp"
	r2.Email = "marie.curie@beta.fr"
	r2.Status = model.StatusError
	r2.ErrorMessage = "EMAIL_NOT_FOUND"
	_, err = s.CreateOutboxRecord(ctx, r2)
	require.NoError(t, err)

	ready, err := s.ListOutbox(ctx, OutboxFilter{Status: model.StatusReady})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, p1.ID, ready[0].ProspectID)

	byCompany, err := s.ListOutbox(ctx, OutboxFilter{Search: "beta"})
	require.NoError(t, err)
	require.Len(t, byCompany, 1)
	assert.Equal(t, "marie.curie@beta.fr", byCompany[0].Email)

	all, err := s.ListOutbox(ctx, OutboxFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindSentByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	rec, err := s.CreateOutboxRecord(ctx, outboxFixture(p.ID))
	require.NoError(t, err)

	found, err := s.FindSentByEmail(ctx, "jean.dupont@acme.fr")
	require.NoError(t, err)
	assert.Nil(t, found, "READY records should not match")

	now := time.Now().UTC()
	require.NoError(t, s.UpdateOutboxStatus(ctx, rec.ID, model.StatusSent, "", &now))

	found, err = s.FindSentByEmail(ctx, "jean.dupont@acme.fr")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.ID, found.ID)

	missing, err := s.FindSentByEmail(ctx, "nobody@acme.fr")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCountOutboxByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustProspect(t, s, "Jean", "Dupont", "Acme", "acme")
	p2 := mustProspect(t, s, "Marie", "Curie", "Beta", "beta")

	_, err := s.CreateOutboxRecord(ctx, outboxFixture(p1.ID))
	require.NoError(t, err)

	r2 := outboxFixture(p2.ID)
	r2.Email = "marie.curie@beta.fr"
	rec2, err := s.CreateOutboxRecord(ctx, r2)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.UpdateOutboxStatus(ctx, rec2.ID, model.StatusSent, "", &now))

	counts, err := s.CountOutboxByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusReady])
	assert.Equal(t, 1, counts[model.StatusSent])
	assert.Equal(t, 0, counts[model.StatusBounced])
}

func TestDomainCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetDomainCache(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetDomainCache(ctx, model.DomainCacheEntry{
		CompanyKey: "acme",
		Domain:     "acme.fr",
		Method:     model.MethodSearch,
	}))

	got, err = s.GetDomainCache(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme.fr", got.Domain)
	assert.Equal(t, model.MethodSearch, got.Method)
	assert.False(t, got.ResolvedAt.IsZero())

	require.NoError(t, s.SetDomainCache(ctx, model.DomainCacheEntry{
		CompanyKey: "acme",
		Domain:     "acme.com",
		Method:     model.MethodGuess,
	}))

	got, err = s.GetDomainCache(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme.com", got.Domain)

	require.NoError(t, s.DeleteDomainCache(ctx, "acme"))
	got, err = s.GetDomainCache(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPatternCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetPatternCache(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetPatternCache(ctx, model.PatternCacheEntry{
		CompanyKey: "acme",
		Pattern:    "first.last",
		EmailCount: 4,
		Confidence: 0.9,
	}))

	got, err = s.GetPatternCache(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first.last", got.Pattern)
	assert.Equal(t, 4, got.EmailCount)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	require.NoError(t, s.DeletePatternCache(ctx, "acme"))
	got, err = s.GetPatternCache(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBounceSeenSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen, err := s.HasSeenBounce(ctx, "imap-42")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkBounceSeen(ctx, "imap-42"))
	require.NoError(t, s.MarkBounceSeen(ctx, "imap-42"))

	seen, err = s.HasSeenBounce(ctx, "imap-42")
	require.NoError(t, err)
	assert.True(t, seen)

	n, err := s.CountSeenBounces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
