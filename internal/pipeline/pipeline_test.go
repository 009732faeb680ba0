package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rabiegha/b2b-email-campaign/internal/discovery"
	"github.com/Rabiegha/b2b-email-campaign/internal/domain"
	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/pattern"
	"github.com/Rabiegha/b2b-email-campaign/internal/verify"
)

type fakePipelineStore struct {
	mu          sync.Mutex
	prospects   []model.Prospect
	suggestions map[string]model.EmailSuggestion
}

func newFakePipelineStore(prospects ...model.Prospect) *fakePipelineStore {
	return &fakePipelineStore{
		prospects:   prospects,
		suggestions: make(map[string]model.EmailSuggestion),
	}
}

func (f *fakePipelineStore) ListProspects(_ context.Context) ([]model.Prospect, error) {
	return f.prospects, nil
}

func (f *fakePipelineStore) ListProspectsWithoutSuggestion(_ context.Context, limit int) ([]model.Prospect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []model.Prospect
	for _, p := range f.prospects {
		if _, ok := f.suggestions[p.ID]; ok {
			continue
		}
		pending = append(pending, p)
	}
	if limit > 0 && limit < len(pending) {
		return pending[:limit], nil
	}
	return pending, nil
}

func (f *fakePipelineStore) UpsertSuggestion(_ context.Context, s model.EmailSuggestion) (*model.EmailSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions[s.ProspectID] = s
	return &s, nil
}

type fakeResolver struct {
	domains map[string]string
	errs    map[string]error
}

func (f *fakeResolver) Resolve(_ context.Context, company string) (domain.Resolution, error) {
	if err := f.errs[company]; err != nil {
		return domain.Resolution{}, err
	}
	d, ok := f.domains[company]
	if !ok {
		return domain.Resolution{}, nil
	}
	return domain.Resolution{Domain: d, Method: model.MethodSearch, Resolved: true}, nil
}

type fakeDiscoverer struct {
	emails map[string][]string
}

func (f *fakeDiscoverer) Discover(_ context.Context, d string) ([]discovery.Found, error) {
	var out []discovery.Found
	for _, e := range f.emails[d] {
		out = append(out, discovery.Found{Email: e})
	}
	return out, nil
}

type passthroughInferencer struct{}

func (passthroughInferencer) Infer(_ context.Context, _ string, ev pattern.Evidence) (pattern.Inference, error) {
	return pattern.Infer(ev), nil
}

type fakeVerifier struct {
	rejected map[string]bool
}

func (f *fakeVerifier) Verify(_ context.Context, firstname, lastname, d string, p pattern.Pattern, conf float64) verify.Result {
	email := p.Address(firstname, lastname, d)
	res := verify.Result{Email: email, Pattern: p, Status: verify.StatusUnverified, Confidence: conf}
	if f.rejected[email] {
		res.Status = verify.StatusRejected
		res.Confidence = 0.05
	}
	return res
}

func prospectFixture(id, firstname, lastname, company, key string) model.Prospect {
	return model.Prospect{ID: id, Firstname: firstname, Lastname: lastname, Company: company, CompanyKey: key}
}

func TestRun_SuggestsEmailsPerCompany(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Acme", "acme"),
		prospectFixture("p2", "Marie", "Curie", "Acme", "acme"),
		prospectFixture("p3", "Paul", "Martin", "Beta", "beta"),
	)

	p := New(Config{
		Store:    store,
		Resolver: &fakeResolver{domains: map[string]string{"Acme": "acme.fr", "Beta": "beta.com"}},
		Discoverer: &fakeDiscoverer{emails: map[string][]string{
			"acme.fr":  {"pierre.durand@acme.fr", "claire.moreau@acme.fr", "luc.petit@acme.fr"},
			"beta.com": {},
		}},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 2,
	})

	stats, err := p.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Companies)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, 3, stats.Found)
	assert.Zero(t, stats.Failed)

	s1 := store.suggestions["p1"]
	assert.Equal(t, "jean.dupont@acme.fr", s1.Email)
	assert.Equal(t, model.SuggestionFound, s1.Status)
	assert.GreaterOrEqual(t, s1.Confidence, 0.8)

	// No evidence for beta.com, so the fallback pattern applies.
	s3 := store.suggestions["p3"]
	assert.Equal(t, "paul.martin@beta.com", s3.Email)
	assert.InDelta(t, pattern.FallbackConfidence, s3.Confidence, 1e-9)
}

func TestRun_SkipsProspectsWithSuggestion(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Acme", "acme"),
		prospectFixture("p2", "Marie", "Curie", "Acme", "acme"),
	)
	store.suggestions["p1"] = model.EmailSuggestion{
		ProspectID: "p1",
		Email:      "jean.dupont@acme.fr",
		Status:     model.SuggestionFound,
	}

	p := New(Config{
		Store:      store,
		Resolver:   &fakeResolver{domains: map[string]string{"Acme": "acme.fr"}},
		Discoverer: &fakeDiscoverer{},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 1,
	})

	stats, err := p.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Found)
	assert.Equal(t, "jean.dupont@acme.fr", store.suggestions["p1"].Email, "existing suggestion untouched")
	assert.Contains(t, store.suggestions, "p2")
}

func TestRun_ForceRecomputesExistingSuggestions(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Acme", "acme"),
	)
	store.suggestions["p1"] = model.EmailSuggestion{
		ProspectID: "p1",
		Status:     model.SuggestionNotFound,
		DebugNotes: "domain unresolved",
	}

	p := New(Config{
		Store:      store,
		Resolver:   &fakeResolver{domains: map[string]string{"Acme": "acme.fr"}},
		Discoverer: &fakeDiscoverer{emails: map[string][]string{
			"acme.fr": {"pierre.durand@acme.fr", "claire.moreau@acme.fr", "luc.petit@acme.fr"},
		}},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 1,
		Force:      true,
	})

	stats, err := p.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Companies)
	assert.Equal(t, 1, stats.Found)

	s := store.suggestions["p1"]
	assert.Equal(t, model.SuggestionFound, s.Status)
	assert.Equal(t, "jean.dupont@acme.fr", s.Email)
}

func TestRun_ForceAppliesLimit(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Acme", "acme"),
		prospectFixture("p2", "Marie", "Curie", "Beta", "beta"),
	)
	store.suggestions["p1"] = model.EmailSuggestion{ProspectID: "p1", Status: model.SuggestionNotFound}

	p := New(Config{
		Store:      store,
		Resolver:   &fakeResolver{domains: map[string]string{"Acme": "acme.fr", "Beta": "beta.com"}},
		Discoverer: &fakeDiscoverer{},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 1,
		Force:      true,
	})

	stats, err := p.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Companies)
	assert.Equal(t, model.SuggestionFound, store.suggestions["p1"].Status)
	assert.NotContains(t, store.suggestions, "p2")
}

func TestRun_UnresolvedCompanyMarksProspects(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Ghost", "ghost"),
	)

	p := New(Config{
		Store:      store,
		Resolver:   &fakeResolver{},
		Discoverer: &fakeDiscoverer{},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 1,
	})

	stats, err := p.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 1, stats.NotFound)

	s := store.suggestions["p1"]
	assert.Equal(t, model.SuggestionNotFound, s.Status)
	assert.Equal(t, "domain unresolved", s.DebugNotes)
	assert.Empty(t, s.Email)
}

func TestRun_CompanyFailureIsIsolated(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Broken", "broken"),
		prospectFixture("p2", "Marie", "Curie", "Acme", "acme"),
	)

	p := New(Config{
		Store: store,
		Resolver: &fakeResolver{
			domains: map[string]string{"Acme": "acme.fr"},
			errs:    map[string]error{"Broken": eris.New("search exploded")},
		},
		Discoverer: &fakeDiscoverer{},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 1,
	})

	stats, err := p.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Resolved)
	assert.Contains(t, store.suggestions, "p2")
	assert.NotContains(t, store.suggestions, "p1")
}

func TestRun_RejectedCandidateBecomesNotFound(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Acme", "acme"),
	)

	p := New(Config{
		Store:      store,
		Resolver:   &fakeResolver{domains: map[string]string{"Acme": "acme.fr"}},
		Discoverer: &fakeDiscoverer{},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{rejected: map[string]bool{"jean.dupont@acme.fr": true}},
		MaxWorkers: 1,
	})

	stats, err := p.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NotFound)
	assert.Zero(t, stats.Found)
	assert.Equal(t, model.SuggestionNotFound, store.suggestions["p1"].Status)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	store := newFakePipelineStore(
		prospectFixture("p1", "Jean", "Dupont", "Acme", "acme"),
	)

	p := New(Config{
		Store:      store,
		Resolver:   &fakeResolver{domains: map[string]string{"Acme": "acme.fr"}},
		Discoverer: &fakeDiscoverer{},
		Inferencer: passthroughInferencer{},
		Verifier:   &fakeVerifier{},
		MaxWorkers: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, 0)
	assert.Error(t, err)
}

func TestGroupByCompany(t *testing.T) {
	t.Parallel()

	batches := groupByCompany([]model.Prospect{
		prospectFixture("p1", "A", "A", "Acme", "acme"),
		prospectFixture("p2", "B", "B", "Beta", "beta"),
		prospectFixture("p3", "C", "C", "ACME SAS", "acme"),
	})

	require.Len(t, batches, 2)
	assert.Equal(t, "acme", batches[0].key)
	assert.Len(t, batches[0].prospects, 2)
	assert.Equal(t, "beta", batches[1].key)
}
