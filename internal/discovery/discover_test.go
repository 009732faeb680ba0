package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDiscoverer(t *testing.T, maxPages int, handler http.Handler) (*Discoverer, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	d := New(maxPages, 5*time.Second, 1000,
		WithScheme("http"),
		WithHosts(func(string) []string { return []string{u.Host} }),
	)
	return d, u.Host
}

func TestDiscover_CollectsSameDomainEmails(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p>Bienvenue chez Acme.</p>`))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`
			<a href="mailto:Jean.Dupont@acme.fr">Jean</a>
			<p>commercial@acme.fr ou partner@other.com</p>
			<p>ops@mail.acme.fr</p>`))
	})
	mux.HandleFunc("/equipe", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p>marie.curie@acme.fr et jean.dupont@acme.fr</p>`))
	})

	d, host := testDiscoverer(t, 10, mux)
	found, err := d.Discover(context.Background(), "acme.fr")

	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "commercial@acme.fr", found[0].Email)
	assert.Equal(t, "jean.dupont@acme.fr", found[1].Email)
	assert.Equal(t, "marie.curie@acme.fr", found[2].Email)
	assert.Equal(t, "http://"+host+"/contact", found[1].SourceURL)
}

func TestDiscover_RespectsPageCap(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`nothing here`))
	})

	d, _ := testDiscoverer(t, 3, handler)
	found, err := d.Discover(context.Background(), "acme.fr")

	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, int32(3), requests.Load())
}

func TestDiscover_SkipsFailedPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`contact@acme.fr`))
	})

	d, _ := testDiscoverer(t, 10, mux)
	found, err := d.Discover(context.Background(), "acme.fr")

	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "contact@acme.fr", found[0].Email)
}

func TestDiscover_CancelledContext(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`contact@acme.fr`))
	})
	d, _ := testDiscoverer(t, 10, handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Discover(ctx, "acme.fr")
	assert.Error(t, err)
}

func TestExtractEmails(t *testing.T) {
	t.Parallel()

	page := `Contact: Jean.Dupont@Acme.fr, sales@other.com, ops@mail.acme.fr, broken@acme`
	got := extractEmails(page, "acme.fr")

	assert.Equal(t, []string{"jean.dupont@acme.fr"}, got)
}
