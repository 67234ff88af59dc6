package waas

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobPage = `<html><body><div class="job">
<div class="section"><h2>About the role</h2></div>
<p>Build the <b>billing</b> platform in Go.</p>
<ul><li>Remote (US)</li></ul>
<div><h2>How you'll contribute</h2><p>Ship things.</p></div>
<p>Footer</p>
</div></body></html>`

func companyPageHTML(paths ...string) string {
	jobs := ""
	for i, p := range paths {
		if i > 0 {
			jobs += ","
		}
		jobs += fmt.Sprintf(`{"show_path": %q}`, p)
	}
	data := fmt.Sprintf(`{"props": {"rawCompany": {"jobs": [%s]}}}`, jobs)
	return `<html><body><div id="app" data-page="` + html.EscapeString(data) + `"></div></body></html>`
}

func newBoardServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/companies/acme" target="company">Acme</a>
			<a href="/companies/acme" target="company">Acme again</a>
			<a href="/companies/broken" target="company">Broken</a>
			<a href="/companies/globex" target="company">Globex</a>
			<a href="/about">About</a>
		</body></html>`)
	})
	mux.HandleFunc("/companies/acme", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, companyPageHTML("/jobs/1", "/jobs/missing-section"))
	})
	mux.HandleFunc("/companies/broken", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div data-page="{not json"></div>`)
	})
	mux.HandleFunc("/companies/globex", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, companyPageHTML("/jobs/2", "/jobs/gone"))
	})
	mux.HandleFunc("/jobs/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, jobPage)
	})
	mux.HandleFunc("/jobs/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, jobPage)
	})
	mux.HandleFunc("/jobs/missing-section", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Nothing here</p></body></html>`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListings(t *testing.T) {
	srv := newBoardServer(t)
	src := New(srv.URL+"/jobs", source.NewFetcher(srv.Client(), nil), nil)

	var (
		items     []listing.Raw
		itemErrs  []*source.ItemError
		companies []string
	)
	for raw, err := range src.Listings(context.Background(), func(p string) { companies = append(companies, p) }) {
		if err != nil {
			var itemErr *source.ItemError
			require.True(t, errors.As(err, &itemErr), "unexpected error: %v", err)
			itemErrs = append(itemErrs, itemErr)
			continue
		}
		items = append(items, raw)
	}

	assert.Equal(t, []string{
		srv.URL + "/companies/acme",
		srv.URL + "/companies/broken",
		srv.URL + "/companies/globex",
	}, companies)

	require.Len(t, items, 2)
	assert.Equal(t, srv.URL+"/jobs/1", items[0].ExternalID)
	assert.Equal(t, srv.URL+"/jobs/2", items[1].ExternalID)
	assert.Equal(t, Name, items[0].Source)
	assert.Equal(t, "Build the billing platform in Go. Remote (US)", items[0].OriginalText)
	assert.Contains(t, items[0].OriginalHTML, "<b>billing</b>")
	assert.NotContains(t, items[0].OriginalHTML, "contribute")
	assert.NotContains(t, items[0].OriginalHTML, "Footer")

	require.Len(t, itemErrs, 3)
	assert.Equal(t, srv.URL+"/jobs/missing-section", itemErrs[0].Ref)
	assert.ErrorIs(t, itemErrs[0], errNoRoleSection)
	assert.Equal(t, srv.URL+"/companies/broken", itemErrs[1].Ref)
	assert.Equal(t, srv.URL+"/jobs/gone", itemErrs[2].Ref)
}

func TestListingsBoardUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var errs []error
	for _, err := range New(srv.URL, source.NewFetcher(srv.Client(), nil), nil).Listings(context.Background(), nil) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	var transport *source.TransportError
	assert.True(t, errors.As(errs[0], &transport))
}
