package hackernews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comment(id string, indent int, body string) string {
	return fmt.Sprintf(`<tr class="athing comtr" id="%s"><td><table><tr>
		<td class="ind" indent="%d"><img src="s.gif" height="1" width="%d"></td>
		<td class="default"><div class="comment"><div class="commtext c00">%s</div></div></td>
	</tr></table></td></tr>`, id, indent, indent*40, body)
}

func page(rows string, more string) string {
	link := ""
	if more != "" {
		link = fmt.Sprintf(`<a href="%s" class="morelink" rel="next">More</a>`, more)
	}
	return `<html><body><table class="comment-tree">` + rows + `</table>` + link + `</body></html>`
}

func newThreadServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("p") {
		case "", "1":
			fmt.Fprint(w, page(
				comment("101", 0, "Acme | Backend Engineer | REMOTE<p>We use <b>Go</b>.<script>alert(1)</script></p>")+
					comment("102", 1, "Is this still open?")+
					comment("103", 0, "Globex | SRE | Berlin"),
				"item?id=1&p=2",
			))
		case "2":
			fmt.Fprint(w, page(
				comment("201", 0, "Initech | Data Engineer | US only")+
					`<tr class="athing comtr" id="202"><td><table><tr><td class="ind" indent="0"></td><td><div class="comment">[flagged]</div></td></tr></table></td></tr>`,
				"",
			))
		default:
			http.NotFound(w, r)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, src source.Source, progress source.Progress) ([]listing.Raw, []error) {
	t.Helper()

	var (
		items []listing.Raw
		errs  []error
	)
	for raw, err := range src.Listings(context.Background(), progress) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, raw)
	}
	return items, errs
}

func TestListingsWalksThread(t *testing.T) {
	srv := newThreadServer(t)
	src := New(srv.URL+"/item?id=1", source.NewFetcher(srv.Client(), nil))

	var pages []string
	items, errs := collect(t, src, func(p string) { pages = append(pages, p) })
	require.Empty(t, errs)
	require.Len(t, items, 3)

	assert.Equal(t, "https://news.ycombinator.com/item?id=101", items[0].ExternalID)
	assert.Equal(t, "https://news.ycombinator.com/item?id=103", items[1].ExternalID)
	assert.Equal(t, "https://news.ycombinator.com/item?id=201", items[2].ExternalID)

	assert.Equal(t, Name, items[0].Source)
	assert.Contains(t, items[0].OriginalText, "Acme | Backend Engineer | REMOTE")
	assert.Contains(t, items[0].OriginalHTML, "<b>Go</b>")
	assert.NotContains(t, items[0].OriginalHTML, "<script>")

	assert.Equal(t, []string{srv.URL + "/item?id=1&p=2"}, pages)
}

func TestListingsStopsEarly(t *testing.T) {
	srv := newThreadServer(t)
	src := New(srv.URL+"/item?id=1", source.NewFetcher(srv.Client(), nil))

	var seen int
	for _, err := range src.Listings(context.Background(), nil) {
		require.NoError(t, err)
		seen++
		if seen == 1 {
			break
		}
	}
	assert.Equal(t, 1, seen)
}

func TestListingsTransportErrors(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		items, errs := collect(t, New(srv.URL, source.NewFetcher(srv.Client(), nil)), nil)
		assert.Empty(t, items)
		require.Len(t, errs, 1)

		var transport *source.TransportError
		require.True(t, errors.As(errs[0], &transport))
		assert.False(t, transport.Timeout)

		var status *source.StatusError
		require.True(t, errors.As(errs[0], &status))
		assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		client := srv.Client()
		client.Timeout = 50 * time.Millisecond

		_, errs := collect(t, New(srv.URL, source.NewFetcher(client, nil)), nil)
		require.Len(t, errs, 1)

		var transport *source.TransportError
		require.True(t, errors.As(errs[0], &transport))
		assert.True(t, transport.Timeout)
	})
}

func TestListingsHonoursCancellation(t *testing.T) {
	srv := newThreadServer(t)
	src := New(srv.URL+"/item?id=1", source.NewFetcher(srv.Client(), nil), WithPageDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var items []listing.Raw
	for raw, err := range src.Listings(ctx, nil) {
		require.NoError(t, err)
		items = append(items, raw)
		if len(items) == 2 {
			// The source is now waiting before page two.
			cancel()
		}
	}

	assert.Len(t, items, 2)
}
