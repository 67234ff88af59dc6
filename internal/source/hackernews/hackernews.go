// Package hackernews reads job postings from an "Ask HN: Who is hiring?"
// thread. Every top-level comment is one listing.
package hackernews

import (
	"context"
	"errors"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/spigell/commandjobs/internal/utils"
)

const (
	Name = "Hacker News"
	// DefaultURL is the first page of the "Who is hiring?" thread to scrape.
	DefaultURL = "https://news.ycombinator.com/item?id=40563283&p=1"

	itemURL = "https://news.ycombinator.com/item?id="
)

type Option func(*Source)

// WithPageDelay sets the pause between two thread pages.
func WithPageDelay(d time.Duration) Option {
	return func(s *Source) { s.delay = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

type Source struct {
	startURL string
	delay    time.Duration
	fetcher  *source.Fetcher
	policy   *bluemonday.Policy
	logger   *zap.Logger
}

var _ source.Source = (*Source)(nil)

func New(startURL string, fetcher *source.Fetcher, opts ...Option) *Source {
	if strings.TrimSpace(startURL) == "" {
		startURL = DefaultURL
	}
	s := &Source{
		startURL: startURL,
		fetcher:  fetcher,
		policy:   bluemonday.UGCPolicy(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Name() string {
	return Name
}

// Listings walks the thread page by page, following the "More" link.
func (s *Source) Listings(ctx context.Context, progress source.Progress) iter.Seq2[listing.Raw, error] {
	return func(yield func(listing.Raw, error) bool) {
		page := s.startURL

		for page != "" {
			if ctx.Err() != nil {
				return
			}

			doc, err := s.fetcher.Document(ctx, page)
			if err != nil {
				yield(listing.Raw{}, err)
				return
			}

			comments := doc.Find("tr.athing.comtr")
			s.logger.Debug("parsed thread page", zap.String("url", page), zap.Int("comments", comments.Length()))

			stopped := false
			comments.EachWithBreak(func(_ int, row *goquery.Selection) bool {
				if !topLevel(row) {
					return true
				}
				raw, ok, err := s.parse(row)
				if err != nil {
					stopped = !yield(listing.Raw{}, err)
					return !stopped
				}
				if !ok {
					return true
				}
				stopped = !yield(raw, nil)
				return !stopped
			})
			if stopped {
				return
			}

			next, err := nextPage(doc, page)
			if err != nil {
				yield(listing.Raw{}, source.Transport(page, err))
				return
			}
			if next == "" {
				return
			}

			if err := utils.WaitFor(ctx, s.delay); err != nil {
				return
			}
			if progress != nil {
				progress(next)
			}
			page = next
		}
	}
}

// parse converts one comment row. ok is false for rows without a body, such
// as deleted comments.
func (s *Source) parse(row *goquery.Selection) (listing.Raw, bool, error) {
	id, _ := row.Attr("id")
	id = strings.TrimSpace(id)

	body := row.Find("div.commtext").First()
	if body.Length() == 0 {
		return listing.Raw{}, false, nil
	}
	if id == "" {
		return listing.Raw{}, false, &source.ItemError{Ref: "comment without id", Err: errors.New("missing comment id")}
	}

	html, err := goquery.OuterHtml(body)
	if err != nil {
		return listing.Raw{}, false, &source.ItemError{Ref: id, Err: err}
	}

	return listing.Raw{
		OriginalText: strings.TrimSpace(body.Text()),
		OriginalHTML: s.policy.Sanitize(html),
		Source:       Name,
		ExternalID:   itemURL + id,
	}, true, nil
}

// topLevel reports whether the comment is a direct reply to the thread.
func topLevel(row *goquery.Selection) bool {
	ind := row.Find("td.ind").First()
	if indent, ok := ind.Attr("indent"); ok {
		return indent == "0"
	}
	width, ok := ind.Find("img").First().Attr("width")
	return ok && width == "0"
}

func nextPage(doc *goquery.Document, current string) (string, error) {
	href, ok := doc.Find("a.morelink").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}

	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}

	return base.ResolveReference(ref).String(), nil
}
