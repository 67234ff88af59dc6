// Package waas reads job postings from the Work at a Startup board.
package waas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/spigell/commandjobs/internal/utils"
)

const (
	Name    = "Work at a startup"
	BaseURL = "https://www.workatastartup.com/jobs"

	roleHeading    = "About the role"
	contribHeading = "How you'll contribute"
)

var errNoRoleSection = errors.New("'About the role' section not found")

type Source struct {
	baseURL string
	fetcher *source.Fetcher
	policy  *bluemonday.Policy
	logger  *zap.Logger
}

var _ source.Source = (*Source)(nil)

func New(baseURL string, fetcher *source.Fetcher, logger *zap.Logger) *Source {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		baseURL: baseURL,
		fetcher: fetcher,
		policy:  bluemonday.UGCPolicy(),
		logger:  logger,
	}
}

func (s *Source) Name() string {
	return Name
}

// Listings visits every company linked from the board and yields one listing
// per job page.
func (s *Source) Listings(ctx context.Context, progress source.Progress) iter.Seq2[listing.Raw, error] {
	return func(yield func(listing.Raw, error) bool) {
		companies, err := s.companyLinks(ctx)
		if err != nil {
			yield(listing.Raw{}, err)
			return
		}

		s.logger.Debug("found companies", zap.Int("count", len(companies)))

		for _, company := range companies {
			if ctx.Err() != nil {
				return
			}
			if progress != nil {
				progress(company)
			}

			jobs, err := s.jobLinks(ctx, company)
			if err != nil {
				if !yield(listing.Raw{}, err) || isTransport(err) {
					return
				}
				continue
			}

			for _, job := range jobs {
				if ctx.Err() != nil {
					return
				}
				raw, err := s.job(ctx, job)
				if err != nil && isTransport(err) {
					yield(listing.Raw{}, err)
					return
				}
				if !yield(raw, err) {
					return
				}
			}
		}
	}
}

func (s *Source) companyLinks(ctx context.Context) ([]string, error) {
	doc, err := s.fetcher.Document(ctx, s.baseURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find(`a[target="company"]`).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link, err := resolve(s.baseURL, href)
		if err != nil {
			s.logger.Debug("skipping company link", zap.String("href", href), zap.Error(err))
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	return links, nil
}

type companyPage struct {
	Props struct {
		RawCompany struct {
			Jobs []struct {
				ShowPath string `json:"show_path"`
			} `json:"jobs"`
		} `json:"rawCompany"`
	} `json:"props"`
}

func (s *Source) jobLinks(ctx context.Context, company string) ([]string, error) {
	doc, err := s.fetcher.Document(ctx, company)
	if err != nil {
		return nil, itemOrTransport(company, err)
	}

	data, ok := doc.Find("div[data-page]").First().Attr("data-page")
	if !ok {
		return nil, nil
	}

	var page companyPage
	if err := json.Unmarshal([]byte(data), &page); err != nil {
		return nil, &source.ItemError{Ref: company, Err: fmt.Errorf("decode data-page: %w", err)}
	}

	links := make([]string, 0, len(page.Props.RawCompany.Jobs))
	for _, job := range page.Props.RawCompany.Jobs {
		if strings.TrimSpace(job.ShowPath) == "" {
			continue
		}
		link, err := resolve(company, job.ShowPath)
		if err != nil {
			continue
		}
		links = append(links, link)
	}

	return links, nil
}

// job extracts the role description between the "About the role" and
// "How you'll contribute" headings.
func (s *Source) job(ctx context.Context, jobURL string) (listing.Raw, error) {
	doc, err := s.fetcher.Document(ctx, jobURL)
	if err != nil {
		return listing.Raw{}, itemOrTransport(jobURL, err)
	}

	heading := doc.Find("*").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return ownText(sel) == roleHeading
	}).First()
	if heading.Length() == 0 {
		return listing.Raw{}, &source.ItemError{Ref: jobURL, Err: errNoRoleSection}
	}

	section := heading.Closest("div")
	if section.Length() == 0 {
		return listing.Raw{}, &source.ItemError{Ref: jobURL, Err: errNoRoleSection}
	}

	var parts []string
	section.NextAll().EachWithBreak(func(_ int, sibling *goquery.Selection) bool {
		if goquery.NodeName(sibling) == "div" && strings.Contains(sibling.Text(), contribHeading) {
			return false
		}
		html, err := goquery.OuterHtml(sibling)
		if err == nil {
			parts = append(parts, html)
		}
		return true
	})

	content := strings.TrimSpace(strings.Join(parts, "\n"))
	fragment, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return listing.Raw{}, &source.ItemError{Ref: jobURL, Err: err}
	}

	return listing.Raw{
		OriginalText: utils.OneLine(fragment.Text()),
		OriginalHTML: s.policy.Sanitize(content),
		Source:       Name,
		ExternalID:   jobURL,
	}, nil
}

func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

// itemOrTransport downgrades HTTP status failures of a single page to an
// item error; network failures stay terminal.
func itemOrTransport(ref string, err error) error {
	var status *source.StatusError
	if errors.As(err, &status) {
		return &source.ItemError{Ref: ref, Err: status}
	}
	return err
}

func isTransport(err error) bool {
	var transport *source.TransportError
	return errors.As(err, &transport)
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
