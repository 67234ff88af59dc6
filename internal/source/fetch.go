package source

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	userAgent       = "spigell/commandjobs"
	contentEncoding = "gzip"
)

// Fetcher downloads HTML pages for the scraping sources.
type Fetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	logger     *zap.Logger
}

// NewFetcher returns a Fetcher using client, or a default client when nil.
func NewFetcher(client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{HTTPClient: client, UserAgent: userAgent, logger: logger}
}

// Document fetches url and parses it. Network failures and bad statuses are
// returned as *TransportError.
func (f *Fetcher) Document(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Transport(url, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	f.logger.Debug("make request", zap.String("url", url))

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, Transport(url, err)
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return nil, Transport(url, err)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, Transport(url, err)
		}
		defer gz.Close()
		body = gz
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, Transport(url, err)
	}

	return doc, nil
}
