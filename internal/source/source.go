// Package source defines the contract for job listing sources.
//
// A source turns an external origin (a forum thread, a job board, an export
// file) into a lazy sequence of listing.Raw values. Sources never touch
// storage.
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spigell/commandjobs/internal/listing"
)

// Progress is called when a source moves on to the next page.
type Progress func(page string)

// Source yields listings one at a time. A *TransportError ends the
// sequence; an *ItemError reports one malformed item and the sequence goes
// on.
type Source interface {
	Name() string
	Listings(ctx context.Context, progress Progress) iter.Seq2[listing.Raw, error]
}

// DefaultTimeout is the per-request timeout of the HTTP sources.
const DefaultTimeout = 10 * time.Second

// NewHTTPClient returns the client used by the HTTP sources.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// TransportError is a network level failure that ends a run.
type TransportError struct {
	URL     string
	Timeout bool
	Err     error
}

// Transport wraps err into a TransportError, detecting timeouts.
func Transport(url string, err error) *TransportError {
	return &TransportError{URL: url, Timeout: isTimeout(err), Err: err}
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request to %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ItemError is a malformed item that should be skipped.
type ItemError struct {
	Ref string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("skipping item %s: %v", e.Ref, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// CheckStatus returns a *StatusError for any status other than 200.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
