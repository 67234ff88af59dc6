// Package match pages through classified listings that satisfy a predicate,
// newest first.
package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/store"
)

// DefaultPageSize is the number of matches shown per page.
const DefaultPageSize = 10

var ErrInvalidPage = errors.New("page and page size must be at least 1")

// Finder is the part of the store used by the engine.
type Finder interface {
	CountMatches(ctx context.Context, p store.Predicate) (int, error)
	FetchMatches(ctx context.Context, p store.Predicate, limit, offset int) ([]listing.Match, error)
}

type Engine struct {
	store     Finder
	predicate store.Predicate
}

type Option func(*Engine)

// WithPredicate replaces the default good-fit predicate.
func WithPredicate(p store.Predicate) Option {
	return func(e *Engine) {
		e.predicate = p
	}
}

func New(s Finder, opts ...Option) (*Engine, error) {
	e := &Engine{store: s, predicate: store.GoodFit}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.predicate.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Count returns the number of listings that currently match.
func (e *Engine) Count(ctx context.Context) (int, error) {
	n, err := e.store.CountMatches(ctx, e.predicate)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}

// Page returns the 1-based page of matches ordered by scrape time, newest
// first. A page past the end is empty.
func (e *Engine) Page(ctx context.Context, page, size int) ([]listing.Match, error) {
	if page < 1 || size < 1 {
		return nil, ErrInvalidPage
	}

	total, err := e.Count(ctx)
	if err != nil {
		return nil, err
	}
	offset := (page - 1) * size
	if total == 0 || offset >= total {
		return []listing.Match{}, nil
	}

	matches, err := e.store.FetchMatches(ctx, e.predicate, size, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch matches page %d: %w", page, err)
	}
	for i := range matches {
		if matches[i].AvailablePositions == nil {
			matches[i].AvailablePositions = []listing.Position{}
		}
	}
	return matches, nil
}

// TotalPages returns how many pages of the given size the matches fill.
func (e *Engine) TotalPages(ctx context.Context, size int) (int, error) {
	if size < 1 {
		return 0, ErrInvalidPage
	}
	total, err := e.Count(ctx)
	if err != nil {
		return 0, err
	}
	return (total + size - 1) / size, nil
}
