// Package jsonl imports listings from a newline-delimited JSON file, one
// object per line with the listing.Raw keys.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/source"
)

const (
	Name = "jsonl"

	maxLineSize = 4 * 1024 * 1024
)

type Source struct {
	path string
	name string
}

var _ source.Source = (*Source)(nil)

// New reads listings from path. name is used as the source label for
// records without one and defaults to Name.
func New(path, name string) *Source {
	if strings.TrimSpace(name) == "" {
		name = Name
	}
	return &Source{path: path, name: name}
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Listings(ctx context.Context, progress source.Progress) iter.Seq2[listing.Raw, error] {
	return func(yield func(listing.Raw, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(listing.Raw{}, fmt.Errorf("open %s: %w", s.path, err))
			return
		}
		defer f.Close()

		if progress != nil {
			progress(s.path)
		}

		for raw, err := range Decode(ctx, f) {
			if !yield(raw, err) {
				return
			}
		}
	}
}

// Decode yields one listing per non-empty line of r.
func Decode(ctx context.Context, r io.Reader) iter.Seq2[listing.Raw, error] {
	return func(yield func(listing.Raw, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		line := 0
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line++

			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}

			var raw listing.Raw
			if err := json.Unmarshal([]byte(text), &raw); err != nil {
				if !yield(listing.Raw{}, &source.ItemError{Ref: fmt.Sprintf("line %d", line), Err: err}) {
					return
				}
				continue
			}
			if strings.TrimSpace(raw.ExternalID) == "" {
				if !yield(listing.Raw{}, &source.ItemError{Ref: fmt.Sprintf("line %d", line), Err: errors.New("missing external_id")}) {
					return
				}
				continue
			}

			if !yield(raw, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(listing.Raw{}, fmt.Errorf("read line %d: %w", line+1, err))
		}
	}
}
