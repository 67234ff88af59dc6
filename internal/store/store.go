// Package store persists job listings and their classification interactions.
//
// Two backends are provided: SQLite (the default, a single local file) and
// PostgreSQL. Both enforce uniqueness of listing external ids and of
// interactions per listing at the schema level, so every write is a single
// atomic statement and no cross-component locking is needed.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/verdict"
)

var (
	// ErrNotFound is returned when a listing does not exist.
	ErrNotFound = errors.New("listing not found")
	// ErrInvalidBatchSize is returned by FetchUnclassified for a batch size below one.
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
	// ErrInvalidPredicate is returned for predicates over unknown fields or operators.
	ErrInvalidPredicate = errors.New("invalid match predicate")
)

// Store is implemented by every backend.
type Store interface {
	UpsertListing(ctx context.Context, raw listing.Raw) (bool, error)
	FetchUnclassified(ctx context.Context, batchSize int) ([]listing.Pending, error)
	SaveClassification(ctx context.Context, jobID int64, prompt, answer string) (bool, error)
	CountMatches(ctx context.Context, p Predicate) (int, error)
	FetchMatches(ctx context.Context, p Predicate, limit, offset int) ([]listing.Match, error)
	GetListing(ctx context.Context, id int64) (listing.Listing, error)
	MarkDiscarded(ctx context.Context, id int64) error
	MarkApplied(ctx context.Context, id int64, at time.Time) error
	Stats(ctx context.Context) (listing.Stats, error)
	Close() error
}

// Op is a comparison operator usable in a Condition.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
)

// Condition compares one verdict field with a constant.
type Condition struct {
	Field string
	Op    Op
	Value string
}

// Predicate is a conjunction of conditions over verdict fields. Listings
// without a parsed verdict never satisfy a predicate.
type Predicate []Condition

// GoodFit selects remote positions that fit the resume and are not known to
// exclude US hiring.
var GoodFit = Predicate{
	{Field: verdict.FieldFitForResume, Op: OpEq, Value: verdict.Yes},
	{Field: verdict.FieldRemotePositions, Op: OpEq, Value: verdict.Yes},
	{Field: verdict.FieldHiringInUS, Op: OpNe, Value: verdict.No},
}

var predicateFields = map[string]struct{}{
	verdict.FieldFitForResume:         {},
	verdict.FieldCompanyName:          {},
	verdict.FieldSmallSummary:         {},
	verdict.FieldFitJustification:     {},
	verdict.FieldHowToApply:           {},
	verdict.FieldRemotePositions:      {},
	verdict.FieldHiringInUS:           {},
	verdict.FieldTechStackDescription: {},
}

// Validate checks every condition against the known verdict fields.
func (p Predicate) Validate() error {
	for _, c := range p {
		if _, ok := predicateFields[c.Field]; !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidPredicate, c.Field)
		}
		if c.Op != OpEq && c.Op != OpNe {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, c.Op)
		}
	}
	return nil
}

// sql renders the predicate as a list of AND-ed clauses. field maps a verdict
// key to a column expression and placeholder renders the n-th bind parameter.
func (p Predicate) sql(field func(string) string, placeholder func(int) string, first int) (string, []any, error) {
	if err := p.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := make([]any, 0, len(p))
	for i, c := range p {
		fmt.Fprintf(&b, " AND %s %s %s", field(c.Field), c.Op, placeholder(first+i))
		args = append(args, c.Value)
	}

	return b.String(), args, nil
}

// timeLayout is fixed width so that text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// normalizedVerdict returns the stored projection of an answer, nil when the
// answer is not a JSON object.
func normalizedVerdict(answer string) *string {
	out, ok := verdict.Normalize(answer)
	if !ok {
		return nil
	}
	return &out
}

func decodeMatch(m *listing.Match, raw string) error {
	v, err := verdict.Parse(raw)
	if err != nil {
		return fmt.Errorf("decode verdict for listing %d: %w", m.JobID, err)
	}

	m.CompanyName = v.CompanyName
	m.AvailablePositions = v.AvailablePositions
	m.SmallSummary = v.SmallSummary
	m.FitJustification = v.FitJustification
	m.HowToApply = v.HowToApply
	m.RemotePositions = v.RemotePositions
	m.HiringInUS = v.HiringInUS
	m.TechStackDescription = v.TechStackDescription

	return nil
}

func validateRaw(raw listing.Raw) error {
	if strings.TrimSpace(raw.ExternalID) == "" {
		return errors.New("listing external id is required")
	}
	return nil
}
