package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spigell/commandjobs/internal/listing"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres stores listings in a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*Postgres)(nil)

// ConnectPostgres opens a connection pool and applies the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Postgres{pool: pool, now: time.Now}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) UpsertListing(ctx context.Context, raw listing.Raw) (bool, error) {
	if err := validateRaw(raw); err != nil {
		return false, err
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO job_listings (original_text, original_html, source, external_id, scraped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO NOTHING`,
		stripNUL(raw.OriginalText), stripNUL(raw.OriginalHTML), stripNUL(raw.Source), raw.ExternalID, p.now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert listing %q: %w", raw.ExternalID, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) FetchUnclassified(ctx context.Context, batchSize int) ([]listing.Pending, error) {
	if batchSize < 1 {
		return nil, ErrInvalidBatchSize
	}

	rows, err := p.pool.Query(ctx, `
		SELECT jl.id, jl.original_text, jl.original_html
		FROM job_listings jl
		LEFT JOIN classification_interactions ci ON ci.job_id = jl.id
		WHERE ci.id IS NULL
		ORDER BY jl.id
		LIMIT $1`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclassified listings: %w", err)
	}

	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (listing.Pending, error) {
		var l listing.Pending
		err := row.Scan(&l.ID, &l.OriginalText, &l.OriginalHTML)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan unclassified listings: %w", err)
	}

	return pending, nil
}

// SaveClassification drops NUL bytes from the prompt and the answer, which
// PostgreSQL text columns reject.
func (p *Postgres) SaveClassification(ctx context.Context, jobID int64, prompt, answer string) (bool, error) {
	answer = stripNUL(answer)
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO classification_interactions (job_id, prompt, answer, verdict, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (job_id) DO NOTHING`,
		jobID, stripNUL(prompt), answer, postgresVerdict(answer), p.now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save classification for listing %d: %w", jobID, err)
	}

	return tag.RowsAffected() == 1, nil
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// postgresVerdict is normalizedVerdict for a jsonb column. jsonb rejects the
// \u0000 escape, so such a verdict is stored as NULL.
func postgresVerdict(answer string) *string {
	v := normalizedVerdict(answer)
	if v != nil && strings.Contains(*v, `\u0000`) {
		return nil
	}
	return v
}

func postgresField(name string) string {
	return fmt.Sprintf("ci.verdict->>'%s'", name)
}

func postgresPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

const postgresMatchFrom = `
	FROM job_listings jl
	JOIN classification_interactions ci ON ci.job_id = jl.id
	WHERE ci.verdict IS NOT NULL
	  AND NOT jl.discarded
	  AND NOT jl.applied`

func (p *Postgres) CountMatches(ctx context.Context, pred Predicate) (int, error) {
	where, args, err := pred.sql(postgresField, postgresPlaceholder, 1)
	if err != nil {
		return 0, err
	}

	var count int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*)"+postgresMatchFrom+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}

	return count, nil
}

func (p *Postgres) FetchMatches(ctx context.Context, pred Predicate, limit, offset int) ([]listing.Match, error) {
	where, args, err := pred.sql(postgresField, postgresPlaceholder, 1)
	if err != nil {
		return nil, err
	}
	n := len(args)
	args = append(args, limit, offset)

	rows, err := p.pool.Query(ctx, `
		SELECT jl.id, jl.external_id, jl.source, jl.original_text, jl.scraped_at, ci.verdict::text`+
		postgresMatchFrom+where+`
		ORDER BY jl.scraped_at DESC, jl.id DESC
		LIMIT `+postgresPlaceholder(n+1)+` OFFSET `+postgresPlaceholder(n+2), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (listing.Match, error) {
		var (
			m   listing.Match
			raw string
		)
		if err := row.Scan(&m.JobID, &m.ExternalID, &m.Source, &m.OriginalText, &m.ScrapedAt, &raw); err != nil {
			return m, err
		}
		return m, decodeMatch(&m, raw)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	if matches == nil {
		matches = []listing.Match{}
	}

	return matches, nil
}

func (p *Postgres) GetListing(ctx context.Context, id int64) (listing.Listing, error) {
	var l listing.Listing
	err := p.pool.QueryRow(ctx, `
		SELECT id, original_text, original_html, source, external_id, scraped_at, discarded, applied, applied_date
		FROM job_listings WHERE id = $1`, id).
		Scan(&l.ID, &l.OriginalText, &l.OriginalHTML, &l.Source, &l.ExternalID, &l.ScrapedAt, &l.Discarded, &l.Applied, &l.AppliedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return listing.Listing{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return listing.Listing{}, fmt.Errorf("failed to get listing %d: %w", id, err)
	}

	return l, nil
}

func (p *Postgres) MarkDiscarded(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE job_listings SET discarded = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to discard listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE job_listings SET applied = TRUE, applied_date = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark listing %d applied: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) Stats(ctx context.Context) (listing.Stats, error) {
	var st listing.Stats
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM job_listings),
			(SELECT COUNT(*) FROM classification_interactions),
			(SELECT COUNT(*) FROM classification_interactions WHERE verdict IS NULL),
			(SELECT COUNT(*) FROM job_listings WHERE applied),
			(SELECT COUNT(*) FROM job_listings WHERE discarded)`).
		Scan(&st.Listings, &st.Classified, &st.Malformed, &st.Applied, &st.Discarded)
	if err != nil {
		return listing.Stats{}, fmt.Errorf("failed to collect stats: %w", err)
	}
	st.Pending = st.Listings - st.Classified

	return st, nil
}
