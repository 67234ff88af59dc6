package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spigell/commandjobs/internal/listing"
	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const memoryPath = ":memory:"

// SQLite is the default single-file backend.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path, applies the
// pragmas for concurrent access and the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// sqliteDSN sets the pragmas through the DSN so that every pooled connection
// gets them, not only the first one.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range []string{"foreign_keys(1)", "journal_mode(WAL)", "busy_timeout(10000)", "synchronous(NORMAL)"} {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertListing inserts the listing unless its external id is already
// stored. It reports whether a row was created.
func (s *SQLite) UpsertListing(ctx context.Context, raw listing.Raw) (bool, error) {
	if err := validateRaw(raw); err != nil {
		return false, err
	}

	res, err := execRetry(ctx, s.db, `
		INSERT INTO job_listings (original_text, original_html, source, external_id, scraped_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`,
		raw.OriginalText, raw.OriginalHTML, raw.Source, raw.ExternalID, formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("insert listing %q: %w", raw.ExternalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert listing %q: %w", raw.ExternalID, err)
	}

	return n == 1, nil
}

// FetchUnclassified returns up to batchSize listings without an interaction,
// oldest first.
func (s *SQLite) FetchUnclassified(ctx context.Context, batchSize int) ([]listing.Pending, error) {
	if batchSize < 1 {
		return nil, ErrInvalidBatchSize
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT jl.id, jl.original_text, jl.original_html
		FROM job_listings jl
		LEFT JOIN classification_interactions ci ON ci.job_id = jl.id
		WHERE ci.id IS NULL
		ORDER BY jl.id
		LIMIT ?`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("query unclassified listings: %w", err)
	}
	defer rows.Close()

	var pending []listing.Pending
	for rows.Next() {
		var p listing.Pending
		if err := rows.Scan(&p.ID, &p.OriginalText, &p.OriginalHTML); err != nil {
			return nil, fmt.Errorf("scan unclassified listing: %w", err)
		}
		pending = append(pending, p)
	}

	return pending, rows.Err()
}

// SaveClassification records the interaction for jobID unless one exists.
func (s *SQLite) SaveClassification(ctx context.Context, jobID int64, prompt, answer string) (bool, error) {
	res, err := execRetry(ctx, s.db, `
		INSERT INTO classification_interactions (job_id, prompt, answer, verdict, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING`,
		jobID, prompt, answer, normalizedVerdict(answer), formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("save classification for listing %d: %w", jobID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save classification for listing %d: %w", jobID, err)
	}

	return n == 1, nil
}

func sqliteField(name string) string {
	return fmt.Sprintf("json_extract(ci.verdict, '$.%s')", name)
}

func sqlitePlaceholder(int) string {
	return "?"
}

const sqliteMatchFrom = `
	FROM job_listings jl
	JOIN classification_interactions ci ON ci.job_id = jl.id
	WHERE ci.verdict IS NOT NULL
	  AND json_valid(ci.verdict)
	  AND jl.discarded = 0
	  AND jl.applied = 0`

func (s *SQLite) CountMatches(ctx context.Context, p Predicate) (int, error) {
	where, args, err := p.sql(sqliteField, sqlitePlaceholder, 1)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+sqliteMatchFrom+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}

	return count, nil
}

// FetchMatches returns one page of matching listings, newest first.
func (s *SQLite) FetchMatches(ctx context.Context, p Predicate, limit, offset int) ([]listing.Match, error) {
	where, args, err := p.sql(sqliteField, sqlitePlaceholder, 1)
	if err != nil {
		return nil, err
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT jl.id, jl.external_id, jl.source, jl.original_text, jl.scraped_at, ci.verdict`+
		sqliteMatchFrom+where+`
		ORDER BY jl.scraped_at DESC, jl.id DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	matches := []listing.Match{}
	for rows.Next() {
		var (
			m         listing.Match
			scrapedAt string
			raw       string
		)
		if err := rows.Scan(&m.JobID, &m.ExternalID, &m.Source, &m.OriginalText, &scrapedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if m.ScrapedAt, err = parseTime(scrapedAt); err != nil {
			return nil, fmt.Errorf("parse scraped_at of listing %d: %w", m.JobID, err)
		}
		if err := decodeMatch(&m, raw); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

func (s *SQLite) GetListing(ctx context.Context, id int64) (listing.Listing, error) {
	var (
		l           listing.Listing
		scrapedAt   string
		appliedDate sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, original_text, original_html, source, external_id, scraped_at, discarded, applied, applied_date
		FROM job_listings WHERE id = ?`, id).
		Scan(&l.ID, &l.OriginalText, &l.OriginalHTML, &l.Source, &l.ExternalID, &scrapedAt, &l.Discarded, &l.Applied, &appliedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Listing{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return listing.Listing{}, fmt.Errorf("get listing %d: %w", id, err)
	}

	if l.ScrapedAt, err = parseTime(scrapedAt); err != nil {
		return listing.Listing{}, fmt.Errorf("parse scraped_at of listing %d: %w", id, err)
	}
	if appliedDate.Valid {
		at, err := parseTime(appliedDate.String)
		if err != nil {
			return listing.Listing{}, fmt.Errorf("parse applied_date of listing %d: %w", id, err)
		}
		l.AppliedDate = &at
	}

	return l, nil
}

func (s *SQLite) MarkDiscarded(ctx context.Context, id int64) error {
	res, err := execRetry(ctx, s.db, `UPDATE job_listings SET discarded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("discard listing %d: %w", id, err)
	}
	return expectOne(res, id)
}

func (s *SQLite) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	res, err := execRetry(ctx, s.db, `UPDATE job_listings SET applied = 1, applied_date = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark listing %d applied: %w", id, err)
	}
	return expectOne(res, id)
}

func (s *SQLite) Stats(ctx context.Context) (listing.Stats, error) {
	var st listing.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM job_listings),
			(SELECT COUNT(*) FROM classification_interactions),
			(SELECT COUNT(*) FROM classification_interactions WHERE verdict IS NULL),
			(SELECT COUNT(*) FROM job_listings WHERE applied = 1),
			(SELECT COUNT(*) FROM job_listings WHERE discarded = 1)`).
		Scan(&st.Listings, &st.Classified, &st.Malformed, &st.Applied, &st.Discarded)
	if err != nil {
		return listing.Stats{}, fmt.Errorf("collect stats: %w", err)
	}
	st.Pending = st.Listings - st.Classified

	return st, nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
