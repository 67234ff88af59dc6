package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spigell/commandjobs/internal/utils"
)

const maxBusyRetries = 3

// isBusy reports whether err is an SQLite lock contention error.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended codes keep the primary code in the low byte.
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// execRetry executes a single statement, retrying with a linear backoff while
// the database stays locked past busy_timeout.
func execRetry(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	for i := range maxBusyRetries {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !isBusy(err) || i == maxBusyRetries-1 {
			return nil, err
		}
		if err := utils.WaitFor(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return nil, fmt.Errorf("waiting for database lock: %w", err)
		}
	}
	return nil, fmt.Errorf("database still locked after %d attempts", maxBusyRetries)
}
