package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// isConflict reports whether a write failed because another connection held
// the database lock. Such writes are safe to retry.
func isConflict(err error) bool {
	if err == nil {
		return false
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		// Extended result codes keep the primary code in the low byte.
		switch sqErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
