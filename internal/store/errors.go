package store

import "strings"

// The sqlite driver surfaces concurrency failures as error strings rather
// than typed errors; these helpers classify them so callers can retry.

// IsBusy checks if the error is a SQLITE_BUSY error. This occurs when the
// database is locked by another connection.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsLocked checks if the error is a "database is locked" error, another form
// of SQLite concurrency error.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsConflict checks if the error is either SQLite concurrency error. Both
// typically warrant retry logic.
func IsConflict(err error) bool {
	return IsBusy(err) || IsLocked(err)
}
