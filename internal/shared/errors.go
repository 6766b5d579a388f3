// Package shared provides common error kinds and helpers used across the
// codebase, following the propagation policy of spec §7.
package shared

import (
	"errors"
	"strings"
)

// Sentinel error kinds. Components wrap these with fmt.Errorf("...: %w", ...)
// so callers can still errors.Is against the kind.
var (
	ErrConfigInvalid     = errors.New("config invalid")
	ErrStoreInit         = errors.New("store init failed")
	ErrDuplicate         = errors.New("duplicate row")
	ErrNotFound          = errors.New("not found")
	ErrConnectFailed     = errors.New("connect failed")
	ErrAuthFailed        = errors.New("auth failed")
	ErrReadFailed        = errors.New("read failed")
	ErrWriteFailed       = errors.New("write failed")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrQueueFull         = errors.New("queue full")
	ErrRateLimited       = errors.New("rate limited")
)

// IsSQLiteBusyError reports whether err is a SQLITE_BUSY error, which
// occurs when the database is locked by another connection and usually
// warrants a retry.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError reports whether err is a "database is locked" error,
// another form of SQLite concurrency error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports either of the above, the set that
// typically warrants retry-with-backoff.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
