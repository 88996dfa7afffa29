package scan

import (
	"errors"
	"time"
)

// ErrDuplicateRecord is the ledger's signal that the (session, student)
// pair already holds a row. The store-level constraint is authoritative;
// a prior read passing does not mean the insert will.
var ErrDuplicateRecord = errors.New("attendance record already exists")

// DuplicateError reports a suppressed repeat scan. It is an expected
// steady-state outcome, not a fault: hardware treats it as "already handled".
type DuplicateError struct {
	// Recent is true when the identifier-only debounce window fired,
	// false when the per-session uniqueness constraint did.
	Recent      bool
	StudentName string
	CheckinTime time.Time
}

func (e *DuplicateError) Error() string {
	if e.Recent {
		return "Already scanned recently"
	}
	return "Already checked in"
}
