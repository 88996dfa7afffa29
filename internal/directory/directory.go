package directory

import (
	"strings"
	"time"
)

// Sentinel values recorded on students materialized for cards nobody has
// registered yet. Dashboards render these verbatim.
const (
	UnknownName   = "Unknown Student"
	UnknownMatric = "N/A"
)

// Student is a row in the authoritative student directory.
// Unresolved marks records materialized from a raw card scan before
// registration caught up; they are promoted in place once a matching
// pending registration appears.
type Student struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MatricNumber string     `json:"matric_number"`
	RFIDCode     string     `json:"rfid_code"`
	Department   *string    `json:"department,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Unresolved   bool       `json:"unresolved"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Profile is a pending-registration record from the enrollment flow.
// It feeds the student directory but is never referenced by the ledger.
type Profile struct {
	ID           string
	UserID       *string
	StudentID    *string
	FullName     string
	MatricNumber string
	RFIDCode     string
	Department   *string
	Level        *string
	CreatedAt    time.Time
}

// NormalizeCode canonicalizes a raw card identifier: uppercase, all
// whitespace stripped. Every lookup, debounce key, and ledger write uses
// the normalized form.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}
