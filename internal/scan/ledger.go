package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one append-only ledger entry: a single accepted card tap.
// Session and student references stay null when resolution could not
// complete; the raw identifier always survives so identity can be
// backfilled later.
type Record struct {
	ID          string    `json:"id"`
	SessionID   *string   `json:"session_id"`
	StudentID   *string   `json:"student_id"`
	RFIDScan    string    `json:"rfid_scan"`
	CheckinTime time.Time `json:"checkin_time"`
}

// LedgerRepository persists attendance records in Postgres.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a repo.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Insert writes a new record. When the partial unique index on
// (session_id, student_id) rejects the row, ErrDuplicateRecord is returned
// and nothing is written; concurrent taps race on the constraint, not on a
// prior read.
func (r *LedgerRepository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, rfid_scan, checkin_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) WHERE session_id IS NOT NULL AND student_id IS NOT NULL
		DO NOTHING
		RETURNING id, checkin_time
	`, rec.ID, rec.SessionID, rec.StudentID, rec.RFIDScan, rec.CheckinTime)
	if err := row.Scan(&rec.ID, &rec.CheckinTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, fmt.Errorf("insert attendance record: %w", err)
	}
	return rec, nil
}

// FindBySessionStudent returns the existing record for a pair, or nil.
func (r *LedgerRepository) FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, rfid_scan, checkin_time
		FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.RFIDScan, &rec.CheckinTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// BackfillStudent attaches a student to records of a card written before
// identity resolution completed. Rows in a session where the student
// already holds a record are skipped, never attached: a blanket update
// would trip the unique index and leave every null row stuck. Check-in
// timestamps are untouched and no new rows are created.
func (r *LedgerRepository) BackfillStudent(ctx context.Context, code, studentID string) (int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id
		FROM attendance_records
		WHERE rfid_scan = $1 AND student_id IS NULL
		ORDER BY checkin_time
	`, code)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	type pending struct {
		id        string
		sessionID *string
	}
	var candidates []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.sessionID); err != nil {
			return 0, err
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// One statement per row so a row claimed for a session blocks the
	// session's remaining candidates through the NOT EXISTS re-check.
	var n int64
	for _, p := range candidates {
		var res sql.Result
		var err error
		if p.sessionID == nil {
			res, err = r.db.ExecContext(ctx, `
				UPDATE attendance_records
				SET student_id = $2
				WHERE id = $1 AND student_id IS NULL
			`, p.id, studentID)
		} else {
			res, err = r.db.ExecContext(ctx, `
				UPDATE attendance_records
				SET student_id = $2
				WHERE id = $1 AND student_id IS NULL AND NOT EXISTS (
					SELECT 1 FROM attendance_records r2
					WHERE r2.session_id = $3 AND r2.student_id = $2
				)
			`, p.id, studentID, *p.sessionID)
		}
		if err != nil {
			return n, err
		}
		if updated, err := res.RowsAffected(); err == nil {
			n += updated
		}
	}
	return n, nil
}

// List returns records with basic filters, newest first.
func (r *LedgerRepository) List(ctx context.Context, sessionID, studentID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, session_id, student_id, rfid_scan, checkin_time FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if sessionID != "" {
		clauses = append(clauses, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, sessionID)
	}
	if studentID != "" {
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, studentID)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += fmt.Sprintf(" ORDER BY checkin_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.RFIDScan, &rec.CheckinTime); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
