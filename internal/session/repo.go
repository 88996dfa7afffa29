package session

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

const sessionCols = `id, class_id, session_code, is_active, start_time, end_time, display_message, lecturer_id, created_at`

// Repository persists sessions and reads class metadata from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ClassID, &s.SessionCode, &s.IsActive, &s.StartTime, &s.EndTime, &s.DisplayMessage, &s.LecturerID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveByCode returns the active session with the given code, or nil.
func (r *Repository) ActiveByCode(ctx context.Context, code string) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionCols+`
		FROM attendance_sessions
		WHERE session_code = $1 AND is_active = TRUE
	`, code))
}

// LatestActive returns the most recently created active session, or nil.
func (r *Repository) LatestActive(ctx context.Context) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		SELECT ` + sessionCols + `
		FROM attendance_sessions
		WHERE is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`))
}

// Latest returns the most recently created session regardless of state, or nil.
func (r *Repository) Latest(ctx context.Context) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		SELECT ` + sessionCols + `
		FROM attendance_sessions
		ORDER BY created_at DESC
		LIMIT 1
	`))
}

// ClassByCode returns a class by its course code, or nil.
func (r *Repository) ClassByCode(ctx context.Context, code string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, room, time
		FROM classes
		WHERE code = $1
	`, code)
	var c Class
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Room, &c.Time); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Create starts a new active session.
func (r *Repository) Create(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, class_id, session_code, is_active, display_message, lecturer_id)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING `+sessionCols+`
	`, s.ID, s.ClassID, s.SessionCode, s.DisplayMessage, s.LecturerID)
	created, err := scanSession(row)
	if err != nil {
		return Session{}, err
	}
	return *created, nil
}

// End deactivates a session and stamps its end time. Ending an already
// ended session is a no-op returning the stored row.
func (r *Repository) End(ctx context.Context, id string) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions
		SET is_active = FALSE, end_time = COALESCE(end_time, NOW())
		WHERE id = $1
		RETURNING `+sessionCols+`
	`, id))
}
