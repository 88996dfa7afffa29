package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists directory data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StudentByCard returns the student owning a card, or nil when unregistered.
func (r *Repository) StudentByCard(ctx context.Context, code string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, matric_number, rfid_code, department, email, unresolved, created_at, updated_at
		FROM students
		WHERE rfid_code = $1
	`, code)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.MatricNumber, &s.RFIDCode, &s.Department, &s.Email, &s.Unresolved, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ProfileByCard returns the newest pending registration for a card, or nil.
func (r *Repository) ProfileByCard(ctx context.Context, code string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, student_id, full_name, matric_number, rfid_code, department, level, created_at
		FROM profiles
		WHERE rfid_code = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, code)
	var p Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.StudentID, &p.FullName, &p.MatricNumber, &p.RFIDCode, &p.Department, &p.Level, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CreateStudent inserts a student unless the card is already claimed, and
// returns the row that owns the card afterwards. Concurrent scans of a new
// card race on the rfid_code unique constraint; the loser re-reads.
func (r *Repository) CreateStudent(ctx context.Context, s Student) (*Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, matric_number, rfid_code, department, email, unresolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (rfid_code) DO NOTHING
	`, s.ID, s.Name, s.MatricNumber, s.RFIDCode, s.Department, s.Email, s.Unresolved)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.StudentByCard(ctx, s.RFIDCode)
	}
	s.CreatedAt = time.Now().UTC()
	return &s, nil
}

// PromoteStudent copies profile data onto a placeholder student.
func (r *Repository) PromoteStudent(ctx context.Context, studentID string, p Profile) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET name = $2, matric_number = $3, department = $4, unresolved = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, matric_number, rfid_code, department, email, unresolved, created_at, updated_at
	`, studentID, p.FullName, p.MatricNumber, p.Department)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.MatricNumber, &s.RFIDCode, &s.Department, &s.Email, &s.Unresolved, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertLecturer ensures a lecturer record exists and returns its id.
func (r *Repository) UpsertLecturer(ctx context.Context, name, email string) (string, error) {
	if email == "" {
		return "", errors.New("lecturer email required")
	}
	id := uuid.NewString()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO lecturers (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, id, name, email)
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, subject, expires_at)
		VALUES ($1, $2, $3)
	`, token, subject, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
