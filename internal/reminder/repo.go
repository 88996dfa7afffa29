package reminder

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Repository reads sessions/enrollments and writes notifications.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpcomingSessions returns active sessions starting inside [from, to].
func (r *Repository) UpcomingSessions(ctx context.Context, from, to time.Time) ([]UpcomingSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.class_id, c.code, c.name, c.room, c.time, s.start_time
		FROM attendance_sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.is_active = TRUE AND s.start_time >= $1 AND s.start_time <= $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []UpcomingSession
	for rows.Next() {
		var u UpcomingSession
		if err := rows.Scan(&u.SessionID, &u.ClassID, &u.ClassCode, &u.ClassName, &u.Room, &u.Time, &u.StartTime); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// EnrolledStudentIDs returns students enrolled in a class.
func (r *Repository) EnrolledStudentIDs(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM course_enrollments WHERE class_id = $1
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertNotifications writes a reminder batch in one transaction.
func (r *Repository) InsertNotifications(ctx context.Context, batch []Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, n := range batch {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, student_id, class_id, message, notification_type, scheduled_time)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), n.StudentID, n.ClassID, n.Message, n.Type, n.ScheduledTime)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
