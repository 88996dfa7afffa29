package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and applies the schema.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		matric_number TEXT NOT NULL,
		rfid_code     TEXT UNIQUE NOT NULL,
		department    TEXT,
		email         TEXT,
		unresolved    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id            TEXT PRIMARY KEY,
		user_id       TEXT,
		student_id    TEXT,
		full_name     TEXT NOT NULL,
		matric_number TEXT NOT NULL,
		rfid_code     TEXT NOT NULL,
		department    TEXT,
		level         TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS lecturers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS classes (
		id             TEXT PRIMARY KEY,
		code           TEXT UNIQUE NOT NULL,
		name           TEXT NOT NULL,
		room           TEXT NOT NULL DEFAULT '',
		time           TEXT NOT NULL DEFAULT '',
		lecturer_id    TEXT REFERENCES lecturers(id),
		total_students INTEGER,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_sessions (
		id              TEXT PRIMARY KEY,
		class_id        TEXT NOT NULL REFERENCES classes(id),
		session_code    TEXT UNIQUE NOT NULL,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		start_time      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time        TIMESTAMPTZ,
		display_message TEXT,
		lecturer_id     TEXT REFERENCES lecturers(id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id           TEXT PRIMARY KEY,
		session_id   TEXT REFERENCES attendance_sessions(id),
		student_id   TEXT REFERENCES students(id),
		rfid_scan    TEXT NOT NULL,
		checkin_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS attendance_records_session_student
		ON attendance_records (session_id, student_id)
		WHERE session_id IS NOT NULL AND student_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS attendance_records_rfid_scan
		ON attendance_records (rfid_scan);

	CREATE TABLE IF NOT EXISTS course_enrollments (
		id          TEXT PRIMARY KEY,
		class_id    TEXT NOT NULL REFERENCES classes(id),
		student_id  TEXT NOT NULL REFERENCES students(id),
		enrolled_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE (class_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id                TEXT PRIMARY KEY,
		student_id        TEXT NOT NULL REFERENCES students(id),
		class_id          TEXT NOT NULL REFERENCES classes(id),
		message           TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		scheduled_time    TIMESTAMPTZ,
		is_read           BOOLEAN DEFAULT FALSE,
		created_at        TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		subject    TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
