package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"campustap/internal/directory"
	"campustap/internal/session"
)

// IdentityResolver maps a normalized card identifier to a student.
type IdentityResolver interface {
	Resolve(ctx context.Context, code string) (*directory.Student, error)
	Promote(ctx context.Context, code string) (*directory.Student, error)
}

// SessionResolver attributes a scan to an attendance session.
type SessionResolver interface {
	Resolve(ctx context.Context, hint string) (*session.Session, error)
}

// Ledger is the append-only attendance record store.
type Ledger interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*Record, error)
	BackfillStudent(ctx context.Context, code, studentID string) (int64, error)
}

// Result is the outcome of an accepted scan. Student is nil only when the
// directory store failed and the record was written against the raw code.
type Result struct {
	Student *directory.Student
	Session *session.Session
	Record  Record
}

// Service coordinates identity resolution, session resolution, duplicate
// suppression, and the ledger write for one scan.
type Service struct {
	identity IdentityResolver
	sessions SessionResolver
	ledger   Ledger
	debounce Debouncer
}

// NewService creates the scan ingestion service.
func NewService(identity IdentityResolver, sessions SessionResolver, ledger Ledger, debounce Debouncer) *Service {
	return &Service{identity: identity, sessions: sessions, ledger: ledger, debounce: debounce}
}

// Ingest records one card tap. rawCode is normalized before any lookup.
//
// Failure modes: *DuplicateError for suppressed repeats, session.ErrNotFound
// when the configured strategy requires a session and none resolves, and a
// wrapped persistence error when the ledger write fails. Only the duplicate
// path leaves the debounce reservation standing; every other failure
// releases it so the physical retry is not swallowed.
func (s *Service) Ingest(ctx context.Context, rawCode, sessionHint string) (*Result, error) {
	code := directory.NormalizeCode(rawCode)
	if code == "" {
		return nil, errors.New("rfid code required")
	}
	now := time.Now().UTC()

	prior, ok, err := s.debounce.Reserve(ctx, code, now)
	if err != nil {
		// Debounce is best effort; the unique constraint still protects us.
		log.Printf("debounce unavailable, continuing: %v", err)
		ok = true
	} else if !ok {
		if prior.IsZero() {
			// A debouncer may lose the first tap's timestamp; better the
			// current clock than a zero time in the response.
			prior = now
		}
		dup := &DuplicateError{Recent: true, CheckinTime: prior}
		if student, err := s.identity.Resolve(ctx, code); err == nil && student != nil {
			dup.StudentName = student.Name
		}
		return nil, dup
	}

	student, err := s.identity.Resolve(ctx, code)
	if err != nil {
		// Never drop a physical tap over a directory fault; the record is
		// written with a null student and backfilled later.
		log.Printf("identity resolution failed for %s: %v", code, err)
		student = nil
	}

	sess, err := s.sessions.Resolve(ctx, sessionHint)
	if err != nil {
		s.release(ctx, code)
		return nil, err
	}

	rec := Record{RFIDScan: code, CheckinTime: now}
	if sess != nil {
		rec.SessionID = &sess.ID
	}
	if student != nil {
		rec.StudentID = &student.ID
	}

	inserted, err := s.ledger.Insert(ctx, rec)
	if errors.Is(err, ErrDuplicateRecord) {
		dup := &DuplicateError{CheckinTime: now}
		if student != nil {
			dup.StudentName = student.Name
		}
		if existing, ferr := s.ledger.FindBySessionStudent(ctx, *rec.SessionID, *rec.StudentID); ferr == nil && existing != nil {
			dup.CheckinTime = existing.CheckinTime
		}
		return nil, dup
	}
	if err != nil {
		s.release(ctx, code)
		return nil, fmt.Errorf("record attendance: %w", err)
	}

	return &Result{Student: student, Session: sess, Record: inserted}, nil
}

// Backfill retries identity resolution for a card and attaches the student
// to any ledger rows written before the directory caught up. Used by the
// worker and the admin backfill endpoint.
func (s *Service) Backfill(ctx context.Context, rawCode string) (int64, error) {
	code := directory.NormalizeCode(rawCode)
	if code == "" {
		return 0, errors.New("rfid code required")
	}
	student, err := s.identity.Promote(ctx, code)
	if err != nil {
		return 0, err
	}
	if student == nil {
		return 0, nil
	}
	return s.ledger.BackfillStudent(ctx, code, student.ID)
}

func (s *Service) release(ctx context.Context, code string) {
	if err := s.debounce.Release(ctx, code); err != nil {
		log.Printf("debounce release failed for %s: %v", code, err)
	}
}
