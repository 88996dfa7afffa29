package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"campustap/internal/metrics"
)

// UpcomingSession is a session starting soon, joined with its class info.
type UpcomingSession struct {
	SessionID string
	ClassID   string
	ClassCode string
	ClassName string
	Room      string
	Time      string
	StartTime time.Time
}

// Notification is one reminder fanned out to an enrolled student.
type Notification struct {
	StudentID     string
	ClassID       string
	Message       string
	Type          string
	ScheduledTime time.Time
}

// Store is the persistence surface reminder dispatch needs.
type Store interface {
	UpcomingSessions(ctx context.Context, from, to time.Time) ([]UpcomingSession, error)
	EnrolledStudentIDs(ctx context.Context, classID string) ([]string, error)
	InsertNotifications(ctx context.Context, batch []Notification) error
}

// Stats summarizes one dispatch run.
type Stats struct {
	SessionsProcessed int       `json:"sessions_processed"`
	NotificationsSent int       `json:"notifications_sent"`
	CheckedAt         time.Time `json:"checked_at"`
}

// Service fans out class-start reminders. It only reads sessions and
// enrollments and only writes notifications; the attendance ledger is
// never touched.
type Service struct {
	store Store
	lead  time.Duration
}

// NewService creates a reminder service with the given lead time.
func NewService(store Store, lead time.Duration) *Service {
	if lead <= 0 {
		lead = 30 * time.Minute
	}
	return &Service{store: store, lead: lead}
}

// Dispatch creates one reminder per enrolled student for every active
// session starting within the lead window. A failed class is skipped, not
// fatal: the cron retriggers soon anyway.
func (s *Service) Dispatch(ctx context.Context) (Stats, error) {
	now := time.Now().UTC()
	stats := Stats{CheckedAt: now}

	sessions, err := s.store.UpcomingSessions(ctx, now, now.Add(s.lead))
	if err != nil {
		return stats, fmt.Errorf("fetch upcoming sessions: %w", err)
	}
	stats.SessionsProcessed = len(sessions)

	for _, sess := range sessions {
		studentIDs, err := s.store.EnrolledStudentIDs(ctx, sess.ClassID)
		if err != nil {
			log.Printf("fetch enrollments for %s failed: %v", sess.ClassCode, err)
			continue
		}
		if len(studentIDs) == 0 {
			continue
		}

		batch := make([]Notification, 0, len(studentIDs))
		for _, id := range studentIDs {
			batch = append(batch, Notification{
				StudentID:     id,
				ClassID:       sess.ClassID,
				Message:       fmt.Sprintf("Reminder: %s (%s) starts in 30 minutes at %s in room %s", sess.ClassName, sess.ClassCode, sess.Time, sess.Room),
				Type:          "reminder",
				ScheduledTime: sess.StartTime,
			})
		}
		if err := s.store.InsertNotifications(ctx, batch); err != nil {
			log.Printf("create notifications for session %s failed: %v", sess.SessionID, err)
			continue
		}
		stats.NotificationsSent += len(batch)
		metrics.RemindersSent.Add(float64(len(batch)))
	}
	return stats, nil
}
