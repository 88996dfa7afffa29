package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes reported on rfid_scans_total.
const (
	OutcomeAccepted        = "accepted"
	OutcomeDuplicate       = "duplicate"
	OutcomeUnauthorized    = "unauthorized"
	OutcomeSessionNotFound = "session_not_found"
	OutcomeError           = "error"
)

// ScansTotal counts scan ingestion requests by outcome.
var ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "campustap",
	Name:      "rfid_scans_total",
	Help:      "RFID scan ingestion requests by outcome.",
}, []string{"outcome"})

// RemindersSent counts reminder notifications fanned out.
var RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "campustap",
	Name:      "reminders_sent_total",
	Help:      "Reminder notifications created for upcoming sessions.",
})

// BackfilledRecords counts ledger rows attached to a student after the fact.
var BackfilledRecords = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "campustap",
	Name:      "backfilled_records_total",
	Help:      "Attendance records backfilled with a resolved student.",
})
