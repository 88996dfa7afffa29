package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campustap/internal/auth"
	"campustap/internal/config"
	"campustap/internal/metrics"
	"campustap/internal/queue"
	"campustap/internal/reminder"
	"campustap/internal/scan"
	"campustap/internal/session"
)

// SessionStore covers the session lifecycle operations the API exposes.
type SessionStore interface {
	ClassByCode(ctx context.Context, code string) (*session.Class, error)
	Create(ctx context.Context, s session.Session) (session.Session, error)
	End(ctx context.Context, id string) (*session.Session, error)
	LatestActive(ctx context.Context) (*session.Session, error)
}

// RecordLister is the read model dashboards page through.
type RecordLister interface {
	List(ctx context.Context, sessionID, studentID string, limit, offset int) ([]scan.Record, error)
}

// LecturerStore issues and tracks lecturer credentials.
type LecturerStore interface {
	UpsertLecturer(ctx context.Context, name, email string) (string, error)
	SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error
}

// Handler holds the wiring for all HTTP endpoints.
type Handler struct {
	cfg       config.App
	scans     *scan.Service
	sessions  SessionStore
	records   RecordLister
	lecturers LecturerStore
	reminders *reminder.Service
	queue     queue.Queue
}

// New creates a handler.
func New(cfg config.App, scans *scan.Service, sessions SessionStore, records RecordLister, lecturers LecturerStore, reminders *reminder.Service, q queue.Queue) *Handler {
	return &Handler{cfg: cfg, scans: scans, sessions: sessions, records: records, lecturers: lecturers, reminders: reminders, queue: q}
}

// Scan ingests one card tap from reader hardware.
func (h *Handler) Scan(c *gin.Context) {
	var req struct {
		RFIDCode    string `json:"rfid_code" binding:"required"`
		APIKey      string `json:"api_key" binding:"required"`
		SessionCode string `json:"session_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.APIKey != h.cfg.RFIDAPIKey {
		log.Println("scan rejected: invalid API key")
		metrics.ScansTotal.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}

	res, err := h.scans.Ingest(c.Request.Context(), req.RFIDCode, req.SessionCode)
	if err != nil {
		var dup *scan.DuplicateError
		switch {
		case errors.As(err, &dup):
			metrics.ScansTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			body := gin.H{"error": dup.Error(), "check_in_time": dup.CheckinTime.Format(time.RFC3339)}
			if dup.StudentName != "" {
				body["student"] = dup.StudentName
			}
			c.JSON(http.StatusConflict, body)
		case errors.Is(err, session.ErrNotFound):
			metrics.ScansTotal.WithLabelValues(metrics.OutcomeSessionNotFound).Inc()
			c.JSON(http.StatusNotFound, gin.H{"error": "Active session not found", "session_code": req.SessionCode})
		default:
			log.Printf("scan ingest failed: %v", err)
			metrics.ScansTotal.WithLabelValues(metrics.OutcomeError).Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record attendance"})
		}
		return
	}

	if res.Student == nil || res.Student.Unresolved {
		// Identity may catch up later; queue a backfill retry.
		if err := h.queue.Publish(c.Request.Context(), queue.Message{Type: "backfill", Body: []byte(res.Record.RFIDScan)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	metrics.ScansTotal.WithLabelValues(metrics.OutcomeAccepted).Inc()
	body := gin.H{
		"success":       true,
		"student":       studentPayload(res),
		"check_in_time": res.Record.CheckinTime.Format(time.RFC3339),
	}
	if res.Session != nil {
		body["session_code"] = res.Session.SessionCode
	}
	c.JSON(http.StatusOK, body)
}

func studentPayload(res *scan.Result) gin.H {
	if res.Student == nil {
		return gin.H{"name": "Unknown Student", "matric_number": "N/A", "department": "N/A"}
	}
	dept := "N/A"
	if res.Student.Department != nil {
		dept = *res.Student.Department
	}
	return gin.H{
		"name":          res.Student.Name,
		"matric_number": res.Student.MatricNumber,
		"department":    dept,
	}
}

// Backfill retries identity resolution for a card on demand.
func (h *Handler) Backfill(c *gin.Context) {
	var req struct {
		RFIDCode string `json:"rfid_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.scans.Backfill(c.Request.Context(), req.RFIDCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.BackfilledRecords.Add(float64(n))
	c.JSON(http.StatusOK, gin.H{"backfilled": n})
}

// StartSession creates a new active session for a class.
func (h *Handler) StartSession(c *gin.Context) {
	var req struct {
		ClassCode      string  `json:"class_code" binding:"required"`
		DisplayMessage *string `json:"display_message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := h.sessions.ClassByCode(c.Request.Context(), req.ClassCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if class == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found", "class_code": req.ClassCode})
		return
	}

	s := session.Session{
		ClassID:        class.ID,
		SessionCode:    session.GenerateCode(class.Code),
		DisplayMessage: req.DisplayMessage,
	}
	if claimsAny, ok := c.Get("claims"); ok {
		if claims, ok := claimsAny.(auth.Claims); ok && claims.Subject != "" {
			sub := claims.Subject
			s.LecturerID = &sub
		}
	}
	created, err := h.sessions.Create(c.Request.Context(), s)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// EndSession deactivates a session.
func (h *Handler) EndSession(c *gin.Context) {
	ended, err := h.sessions.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ended == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, ended)
}

// ActiveSession returns the newest active session, if any.
func (h *Handler) ActiveSession(c *gin.Context) {
	sess, err := h.sessions.LatestActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// maxListLimit caps one records page regardless of the requested limit.
const maxListLimit = 500

// ListRecords returns ledger entries with basic filters.
func (h *Handler) ListRecords(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	records, err := h.records.List(c.Request.Context(), c.Query("session_id"), c.Query("student_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// RegisterLecturer upserts a lecturer and issues a token pair. Guarded by
// the hardware API key; lecturers are provisioned by the same operator.
func (h *Handler) RegisterLecturer(c *gin.Context) {
	var req struct {
		Name   string `json:"name" binding:"required"`
		Email  string `json:"email" binding:"required"`
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.APIKey != h.cfg.RFIDAPIKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}

	id, err := h.lecturers.UpsertLecturer(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		log.Printf("lecturer upsert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register lecturer"})
		return
	}

	tokens, err := auth.Issue(id, "lecturer", h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	_ = h.lecturers.SaveRefreshToken(c.Request.Context(), id, tokens.RefreshToken, tokens.RefreshExp)

	c.JSON(http.StatusCreated, gin.H{
		"lecturer_id":   id,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// DispatchReminders fans out notifications for sessions starting soon.
// Triggered by an external cron.
func (h *Handler) DispatchReminders(c *gin.Context) {
	stats, err := h.reminders.Dispatch(c.Request.Context())
	if err != nil {
		log.Printf("reminder dispatch failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"sessions_processed": stats.SessionsProcessed,
		"notifications_sent": stats.NotificationsSent,
		"checked_at":         stats.CheckedAt.Format(time.RFC3339),
	})
}
