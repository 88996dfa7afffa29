package session

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Session is a running (or ended) attendance session for a class.
type Session struct {
	ID             string     `json:"id"`
	ClassID        string     `json:"class_id"`
	SessionCode    string     `json:"session_code"`
	IsActive       bool       `json:"is_active"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	DisplayMessage *string    `json:"display_message,omitempty"`
	LecturerID     *string    `json:"lecturer_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Class is the owning class section; managed outside this service.
type Class struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Room string `json:"room"`
	Time string `json:"time"`
}

// GenerateCode builds a human-readable session code like "CSC301-7F3A".
func GenerateCode(classCode string) string {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s-%02X%02X", strings.ToUpper(classCode), b[0], b[1])
}
