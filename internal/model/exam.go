package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessType enumerates how students gain entry to an exam.
type AccessType string

const (
	AccessCode       AccessType = "code"
	AccessInvitation AccessType = "invitation"
)

// Exam represents an exam window: the published schedule and entry rules a
// session must satisfy. A session may only be created while the window is
// open and the exam is published.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	CreatedBy       uuid.UUID  `json:"created_by"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	AccessType      AccessType `json:"access_type"`
	ExamCode        string     `json:"exam_code,omitempty"`
	MaxAttempts     int        `json:"max_attempts"`
	MaxViolations   int        `json:"max_violations"`
	IsPublished     bool       `json:"is_published"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NotYetOpen reports whether now is before the exam window.
func (e *Exam) NotYetOpen(now time.Time) bool {
	return now.Before(e.StartTime)
}

// Closed reports whether now is past the exam window.
func (e *Exam) Closed(now time.Time) bool {
	return now.After(e.EndTime)
}

// WindowOpen reports whether now falls inside [StartTime, EndTime].
func (e *Exam) WindowOpen(now time.Time) bool {
	return !e.NotYetOpen(now) && !e.Closed(now)
}
