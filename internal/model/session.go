package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "NOT_STARTED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionExpired    SessionStatus = "EXPIRED"
)

// transitions is the full edge set of the session state machine. COMPLETED
// and EXPIRED are absorbing; a status never moves backward.
var transitions = map[SessionStatus][]SessionStatus{
	SessionNotStarted: {SessionInProgress, SessionExpired},
	SessionInProgress: {SessionCompleted, SessionExpired},
	SessionCompleted:  {},
	SessionExpired:    {},
}

// Terminal reports whether s admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether the edge s → to exists.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Session represents one numbered attempt by one student at one exam.
// At most one session exists per (exam, user, attempt number), and
// AttemptNumber never exceeds the exam's MaxAttempts. Sessions are never
// deleted, only driven to a terminal status.
type Session struct {
	ID             uuid.UUID     `json:"id"`
	ExamID         uuid.UUID     `json:"exam_id"`
	UserID         uuid.UUID     `json:"user_id"`
	Status         SessionStatus `json:"status"`
	AttemptNumber  int           `json:"attempt_number"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	ViolationCount int           `json:"violation_count"`
	CreatedAt      time.Time     `json:"created_at"`
}

// JoinExamRequest is the payload for a student joining an exam. Exactly one
// of the keys is expected, matching the exam's access type.
type JoinExamRequest struct {
	ExamCode        string `json:"exam_code" binding:"omitempty,min=4,max=20"`
	InvitationToken string `json:"invitation_token" binding:"omitempty,min=16,max=128"`
}

// RecordViolationRequest carries the client-reported violation detail.
type RecordViolationRequest struct {
	Payload string `json:"payload" binding:"required,max=4096"`
}
