package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerDraft is one immutable snapshot of a student's in-progress answer to
// a long-form question. Versions are dense and strictly increasing per
// (session, question), starting at 1; the draft with the highest version is
// the current answer. Rows are never updated or deleted.
type AnswerDraft struct {
	ID            int64     `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	VersionNumber int       `json:"version_number"`
	AnswerText    string    `json:"answer_text"`
	SavedAt       time.Time `json:"saved_at"`
}

// AutosaveRequest is the payload for appending a draft version.
type AutosaveRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	AnswerText string    `json:"answer_text" binding:"max=65536"`
}
