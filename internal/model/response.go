package model

import (
	"time"

	"github.com/google/uuid"
)

// Response is the gradable record created when a session completes. It
// snapshots the latest answer draft per question and accumulates teacher
// grades; TotalScore is always the sum of its per-question marks.
type Response struct {
	ID           uuid.UUID `json:"id"`
	ExamID       uuid.UUID `json:"exam_id"`
	SessionID    uuid.UUID `json:"session_id"`
	UserID       uuid.UUID `json:"user_id"`
	StudentEmail string    `json:"student_email"`
	TotalScore   float64   `json:"total_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResponseAnswer is one snapshotted answer within a response.
type ResponseAnswer struct {
	ResponseID uuid.UUID `json:"response_id"`
	QuestionID uuid.UUID `json:"question_id"`
	AnswerText string    `json:"answer_text"`
}

// QuestionGrade is one teacher-awarded grade within a response. Marks never
// exceed the question's configured maximum.
type QuestionGrade struct {
	ResponseID    uuid.UUID `json:"response_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	MarksObtained float64   `json:"marks_obtained"`
	Feedback      *string   `json:"feedback,omitempty"`
	GradedAt      time.Time `json:"graded_at"`
}

// GradeInput is one entry in a grading batch.
type GradeInput struct {
	MarksObtained float64 `json:"marks_obtained" binding:"min=0"`
	Feedback      *string `json:"feedback" binding:"omitempty"`
}

// ApplyGradesRequest maps question id (string form) to the grade to award.
// The batch is validated as a whole before any write.
type ApplyGradesRequest struct {
	Grades map[string]GradeInput `json:"grades" binding:"required,min=1"`
}
