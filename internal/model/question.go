package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionKind enumerates the three question families. Each kind lives in
// its own table; lookups that span an exam merge them by id.
type QuestionKind string

const (
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionShortAnswer    QuestionKind = "short_answer"
	QuestionCoding         QuestionKind = "coding"
)

// Question is the merged view of a question used by grading and answer
// validation: its identity, kind, and configured mark ceiling.
type Question struct {
	ID       uuid.UUID       `json:"id"`
	ExamID   uuid.UUID       `json:"exam_id"`
	Kind     QuestionKind    `json:"kind"`
	Prompt   string          `json:"prompt"`
	MaxMarks float64         `json:"max_marks"`
	Options  json.RawMessage `json:"options,omitempty"` // multiple choice only
}
