package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// questionUnion merges the three question tables by id. Grading and answer
// validation only need identity and mark ceilings, so the merged view stays
// narrow.
const questionUnion = `
	SELECT id, exam_id, max_marks FROM mcq_questions
	UNION ALL
	SELECT id, exam_id, max_marks FROM saq_questions
	UNION ALL
	SELECT id, exam_id, max_marks FROM coding_questions`

// QuestionRepository handles question lookups across all three kinds.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// MaxMarksByExam returns the configured mark ceiling for every question of
// an exam, merged across the three question kinds.
func (r *QuestionRepository) MaxMarksByExam(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]float64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, max_marks FROM (`+questionUnion+`) q WHERE exam_id = $1`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	marks := make(map[uuid.UUID]float64)
	for rows.Next() {
		var id uuid.UUID
		var max float64
		if err := rows.Scan(&id, &max); err != nil {
			return nil, err
		}
		marks[id] = max
	}
	return marks, rows.Err()
}

// ExamHasQuestion reports whether a question of any kind belongs to an exam.
func (r *QuestionRepository) ExamHasQuestion(ctx context.Context, examID, questionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM (`+questionUnion+`) q
			WHERE q.exam_id = $1 AND q.id = $2
		)`, examID, questionID).Scan(&exists)
	return exists, err
}
