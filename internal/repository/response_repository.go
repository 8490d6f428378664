package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examgate/examgate-backend/internal/model"
)

// ResponseRepository handles gradable response data access.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

const responseColumns = `id, exam_id, session_id, user_id, student_email, total_score, created_at, updated_at`

func scanResponse(row interface{ Scan(...any) error }) (*model.Response, error) {
	resp := &model.Response{}
	// total_score is NULL until the first grading pass; an ungraded
	// response reads as zero.
	var total *float64
	err := row.Scan(&resp.ID, &resp.ExamID, &resp.SessionID, &resp.UserID,
		&resp.StudentEmail, &total, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if total != nil {
		resp.TotalScore = *total
	}
	return resp, nil
}

// GetByID retrieves a response by its UUID.
func (r *ResponseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Response, error) {
	return scanResponse(r.pool.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE id = $1`, id))
}

// GetBySessionID retrieves the response snapshotted from a session.
func (r *ResponseRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*model.Response, error) {
	return scanResponse(r.pool.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE session_id = $1`, sessionID))
}

// CreateSnapshot inserts a response together with its answer snapshot in one
// transaction. The unique index on session_id plus ON CONFLICT DO NOTHING
// makes the snapshot idempotent: a retried completion reuses the existing
// response instead of duplicating it.
func (r *ResponseRepository) CreateSnapshot(ctx context.Context, resp *model.Response, answers map[uuid.UUID]string) (*model.Response, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := scanResponse(tx.QueryRow(ctx,
		`INSERT INTO responses (exam_id, session_id, user_id, student_email)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO NOTHING
		 RETURNING `+responseColumns,
		resp.ExamID, resp.SessionID, resp.UserID, resp.StudentEmail,
	))
	if err != nil {
		if IsNotFound(err) {
			// Lost the idempotency race: the snapshot already exists.
			return scanResponse(tx.QueryRow(ctx,
				`SELECT `+responseColumns+` FROM responses WHERE session_id = $1`, resp.SessionID))
		}
		return nil, err
	}

	for qid, text := range answers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO response_answers (response_id, question_id, answer_text)
			 VALUES ($1, $2, $3)`,
			inserted.ID, qid, text); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inserted, nil
}

// ApplyGrades upserts the given per-question grades and recomputes the
// response total as the sum over all of its grades, in one transaction. The
// caller has already validated every entry against the question ceilings;
// nothing is written here unless the whole batch was accepted.
func (r *ResponseRepository) ApplyGrades(ctx context.Context, responseID uuid.UUID, grades map[uuid.UUID]model.GradeInput) (*model.Response, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for qid, g := range grades {
		if _, err := tx.Exec(ctx,
			`INSERT INTO question_grades (response_id, question_id, marks_obtained, feedback, graded_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (response_id, question_id) DO UPDATE
			 SET marks_obtained = EXCLUDED.marks_obtained,
			     feedback = EXCLUDED.feedback,
			     graded_at = NOW()`,
			responseID, qid, g.MarksObtained, g.Feedback); err != nil {
			return nil, err
		}
	}

	resp, err := scanResponse(tx.QueryRow(ctx,
		`UPDATE responses
		 SET total_score = (
		     SELECT COALESCE(SUM(marks_obtained), 0)
		     FROM question_grades WHERE response_id = $1
		 ), updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+responseColumns, responseID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListGrades retrieves all grades for a response keyed by question.
func (r *ResponseRepository) ListGrades(ctx context.Context, responseID uuid.UUID) ([]model.QuestionGrade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT response_id, question_id, marks_obtained, feedback, graded_at
		 FROM question_grades
		 WHERE response_id = $1
		 ORDER BY question_id`,
		responseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []model.QuestionGrade
	for rows.Next() {
		var g model.QuestionGrade
		if err := rows.Scan(&g.ResponseID, &g.QuestionID, &g.MarksObtained,
			&g.Feedback, &g.GradedAt); err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}
