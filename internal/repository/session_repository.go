package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examgate/examgate-backend/internal/model"
)

// SessionResult combines student identity with session outcome for the
// teacher-facing results listing.
type SessionResult struct {
	SessionID     uuid.UUID           `json:"session_id"`
	UserID        uuid.UUID           `json:"user_id"`
	StudentName   string              `json:"student_name"`
	StudentEmail  string              `json:"student_email"`
	AttemptNumber int                 `json:"attempt_number"`
	Status        model.SessionStatus `json:"status"`
	StartedAt     *time.Time          `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at"`
	TotalScore    *float64            `json:"total_score"`
}

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, user_id, status, attempt_number, started_at,
	finished_at, violation_count, created_at`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.AttemptNumber,
		&s.StartedAt, &s.FinishedAt, &s.ViolationCount, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// CountByExamAndUser returns how many sessions (attempts) a user holds for
// an exam, regardless of status.
func (r *SessionRepository) CountByExamAndUser(ctx context.Context, examID, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1 AND user_id = $2`,
		examID, userID).Scan(&n)
	return n, err
}

// Create inserts a session allocating the next attempt number in the same
// statement. The HAVING guard enforces the attempt ceiling at the storage
// layer; no row comes back when attempts are exhausted. Two concurrent
// creates can still compute the same attempt number; the unique index on
// (exam_id, user_id, attempt_number) rejects the loser, which the caller
// retries once.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session, maxAttempts int) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, user_id, status, attempt_number)
		 SELECT $1, $2, $3, COUNT(*) + 1
		 FROM exam_sessions
		 WHERE exam_id = $1 AND user_id = $2
		 HAVING COUNT(*) < $4
		 RETURNING id, attempt_number, created_at`,
		s.ExamID, s.UserID, model.SessionNotStarted, maxAttempts,
	).Scan(&s.ID, &s.AttemptNumber, &s.CreatedAt)
}

// Start transitions NOT_STARTED → IN_PROGRESS. The status guard makes the
// update a compare-and-swap: pgx.ErrNoRows means the session was not in
// NOT_STARTED, and the caller re-reads to classify the conflict.
func (r *SessionRepository) Start(ctx context.Context, id uuid.UUID, now time.Time) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $1, started_at = $2
		 WHERE id = $3 AND status = $4
		 RETURNING `+sessionColumns,
		model.SessionInProgress, now, id, model.SessionNotStarted))
}

// Complete transitions IN_PROGRESS → COMPLETED.
func (r *SessionRepository) Complete(ctx context.Context, id uuid.UUID, now time.Time) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $1, finished_at = $2
		 WHERE id = $3 AND status = $4
		 RETURNING `+sessionColumns,
		model.SessionCompleted, now, id, model.SessionInProgress))
}

// MarkExpired forces a non-terminal session to EXPIRED. Idempotent: expired
// and completed sessions are untouched.
func (r *SessionRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET status = $1
		 WHERE id = $2 AND status IN ($3, $4)`,
		model.SessionExpired, id, model.SessionNotStarted, model.SessionInProgress)
	return err
}

// IncrementViolations bumps the violation counter of an in-progress session
// and returns the new count. pgx.ErrNoRows means the session is not active.
func (r *SessionRepository) IncrementViolations(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_sessions SET violation_count = violation_count + 1
		 WHERE id = $1 AND status = $2
		 RETURNING violation_count`,
		id, model.SessionInProgress).Scan(&count)
	return count, err
}

// ListResultsByExam retrieves paginated session results for an exam, most
// recent attempts first.
func (r *SessionRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]SessionResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.user_id, u.name, u.email, es.attempt_number, es.status,
		        es.started_at, es.finished_at, resp.total_score
		 FROM exam_sessions es
		 JOIN users u ON es.user_id = u.id
		 LEFT JOIN responses resp ON resp.session_id = es.id
		 WHERE es.exam_id = $1
		 ORDER BY u.name ASC, es.attempt_number DESC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []SessionResult
	for rows.Next() {
		var sr SessionResult
		if err := rows.Scan(&sr.SessionID, &sr.UserID, &sr.StudentName, &sr.StudentEmail,
			&sr.AttemptNumber, &sr.Status, &sr.StartedAt, &sr.FinishedAt, &sr.TotalScore); err != nil {
			return nil, 0, err
		}
		results = append(results, sr)
	}

	return results, total, rows.Err()
}
