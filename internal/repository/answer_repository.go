package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examgate/examgate-backend/internal/model"
)

// AnswerRepository handles answer draft data access. Drafts are append-only:
// there is no update or delete path.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// AppendVersion inserts the next draft version in a single statement, so the
// version allocation is atomic relative to the current maximum. Concurrent
// appends can compute the same version; the unique index on
// (session_id, question_id, version_number) rejects one, which the caller
// retries. Versions therefore stay dense and strictly increasing.
func (r *AnswerRepository) AppendVersion(ctx context.Context, sessionID, questionID uuid.UUID, text string) (*model.AnswerDraft, error) {
	d := &model.AnswerDraft{
		SessionID:  sessionID,
		QuestionID: questionID,
		AnswerText: text,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO answer_drafts (session_id, question_id, version_number, answer_text)
		 SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3
		 FROM answer_drafts
		 WHERE session_id = $1 AND question_id = $2
		 RETURNING id, version_number, saved_at`,
		sessionID, questionID, text,
	).Scan(&d.ID, &d.VersionNumber, &d.SavedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListVersions retrieves all draft versions for a question, oldest first.
func (r *AnswerRepository) ListVersions(ctx context.Context, sessionID, questionID uuid.UUID) ([]model.AnswerDraft, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, question_id, version_number, answer_text, saved_at
		 FROM answer_drafts
		 WHERE session_id = $1 AND question_id = $2
		 ORDER BY version_number ASC`,
		sessionID, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []model.AnswerDraft
	for rows.Next() {
		var d model.AnswerDraft
		if err := rows.Scan(&d.ID, &d.SessionID, &d.QuestionID, &d.VersionNumber,
			&d.AnswerText, &d.SavedAt); err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// LatestBySession returns the current (highest-version) draft per question
// for a session, used to snapshot answers into a gradable response.
func (r *AnswerRepository) LatestBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (question_id) question_id, answer_text
		 FROM answer_drafts
		 WHERE session_id = $1
		 ORDER BY question_id, version_number DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := make(map[uuid.UUID]string)
	for rows.Next() {
		var qid uuid.UUID
		var text string
		if err := rows.Scan(&qid, &text); err != nil {
			return nil, err
		}
		latest[qid] = text
	}
	return latest, rows.Err()
}
