package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationEvent is one client-reported proctoring event, persisted out of
// band by the violation worker. The authoritative per-session counter lives
// on the session row; these rows are the audit detail.
type ViolationEvent struct {
	ID         int64     `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	UserID     uuid.UUID `json:"user_id"`
	Payload    string    `json:"payload"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ViolationRepository handles violation event data access.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListBySession retrieves violation events for a session, oldest first.
func (r *ViolationRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, exam_id, user_id, event_data, recorded_at
		 FROM violation_events
		 WHERE session_id = $1
		 ORDER BY recorded_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ViolationEvent
	for rows.Next() {
		var ev ViolationEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.ExamID, &ev.UserID,
			&ev.Payload, &ev.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
