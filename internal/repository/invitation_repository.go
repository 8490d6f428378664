package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examgate/examgate-backend/internal/model"
)

// InvitationRepository handles invitation token data access. Tokens are
// mutated only through this type so the single-use guarantee lives in one
// place.
type InvitationRepository struct {
	pool *pgxpool.Pool
}

// NewInvitationRepository creates a new InvitationRepository.
func NewInvitationRepository(pool *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{pool: pool}
}

const invitationColumns = `id, token, exam_id, student_email, status, expires_at, redeemed_at, created_at`

func scanInvitation(row interface{ Scan(...any) error }) (*model.Invitation, error) {
	inv := &model.Invitation{}
	err := row.Scan(&inv.ID, &inv.Token, &inv.ExamID, &inv.StudentEmail,
		&inv.Status, &inv.ExpiresAt, &inv.RedeemedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Create inserts a new pending invitation.
func (r *InvitationRepository) Create(ctx context.Context, inv *model.Invitation) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO invitations (token, exam_id, student_email, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		inv.Token, inv.ExamID, inv.StudentEmail, model.InvitationPending, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)
}

// GetByToken retrieves an invitation by its opaque token.
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	return scanInvitation(r.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token))
}

// GetByExamAndEmail retrieves the invitation binding a student to an exam.
func (r *InvitationRepository) GetByExamAndEmail(ctx context.Context, examID uuid.UUID, email string) (*model.Invitation, error) {
	return scanInvitation(r.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE exam_id = $1 AND student_email = $2
		 ORDER BY created_at DESC
		 LIMIT 1`, examID, email))
}

// MarkExpired flips a pending invitation to expired. The status guard makes
// the update idempotent and never touches redeemed tokens.
func (r *InvitationRepository) MarkExpired(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE invitations SET status = $1
		 WHERE token = $2 AND status = $3`,
		model.InvitationExpired, token, model.InvitationPending)
	return err
}

// Redeem atomically consumes a pending invitation. The conditional update is
// the compare-and-swap that guarantees exactly one concurrent caller wins;
// losers get pgx.ErrNoRows.
func (r *InvitationRepository) Redeem(ctx context.Context, token string, now time.Time) (*model.Invitation, error) {
	return scanInvitation(r.pool.QueryRow(ctx,
		`UPDATE invitations
		 SET status = $1, redeemed_at = $2
		 WHERE token = $3 AND status = $4
		 RETURNING `+invitationColumns,
		model.InvitationRedeemed, now, token, model.InvitationPending))
}
