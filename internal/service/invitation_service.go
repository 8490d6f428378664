package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/clock"
	"github.com/examgate/examgate-backend/internal/config"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/repository"
)

// InvitationService issues, validates and redeems single-use invitation
// tokens. Redemption is the only mutating path and goes through a
// compare-and-swap in storage, so exactly one caller wins a race.
type InvitationService struct {
	invitations InvitationStore
	users       UserStore
	exams       *ExamService
	auth        *AuthService
	clk         clock.Clock
	cfg         *config.Config
	log         zerolog.Logger
}

// NewInvitationService creates a new InvitationService.
func NewInvitationService(
	invitations InvitationStore,
	users UserStore,
	exams *ExamService,
	auth *AuthService,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		users:       users,
		exams:       exams,
		auth:        auth,
		clk:         clk,
		cfg:         cfg,
		log:         log.With().Str("component", "invitation_service").Logger(),
	}
}

// InvitationCheck is the outcome of validating a token without consuming it.
type InvitationCheck struct {
	Valid           bool              `json:"valid"`
	AlreadyRedeemed bool              `json:"already_redeemed"`
	Invitation      *model.Invitation `json:"invitation,omitempty"`
	Exam            *model.Exam       `json:"exam,omitempty"`
}

// Validate checks a token without consuming it. It can be called any number
// of times. A token found past its expiry is lazily marked expired as a side
// effect.
func (s *InvitationService) Validate(ctx context.Context, token string) (*InvitationCheck, error) {
	inv, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	switch inv.Status {
	case model.InvitationRedeemed:
		// Redeemed is reported as a distinct state, not an error, so the
		// client can route the student to login instead of a dead end.
		return &InvitationCheck{AlreadyRedeemed: true, Invitation: inv}, nil
	case model.InvitationExpired:
		return nil, apperrors.ErrTokenExpired
	}

	if !s.clk.Now().Before(inv.ExpiresAt) {
		if err := s.invitations.MarkExpired(ctx, token); err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("Failed to lazily expire invitation")
		}
		return nil, apperrors.ErrTokenExpired
	}

	exam, err := s.exams.GetExam(ctx, inv.ExamID)
	if err != nil {
		return nil, err
	}

	return &InvitationCheck{Valid: true, Invitation: inv, Exam: exam}, nil
}

// RedeemResult carries everything the student needs after consuming a token:
// a provisioned account, a logged-in access token and, for accounts created
// by this redemption, the generated password.
type RedeemResult struct {
	ExamID            uuid.UUID `json:"exam_id"`
	UserID            uuid.UUID `json:"user_id"`
	StudentEmail      string    `json:"student_email"`
	AccessToken       string    `json:"access_token"`
	TemporaryPassword string    `json:"temporary_password,omitempty"`
}

// Redeem consumes a pending token exactly once. Concurrent redemptions of
// the same token are decided by the storage CAS: losers observe the token as
// already redeemed.
func (s *InvitationService) Redeem(ctx context.Context, token string) (*RedeemResult, error) {
	check, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if check.AlreadyRedeemed {
		return nil, apperrors.ErrTokenAlreadyRedeemed
	}

	inv, err := s.invitations.Redeem(ctx, token, s.clk.Now())
	if err != nil {
		if repository.IsNotFound(err) {
			// Lost the CAS: someone redeemed between validate and here.
			return nil, apperrors.ErrTokenAlreadyRedeemed
		}
		return nil, fmt.Errorf("redeem invitation: %w", err)
	}

	tempPassword := model.NewInvitationToken()[:12]
	hash, err := s.auth.HashPassword(tempPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name := inv.StudentEmail
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}

	user, created, err := s.users.ProvisionStudent(ctx, inv.StudentEmail, name, hash)
	if err != nil {
		return nil, fmt.Errorf("provision student: %w", err)
	}
	if !created {
		// Existing account keeps its password.
		tempPassword = ""
	}

	accessToken, err := s.auth.ReplaceStudentToken(ctx, user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().
		Str("exam_id", inv.ExamID.String()).
		Str("email", inv.StudentEmail).
		Bool("account_created", created).
		Msg("Invitation redeemed")

	return &RedeemResult{
		ExamID:            inv.ExamID,
		UserID:            user.ID,
		StudentEmail:      user.Email,
		AccessToken:       accessToken,
		TemporaryPassword: tempPassword,
	}, nil
}

// CreateInvitation issues a pending token for one student and one exam.
// Only the exam's owner may issue invitations for it.
func (s *InvitationService) CreateInvitation(ctx context.Context, teacherID, examID uuid.UUID, req *model.CreateInvitationRequest) (*model.Invitation, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedBy != teacherID {
		return nil, apperrors.ErrNotExamOwner
	}

	ttl := s.cfg.InvitationTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	inv := &model.Invitation{
		Token:        model.NewInvitationToken(),
		ExamID:       examID,
		StudentEmail: strings.ToLower(req.StudentEmail),
		Status:       model.InvitationPending,
		ExpiresAt:    s.clk.Now().Add(ttl),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("email", inv.StudentEmail).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invitation issued")
	return inv, nil
}
