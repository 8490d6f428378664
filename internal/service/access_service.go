package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/clock"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/repository"
)

// AccessKey carries whichever credential the student presented. Which field
// matters depends on the exam's access type.
type AccessKey struct {
	ExamCode        string
	InvitationToken string
}

// AccessDecision is the outcome of evaluating the access rules. Reason holds
// the machine code of the first rule that failed; Exam is populated only
// when every rule passed.
type AccessDecision struct {
	CanAccess bool        `json:"can_access"`
	Reason    string      `json:"reason,omitempty"`
	Exam      *model.Exam `json:"exam,omitempty"`
}

// Err converts a rejecting decision into its tagged error, or nil for an
// allowing one.
func (d *AccessDecision) Err() error {
	if d.CanAccess {
		return nil
	}
	if e := apperrors.ByCode(d.Reason); e != nil {
		return e
	}
	return apperrors.ErrExamNotFound
}

// AccessService evaluates whether a student may enter an exam. The rules run
// in a fixed order (existence and publication, window, access key, attempt
// ceiling) so the reported reason is deterministic when several would fail.
type AccessService struct {
	exams       *ExamService
	sessions    SessionStore
	invitations InvitationStore
	clk         clock.Clock
	log         zerolog.Logger
}

// NewAccessService creates a new AccessService.
func NewAccessService(
	exams *ExamService,
	sessions SessionStore,
	invitations InvitationStore,
	clk clock.Clock,
	log zerolog.Logger,
) *AccessService {
	return &AccessService{
		exams:       exams,
		sessions:    sessions,
		invitations: invitations,
		clk:         clk,
		log:         log.With().Str("component", "access_service").Logger(),
	}
}

func reject(code string) *AccessDecision {
	return &AccessDecision{Reason: code}
}

// CheckAccess runs the full rule chain for one student against one exam.
// It never mutates anything, so clients may poll it freely before joining.
func (s *AccessService) CheckAccess(ctx context.Context, userID uuid.UUID, email string, examID uuid.UUID, key AccessKey) (*AccessDecision, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrExamNotFound.Code {
			return reject(apperrors.ErrExamNotFound.Code), nil
		}
		return nil, err
	}
	if !exam.IsPublished {
		return reject(apperrors.ErrExamNotPublished.Code), nil
	}

	now := s.clk.Now()
	if exam.NotYetOpen(now) {
		return reject(apperrors.ErrExamNotOpen.Code), nil
	}
	if exam.Closed(now) {
		return reject(apperrors.ErrExamClosed.Code), nil
	}

	if dec := s.checkAccessKey(ctx, exam, email, key, now); dec != nil {
		return dec, nil
	}

	attempts, err := s.sessions.CountByExamAndUser(ctx, examID, userID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if attempts >= exam.MaxAttempts {
		return reject(apperrors.ErrAttemptLimitExceeded.Code), nil
	}

	return &AccessDecision{CanAccess: true, Exam: exam}, nil
}

// checkAccessKey applies the rule for the exam's access type. It returns nil
// when the presented key passes.
func (s *AccessService) checkAccessKey(ctx context.Context, exam *model.Exam, email string, key AccessKey, now time.Time) *AccessDecision {
	switch exam.AccessType {
	case model.AccessCode:
		if key.ExamCode == "" || key.ExamCode != exam.ExamCode {
			return reject(apperrors.ErrInvalidExamCode.Code)
		}
		return nil

	case model.AccessInvitation:
		if key.InvitationToken == "" {
			// No token presented. An invitation already bound to this email
			// still grants entry, so redeemed students can rejoin.
			inv, err := s.invitations.GetByExamAndEmail(ctx, exam.ID, email)
			if err != nil {
				if repository.IsNotFound(err) {
					return reject(apperrors.ErrInvitationMissing.Code)
				}
				s.log.Error().Err(err).Msg("Invitation lookup failed")
				return reject(apperrors.ErrInvitationMissing.Code)
			}
			return s.checkInvitation(inv, exam, email, now)
		}

		inv, err := s.invitations.GetByToken(ctx, key.InvitationToken)
		if err != nil {
			if repository.IsNotFound(err) {
				return reject(apperrors.ErrTokenNotFound.Code)
			}
			s.log.Error().Err(err).Msg("Invitation lookup failed")
			return reject(apperrors.ErrTokenNotFound.Code)
		}
		return s.checkInvitation(inv, exam, email, now)

	default:
		return reject(apperrors.ErrExamNotPublished.Code)
	}
}

func (s *AccessService) checkInvitation(inv *model.Invitation, exam *model.Exam, email string, now time.Time) *AccessDecision {
	if inv.ExamID != exam.ID || inv.StudentEmail != email {
		return reject(apperrors.ErrInvitationNotHeld.Code)
	}
	if inv.Status == model.InvitationExpired {
		return reject(apperrors.ErrTokenExpired.Code)
	}
	// A pending invitation past its expiry no longer grants entry even if the
	// lazy expiry sweep has not touched it yet.
	if inv.Status == model.InvitationPending && !now.Before(inv.ExpiresAt) {
		return reject(apperrors.ErrTokenExpired.Code)
	}
	return nil
}
