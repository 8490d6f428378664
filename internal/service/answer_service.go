package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/repository"
)

// AnswerService manages the append-only draft history for long-form
// answers. Each autosave becomes a new immutable version; nothing here ever
// updates or deletes a draft.
type AnswerService struct {
	answers   AnswerStore
	questions QuestionStore
	sessions  *SessionService
	log       zerolog.Logger
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(
	answers AnswerStore,
	questions QuestionStore,
	sessions *SessionService,
	log zerolog.Logger,
) *AnswerService {
	return &AnswerService{
		answers:   answers,
		questions: questions,
		sessions:  sessions,
		log:       log.With().Str("component", "answer_service").Logger(),
	}
}

// Autosave appends the next draft version for a question. The session must
// be IN_PROGRESS and the question must belong to its exam. A version
// collision with a concurrent autosave from another device is retried once;
// both writes survive as distinct versions.
func (a *AnswerService) Autosave(ctx context.Context, userID, sessionID uuid.UUID, req *model.AutosaveRequest) (*model.AnswerDraft, error) {
	sess, exam, err := a.sessions.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case model.SessionExpired:
		return nil, apperrors.ErrExamTimeExpired
	case model.SessionNotStarted, model.SessionCompleted:
		return nil, apperrors.ErrSessionNotActive
	}

	ok, err := a.questions.ExamHasQuestion(ctx, exam.ID, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("check question: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrQuestionNotFound
	}

	draft, err := a.answers.AppendVersion(ctx, sessionID, req.QuestionID, req.AnswerText)
	if repository.IsUniqueViolation(err) {
		draft, err = a.answers.AppendVersion(ctx, sessionID, req.QuestionID, req.AnswerText)
	}
	if err != nil {
		return nil, fmt.Errorf("append draft: %w", err)
	}
	return draft, nil
}

// ListVersions retrieves the full draft history for one question, oldest
// first. Available in any session state; history survives completion and
// expiry.
func (a *AnswerService) ListVersions(ctx context.Context, userID, sessionID, questionID uuid.UUID) ([]model.AnswerDraft, error) {
	if _, _, err := a.sessions.getOwned(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	drafts, err := a.answers.ListVersions(ctx, sessionID, questionID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	if drafts == nil {
		drafts = []model.AnswerDraft{}
	}
	return drafts, nil
}
