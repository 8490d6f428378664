package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/repository"
)

// Store interfaces abstract the persistence layer so services can be
// exercised against in-memory fakes. The postgres implementations live
// in internal/repository.

type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

type InvitationStore interface {
	Create(ctx context.Context, inv *model.Invitation) error
	GetByToken(ctx context.Context, token string) (*model.Invitation, error)
	GetByExamAndEmail(ctx context.Context, examID uuid.UUID, email string) (*model.Invitation, error)
	MarkExpired(ctx context.Context, token string) error
	Redeem(ctx context.Context, token string, redeemedAt time.Time) (*model.Invitation, error)
}

type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	CountByExamAndUser(ctx context.Context, examID, userID uuid.UUID) (int, error)
	Create(ctx context.Context, sess *model.Session, maxAttempts int) error
	Start(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.Session, error)
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) (*model.Session, error)
	MarkExpired(ctx context.Context, id uuid.UUID) error
	IncrementViolations(ctx context.Context, id uuid.UUID) (int, error)
	ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.SessionResult, int64, error)
}

type AnswerStore interface {
	AppendVersion(ctx context.Context, sessionID, questionID uuid.UUID, text string) (*model.AnswerDraft, error)
	ListVersions(ctx context.Context, sessionID, questionID uuid.UUID) ([]model.AnswerDraft, error)
	LatestBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error)
}

type ViolationStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]repository.ViolationEvent, error)
}

type QuestionStore interface {
	MaxMarksByExam(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]float64, error)
	ExamHasQuestion(ctx context.Context, examID, questionID uuid.UUID) (bool, error)
}

type ResponseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Response, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*model.Response, error)
	CreateSnapshot(ctx context.Context, resp *model.Response, answers map[uuid.UUID]string) (*model.Response, error)
	ApplyGrades(ctx context.Context, responseID uuid.UUID, grades map[uuid.UUID]model.GradeInput) (*model.Response, error)
	ListGrades(ctx context.Context, responseID uuid.UUID) ([]model.QuestionGrade, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	ProvisionStudent(ctx context.Context, email, name, passwordHash string) (*model.User, bool, error)
}
