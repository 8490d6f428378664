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

// GradingService applies teacher grades to completed responses. A grading
// batch is validated in full against the question ceilings before anything
// is written; one bad entry rejects the whole batch.
type GradingService struct {
	resps     ResponseStore
	questions QuestionStore
	exams     *ExamService
	log       zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	resps ResponseStore,
	questions QuestionStore,
	exams *ExamService,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		resps:     resps,
		questions: questions,
		exams:     exams,
		log:       log.With().Str("component", "grading_service").Logger(),
	}
}

// GradedResponse bundles a response with its per-question grades.
type GradedResponse struct {
	Response *model.Response       `json:"response"`
	Grades   []model.QuestionGrade `json:"grades"`
}

// ApplyGrades validates and writes a grading batch. Each awarded mark must
// fall within [0, max] for its question; re-grading a question overwrites
// the previous grade; the response total is recomputed as the sum over all
// of its grades in the same transaction.
func (g *GradingService) ApplyGrades(ctx context.Context, teacherID, responseID uuid.UUID, req *model.ApplyGradesRequest) (*GradedResponse, error) {
	resp, err := g.resps.GetByID(ctx, responseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrResponseNotFound
		}
		return nil, fmt.Errorf("get response: %w", err)
	}

	exam, err := g.exams.GetExam(ctx, resp.ExamID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedBy != teacherID {
		return nil, apperrors.ErrNotExamOwner
	}

	maxMarks, err := g.questions.MaxMarksByExam(ctx, resp.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load question ceilings: %w", err)
	}

	grades := make(map[uuid.UUID]model.GradeInput, len(req.Grades))
	for qidStr, in := range req.Grades {
		qid, err := uuid.Parse(qidStr)
		if err != nil {
			return nil, apperrors.ErrQuestionNotFound
		}
		max, ok := maxMarks[qid]
		if !ok {
			return nil, apperrors.ErrQuestionNotFound
		}
		if in.MarksObtained < 0 || in.MarksObtained > max {
			return nil, apperrors.ErrMarksExceedMaximum
		}
		grades[qid] = in
	}

	updated, err := g.resps.ApplyGrades(ctx, responseID, grades)
	if err != nil {
		return nil, fmt.Errorf("apply grades: %w", err)
	}

	result, err := g.resps.ListGrades(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}

	g.log.Info().
		Str("response_id", responseID.String()).
		Int("graded", len(grades)).
		Float64("total", updated.TotalScore).
		Msg("Grades applied")
	return &GradedResponse{Response: updated, Grades: result}, nil
}

// GetResponse retrieves a response with its grades for the owning teacher.
func (g *GradingService) GetResponse(ctx context.Context, teacherID, responseID uuid.UUID) (*GradedResponse, error) {
	resp, err := g.resps.GetByID(ctx, responseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrResponseNotFound
		}
		return nil, fmt.Errorf("get response: %w", err)
	}

	exam, err := g.exams.GetExam(ctx, resp.ExamID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedBy != teacherID {
		return nil, apperrors.ErrNotExamOwner
	}

	grades, err := g.resps.ListGrades(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return &GradedResponse{Response: resp, Grades: grades}, nil
}
