package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/middleware"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/response"
	"github.com/examgate/examgate-backend/internal/service"
	"github.com/examgate/examgate-backend/internal/validator"
)

// StudentPortalHandler handles the student-facing exam lifecycle: access
// checks, joining, starting, autosaving, violations and completion.
type StudentPortalHandler struct {
	sessionService *service.SessionService
	accessService  *service.AccessService
	answerService  *service.AnswerService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	sessionService *service.SessionService,
	accessService *service.AccessService,
	answerService *service.AnswerService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService: sessionService,
		accessService:  accessService,
		answerService:  answerService,
	}
}

// failAutosave maps autosave failures onto the wire. A session that is no
// longer writable answers 403, same as an expired one, so clients treat both
// as "stop autosaving".
func failAutosave(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrSessionNotActive) {
		response.Fail(c, http.StatusForbidden, response.ErrCode(apperrors.CodeOf(err)))
		return
	}
	response.FailErr(c, err)
}

// CheckAccess godoc
// POST /api/v1/student/exams/:exam_id/access
// Evaluates the access rules without creating anything. The decision is
// returned as data, not as an error, so clients can render the reason.
func (h *StudentPortalHandler) CheckAccess(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	decision, err := h.accessService.CheckAccess(c.Request.Context(), claims.UserID, claims.Email, examID, service.AccessKey{
		ExamCode:        req.ExamCode,
		InvitationToken: req.InvitationToken,
	})
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"decision": decision})
}

// Join godoc
// POST /api/v1/student/exams/:exam_id/join
// Runs the access rules and creates a numbered NOT_STARTED session.
func (h *StudentPortalHandler) Join(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Join(c.Request.Context(), claims.UserID, claims.Email, examID, service.AccessKey{
		ExamCode:        req.ExamCode,
		InvitationToken: req.InvitationToken,
	})
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// GetSession godoc
// GET /api/v1/student/sessions/:session_id
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// Start godoc
// POST /api/v1/student/sessions/:session_id/start
// Moves the session to IN_PROGRESS and pins the start time.
func (h *StudentPortalHandler) Start(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetState godoc
// GET /api/v1/student/sessions/:session_id/state
// Live view: status, violation tally and remaining seconds.
func (h *StudentPortalHandler) GetState(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// RecordViolation godoc
// POST /api/v1/student/sessions/:session_id/violations
func (h *StudentPortalHandler) RecordViolation(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.RecordViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.sessionService.RecordViolation(c.Request.Context(), sessionID, claims.UserID, req.Payload)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violation": outcome})
}

// Complete godoc
// POST /api/v1/student/sessions/:session_id/complete
// Finishes the session and snapshots the latest drafts. Idempotent.
func (h *StudentPortalHandler) Complete(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Complete(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session":  result.Session,
		"response": result.Response,
	})
}

// Autosave godoc
// POST /api/v1/student/sessions/:session_id/answers
// Appends a new draft version for one question.
func (h *StudentPortalHandler) Autosave(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	draft, err := h.answerService.Autosave(c.Request.Context(), claims.UserID, sessionID, &req)
	if err != nil {
		failAutosave(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"draft": draft})
}

// ListVersions godoc
// GET /api/v1/student/sessions/:session_id/answers/:question_id/versions
// Full draft history for one question, oldest first.
func (h *StudentPortalHandler) ListVersions(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	drafts, err := h.answerService.ListVersions(c.Request.Context(), claims.UserID, sessionID, questionID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"versions": drafts})
}

func (h *StudentPortalHandler) sessionParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}
