package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examgate/examgate-backend/internal/middleware"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/response"
	"github.com/examgate/examgate-backend/internal/service"
	"github.com/examgate/examgate-backend/internal/validator"
)

// TeacherPortalHandler handles the teacher-facing endpoints: issuing
// invitations, reading results and grading responses.
type TeacherPortalHandler struct {
	invitationService *service.InvitationService
	sessionService    *service.SessionService
	gradingService    *service.GradingService
}

// NewTeacherPortalHandler creates a new TeacherPortalHandler.
func NewTeacherPortalHandler(
	invitationService *service.InvitationService,
	sessionService *service.SessionService,
	gradingService *service.GradingService,
) *TeacherPortalHandler {
	return &TeacherPortalHandler{
		invitationService: invitationService,
		sessionService:    sessionService,
		gradingService:    gradingService,
	}
}

// CreateInvitation godoc
// POST /api/v1/teacher/exams/:exam_id/invitations
// Issues a pending single-use token for one student.
func (h *TeacherPortalHandler) CreateInvitation(c *gin.Context) {
	claims, examID, ok := h.examParams(c)
	if !ok {
		return
	}

	var req model.CreateInvitationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	inv, err := h.invitationService.CreateInvitation(c.Request.Context(), claims.UserID, examID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"invitation": inv})
}

// ListResults godoc
// GET /api/v1/teacher/exams/:exam_id/results?page=&per_page=
// Paginated per-session results for the teacher's exam.
func (h *TeacherPortalHandler) ListResults(c *gin.Context) {
	claims, examID, ok := h.examParams(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	results, total, err := h.sessionService.Results(c.Request.Context(), claims.UserID, examID, page, perPage)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results},
		response.NewPagination(page, perPage, int(total)))
}

// ViolationLog godoc
// GET /api/v1/teacher/sessions/:session_id/violations
// The persisted violation audit trail for one session, oldest first.
func (h *TeacherPortalHandler) ViolationLog(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.sessionService.ViolationLog(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": events})
}

// GetResponse godoc
// GET /api/v1/teacher/responses/:response_id
// A response with its grades.
func (h *TeacherPortalHandler) GetResponse(c *gin.Context) {
	claims, responseID, ok := h.responseParams(c)
	if !ok {
		return
	}

	graded, err := h.gradingService.GetResponse(c.Request.Context(), claims.UserID, responseID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"response": graded.Response,
		"grades":   graded.Grades,
	})
}

// ApplyGrades godoc
// PUT /api/v1/teacher/responses/:response_id/grades
// Validates and writes a grading batch; all entries or none.
func (h *TeacherPortalHandler) ApplyGrades(c *gin.Context) {
	claims, responseID, ok := h.responseParams(c)
	if !ok {
		return
	}

	var req model.ApplyGradesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	graded, err := h.gradingService.ApplyGrades(c.Request.Context(), claims.UserID, responseID, &req)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"response": graded.Response,
		"grades":   graded.Grades,
	})
}

func (h *TeacherPortalHandler) examParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, examID, true
}

func (h *TeacherPortalHandler) responseParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	responseID, err := uuid.Parse(c.Param("response_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, responseID, true
}
