package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/response"
	"github.com/examgate/examgate-backend/internal/service"
)

// InvitationHandler handles the public (unauthenticated) invitation
// endpoints. Both sit behind a rate limiter since tokens arrive in the URL.
type InvitationHandler struct {
	invitationService *service.InvitationService
}

// NewInvitationHandler creates a new InvitationHandler.
func NewInvitationHandler(invitationService *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// failInvitation maps token failures onto the wire. The invitation endpoints
// always answer a bad token with 400 regardless of why it is bad, so callers
// cannot distinguish a token that never existed from one someone else used.
func failInvitation(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTokenNotFound),
		errors.Is(err, apperrors.ErrTokenExpired),
		errors.Is(err, apperrors.ErrTokenAlreadyRedeemed):
		response.Fail(c, http.StatusBadRequest, response.ErrCode(apperrors.CodeOf(err)))
	default:
		response.FailErr(c, err)
	}
}

// Validate godoc
// GET /api/v1/invitations/:token
// Checks a token without consuming it. Safe to call repeatedly.
func (h *InvitationHandler) Validate(c *gin.Context) {
	check, err := h.invitationService.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		failInvitation(c, err)
		return
	}

	body := gin.H{
		"valid":            check.Valid,
		"already_redeemed": check.AlreadyRedeemed,
	}
	if check.Exam != nil {
		body["exam"] = gin.H{
			"id":         check.Exam.ID,
			"title":      check.Exam.Title,
			"start_time": check.Exam.StartTime,
			"end_time":   check.Exam.EndTime,
		}
	}
	response.Success(c, http.StatusOK, body)
}

// Redeem godoc
// POST /api/v1/invitations/:token/redeem
// Consumes a pending token exactly once: provisions the student account if
// needed and returns a logged-in access token.
func (h *InvitationHandler) Redeem(c *gin.Context) {
	result, err := h.invitationService.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		failInvitation(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"redemption": result})
}
