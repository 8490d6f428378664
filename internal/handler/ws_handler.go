package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/middleware"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/service"
	ws "github.com/examgate/examgate-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// clientErrMsg picks the message a failure is reported with over the wire.
// Tagged domain errors surface their registry message; anything else
// collapses to a generic line so datastore error text never reaches a client.
func clientErrMsg(err error) string {
	if e := apperrors.ByCode(apperrors.CodeOf(err)); e != nil {
		return e.Message
	}
	return "something went wrong, please retry"
}

// WSHandler streams the live session over a WebSocket: autosaves and
// violation reports come in, acknowledgements and state updates go out.
type WSHandler struct {
	sessionService *service.SessionService
	answerService  *service.AnswerService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.SessionService,
	answerService *service.AnswerService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		answerService:  answerService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:session_id/stream
// Upgrades to WebSocket for real-time autosave and session state.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	// Ownership and liveness are checked before the upgrade.
	sess, err := h.sessionService.Get(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no such session"})
		return
	}
	if sess.Status != model.SessionInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not in progress"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sessionID.String()).
		Str("user_id", claims.UserID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	// The request context dies with the HTTP handler; the stream outlives it.
	ctx := context.Background()

	for {
		raw, err := ws.ReadRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, claims.UserID, sessionID, raw)
		case ws.ActionViolation:
			h.handleViolation(ctx, conn, claims.UserID, sessionID, raw)
		case ws.ActionState:
			h.handleState(ctx, conn, claims.UserID, sessionID)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, claims.UserID, sessionID)
			return
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			ws.WriteError(conn, "unknown action")
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, userID, sessionID uuid.UUID, raw []byte) {
	var msg ws.AutosaveRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		ws.WriteError(conn, "malformed autosave")
		return
	}
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		ws.WriteError(conn, "invalid question ID")
		return
	}

	draft, err := h.answerService.Autosave(ctx, userID, sessionID, &model.AutosaveRequest{
		QuestionID: questionID,
		AnswerText: msg.Answer,
	})
	if err != nil {
		ws.WriteError(conn, clientErrMsg(err))
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:   ws.EventSaved,
		QID:     msg.QID,
		Version: draft.VersionNumber,
	})
}

func (h *WSHandler) handleViolation(ctx context.Context, conn *websocket.Conn, userID, sessionID uuid.UUID, raw []byte) {
	var msg ws.ViolationRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		ws.WriteError(conn, "malformed violation report")
		return
	}

	outcome, err := h.sessionService.RecordViolation(ctx, sessionID, userID, msg.Payload)
	if err != nil {
		ws.WriteError(conn, clientErrMsg(err))
		return
	}

	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:          ws.EventViolation,
		ViolationCount: outcome.ViolationCount,
		AutoSubmitted:  outcome.AutoSubmitted,
	})
}

func (h *WSHandler) handleState(ctx context.Context, conn *websocket.Conn, userID, sessionID uuid.UUID) {
	state, err := h.sessionService.State(ctx, sessionID, userID)
	if err != nil {
		ws.WriteError(conn, clientErrMsg(err))
		return
	}

	ws.WriteTyped(conn, ws.StateResponse{
		Event:            ws.EventState,
		Status:           string(state.Status),
		ViolationCount:   state.ViolationCount,
		RemainingSeconds: state.RemainingSeconds,
	})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, userID, sessionID uuid.UUID) {
	result, err := h.sessionService.Complete(ctx, sessionID, userID)
	if err != nil {
		ws.WriteError(conn, clientErrMsg(err))
		return
	}

	wsLog.Info().Str("response_id", result.Response.ID.String()).Msg("Submitted over WebSocket")
	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:      ws.EventSubmitted,
		ResponseID: result.Response.ID.String(),
	})
}
