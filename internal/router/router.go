package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examgate/examgate-backend/internal/config"
	"github.com/examgate/examgate-backend/internal/handler"
	"github.com/examgate/examgate-backend/internal/middleware"
	"github.com/examgate/examgate-backend/internal/response"
	"github.com/examgate/examgate-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Invitation    *handler.InvitationHandler
	StudentPortal *handler.StudentPortalHandler
	TeacherPortal *handler.TeacherPortalHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the public invitation routes (30 requests per
	// minute per IP). Tokens arrive over email, so these endpoints see
	// unauthenticated traffic and the occasional brute-force probe.
	inviteLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 0. Invitation Group (Public, Rate Limited) ────────────────────
	invitations := router.Group("/api/v1/invitations")
	invitations.Use(inviteLimiter.Middleware())
	{
		invitations.GET("/:token", handlers.Invitation.Validate)
		invitations.POST("/:token/redeem", handlers.Invitation.Redeem)
	}

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/teacher/login", handlers.Auth.TeacherLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.Me)
		auth.GET("/teacher/me", middleware.RequireTeacherJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceLogin(authService),
	)
	{
		studentAPI.POST("/exams/:exam_id/access", handlers.StudentPortal.CheckAccess)
		studentAPI.POST("/exams/:exam_id/join", handlers.StudentPortal.Join)

		studentAPI.GET("/sessions/:session_id", handlers.StudentPortal.GetSession)
		studentAPI.POST("/sessions/:session_id/start", handlers.StudentPortal.Start)
		studentAPI.GET("/sessions/:session_id/state", handlers.StudentPortal.GetState)
		studentAPI.POST("/sessions/:session_id/violations", handlers.StudentPortal.RecordViolation)
		studentAPI.POST("/sessions/:session_id/complete", handlers.StudentPortal.Complete)

		studentAPI.POST("/sessions/:session_id/answers", handlers.StudentPortal.Autosave)
		studentAPI.GET("/sessions/:session_id/answers/:question_id/versions", handlers.StudentPortal.ListVersions)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		teacherAPI.POST("/exams/:exam_id/invitations", handlers.TeacherPortal.CreateInvitation)
		teacherAPI.GET("/exams/:exam_id/results", handlers.TeacherPortal.ListResults)
		teacherAPI.GET("/sessions/:session_id/violations", handlers.TeacherPortal.ViolationLog)

		teacherAPI.GET("/responses/:response_id", handlers.TeacherPortal.GetResponse)
		teacherAPI.PUT("/responses/:response_id/grades", handlers.TeacherPortal.ApplyGrades)
	}

	return router
}
