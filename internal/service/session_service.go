package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/apperrors"
	"github.com/examgate/examgate-backend/internal/clock"
	"github.com/examgate/examgate-backend/internal/config"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/repository"
)

// SessionService drives the session state machine: join, start, violation
// accounting, completion and the lazy expiry sweep. All status changes go
// through conditional updates in storage, so concurrent calls cannot push a
// session through an illegal transition.
type SessionService struct {
	sessions   SessionStore
	answers    AnswerStore
	resps      ResponseStore
	users      UserStore
	violations ViolationStore
	exams      *ExamService
	access     *AccessService
	rdb        *redis.Client
	clk        clock.Clock
	cfg        *config.Config
	log        zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	answers AnswerStore,
	resps ResponseStore,
	users UserStore,
	violations ViolationStore,
	exams *ExamService,
	access *AccessService,
	rdb *redis.Client,
	clk clock.Clock,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:   sessions,
		answers:    answers,
		resps:      resps,
		users:      users,
		violations: violations,
		exams:      exams,
		access:     access,
		rdb:        rdb,
		clk:        clk,
		cfg:        cfg,
		log:        log.With().Str("component", "session_service").Logger(),
	}
}

// Join runs the access rules and creates a new NOT_STARTED session. The
// attempt ceiling is enforced inside the insert itself; a duplicate attempt
// number from a concurrent join is retried once with a fresh count.
func (s *SessionService) Join(ctx context.Context, userID uuid.UUID, email string, examID uuid.UUID, key AccessKey) (*model.Session, error) {
	dec, err := s.access.CheckAccess(ctx, userID, email, examID, key)
	if err != nil {
		return nil, err
	}
	if !dec.CanAccess {
		return nil, dec.Err()
	}

	sess := &model.Session{
		ExamID: examID,
		UserID: userID,
		Status: model.SessionNotStarted,
	}
	err = s.sessions.Create(ctx, sess, dec.Exam.MaxAttempts)
	if repository.IsUniqueViolation(err) {
		// Concurrent join computed the same attempt number. Retry once; the
		// ceiling check inside the insert stays authoritative.
		err = s.sessions.Create(ctx, sess, dec.Exam.MaxAttempts)
	}
	if err != nil {
		if repository.IsNotFound(err) || repository.IsUniqueViolation(err) {
			return nil, apperrors.ErrAttemptLimitExceeded
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Int("attempt", sess.AttemptNumber).
		Msg("Session created")
	return sess, nil
}

// Get retrieves a session owned by the calling student, applying the lazy
// expiry sweep first.
func (s *SessionService) Get(ctx context.Context, sessionID, userID uuid.UUID) (*model.Session, error) {
	sess, _, err := s.getOwned(ctx, sessionID, userID)
	return sess, err
}

// getOwned loads a session, enforces ownership and forces it to EXPIRED when
// the exam window has already closed. Every session operation goes through
// here first.
func (s *SessionService) getOwned(ctx context.Context, sessionID, userID uuid.UUID) (*model.Session, *model.Exam, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, apperrors.ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != userID {
		return nil, nil, apperrors.ErrSessionNotOwned
	}

	exam, err := s.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, nil, err
	}

	if !sess.Status.Terminal() && exam.Closed(s.clk.Now()) {
		if err := s.sessions.MarkExpired(ctx, sessionID); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to expire session")
		}
		sess.Status = model.SessionExpired
	}

	return sess, exam, nil
}

// Start moves a NOT_STARTED session to IN_PROGRESS and records the start
// time. The transition is a compare-and-swap, so two devices starting the
// same session produce exactly one start time.
func (s *SessionService) Start(ctx context.Context, sessionID, userID uuid.UUID) (*model.Session, error) {
	sess, _, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case model.SessionExpired:
		return nil, apperrors.ErrExamTimeExpired
	case model.SessionInProgress, model.SessionCompleted:
		return nil, apperrors.ErrSessionAlreadyStarted
	}

	updated, err := s.sessions.Start(ctx, sessionID, s.clk.Now())
	if err != nil {
		if repository.IsNotFound(err) {
			// Lost the CAS to a concurrent start or expiry.
			return nil, apperrors.ErrSessionAlreadyStarted
		}
		return nil, fmt.Errorf("start session: %w", err)
	}

	// Cache the start time so remaining-time reads skip PostgreSQL. Redis and
	// the row hold the same instant; a miss falls back to the row.
	startKey := config.CacheKey.SessionStartKey(sessionID.String())
	if err := s.rdb.Set(ctx, startKey, updated.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to cache start time")
	}

	return updated, nil
}

// SessionState is the live view a client polls while taking the exam.
type SessionState struct {
	SessionID        uuid.UUID           `json:"session_id"`
	Status           model.SessionStatus `json:"status"`
	ViolationCount   int                 `json:"violation_count"`
	RemainingSeconds float64             `json:"remaining_seconds"`
}

// State reports the session status and remaining time. The deadline is the
// earlier of started-at plus duration and the exam window end; the start
// time is read from Redis with a PostgreSQL fallback that self-heals the
// cache.
func (s *SessionService) State(ctx context.Context, sessionID, userID uuid.UUID) (*SessionState, error) {
	sess, exam, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	state := &SessionState{
		SessionID:      sess.ID,
		Status:         sess.Status,
		ViolationCount: sess.ViolationCount,
	}
	if sess.Status != model.SessionInProgress {
		return state, nil
	}

	startUnix, err := s.startTime(ctx, sess)
	if err != nil {
		return nil, err
	}

	deadline := time.Unix(startUnix, 0).Add(time.Duration(exam.DurationMinutes) * time.Minute)
	if exam.EndTime.Before(deadline) {
		deadline = exam.EndTime
	}

	remaining := deadline.Sub(s.clk.Now())
	if remaining < 0 {
		remaining = 0
	}
	state.RemainingSeconds = remaining.Seconds()
	return state, nil
}

func (s *SessionService) startTime(ctx context.Context, sess *model.Session) (int64, error) {
	startKey := config.CacheKey.SessionStartKey(sess.ID.String())

	val, err := s.rdb.Get(ctx, startKey).Result()
	if err == nil {
		if unix, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			return unix, nil
		}
		s.log.Warn().Str("session_id", sess.ID.String()).Msg("Corrupt start time in cache")
	} else if err != redis.Nil {
		s.log.Warn().Err(err).Msg("Redis unavailable, reading start time from row")
	}

	if sess.StartedAt == nil {
		return 0, apperrors.ErrSessionNotActive
	}
	unix := sess.StartedAt.Unix()
	// Self-heal so the next read is fast.
	_ = s.rdb.Set(ctx, startKey, unix, 0).Err()
	return unix, nil
}

// ViolationOutcome reports the updated violation tally and whether it
// triggered an automatic submission.
type ViolationOutcome struct {
	ViolationCount int  `json:"violation_count"`
	AutoSubmitted  bool `json:"auto_submitted"`
}

// RecordViolation increments the proctoring tally for an IN_PROGRESS session
// and queues the event for asynchronous persistence. Reaching the exam's
// violation ceiling force-completes the session with whatever drafts exist.
func (s *SessionService) RecordViolation(ctx context.Context, sessionID, userID uuid.UUID, payload string) (*ViolationOutcome, error) {
	sess, exam, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case model.SessionExpired:
		return nil, apperrors.ErrSessionExpired
	case model.SessionNotStarted, model.SessionCompleted:
		return nil, apperrors.ErrSessionNotActive
	}

	count, err := s.sessions.IncrementViolations(ctx, sessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			// Session left IN_PROGRESS between the read and the increment.
			return nil, apperrors.ErrSessionNotActive
		}
		return nil, fmt.Errorf("increment violations: %w", err)
	}

	s.queueViolation(ctx, sess, payload)

	outcome := &ViolationOutcome{ViolationCount: count}
	ceiling := exam.MaxViolations
	if ceiling <= 0 {
		ceiling = s.cfg.DefaultMaxViolations
	}
	if ceiling > 0 && count >= ceiling {
		if _, err := s.finalize(ctx, sess); err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Auto-submit after violation ceiling failed")
		} else {
			outcome.AutoSubmitted = true
			s.log.Info().
				Str("session_id", sessionID.String()).
				Int("violations", count).
				Msg("Session auto-submitted at violation ceiling")
		}
	}
	return outcome, nil
}

// queueViolation pushes the event onto the Redis list drained by the
// violation worker. Loss here costs an audit row, never the tally, so a
// push failure is logged and swallowed.
func (s *SessionService) queueViolation(ctx context.Context, sess *model.Session, payload string) {
	event := map[string]interface{}{
		"session_id": sess.ID,
		"exam_id":    sess.ExamID,
		"user_id":    sess.UserID,
		"payload":    payload,
		"timestamp":  s.clk.Now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal violation event")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to queue violation event")
	}
}

// CompletionResult is the terminal view returned by Complete.
type CompletionResult struct {
	Session  *model.Session  `json:"session"`
	Response *model.Response `json:"response"`
}

// Complete moves an IN_PROGRESS session to COMPLETED and snapshots the
// latest draft per question into a gradable response. Calling it again on a
// completed session returns the same response.
func (s *SessionService) Complete(ctx context.Context, sessionID, userID uuid.UUID) (*CompletionResult, error) {
	sess, _, err := s.getOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case model.SessionCompleted:
		return s.completedResult(ctx, sess)
	case model.SessionExpired:
		return nil, apperrors.ErrSessionExpired
	case model.SessionNotStarted:
		return nil, apperrors.ErrSessionNotActive
	}

	return s.finalize(ctx, sess)
}

// finalize performs the COMPLETED transition and snapshot for a session
// known to be IN_PROGRESS. Losing the transition race to another completion
// degrades to the idempotent path.
func (s *SessionService) finalize(ctx context.Context, sess *model.Session) (*CompletionResult, error) {
	updated, err := s.sessions.Complete(ctx, sess.ID, s.clk.Now())
	if err != nil {
		if repository.IsNotFound(err) {
			current, gerr := s.sessions.GetByID(ctx, sess.ID)
			if gerr != nil {
				return nil, fmt.Errorf("re-read session: %w", gerr)
			}
			if current.Status == model.SessionCompleted {
				return s.completedResult(ctx, current)
			}
			return nil, apperrors.ErrSessionNotActive
		}
		return nil, fmt.Errorf("complete session: %w", err)
	}

	resp, err := s.snapshot(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", updated.ID.String()).
		Str("response_id", resp.ID.String()).
		Msg("Session completed")
	return &CompletionResult{Session: updated, Response: resp}, nil
}

// completedResult serves the idempotent completion path. A crash between
// the status flip and the snapshot leaves a completed session without a
// response; re-running the snapshot here repairs it.
func (s *SessionService) completedResult(ctx context.Context, sess *model.Session) (*CompletionResult, error) {
	resp, err := s.resps.GetBySessionID(ctx, sess.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			resp, err = s.snapshot(ctx, sess)
			if err != nil {
				return nil, err
			}
			return &CompletionResult{Session: sess, Response: resp}, nil
		}
		return nil, fmt.Errorf("get response: %w", err)
	}
	return &CompletionResult{Session: sess, Response: resp}, nil
}

func (s *SessionService) snapshot(ctx context.Context, sess *model.Session) (*model.Response, error) {
	answers, err := s.answers.LatestBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("collect latest drafts: %w", err)
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	resp := &model.Response{
		ExamID:       sess.ExamID,
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		StudentEmail: user.Email,
	}
	created, err := s.resps.CreateSnapshot(ctx, resp, answers)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return created, nil
}

// Results retrieves paginated grading results for an exam's sessions. Only
// the exam's owner may read them.
func (s *SessionService) Results(ctx context.Context, teacherID, examID uuid.UUID, page, perPage int) ([]repository.SessionResult, int64, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, 0, err
	}
	if exam.CreatedBy != teacherID {
		return nil, 0, apperrors.ErrNotExamOwner
	}
	return s.sessions.ListResultsByExam(ctx, examID, page, perPage)
}

// ViolationLog returns the persisted violation audit trail for one session,
// oldest first. Restricted to the owner of the session's exam. Events flow
// through the queue worker, so very recent reports may not be visible yet.
func (s *SessionService) ViolationLog(ctx context.Context, teacherID, sessionID uuid.UUID) ([]repository.ViolationEvent, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, err
	}
	exam, err := s.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedBy != teacherID {
		return nil, apperrors.ErrNotExamOwner
	}
	events, err := s.violations.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []repository.ViolationEvent{}
	}
	return events, nil
}
