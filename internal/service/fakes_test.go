package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examgate/examgate-backend/internal/clock"
	"github.com/examgate/examgate-backend/internal/config"
	"github.com/examgate/examgate-backend/internal/model"
	"github.com/examgate/examgate-backend/internal/repository"
)

// The fakes mirror the storage-level contracts the services rely on: not
// found surfaces as pgx.ErrNoRows, duplicate keys as a 23505 PgError, and
// every conditional update really is conditional under the mutex.

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]model.Exam
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: make(map[uuid.UUID]model.Exam)}
}

func (f *fakeExamStore) put(e model.Exam) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exams[e.ID] = e
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeExamStore) ListPublished(_ context.Context) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.IsPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeInvitationStore struct {
	mu      sync.Mutex
	byToken map[string]model.Invitation
}

func newFakeInvitationStore() *fakeInvitationStore {
	return &fakeInvitationStore{byToken: make(map[string]model.Invitation)}
}

func (f *fakeInvitationStore) Create(_ context.Context, inv *model.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = model.InvitationPending
	}
	inv.CreatedAt = time.Now()
	f.byToken[inv.Token] = *inv
	return nil
}

func (f *fakeInvitationStore) GetByToken(_ context.Context, token string) (*model.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &inv, nil
}

func (f *fakeInvitationStore) GetByExamAndEmail(_ context.Context, examID uuid.UUID, email string) (*model.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.byToken {
		if inv.ExamID == examID && inv.StudentEmail == email {
			return &inv, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeInvitationStore) MarkExpired(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok || inv.Status != model.InvitationPending {
		return nil
	}
	inv.Status = model.InvitationExpired
	f.byToken[token] = inv
	return nil
}

func (f *fakeInvitationStore) Redeem(_ context.Context, token string, redeemedAt time.Time) (*model.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byToken[token]
	if !ok || inv.Status != model.InvitationPending {
		return nil, pgx.ErrNoRows
	}
	inv.Status = model.InvitationRedeemed
	inv.RedeemedAt = &redeemedAt
	f.byToken[token] = inv
	return &inv, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.Session
	// conflictNext forces the next Create to report a duplicate attempt
	// number, simulating a lost insert race.
	conflictNext bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]model.Session)}
}

func (f *fakeSessionStore) put(s model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

func (f *fakeSessionStore) get(id uuid.UUID) model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (f *fakeSessionStore) CountByExamAndUser(_ context.Context, examID, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countLocked(examID, userID), nil
}

func (f *fakeSessionStore) countLocked(examID, userID uuid.UUID) int {
	n := 0
	for _, s := range f.sessions {
		if s.ExamID == examID && s.UserID == userID {
			n++
		}
	}
	return n
}

func (f *fakeSessionStore) Create(_ context.Context, sess *model.Session, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictNext {
		f.conflictNext = false
		return uniqueViolation()
	}
	count := f.countLocked(sess.ExamID, sess.UserID)
	if count >= maxAttempts {
		return pgx.ErrNoRows
	}
	sess.ID = uuid.New()
	sess.AttemptNumber = count + 1
	sess.Status = model.SessionNotStarted
	sess.CreatedAt = time.Now()
	f.sessions[sess.ID] = *sess
	return nil
}

func (f *fakeSessionStore) Start(_ context.Context, id uuid.UUID, startedAt time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionNotStarted {
		return nil, pgx.ErrNoRows
	}
	s.Status = model.SessionInProgress
	s.StartedAt = &startedAt
	f.sessions[id] = s
	return &s, nil
}

func (f *fakeSessionStore) Complete(_ context.Context, id uuid.UUID, completedAt time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionInProgress {
		return nil, pgx.ErrNoRows
	}
	s.Status = model.SessionCompleted
	s.FinishedAt = &completedAt
	f.sessions[id] = s
	return &s, nil
}

func (f *fakeSessionStore) MarkExpired(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status.Terminal() {
		return nil
	}
	s.Status = model.SessionExpired
	f.sessions[id] = s
	return nil
}

func (f *fakeSessionStore) IncrementViolations(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionInProgress {
		return 0, pgx.ErrNoRows
	}
	s.ViolationCount++
	f.sessions[id] = s
	return s.ViolationCount, nil
}

func (f *fakeSessionStore) ListResultsByExam(_ context.Context, examID uuid.UUID, page, perPage int) ([]repository.SessionResult, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.SessionResult
	for _, s := range f.sessions {
		if s.ExamID == examID {
			out = append(out, repository.SessionResult{
				SessionID:     s.ID,
				UserID:        s.UserID,
				AttemptNumber: s.AttemptNumber,
				Status:        s.Status,
				StartedAt:     s.StartedAt,
				FinishedAt:    s.FinishedAt,
			})
		}
	}
	return out, int64(len(out)), nil
}

type fakeAnswerStore struct {
	mu     sync.Mutex
	drafts []model.AnswerDraft
	nextID int64
	// conflictNext forces the next AppendVersion to report a duplicate
	// version number, simulating a lost append race.
	conflictNext bool
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{}
}

func (f *fakeAnswerStore) AppendVersion(_ context.Context, sessionID, questionID uuid.UUID, text string) (*model.AnswerDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictNext {
		f.conflictNext = false
		return nil, uniqueViolation()
	}
	max := 0
	for _, d := range f.drafts {
		if d.SessionID == sessionID && d.QuestionID == questionID && d.VersionNumber > max {
			max = d.VersionNumber
		}
	}
	f.nextID++
	draft := model.AnswerDraft{
		ID:            f.nextID,
		SessionID:     sessionID,
		QuestionID:    questionID,
		VersionNumber: max + 1,
		AnswerText:    text,
		SavedAt:       time.Now(),
	}
	f.drafts = append(f.drafts, draft)
	return &draft, nil
}

func (f *fakeAnswerStore) ListVersions(_ context.Context, sessionID, questionID uuid.UUID) ([]model.AnswerDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AnswerDraft
	for _, d := range f.drafts {
		if d.SessionID == sessionID && d.QuestionID == questionID {
			out = append(out, d)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].VersionNumber < out[j-1].VersionNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeAnswerStore) LatestBySession(_ context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	version := make(map[uuid.UUID]int)
	latest := make(map[uuid.UUID]string)
	for _, d := range f.drafts {
		if d.SessionID != sessionID {
			continue
		}
		if d.VersionNumber > version[d.QuestionID] {
			version[d.QuestionID] = d.VersionNumber
			latest[d.QuestionID] = d.AnswerText
		}
	}
	return latest, nil
}

type fakeQuestionStore struct {
	mu    sync.Mutex
	marks map[uuid.UUID]map[uuid.UUID]float64
}

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{marks: make(map[uuid.UUID]map[uuid.UUID]float64)}
}

func (f *fakeQuestionStore) put(examID, questionID uuid.UUID, max float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marks[examID] == nil {
		f.marks[examID] = make(map[uuid.UUID]float64)
	}
	f.marks[examID][questionID] = max
}

func (f *fakeQuestionStore) MaxMarksByExam(_ context.Context, examID uuid.UUID) (map[uuid.UUID]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]float64, len(f.marks[examID]))
	for qid, max := range f.marks[examID] {
		out[qid] = max
	}
	return out, nil
}

func (f *fakeQuestionStore) ExamHasQuestion(_ context.Context, examID, questionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.marks[examID][questionID]
	return ok, nil
}

type fakeResponseStore struct {
	mu        sync.Mutex
	responses map[uuid.UUID]model.Response
	bySession map[uuid.UUID]uuid.UUID
	answers   map[uuid.UUID]map[uuid.UUID]string
	grades    map[uuid.UUID]map[uuid.UUID]model.QuestionGrade
}

func newFakeResponseStore() *fakeResponseStore {
	return &fakeResponseStore{
		responses: make(map[uuid.UUID]model.Response),
		bySession: make(map[uuid.UUID]uuid.UUID),
		answers:   make(map[uuid.UUID]map[uuid.UUID]string),
		grades:    make(map[uuid.UUID]map[uuid.UUID]model.QuestionGrade),
	}
}

func (f *fakeResponseStore) GetByID(_ context.Context, id uuid.UUID) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &r, nil
}

func (f *fakeResponseStore) GetBySessionID(_ context.Context, sessionID uuid.UUID) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.bySession[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	r := f.responses[id]
	return &r, nil
}

func (f *fakeResponseStore) CreateSnapshot(_ context.Context, resp *model.Response, answers map[uuid.UUID]string) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.bySession[resp.SessionID]; ok {
		existing := f.responses[id]
		return &existing, nil
	}
	resp.ID = uuid.New()
	resp.CreatedAt = time.Now()
	resp.UpdatedAt = resp.CreatedAt
	f.responses[resp.ID] = *resp
	f.bySession[resp.SessionID] = resp.ID
	snap := make(map[uuid.UUID]string, len(answers))
	for qid, text := range answers {
		snap[qid] = text
	}
	f.answers[resp.ID] = snap
	return resp, nil
}

func (f *fakeResponseStore) ApplyGrades(_ context.Context, responseID uuid.UUID, grades map[uuid.UUID]model.GradeInput) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[responseID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if f.grades[responseID] == nil {
		f.grades[responseID] = make(map[uuid.UUID]model.QuestionGrade)
	}
	for qid, in := range grades {
		f.grades[responseID][qid] = model.QuestionGrade{
			ResponseID:    responseID,
			QuestionID:    qid,
			MarksObtained: in.MarksObtained,
			Feedback:      in.Feedback,
			GradedAt:      time.Now(),
		}
	}
	total := 0.0
	for _, g := range f.grades[responseID] {
		total += g.MarksObtained
	}
	r.TotalScore = total
	r.UpdatedAt = time.Now()
	f.responses[responseID] = r
	return &r, nil
}

func (f *fakeResponseStore) ListGrades(_ context.Context, responseID uuid.UUID) ([]model.QuestionGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuestionGrade
	for _, g := range f.grades[responseID] {
		out = append(out, g)
	}
	return out, nil
}

type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byID:    make(map[uuid.UUID]model.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	u := f.byID[id]
	return &u, nil
}

func (f *fakeUserStore) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[user.Email]; ok {
		return uniqueViolation()
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	f.byID[user.ID] = *user
	f.byEmail[user.Email] = user.ID
	return nil
}

func (f *fakeUserStore) ProvisionStudent(_ context.Context, email, name, passwordHash string) (*model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byEmail[email]; ok {
		u := f.byID[id]
		return &u, false, nil
	}
	u := model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		Role:         model.RoleStudent,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.byID[u.ID] = u
	f.byEmail[email] = u.ID
	return &u, true, nil
}

type fakeViolationStore struct {
	mu     sync.Mutex
	events []repository.ViolationEvent
}

func (f *fakeViolationStore) put(ev repository.ViolationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
}

func (f *fakeViolationStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]repository.ViolationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.ViolationEvent
	for _, ev := range f.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// fixture wires the full service graph over the fakes, a miniredis-backed
// Redis client and a fake clock.
type fixture struct {
	clk       *clock.Fake
	cfg       *config.Config
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	exams     *fakeExamStore
	invs      *fakeInvitationStore
	sessions  *fakeSessionStore
	answers   *fakeAnswerStore
	questions *fakeQuestionStore
	resps     *fakeResponseStore
	users     *fakeUserStore
	events    *fakeViolationStore

	auth    *AuthService
	examSvc *ExamService
	invSvc  *InvitationService
	access  *AccessService
	sessSvc *SessionService
	ansSvc  *AnswerService
	grading *GradingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		clk: clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
		cfg: &config.Config{
			JWTSecret:            "test-secret",
			JWTExpiry:            time.Hour,
			BcryptCost:           4,
			InvitationTTL:        72 * time.Hour,
			DefaultMaxViolations: 5,
		},
		mr:        mr,
		rdb:       rdb,
		exams:     newFakeExamStore(),
		invs:      newFakeInvitationStore(),
		sessions:  newFakeSessionStore(),
		answers:   newFakeAnswerStore(),
		questions: newFakeQuestionStore(),
		resps:     newFakeResponseStore(),
		users:     newFakeUserStore(),
		events:    &fakeViolationStore{},
	}

	log := zerolog.Nop()
	f.auth = NewAuthService(f.cfg, rdb)
	f.examSvc = NewExamService(f.exams, rdb, log)
	f.invSvc = NewInvitationService(f.invs, f.users, f.examSvc, f.auth, f.clk, f.cfg, log)
	f.access = NewAccessService(f.examSvc, f.sessions, f.invs, f.clk, log)
	f.sessSvc = NewSessionService(f.sessions, f.answers, f.resps, f.users, f.events, f.examSvc, f.access, rdb, f.clk, f.cfg, log)
	f.ansSvc = NewAnswerService(f.answers, f.questions, f.sessSvc, log)
	f.grading = NewGradingService(f.resps, f.questions, f.examSvc, log)
	return f
}

// seedExam registers a published code-access exam whose window surrounds the
// fake clock's current time.
func (f *fixture) seedExam() *model.Exam {
	now := f.clk.Now()
	exam := model.Exam{
		ID:              uuid.New(),
		Title:           "Algorithms Midterm",
		CreatedBy:       uuid.New(),
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(2 * time.Hour),
		DurationMinutes: 90,
		AccessType:      model.AccessCode,
		ExamCode:        "ALGO-26",
		MaxAttempts:     2,
		MaxViolations:   3,
		IsPublished:     true,
	}
	f.exams.put(exam)
	return &exam
}

func seedQuestion(f *fixture, exam *model.Exam, max float64) uuid.UUID {
	qid := uuid.New()
	f.questions.put(exam.ID, qid, max)
	return qid
}

func (f *fixture) seedStudent(email string) *model.User {
	u := model.User{
		ID:    uuid.New(),
		Email: email,
		Name:  "Student",
		Role:  model.RoleStudent,
	}
	f.users.mu.Lock()
	f.users.byID[u.ID] = u
	f.users.byEmail[u.Email] = u.ID
	f.users.mu.Unlock()
	return &u
}
