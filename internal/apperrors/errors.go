package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure. The set is closed: handlers switch over
// it exhaustively to pick an HTTP status, so adding a Kind means updating
// HTTPStatus as well.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindExpired
	KindValidation
)

// Error is a tagged domain error. Services return these (usually one of the
// sentinels below); the handler layer maps Kind to a status code and Code to
// the API error code, never the message text of an underlying cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two tagged errors by Code, so errors.Is works against the
// sentinels even when a cause has been attached via WithCause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e carrying err as its wrapped cause.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// New creates a tagged error and registers it in the code registry.
func New(kind Kind, code, message string) *Error {
	e := &Error{Kind: kind, Code: code, Message: message}
	registry[code] = e
	return e
}

// registry maps machine codes back to their sentinel, so a stored reason
// code (e.g. from an access decision) can be converted into the error it
// denotes.
var registry = map[string]*Error{}

// ByCode returns the sentinel registered under code, or nil.
func ByCode(code string) *Error { return registry[code] }

// KindOf extracts the Kind from err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine code from err, or "INTERNAL_ERROR".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Domain sentinels. Together with Kind these form the closed taxonomy the
// boundary layer relies on.
var (
	// Invitation tokens.
	ErrTokenNotFound        = New(KindNotFound, "TOKEN_NOT_FOUND", "invitation token not found")
	ErrTokenExpired         = New(KindExpired, "TOKEN_EXPIRED", "invitation token has expired")
	ErrTokenAlreadyRedeemed = New(KindConflict, "TOKEN_ALREADY_REDEEMED", "invitation token was already redeemed")

	// Exam access.
	ErrExamNotFound      = New(KindNotFound, "EXAM_NOT_FOUND", "exam not found")
	ErrExamNotPublished  = New(KindForbidden, "EXAM_NOT_PUBLISHED", "exam is not published")
	ErrExamNotOpen       = New(KindExpired, "EXAM_NOT_OPEN", "exam has not opened yet")
	ErrExamClosed        = New(KindExpired, "EXAM_CLOSED", "exam window has closed")
	ErrInvalidExamCode   = New(KindValidation, "INVALID_EXAM_CODE", "exam code is missing or incorrect")
	ErrInvitationMissing = New(KindValidation, "INVITATION_REQUIRED", "this exam requires an invitation token")
	ErrInvitationNotHeld = New(KindForbidden, "INVITATION_NOT_HELD", "invitation is not bound to this account")

	// Sessions.
	ErrAttemptLimitExceeded  = New(KindConflict, "ATTEMPT_LIMIT_EXCEEDED", "maximum attempts for this exam reached")
	ErrSessionNotFound       = New(KindNotFound, "SESSION_NOT_FOUND", "session not found")
	ErrSessionNotOwned       = New(KindForbidden, "SESSION_NOT_OWNED", "session belongs to another student")
	ErrSessionAlreadyStarted = New(KindConflict, "SESSION_ALREADY_STARTED", "session was already started")
	ErrSessionNotActive      = New(KindConflict, "SESSION_NOT_ACTIVE", "session is not in progress")
	ErrSessionExpired        = New(KindExpired, "SESSION_EXPIRED", "session has expired")
	ErrExamTimeExpired       = New(KindExpired, "EXAM_TIME_EXPIRED", "exam time has expired")

	// Answers and grading.
	ErrQuestionNotFound   = New(KindNotFound, "QUESTION_NOT_FOUND", "question does not belong to this exam")
	ErrResponseNotFound   = New(KindNotFound, "RESPONSE_NOT_FOUND", "response not found")
	ErrMarksExceedMaximum = New(KindValidation, "MARKS_EXCEED_MAXIMUM", "awarded marks exceed the question maximum")
	ErrNotExamOwner       = New(KindForbidden, "NOT_EXAM_OWNER", "exam belongs to another teacher")

	// Users.
	ErrUserNotFound       = New(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrInvalidCredentials = New(KindForbidden, "INVALID_CREDENTIALS", "email or password is incorrect")
)
