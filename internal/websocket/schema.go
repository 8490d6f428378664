package websocket

// Actions (client to server).

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionState     Action = "state"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest appends a draft version for one question.
type AutosaveRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// ViolationRequest reports a proctoring event. Payload carries the client's
// JSON detail as an opaque string.
type ViolationRequest struct {
	Action  Action `json:"action"`
	Payload string `json:"payload"`
}

// SubmitRequest finishes the session and snapshots the answers.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// Events (server to client).

type Event string

const (
	EventSaved     Event = "saved"
	EventState     Event = "state"
	EventViolation Event = "violation"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// SavedResponse acknowledges an autosave with the version it produced.
type SavedResponse struct {
	Event   Event  `json:"event"`
	QID     string `json:"q_id"`
	Version int    `json:"version"`
}

// StateResponse carries the live session view.
type StateResponse struct {
	Event            Event   `json:"event"`
	Status           string  `json:"status"`
	ViolationCount   int     `json:"violation_count"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// ViolationResponse acknowledges a violation report.
type ViolationResponse struct {
	Event          Event `json:"event"`
	ViolationCount int   `json:"violation_count"`
	AutoSubmitted  bool  `json:"auto_submitted"`
}

// SubmittedResponse confirms completion.
type SubmittedResponse struct {
	Event      Event  `json:"event"`
	ResponseID string `json:"response_id"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
