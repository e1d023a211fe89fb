package services

// Event types pushed on a session's channel. The names and payload fields are
// part of the wire contract with the frontend.
const (
	EventSessionStarted    = "session-started"
	EventQuestionUpdate    = "question-update"
	EventScoreUpdate       = "score-update"
	EventAnswerResult      = "answer-result"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventSessionPaused     = "session-paused"
	EventSessionResumed    = "session-resumed"
	EventSessionEnded      = "session-ended"
	EventStateSync         = "state-sync"
)

// Broadcaster pushes an event to every client subscribed to a session's
// channel. Services mutate first, then emit; nothing is ever emitted for a
// failed operation. The websocket hub implements this; tests use a recorder.
type Broadcaster interface {
	BroadcastToSession(code string, event string, payload any)
}
