package auth

// EventKind names a session transition.
type EventKind string

// Auth event kinds.
const (
	EventSignedIn  EventKind = "signed-in"
	EventSignedUp  EventKind = "signed-up"
	EventSignedOut EventKind = "signed-out"
)

// Event is published on Topic for every session transition.
// Session is set only for signed-in.
type Event struct {
	Kind     EventKind `json:"kind"`
	Subject  string    `json:"subject,omitempty"`
	Username string    `json:"username,omitempty"`
	Session  *Session  `json:"session,omitempty"`
}
