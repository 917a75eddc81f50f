// Package session implements the per-client session and its role transitions.
package session

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of session transition
type EventType string

const (
	EventSessionStarted  EventType = "SessionStarted"
	EventLoggedIn        EventType = "LoggedIn"
	EventLoginRejected   EventType = "LoginRejected"
	EventLoggedOut       EventType = "LoggedOut"
	EventPatientSelected EventType = "PatientSelected"
)

// Event records one transition. Handlers log it and publish it to the audit
// trail; nothing replays it.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	EventType EventType `json:"event_type"`
	From      Role      `json:"from"`
	To        Role      `json:"to"`
	Username  string    `json:"username,omitempty"`
	PatientID string    `json:"patient_id,omitempty"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event for a session transition
func NewEvent(s Session, eventType EventType, from Role) *Event {
	return &Event{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		EventType: eventType,
		From:      from,
		To:        s.Role,
		PatientID: s.PatientID,
		Version:   s.Version,
		Timestamp: s.UpdatedAt,
	}
}

// WithUsername sets the attempted username
func (e *Event) WithUsername(username string) *Event {
	e.Username = username
	return e
}
