// Package telemetry defines login-flow events and the emitters that ship them (OTel logs, Kafka).
package telemetry

import (
	"encoding/json"
	"time"
)

// Event types emitted by the engine.
const (
	EventLoginEvaluated     = "login_evaluated"
	EventChallengeIssued    = "challenge_issued"
	EventChallengeVerified  = "challenge_verified"
	EventSessionAdmitted    = "session_admitted"
	EventSessionsTerminated = "sessions_terminated"
	EventLoginRejected      = "login_rejected"
	EventHTTPRequest        = "http_request"
)

// Source is the default source label of engine events.
const Source = "session-trust-engine"

// Event is one telemetry record. Metadata is free-form JSON.
type Event struct {
	EventType string          `json:"eventType"`
	Source    string          `json:"source,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an event stamped with the current time. meta is marshaled to JSON; nil or
// unmarshalable meta leaves Metadata empty.
func NewEvent(eventType, userID string, meta map[string]any) *Event {
	e := &Event{
		EventType: eventType,
		Source:    Source,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			e.Metadata = b
		}
	}
	return e
}

// WithDevice sets the device id and returns e.
func (e *Event) WithDevice(deviceID string) *Event {
	e.DeviceID = deviceID
	return e
}

// WithSession sets the session id and returns e.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}
