package domain

import "time"

// AuditLog is one recorded action on a user's sessions, devices or login flags.
// Metadata is a JSON object (route, status, reason, ...) or empty.
type AuditLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
