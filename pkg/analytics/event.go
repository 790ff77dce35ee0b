package analytics

import (
	"time"

	"github.com/wardgate/wardgate/pkg/threat"
)

type EventType string

const (
	EventThreatDetected     EventType = "threat_detected"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventBlockedRequest     EventType = "blocked_request"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventAdminAction        EventType = "admin_action"
)

// Event is one immutable security occurrence. Details must already be
// sanitized by the producer; analytics stores whatever it is given.
type Event struct {
	ID          string       `json:"id"`
	Type        EventType    `json:"event_type"`
	ThreatLevel threat.Level `json:"-"`
	ClientID    string       `json:"client_id"`
	Path        string       `json:"path"`
	Method      string       `json:"method"`
	UserAgent   string       `json:"user_agent"`
	Details     string       `json:"details"`
	ActionTaken string       `json:"action_taken"`
	Timestamp   time.Time    `json:"timestamp"`
}

// eventJSON mirrors Event with the level rendered as its string form.
type eventJSON struct {
	Event
	ThreatLevel string `json:"threat_level"`
}

func (e Event) forExport() eventJSON {
	return eventJSON{Event: e, ThreatLevel: e.ThreatLevel.String()}
}
