// Package notify defines the push-notification boundary. Delivery is
// fire-and-forget: a publish failure is logged by the caller and never
// rolled back against engine state.
package notify

import (
	"context"
	"time"
)

// Kind discriminates notification events on the wire.
type Kind string

const (
	// KindAlertOffer tells a guard a new incident needs them.
	KindAlertOffer Kind = "alert_offer"

	// KindAlertExpired tells a guard their offer lapsed or was superseded.
	KindAlertExpired Kind = "alert_expired"

	// KindAssignment confirms a guard now owns an incident.
	KindAssignment Kind = "assignment"

	// KindUnstaffed flags an incident that exhausted the guard search with
	// zero candidates; the ops channel consumes these.
	KindUnstaffed Kind = "incident_unstaffed"

	// KindResolved tells participants the incident is closed.
	KindResolved Kind = "incident_resolved"

	// KindBrief carries the generated situation brief for the assigned guard.
	KindBrief Kind = "dispatch_brief"
)

// Event is one notification payload. Recipient is a guard or user ID;
// empty means broadcast to the ops channel.
type Event struct {
	Kind           Kind      `json:"kind"`
	Recipient      string    `json:"recipient,omitempty"`
	IncidentID     string    `json:"incident_id,omitempty"`
	AlertID        string    `json:"alert_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Priority       int       `json:"priority,omitempty"`
	Location       string    `json:"location,omitempty"`
	Body           string    `json:"body,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher delivers events to the push collaborator.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, *Event) error { return nil }
