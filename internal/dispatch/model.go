package dispatch

import "time"

// IncidentStatus tracks where an incident is in its lifecycle.
type IncidentStatus string

const (
	// IncidentCreated means opened, no guard assigned yet.
	IncidentCreated IncidentStatus = "created"

	// IncidentAssigned means exactly one guard holds the active assignment.
	IncidentAssigned IncidentStatus = "assigned"

	// IncidentInProgress means the assigned guard is on scene.
	IncidentInProgress IncidentStatus = "in_progress"

	// IncidentResolved is terminal. A later signal at the same location
	// opens a new incident instead of reopening this one.
	IncidentResolved IncidentStatus = "resolved"
)

// AlertStatus tracks one guard's offer for one incident.
// Sent is the only non-terminal state.
type AlertStatus string

const (
	AlertSent         AlertStatus = "sent"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertDeclined     AlertStatus = "declined"
	AlertExpired      AlertStatus = "expired"
)

// Terminal reports whether the alert status accepts no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == AlertAcknowledged || s == AlertDeclined || s == AlertExpired
}

// SignalType is the closed enumeration of evidence sources.
type SignalType string

const (
	SignalStudentSOS       SignalType = "student_sos"
	SignalStudentReport    SignalType = "student_report"
	SignalViolenceDetected SignalType = "violence_detected"
	SignalScreamDetected   SignalType = "scream_detected"
	SignalPanicButton      SignalType = "panic_button"
)

// Priority is ordinal: higher means more urgent.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Outcome is the result of submitting a signal.
type Outcome string

const (
	// OutcomeCreated means the signal opened a new incident.
	OutcomeCreated Outcome = "created"

	// OutcomeMerged means the signal joined an open incident at the same
	// location within the dedup window.
	OutcomeMerged Outcome = "merged"

	// OutcomeLoggedOnly means an AI signal fell below its confidence gate.
	// The evidence is kept for audit but no incident or alert results.
	OutcomeLoggedOnly Outcome = "logged_only"
)

// Incident is the unit of response: one real-world emergency, possibly fed
// by several signals. LocationKey is either a physical beacon ID or a
// synthetic key derived from free text (see the beacon package).
type Incident struct {
	ID            string         `json:"id"`
	LocationKey   string         `json:"location_key"`
	BeaconID      string         `json:"beacon_id,omitempty"`
	Location      string         `json:"location,omitempty"`
	Priority      Priority       `json:"priority"`
	Status        IncidentStatus `json:"status"`
	FirstSignalAt time.Time      `json:"first_signal_at"`
	LastSignalAt  time.Time      `json:"last_signal_at"`
	ResolvedAt    time.Time      `json:"resolved_at,omitempty"`
}

// Open reports whether the incident can still absorb signals.
func (i *Incident) Open() bool {
	return i.Status != IncidentResolved
}

// Signal is one append-only piece of evidence. IncidentID is empty for
// audit-only rows (AI detections below their confidence gate).
type Signal struct {
	ID         string     `json:"id"`
	IncidentID string     `json:"incident_id,omitempty"`
	Type       SignalType `json:"signal_type"`
	Confidence float64    `json:"confidence,omitempty"`
	SourceUser string     `json:"source_user,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// GuardProfile is the sole source of truth for guard reachability.
// Active means on duty; Available means not holding an active assignment.
type GuardProfile struct {
	GuardID          string    `json:"guard_id"`
	Active           bool      `json:"active"`
	Available        bool      `json:"available"`
	CurrentBeacon    string    `json:"current_beacon,omitempty"`
	LastBeaconUpdate time.Time `json:"last_beacon_update,omitempty"`
}

// GuardAlert is one offer of one incident to one guard. At most one row
// exists per (incident, guard) pair.
type GuardAlert struct {
	ID          string      `json:"id"`
	IncidentID  string      `json:"incident_id"`
	GuardID     string      `json:"guard_id"`
	Status      AlertStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	RespondedAt time.Time   `json:"responded_at,omitempty"`
}

// Assignment is the durable record that one guard owns one incident.
// At most one active assignment exists per incident at any instant; the
// pgstore enforces this with a partial unique index, not just app logic.
type Assignment struct {
	ID             string    `json:"id"`
	IncidentID     string    `json:"incident_id"`
	GuardID        string    `json:"guard_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	AssignedAt     time.Time `json:"assigned_at"`
	Active         bool      `json:"active"`
}

// IncidentDetail is the full read view of an incident.
type IncidentDetail struct {
	Incident   *Incident    `json:"incident"`
	Signals    []*Signal    `json:"signals"`
	Alerts     []*GuardAlert `json:"alerts"`
	Assignment *Assignment  `json:"assignment,omitempty"`
}
