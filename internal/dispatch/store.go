package dispatch

import (
	"context"
	"time"

	"github.com/linnemanlabs/warden/internal/beacon"
)

// Store is the persistence interface for the dispatch engine. Plain methods
// are single reads with no locking. Begin opens a transaction whose locked
// reads serialize per-incident operations (first acknowledgement wins,
// at most one active assignment).
//
// Lock ordering inside a Tx: incident row before guard row, one incident at
// a time. Both implementations rely on callers keeping that order.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	Incident(ctx context.Context, id string) (*Incident, bool, error)
	IncidentDetail(ctx context.Context, id string) (*IncidentDetail, bool, error)
	ListIncidents(ctx context.Context, status IncidentStatus) ([]*Incident, error)
	Guard(ctx context.Context, id string) (*GuardProfile, bool, error)

	// SentAlertIDsBefore lists SENT alerts created before the cutoff, for
	// the expiry sweep. IDs only: the sweep re-checks each under lock.
	SentAlertIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// UndispatchedIncidentIDs lists non-terminal, unassigned incidents with
	// no SENT alert. The redispatch sweep retries these when guard
	// availability changes.
	UndispatchedIncidentIDs(ctx context.Context) ([]string, error)

	// Beacons and BeaconEdges load the proximity graph snapshot.
	Beacons(ctx context.Context) ([]beacon.Beacon, error)
	BeaconEdges(ctx context.Context) ([]beacon.Edge, error)

	// SetAssignmentConversation links a conversation opened after commit.
	// Runs outside any Tx: conversation creation is an external call and
	// must not hold row locks.
	SetAssignmentConversation(ctx context.Context, assignmentID, conversationID string) error
}

// Tx is one atomic engine operation. ForUpdate reads take row locks held
// until Commit or Rollback.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// OpenIncidentByKey returns the most recent non-resolved incident at
	// the location key, locked. This is the open-incident index the dedup
	// window queries atomically with creation.
	OpenIncidentByKey(ctx context.Context, key string) (*Incident, bool, error)
	IncidentForUpdate(ctx context.Context, id string) (*Incident, bool, error)
	InsertIncident(ctx context.Context, inc *Incident) error
	UpdateIncident(ctx context.Context, inc *Incident) error

	InsertSignal(ctx context.Context, sig *Signal) error
	SignalsByIncident(ctx context.Context, incidentID string) ([]*Signal, error)

	GuardForUpdate(ctx context.Context, guardID string) (*GuardProfile, bool, error)
	UpsertGuard(ctx context.Context, g *GuardProfile) error

	// EligibleGuardsAt returns on-duty, available guards at the beacon,
	// most recent location confirmation first. Guards whose last update is
	// older than freshAfter are excluded; a zero freshAfter disables the
	// staleness cut.
	EligibleGuardsAt(ctx context.Context, beaconID string, freshAfter time.Time) ([]*GuardProfile, error)

	// EligibleGuardsAnywhere is the campus-wide fallback pool, freshest
	// first, capped at limit.
	EligibleGuardsAnywhere(ctx context.Context, freshAfter time.Time, limit int) ([]*GuardProfile, error)

	AlertForUpdate(ctx context.Context, alertID string) (*GuardAlert, bool, error)
	InsertAlert(ctx context.Context, al *GuardAlert) error
	UpdateAlert(ctx context.Context, al *GuardAlert) error
	AlertsByIncident(ctx context.Context, incidentID string) ([]*GuardAlert, error)

	InsertAssignment(ctx context.Context, as *Assignment) error
	ActiveAssignment(ctx context.Context, incidentID string) (*Assignment, bool, error)
	DeactivateAssignment(ctx context.Context, incidentID string) error
}
