// Package memstore provides an in-memory implementation of dispatch.Store.
// Suitable for dev/testing; durability comes from the pgstore.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/warden/internal/beacon"
	"github.com/linnemanlabs/warden/internal/dispatch"
)

// Store holds dispatch state in memory behind one mutex. A transaction
// takes the mutex for its whole lifetime, so transactions serialize and
// the row-lock semantics of the pgstore hold trivially. Rollback restores
// a snapshot taken at Begin.
type Store struct {
	mu sync.Mutex
	st state
}

type state struct {
	incidents   map[string]*dispatch.Incident
	signals     []*dispatch.Signal
	guards      map[string]*dispatch.GuardProfile
	alerts      map[string]*dispatch.GuardAlert
	assignments map[string]*dispatch.Assignment
	beacons     []beacon.Beacon
	edges       []beacon.Edge
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{st: state{
		incidents:   make(map[string]*dispatch.Incident),
		guards:      make(map[string]*dispatch.GuardProfile),
		alerts:      make(map[string]*dispatch.GuardAlert),
		assignments: make(map[string]*dispatch.Assignment),
	}}
}

// SeedTopology installs the beacon topology served by Beacons/BeaconEdges.
func (s *Store) SeedTopology(beacons []beacon.Beacon, edges []beacon.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.beacons = append([]beacon.Beacon(nil), beacons...)
	s.st.edges = append([]beacon.Edge(nil), edges...)
}

func (st *state) clone() state {
	cp := state{
		incidents:   make(map[string]*dispatch.Incident, len(st.incidents)),
		signals:     make([]*dispatch.Signal, 0, len(st.signals)),
		guards:      make(map[string]*dispatch.GuardProfile, len(st.guards)),
		alerts:      make(map[string]*dispatch.GuardAlert, len(st.alerts)),
		assignments: make(map[string]*dispatch.Assignment, len(st.assignments)),
		beacons:     st.beacons,
		edges:       st.edges,
	}
	for id, v := range st.incidents {
		c := *v
		cp.incidents[id] = &c
	}
	for _, v := range st.signals {
		c := *v
		cp.signals = append(cp.signals, &c)
	}
	for id, v := range st.guards {
		c := *v
		cp.guards[id] = &c
	}
	for id, v := range st.alerts {
		c := *v
		cp.alerts[id] = &c
	}
	for id, v := range st.assignments {
		c := *v
		cp.assignments[id] = &c
	}
	return cp
}

// Begin takes the store mutex and snapshots state for rollback.
func (s *Store) Begin(_ context.Context) (dispatch.Tx, error) {
	s.mu.Lock()
	return &tx{s: s, snap: s.st.clone()}, nil
}

type tx struct {
	s    *Store
	snap state
	done bool
}

// Commit keeps the mutations made under the transaction.
func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return errors.New("memstore: tx closed")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

// Rollback restores the Begin-time snapshot. Safe to call after Commit.
func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.st = t.snap
	t.s.mu.Unlock()
	return nil
}

// OpenIncidentByKey returns the most recent non-resolved incident at the
// given location key.
func (t *tx) OpenIncidentByKey(_ context.Context, key string) (*dispatch.Incident, bool, error) {
	var best *dispatch.Incident
	for _, inc := range t.s.st.incidents {
		if inc.LocationKey != key || !inc.Open() {
			continue
		}
		if best == nil || inc.LastSignalAt.After(best.LastSignalAt) {
			best = inc
		}
	}
	if best == nil {
		return nil, false, nil
	}
	cp := *best
	return &cp, true, nil
}

func (t *tx) IncidentForUpdate(_ context.Context, id string) (*dispatch.Incident, bool, error) {
	inc, ok := t.s.st.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	return &cp, true, nil
}

func (t *tx) InsertIncident(_ context.Context, inc *dispatch.Incident) error {
	cp := *inc
	t.s.st.incidents[inc.ID] = &cp
	return nil
}

func (t *tx) UpdateIncident(_ context.Context, inc *dispatch.Incident) error {
	if _, ok := t.s.st.incidents[inc.ID]; !ok {
		return errors.New("memstore: incident not found")
	}
	cp := *inc
	t.s.st.incidents[inc.ID] = &cp
	return nil
}

func (t *tx) InsertSignal(_ context.Context, sig *dispatch.Signal) error {
	cp := *sig
	t.s.st.signals = append(t.s.st.signals, &cp)
	return nil
}

func (t *tx) SignalsByIncident(_ context.Context, incidentID string) ([]*dispatch.Signal, error) {
	return t.s.st.signalsByIncident(incidentID), nil
}

func (t *tx) GuardForUpdate(_ context.Context, guardID string) (*dispatch.GuardProfile, bool, error) {
	g, ok := t.s.st.guards[guardID]
	if !ok {
		return nil, false, nil
	}
	cp := *g
	return &cp, true, nil
}

func (t *tx) UpsertGuard(_ context.Context, g *dispatch.GuardProfile) error {
	cp := *g
	t.s.st.guards[g.GuardID] = &cp
	return nil
}

// EligibleGuardsAt returns active, available guards whose confirmed beacon
// is the given one, freshest confirmation first.
func (t *tx) EligibleGuardsAt(_ context.Context, beaconID string, freshAfter time.Time) ([]*dispatch.GuardProfile, error) {
	var out []*dispatch.GuardProfile
	for _, g := range t.s.st.guards {
		if !eligible(g, freshAfter) || g.CurrentBeacon != beaconID {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sortFreshestFirst(out)
	return out, nil
}

// EligibleGuardsAnywhere returns up to limit eligible guards regardless of
// beacon, freshest confirmation first. This is the campus-wide fallback.
func (t *tx) EligibleGuardsAnywhere(_ context.Context, freshAfter time.Time, limit int) ([]*dispatch.GuardProfile, error) {
	var out []*dispatch.GuardProfile
	for _, g := range t.s.st.guards {
		if !eligible(g, freshAfter) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sortFreshestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func eligible(g *dispatch.GuardProfile, freshAfter time.Time) bool {
	if !g.Active || !g.Available {
		return false
	}
	if !freshAfter.IsZero() && g.LastBeaconUpdate.Before(freshAfter) {
		return false
	}
	return true
}

func sortFreshestFirst(gs []*dispatch.GuardProfile) {
	sort.Slice(gs, func(i, j int) bool {
		if !gs[i].LastBeaconUpdate.Equal(gs[j].LastBeaconUpdate) {
			return gs[i].LastBeaconUpdate.After(gs[j].LastBeaconUpdate)
		}
		return gs[i].GuardID < gs[j].GuardID
	})
}

func (t *tx) AlertForUpdate(_ context.Context, id string) (*dispatch.GuardAlert, bool, error) {
	al, ok := t.s.st.alerts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *al
	return &cp, true, nil
}

func (t *tx) InsertAlert(_ context.Context, al *dispatch.GuardAlert) error {
	for _, ex := range t.s.st.alerts {
		if ex.IncidentID == al.IncidentID && ex.GuardID == al.GuardID {
			return errors.New("memstore: duplicate alert for guard and incident")
		}
	}
	cp := *al
	t.s.st.alerts[al.ID] = &cp
	return nil
}

func (t *tx) UpdateAlert(_ context.Context, al *dispatch.GuardAlert) error {
	if _, ok := t.s.st.alerts[al.ID]; !ok {
		return errors.New("memstore: alert not found")
	}
	cp := *al
	t.s.st.alerts[al.ID] = &cp
	return nil
}

func (t *tx) AlertsByIncident(_ context.Context, incidentID string) ([]*dispatch.GuardAlert, error) {
	return t.s.st.alertsByIncident(incidentID), nil
}

// InsertAssignment enforces at most one active assignment per incident,
// mirroring the pgstore's partial unique index.
func (t *tx) InsertAssignment(_ context.Context, as *dispatch.Assignment) error {
	if as.Active {
		for _, ex := range t.s.st.assignments {
			if ex.IncidentID == as.IncidentID && ex.Active {
				return errors.New("memstore: incident already has an active assignment")
			}
		}
	}
	cp := *as
	t.s.st.assignments[as.ID] = &cp
	return nil
}

func (t *tx) ActiveAssignment(_ context.Context, incidentID string) (*dispatch.Assignment, bool, error) {
	for _, as := range t.s.st.assignments {
		if as.IncidentID == incidentID && as.Active {
			cp := *as
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (t *tx) DeactivateAssignment(_ context.Context, incidentID string) error {
	for _, as := range t.s.st.assignments {
		if as.IncidentID == incidentID && as.Active {
			as.Active = false
		}
	}
	return nil
}

// Incident retrieves one incident. Returns a copy.
func (s *Store) Incident(_ context.Context, id string) (*dispatch.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.st.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	return &cp, true, nil
}

// IncidentDetail retrieves one incident with its signals, alerts, and
// active assignment.
func (s *Store) IncidentDetail(_ context.Context, id string) (*dispatch.IncidentDetail, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.st.incidents[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	d := &dispatch.IncidentDetail{
		Incident: &cp,
		Signals:  s.st.signalsByIncident(id),
		Alerts:   s.st.alertsByIncident(id),
	}
	for _, as := range s.st.assignments {
		if as.IncidentID == id && as.Active {
			acp := *as
			d.Assignment = &acp
			break
		}
	}
	return d, true, nil
}

// ListIncidents lists incidents newest first, optionally filtered by status.
func (s *Store) ListIncidents(_ context.Context, status dispatch.IncidentStatus) ([]*dispatch.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*dispatch.Incident
	for _, inc := range s.st.incidents {
		if status != "" && inc.Status != status {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSignalAt.Equal(out[j].FirstSignalAt) {
			return out[i].FirstSignalAt.After(out[j].FirstSignalAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Guard retrieves one guard profile. Returns a copy.
func (s *Store) Guard(_ context.Context, guardID string) (*dispatch.GuardProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.st.guards[guardID]
	if !ok {
		return nil, false, nil
	}
	cp := *g
	return &cp, true, nil
}

// SentAlertIDsBefore lists SENT alerts created at or before the cutoff.
// The sweep re-checks each under a transaction before acting.
func (s *Store) SentAlertIDsBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, al := range s.st.alerts {
		if al.Status == dispatch.AlertSent && !al.CreatedAt.After(cutoff) {
			ids = append(ids, al.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// UndispatchedIncidentIDs lists created incidents with no pending alert.
func (s *Store) UndispatchedIncidentIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make(map[string]bool)
	for _, al := range s.st.alerts {
		if al.Status == dispatch.AlertSent {
			pending[al.IncidentID] = true
		}
	}
	var ids []string
	for id, inc := range s.st.incidents {
		if inc.Status == dispatch.IncidentCreated && !pending[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Beacons returns the seeded beacon topology.
func (s *Store) Beacons(_ context.Context) ([]beacon.Beacon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]beacon.Beacon(nil), s.st.beacons...), nil
}

// BeaconEdges returns the seeded proximity edges.
func (s *Store) BeaconEdges(_ context.Context) ([]beacon.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]beacon.Edge(nil), s.st.edges...), nil
}

// SetAssignmentConversation links a conversation to an assignment outside
// any transaction.
func (s *Store) SetAssignmentConversation(_ context.Context, assignmentID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.st.assignments[assignmentID]
	if !ok {
		return errors.New("memstore: assignment not found")
	}
	as.ConversationID = conversationID
	return nil
}

func (st *state) signalsByIncident(incidentID string) []*dispatch.Signal {
	var out []*dispatch.Signal
	for _, sig := range st.signals {
		if sig.IncidentID == incidentID {
			cp := *sig
			out = append(out, &cp)
		}
	}
	return out
}

func (st *state) alertsByIncident(incidentID string) []*dispatch.GuardAlert {
	var out []*dispatch.GuardAlert
	for _, al := range st.alerts {
		if al.IncidentID == incidentID {
			cp := *al
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
