package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/beacon"
	"github.com/linnemanlabs/warden/internal/chat"
	"github.com/linnemanlabs/warden/internal/notify"
)

// Config tunes the engine. All durations and sizes come from flags; nothing
// here is hardcoded policy.
type Config struct {
	// DedupWindow is the span within which co-located signals merge into
	// one incident.
	DedupWindow time.Duration

	// Fanout is the number of guards alerted in parallel on dispatch.
	Fanout int

	// AlertTTL is how long a SENT alert may go unanswered before the
	// sweep expires it.
	AlertTTL time.Duration

	// FallbackPool caps the campus-wide candidate pool used when the
	// proximity graph yields nothing. 0 disables the fallback.
	FallbackPool int

	// GuardStaleness excludes guards whose location confirmation is older.
	// 0 disables the staleness cut.
	GuardStaleness time.Duration

	// RepeatThreshold is the signal count at which repeated student
	// reports escalate. 0 disables repeat escalation.
	RepeatThreshold int
}

// SignalInput is one inbound signal. Exactly one of BeaconID or Location
// must be set; Confidence is required for AI detection types.
type SignalInput struct {
	BeaconID   string
	Location   string
	Type       SignalType
	Confidence *float64
	SourceUser string
}

// SubmitResult is the outcome of submitting a signal.
type SubmitResult struct {
	Outcome    Outcome  `json:"outcome"`
	IncidentID string   `json:"incident_id,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
	AlertsSent int      `json:"alerts_sent"`
}

// Decision is a guard's answer to an alert.
type Decision string

const (
	DecisionAcknowledge Decision = "acknowledge"
	DecisionDecline     Decision = "decline"
)

// RespondOutcome is the protocol result of a guard response. Race-lost
// acknowledgements are already_resolved, not errors.
type RespondOutcome string

const (
	RespondAccepted        RespondOutcome = "accepted"
	RespondAlreadyResolved RespondOutcome = "already_resolved"
	RespondNotEligible     RespondOutcome = "not_eligible"
)

// RespondResult is the outcome of a guard responding to an alert.
type RespondResult struct {
	Outcome      RespondOutcome `json:"outcome"`
	AssignmentID string         `json:"assignment_id,omitempty"`
}

// Actor identifies who is driving an incident transition.
type Actor struct {
	ID    string
	Admin bool
}

// BriefGenerator produces a short situation brief for the assigned guard.
// Optional; generation failure never affects engine state.
type BriefGenerator interface {
	Generate(ctx context.Context, detail *IncidentDetail) (string, error)
}

// Service is the business boundary for dispatch operations. Per-incident
// operations run inside store transactions with row locks; notifications and
// conversation creation happen after commit and are never rolled back.
type Service struct {
	store         Store
	graph         *beacon.Graph
	cfg           Config
	loc           locator
	publisher     notify.Publisher
	conversations chat.Opener
	briefs        BriefGenerator
	logger        log.Logger
	metrics       *Metrics

	now   func() time.Time
	newID func() string
}

// NewService creates a dispatch service.
func NewService(store Store, graph *beacon.Graph, cfg Config, logger log.Logger, metrics *Metrics, publisher notify.Publisher, conversations chat.Opener) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	now := time.Now
	return &Service{
		store: store,
		graph: graph,
		cfg:   cfg,
		loc: locator{
			graph:        graph,
			fallbackPool: cfg.FallbackPool,
			staleness:    cfg.GuardStaleness,
			now:          now,
		},
		publisher:     publisher,
		conversations: conversations,
		logger:        logger,
		metrics:       metrics,
		now:           now,
		newID:         func() string { return ulid.Make().String() },
	}
}

// UseBriefs enables dispatch brief generation on assignment.
func (s *Service) UseBriefs(g BriefGenerator) { s.briefs = g }

// SubmitSignal resolves the dedup window for an inbound signal: merge into
// an open incident at the same location, open a new one, or record the
// evidence only (AI detections below their confidence gate).
func (s *Service) SubmitSignal(ctx context.Context, in *SignalInput) (*SubmitResult, error) {
	if err := s.validateSignal(in); err != nil {
		return nil, err
	}

	key, beaconID, err := s.resolveLocation(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	confidence := 0.0
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	// Below-gate AI detections: audit row, no incident, no alert.
	if !meetsGate(in.Type, confidence) {
		if err := s.recordAuditSignal(ctx, in, confidence, now); err != nil {
			return nil, err
		}
		s.metrics.SignalsTotal.WithLabelValues(string(in.Type), string(OutcomeLoggedOnly)).Inc()
		s.logger.Info(ctx, "signal below confidence gate",
			"signal_type", in.Type,
			"confidence", confidence,
			"location_key", key,
		)
		return &SubmitResult{Outcome: OutcomeLoggedOnly}, nil
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inc, merged, err := s.mergeOrCreate(ctx, tx, in, key, beaconID, confidence, now)
	if err != nil {
		return nil, err
	}

	// New incidents fan out immediately. Merges top the fan-out back up
	// only when nothing is pending, so an unstaffed incident gets retried
	// as evidence keeps arriving.
	var events []*notify.Event
	sent := 0
	if inc.Status == IncidentCreated {
		want := s.cfg.Fanout
		if merged {
			want = 0
			if pending, err := s.pendingAlerts(ctx, tx, inc.ID); err != nil {
				return nil, err
			} else if pending == 0 {
				want = s.cfg.Fanout
			}
		}
		if want > 0 {
			events, sent, err = s.dispatch(ctx, tx, inc, want)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	outcome := OutcomeCreated
	if merged {
		outcome = OutcomeMerged
	} else {
		s.metrics.IncidentsTotal.WithLabelValues(inc.Priority.String()).Inc()
		s.metrics.OpenIncidents.Inc()
	}
	s.metrics.SignalsTotal.WithLabelValues(string(in.Type), string(outcome)).Inc()

	s.publish(ctx, events)

	s.logger.Info(ctx, "signal processed",
		"signal_type", in.Type,
		"outcome", outcome,
		"incident_id", inc.ID,
		"priority", inc.Priority.String(),
		"alerts_sent", sent,
	)

	return &SubmitResult{
		Outcome:    outcome,
		IncidentID: inc.ID,
		Priority:   inc.Priority,
		AlertsSent: sent,
	}, nil
}

func (s *Service) validateSignal(in *SignalInput) error {
	if !KnownSignalType(in.Type) {
		return fmt.Errorf("%w: unknown signal type %q", ErrValidation, in.Type)
	}
	if in.BeaconID == "" && in.Location == "" {
		return fmt.Errorf("%w: beacon or location required", ErrValidation)
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return fmt.Errorf("%w: confidence %v out of [0,1]", ErrValidation, *in.Confidence)
	}
	if needsConfidence(in.Type) && in.Confidence == nil {
		return fmt.Errorf("%w: confidence required for %s", ErrValidation, in.Type)
	}
	return nil
}

// resolveLocation maps the signal to a location key: the beacon ID itself,
// or a synthetic key derived from free text.
func (s *Service) resolveLocation(in *SignalInput) (key, beaconID string, err error) {
	if in.BeaconID != "" {
		b, ok := s.graph.Beacon(in.BeaconID)
		if !ok {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownBeacon, in.BeaconID)
		}
		if !b.Active {
			return "", "", fmt.Errorf("%w: %q is deactivated", ErrUnknownBeacon, in.BeaconID)
		}
		return b.ID, b.ID, nil
	}
	return beacon.SyntheticKey(in.Location), "", nil
}

func (s *Service) recordAuditSignal(ctx context.Context, in *SignalInput, confidence float64, now time.Time) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sig := &Signal{
		ID:         s.newID(),
		Type:       in.Type,
		Confidence: confidence,
		SourceUser: in.SourceUser,
		CreatedAt:  now,
	}
	if err := tx.InsertSignal(ctx, sig); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// mergeOrCreate is the dedup window: attach to the open incident at the
// same key within the window, or open a new incident. Runs under the
// open-incident index lock so concurrent signals cannot both create.
func (s *Service) mergeOrCreate(ctx context.Context, tx Tx, in *SignalInput, key, beaconID string, confidence float64, now time.Time) (*Incident, bool, error) {
	inc, ok, err := tx.OpenIncidentByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}

	if ok && now.Sub(inc.LastSignalAt) <= s.cfg.DedupWindow {
		sig := &Signal{
			ID:         s.newID(),
			IncidentID: inc.ID,
			Type:       in.Type,
			Confidence: confidence,
			SourceUser: in.SourceUser,
			CreatedAt:  now,
		}
		if err := tx.InsertSignal(ctx, sig); err != nil {
			return nil, false, err
		}
		sigs, err := tx.SignalsByIncident(ctx, inc.ID)
		if err != nil {
			return nil, false, err
		}
		inc.Priority = Escalate(inc.Priority, in.Type, len(sigs), s.cfg.RepeatThreshold)
		inc.LastSignalAt = now
		if err := tx.UpdateIncident(ctx, inc); err != nil {
			return nil, false, err
		}
		return inc, true, nil
	}

	inc = &Incident{
		ID:            s.newID(),
		LocationKey:   key,
		BeaconID:      beaconID,
		Location:      in.Location,
		Priority:      Escalate(0, in.Type, 1, s.cfg.RepeatThreshold),
		Status:        IncidentCreated,
		FirstSignalAt: now,
		LastSignalAt:  now,
	}
	if err := tx.InsertIncident(ctx, inc); err != nil {
		return nil, false, err
	}
	sig := &Signal{
		ID:         s.newID(),
		IncidentID: inc.ID,
		Type:       in.Type,
		Confidence: confidence,
		SourceUser: in.SourceUser,
		CreatedAt:  now,
	}
	if err := tx.InsertSignal(ctx, sig); err != nil {
		return nil, false, err
	}
	return inc, false, nil
}

func (s *Service) pendingAlerts(ctx context.Context, tx Tx, incidentID string) (int, error) {
	alerts, err := tx.AlertsByIncident(ctx, incidentID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, al := range alerts {
		if al.Status == AlertSent {
			n++
		}
	}
	return n, nil
}

// dispatch sends up to maxNew SENT alerts to the next eligible candidates.
// Guards with any alert for this incident (terminal or not) are never
// re-queued. Returns the offer events to publish after commit.
func (s *Service) dispatch(ctx context.Context, tx Tx, inc *Incident, maxNew int) ([]*notify.Event, int, error) {
	alerts, err := tx.AlertsByIncident(ctx, inc.ID)
	if err != nil {
		return nil, 0, err
	}
	exclude := make(map[string]bool, len(alerts))
	pending := 0
	for _, al := range alerts {
		exclude[al.GuardID] = true
		if al.Status == AlertSent {
			pending++
		}
	}

	cands, err := s.loc.candidates(ctx, tx, inc, exclude, maxNew)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	var events []*notify.Event
	for _, g := range cands {
		al := &GuardAlert{
			ID:         s.newID(),
			IncidentID: inc.ID,
			GuardID:    g.GuardID,
			Status:     AlertSent,
			CreatedAt:  now,
		}
		if err := tx.InsertAlert(ctx, al); err != nil {
			return nil, 0, err
		}
		s.metrics.AlertsTotal.WithLabelValues(string(AlertSent)).Inc()
		events = append(events, &notify.Event{
			Kind:       notify.KindAlertOffer,
			Recipient:  g.GuardID,
			IncidentID: inc.ID,
			AlertID:    al.ID,
			Priority:   int(inc.Priority),
			Location:   s.describeLocation(inc),
			At:         now,
		})
	}

	s.metrics.FanoutSize.Observe(float64(len(cands)))

	// Exhausted the search with nothing in flight: flag for the retry
	// sweep and the ops channel.
	if pending+len(cands) == 0 {
		s.metrics.NoCandidates.Inc()
		events = append(events, &notify.Event{
			Kind:       notify.KindUnstaffed,
			IncidentID: inc.ID,
			Priority:   int(inc.Priority),
			Location:   s.describeLocation(inc),
			At:         now,
		})
	}

	return events, len(cands), nil
}

func (s *Service) describeLocation(inc *Incident) string {
	if inc.BeaconID != "" {
		if b, ok := s.graph.Beacon(inc.BeaconID); ok {
			return b.LocationName
		}
		return inc.BeaconID
	}
	return inc.Location
}

// RespondToAlert applies a guard's acknowledge or decline. The first
// acknowledgement wins: it creates the assignment, expires sibling offers,
// and flips the guard unavailable, all in one transaction. Later
// acknowledgements see a terminal alert and get already_resolved.
func (s *Service) RespondToAlert(ctx context.Context, alertID, guardID string, decision Decision) (*RespondResult, error) {
	if decision != DecisionAcknowledge && decision != DecisionDecline {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	al, ok, err := tx.AlertForUpdate(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: alert %q", ErrNotFound, alertID)
	}
	if al.GuardID != guardID {
		return &RespondResult{Outcome: RespondNotEligible}, nil
	}
	if al.Status.Terminal() {
		if decision == DecisionAcknowledge {
			s.metrics.RacesLostTotal.Inc()
		}
		return &RespondResult{Outcome: RespondAlreadyResolved}, nil
	}

	inc, ok, err := tx.IncidentForUpdate(ctx, al.IncidentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: incident %q", ErrNotFound, al.IncidentID)
	}

	switch decision {
	case DecisionDecline:
		return s.decline(ctx, tx, al, inc)
	default:
		return s.acknowledge(ctx, tx, al, inc)
	}
}

func (s *Service) decline(ctx context.Context, tx Tx, al *GuardAlert, inc *Incident) (*RespondResult, error) {
	now := s.now()
	al.Status = AlertDeclined
	al.RespondedAt = now
	if err := tx.UpdateAlert(ctx, al); err != nil {
		return nil, err
	}
	s.metrics.AlertsTotal.WithLabelValues(string(AlertDeclined)).Inc()

	// Cascade to the next candidate synchronously with the decline.
	var events []*notify.Event
	if inc.Status == IncidentCreated {
		evs, _, err := s.dispatch(ctx, tx, inc, 1)
		if err != nil {
			return nil, err
		}
		events = evs
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.publish(ctx, events)

	s.logger.Info(ctx, "alert declined",
		"alert_id", al.ID,
		"incident_id", inc.ID,
		"guard_id", al.GuardID,
	)
	return &RespondResult{Outcome: RespondAccepted}, nil
}

// sideline terminates an offer whose guard is no longer eligible (busy or
// deactivated since the fan-out) and hands the slot to the next candidate.
func (s *Service) sideline(ctx context.Context, tx Tx, al *GuardAlert, inc *Incident) (*RespondResult, error) {
	now := s.now()
	al.Status = AlertExpired
	al.RespondedAt = now
	if err := tx.UpdateAlert(ctx, al); err != nil {
		return nil, err
	}
	s.metrics.AlertsTotal.WithLabelValues(string(AlertExpired)).Inc()

	events := []*notify.Event{{
		Kind:       notify.KindAlertExpired,
		Recipient:  al.GuardID,
		IncidentID: inc.ID,
		AlertID:    al.ID,
		At:         now,
	}}
	evs, _, err := s.dispatch(ctx, tx, inc, 1)
	if err != nil {
		return nil, err
	}
	events = append(events, evs...)

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.publish(ctx, events)

	s.logger.Info(ctx, "acknowledgement from ineligible guard",
		"alert_id", al.ID,
		"incident_id", inc.ID,
		"guard_id", al.GuardID,
	)
	return &RespondResult{Outcome: RespondNotEligible}, nil
}

func (s *Service) acknowledge(ctx context.Context, tx Tx, al *GuardAlert, inc *Incident) (*RespondResult, error) {
	// The winner moved the incident out of created in the same breath it
	// expired sibling offers, so a SENT alert on a non-created incident
	// means this guard lost the race anyway.
	if inc.Status != IncidentCreated {
		s.metrics.RacesLostTotal.Inc()
		return &RespondResult{Outcome: RespondAlreadyResolved}, nil
	}

	// Availability is read under the guard row lock, in the same atomic
	// scope as assignment creation. A guard who committed to another
	// incident since this offer went out cannot take a second one: the
	// offer is dead, so expire it and cascade like a decline.
	g, haveProfile, err := tx.GuardForUpdate(ctx, al.GuardID)
	if err != nil {
		return nil, err
	}
	if haveProfile && (!g.Active || !g.Available) {
		return s.sideline(ctx, tx, al, inc)
	}
	if !haveProfile {
		g = &GuardProfile{GuardID: al.GuardID, Active: true}
	}

	now := s.now()
	al.Status = AlertAcknowledged
	al.RespondedAt = now
	if err := tx.UpdateAlert(ctx, al); err != nil {
		return nil, err
	}
	s.metrics.AlertsTotal.WithLabelValues(string(AlertAcknowledged)).Inc()

	// First acknowledgement wins: expire every other pending offer now.
	alerts, err := tx.AlertsByIncident(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	var events []*notify.Event
	for _, sib := range alerts {
		if sib.ID == al.ID || sib.Status != AlertSent {
			continue
		}
		sib.Status = AlertExpired
		sib.RespondedAt = now
		if err := tx.UpdateAlert(ctx, sib); err != nil {
			return nil, err
		}
		s.metrics.AlertsTotal.WithLabelValues(string(AlertExpired)).Inc()
		events = append(events, &notify.Event{
			Kind:       notify.KindAlertExpired,
			Recipient:  sib.GuardID,
			IncidentID: inc.ID,
			AlertID:    sib.ID,
			At:         now,
		})
	}

	as := &Assignment{
		ID:         s.newID(),
		IncidentID: inc.ID,
		GuardID:    al.GuardID,
		AssignedAt: now,
		Active:     true,
	}
	if err := tx.InsertAssignment(ctx, as); err != nil {
		return nil, err
	}

	inc.Status = IncidentAssigned
	if err := tx.UpdateIncident(ctx, inc); err != nil {
		return nil, err
	}

	g.Available = false
	if err := tx.UpsertGuard(ctx, g); err != nil {
		return nil, err
	}

	// Reporting students for the conversation, read before the lock drops.
	sigs, err := tx.SignalsByIncident(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	participants := []string{al.GuardID}
	seen := map[string]bool{al.GuardID: true}
	for _, sig := range sigs {
		if sig.SourceUser != "" && !seen[sig.SourceUser] {
			seen[sig.SourceUser] = true
			participants = append(participants, sig.SourceUser)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.metrics.AssignmentsTotal.Inc()

	events = append(events, &notify.Event{
		Kind:       notify.KindAssignment,
		Recipient:  al.GuardID,
		IncidentID: inc.ID,
		AlertID:    al.ID,
		Priority:   int(inc.Priority),
		Location:   s.describeLocation(inc),
		At:         now,
	})
	s.publish(ctx, events)

	// Conversation creation and brief generation are side effects the
	// engine triggers, not part of its state: run them off the request.
	go s.finalizeAssignment(context.WithoutCancel(ctx), as, participants)

	s.logger.Info(ctx, "incident assigned",
		"incident_id", inc.ID,
		"guard_id", al.GuardID,
		"assignment_id", as.ID,
		"siblings_expired", len(events)-1,
	)
	return &RespondResult{Outcome: RespondAccepted, AssignmentID: as.ID}, nil
}

// finalizeAssignment opens the conversation and, when enabled, posts a
// generated situation brief. Failures are logged; the assignment stands.
func (s *Service) finalizeAssignment(ctx context.Context, as *Assignment, participants []string) {
	L := s.logger.With("incident_id", as.IncidentID, "assignment_id", as.ID)

	if s.conversations == nil {
		return
	}
	convID, err := s.conversations.Open(ctx, participants)
	if err != nil {
		L.Error(ctx, err, "conversation create failed")
		return
	}
	if err := s.store.SetAssignmentConversation(ctx, as.ID, convID); err != nil {
		L.Error(ctx, err, "conversation link failed", "conversation_id", convID)
		return
	}
	L.Info(ctx, "conversation opened", "conversation_id", convID, "participants", len(participants))

	if s.briefs == nil {
		return
	}
	detail, ok, err := s.store.IncidentDetail(ctx, as.IncidentID)
	if err != nil || !ok {
		L.Error(ctx, err, "brief: incident detail load failed")
		return
	}
	text, err := s.briefs.Generate(ctx, detail)
	if err != nil {
		L.Error(ctx, err, "brief generation failed")
		return
	}
	s.publish(ctx, []*notify.Event{{
		Kind:           notify.KindBrief,
		Recipient:      as.GuardID,
		IncidentID:     as.IncidentID,
		ConversationID: convID,
		Body:           text,
		At:             s.now(),
	}})
}

// UpdateGuardLocation records a guard's beacon confirmation, then retries
// any undispatched incidents against the refreshed availability.
func (s *Service) UpdateGuardLocation(ctx context.Context, guardID, beaconID string, at time.Time) error {
	if guardID == "" {
		return fmt.Errorf("%w: guard required", ErrValidation)
	}
	if _, ok := s.graph.Beacon(beaconID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBeacon, beaconID)
	}
	if at.IsZero() {
		at = s.now()
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	g, ok, err := tx.GuardForUpdate(ctx, guardID)
	if err != nil {
		return err
	}
	if !ok {
		g = &GuardProfile{GuardID: guardID, Active: true, Available: true}
	}
	g.CurrentBeacon = beaconID
	g.LastBeaconUpdate = at
	if err := tx.UpsertGuard(ctx, g); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if _, err := s.RedispatchPending(ctx); err != nil {
		s.logger.Error(ctx, err, "redispatch after location update failed", "guard_id", guardID)
	}
	return nil
}

// RedispatchPending retries incidents that exhausted the guard search:
// non-terminal, unassigned, zero pending alerts. Returns alerts sent.
func (s *Service) RedispatchPending(ctx context.Context) (int, error) {
	ids, err := s.store.UndispatchedIncidentIDs(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		sent, err := s.redispatchOne(ctx, id)
		if err != nil {
			s.logger.Error(ctx, err, "redispatch failed", "incident_id", id)
			continue
		}
		if sent > 0 {
			s.metrics.Redispatches.Inc()
		}
		total += sent
	}
	return total, nil
}

func (s *Service) redispatchOne(ctx context.Context, incidentID string) (int, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inc, ok, err := tx.IncidentForUpdate(ctx, incidentID)
	if err != nil {
		return 0, err
	}
	// Re-check under lock: the listing ran without one.
	if !ok || inc.Status != IncidentCreated {
		return 0, nil
	}
	if pending, err := s.pendingAlerts(ctx, tx, inc.ID); err != nil {
		return 0, err
	} else if pending > 0 {
		return 0, nil
	}

	events, sent, err := s.dispatch(ctx, tx, inc, s.cfg.Fanout)
	if err != nil {
		return 0, err
	}
	if sent == 0 {
		// Still nobody; roll back so the sweep doesn't spam the ops channel.
		return 0, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.publish(ctx, events)
	return sent, nil
}

// ExpireStaleAlerts transitions unanswered SENT alerts past the TTL to
// EXPIRED and cascades to the next candidate, sharing the decline path.
func (s *Service) ExpireStaleAlerts(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.AlertTTL)
	ids, err := s.store.SentAlertIDsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		ok, err := s.expireOne(ctx, id, cutoff)
		if err != nil {
			s.logger.Error(ctx, err, "alert expiry failed", "alert_id", id)
			continue
		}
		if ok {
			expired++
			s.metrics.SweepExpiries.Inc()
		}
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, alertID string, cutoff time.Time) (bool, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	al, ok, err := tx.AlertForUpdate(ctx, alertID)
	if err != nil {
		return false, err
	}
	// Re-check under lock: a response may have landed since the listing.
	if !ok || al.Status != AlertSent || al.CreatedAt.After(cutoff) {
		return false, nil
	}

	inc, ok, err := tx.IncidentForUpdate(ctx, al.IncidentID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: incident %q", ErrNotFound, al.IncidentID)
	}

	now := s.now()
	al.Status = AlertExpired
	al.RespondedAt = now
	if err := tx.UpdateAlert(ctx, al); err != nil {
		return false, err
	}
	s.metrics.AlertsTotal.WithLabelValues(string(AlertExpired)).Inc()

	events := []*notify.Event{{
		Kind:       notify.KindAlertExpired,
		Recipient:  al.GuardID,
		IncidentID: inc.ID,
		AlertID:    al.ID,
		At:         now,
	}}
	if inc.Status == IncidentCreated {
		evs, _, err := s.dispatch(ctx, tx, inc, 1)
		if err != nil {
			return false, err
		}
		events = append(events, evs...)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	s.publish(ctx, events)
	return true, nil
}

// RunSweeper drives the expiry and redispatch sweeps until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.ExpireStaleAlerts(ctx); err != nil {
				s.logger.Error(ctx, err, "expiry sweep failed")
			} else if n > 0 {
				s.logger.Info(ctx, "expiry sweep", "expired", n)
			}
			if n, err := s.RedispatchPending(ctx); err != nil {
				s.logger.Error(ctx, err, "redispatch sweep failed")
			} else if n > 0 {
				s.logger.Info(ctx, "redispatch sweep", "alerts_sent", n)
			}
		}
	}
}

// MarkInProgress moves an assigned incident to in_progress. Only the
// assigned guard may do this.
func (s *Service) MarkInProgress(ctx context.Context, incidentID, guardID string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inc, ok, err := tx.IncidentForUpdate(ctx, incidentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: incident %q", ErrNotFound, incidentID)
	}
	if inc.Status == IncidentResolved {
		return ErrIncidentClosed
	}
	if inc.Status != IncidentAssigned {
		return fmt.Errorf("%w: incident is %s", ErrNotEligible, inc.Status)
	}

	as, ok, err := tx.ActiveAssignment(ctx, incidentID)
	if err != nil {
		return err
	}
	if !ok || as.GuardID != guardID {
		return ErrNotEligible
	}

	inc.Status = IncidentInProgress
	if err := tx.UpdateIncident(ctx, inc); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ResolveIncident closes an incident. The assigned guard or an admin may
// resolve; resolution releases the guard and expires any pending offers.
// Resolved is terminal: later signals at the same location open fresh.
func (s *Service) ResolveIncident(ctx context.Context, incidentID string, actor Actor) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inc, ok, err := tx.IncidentForUpdate(ctx, incidentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: incident %q", ErrNotFound, incidentID)
	}
	if inc.Status == IncidentResolved {
		return ErrIncidentClosed
	}

	as, assigned, err := tx.ActiveAssignment(ctx, incidentID)
	if err != nil {
		return err
	}
	if !actor.Admin && (!assigned || as.GuardID != actor.ID) {
		return ErrNotEligible
	}

	now := s.now()
	inc.Status = IncidentResolved
	inc.ResolvedAt = now
	if err := tx.UpdateIncident(ctx, inc); err != nil {
		return err
	}

	// Expire leftover offers so no guard acts on a closed incident.
	alerts, err := tx.AlertsByIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	var events []*notify.Event
	for _, al := range alerts {
		if al.Status != AlertSent {
			continue
		}
		al.Status = AlertExpired
		al.RespondedAt = now
		if err := tx.UpdateAlert(ctx, al); err != nil {
			return err
		}
		s.metrics.AlertsTotal.WithLabelValues(string(AlertExpired)).Inc()
		events = append(events, &notify.Event{
			Kind:       notify.KindAlertExpired,
			Recipient:  al.GuardID,
			IncidentID: incidentID,
			AlertID:    al.ID,
			At:         now,
		})
	}

	if assigned {
		if err := tx.DeactivateAssignment(ctx, incidentID); err != nil {
			return err
		}
		g, ok, err := tx.GuardForUpdate(ctx, as.GuardID)
		if err != nil {
			return err
		}
		if ok {
			g.Available = true
			if err := tx.UpsertGuard(ctx, g); err != nil {
				return err
			}
		}
		events = append(events, &notify.Event{
			Kind:       notify.KindResolved,
			Recipient:  as.GuardID,
			IncidentID: incidentID,
			At:         now,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.metrics.OpenIncidents.Dec()
	s.publish(ctx, events)

	s.logger.Info(ctx, "incident resolved",
		"incident_id", incidentID,
		"actor", actor.ID,
		"admin", actor.Admin,
	)
	return nil
}

// Incident retrieves one incident.
func (s *Service) Incident(ctx context.Context, id string) (*Incident, bool, error) {
	return s.store.Incident(ctx, id)
}

// IncidentDetail retrieves one incident with its signals, alerts, and
// assignment.
func (s *Service) IncidentDetail(ctx context.Context, id string) (*IncidentDetail, bool, error) {
	return s.store.IncidentDetail(ctx, id)
}

// ListIncidents lists incidents, optionally filtered by status. This is the
// surface an external replay mechanism uses to find unstaffed incidents.
func (s *Service) ListIncidents(ctx context.Context, status IncidentStatus) ([]*Incident, error) {
	return s.store.ListIncidents(ctx, status)
}

// publish delivers events fire-and-forget: failures are counted and logged,
// never propagated, never rolled back.
func (s *Service) publish(ctx context.Context, events []*notify.Event) {
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.metrics.NotifyFailures.Inc()
			s.logger.Error(ctx, err, "notification publish failed",
				"kind", ev.Kind,
				"recipient", ev.Recipient,
				"incident_id", ev.IncidentID,
			)
		}
	}
}
