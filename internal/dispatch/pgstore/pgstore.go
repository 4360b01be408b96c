// Package pgstore provides a PostgreSQL implementation of dispatch.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/warden/internal/beacon"
	"github.com/linnemanlabs/warden/internal/dispatch"
)

var tracer = otel.Tracer("github.com/linnemanlabs/warden/internal/dispatch/pgstore")

//go:embed schema.sql
var schema string

// Store persists dispatch state in PostgreSQL. Row locks on incidents,
// alerts, and guards carry the engine's concurrency control; the partial
// unique index on assignments backs the single-active-assignment invariant.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store over the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const incidentColumns = `id, location_key, beacon_id, location, priority, status,
	first_signal_at, last_signal_at, resolved_at`

const signalColumns = `id, COALESCE(incident_id, ''), signal_type, confidence, source_user, created_at`

const guardColumns = `guard_id, active, available, current_beacon, last_beacon_update`

const alertColumns = `id, incident_id, guard_id, status, created_at, responded_at`

const assignmentColumns = `id, incident_id, guard_id, conversation_id, assigned_at, active`

// Begin opens a database transaction. Every mutation of incident, alert,
// guard, or assignment state goes through one.
func (s *Store) Begin(ctx context.Context) (dispatch.Tx, error) {
	t, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: t}, nil
}

// Incident retrieves one incident.
func (s *Store) Incident(ctx context.Context, id string) (*dispatch.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Incident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// IncidentDetail retrieves one incident with its signals, alerts, and
// active assignment.
func (s *Store) IncidentDetail(ctx context.Context, id string) (*dispatch.IncidentDetail, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.IncidentDetail", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	inc, ok, err := s.Incident(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	d := &dispatch.IncidentDetail{Incident: inc}

	d.Signals, err = querySignals(ctx, s.pool,
		`SELECT `+signalColumns+` FROM incident_signals WHERE incident_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	d.Alerts, err = queryAlerts(ctx, s.pool,
		`SELECT `+alertColumns+` FROM guard_alerts WHERE incident_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	as, err := scanAssignment(s.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE incident_id = $1 AND active`, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	d.Assignment = as
	return d, true, nil
}

// ListIncidents lists incidents newest first, optionally filtered by status.
func (s *Store) ListIncidents(ctx context.Context, status dispatch.IncidentStatus) ([]*dispatch.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListIncidents", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE ($1 = '' OR status = $1)
		ORDER BY first_signal_at DESC, id`
	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []*dispatch.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// Guard retrieves one guard profile.
func (s *Store) Guard(ctx context.Context, guardID string) (*dispatch.GuardProfile, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Guard", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	g, err := scanGuard(s.pool.QueryRow(ctx,
		`SELECT `+guardColumns+` FROM guard_profiles WHERE guard_id = $1`, guardID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if g == nil {
		return nil, false, nil
	}
	return g, true, nil
}

// SentAlertIDsBefore lists SENT alerts created at or before the cutoff.
// The expiry sweep re-checks each under a row lock before acting.
func (s *Store) SentAlertIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, span := tracer.Start(ctx, "pgstore.SentAlertIDsBefore", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM guard_alerts WHERE status = 'sent' AND created_at <= $1 ORDER BY created_at, id`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query stale alerts: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// UndispatchedIncidentIDs lists created incidents with no pending alert.
func (s *Store) UndispatchedIncidentIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "pgstore.UndispatchedIncidentIDs", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT i.id FROM incidents i
		 WHERE i.status = 'created'
		   AND NOT EXISTS (
		       SELECT 1 FROM guard_alerts a
		       WHERE a.incident_id = i.id AND a.status = 'sent')
		 ORDER BY i.first_signal_at, i.id`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query undispatched incidents: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// Beacons returns the beacon topology.
func (s *Store) Beacons(ctx context.Context) ([]beacon.Beacon, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Beacons", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, location_name, building, floor, active FROM beacons ORDER BY id`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query beacons: %w", err)
	}
	defer rows.Close()

	var out []beacon.Beacon
	for rows.Next() {
		var b beacon.Beacon
		if err := rows.Scan(&b.ID, &b.LocationName, &b.Building, &b.Floor, &b.Active); err != nil {
			return nil, fmt.Errorf("scan beacon: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate beacons: %w", err)
	}
	return out, nil
}

// BeaconEdges returns the proximity edges.
func (s *Store) BeaconEdges(ctx context.Context) ([]beacon.Edge, error) {
	ctx, span := tracer.Start(ctx, "pgstore.BeaconEdges", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT from_beacon, to_beacon, rank FROM beacon_edges ORDER BY from_beacon, rank`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query beacon edges: %w", err)
	}
	defer rows.Close()

	var out []beacon.Edge
	for rows.Next() {
		var e beacon.Edge
		if err := rows.Scan(&e.From, &e.To, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan beacon edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate beacon edges: %w", err)
	}
	return out, nil
}

// SetAssignmentConversation links a conversation to an assignment. Runs
// outside any transaction: the conversation is created after commit.
func (s *Store) SetAssignmentConversation(ctx context.Context, assignmentID, conversationID string) error {
	ctx, span := tracer.Start(ctx, "pgstore.SetAssignmentConversation", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE assignments SET conversation_id = $2 WHERE id = $1`, assignmentID, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("link conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link conversation: assignment %q not found", assignmentID)
	}
	return nil
}

// pgTx implements dispatch.Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// OpenIncidentByKey locks and returns the newest non-resolved incident at
// the location key. A per-key advisory lock serializes concurrent signals
// for the same location even when no row exists yet: FOR UPDATE alone locks
// nothing on an empty match, and two first signals at a fresh key would
// both take the create path.
func (t *pgTx) OpenIncidentByKey(ctx context.Context, key string) (*dispatch.Incident, bool, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return nil, false, fmt.Errorf("lock location key: %w", err)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE location_key = $1 AND status <> 'resolved'
		ORDER BY last_signal_at DESC LIMIT 1
		FOR UPDATE`
	inc, err := scanIncident(t.tx.QueryRow(ctx, query, key))
	if err != nil {
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

func (t *pgTx) IncidentForUpdate(ctx context.Context, id string) (*dispatch.Incident, bool, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	inc, err := scanIncident(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

func (t *pgTx) InsertIncident(ctx context.Context, inc *dispatch.Incident) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO incidents (`+incidentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inc.ID, inc.LocationKey, inc.BeaconID, inc.Location, int(inc.Priority),
		string(inc.Status), inc.FirstSignalAt, inc.LastSignalAt, nullTime(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateIncident(ctx context.Context, inc *dispatch.Incident) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE incidents SET priority = $2, status = $3, last_signal_at = $4, resolved_at = $5
		 WHERE id = $1`,
		inc.ID, int(inc.Priority), string(inc.Status), inc.LastSignalAt, nullTime(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update incident: %q not found", inc.ID)
	}
	return nil
}

func (t *pgTx) InsertSignal(ctx context.Context, sig *dispatch.Signal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO incident_signals (id, incident_id, signal_type, confidence, source_user, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`,
		sig.ID, sig.IncidentID, string(sig.Type), sig.Confidence, sig.SourceUser, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (t *pgTx) SignalsByIncident(ctx context.Context, incidentID string) ([]*dispatch.Signal, error) {
	return querySignals(ctx, t.tx,
		`SELECT `+signalColumns+` FROM incident_signals WHERE incident_id = $1 ORDER BY created_at, id`,
		incidentID)
}

func (t *pgTx) GuardForUpdate(ctx context.Context, guardID string) (*dispatch.GuardProfile, bool, error) {
	g, err := scanGuard(t.tx.QueryRow(ctx,
		`SELECT `+guardColumns+` FROM guard_profiles WHERE guard_id = $1 FOR UPDATE`, guardID))
	if err != nil {
		return nil, false, err
	}
	if g == nil {
		return nil, false, nil
	}
	return g, true, nil
}

func (t *pgTx) UpsertGuard(ctx context.Context, g *dispatch.GuardProfile) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO guard_profiles (`+guardColumns+`)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (guard_id) DO UPDATE SET
			active             = EXCLUDED.active,
			available          = EXCLUDED.available,
			current_beacon     = EXCLUDED.current_beacon,
			last_beacon_update = EXCLUDED.last_beacon_update`,
		g.GuardID, g.Active, g.Available, g.CurrentBeacon, nullTime(g.LastBeaconUpdate))
	if err != nil {
		return fmt.Errorf("upsert guard: %w", err)
	}
	return nil
}

func (t *pgTx) EligibleGuardsAt(ctx context.Context, beaconID string, freshAfter time.Time) ([]*dispatch.GuardProfile, error) {
	return queryGuards(ctx, t.tx,
		`SELECT `+guardColumns+` FROM guard_profiles
		 WHERE active AND available AND current_beacon = $1
		   AND ($2::timestamptz IS NULL OR last_beacon_update >= $2)
		 ORDER BY last_beacon_update DESC NULLS LAST, guard_id`,
		beaconID, nullTime(freshAfter))
}

func (t *pgTx) EligibleGuardsAnywhere(ctx context.Context, freshAfter time.Time, limit int) ([]*dispatch.GuardProfile, error) {
	return queryGuards(ctx, t.tx,
		`SELECT `+guardColumns+` FROM guard_profiles
		 WHERE active AND available
		   AND ($1::timestamptz IS NULL OR last_beacon_update >= $1)
		 ORDER BY last_beacon_update DESC NULLS LAST, guard_id
		 LIMIT $2`,
		nullTime(freshAfter), limit)
}

func (t *pgTx) AlertForUpdate(ctx context.Context, id string) (*dispatch.GuardAlert, bool, error) {
	al, err := scanAlert(t.tx.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM guard_alerts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, false, err
	}
	if al == nil {
		return nil, false, nil
	}
	return al, true, nil
}

func (t *pgTx) InsertAlert(ctx context.Context, al *dispatch.GuardAlert) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO guard_alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		al.ID, al.IncidentID, al.GuardID, string(al.Status), al.CreatedAt, nullTime(al.RespondedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAlert(ctx context.Context, al *dispatch.GuardAlert) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE guard_alerts SET status = $2, responded_at = $3 WHERE id = $1`,
		al.ID, string(al.Status), nullTime(al.RespondedAt))
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update alert: %q not found", al.ID)
	}
	return nil
}

func (t *pgTx) AlertsByIncident(ctx context.Context, incidentID string) ([]*dispatch.GuardAlert, error) {
	return queryAlerts(ctx, t.tx,
		`SELECT `+alertColumns+` FROM guard_alerts WHERE incident_id = $1 ORDER BY created_at, id`,
		incidentID)
}

func (t *pgTx) InsertAssignment(ctx context.Context, as *dispatch.Assignment) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO assignments (`+assignmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		as.ID, as.IncidentID, as.GuardID, as.ConversationID, as.AssignedAt, as.Active)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (t *pgTx) ActiveAssignment(ctx context.Context, incidentID string) (*dispatch.Assignment, bool, error) {
	as, err := scanAssignment(t.tx.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE incident_id = $1 AND active`, incidentID))
	if err != nil {
		return nil, false, err
	}
	if as == nil {
		return nil, false, nil
	}
	return as, true, nil
}

func (t *pgTx) DeactivateAssignment(ctx context.Context, incidentID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE assignments SET active = FALSE WHERE incident_id = $1 AND active`, incidentID)
	if err != nil {
		return fmt.Errorf("deactivate assignment: %w", err)
	}
	return nil
}

// querier is the subset of pgx shared by pool and tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func querySignals(ctx context.Context, q querier, sql string, args ...any) ([]*dispatch.Signal, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*dispatch.Signal
	for rows.Next() {
		var (
			sig dispatch.Signal
			typ string
		)
		if err := rows.Scan(&sig.ID, &sig.IncidentID, &typ, &sig.Confidence, &sig.SourceUser, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Type = dispatch.SignalType(typ)
		out = append(out, &sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}

func queryGuards(ctx context.Context, q querier, sql string, args ...any) ([]*dispatch.GuardProfile, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query guards: %w", err)
	}
	defer rows.Close()

	var out []*dispatch.GuardProfile
	for rows.Next() {
		g, err := scanGuardRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guards: %w", err)
	}
	return out, nil
}

func queryAlerts(ctx context.Context, q querier, sql string, args ...any) ([]*dispatch.GuardAlert, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*dispatch.GuardAlert
	for rows.Next() {
		al, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, al)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// scanIncident scans a single incident row. Returns (nil, nil) when no row
// is found.
func scanIncident(row pgx.Row) (*dispatch.Incident, error) {
	var (
		inc        dispatch.Incident
		priority   int
		status     string
		resolvedAt *time.Time
	)
	err := row.Scan(&inc.ID, &inc.LocationKey, &inc.BeaconID, &inc.Location,
		&priority, &status, &inc.FirstSignalAt, &inc.LastSignalAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Priority = dispatch.Priority(priority)
	inc.Status = dispatch.IncidentStatus(status)
	if resolvedAt != nil {
		inc.ResolvedAt = *resolvedAt
	}
	return &inc, nil
}

func scanGuard(row pgx.Row) (*dispatch.GuardProfile, error) {
	g, err := scanGuardRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func scanGuardRow(row pgx.Row) (*dispatch.GuardProfile, error) {
	var (
		g          dispatch.GuardProfile
		lastUpdate *time.Time
	)
	if err := row.Scan(&g.GuardID, &g.Active, &g.Available, &g.CurrentBeacon, &lastUpdate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan guard: %w", err)
	}
	if lastUpdate != nil {
		g.LastBeaconUpdate = *lastUpdate
	}
	return &g, nil
}

func scanAlert(row pgx.Row) (*dispatch.GuardAlert, error) {
	al, err := scanAlertRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return al, nil
}

func scanAlertRow(row pgx.Row) (*dispatch.GuardAlert, error) {
	var (
		al          dispatch.GuardAlert
		status      string
		respondedAt *time.Time
	)
	if err := row.Scan(&al.ID, &al.IncidentID, &al.GuardID, &status, &al.CreatedAt, &respondedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	al.Status = dispatch.AlertStatus(status)
	if respondedAt != nil {
		al.RespondedAt = *respondedAt
	}
	return &al, nil
}

// scanAssignment returns (nil, nil) when no active assignment exists.
func scanAssignment(row pgx.Row) (*dispatch.Assignment, error) {
	var as dispatch.Assignment
	err := row.Scan(&as.ID, &as.IncidentID, &as.GuardID, &as.ConversationID, &as.AssignedAt, &as.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return &as, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
