package pgstore_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/warden/internal/dispatch"
	"github.com/linnemanlabs/warden/internal/dispatch/pgstore"
	"github.com/linnemanlabs/warden/internal/postgres"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("WARDEN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WARDEN_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func newIncident(key string) *dispatch.Incident {
	now := time.Now().Truncate(time.Microsecond).UTC()
	return &dispatch.Incident{
		ID:            ulid.Make().String(),
		LocationKey:   key,
		Location:      "library east wing",
		Priority:      dispatch.PriorityHigh,
		Status:        dispatch.IncidentCreated,
		FirstSignalAt: now,
		LastSignalAt:  now,
	}
}

func TestIncidentRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("key-" + ulid.Make().String())
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.InsertIncident(ctx, inc); err != nil {
		t.Fatalf("InsertIncident: %v", err)
	}
	if err := tx.InsertSignal(ctx, &dispatch.Signal{
		ID:         ulid.Make().String(),
		IncidentID: inc.ID,
		Type:       dispatch.SignalStudentSOS,
		SourceUser: "stu-1",
		CreatedAt:  inc.FirstSignalAt,
	}); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	got, ok, err := tx.OpenIncidentByKey(ctx, inc.LocationKey)
	if err != nil || !ok {
		t.Fatalf("OpenIncidentByKey: ok=%v err=%v", ok, err)
	}
	if got.ID != inc.ID || got.Priority != dispatch.PriorityHigh {
		t.Fatalf("open incident = %+v, want %s high", got, inc.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	d, ok, err := s.IncidentDetail(ctx, inc.ID)
	if err != nil || !ok {
		t.Fatalf("IncidentDetail: ok=%v err=%v", ok, err)
	}
	if len(d.Signals) != 1 || d.Signals[0].SourceUser != "stu-1" {
		t.Fatalf("signals = %+v, want one from stu-1", d.Signals)
	}
}

func TestConcurrentFirstSignalSingleIncident(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := "key-" + ulid.Make().String()

	// Two first signals race at a key with no incident row yet. The
	// advisory lock in OpenIncidentByKey must serialize them so the
	// second transaction sees the first one's insert.
	const workers = 4
	created := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if err != nil {
				t.Errorf("Begin: %v", err)
				return
			}
			defer func() { _ = tx.Rollback(ctx) }()

			_, ok, err := tx.OpenIncidentByKey(ctx, key)
			if err != nil {
				t.Errorf("OpenIncidentByKey: %v", err)
				return
			}
			if !ok {
				if err := tx.InsertIncident(ctx, newIncident(key)); err != nil {
					t.Errorf("InsertIncident: %v", err)
					return
				}
				created[i] = true
			}
			if err := tx.Commit(ctx); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	n := 0
	for _, c := range created {
		if c {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("incidents created at one key = %d, want exactly 1", n)
	}
}

func TestAuditSignalWithoutIncident(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Below-gate evidence rows carry no incident reference.
	err = tx.InsertSignal(ctx, &dispatch.Signal{
		ID:         ulid.Make().String(),
		Type:       dispatch.SignalViolenceDetected,
		Confidence: 0.6,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestActiveAssignmentUnique(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("key-" + ulid.Make().String())
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.InsertIncident(ctx, inc); err != nil {
		t.Fatalf("InsertIncident: %v", err)
	}
	first := &dispatch.Assignment{
		ID: ulid.Make().String(), IncidentID: inc.ID, GuardID: "g-1",
		AssignedAt: time.Now().UTC(), Active: true,
	}
	if err := tx.InsertAssignment(ctx, first); err != nil {
		t.Fatalf("InsertAssignment: %v", err)
	}

	// The partial unique index rejects a second active assignment.
	second := &dispatch.Assignment{
		ID: ulid.Make().String(), IncidentID: inc.ID, GuardID: "g-2",
		AssignedAt: time.Now().UTC(), Active: true,
	}
	if err := tx.InsertAssignment(ctx, second); err == nil {
		t.Fatal("second active assignment was accepted")
	}
	_ = tx.Rollback(ctx)
}

func TestDuplicateGuardAlertRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("key-" + ulid.Make().String())
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.InsertIncident(ctx, inc); err != nil {
		t.Fatalf("InsertIncident: %v", err)
	}
	al := &dispatch.GuardAlert{
		ID: ulid.Make().String(), IncidentID: inc.ID, GuardID: "g-1",
		Status: dispatch.AlertSent, CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertAlert(ctx, al); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	dup := &dispatch.GuardAlert{
		ID: ulid.Make().String(), IncidentID: inc.ID, GuardID: "g-1",
		Status: dispatch.AlertSent, CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertAlert(ctx, dup); err == nil {
		t.Fatal("duplicate alert for the same guard was accepted")
	}
	_ = tx.Rollback(ctx)
}

func TestGuardUpsertAndEligibility(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	guardID := "g-" + ulid.Make().String()
	beaconID := "b-" + ulid.Make().String()
	now := time.Now().Truncate(time.Microsecond).UTC()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	g := &dispatch.GuardProfile{
		GuardID: guardID, Active: true, Available: true,
		CurrentBeacon: beaconID, LastBeaconUpdate: now,
	}
	if err := tx.UpsertGuard(ctx, g); err != nil {
		t.Fatalf("UpsertGuard: %v", err)
	}

	eligible, err := tx.EligibleGuardsAt(ctx, beaconID, time.Time{})
	if err != nil {
		t.Fatalf("EligibleGuardsAt: %v", err)
	}
	if len(eligible) != 1 || eligible[0].GuardID != guardID {
		t.Fatalf("eligible = %+v, want %s", eligible, guardID)
	}

	// A staleness cutoff in the future excludes them.
	eligible, err = tx.EligibleGuardsAt(ctx, beaconID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("EligibleGuardsAt: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("eligible past cutoff = %+v, want none", eligible)
	}

	// Busy guards drop out.
	g.Available = false
	if err := tx.UpsertGuard(ctx, g); err != nil {
		t.Fatalf("UpsertGuard: %v", err)
	}
	eligible, err = tx.EligibleGuardsAt(ctx, beaconID, time.Time{})
	if err != nil {
		t.Fatalf("EligibleGuardsAt: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("eligible while busy = %+v, want none", eligible)
	}
	_ = tx.Rollback(ctx)
}

func TestSetAssignmentConversation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	inc := newIncident("key-" + ulid.Make().String())
	as := &dispatch.Assignment{
		ID: ulid.Make().String(), IncidentID: inc.ID, GuardID: "g-1",
		AssignedAt: time.Now().UTC(), Active: true,
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.InsertIncident(ctx, inc); err != nil {
		t.Fatalf("InsertIncident: %v", err)
	}
	if err := tx.InsertAssignment(ctx, as); err != nil {
		t.Fatalf("InsertAssignment: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	convID := "conv-" + ulid.Make().String()
	if err := s.SetAssignmentConversation(ctx, as.ID, convID); err != nil {
		t.Fatalf("SetAssignmentConversation: %v", err)
	}
	d, ok, err := s.IncidentDetail(ctx, inc.ID)
	if err != nil || !ok {
		t.Fatalf("IncidentDetail: ok=%v err=%v", ok, err)
	}
	if d.Assignment == nil || d.Assignment.ConversationID != convID {
		t.Fatalf("assignment = %+v, want conversation %s", d.Assignment, convID)
	}

	if err := s.SetAssignmentConversation(ctx, "missing", convID); err == nil {
		t.Fatal("linking an unknown assignment succeeded")
	}
}
