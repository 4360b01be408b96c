package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/warden/internal/beacon"
)

// fakeTx stubs the two eligibility reads the locator performs. Remaining
// Tx methods come from the embedded interface and are never called.
type fakeTx struct {
	Tx
	guardsAt map[string][]*GuardProfile
	anywhere []*GuardProfile

	anywhereLimit int
}

func (f *fakeTx) EligibleGuardsAt(_ context.Context, beaconID string, _ time.Time) ([]*GuardProfile, error) {
	return f.guardsAt[beaconID], nil
}

func (f *fakeTx) EligibleGuardsAnywhere(_ context.Context, _ time.Time, limit int) ([]*GuardProfile, error) {
	f.anywhereLimit = limit
	if limit > 0 && len(f.anywhere) > limit {
		return f.anywhere[:limit], nil
	}
	return f.anywhere, nil
}

func guard(id string) *GuardProfile {
	return &GuardProfile{GuardID: id, Active: true, Available: true}
}

func locatorGraph(t *testing.T) *beacon.Graph {
	t.Helper()
	g, err := beacon.NewGraph(
		[]beacon.Beacon{
			{ID: "b-0", Active: true},
			{ID: "b-1", Active: true},
			{ID: "b-2", Active: true},
		},
		[]beacon.Edge{
			{From: "b-0", To: "b-1", Rank: 1},
			{From: "b-0", To: "b-2", Rank: 2},
		},
	)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func guardIDs(gs []*GuardProfile) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.GuardID)
	}
	return out
}

func TestLocatorNearestRingFirst(t *testing.T) {
	t.Parallel()
	l := &locator{graph: locatorGraph(t), now: time.Now}
	tx := &fakeTx{guardsAt: map[string][]*GuardProfile{
		"b-0": {guard("g-ring0")},
		"b-1": {guard("g-ring1")},
		"b-2": {guard("g-ring2")},
	}}
	inc := &Incident{BeaconID: "b-0"}

	got, err := l.candidates(context.Background(), tx, inc, nil, 2)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	want := []string{"g-ring0", "g-ring1"}
	if ids := guardIDs(got); len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("candidates = %v, want %v", ids, want)
	}
}

func TestLocatorSkipsExcluded(t *testing.T) {
	t.Parallel()
	l := &locator{graph: locatorGraph(t), now: time.Now}
	tx := &fakeTx{guardsAt: map[string][]*GuardProfile{
		"b-0": {guard("g-a"), guard("g-b")},
		"b-1": {guard("g-c")},
	}}
	inc := &Incident{BeaconID: "b-0"}

	got, err := l.candidates(context.Background(), tx, inc, map[string]bool{"g-a": true}, 2)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if ids := guardIDs(got); len(ids) != 2 || ids[0] != "g-b" || ids[1] != "g-c" {
		t.Fatalf("candidates = %v, want [g-b g-c]", ids)
	}
}

func TestLocatorFallbackOnlyWhenGraphEmpty(t *testing.T) {
	t.Parallel()
	l := &locator{graph: locatorGraph(t), fallbackPool: 5, now: time.Now}

	// Graph produced someone: the fallback must not run.
	tx := &fakeTx{
		guardsAt: map[string][]*GuardProfile{"b-1": {guard("g-near")}},
		anywhere: []*GuardProfile{guard("g-far")},
	}
	got, err := l.candidates(context.Background(), tx, &Incident{BeaconID: "b-0"}, nil, 3)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if ids := guardIDs(got); len(ids) != 1 || ids[0] != "g-near" {
		t.Fatalf("candidates = %v, want [g-near]", ids)
	}
	if tx.anywhereLimit != 0 {
		t.Fatal("campus-wide fallback queried while graph had candidates")
	}

	// Nothing local: the pool kicks in.
	tx = &fakeTx{anywhere: []*GuardProfile{guard("g-far")}}
	got, err = l.candidates(context.Background(), tx, &Incident{BeaconID: "b-0"}, nil, 3)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if ids := guardIDs(got); len(ids) != 1 || ids[0] != "g-far" {
		t.Fatalf("fallback candidates = %v, want [g-far]", ids)
	}
}

func TestLocatorSyntheticLocationUsesFallback(t *testing.T) {
	t.Parallel()
	l := &locator{graph: locatorGraph(t), fallbackPool: 2, now: time.Now}
	tx := &fakeTx{anywhere: []*GuardProfile{guard("g-1"), guard("g-2"), guard("g-3")}}

	// Free-text incidents have no beacon, so only the pool applies, capped
	// at its configured size.
	inc := &Incident{LocationKey: beacon.SyntheticKey("old gym basement")}
	got, err := l.candidates(context.Background(), tx, inc, nil, 5)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %v, want pool cap of 2", guardIDs(got))
	}
}

func TestLocatorZeroWanted(t *testing.T) {
	t.Parallel()
	l := &locator{graph: locatorGraph(t), now: time.Now}
	got, err := l.candidates(context.Background(), &fakeTx{}, &Incident{BeaconID: "b-0"}, nil, 0)
	if err != nil || got != nil {
		t.Fatalf("candidates = %v, %v; want nil, nil", got, err)
	}
}
