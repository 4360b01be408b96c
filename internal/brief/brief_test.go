package brief

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/warden/internal/beacon"
	"github.com/linnemanlabs/warden/internal/dispatch"
)

type fakeCompleter struct {
	system string
	prompt string
	out    string
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system = system
	f.prompt = prompt
	return f.out, f.err
}

func testDetail() *dispatch.IncidentDetail {
	t0 := time.Date(2026, 3, 10, 22, 15, 0, 0, time.UTC)
	return &dispatch.IncidentDetail{
		Incident: &dispatch.Incident{
			ID:            "inc-1",
			BeaconID:      "b-lib",
			Priority:      dispatch.PriorityCritical,
			Status:        dispatch.IncidentAssigned,
			FirstSignalAt: t0,
			LastSignalAt:  t0.Add(time.Minute),
		},
		Signals: []*dispatch.Signal{
			{Type: dispatch.SignalScreamDetected, Confidence: 0.92, CreatedAt: t0},
			{Type: dispatch.SignalStudentSOS, SourceUser: "stu-7", CreatedAt: t0.Add(time.Minute)},
		},
		Alerts: []*dispatch.GuardAlert{
			{GuardID: "g-1", Status: dispatch.AlertDeclined},
			{GuardID: "g-2", Status: dispatch.AlertAcknowledged},
		},
	}
}

func TestGenerateIncludesEvidence(t *testing.T) {
	t.Parallel()

	graph, err := beacon.NewGraph(
		[]beacon.Beacon{{ID: "b-lib", LocationName: "Library East Wing", Active: true}}, nil)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	llm := &fakeCompleter{out: "Scream detected then an SOS at the library."}
	g := New(llm, graph)

	text, err := g.Generate(context.Background(), testDetail())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != llm.out {
		t.Errorf("brief = %q, want completion passthrough", text)
	}

	for _, want := range []string{
		"critical",
		"Library East Wing",
		"scream_detected",
		"confidence 0.92",
		"student_sos",
		"reported by stu-7",
		"1 earlier guard(s) declined",
	} {
		if !strings.Contains(llm.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, llm.prompt)
		}
	}
	if !strings.Contains(llm.system, "campus security") {
		t.Errorf("system prompt = %q", llm.system)
	}
}

func TestGenerateSyntheticLocation(t *testing.T) {
	t.Parallel()

	d := testDetail()
	d.Incident.BeaconID = ""
	d.Incident.Location = "old gym basement"

	llm := &fakeCompleter{out: "brief"}
	if _, err := New(llm, nil).Generate(context.Background(), d); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(llm.prompt, "old gym basement") {
		t.Errorf("prompt missing free-text location:\n%s", llm.prompt)
	}
}

func TestGenerateError(t *testing.T) {
	t.Parallel()

	llm := &fakeCompleter{err: errors.New("rate limited")}
	if _, err := New(llm, nil).Generate(context.Background(), testDetail()); err == nil {
		t.Fatal("expected error passthrough")
	}
}
