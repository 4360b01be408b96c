// Package brief turns an incident's evidence into a short situation brief
// for the assigned guard. Generation is best effort: a failure is logged by
// the caller and never affects dispatch state.
package brief

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/warden/internal/beacon"
	"github.com/linnemanlabs/warden/internal/dispatch"
)

const systemPrompt = `You are the dispatch assistant for a campus security team.
Write a brief for the guard who just accepted an incident: what happened,
where, how reliable the evidence is, and what to check first on arrival.
Be factual and terse. No more than five sentences. Do not invent details.`

// Completer is the single-turn LLM surface the generator needs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Generator produces dispatch briefs from incident details.
type Generator struct {
	llm   Completer
	graph *beacon.Graph
}

// New creates a Generator. The graph resolves beacon IDs to human-readable
// location names; nil is allowed.
func New(llm Completer, graph *beacon.Graph) *Generator {
	return &Generator{llm: llm, graph: graph}
}

// Generate implements dispatch.BriefGenerator.
func (g *Generator) Generate(ctx context.Context, d *dispatch.IncidentDetail) (string, error) {
	text, err := g.llm.Complete(ctx, systemPrompt, g.prompt(d))
	if err != nil {
		return "", fmt.Errorf("generate brief: %w", err)
	}
	return text, nil
}

// prompt renders the incident evidence as plain text for the model.
func (g *Generator) prompt(d *dispatch.IncidentDetail) string {
	var b strings.Builder
	inc := d.Incident

	fmt.Fprintf(&b, "Incident %s, priority %s, status %s.\n", inc.ID, inc.Priority, inc.Status)
	fmt.Fprintf(&b, "Location: %s\n", g.describeLocation(inc))
	fmt.Fprintf(&b, "First signal %s, latest %s.\n",
		inc.FirstSignalAt.Format("15:04:05"), inc.LastSignalAt.Format("15:04:05"))

	b.WriteString("Signals:\n")
	for _, sig := range d.Signals {
		fmt.Fprintf(&b, "- %s at %s", sig.Type, sig.CreatedAt.Format("15:04:05"))
		if sig.Confidence > 0 {
			fmt.Fprintf(&b, " (confidence %.2f)", sig.Confidence)
		}
		if sig.SourceUser != "" {
			fmt.Fprintf(&b, " reported by %s", sig.SourceUser)
		}
		b.WriteString("\n")
	}

	declined := 0
	for _, al := range d.Alerts {
		if al.Status == dispatch.AlertDeclined {
			declined++
		}
	}
	if declined > 0 {
		fmt.Fprintf(&b, "%d earlier guard(s) declined this incident.\n", declined)
	}
	return b.String()
}

func (g *Generator) describeLocation(inc *dispatch.Incident) string {
	if inc.BeaconID != "" && g.graph != nil {
		if bc, ok := g.graph.Beacon(inc.BeaconID); ok && bc.LocationName != "" {
			return fmt.Sprintf("%s (beacon %s)", bc.LocationName, bc.ID)
		}
	}
	if inc.BeaconID != "" {
		return "beacon " + inc.BeaconID
	}
	return inc.Location
}
