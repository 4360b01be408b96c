package dispatch

import (
	"context"
	"time"

	"github.com/linnemanlabs/warden/internal/beacon"
)

// locator ranks candidate guards for an incident by widening the search
// over the beacon proximity graph.
type locator struct {
	graph        *beacon.Graph
	fallbackPool int           // campus-wide pool size when the graph yields nothing
	staleness    time.Duration // exclude guards with older location confirmations; 0 disables
	now          func() time.Time
}

// candidates returns up to n eligible guards ordered nearest-ring first,
// most recently location-confirmed first within a ring. Guards in exclude
// (already alerted for this incident) are skipped. Runs inside the caller's
// transaction so eligibility is read in the same atomic scope that will
// write the alerts.
func (l *locator) candidates(ctx context.Context, tx Tx, inc *Incident, exclude map[string]bool, n int) ([]*GuardProfile, error) {
	if n <= 0 {
		return nil, nil
	}

	freshAfter := l.freshCutoff()
	var out []*GuardProfile
	seen := make(map[string]bool, len(exclude))
	for id := range exclude {
		seen[id] = true
	}

	// Ring 0 is the incident's own beacon; synthetic locations have none.
	for _, beaconID := range l.searchOrder(inc) {
		guards, err := tx.EligibleGuardsAt(ctx, beaconID, freshAfter)
		if err != nil {
			return nil, err
		}
		for _, g := range guards {
			if seen[g.GuardID] {
				continue
			}
			seen[g.GuardID] = true
			out = append(out, g)
		}
		if len(out) >= n {
			return out[:n], nil
		}
	}

	// Graph exhausted with nothing local: campus-wide fallback pool.
	if len(out) == 0 && l.fallbackPool > 0 {
		guards, err := tx.EligibleGuardsAnywhere(ctx, freshAfter, l.fallbackPool+len(seen))
		if err != nil {
			return nil, err
		}
		for _, g := range guards {
			if seen[g.GuardID] {
				continue
			}
			seen[g.GuardID] = true
			out = append(out, g)
			if len(out) >= n {
				break
			}
		}
	}

	return out, nil
}

// searchOrder is the incident beacon followed by its neighbors ascending by
// edge rank (ties broken by beacon ID inside the graph).
func (l *locator) searchOrder(inc *Incident) []string {
	if inc.BeaconID == "" {
		return nil
	}
	order := []string{inc.BeaconID}
	for _, e := range l.graph.Neighbors(inc.BeaconID) {
		order = append(order, e.To)
	}
	return order
}

func (l *locator) freshCutoff() time.Time {
	if l.staleness <= 0 {
		return time.Time{}
	}
	return l.now().Add(-l.staleness)
}
