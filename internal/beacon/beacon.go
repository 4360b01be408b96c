// Package beacon models the campus location anchor points and the directed
// proximity graph between them. The graph is maintained by an external
// administrative collaborator; the dispatch engine only reads it.
package beacon

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
)

// SyntheticPrefix marks location keys derived from free-text locations
// rather than physical beacons.
const SyntheticPrefix = "virtual:"

// Beacon is a physical location anchor point. Beacons are never deleted,
// only deactivated, so historical incidents keep a valid reference.
type Beacon struct {
	ID           string `json:"id"`
	LocationName string `json:"location_name"`
	Building     string `json:"building"`
	Floor        int    `json:"floor"`
	Active       bool   `json:"active"`
}

// Edge is a directed proximity edge. Lower rank means nearer / more
// preferred when widening a guard search. The graph need not be symmetric.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Rank int    `json:"rank"`
}

// SyntheticKey derives a stable location key from free-text location input.
// Normalization: trim, lowercase, collapse internal whitespace.
func SyntheticKey(location string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(location), " "))
	h := fnv.New64a()
	_, _ = h.Write([]byte(norm))
	return fmt.Sprintf("%s%016x", SyntheticPrefix, h.Sum64())
}

// IsSynthetic reports whether key refers to a virtual beacon.
func IsSynthetic(key string) bool {
	return strings.HasPrefix(key, SyntheticPrefix)
}

// Snapshot is the serialized form of the graph, used for dev seed files.
type Snapshot struct {
	Beacons []Beacon `json:"beacons"`
	Edges   []Edge   `json:"edges"`
}

// LoadSnapshot reads a Snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read beacon snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse beacon snapshot: %w", err)
	}
	return &snap, nil
}
