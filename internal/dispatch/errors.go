package dispatch

import "errors"

// Protocol errors surfaced to callers. Handlers map these to client
// responses; anything else is an internal error.
var (
	// ErrValidation covers malformed input: missing location, unknown
	// signal type, confidence out of range. Nothing is mutated.
	ErrValidation = errors.New("invalid signal input")

	// ErrUnknownBeacon means a beacon ID that is not in the proximity
	// graph. Safe default is no incident and no alert, never silent success.
	ErrUnknownBeacon = errors.New("unknown beacon")

	// ErrNotFound means the referenced incident or alert does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotEligible means the responding guard does not hold this alert,
	// or the acting user may not resolve this incident.
	ErrNotEligible = errors.New("not eligible")

	// ErrIncidentClosed means the incident is terminal and the requested
	// transition is impossible.
	ErrIncidentClosed = errors.New("incident resolved")
)
