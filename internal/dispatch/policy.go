package dispatch

// signalPolicy fixes the confidence gate and base priority per signal type.
// A gate of 0 means the type always passes (human-originated signals).
type signalPolicy struct {
	ConfidenceGate float64
	BasePriority   Priority
	NeedsScore     bool
}

// policyTable is the closed signal-type table. Adding a signal type means
// adding a row here; the engine has no per-type branching elsewhere.
var policyTable = map[SignalType]signalPolicy{
	SignalStudentSOS:       {ConfidenceGate: 0, BasePriority: PriorityHigh},
	SignalPanicButton:      {ConfidenceGate: 0, BasePriority: PriorityHigh},
	SignalViolenceDetected: {ConfidenceGate: 0.75, BasePriority: PriorityCritical, NeedsScore: true},
	SignalScreamDetected:   {ConfidenceGate: 0.80, BasePriority: PriorityHigh, NeedsScore: true},
	SignalStudentReport:    {ConfidenceGate: 0, BasePriority: PriorityLow},
}

// KnownSignalType reports whether t is in the closed enumeration.
func KnownSignalType(t SignalType) bool {
	_, ok := policyTable[t]
	return ok
}

// needsConfidence reports whether t requires a confidence score.
func needsConfidence(t SignalType) bool {
	return policyTable[t].NeedsScore
}

// meetsGate reports whether a signal of type t at the given confidence
// clears its gate. Below-gate is an intentional no-op outcome, not an error.
func meetsGate(t SignalType, confidence float64) bool {
	p := policyTable[t]
	if !p.NeedsScore {
		return true
	}
	return confidence >= p.ConfidenceGate
}

// Escalate computes the incident priority after one more signal of type t.
// signalCount is the total signal count at the incident including the new
// one. The result never drops below current: priority is monotonic.
func Escalate(current Priority, t SignalType, signalCount, repeatThreshold int) Priority {
	base := policyTable[t].BasePriority

	// Repeated independent reports reinforce each other.
	if t == SignalStudentReport && repeatThreshold > 0 && signalCount >= repeatThreshold {
		base = PriorityMedium
	}

	if base > current {
		return base
	}
	return current
}
