package dispatch

import "testing"

func TestMeetsGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		typ        SignalType
		confidence float64
		want       bool
	}{
		{"sos always passes", SignalStudentSOS, 0, true},
		{"panic always passes", SignalPanicButton, 0, true},
		{"report always passes", SignalStudentReport, 0, true},
		{"violence above gate", SignalViolenceDetected, 0.80, true},
		{"violence at gate", SignalViolenceDetected, 0.75, true},
		{"violence below gate", SignalViolenceDetected, 0.65, false},
		{"scream at gate", SignalScreamDetected, 0.80, true},
		{"scream below gate", SignalScreamDetected, 0.79, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := meetsGate(tt.typ, tt.confidence); got != tt.want {
				t.Errorf("meetsGate(%s, %v) = %v, want %v", tt.typ, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestEscalate_BasePriorities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  SignalType
		want Priority
	}{
		{"sos is high", SignalStudentSOS, PriorityHigh},
		{"panic is high", SignalPanicButton, PriorityHigh},
		{"violence is critical", SignalViolenceDetected, PriorityCritical},
		{"scream is high", SignalScreamDetected, PriorityHigh},
		{"report is low", SignalStudentReport, PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Escalate(PriorityLow, tt.typ, 1, 3); got != tt.want {
				t.Errorf("Escalate from low via %s = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestEscalate_Monotonic(t *testing.T) {
	t.Parallel()

	// A low-priority signal never lowers an already-escalated incident.
	if got := Escalate(PriorityCritical, SignalStudentReport, 2, 3); got != PriorityCritical {
		t.Errorf("Escalate(critical, report) = %v, want critical", got)
	}
	if got := Escalate(PriorityHigh, SignalScreamDetected, 2, 3); got != PriorityHigh {
		t.Errorf("Escalate(high, scream) = %v, want high", got)
	}
}

func TestEscalate_RepeatReports(t *testing.T) {
	t.Parallel()

	if got := Escalate(PriorityLow, SignalStudentReport, 2, 3); got != PriorityLow {
		t.Errorf("2 reports = %v, want low", got)
	}
	if got := Escalate(PriorityLow, SignalStudentReport, 3, 3); got != PriorityMedium {
		t.Errorf("3 reports = %v, want medium", got)
	}
	// Threshold 0 disables repeat escalation.
	if got := Escalate(PriorityLow, SignalStudentReport, 10, 0); got != PriorityLow {
		t.Errorf("disabled threshold = %v, want low", got)
	}
}

func TestKnownSignalType(t *testing.T) {
	t.Parallel()

	for _, typ := range []SignalType{
		SignalStudentSOS, SignalStudentReport, SignalViolenceDetected,
		SignalScreamDetected, SignalPanicButton,
	} {
		if !KnownSignalType(typ) {
			t.Errorf("KnownSignalType(%s) = false", typ)
		}
	}
	if KnownSignalType("fire_drill") {
		t.Error("KnownSignalType(fire_drill) = true, want false")
	}
}
