package valueobjects

// RequestStatus is the lifecycle state of a request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestCompleted RequestStatus = "completed"
	RequestSnoozed   RequestStatus = "snoozed"
	RequestDeclined  RequestStatus = "declined"
	// RequestExpired is only ever written by external cleanup jobs; the engine
	// reads it for analytics.
	RequestExpired RequestStatus = "expired"
)

// IsOpen reports whether the status occupies a cadence slot.
func (s RequestStatus) IsOpen() bool {
	return s == RequestPending || s == RequestAccepted
}

// IsTerminal reports whether no further lifecycle action is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestDeclined || s == RequestExpired
}

// IsValid reports whether s is a known status.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestCompleted, RequestSnoozed, RequestDeclined, RequestExpired:
		return true
	}
	return false
}

// OpenStatuses are the statuses counted against the open-slot budget.
var OpenStatuses = []RequestStatus{RequestPending, RequestAccepted}

// RitualStatus is the state of a daily ritual.
type RitualStatus string

const (
	RitualPending   RitualStatus = "pending"
	RitualCompleted RitualStatus = "completed"
)

// EmotionalArc tags the companion's current mood trajectory.
type EmotionalArc string

const (
	ArcForming         EmotionalArc = "forming"
	ArcSteadyBloom     EmotionalArc = "steady_bloom"
	ArcResonantGrowth  EmotionalArc = "resonant_growth"
	ArcRoutineDrift    EmotionalArc = "routine_drift"
	ArcFragileEcho     EmotionalArc = "fragile_echo"
	ArcRepairSequence  EmotionalArc = "repair_sequence"
	ArcDormantRecovery EmotionalArc = "dormant_recovery"
)
