package event

// Domain events carried on the tick-delayed bus (§4.10, §4.11). Emitted in
// tick N, delivered to subscribers in tick N+1 by scheduler.Loop.Run. These
// are distinct from the append-only eventlog.Event records: bus events drive
// in-process side effects (webhooks, log subscribers); eventlog records are
// the durable, queryable feed.

// ResidentRegistered fires once registration completes and the resident is
// queued for the next train arrival.
type ResidentRegistered struct {
	ResidentID string
	Passport   string
}

// ResidentSpawned fires when a queued resident is placed on the station
// platform.
type ResidentSpawned struct {
	ResidentID string
}

// ResidentCollapsed fires when energy reaches 0 while a resident is awake
// (§4.4 step 7).
type ResidentCollapsed struct {
	ResidentID string
	X, Y       float64
}

// ResidentDeceased fires on health-zero transition to deceased.
type ResidentDeceased struct {
	ResidentID string
}

// BodyProcessed fires when a mortuary worker completes body processing.
type BodyProcessed struct {
	ResidentID string
	ByID       string
}

// PurchaseCompleted fires on a successful shop buy (§4.6).
type PurchaseCompleted struct {
	ResidentID string
	ItemType   string
	Price      int64
}

// ShiftCompleted fires when accumulated shift time crosses the wage
// threshold (§4.6).
type ShiftCompleted struct {
	ResidentID string
	JobID      string
	Wage       int64
}

// LawViolation fires when an offense is appended to a resident's list
// (§4.7).
type LawViolation struct {
	ResidentID string
	Offense    string
}

// Arrested fires when an officer successfully arrests a suspect (§4.7).
type Arrested struct {
	OfficerID string
	SuspectID string
}

// SuspectBooked fires when an officer books an escorted suspect (§4.7).
type SuspectBooked struct {
	OfficerID string
	SuspectID string
	ReleaseAt int64 // world-seconds
}

// SuspectReleased fires on prison release or reconciliation (§4.7, §9).
type SuspectReleased struct {
	ResidentID string
}

// SpeechHeard fires per listener who heard a speech act within audible
// range (§4.8).
type SpeechHeard struct {
	SpeakerID  string
	ListenerID string
	Directed   bool
}

// ForageDepleted fires when a forage node's uses reach zero (§4.4 step 11
// analogue for nodes, §3 Foraging Node invariants).
type ForageDepleted struct {
	NodeIndex int
}

// ResidentDeparted fires when a resident leaves the world permanently.
type ResidentDeparted struct {
	ResidentID string
}

// MilestoneReached fires once per resident per milestone kind (§4.9).
type MilestoneReached struct {
	ResidentID string
	Kind       string // "survived_30m", "first_conversation", "health_recovery"
}
