package tracker

// State is the tracking state evaluated once per tick.
type State int

const (
	// StateInactive: no target is bound, or the bound process is not
	// the foreground process.
	StateInactive State = iota

	// StateActive: the bound process is foreground and the user's idle
	// time is strictly below the AFK threshold.
	StateActive

	// StateAFK: the bound process is foreground but the user has been
	// idle for at least the AFK threshold.
	StateAFK
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateAFK:
		return "AFK"
	default:
		return "INACTIVE"
	}
}

// NotificationKind distinguishes state transitions from per-tick
// updates on the notification channel.
type NotificationKind int

const (
	// KindUpdate is emitted every tick while a target is bound.
	KindUpdate NotificationKind = iota

	// KindStateChanged is emitted when the tick moved to a new state.
	KindStateChanged
)

// Notification is the message delivered to the UI boundary. It carries
// an immutable snapshot, never references into tracker state.
type Notification struct {
	Kind    NotificationKind
	State   State
	Target  string
	Seconds int64 // today's persisted seconds plus in-progress time
}
