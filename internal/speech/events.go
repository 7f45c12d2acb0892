package speech

// NotificationKind identifies the kind of a pipeline notification.
type NotificationKind int

const (
	// NoteProgress reports session preparation progress.
	NoteProgress NotificationKind = iota
	// NotePlaying reports that a segment started playing (1-based).
	NotePlaying
	// NotePaused reports that playback was paused.
	NotePaused
	// NoteResumed reports that playback resumed.
	NoteResumed
	// NoteStopped reports that the session was cancelled.
	NoteStopped
	// NoteComplete reports that the last segment finished.
	NoteComplete
	// NoteError reports a fatal session error.
	NoteError
	// NoteNeedsGesture reports that playback is parked waiting for an
	// explicit user confirmation.
	NoteNeedsGesture
)

// String returns the string representation of the notification kind.
func (k NotificationKind) String() string {
	switch k {
	case NoteProgress:
		return "progress"
	case NotePlaying:
		return "playing"
	case NotePaused:
		return "paused"
	case NoteResumed:
		return "resumed"
	case NoteStopped:
		return "stopped"
	case NoteComplete:
		return "complete"
	case NoteError:
		return "error"
	case NoteNeedsGesture:
		return "needsGesture"
	default:
		return "unknown"
	}
}

// Notification is emitted by the controller for the thin command surfaces
// (TUI, headless log output). Fields are populated per kind.
type Notification struct {
	Kind    NotificationKind
	Percent int    // NoteProgress
	Label   string // NoteProgress
	Current int    // NotePlaying, 1-based
	Total   int    // NotePlaying
	Message string // NoteError
}
