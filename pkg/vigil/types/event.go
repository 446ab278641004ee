package types

import "sync"

// Phase is a step of a reconciler invocation.
type Phase int

// Phases in the order an invocation moves through them.
const (
	PhaseStart Phase = iota
	PhaseLoading
	PhaseWalking
	PhaseHashing
	PhaseAggregating
	PhaseDone
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseLoading:
		return "loading"
	case PhaseWalking:
		return "walking"
	case PhaseHashing:
		return "hashing"
	case PhaseAggregating:
		return "aggregating"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// EventType identifies what an Event reports.
type EventType int

// Event types.
const (
	// EventPhase marks entry into Event.Phase. Err is set on Done(Error).
	EventPhase EventType = iota
	// EventFileQueued is sent when a file is handed to the worker pool.
	EventFileQueued
	// EventFileHashed carries a completed snapshot.
	EventFileHashed
	// EventFileSkipped carries a file that could not be digested.
	EventFileSkipped
	// EventWarning reports a non-fatal problem, such as a failed backup.
	EventWarning
	// EventManifestLoaded is sent after a manifest has been read.
	EventManifestLoaded
	// EventManifestSaved is sent after a manifest has been written.
	EventManifestSaved
)

// Event is a single notification from an engine to its Observer.
type Event struct {
	Type     EventType
	Phase    Phase
	Path     string
	Message  string
	Err      error
	Snapshot *FileSnapshot
	Skipped  *SkippedFile
	// Count is the number of entries involved, where meaningful.
	Count int
}

// Observer receives engine events. Implementations must be safe for
// concurrent use: file events arrive from worker goroutines.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// NopObserver discards all events.
var NopObserver Observer = ObserverFunc(func(Event) {})

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// Observe forwards e to each non-nil observer.
func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// Recorder is an Observer that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe appends e.
func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Phases returns the phases recorded so far, in order.
func (r *Recorder) Phases() []Phase {
	var phases []Phase
	for _, e := range r.Events() {
		if e.Type == EventPhase {
			phases = append(phases, e.Phase)
		}
	}
	return phases
}

// OrNop returns o, or NopObserver when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return NopObserver
	}
	return o
}
