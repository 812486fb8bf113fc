package events

// Event enumerates the engine's observable happenings.
type Event string

const (
	EventSignalAccepted Event = "signal.accepted"
	EventSignalIgnored  Event = "signal.ignored"
	EventOrderOpened    Event = "order.opened"
	EventOrderClosed    Event = "order.closed"
	EventTrailUpdated   Event = "trail.updated"
	EventTrailHit       Event = "trail.hit"
	EventReconcileDone  Event = "reconcile.done"
	EventControlChanged Event = "control.changed"

	// EventStateSnapshot frames full state snapshots on the websocket;
	// it is never published on the bus.
	EventStateSnapshot Event = "state.snapshot"
)
