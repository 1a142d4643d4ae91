package sim

import "github.com/google/uuid"

// Domain event type labels.
const (
	EventPlayerDeath           = "player_death"
	EventPlayerFinish          = "player_finish"
	EventCollisionLogicChanged = "collision_logic_changed"
)

// Event is a domain event emitted during a simulation step. Events are
// observational: animation, scoring and logging consume them, replicated
// state never depends on them.
type Event interface {
	EventType() string
}

// PlayerDeath reports a player touching death geometry.
type PlayerDeath struct {
	InstanceID string
	Player     Entity
	NetID      PlayerNetID
	Frame      FrameNumber
}

func (PlayerDeath) EventType() string { return EventPlayerDeath }

// PlayerFinish reports a player reaching finish geometry.
type PlayerFinish struct {
	InstanceID string
	Player     Entity
	NetID      PlayerNetID
	Frame      FrameNumber
}

func (PlayerFinish) EventType() string { return EventPlayerFinish }

// CollisionLogicChanged reports an admin edit changing what touching a level
// object does. Contact bookkeeping relabels ongoing overlaps in response.
type CollisionLogicChanged struct {
	InstanceID string
	Object     Entity
	NetID      EntityNetID
	Logic      CollisionLogic
	Frame      FrameNumber
}

func (CollisionLogicChanged) EventType() string { return EventCollisionLogicChanged }

// NewEventInstanceID mints the correlation id carried by a single event
// occurrence. Ids are for observability only and are never replicated.
func NewEventInstanceID() string {
	return uuid.New().String()
}

// EventBuffer collects the events of the frame in flight. Single producer
// (the simulation step), single consumer per frame; the step clears it at
// every frame boundary so stale events never leak across frames.
type EventBuffer struct {
	events []Event
}

// Publish appends an event to the current frame's batch.
func (b *EventBuffer) Publish(ev Event) {
	b.events = append(b.events, ev)
}

// Drain hands off the batch and empties the buffer.
func (b *EventBuffer) Drain() []Event {
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// Clear discards any unconsumed events.
func (b *EventBuffer) Clear() {
	b.events = b.events[:0]
}

// Len reports the number of buffered events.
func (b *EventBuffer) Len() int {
	return len(b.events)
}
