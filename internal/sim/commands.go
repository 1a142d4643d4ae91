package sim

import "sync"

// Point is a 2D position carried by spawn data and replication payloads. The
// core never integrates motion; positions change only through commands and
// authoritative patches.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DespawnReason explains why a despawn command was issued.
type DespawnReason string

const (
	// DespawnDeathOrFinish covers both lethal collisions and level finishes;
	// the lifecycle table distinguishes the two.
	DespawnDeathOrFinish DespawnReason = "death_or_finish"
	// DespawnDisconnect marks a player leaving the session.
	DespawnDisconnect DespawnReason = "disconnect"
	// DespawnNetworkUpdate marks the despawn half of a replace-on-update, so
	// observers do not treat it as a real departure.
	DespawnNetworkUpdate DespawnReason = "network_update"
)

// SpawnPlayer materializes a player entity. It carries no frame: it applies
// at whatever frame the draining step is simulating.
type SpawnPlayer struct {
	NetID    PlayerNetID
	Nickname string
	Start    Point
}

// MovePlayer sets a player's position. Positions are absolute; when several
// moves for one player land in the same frame the last one wins.
type MovePlayer struct {
	NetID PlayerNetID
	Pos   Point
}

// DespawnPlayer removes a player's presence at a given frame. The entity and
// its history survive until the history ages out.
type DespawnPlayer struct {
	NetID  PlayerNetID
	Frame  FrameNumber
	Reason DespawnReason
}

// AppliesAt implements deferred scheduling.
func (c DespawnPlayer) AppliesAt() FrameNumber { return c.Frame }

// SpawnLevelObject appends a new level object.
type SpawnLevelObject struct {
	Object LevelObject
	Frame  FrameNumber
}

// AppliesAt implements deferred scheduling.
func (c SpawnLevelObject) AppliesAt() FrameNumber { return c.Frame }

// UpdateLevelObject replaces the descriptor of an existing object, keeping
// its net id and spawn history. Unknown ids spawn fresh (late joiners see
// updates before the original spawn).
type UpdateLevelObject struct {
	Object LevelObject
	Frame  FrameNumber
}

// AppliesAt implements deferred scheduling.
func (c UpdateLevelObject) AppliesAt() FrameNumber { return c.Frame }

// DespawnLevelObject removes a level object at a given frame.
type DespawnLevelObject struct {
	NetID EntityNetID
	Frame FrameNumber
}

// AppliesAt implements deferred scheduling.
func (c DespawnLevelObject) AppliesAt() FrameNumber { return c.Frame }

// Queue is an insertion-ordered intent buffer. Producers push from any
// goroutine during a frame; the simulation step drains everything exactly
// once per frame, in FIFO order.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// Push appends a command in O(1).
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Drain removes and returns all queued commands in FIFO order, leaving the
// queue empty. An empty drain returns nil.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	drained := q.items
	q.items = nil
	return drained
}

// Len reports the number of pending commands.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// framed is satisfied by commands that carry their application frame.
type framed interface {
	AppliesAt() FrameNumber
}

// DeferredQueue gates commands on a frame cursor: Drain releases only the
// commands due at or before the cursor, preserving FIFO order among them.
// It is owned by the simulation step and needs no locking.
type DeferredQueue[T framed] struct {
	items []T
}

// Push appends a command.
func (q *DeferredQueue[T]) Push(item T) {
	q.items = append(q.items, item)
}

// Drain releases every command whose frame is at or before cursor. Later
// commands stay queued for a future frame.
func (q *DeferredQueue[T]) Drain(cursor FrameNumber) []T {
	if len(q.items) == 0 {
		return nil
	}
	var due []T
	kept := q.items[:0]
	for _, item := range q.items {
		if item.AppliesAt() <= cursor {
			due = append(due, item)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return due
}

// Len reports the number of pending commands, due or not.
func (q *DeferredQueue[T]) Len() int {
	return len(q.items)
}

// Clear discards every pending command regardless of frame.
func (q *DeferredQueue[T]) Clear() {
	q.items = nil
}
