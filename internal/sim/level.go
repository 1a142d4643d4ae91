package sim

import (
	"errors"
	"fmt"
)

// ShapeKind selects a level-object descriptor variant. The set is closed:
// new shapes are new kinds, never subtypes.
type ShapeKind string

const (
	ShapePlane ShapeKind = "plane"
	ShapeCube  ShapeKind = "cube"
)

// Valid reports whether the kind is one of the known variants.
func (k ShapeKind) Valid() bool {
	return k == ShapePlane || k == ShapeCube
}

// LevelObjectDesc describes a level object's shape and placement.
type LevelObjectDesc struct {
	Kind ShapeKind `json:"kind"`
	Size float64   `json:"size"`
	Pos  Point     `json:"pos"`
}

// CollisionLogic is the gameplay consequence of touching a level object.
// The zero value means touching the object has no effect.
type CollisionLogic string

const (
	LogicNone   CollisionLogic = ""
	LogicDeath  CollisionLogic = "death"
	LogicFinish CollisionLogic = "finish"
)

// ParseCollisionLogic validates a configured logic value. "none" is accepted
// as an explicit spelling of the zero value.
func ParseCollisionLogic(s string) (CollisionLogic, error) {
	switch s {
	case "", "none":
		return LogicNone, nil
	case "death":
		return LogicDeath, nil
	case "finish":
		return LogicFinish, nil
	default:
		return LogicNone, fmt.Errorf("sim: unknown collision logic %q", s)
	}
}

// LevelObject is one replicated piece of level geometry. Identity is the net
// id; the descriptor, label and logic may change under admin edits.
type LevelObject struct {
	NetID EntityNetID     `json:"netId"`
	Label string          `json:"label,omitempty"`
	Desc  LevelObjectDesc `json:"desc"`
	Logic CollisionLogic  `json:"logic,omitempty"`
}

// ErrDuplicateObject is returned when a spawn names a net id the level
// already holds. Duplicate spawns indicate a replication bug or a replayed
// packet; the existing object always wins.
var ErrDuplicateObject = errors.New("sim: level object net id already present")

// LevelState is the authoritative ordered set of level objects. Insertion
// order is creation order and survives snapshots, so two instances replaying
// the same history iterate identically.
type LevelState struct {
	objects []LevelObject
	index   map[EntityNetID]int
}

// NewLevelState constructs an empty level.
func NewLevelState() *LevelState {
	return &LevelState{index: make(map[EntityNetID]int)}
}

// Insert appends a new object. Duplicate net ids are rejected with
// ErrDuplicateObject and the state is left untouched.
func (l *LevelState) Insert(obj LevelObject) error {
	if _, exists := l.index[obj.NetID]; exists {
		return ErrDuplicateObject
	}
	l.index[obj.NetID] = len(l.objects)
	l.objects = append(l.objects, obj)
	return nil
}

// Update replaces the stored object under the same net id, keeping its
// position in the insertion order. Reports false for unknown ids.
func (l *LevelState) Update(obj LevelObject) bool {
	i, exists := l.index[obj.NetID]
	if !exists {
		return false
	}
	l.objects[i] = obj
	return true
}

// Remove deletes the object and returns it. Unknown ids report false; late
// or duplicate despawns are routine.
func (l *LevelState) Remove(netID EntityNetID) (LevelObject, bool) {
	i, exists := l.index[netID]
	if !exists {
		return LevelObject{}, false
	}
	removed := l.objects[i]
	l.objects = append(l.objects[:i], l.objects[i+1:]...)
	delete(l.index, netID)
	for j := i; j < len(l.objects); j++ {
		l.index[l.objects[j].NetID] = j
	}
	return removed, true
}

// Get returns the object stored under the net id.
func (l *LevelState) Get(netID EntityNetID) (LevelObject, bool) {
	i, exists := l.index[netID]
	if !exists {
		return LevelObject{}, false
	}
	return l.objects[i], true
}

// Contains reports whether the net id is present.
func (l *LevelState) Contains(netID EntityNetID) bool {
	_, exists := l.index[netID]
	return exists
}

// Objects returns a copy of the objects in insertion order. This is the
// stable full-state snapshot the replication layer ships.
func (l *LevelState) Objects() []LevelObject {
	if len(l.objects) == 0 {
		return nil
	}
	out := make([]LevelObject, len(l.objects))
	copy(out, l.objects)
	return out
}

// Replay rebuilds the level from a snapshot, preserving the snapshot's
// order. State present before the replay is discarded; subsequent commands
// then replay on top, which is how a client reconstructs from a keyframe
// plus the command log.
func (l *LevelState) Replay(objects []LevelObject) {
	l.objects = l.objects[:0]
	clear(l.index)
	for _, obj := range objects {
		if _, exists := l.index[obj.NetID]; exists {
			continue
		}
		l.index[obj.NetID] = len(l.objects)
		l.objects = append(l.objects, obj)
	}
}

// Len reports the number of objects.
func (l *LevelState) Len() int {
	return len(l.objects)
}
