package sim

// EntityKind tags what a store slot holds.
type EntityKind uint8

const (
	KindNone EntityKind = iota
	KindPlayer
	KindLevelObject
)

// String returns the wire spelling of the kind.
func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindLevelObject:
		return "level_object"
	default:
		return "none"
	}
}

// Entity is a generational handle into the Store. Handles stay cheap to copy
// and become invalid the moment their slot is reclaimed; stale handles held
// by late packets simply fail the liveness check instead of touching a
// recycled slot. The zero Entity is never live.
type Entity struct {
	idx uint32
	ver uint32
}

// IsZero reports whether the handle was never issued.
func (e Entity) IsZero() bool {
	return e.ver == 0
}

type slot struct {
	ver     uint32
	live    bool
	kind    EntityKind
	spawned Spawned
}

// Store is an arena of simulation entities. Slots are recycled through a
// free list; each reuse bumps the slot version so previously issued handles
// can be detected as stale.
type Store struct {
	slots []slot
	free  []uint32
	count int
}

// NewStore constructs an empty entity arena.
func NewStore() *Store {
	return &Store{}
}

// Create allocates an entity of the given kind and returns its handle.
func (s *Store) Create(kind EntityKind) Entity {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{})
		idx = uint32(len(s.slots) - 1)
	}
	sl := &s.slots[idx]
	sl.ver++
	sl.live = true
	sl.kind = kind
	sl.spawned = Spawned{}
	s.count++
	return Entity{idx: idx, ver: sl.ver}
}

// Destroy releases the entity's slot. Stale or unknown handles are ignored
// and reported as false.
func (s *Store) Destroy(e Entity) bool {
	sl := s.lookup(e)
	if sl == nil {
		return false
	}
	sl.live = false
	sl.kind = KindNone
	sl.spawned = Spawned{}
	s.free = append(s.free, e.idx)
	s.count--
	return true
}

// Alive reports whether the handle still refers to a live entity.
func (s *Store) Alive(e Entity) bool {
	return s.lookup(e) != nil
}

// Kind returns the entity's kind, or false for stale handles.
func (s *Store) Kind(e Entity) (EntityKind, bool) {
	sl := s.lookup(e)
	if sl == nil {
		return KindNone, false
	}
	return sl.kind, true
}

// Spawned returns the entity's spawn history for mutation, or nil for stale
// handles.
func (s *Store) Spawned(e Entity) *Spawned {
	sl := s.lookup(e)
	if sl == nil {
		return nil
	}
	return &sl.spawned
}

// Len reports the number of live entities.
func (s *Store) Len() int {
	return s.count
}

// ForEach visits every live entity in slot order, which is stable for a
// given allocation history. The callback must not create or destroy
// entities.
func (s *Store) ForEach(fn func(Entity, EntityKind)) {
	for idx := range s.slots {
		sl := &s.slots[idx]
		if !sl.live {
			continue
		}
		fn(Entity{idx: uint32(idx), ver: sl.ver}, sl.kind)
	}
}

func (s *Store) lookup(e Entity) *slot {
	if e.ver == 0 || int(e.idx) >= len(s.slots) {
		return nil
	}
	sl := &s.slots[e.idx]
	if !sl.live || sl.ver != e.ver {
		return nil
	}
	return sl
}
