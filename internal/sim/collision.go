package sim

// Interaction group bits. The client-simulated and server-simulated variants
// of an entity live in disjoint groups so the two mirrored physics worlds
// never interact. The remaining bits are reserved for future entity kinds.
const (
	GroupPlayer uint32 = 1 << iota
	GroupPlayerSensor
	GroupLevelObject
	GroupServerPlayer
	GroupServerPlayerSensor
	GroupServerLevelObject
)

// InteractionGroups is the bitmask pair handed to the physics engine:
// which groups the collider belongs to and which groups it collides with.
type InteractionGroups struct {
	Memberships uint32
	Filter      uint32
}

// PlayerGroups returns the groups for a player body. Players collide with
// level objects only, never with each other.
func PlayerGroups(serverSimulated bool) InteractionGroups {
	if serverSimulated {
		return InteractionGroups{Memberships: GroupServerPlayer, Filter: GroupServerLevelObject}
	}
	return InteractionGroups{Memberships: GroupPlayer, Filter: GroupLevelObject}
}

// PlayerSensorGroups returns the groups for a player's sensor colliders.
func PlayerSensorGroups(serverSimulated bool) InteractionGroups {
	if serverSimulated {
		return InteractionGroups{Memberships: GroupServerPlayerSensor, Filter: GroupServerLevelObject}
	}
	return InteractionGroups{Memberships: GroupPlayerSensor, Filter: GroupLevelObject}
}

// LevelObjectGroups returns the groups for level geometry. Objects collide
// with player bodies and player sensors.
func LevelObjectGroups(serverSimulated bool) InteractionGroups {
	if serverSimulated {
		return InteractionGroups{
			Memberships: GroupServerLevelObject,
			Filter:      GroupServerPlayer | GroupServerPlayerSensor,
		}
	}
	return InteractionGroups{
		Memberships: GroupLevelObject,
		Filter:      GroupPlayer | GroupPlayerSensor,
	}
}

// GroupsForKind maps an entity kind to its interaction groups. The second
// return is false for kinds that carry no collider.
func GroupsForKind(kind EntityKind, serverSimulated bool) (InteractionGroups, bool) {
	switch kind {
	case KindPlayer:
		return PlayerGroups(serverSimulated), true
	case KindLevelObject:
		return LevelObjectGroups(serverSimulated), true
	default:
		return InteractionGroups{}, false
	}
}

// ContactEvent is one contact-started or contact-stopped pair reported by
// the physics engine. Exactly one side is expected to be a level object.
type ContactEvent struct {
	A       Entity
	B       Entity
	Started bool
}

type contact struct {
	object Entity
	logic  CollisionLogic
}

// ContactSet tracks the level objects a player currently overlaps, with the
// collision logic each carried when contact started. Logic edits and object
// despawns are folded in as they happen so the set never references a stale
// object.
type ContactSet struct {
	contacts []contact
}

// Add records an overlap. A repeated start for the same object refreshes
// its logic instead of duplicating the entry.
func (s *ContactSet) Add(object Entity, logic CollisionLogic) {
	for i := range s.contacts {
		if s.contacts[i].object == object {
			s.contacts[i].logic = logic
			return
		}
	}
	s.contacts = append(s.contacts, contact{object: object, logic: logic})
}

// Remove drops the overlap with the object. Unknown objects are ignored.
func (s *ContactSet) Remove(object Entity) {
	for i := range s.contacts {
		if s.contacts[i].object == object {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
			return
		}
	}
}

// Relabel updates the stored logic for an object already in the set and
// reports whether the object was present.
func (s *ContactSet) Relabel(object Entity, logic CollisionLogic) bool {
	for i := range s.contacts {
		if s.contacts[i].object == object {
			s.contacts[i].logic = logic
			return true
		}
	}
	return false
}

// Dominant reduces the set to the logic that decides the player's fate this
// frame. Death outranks finish; an empty set is LogicNone.
func (s *ContactSet) Dominant() CollisionLogic {
	dominant := LogicNone
	for _, c := range s.contacts {
		if c.logic == LogicDeath {
			return LogicDeath
		}
		if c.logic == LogicFinish {
			dominant = LogicFinish
		}
	}
	return dominant
}

// Len reports the number of tracked overlaps.
func (s *ContactSet) Len() int {
	return len(s.contacts)
}

// Clear empties the set. Used when the player despawns.
func (s *ContactSet) Clear() {
	s.contacts = s.contacts[:0]
}
