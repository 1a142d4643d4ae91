package sim

import "errors"

// PlayerNetID identifies a player across the wire. The server issues each id
// exactly once per session; it never refers to a different player later.
type PlayerNetID uint16

// EntityNetID identifies a level object across the wire, with the same
// issuance rule as PlayerNetID.
type EntityNetID uint16

// ErrAlreadyRegistered is returned when a net id is registered twice without
// an intervening unregister. Callers log it and keep the original mapping;
// silently replacing the entity behind an id is how identity collisions
// corrupt replication.
var ErrAlreadyRegistered = errors.New("sim: net id already registered")

// Registry maintains the bidirectional mapping between stable network ids
// and transient entity handles. It is owned by the simulation step; other
// goroutines read snapshots, never the registry itself.
type Registry[ID comparable] struct {
	byID     map[ID]Entity
	byEntity map[Entity]ID
}

// NewRegistry constructs an empty registry.
func NewRegistry[ID comparable]() *Registry[ID] {
	return &Registry[ID]{
		byID:     make(map[ID]Entity),
		byEntity: make(map[Entity]ID),
	}
}

// Register inserts the id↔entity pair. A duplicate id is rejected with
// ErrAlreadyRegistered and the existing mapping is left untouched.
func (r *Registry[ID]) Register(id ID, entity Entity) error {
	if _, exists := r.byID[id]; exists {
		return ErrAlreadyRegistered
	}
	r.byID[id] = entity
	r.byEntity[entity] = id
	return nil
}

// Entity resolves a net id to its entity handle.
func (r *Registry[ID]) Entity(id ID) (Entity, bool) {
	entity, ok := r.byID[id]
	return entity, ok
}

// NetID resolves an entity handle back to its net id.
func (r *Registry[ID]) NetID(entity Entity) (ID, bool) {
	id, ok := r.byEntity[entity]
	return id, ok
}

// Unregister removes both directions of the mapping. Absent ids are a no-op;
// despawn messages can arrive more than once.
func (r *Registry[ID]) Unregister(id ID) {
	entity, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byEntity, entity)
}

// UnregisterEntity removes the mapping by entity handle, with the same
// idempotence as Unregister.
func (r *Registry[ID]) UnregisterEntity(entity Entity) {
	id, ok := r.byEntity[entity]
	if !ok {
		return
	}
	delete(r.byEntity, entity)
	delete(r.byID, id)
}

// Len reports the number of registered mappings.
func (r *Registry[ID]) Len() int {
	return len(r.byID)
}

// Clear drops every mapping. Used at session teardown.
func (r *Registry[ID]) Clear() {
	clear(r.byID)
	clear(r.byEntity)
}
