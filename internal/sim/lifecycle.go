package sim

// LifecycleState labels where a player sits in the alive/respawning/finished
// machine. Finished is sticky for the rest of the level session, even while
// the body respawns and keeps racing.
type LifecycleState string

const (
	StateAlive      LifecycleState = "alive"
	StateRespawning LifecycleState = "respawning"
	StateFinished   LifecycleState = "finished"
)

// RespawnSchedule marks a player as waiting to rematerialize. Frame is when
// the respawn takes effect; Reason tells deaths and finishes apart.
type RespawnSchedule struct {
	Frame  FrameNumber   `json:"frame"`
	Reason RespawnReason `json:"reason"`
}

// PlayerState is the per-player record that outlives the player's entity.
// The entity handle churns through despawn and respawn cycles; this record
// keeps identity, counters and the pending respawn schedule.
type PlayerState struct {
	NetID       PlayerNetID
	Nickname    string
	Position    Point
	ConnectedAt FrameNumber

	// Respawn is nil while the player is materialized. It is set when a
	// death or finish schedules a comeback and cleared only by the
	// authoritative confirmation path or the reconciliation guard.
	Respawn *RespawnSchedule

	Finished bool
	Deaths   uint32
	Finishes uint32

	// departed marks a disconnected player whose record should go away once
	// the entity's history ages out.
	departed bool
}

// State derives the lifecycle label. Finished dominates: a finished player
// stays finished for the session even while a respawn is pending.
func (p *PlayerState) State() LifecycleState {
	switch {
	case p.Finished:
		return StateFinished
	case p.Respawn != nil:
		return StateRespawning
	default:
		return StateAlive
	}
}

// playerTable keeps player records in join order. Per-frame passes iterate
// it instead of a map so two instances replaying the same history visit
// players identically.
type playerTable struct {
	players []*PlayerState
	index   map[PlayerNetID]int
}

func newPlayerTable() *playerTable {
	return &playerTable{index: make(map[PlayerNetID]int)}
}

// add inserts a record. Reports false if the net id is already present.
func (t *playerTable) add(p *PlayerState) bool {
	if _, exists := t.index[p.NetID]; exists {
		return false
	}
	t.index[p.NetID] = len(t.players)
	t.players = append(t.players, p)
	return true
}

// get returns the record under the net id.
func (t *playerTable) get(netID PlayerNetID) (*PlayerState, bool) {
	i, exists := t.index[netID]
	if !exists {
		return nil, false
	}
	return t.players[i], true
}

// remove deletes the record, preserving the order of the rest.
func (t *playerTable) remove(netID PlayerNetID) bool {
	i, exists := t.index[netID]
	if !exists {
		return false
	}
	t.players = append(t.players[:i], t.players[i+1:]...)
	delete(t.index, netID)
	for j := i; j < len(t.players); j++ {
		t.index[t.players[j].NetID] = j
	}
	return true
}

// all returns the records in join order. The slice is shared; callers must
// not retain it across mutations.
func (t *playerTable) all() []*PlayerState {
	return t.players
}

// len reports the number of records.
func (t *playerTable) len() int {
	return len(t.players)
}
