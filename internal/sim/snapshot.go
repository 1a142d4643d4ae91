package sim

// PlayerEntry is a player's replicated state at a snapshot frame.
type PlayerEntry struct {
	NetID       PlayerNetID      `json:"netId"`
	Nickname    string           `json:"nickname,omitempty"`
	Position    Point            `json:"position"`
	Spawned     bool             `json:"spawned"`
	Respawn     *RespawnSchedule `json:"respawn,omitempty"`
	Finished    bool             `json:"finished,omitempty"`
	Deaths      uint32           `json:"deaths,omitempty"`
	Finishes    uint32           `json:"finishes,omitempty"`
	ConnectedAt FrameNumber      `json:"connectedAt"`
}

// Snapshot captures the replicated state at one frame boundary. Applying it
// over any prior state and replaying the command log from Frame onwards
// reproduces the live state.
type Snapshot struct {
	Frame   FrameNumber   `json:"frame"`
	Players []PlayerEntry `json:"players,omitempty"`
	Objects []LevelObject `json:"objects,omitempty"`
}

// Clone returns a snapshot that shares no memory with the receiver, so a
// stored copy survives mutation of the original and vice versa.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Frame: s.Frame}
	if len(s.Players) > 0 {
		out.Players = make([]PlayerEntry, len(s.Players))
		copy(out.Players, s.Players)
		for i := range out.Players {
			if out.Players[i].Respawn != nil {
				r := *out.Players[i].Respawn
				out.Players[i].Respawn = &r
			}
		}
	}
	if len(s.Objects) > 0 {
		out.Objects = append([]LevelObject(nil), s.Objects...)
	}
	return out
}

// Snapshot captures the session's replicated state at the current cursor.
// Players appear in join order and objects in level insertion order, so two
// sessions that processed the same commands produce identical snapshots.
func (s *Session) Snapshot() Snapshot {
	frame := s.cursor()
	snap := Snapshot{Frame: frame}

	for _, p := range s.table.all() {
		entry := PlayerEntry{
			NetID:       p.NetID,
			Nickname:    p.Nickname,
			Position:    p.Position,
			Finished:    p.Finished,
			Deaths:      p.Deaths,
			Finishes:    p.Finishes,
			ConnectedAt: p.ConnectedAt,
		}
		if p.Respawn != nil {
			r := *p.Respawn
			entry.Respawn = &r
		}
		if entity, ok := s.players.Entity(p.NetID); ok {
			entry.Spawned = s.IsSpawned(entity, frame)
		}
		snap.Players = append(snap.Players, entry)
	}
	snap.Objects = s.level.Objects()
	return snap
}

// Replay rebuilds the session from a snapshot, discarding all current
// entities and identities. The clock jumps forward to the snapshot frame
// when it is ahead and rewinds when it is behind, so a client can both
// fast-forward onto a keyframe and recover from a desync.
func (s *Session) Replay(snap Snapshot) {
	s.store = NewStore()
	s.players.Clear()
	s.objects.Clear()
	s.table = newPlayerTable()
	s.contacts = make(map[Entity]*ContactSet)
	s.patches = nil
	s.events.Clear()

	if !s.clock.ObserveServerFrame(snap.Frame) {
		s.clock.Rewind(snap.Frame)
	}

	for _, entry := range snap.Players {
		entity := s.store.Create(KindPlayer)
		if err := s.players.Register(entry.NetID, entity); err != nil {
			s.store.Destroy(entity)
			s.log.Printf("sim: replay skipped duplicate player %d", entry.NetID)
			s.metrics.Add(metricRegistryConflict, 1)
			continue
		}
		if entry.Spawned {
			s.store.Spawned(entity).MarkSpawned(snap.Frame)
		}
		p := &PlayerState{
			NetID:       entry.NetID,
			Nickname:    entry.Nickname,
			Position:    entry.Position,
			ConnectedAt: entry.ConnectedAt,
			Finished:    entry.Finished,
			Deaths:      entry.Deaths,
			Finishes:    entry.Finishes,
		}
		if entry.Respawn != nil {
			r := *entry.Respawn
			p.Respawn = &r
		}
		s.table.add(p)
	}

	s.level.Replay(snap.Objects)
	for _, obj := range s.level.Objects() {
		entity := s.store.Create(KindLevelObject)
		if err := s.objects.Register(obj.NetID, entity); err != nil {
			s.store.Destroy(entity)
			s.metrics.Add(metricRegistryConflict, 1)
			continue
		}
		s.store.Spawned(entity).MarkSpawned(snap.Frame)
	}
	s.log.Printf("sim: replayed snapshot at frame %d (%d players, %d objects)",
		snap.Frame, len(snap.Players), s.level.Len())
}
