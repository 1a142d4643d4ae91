package sim

// spawnMark is one entry in an entity's spawn history.
type spawnMark uint8

const (
	markSpawn spawnMark = iota
	markDespawn
)

type spawnCommand struct {
	frame FrameNumber
	mark  spawnMark
}

// Spawned records an entity's frame-indexed spawn/despawn history. Existence
// of the entity and being spawned at a frame are different facts: a client
// predicting ahead can hold an entity that is not yet spawned at its own
// cursor, and a rewound query must still answer for past frames. Marks are
// pushed in non-decreasing frame order; a mark pushed for a frame that
// already has one replaces it, so a replace-on-update (despawn+spawn in the
// same frame) resolves to the final state.
type Spawned struct {
	commands []spawnCommand
}

// MarkSpawned records that the entity spawns at frame.
func (s *Spawned) MarkSpawned(frame FrameNumber) {
	s.push(spawnCommand{frame: frame, mark: markSpawn})
}

// MarkDespawned records that the entity despawns at frame.
func (s *Spawned) MarkDespawned(frame FrameNumber) {
	s.push(spawnCommand{frame: frame, mark: markDespawn})
}

func (s *Spawned) push(cmd spawnCommand) {
	if n := len(s.commands); n > 0 && s.commands[n-1].frame == cmd.frame {
		s.commands[n-1] = cmd
		return
	}
	s.commands = append(s.commands, cmd)
}

// IsSpawned reports whether the entity is spawned at the queried frame: the
// latest mark at or before the frame decides. An entity with no history, or
// queried before its first mark, is not spawned.
func (s *Spawned) IsSpawned(frame FrameNumber) bool {
	for i := len(s.commands) - 1; i >= 0; i-- {
		if s.commands[i].frame <= frame {
			return s.commands[i].mark == markSpawn
		}
	}
	return false
}

// PopOutdatedCommands drops marks older than the horizon, keeping the most
// recent outdated mark as the baseline so IsSpawned stays answerable for
// every frame at or after the horizon.
func (s *Spawned) PopOutdatedCommands(horizon FrameNumber) {
	baseline := -1
	for i, cmd := range s.commands {
		if cmd.frame < horizon {
			baseline = i
			continue
		}
		break
	}
	if baseline < 1 {
		return
	}
	s.commands = append(s.commands[:0], s.commands[baseline:]...)
}

// CanBeRemoved reports whether the history has collapsed to a single aged-out
// despawn, meaning no frame inside the retention window can observe the
// entity as spawned and its slot may be reclaimed.
func (s *Spawned) CanBeRemoved(horizon FrameNumber) bool {
	if len(s.commands) != 1 {
		return false
	}
	last := s.commands[0]
	return last.mark == markDespawn && last.frame < horizon
}

// LastMarkFrame returns the frame of the newest mark, or false for an empty
// history.
func (s *Spawned) LastMarkFrame() (FrameNumber, bool) {
	if len(s.commands) == 0 {
		return 0, false
	}
	return s.commands[len(s.commands)-1].frame, true
}

// Clone copies the history so it can be transplanted onto a replacement
// entity, as happens when a level object is rebuilt under the same net id.
func (s *Spawned) Clone() Spawned {
	if len(s.commands) == 0 {
		return Spawned{}
	}
	return Spawned{commands: append([]spawnCommand(nil), s.commands...)}
}
