package sim

// Delta is one authoritative broadcast: the server frame it was cut at and
// the patches accumulated since the previous broadcast.
type Delta struct {
	Frame   FrameNumber `json:"frame"`
	Patches []Patch     `json:"patches,omitempty"`
}

const (
	metricDeltaStale          = "sim_delta_stale"
	metricDeltaUnknownPatch   = "sim_delta_unknown_patch"
	metricDeltaPayloadInvalid = "sim_delta_payload_invalid"
)

// payloadAs unwraps a patch payload regardless of whether the producer
// staged a value or a pointer.
func payloadAs[T any](payload any) (T, bool) {
	switch v := payload.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

// ApplyDelta folds an authoritative broadcast into the client state. Deltas
// at or behind the confirmed server frame are replays or reorders and are
// discarded whole. Whatever the patches say wins over local prediction.
// Reports whether the delta was applied.
//
// ApplyDelta must run on the step goroutine; network readers go through
// EnqueueDelta instead.
func (s *Session) ApplyDelta(delta Delta) bool {
	if !s.clock.ObserveServerFrame(delta.Frame) {
		s.log.Printf("sim: discarding stale delta for frame %d (server frame %d)",
			delta.Frame, s.clock.CurrentFrame())
		s.metrics.Add(metricDeltaStale, 1)
		return false
	}
	for _, patch := range delta.Patches {
		s.applyPatch(patch)
	}
	return true
}

func (s *Session) applyPatch(patch Patch) {
	switch patch.Kind {
	case PatchPlayerSpawned:
		payload, ok := payloadAs[PlayerSpawnedPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		s.confirmPlayerSpawned(payload)
	case PatchPlayerPos:
		payload, ok := payloadAs[PlayerPosPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		if p, found := s.table.get(payload.NetID); found {
			p.Position = payload.Position
		}
	case PatchPlayerDespawned:
		payload, ok := payloadAs[PlayerDespawnedPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		s.confirmPlayerDespawned(payload)
	case PatchPlayerRespawnScheduled:
		payload, ok := payloadAs[PlayerRespawnPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		s.confirmRespawnScheduled(payload)
	case PatchPlayerStats:
		payload, ok := payloadAs[PlayerStatsPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		if p, found := s.table.get(payload.NetID); found {
			p.Deaths = payload.Deaths
			p.Finishes = payload.Finishes
		}
	case PatchObjectSpawned:
		payload, ok := payloadAs[ObjectSpawnedPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		s.applyObjectSpawns([]SpawnLevelObject{{Object: payload.Object, Frame: payload.Frame}})
	case PatchObjectUpdated:
		payload, ok := payloadAs[ObjectUpdatedPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		s.applyObjectUpdates(payload.Frame, []UpdateLevelObject{{Object: payload.Object, Frame: payload.Frame}})
	case PatchObjectDespawned:
		payload, ok := payloadAs[ObjectDespawnedPayload](patch.Payload)
		if !ok {
			s.metrics.Add(metricDeltaPayloadInvalid, 1)
			return
		}
		s.applyObjectDespawns([]DespawnLevelObject{{NetID: payload.NetID, Frame: payload.Frame}})
	default:
		s.log.Printf("sim: unknown patch kind %q ignored", patch.Kind)
		s.metrics.Add(metricDeltaUnknownPatch, 1)
	}
}

// confirmPlayerSpawned applies an authoritative spawn. A pending respawn
// schedule at or before the spawn frame is resolved by it; the server's
// spawn is the confirmation the schedule was waiting for.
func (s *Session) confirmPlayerSpawned(payload PlayerSpawnedPayload) {
	if entity, ok := s.players.Entity(payload.NetID); ok {
		if sp := s.store.Spawned(entity); sp != nil {
			sp.MarkSpawned(payload.Frame)
		}
		if p, found := s.table.get(payload.NetID); found {
			p.Position = payload.Position
			if p.Respawn != nil && payload.Frame >= p.Respawn.Frame {
				p.Respawn = nil
			}
		}
		return
	}

	entity := s.store.Create(KindPlayer)
	if err := s.players.Register(payload.NetID, entity); err != nil {
		s.store.Destroy(entity)
		s.metrics.Add(metricRegistryConflict, 1)
		return
	}
	s.store.Spawned(entity).MarkSpawned(payload.Frame)
	if p, found := s.table.get(payload.NetID); found {
		p.Position = payload.Position
	} else {
		s.table.add(&PlayerState{
			NetID:       payload.NetID,
			Nickname:    payload.Nickname,
			Position:    payload.Position,
			ConnectedAt: payload.Frame,
		})
	}
}

func (s *Session) confirmPlayerDespawned(payload PlayerDespawnedPayload) {
	entity, ok := s.players.Entity(payload.NetID)
	if !ok {
		s.log.Printf("sim: despawn patch for unknown player %d ignored", payload.NetID)
		s.metrics.Add(metricDespawnMissing, 1)
		return
	}
	if sp := s.store.Spawned(entity); sp != nil {
		sp.MarkDespawned(payload.Frame)
	}
	if set, found := s.contacts[entity]; found {
		set.Clear()
	}
	if payload.Reason == DespawnDisconnect {
		if p, found := s.table.get(payload.NetID); found {
			p.departed = true
			p.Respawn = nil
		}
	}
}

func (s *Session) confirmRespawnScheduled(payload PlayerRespawnPayload) {
	p, ok := s.table.get(payload.NetID)
	if !ok {
		return
	}
	p.Respawn = &RespawnSchedule{Frame: payload.Frame, Reason: payload.Reason}
	if payload.Reason == RespawnAfterFinish {
		p.Finished = true
	}
}

// clearStaleRespawn drops a respawn schedule the server has visibly moved
// past. Normally the schedule is resolved by the spawn patch that confirms
// it; when that patch is lost, a player that is spawned again while
// prediction has run a full second beyond the originating death can only
// mean the server already respawned them.
func (s *Session) clearStaleRespawn(p *PlayerState) {
	if p.Respawn == nil {
		return
	}
	entity, ok := s.players.Entity(p.NetID)
	if !ok {
		return
	}
	frame := s.clock.PredictedFrame()
	if !s.IsSpawned(entity, frame) {
		return
	}
	deadline := p.Respawn.Frame.Sub(s.cfg.RespawnFrames).Add(s.clock.OneSecondOfFrames())
	if frame > deadline {
		p.Respawn = nil
		s.log.Printf("sim: cleared stale respawn schedule for player %d (frame %d)", p.NetID, frame)
		s.metrics.Add(metricStaleRespawnCleared, 1)
	}
}
