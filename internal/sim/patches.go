package sim

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	// PatchPlayerSpawned materializes a player at a position.
	PatchPlayerSpawned PatchKind = "player_spawned"
	// PatchPlayerPos moves a player.
	PatchPlayerPos PatchKind = "player_pos"
	// PatchPlayerDespawned removes a player's presence.
	PatchPlayerDespawned PatchKind = "player_despawned"
	// PatchPlayerRespawnScheduled announces the frame a dead or finished
	// player comes back at.
	PatchPlayerRespawnScheduled PatchKind = "player_respawn_scheduled"
	// PatchPlayerStats updates a player's death and finish counters.
	PatchPlayerStats PatchKind = "player_stats"

	// PatchObjectSpawned appends a level object.
	PatchObjectSpawned PatchKind = "object_spawned"
	// PatchObjectUpdated replaces a level object's descriptor in place.
	PatchObjectUpdated PatchKind = "object_updated"
	// PatchObjectDespawned removes a level object.
	PatchObjectDespawned PatchKind = "object_despawned"
)

// Patch represents a diff entry that can be applied to the client state.
type Patch struct {
	Kind     PatchKind `json:"kind"`
	EntityID string    `json:"entityId"`
	Payload  any       `json:"payload,omitempty"`
}

// RespawnReason tells apart the two ways a player leaves the Alive state.
type RespawnReason string

const (
	RespawnAfterDeath  RespawnReason = "death"
	RespawnAfterFinish RespawnReason = "finish"
)

// PlayerSpawnedPayload captures a player spawn.
type PlayerSpawnedPayload struct {
	NetID    PlayerNetID `json:"netId"`
	Nickname string      `json:"nickname,omitempty"`
	Position Point       `json:"position"`
	Frame    FrameNumber `json:"frame"`
}

// PlayerPosPayload captures a player position change.
type PlayerPosPayload struct {
	NetID    PlayerNetID `json:"netId"`
	Position Point       `json:"position"`
	Frame    FrameNumber `json:"frame"`
}

// PlayerDespawnedPayload captures a player despawn.
type PlayerDespawnedPayload struct {
	NetID  PlayerNetID   `json:"netId"`
	Frame  FrameNumber   `json:"frame"`
	Reason DespawnReason `json:"reason"`
}

// PlayerRespawnPayload captures a scheduled respawn.
type PlayerRespawnPayload struct {
	NetID  PlayerNetID   `json:"netId"`
	Frame  FrameNumber   `json:"frame"`
	Reason RespawnReason `json:"reason"`
}

// PlayerStatsPayload captures the death and finish counters.
type PlayerStatsPayload struct {
	NetID    PlayerNetID `json:"netId"`
	Deaths   uint32      `json:"deaths"`
	Finishes uint32      `json:"finishes"`
}

// ObjectSpawnedPayload captures a level object spawn.
type ObjectSpawnedPayload struct {
	Object LevelObject `json:"object"`
	Frame  FrameNumber `json:"frame"`
}

// ObjectUpdatedPayload captures a level object replacement.
type ObjectUpdatedPayload struct {
	Object LevelObject `json:"object"`
	Frame  FrameNumber `json:"frame"`
}

// ObjectDespawnedPayload captures a level object despawn.
type ObjectDespawnedPayload struct {
	NetID EntityNetID `json:"netId"`
	Frame FrameNumber `json:"frame"`
}

// PlayerEntityID renders the patch entity id for a player net id.
func PlayerEntityID(netID PlayerNetID) string {
	return strconv.FormatUint(uint64(netID), 10)
}

// ObjectEntityID renders the patch entity id for a level object net id.
func ObjectEntityID(netID EntityNetID) string {
	return strconv.FormatUint(uint64(netID), 10)
}

// UnmarshalJSON decodes the payload into its typed struct based on the patch
// kind, so appliers downstream never see raw JSON maps.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind     PatchKind       `json:"kind"`
		EntityID string          `json:"entityId"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Kind = raw.Kind
	p.EntityID = raw.EntityID
	p.Payload = nil
	if len(raw.Payload) == 0 {
		return nil
	}

	decode := func(v any) error {
		if err := json.Unmarshal(raw.Payload, v); err != nil {
			return fmt.Errorf("sim: decode %s payload: %w", raw.Kind, err)
		}
		return nil
	}

	switch raw.Kind {
	case PatchPlayerSpawned:
		var payload PlayerSpawnedPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchPlayerPos:
		var payload PlayerPosPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchPlayerDespawned:
		var payload PlayerDespawnedPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchPlayerRespawnScheduled:
		var payload PlayerRespawnPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchPlayerStats:
		var payload PlayerStatsPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchObjectSpawned:
		var payload ObjectSpawnedPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchObjectUpdated:
		var payload ObjectUpdatedPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	case PatchObjectDespawned:
		var payload ObjectDespawnedPayload
		if err := decode(&payload); err != nil {
			return err
		}
		p.Payload = payload
	default:
		p.Payload = raw.Payload
	}
	return nil
}
