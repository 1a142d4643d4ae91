package lifecycle

import (
	"context"

	"gridrun/server/logging"
)

const (
	// EventPlayerJoined is emitted when a player joins the level session.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player leaves the level session.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventPlayerDied is emitted when a player touches death geometry.
	EventPlayerDied logging.EventType = "lifecycle.player_died"
	// EventPlayerFinished is emitted when a player reaches finish geometry.
	EventPlayerFinished logging.EventType = "lifecycle.player_finished"
)

// PlayerJoinedPayload captures spawn metadata for a new player.
type PlayerJoinedPayload struct {
	Nickname string  `json:"nickname,omitempty"`
	SpawnX   float64 `json:"spawnX"`
	SpawnY   float64 `json:"spawnY"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// PlayerDiedPayload captures the respawn the death scheduled.
type PlayerDiedPayload struct {
	RespawnFrame uint64 `json:"respawnFrame"`
	Deaths       uint32 `json:"deaths"`
}

// PlayerFinishedPayload captures the level completion.
type PlayerFinishedPayload struct {
	RespawnFrame uint64 `json:"respawnFrame"`
	Finishes     uint32 `json:"finishes"`
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerJoined,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerDisconnected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PlayerDied publishes a death event. traceID correlates the log line with
// the simulation event instance that produced it.
func PlayerDied(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, traceID string, payload PlayerDiedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerDied,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  traceID,
	}
	pub.Publish(ctx, event)
}

// PlayerFinished publishes a level completion event.
func PlayerFinished(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, traceID string, payload PlayerFinishedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerFinished,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  traceID,
	}
	pub.Publish(ctx, event)
}
