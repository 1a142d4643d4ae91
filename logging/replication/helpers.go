package replication

import (
	"context"

	"gridrun/server/logging"
)

const (
	// EventKeyframeRecorded is emitted when the journal stores a new keyframe.
	EventKeyframeRecorded logging.EventType = "replication.keyframe_recorded"
	// EventKeyframeMiss is emitted when a client asks for a keyframe the
	// retention window no longer holds.
	EventKeyframeMiss logging.EventType = "replication.keyframe_miss"
	// EventResyncScheduled is emitted when recovery misses force a fresh
	// keyframe broadcast.
	EventResyncScheduled logging.EventType = "replication.resync_scheduled"
	// EventSubscriberDropped is emitted when a subscriber falls off the
	// broadcast list.
	EventSubscriberDropped logging.EventType = "replication.subscriber_dropped"
	// EventObjectLogicChanged is emitted when a level edit changes what
	// touching an object does.
	EventObjectLogicChanged logging.EventType = "replication.object_logic_changed"
)

// KeyframeRecordedPayload captures the retention window after a record.
type KeyframeRecordedPayload struct {
	Sequence   uint64 `json:"sequence"`
	WindowSize int    `json:"windowSize"`
	Evicted    int    `json:"evicted,omitempty"`
}

// KeyframeMissPayload captures a lookup the window could not serve.
type KeyframeMissPayload struct {
	Sequence       uint64 `json:"sequence"`
	OldestSequence uint64 `json:"oldestSequence"`
	NewestSequence uint64 `json:"newestSequence"`
}

// ResyncScheduledPayload captures the miss pattern that forced a resync.
type ResyncScheduledPayload struct {
	Misses      uint64 `json:"misses"`
	TotalEvents uint64 `json:"totalEvents"`
	Summary     string `json:"summary,omitempty"`
}

// SubscriberDroppedPayload captures why a subscriber was removed.
type SubscriberDroppedPayload struct {
	Reason string `json:"reason"`
}

// ObjectLogicChangedPayload captures a collision logic edit.
type ObjectLogicChangedPayload struct {
	Logic string `json:"logic"`
}

// KeyframeRecorded publishes a keyframe record event.
func KeyframeRecorded(ctx context.Context, pub logging.Publisher, frame uint64, payload KeyframeRecordedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventKeyframeRecorded,
		Frame:    frame,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// KeyframeMiss publishes a failed keyframe lookup.
func KeyframeMiss(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload KeyframeMissPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventKeyframeMiss,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ResyncScheduled publishes a forced keyframe broadcast.
func ResyncScheduled(ctx context.Context, pub logging.Publisher, frame uint64, payload ResyncScheduledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventResyncScheduled,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SubscriberDropped publishes a subscriber removal.
func SubscriberDropped(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload SubscriberDroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSubscriberDropped,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ObjectLogicChanged publishes a collision logic edit applied to the level.
func ObjectLogicChanged(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, traceID string, payload ObjectLogicChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventObjectLogicChanged,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
		TraceID:  traceID,
	}
	pub.Publish(ctx, event)
}
