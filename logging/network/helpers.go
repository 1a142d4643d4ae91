package network

import (
	"context"

	"gridrun/server/logging"
)

const (
	// EventConnectionOpened is emitted when a websocket subscriber attaches.
	EventConnectionOpened logging.EventType = "network.connection_opened"
	// EventConnectionClosed is emitted when a websocket subscriber detaches.
	EventConnectionClosed logging.EventType = "network.connection_closed"
	// EventCommandRejected is emitted when an inbound command is refused
	// before reaching the simulation.
	EventCommandRejected logging.EventType = "network.command_rejected"
	// EventAckAdvanced is emitted when a client acknowledges a newer frame.
	EventAckAdvanced logging.EventType = "network.ack_advanced"
	// EventAckRegression is emitted when a client reports an older
	// acknowledgement than previously recorded.
	EventAckRegression logging.EventType = "network.ack_regression"
)

// ConnectionOpenedPayload captures transport details for a new subscriber.
type ConnectionOpenedPayload struct {
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Protocol   uint16 `json:"protocol"`
}

// ConnectionClosedPayload captures why a subscriber went away.
type ConnectionClosedPayload struct {
	Reason string `json:"reason"`
}

// CommandRejectedPayload captures a refused inbound command.
type CommandRejectedPayload struct {
	CommandType string `json:"commandType"`
	Reason      string `json:"reason"`
}

// AckPayload captures acknowledgement progression details.
type AckPayload struct {
	Previous uint64 `json:"previous"`
	Ack      uint64 `json:"ack"`
}

// ConnectionOpened publishes a subscriber attach event.
func ConnectionOpened(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload ConnectionOpenedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventConnectionOpened,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ConnectionClosed publishes a subscriber detach event.
func ConnectionClosed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload ConnectionClosedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventConnectionClosed,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CommandRejected publishes a refused command. commandID carries the client's
// wire sequence when known.
func CommandRejected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, commandID string, payload CommandRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:      EventCommandRejected,
		Frame:     frame,
		Actor:     actor,
		Severity:  logging.SeverityWarn,
		Category:  logging.CategoryNetwork,
		Payload:   payload,
		Extra:     extra,
		CommandID: commandID,
	}
	pub.Publish(ctx, event)
}

// AckAdvanced publishes a debug event when a client acknowledgement advances.
func AckAdvanced(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAckAdvanced,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// AckRegression publishes a warning when a client acknowledgement regresses.
func AckRegression(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAckRegression,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
