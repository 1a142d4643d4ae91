package net

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"gridrun/server/internal/hub"
	"gridrun/server/internal/sim"
	"gridrun/server/logging/network"
)

type clientMessage struct {
	Ver              int              `json:"ver,omitempty"`
	Type             string           `json:"type"`
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	SentAt           int64            `json:"sentAt"`
	Ack              *uint64          `json:"ack"`
	KeyframeSeq      *uint64          `json:"keyframeSeq"`
	KeyframeInterval *int             `json:"keyframeInterval,omitempty"`
	CommandSeq       *uint64          `json:"seq,omitempty"`
	Object           *sim.LevelObject `json:"object,omitempty"`
	CatalogID        string           `json:"catalogId,omitempty"`
	NetID            uint16           `json:"netId,omitempty"`
}

type commandAckMessage struct {
	Ver   int    `json:"ver"`
	Type  string `json:"type"`
	Seq   uint64 `json:"seq"`
	Frame uint64 `json:"t,omitempty"`
}

type commandRejectMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

// serveSession pumps client messages for one attached session until the
// connection drops or a reply write fails. Commands carrying a sequence
// number are acknowledged or rejected; replays of an acknowledged sequence
// are re-acked without staging the command again.
func (h *Handler) serveSession(conn *websocket.Conn, r *hub.Remote) {
	reason := "read_error"
	defer func() {
		h.hub.Disconnect(r, reason)
		network.ConnectionClosed(context.Background(), h.pub, h.hub.Frame(), playerRef(r), network.ConnectionClosedPayload{
			Reason: reason,
		}, nil)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.log.Printf("discarding malformed message from player %d: %v", r.NetID(), err)
			continue
		}

		if msg.Ack != nil {
			h.hub.RecordAck(r, *msg.Ack)
		}

		normalizedSeq := uint64(0)
		if msg.CommandSeq != nil && *msg.CommandSeq > 0 {
			normalizedSeq = *msg.CommandSeq
		}

		writeJSON := func(payload any) bool {
			data, err := json.Marshal(payload)
			if err != nil {
				h.log.Printf("failed to marshal reply for player %d: %v", r.NetID(), err)
				return true
			}
			if err := r.Send(data); err != nil {
				reason = "write_failed"
				return false
			}
			return true
		}

		isDuplicate := func() bool {
			if normalizedSeq == 0 {
				return false
			}
			last := r.LastCommandSeq()
			return last > 0 && normalizedSeq <= last
		}

		sendDuplicateAck := func() bool {
			if normalizedSeq == 0 {
				return true
			}
			return writeJSON(commandAckMessage{Ver: hub.ProtocolVersion, Type: "commandAck", Seq: normalizedSeq})
		}

		sendCommandAck := func(cmd sim.Command) bool {
			if normalizedSeq == 0 {
				return true
			}
			ack := commandAckMessage{Ver: hub.ProtocolVersion, Type: "commandAck", Seq: normalizedSeq}
			if cmd.OriginFrame > 0 {
				ack.Frame = uint64(cmd.OriginFrame)
			}
			if !writeJSON(ack) {
				return false
			}
			r.StoreLastCommandSeq(normalizedSeq)
			return true
		}

		sendCommandReject := func(rejectReason string) bool {
			if normalizedSeq == 0 {
				return true
			}
			return writeJSON(commandRejectMessage{
				Ver:    hub.ProtocolVersion,
				Type:   "commandReject",
				Seq:    normalizedSeq,
				Reason: rejectReason,
				Retry:  rejectReason == sim.CommandRejectQueueLimit,
			})
		}

		switch msg.Type {
		case "move":
			if isDuplicate() {
				if !sendDuplicateAck() {
					return
				}
				continue
			}
			cmd, ok, rejectReason := h.hub.Move(r, msg.X, msg.Y)
			if ok {
				if !sendCommandAck(cmd) {
					return
				}
			} else if !sendCommandReject(rejectReason) {
				return
			}
		case "spawnObject", "updateObject":
			if isDuplicate() {
				if !sendDuplicateAck() {
					return
				}
				continue
			}
			obj := msg.Object
			if obj == nil && msg.Type == "spawnObject" && msg.CatalogID != "" {
				entry, found := h.catalog.Resolve(msg.CatalogID)
				if !found {
					h.log.Printf("player %d referenced unknown catalog id %q", r.NetID(), msg.CatalogID)
					if !sendCommandReject(sim.CommandRejectMalformed) {
						return
					}
					continue
				}
				stamped := entry.Object(sim.EntityNetID(msg.NetID), sim.Point{X: msg.X, Y: msg.Y})
				obj = &stamped
			}
			if obj == nil {
				if !sendCommandReject(sim.CommandRejectMalformed) {
					return
				}
				continue
			}
			var (
				cmd          sim.Command
				ok           bool
				rejectReason string
			)
			if msg.Type == "spawnObject" {
				cmd, ok, rejectReason = h.hub.SpawnObject(*obj)
			} else {
				cmd, ok, rejectReason = h.hub.UpdateObject(*obj)
			}
			if ok {
				if !sendCommandAck(cmd) {
					return
				}
			} else if !sendCommandReject(rejectReason) {
				return
			}
		case "despawnObject":
			if msg.NetID == 0 {
				if !sendCommandReject(sim.CommandRejectMalformed) {
					return
				}
				continue
			}
			if isDuplicate() {
				if !sendDuplicateAck() {
					return
				}
				continue
			}
			cmd, ok, rejectReason := h.hub.DespawnObject(sim.EntityNetID(msg.NetID))
			if ok {
				if !sendCommandAck(cmd) {
					return
				}
			} else if !sendCommandReject(rejectReason) {
				return
			}
		case "heartbeat":
			// The acknowledgement is written once the loop routes the
			// command back on the step goroutine.
			h.hub.Heartbeat(r, msg.SentAt)
		case "keyframeRequest":
			if msg.KeyframeSeq == nil {
				continue
			}
			if err := h.hub.HandleKeyframeRequest(r, *msg.KeyframeSeq); err != nil {
				reason = "write_failed"
				return
			}
		case "keyframeCadence":
			requested := 0
			if msg.KeyframeInterval != nil {
				requested = *msg.KeyframeInterval
			}
			applied := h.hub.SetKeyframeInterval(requested)
			h.log.Printf("player %d set keyframe cadence to %d broadcasts", r.NetID(), applied)
		case "ack":
			// Carried by the ack field handled above; nothing more to do.
		default:
			h.log.Printf("unknown message type %q from player %d", msg.Type, r.NetID())
		}
	}
}
