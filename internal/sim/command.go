package sim

import "time"

// CommandType enumerates the wire commands the loop routes into a session.
type CommandType string

const (
	CommandJoin          CommandType = "Join"
	CommandMove          CommandType = "Move"
	CommandDisconnect    CommandType = "Disconnect"
	CommandHeartbeat     CommandType = "Heartbeat"
	CommandSpawnObject   CommandType = "SpawnObject"
	CommandUpdateObject  CommandType = "UpdateObject"
	CommandDespawnObject CommandType = "DespawnObject"
)

// JoinCommand introduces a player to the level.
type JoinCommand struct {
	Nickname string `json:"nickname,omitempty"`
	Start    Point  `json:"start"`
}

// MoveCommand carries an absolute position intent.
type MoveCommand struct {
	Pos Point `json:"pos"`
}

// HeartbeatCommand updates connectivity metadata for a player. It never
// touches simulation state; the loop hands it back to the transport layer.
type HeartbeatCommand struct {
	ReceivedAt time.Time     `json:"receivedAt"`
	ClientSent int64         `json:"clientSent"`
	RTT        time.Duration `json:"rtt"`
}

// ObjectCommand carries a level object for spawn and update edits.
type ObjectCommand struct {
	Object LevelObject `json:"object"`
	Frame  FrameNumber `json:"frame"`
}

// ObjectRemovalCommand names the level object an edit removes.
type ObjectRemovalCommand struct {
	NetID EntityNetID `json:"netId"`
	Frame FrameNumber `json:"frame"`
}

// Command represents an intent captured for processing on the next frame.
// Player is zero for edits issued by the level editor rather than a client.
type Command struct {
	OriginFrame   FrameNumber           `json:"originFrame"`
	Player        PlayerNetID           `json:"player,omitempty"`
	Type          CommandType           `json:"type"`
	IssuedAt      time.Time             `json:"issuedAt"`
	Join          *JoinCommand          `json:"join,omitempty"`
	Move          *MoveCommand          `json:"move,omitempty"`
	Heartbeat     *HeartbeatCommand     `json:"heartbeat,omitempty"`
	Object        *ObjectCommand        `json:"object,omitempty"`
	ObjectRemoval *ObjectRemovalCommand `json:"objectRemoval,omitempty"`
}
