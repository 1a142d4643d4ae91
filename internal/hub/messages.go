package hub

import (
	"gridrun/server/internal/sim"
)

// ProtocolVersion tags every message crossing the wire. Clients reject
// versions they do not understand instead of guessing at field semantics.
const ProtocolVersion = 1

// SessionConfig echoes the simulation tuning a client needs to run its own
// predicted session in lockstep with the server.
type SessionConfig struct {
	SimulationsPerSecond int     `json:"simulationsPerSecond"`
	RespawnFrames        uint32  `json:"respawnFrames"`
	FramesPerBroadcast   int     `json:"framesPerBroadcast"`
	KeyframeInterval     int     `json:"keyframeInterval"`
	SpawnX               float64 `json:"spawnX"`
	SpawnY               float64 `json:"spawnY"`
}

// JoinResponse answers the join handshake: the session token used to attach
// a socket, the allocated player net id and a snapshot to seed prediction.
type JoinResponse struct {
	Ver         int               `json:"ver"`
	Token       string            `json:"token"`
	NetID       sim.PlayerNetID   `json:"netId"`
	Frame       uint64            `json:"t"`
	Players     []sim.PlayerEntry `json:"players"`
	Objects     []sim.LevelObject `json:"objects"`
	KeyframeSeq uint64            `json:"keyframeSeq"`
	Config      SessionConfig     `json:"config"`
}

type stateMessage struct {
	Ver              int         `json:"ver"`
	Type             string      `json:"type"`
	Patches          []sim.Patch `json:"patches"`
	Frame            uint64      `json:"t"`
	Sequence         uint64      `json:"sequence"`
	KeyframeSeq      uint64      `json:"keyframeSeq"`
	ServerTime       int64       `json:"serverTime"`
	Resync           bool        `json:"resync,omitempty"`
	KeyframeInterval int         `json:"keyframeInterval,omitempty"`
}

type keyframeMessage struct {
	Ver      int               `json:"ver"`
	Type     string            `json:"type"`
	Sequence uint64            `json:"sequence"`
	Frame    uint64            `json:"t"`
	Players  []sim.PlayerEntry `json:"players"`
	Objects  []sim.LevelObject `json:"objects"`
	Config   SessionConfig     `json:"config"`
}

type keyframeNackMessage struct {
	Ver      int    `json:"ver"`
	Type     string `json:"type"`
	Sequence uint64 `json:"sequence"`
	Reason   string `json:"reason"`
	Oldest   uint64 `json:"oldest,omitempty"`
	Newest   uint64 `json:"newest,omitempty"`
	Resync   bool   `json:"resync,omitempty"`
}

type heartbeatMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// DiagnosticsPlayer is one row of the diagnostics endpoint: connectivity
// metadata for a live session.
type DiagnosticsPlayer struct {
	Ver           int    `json:"ver"`
	NetID         uint16 `json:"netId"`
	Nickname      string `json:"nickname,omitempty"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
	LastAck       uint64 `json:"lastAck"`
}
