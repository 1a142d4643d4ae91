package sim

import (
	"encoding/json"
	"testing"
)

func buildSnapshotFixture(t *testing.T) (*Session, Snapshot) {
	t.Helper()
	s := NewSession(Config{RespawnFrames: 60}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: planeObject(1, 20), Frame: 0})
	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(2, LogicDeath), Frame: 0})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7, Nickname: "a", Start: Point{X: 1}})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 8, Nickname: "b", Start: Point{X: 2}})
	s.Step()

	player := mustPlayerEntity(t, s, 7)
	hazard, _ := s.ObjectEntity(2)
	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	s.Step()
	s.Step()

	return s, s.Snapshot()
}

func TestSnapshotCapturesLifecycleAndLevel(t *testing.T) {
	_, snap := buildSnapshotFixture(t)

	if snap.Frame != 3 {
		t.Fatalf("snapshot frame = %d, want 3", snap.Frame)
	}
	if len(snap.Players) != 2 {
		t.Fatalf("snapshot players = %d, want 2", len(snap.Players))
	}
	dead, alive := snap.Players[0], snap.Players[1]
	if dead.NetID != 7 || alive.NetID != 8 {
		t.Fatalf("player order = %d,%d, want join order 7,8", dead.NetID, alive.NetID)
	}
	if dead.Spawned {
		t.Fatal("player 7 reported spawned while awaiting respawn")
	}
	if dead.Respawn == nil || dead.Respawn.Frame != 61 {
		t.Fatalf("player 7 respawn = %+v, want frame 61", dead.Respawn)
	}
	if dead.Deaths != 1 {
		t.Fatalf("player 7 deaths = %d, want 1", dead.Deaths)
	}
	if !alive.Spawned {
		t.Fatal("player 8 reported despawned")
	}
	if len(snap.Objects) != 2 || snap.Objects[0].NetID != 1 || snap.Objects[1].NetID != 2 {
		t.Fatalf("snapshot objects = %+v, want insertion order 1,2", snap.Objects)
	}
}

func TestReplayRebuildsStateAndJumpsForward(t *testing.T) {
	_, snap := buildSnapshotFixture(t)

	client := NewSession(Config{Mode: ModeClient, RespawnFrames: 60}, Deps{})
	// Pre-seed junk the replay must discard.
	client.ApplyDelta(Delta{Frame: 1, Patches: []Patch{
		spawnedPatch(50, Point{}, 1),
		{
			Kind:     PatchObjectSpawned,
			EntityID: ObjectEntityID(60),
			Payload:  ObjectSpawnedPayload{Object: cubeObject(60, LogicNone), Frame: 1},
		},
	}})

	client.Replay(snap)

	if _, ok := client.Player(50); ok {
		t.Fatal("replay kept a player the snapshot does not contain")
	}
	if client.level.Contains(60) {
		t.Fatal("replay kept an object the snapshot does not contain")
	}
	if got := client.Clock().CurrentFrame(); got != snap.Frame {
		t.Fatalf("server frame = %d, want snapshot frame %d", got, snap.Frame)
	}

	p := mustPlayer(t, client, 7)
	if p.Respawn == nil || p.Respawn.Frame != 61 || p.Deaths != 1 {
		t.Fatalf("replayed player 7 = %+v", p)
	}
	seven := mustPlayerEntity(t, client, 7)
	if client.IsSpawned(seven, snap.Frame) {
		t.Fatal("despawned player spawned after replay")
	}
	eight := mustPlayerEntity(t, client, 8)
	if !client.IsSpawned(eight, snap.Frame) {
		t.Fatal("spawned player despawned after replay")
	}
	if _, ok := client.ObjectEntity(2); !ok {
		t.Fatal("replayed object missing its entity")
	}

	// Replaying the replica must reproduce the snapshot byte for byte.
	want, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal original: %v", err)
	}
	got, err := json.Marshal(client.Snapshot())
	if err != nil {
		t.Fatalf("marshal replica: %v", err)
	}
	if string(want) != string(got) {
		t.Fatalf("replica snapshot diverged:\nwant %s\ngot  %s", want, got)
	}
}

func TestReplayRewindsPastState(t *testing.T) {
	_, snap := buildSnapshotFixture(t)

	client := NewSession(Config{Mode: ModeClient}, Deps{})
	client.ApplyDelta(Delta{Frame: 50, Patches: []Patch{spawnedPatch(50, Point{}, 50)}})
	if got := client.Clock().CurrentFrame(); got != 50 {
		t.Fatalf("setup server frame = %d, want 50", got)
	}

	client.Replay(snap)
	if got := client.Clock().CurrentFrame(); got != snap.Frame {
		t.Fatalf("server frame after rewind = %d, want %d", got, snap.Frame)
	}
	if got := client.Clock().PredictedFrame(); got != snap.Frame {
		t.Fatalf("predicted frame after rewind = %d, want %d", got, snap.Frame)
	}
	if _, ok := client.Player(7); !ok {
		t.Fatal("rewound replay lost snapshot players")
	}
}
