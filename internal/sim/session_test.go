package sim

import (
	"crypto/sha256"
	"encoding/json"
	"testing"

	"gridrun/server/internal/telemetry"
)

func stepFrames(s *Session, n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

func mustPlayerEntity(t *testing.T, s *Session, netID PlayerNetID) Entity {
	t.Helper()
	entity, ok := s.PlayerEntity(netID)
	if !ok {
		t.Fatalf("player %d has no registered entity", netID)
	}
	return entity
}

func mustPlayer(t *testing.T, s *Session, netID PlayerNetID) PlayerState {
	t.Helper()
	p, ok := s.Player(netID)
	if !ok {
		t.Fatalf("player %d missing from table", netID)
	}
	return p
}

func patchKinds(patches []Patch) []PatchKind {
	kinds := make([]PatchKind, len(patches))
	for i, p := range patches {
		kinds[i] = p.Kind
	}
	return kinds
}

func TestSessionEmptyStepAdvancesFrame(t *testing.T) {
	s := NewSession(Config{}, Deps{})

	res := s.Step()
	if res.Frame != 0 {
		t.Fatalf("first step frame = %d, want 0", res.Frame)
	}
	if len(res.Events) != 0 || res.Patches != 0 {
		t.Fatalf("empty step produced events=%d patches=%d", len(res.Events), res.Patches)
	}
	if got := s.Clock().CurrentFrame(); got != 1 {
		t.Fatalf("frame after empty step = %d, want 1", got)
	}
}

func TestSessionSpawnRegistersIdentity(t *testing.T) {
	s := NewSession(Config{}, Deps{})
	stepFrames(s, 100)

	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7, Nickname: "runner", Start: Point{X: 1, Y: 2}})
	s.Step()

	entity := mustPlayerEntity(t, s, 7)
	if !s.IsSpawned(entity, 100) {
		t.Fatal("player not spawned at its spawn frame")
	}
	if s.IsSpawned(entity, 99) {
		t.Fatal("player reported spawned before its spawn frame")
	}
	if got := s.level.Len(); got != 0 {
		t.Fatalf("player spawn touched the level: %d objects", got)
	}

	p := mustPlayer(t, s, 7)
	if p.Position != (Point{X: 1, Y: 2}) {
		t.Fatalf("position = %+v, want spawn start", p.Position)
	}
	if p.ConnectedAt != 100 {
		t.Fatalf("connectedAt = %d, want 100", p.ConnectedAt)
	}
	if got := p.State(); got != StateAlive {
		t.Fatalf("state = %q, want alive", got)
	}
}

func TestSessionSpawnDedupedWithinFrame(t *testing.T) {
	counters := telemetry.NewCounters()
	s := NewSession(Config{}, Deps{Metrics: counters})

	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 4, Start: Point{X: 5}})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 4, Start: Point{X: 9}})
	s.Step()

	p := mustPlayer(t, s, 4)
	if p.Position.X != 5 {
		t.Fatalf("position.X = %v, want first spawn to win", p.Position.X)
	}
	if got := counters.Snapshot()[metricSpawnDeduped]; got != 1 {
		t.Fatalf("dedup counter = %d, want 1", got)
	}
}

func TestSessionMoveLastWriteWinsAndRespectsLifecycle(t *testing.T) {
	s := NewSession(Config{}, Deps{})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7})
	s.Step()
	s.DrainPatches()

	s.EnqueueMovePlayer(MovePlayer{NetID: 7, Pos: Point{X: 1}})
	s.EnqueueMovePlayer(MovePlayer{NetID: 7, Pos: Point{X: 2}})
	s.Step()

	if p := mustPlayer(t, s, 7); p.Position.X != 2 {
		t.Fatalf("position.X = %v, want the last move to win", p.Position.X)
	}
	patches := s.DrainPatches()
	if len(patches) != 1 || patches[0].Kind != PatchPlayerPos {
		t.Fatalf("staged %v, want a single player_pos", patchKinds(patches))
	}
	payload, ok := patches[0].Payload.(PlayerPosPayload)
	if !ok || payload.Position.X != 2 {
		t.Fatalf("pos payload = %+v", patches[0].Payload)
	}

	s.EnqueueDespawnPlayer(DespawnPlayer{NetID: 7, Frame: s.Clock().CurrentFrame()})
	s.Step()
	s.EnqueueMovePlayer(MovePlayer{NetID: 7, Pos: Point{X: 9}})
	s.Step()
	if p := mustPlayer(t, s, 7); p.Position.X != 2 {
		t.Fatalf("despawned player moved to %v", p.Position.X)
	}
}

func TestSessionDuplicateObjectSpawnRejected(t *testing.T) {
	counters := telemetry.NewCounters()
	s := NewSession(Config{}, Deps{Metrics: counters})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: planeObject(3, 20), Frame: 0})
	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(3, LogicDeath), Frame: 0})
	s.Step()

	objects := s.LevelObjects()
	if len(objects) != 1 {
		t.Fatalf("level holds %d objects, want 1", len(objects))
	}
	if objects[0].Desc.Kind != ShapePlane {
		t.Fatalf("surviving object kind = %q, want the original plane", objects[0].Desc.Kind)
	}
	if got := counters.Snapshot()[metricDuplicateObject]; got != 1 {
		t.Fatalf("duplicate counter = %d, want 1", got)
	}
	if _, ok := s.ObjectEntity(3); !ok {
		t.Fatal("original object lost its entity mapping")
	}
}

func TestSessionDeathSchedulesRespawnAndDespawnsNextFrame(t *testing.T) {
	s := NewSession(Config{RespawnFrames: 60}, Deps{})
	stepFrames(s, 100)

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(11, LogicDeath), Frame: 100})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7})
	s.Step()

	player := mustPlayerEntity(t, s, 7)
	hazard, ok := s.ObjectEntity(11)
	if !ok {
		t.Fatal("hazard has no entity")
	}

	stepFrames(s, 19)
	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	res := s.Step()

	if res.Frame != 120 {
		t.Fatalf("death frame = %d, want 120", res.Frame)
	}
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want one death", len(res.Events))
	}
	death, ok := res.Events[0].(PlayerDeath)
	if !ok {
		t.Fatalf("event = %T, want PlayerDeath", res.Events[0])
	}
	if death.NetID != 7 || death.Frame != 120 {
		t.Fatalf("death event = %+v", death)
	}
	if death.InstanceID == "" {
		t.Fatal("death event missing instance id")
	}

	p := mustPlayer(t, s, 7)
	if p.Respawn == nil || p.Respawn.Frame != 180 || p.Respawn.Reason != RespawnAfterDeath {
		t.Fatalf("respawn schedule = %+v, want frame 180 after death", p.Respawn)
	}
	if p.Deaths != 1 {
		t.Fatalf("deaths = %d, want 1", p.Deaths)
	}
	if got := p.State(); got != StateRespawning {
		t.Fatalf("state = %q, want respawning", got)
	}
	// The body stays visible on the frame it died; the despawn lands on the
	// following one.
	if !s.IsSpawned(player, 120) {
		t.Fatal("player despawned on the death frame itself")
	}

	s.Step()
	if s.IsSpawned(player, 121) {
		t.Fatal("player still spawned after the scheduled despawn frame")
	}
}

func TestSessionRespawnLandsOnScheduledFrame(t *testing.T) {
	s := NewSession(Config{RespawnFrames: 60, SpawnPoint: Point{X: 3, Y: 4}}, Deps{})
	stepFrames(s, 100)

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(11, LogicDeath), Frame: 100})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7, Start: Point{X: 8, Y: 8}})
	s.Step()

	player := mustPlayerEntity(t, s, 7)
	hazard, _ := s.ObjectEntity(11)

	stepFrames(s, 19)
	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	s.Step()

	// Run up to but not including the respawn frame.
	for s.Clock().CurrentFrame() < 180 {
		s.Step()
	}
	if s.IsSpawned(player, 179) {
		t.Fatal("player spawned before the scheduled respawn frame")
	}

	s.DrainPatches()
	s.Step()

	entity := mustPlayerEntity(t, s, 7)
	if !s.IsSpawned(entity, 180) {
		t.Fatal("player not spawned on the scheduled respawn frame")
	}
	p := mustPlayer(t, s, 7)
	if p.Respawn != nil {
		t.Fatalf("respawn schedule survived the respawn: %+v", p.Respawn)
	}
	if p.Position != (Point{X: 3, Y: 4}) {
		t.Fatalf("respawn position = %+v, want the configured spawn point", p.Position)
	}
	if p.Deaths != 1 {
		t.Fatalf("deaths = %d, want 1 after the cycle", p.Deaths)
	}

	kinds := patchKinds(s.DrainPatches())
	if len(kinds) != 1 || kinds[0] != PatchPlayerSpawned {
		t.Fatalf("respawn frame staged %v, want a single player_spawned", kinds)
	}
}

func TestSessionRespawnSurvivesEntityReclaim(t *testing.T) {
	// History shorter than the respawn delay forces the entity to age out
	// while the player waits; the respawn must build a fresh one.
	s := NewSession(Config{RespawnFrames: 60, SpawnHistoryFrames: 10}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(11, LogicDeath), Frame: 0})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7})
	s.Step()

	player := mustPlayerEntity(t, s, 7)
	hazard, _ := s.ObjectEntity(11)
	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	s.Step()

	// Step past the despawn plus the retention window so the dead body's
	// entity is reclaimed mid-wait.
	stepFrames(s, 30)
	if _, ok := s.PlayerEntity(7); ok {
		t.Fatal("dead player entity survived past its history window")
	}
	if _, ok := s.Player(7); !ok {
		t.Fatal("player table entry vanished with the entity")
	}

	for s.Clock().CurrentFrame() <= 61 {
		s.Step()
	}
	entity := mustPlayerEntity(t, s, 7)
	if !s.IsSpawned(entity, s.Clock().CurrentFrame()) {
		t.Fatal("player not spawned after scheduled respawn")
	}
	if p := mustPlayer(t, s, 7); p.Respawn != nil {
		t.Fatalf("respawn schedule still set: %+v", p.Respawn)
	}
}

func TestSessionFinishIsSticky(t *testing.T) {
	s := NewSession(Config{RespawnFrames: 30}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(20, LogicFinish), Frame: 0})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 2})
	s.Step()

	player := mustPlayerEntity(t, s, 2)
	goal, _ := s.ObjectEntity(20)
	s.EnqueueContacts(ContactEvent{A: player, B: goal, Started: true})
	res := s.Step()

	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want one finish", len(res.Events))
	}
	if _, ok := res.Events[0].(PlayerFinish); !ok {
		t.Fatalf("event = %T, want PlayerFinish", res.Events[0])
	}

	p := mustPlayer(t, s, 2)
	if !p.Finished || p.Finishes != 1 || p.Deaths != 0 {
		t.Fatalf("finish bookkeeping = finished=%v finishes=%d deaths=%d", p.Finished, p.Finishes, p.Deaths)
	}
	if p.Respawn == nil || p.Respawn.Reason != RespawnAfterFinish {
		t.Fatalf("respawn schedule = %+v, want finish reason", p.Respawn)
	}
	if got := p.State(); got != StateFinished {
		t.Fatalf("state = %q, want finished", got)
	}

	for s.Clock().CurrentFrame() <= 32 {
		s.Step()
	}
	p = mustPlayer(t, s, 2)
	if p.Respawn != nil {
		t.Fatal("respawn schedule survived the respawn")
	}
	if !p.Finished {
		t.Fatal("finished flag cleared by the respawn; it marks the level session")
	}
	if got := p.State(); got != StateFinished {
		t.Fatalf("state after respawn = %q, want finished to stick", got)
	}
}

func TestSessionDeathOutranksFinishInSameFrame(t *testing.T) {
	s := NewSession(Config{}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(20, LogicFinish), Frame: 0})
	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(21, LogicDeath), Frame: 0})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 2})
	s.Step()

	player := mustPlayerEntity(t, s, 2)
	goal, _ := s.ObjectEntity(20)
	hazard, _ := s.ObjectEntity(21)
	s.EnqueueContacts(
		ContactEvent{A: player, B: goal, Started: true},
		ContactEvent{A: hazard, B: player, Started: true},
	)
	res := s.Step()

	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want exactly one fate", len(res.Events))
	}
	if _, ok := res.Events[0].(PlayerDeath); !ok {
		t.Fatalf("event = %T, want the death to dominate", res.Events[0])
	}
	p := mustPlayer(t, s, 2)
	if p.Deaths != 1 || p.Finishes != 0 {
		t.Fatalf("counters = deaths %d finishes %d, want the death only", p.Deaths, p.Finishes)
	}
}

func TestSessionRespawningPlayerIgnoresContacts(t *testing.T) {
	s := NewSession(Config{RespawnFrames: 60}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(11, LogicDeath), Frame: 0})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7})
	s.Step()

	player := mustPlayerEntity(t, s, 7)
	hazard, _ := s.ObjectEntity(11)
	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	s.Step()

	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	res := s.Step()
	if len(res.Events) != 0 {
		t.Fatalf("respawning player produced %d events", len(res.Events))
	}
	if p := mustPlayer(t, s, 7); p.Deaths != 1 {
		t.Fatalf("deaths = %d, want the single original death", p.Deaths)
	}
}

func TestSessionDisconnectReclaimsEverything(t *testing.T) {
	s := NewSession(Config{SpawnHistoryFrames: 10}, Deps{})

	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7})
	s.Step()
	player := mustPlayerEntity(t, s, 7)

	s.DisconnectPlayer(7)
	s.Step()
	s.Step()
	if s.IsSpawned(player, s.Clock().CurrentFrame()) {
		t.Fatal("player still spawned after disconnect despawn")
	}
	if _, ok := s.Player(7); !ok {
		t.Fatal("table entry reclaimed before the history aged out")
	}

	stepFrames(s, 15)
	if _, ok := s.PlayerEntity(7); ok {
		t.Fatal("registry mapping survived the retention window")
	}
	if _, ok := s.Player(7); ok {
		t.Fatal("departed player's table entry survived the retention window")
	}
	if got := s.store.Len(); got != 0 {
		t.Fatalf("store holds %d entities, want 0", got)
	}
}

func TestSessionDisconnectCancelsPendingRespawn(t *testing.T) {
	s := NewSession(Config{RespawnFrames: 20, SpawnHistoryFrames: 10}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(11, LogicDeath), Frame: 0})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7})
	s.Step()

	player := mustPlayerEntity(t, s, 7)
	hazard, _ := s.ObjectEntity(11)
	s.EnqueueContacts(ContactEvent{A: hazard, B: player, Started: true})
	s.Step()

	s.DisconnectPlayer(7)
	stepFrames(s, 40)

	if _, ok := s.Player(7); ok {
		t.Fatal("disconnected player came back through a stale respawn")
	}
	if _, ok := s.PlayerEntity(7); ok {
		t.Fatal("registry mapping survived disconnect")
	}
}

func TestSessionObjectUpdateReplacesEntityKeepsIdentity(t *testing.T) {
	s := NewSession(Config{}, Deps{})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: planeObject(1, 20), Frame: 0})
	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(2, LogicNone), Frame: 0})
	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(3, LogicDeath), Frame: 0})
	s.Step()

	before, _ := s.ObjectEntity(2)
	edited := cubeObject(2, LogicDeath)
	edited.Desc.Size = 4
	s.EnqueueUpdateLevelObject(UpdateLevelObject{Object: edited, Frame: 1})
	res := s.Step()

	after, ok := s.ObjectEntity(2)
	if !ok {
		t.Fatal("updated object lost its identity mapping")
	}
	if after == before {
		t.Fatal("update kept the old entity; the collider must be rebuilt")
	}
	if s.store.Alive(before) {
		t.Fatal("old entity still alive after replacement")
	}
	if !s.IsSpawned(after, 1) {
		t.Fatal("replacement entity not spawned at the update frame")
	}

	objects := s.LevelObjects()
	if len(objects) != 3 || objects[1].NetID != 2 {
		t.Fatalf("level order after update = %v", objects)
	}
	if objects[1].Desc.Size != 4 || objects[1].Logic != LogicDeath {
		t.Fatalf("updated object = %+v", objects[1])
	}

	var changed *CollisionLogicChanged
	for _, ev := range res.Events {
		if e, ok := ev.(CollisionLogicChanged); ok {
			changed = &e
		}
	}
	if changed == nil {
		t.Fatal("logic change emitted no event")
	}
	if changed.NetID != 2 || changed.Logic != LogicDeath {
		t.Fatalf("logic change event = %+v", changed)
	}
}

func TestSessionObjectDespawnRemovesFromLevel(t *testing.T) {
	counters := telemetry.NewCounters()
	s := NewSession(Config{}, Deps{Metrics: counters})

	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(5, LogicNone), Frame: 0})
	s.Step()
	entity, _ := s.ObjectEntity(5)

	s.EnqueueDespawnLevelObject(DespawnLevelObject{NetID: 5, Frame: 1})
	s.Step()

	if s.level.Contains(5) {
		t.Fatal("despawned object still in the level")
	}
	if s.IsSpawned(entity, 1) {
		t.Fatal("despawned object still spawned at its despawn frame")
	}
	if _, ok := s.ObjectEntity(5); !ok {
		t.Fatal("identity mapping dropped at despawn; it lives until the history ages out")
	}

	// A second despawn for the same id is skipped on the spawn-state guard.
	s.EnqueueDespawnLevelObject(DespawnLevelObject{NetID: 5, Frame: 2})
	s.Step()
	if got := counters.Snapshot()[metricDespawnNotSpawned]; got != 1 {
		t.Fatalf("not-spawned counter = %d, want 1", got)
	}
}

func TestSessionServerStagesPatchesClientDoesNot(t *testing.T) {
	server := NewSession(Config{Mode: ModeServer}, Deps{})
	client := NewSession(Config{Mode: ModeClient}, Deps{})

	for _, s := range []*Session{server, client} {
		s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(1, LogicNone), Frame: 0})
		s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 9})
		s.Step()
	}

	if got := patchKinds(server.DrainPatches()); len(got) != 2 {
		t.Fatalf("server staged %v, want object and player spawn patches", got)
	}
	if got := client.DrainPatches(); got != nil {
		t.Fatalf("client staged %v, want none", got)
	}

	if got := client.Clock().CurrentFrame(); got != 0 {
		t.Fatalf("client server-frame cursor = %d, want 0 without authoritative input", got)
	}
	if got := client.Clock().PredictedFrame(); got != 1 {
		t.Fatalf("client predicted cursor = %d, want 1", got)
	}
}

func TestSessionDeterministicAcrossRuns(t *testing.T) {
	script := func() *Session {
		s := NewSession(Config{RespawnFrames: 25, SpawnHistoryFrames: 40}, Deps{})

		s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: planeObject(1, 20), Frame: 0})
		s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(2, LogicDeath), Frame: 0})
		s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(3, LogicFinish), Frame: 0})
		s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 7, Nickname: "a"})
		s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 8, Nickname: "b"})
		s.Step()

		seven := func() Entity { e, _ := s.PlayerEntity(7); return e }
		eight := func() Entity { e, _ := s.PlayerEntity(8); return e }
		hazard, _ := s.ObjectEntity(2)
		goal, _ := s.ObjectEntity(3)

		s.EnqueueMovePlayer(MovePlayer{NetID: 7, Pos: Point{X: 4, Y: 4}})
		s.EnqueueMovePlayer(MovePlayer{NetID: 8, Pos: Point{X: 6, Y: 1}})
		s.EnqueueContacts(ContactEvent{A: hazard, B: seven(), Started: true})
		s.Step()
		stepFrames(s, 10)

		edited := cubeObject(2, LogicFinish)
		s.EnqueueUpdateLevelObject(UpdateLevelObject{Object: edited, Frame: 13})
		s.EnqueueContacts(ContactEvent{A: goal, B: eight(), Started: true})
		s.Step()

		stepFrames(s, 30)
		s.DisconnectPlayer(8)
		stepFrames(s, 60)
		return s
	}

	digest := func(s *Session) [sha256.Size]byte {
		raw, err := json.Marshal(s.Snapshot())
		if err != nil {
			t.Fatalf("marshal snapshot: %v", err)
		}
		return sha256.Sum256(raw)
	}

	first := script()
	second := script()
	if digest(first) != digest(second) {
		t.Fatal("identical command scripts diverged")
	}
	if first.Clock().CurrentFrame() != second.Clock().CurrentFrame() {
		t.Fatal("clocks diverged across identical runs")
	}
}

func TestSessionCloseDiscardsState(t *testing.T) {
	s := NewSession(Config{}, Deps{})
	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 3, Nickname: "ada", Start: Point{X: 1}})
	s.EnqueueSpawnLevelObject(SpawnLevelObject{Object: cubeObject(2, LogicDeath)})
	s.Step()
	mustPlayer(t, s, 3)

	frame := s.Clock().CurrentFrame()
	s.Close()
	s.Close()

	if _, ok := s.Player(3); ok {
		t.Fatal("player table survived close")
	}
	if _, ok := s.PlayerEntity(3); ok {
		t.Fatal("player registry mapping survived close")
	}
	if _, ok := s.ObjectEntity(2); ok {
		t.Fatal("object registry mapping survived close")
	}
	if got := len(s.LevelObjects()); got != 0 {
		t.Fatalf("level kept %d objects after close", got)
	}
	if got := s.Clock().CurrentFrame(); got != frame {
		t.Fatalf("close moved the clock from %d to %d", frame, got)
	}

	s.EnqueueSpawnPlayer(SpawnPlayer{NetID: 4})
	res := s.Step()
	if res.Frame != frame {
		t.Fatalf("closed step reported frame %d, want %d", res.Frame, frame)
	}
	if _, ok := s.Player(4); ok {
		t.Fatal("closed session applied a spawn")
	}
	if got := s.Clock().CurrentFrame(); got != frame {
		t.Fatalf("closed session advanced clock to %d", got)
	}
}
