package sim

import (
	"gridrun/server/internal/telemetry"
)

// Mode selects which frame cursor a session advances on its own. Servers
// advance both cursors in lockstep; clients advance prediction locally and
// move the authoritative cursor only on confirmed server frames.
type Mode string

const (
	ModeServer Mode = "server"
	ModeClient Mode = "client"
)

// Config tunes a simulation session. Zero values fall back to the package
// defaults.
type Config struct {
	Mode                 Mode
	SimulationsPerSecond int
	RespawnFrames        uint32
	SpawnHistoryFrames   uint32
	SpawnPoint           Point
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeServer
	}
	if c.SimulationsPerSecond <= 0 {
		c.SimulationsPerSecond = DefaultSimulationsPerSecond
	}
	if c.RespawnFrames == 0 {
		c.RespawnFrames = DefaultRespawnFrames
	}
	if c.SpawnHistoryFrames == 0 {
		c.SpawnHistoryFrames = DefaultSpawnHistoryFrames
	}
	return c
}

// Deps carries the observability hooks a session reports through. Nil
// fields are replaced with no-op implementations.
type Deps struct {
	Log     telemetry.Logger
	Metrics telemetry.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = telemetry.LoggerFunc(nil)
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NopMetrics()
	}
	return d
}

// Anomaly counters. Protocol anomalies are routine under an unreliable
// transport; the counters make bursts visible without failing anything.
const (
	metricSpawnDeduped        = "sim_spawn_deduped"
	metricDuplicateObject     = "sim_duplicate_object_spawn"
	metricDespawnMissing      = "sim_despawn_missing_entity"
	metricDespawnNotSpawned   = "sim_despawn_not_spawned"
	metricContactUnmatched    = "sim_contact_unmatched"
	metricRegistryConflict    = "sim_registry_conflict"
	metricStaleRespawnCleared = "sim_stale_respawn_cleared"
)

// StepResult summarizes one simulated frame.
type StepResult struct {
	Frame    FrameNumber
	Events   []Event
	Patches  int
	Entities int
}

// Session owns one running simulation: the clock, the entity store, both
// identity registries, the level and the player table. All mutation happens
// on the step goroutine; network producers only enqueue commands through the
// threadsafe queues, and readers consume snapshots taken at frame
// boundaries.
type Session struct {
	cfg     Config
	log     telemetry.Logger
	metrics telemetry.Metrics

	clock   *Clock
	store   *Store
	players *Registry[PlayerNetID]
	objects *Registry[EntityNetID]
	level   *LevelState
	table   *playerTable

	spawnPlayerQueue   Queue[SpawnPlayer]
	movePlayerQueue    Queue[MovePlayer]
	despawnPlayerQueue Queue[DespawnPlayer]
	spawnObjectQueue   Queue[SpawnLevelObject]
	updateObjectQueue  Queue[UpdateLevelObject]
	despawnObjectQueue Queue[DespawnLevelObject]
	contactQueue       Queue[ContactEvent]
	deltaQueue         Queue[Delta]

	pendingPlayerDespawns DeferredQueue[DespawnPlayer]
	pendingObjectSpawns   DeferredQueue[SpawnLevelObject]
	pendingObjectUpdates  DeferredQueue[UpdateLevelObject]
	pendingObjectDespawns DeferredQueue[DespawnLevelObject]

	contacts map[Entity]*ContactSet

	events  EventBuffer
	patches []Patch
	closed  bool
}

// NewSession constructs a session ready to step from frame zero.
func NewSession(cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	return &Session{
		cfg:      cfg,
		log:      deps.Log,
		metrics:  deps.Metrics,
		clock:    NewClock(cfg.SimulationsPerSecond),
		store:    NewStore(),
		players:  NewRegistry[PlayerNetID](),
		objects:  NewRegistry[EntityNetID](),
		level:    NewLevelState(),
		table:    newPlayerTable(),
		contacts: make(map[Entity]*ContactSet),
	}
}

// EnqueueSpawnPlayer stages a player spawn for the next step.
func (s *Session) EnqueueSpawnPlayer(cmd SpawnPlayer) {
	s.spawnPlayerQueue.Push(cmd)
}

// EnqueueMovePlayer stages a player position change for the next step.
func (s *Session) EnqueueMovePlayer(cmd MovePlayer) {
	s.movePlayerQueue.Push(cmd)
}

// EnqueueDespawnPlayer stages a player despawn. The command is held until
// its frame is due.
func (s *Session) EnqueueDespawnPlayer(cmd DespawnPlayer) {
	s.despawnPlayerQueue.Push(cmd)
}

// EnqueueSpawnLevelObject stages a level object spawn. Duplicate net ids are
// rejected at application time.
func (s *Session) EnqueueSpawnLevelObject(cmd SpawnLevelObject) {
	s.spawnObjectQueue.Push(cmd)
}

// EnqueueUpdateLevelObject stages a level object replacement.
func (s *Session) EnqueueUpdateLevelObject(cmd UpdateLevelObject) {
	s.updateObjectQueue.Push(cmd)
}

// EnqueueDespawnLevelObject stages a level object despawn.
func (s *Session) EnqueueDespawnLevelObject(cmd DespawnLevelObject) {
	s.despawnObjectQueue.Push(cmd)
}

// EnqueueContacts stages contact events reported by the physics engine.
func (s *Session) EnqueueContacts(events ...ContactEvent) {
	for _, ev := range events {
		s.contactQueue.Push(ev)
	}
}

// EnqueueDelta stages an authoritative broadcast received off the step
// goroutine. It is applied at the start of the next local step, never
// mid-step.
func (s *Session) EnqueueDelta(delta Delta) {
	s.deltaQueue.Push(delta)
}

// DisconnectPlayer schedules the departure of a player: any pending respawn
// is dropped, the body despawns next frame and the record goes away once
// the spawn history ages out. Must be called from the step goroutine.
func (s *Session) DisconnectPlayer(netID PlayerNetID) {
	p, ok := s.table.get(netID)
	if !ok {
		s.log.Printf("sim: disconnect for unknown player %d ignored", netID)
		return
	}
	if p.departed {
		return
	}
	p.departed = true
	p.Respawn = nil
	frame := s.cursor()
	s.pendingPlayerDespawns.Push(DespawnPlayer{
		NetID:  netID,
		Frame:  frame.Next(),
		Reason: DespawnDisconnect,
	})
	s.log.Printf("sim: player %d disconnecting (frame %d)", netID, frame)
}

// Close tears the session down: pending commands are discarded, the entity
// store, registries, level and player table release their contents, and
// further steps are no-ops. It must run on the step goroutine after stepping
// has stopped. The clock keeps its final frame for late readers.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	s.spawnPlayerQueue.Drain()
	s.movePlayerQueue.Drain()
	s.despawnPlayerQueue.Drain()
	s.spawnObjectQueue.Drain()
	s.updateObjectQueue.Drain()
	s.despawnObjectQueue.Drain()
	s.contactQueue.Drain()
	s.deltaQueue.Drain()

	s.pendingPlayerDespawns.Clear()
	s.pendingObjectSpawns.Clear()
	s.pendingObjectUpdates.Clear()
	s.pendingObjectDespawns.Clear()

	s.players.Clear()
	s.objects.Clear()
	s.store = NewStore()
	s.level = NewLevelState()
	s.table = newPlayerTable()
	s.contacts = make(map[Entity]*ContactSet)
	s.events.Clear()
	s.patches = nil
}

// Step simulates exactly one frame: commands drain in FIFO order, contacts
// resolve into domain events, lifecycle transitions take effect and the
// clock advances. It must only run on the step goroutine.
func (s *Session) Step() StepResult {
	if s.closed {
		return StepResult{Frame: s.cursor()}
	}
	s.events.Clear()
	for _, delta := range s.deltaQueue.Drain() {
		s.ApplyDelta(delta)
	}
	frame := s.cursor()
	s.stageIntake()

	spawns := s.spawnPlayerQueue.Drain()
	spawns = append(spawns, s.dueRespawns(frame)...)

	s.applyPlayerDespawns(s.pendingPlayerDespawns.Drain(frame))
	s.applyObjectDespawns(s.pendingObjectDespawns.Drain(frame))
	s.applyObjectUpdates(frame, s.pendingObjectUpdates.Drain(frame))
	s.applyObjectSpawns(s.pendingObjectSpawns.Drain(frame))
	s.applyPlayerSpawns(frame, spawns)
	s.applyPlayerMoves(frame, s.movePlayerQueue.Drain())

	published := s.resolveContacts(frame)
	if s.cfg.Mode == ModeServer {
		s.processPlayerEvents(frame, published)
	} else {
		for _, p := range s.table.all() {
			s.clearStaleRespawn(p)
		}
	}

	s.collectGarbage(frame)

	if s.cfg.Mode == ModeServer {
		s.clock.Advance()
	} else {
		s.clock.AdvancePrediction()
	}

	return StepResult{
		Frame:    frame,
		Events:   s.events.Drain(),
		Patches:  len(s.patches),
		Entities: s.store.Len(),
	}
}

// DrainPatches hands off the diff entries staged since the last drain.
func (s *Session) DrainPatches() []Patch {
	if len(s.patches) == 0 {
		return nil
	}
	drained := s.patches
	s.patches = nil
	return drained
}

// Clock exposes the session clock for read access.
func (s *Session) Clock() *Clock {
	return s.clock
}

// Player returns a copy of the player record.
func (s *Session) Player(netID PlayerNetID) (PlayerState, bool) {
	p, ok := s.table.get(netID)
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

// Players returns copies of all player records in join order.
func (s *Session) Players() []PlayerState {
	all := s.table.all()
	if len(all) == 0 {
		return nil
	}
	out := make([]PlayerState, len(all))
	for i, p := range all {
		out[i] = *p
	}
	return out
}

// PlayerEntity resolves a player's entity handle.
func (s *Session) PlayerEntity(netID PlayerNetID) (Entity, bool) {
	return s.players.Entity(netID)
}

// ObjectEntity resolves a level object's entity handle.
func (s *Session) ObjectEntity(netID EntityNetID) (Entity, bool) {
	return s.objects.Entity(netID)
}

// LevelObjects returns the replicated level in insertion order.
func (s *Session) LevelObjects() []LevelObject {
	return s.level.Objects()
}

// IsSpawned reports whether the entity is spawned at the queried frame.
func (s *Session) IsSpawned(e Entity, frame FrameNumber) bool {
	sp := s.store.Spawned(e)
	return sp != nil && sp.IsSpawned(frame)
}

// cursor is the frame the next step simulates in this mode.
func (s *Session) cursor() FrameNumber {
	if s.cfg.Mode == ModeClient {
		return s.clock.PredictedFrame()
	}
	return s.clock.CurrentFrame()
}

func (s *Session) stageIntake() {
	for _, cmd := range s.despawnPlayerQueue.Drain() {
		s.pendingPlayerDespawns.Push(cmd)
	}
	for _, cmd := range s.spawnObjectQueue.Drain() {
		s.pendingObjectSpawns.Push(cmd)
	}
	for _, cmd := range s.updateObjectQueue.Drain() {
		s.pendingObjectUpdates.Push(cmd)
	}
	for _, cmd := range s.despawnObjectQueue.Drain() {
		s.pendingObjectDespawns.Push(cmd)
	}
}

// dueRespawns releases scheduled respawns whose frame has arrived. The
// released spawns join this frame's batch so the comeback lands exactly on
// the scheduled frame. The spawn path recreates the entity when the old one
// has already been reclaimed.
func (s *Session) dueRespawns(frame FrameNumber) []SpawnPlayer {
	if s.cfg.Mode != ModeServer {
		return nil
	}
	var due []SpawnPlayer
	for _, p := range s.table.all() {
		if p.Respawn == nil || p.departed || frame < p.Respawn.Frame {
			continue
		}
		due = append(due, SpawnPlayer{
			NetID:    p.NetID,
			Nickname: p.Nickname,
			Start:    s.cfg.SpawnPoint,
		})
		p.Respawn = nil
	}
	return due
}

func (s *Session) applyPlayerSpawns(frame FrameNumber, cmds []SpawnPlayer) {
	if len(cmds) == 0 {
		return
	}
	// Several spawns for the same player can pile up within one frame;
	// the first one wins, matching command order.
	seen := make(map[PlayerNetID]struct{}, len(cmds))
	for _, cmd := range cmds {
		if _, dup := seen[cmd.NetID]; dup {
			s.metrics.Add(metricSpawnDeduped, 1)
			continue
		}
		seen[cmd.NetID] = struct{}{}

		if entity, ok := s.players.Entity(cmd.NetID); ok {
			sp := s.store.Spawned(entity)
			if sp == nil {
				s.log.Printf("sim: player %d entity is stale, skipping respawn (frame %d)", cmd.NetID, frame)
				s.metrics.Add(metricRegistryConflict, 1)
				continue
			}
			sp.MarkSpawned(frame)
			if p, ok := s.table.get(cmd.NetID); ok {
				p.Position = cmd.Start
			}
			s.log.Printf("sim: respawning player %d (frame %d)", cmd.NetID, frame)
			s.stageSpawnPatch(cmd, frame)
			continue
		}

		entity := s.store.Create(KindPlayer)
		if err := s.players.Register(cmd.NetID, entity); err != nil {
			s.store.Destroy(entity)
			s.log.Printf("sim: player %d registration rejected: %v", cmd.NetID, err)
			s.metrics.Add(metricRegistryConflict, 1)
			continue
		}
		s.store.Spawned(entity).MarkSpawned(frame)
		if p, ok := s.table.get(cmd.NetID); ok {
			p.Position = cmd.Start
		} else {
			s.table.add(&PlayerState{
				NetID:       cmd.NetID,
				Nickname:    cmd.Nickname,
				Position:    cmd.Start,
				ConnectedAt: frame,
			})
		}
		s.log.Printf("sim: spawning player %d (frame %d)", cmd.NetID, frame)
		s.stageSpawnPatch(cmd, frame)
	}
}

// applyPlayerMoves commits the frame's position changes. Moves for players
// that are despawned or waiting on a respawn are dropped; within a frame the
// last move per player wins and stages a single patch.
func (s *Session) applyPlayerMoves(frame FrameNumber, cmds []MovePlayer) {
	if len(cmds) == 0 {
		return
	}
	final := make(map[PlayerNetID]Point, len(cmds))
	order := make([]PlayerNetID, 0, len(cmds))
	for _, cmd := range cmds {
		if _, seen := final[cmd.NetID]; !seen {
			order = append(order, cmd.NetID)
		}
		final[cmd.NetID] = cmd.Pos
	}
	for _, netID := range order {
		p, ok := s.table.get(netID)
		if !ok || p.Respawn != nil {
			continue
		}
		entity, ok := s.players.Entity(netID)
		if !ok || !s.IsSpawned(entity, frame) {
			continue
		}
		p.Position = final[netID]
		s.stagePatch(Patch{
			Kind:     PatchPlayerPos,
			EntityID: PlayerEntityID(netID),
			Payload: PlayerPosPayload{
				NetID:    netID,
				Position: p.Position,
				Frame:    frame,
			},
		})
	}
}

func (s *Session) stageSpawnPatch(cmd SpawnPlayer, frame FrameNumber) {
	s.stagePatch(Patch{
		Kind:     PatchPlayerSpawned,
		EntityID: PlayerEntityID(cmd.NetID),
		Payload: PlayerSpawnedPayload{
			NetID:    cmd.NetID,
			Nickname: cmd.Nickname,
			Position: cmd.Start,
			Frame:    frame,
		},
	})
}

func (s *Session) applyPlayerDespawns(cmds []DespawnPlayer) {
	for _, cmd := range cmds {
		entity, ok := s.players.Entity(cmd.NetID)
		if !ok {
			s.log.Printf("sim: player %d entity doesn't exist, skipping despawn (frame %d)", cmd.NetID, cmd.Frame)
			s.metrics.Add(metricDespawnMissing, 1)
			continue
		}
		sp := s.store.Spawned(entity)
		if sp == nil {
			s.metrics.Add(metricDespawnMissing, 1)
			continue
		}
		if !sp.IsSpawned(cmd.Frame) {
			s.log.Printf("sim: player %d is not spawned at frame %d, skipping despawn", cmd.NetID, cmd.Frame)
			s.metrics.Add(metricDespawnNotSpawned, 1)
			continue
		}
		sp.MarkDespawned(cmd.Frame)
		if set, ok := s.contacts[entity]; ok {
			set.Clear()
		}
		s.log.Printf("sim: despawning player %d (frame %d, %s)", cmd.NetID, cmd.Frame, cmd.Reason)
		s.stagePatch(Patch{
			Kind:     PatchPlayerDespawned,
			EntityID: PlayerEntityID(cmd.NetID),
			Payload: PlayerDespawnedPayload{
				NetID:  cmd.NetID,
				Frame:  cmd.Frame,
				Reason: cmd.Reason,
			},
		})
	}
}

func (s *Session) applyObjectSpawns(cmds []SpawnLevelObject) {
	for _, cmd := range cmds {
		obj := cmd.Object
		if s.level.Contains(obj.NetID) {
			s.log.Printf("sim: duplicate level object spawn rejected (net id %d, frame %d)", obj.NetID, cmd.Frame)
			s.metrics.Add(metricDuplicateObject, 1)
			continue
		}
		entity := s.store.Create(KindLevelObject)
		if err := s.objects.Register(obj.NetID, entity); err != nil {
			s.store.Destroy(entity)
			s.log.Printf("sim: level object %d registration rejected: %v", obj.NetID, err)
			s.metrics.Add(metricRegistryConflict, 1)
			continue
		}
		if err := s.level.Insert(obj); err != nil {
			s.objects.Unregister(obj.NetID)
			s.store.Destroy(entity)
			s.log.Printf("sim: level object %d insert rejected: %v", obj.NetID, err)
			s.metrics.Add(metricDuplicateObject, 1)
			continue
		}
		s.store.Spawned(entity).MarkSpawned(cmd.Frame)
		s.log.Printf("sim: spawning level object %d (frame %d)", obj.NetID, cmd.Frame)
		s.stagePatch(Patch{
			Kind:     PatchObjectSpawned,
			EntityID: ObjectEntityID(obj.NetID),
			Payload:  ObjectSpawnedPayload{Object: obj, Frame: cmd.Frame},
		})
	}
}

// applyObjectUpdates rebuilds objects in place: the entity is replaced so
// the physics engine re-materializes the collider, while the net id and the
// spawn history carry over. Updates for ids the level has never seen spawn
// fresh, which covers late joiners receiving edits before the original
// spawn.
func (s *Session) applyObjectUpdates(frame FrameNumber, cmds []UpdateLevelObject) {
	if len(cmds) == 0 {
		return
	}
	seen := make(map[EntityNetID]struct{}, len(cmds))
	for _, cmd := range cmds {
		obj := cmd.Object
		if _, dup := seen[obj.NetID]; dup {
			s.metrics.Add(metricSpawnDeduped, 1)
			continue
		}
		seen[obj.NetID] = struct{}{}

		var history Spawned
		var logicChanged bool
		if previous, ok := s.level.Get(obj.NetID); ok {
			logicChanged = previous.Logic != obj.Logic
		}
		if existing, ok := s.objects.Entity(obj.NetID); ok {
			if sp := s.store.Spawned(existing); sp != nil {
				history = sp.Clone()
			}
			s.removeObjectFromContacts(existing)
			s.objects.UnregisterEntity(existing)
			s.store.Destroy(existing)
			s.log.Printf("sim: replacing level object %d (frame %d)", obj.NetID, cmd.Frame)
		}

		entity := s.store.Create(KindLevelObject)
		if err := s.objects.Register(obj.NetID, entity); err != nil {
			s.store.Destroy(entity)
			s.log.Printf("sim: level object %d re-registration rejected: %v", obj.NetID, err)
			s.metrics.Add(metricRegistryConflict, 1)
			continue
		}
		sp := s.store.Spawned(entity)
		*sp = history
		sp.MarkSpawned(cmd.Frame)

		if !s.level.Update(obj) {
			if err := s.level.Insert(obj); err != nil {
				s.objects.Unregister(obj.NetID)
				s.store.Destroy(entity)
				s.metrics.Add(metricDuplicateObject, 1)
				continue
			}
		}
		s.stagePatch(Patch{
			Kind:     PatchObjectUpdated,
			EntityID: ObjectEntityID(obj.NetID),
			Payload:  ObjectUpdatedPayload{Object: obj, Frame: cmd.Frame},
		})
		if logicChanged {
			s.events.Publish(CollisionLogicChanged{
				InstanceID: NewEventInstanceID(),
				Object:     entity,
				NetID:      obj.NetID,
				Logic:      obj.Logic,
				Frame:      frame,
			})
			s.relabelContacts(entity, obj.Logic)
		}
	}
}

func (s *Session) applyObjectDespawns(cmds []DespawnLevelObject) {
	for _, cmd := range cmds {
		entity, ok := s.objects.Entity(cmd.NetID)
		if !ok {
			s.log.Printf("sim: level object %d entity doesn't exist, skipping despawn (frame %d)", cmd.NetID, cmd.Frame)
			s.metrics.Add(metricDespawnMissing, 1)
			continue
		}
		sp := s.store.Spawned(entity)
		if sp == nil || !sp.IsSpawned(cmd.Frame) {
			s.log.Printf("sim: level object %d is not spawned at frame %d, skipping despawn", cmd.NetID, cmd.Frame)
			s.metrics.Add(metricDespawnNotSpawned, 1)
			continue
		}
		s.level.Remove(cmd.NetID)
		sp.MarkDespawned(cmd.Frame)
		s.removeObjectFromContacts(entity)
		s.log.Printf("sim: despawning level object %d (frame %d)", cmd.NetID, cmd.Frame)
		s.stagePatch(Patch{
			Kind:     PatchObjectDespawned,
			EntityID: ObjectEntityID(cmd.NetID),
			Payload:  ObjectDespawnedPayload{NetID: cmd.NetID, Frame: cmd.Frame},
		})
	}
}

// resolveContacts folds the frame's contact events into per-player sets and
// publishes the fate each changed player ends the frame with.
func (s *Session) resolveContacts(frame FrameNumber) []Event {
	events := s.contactQueue.Drain()
	if len(events) == 0 {
		return nil
	}
	changed := make(map[Entity]struct{})
	for _, ev := range events {
		object, player, ok := s.classifyContact(ev)
		if !ok {
			continue
		}
		set := s.contacts[player]
		if set == nil {
			set = &ContactSet{}
			s.contacts[player] = set
		}
		if ev.Started {
			logic := LogicNone
			if netID, ok := s.objects.NetID(object); ok {
				if obj, ok := s.level.Get(netID); ok {
					logic = obj.Logic
				}
			}
			set.Add(object, logic)
		} else {
			set.Remove(object)
		}
		changed[player] = struct{}{}
	}
	if len(changed) == 0 {
		return nil
	}

	var published []Event
	for _, p := range s.table.all() {
		entity, ok := s.players.Entity(p.NetID)
		if !ok {
			continue
		}
		if _, hit := changed[entity]; !hit {
			continue
		}
		if p.Respawn != nil || !s.IsSpawned(entity, frame) {
			continue
		}
		set := s.contacts[entity]
		if set == nil {
			continue
		}
		switch set.Dominant() {
		case LogicDeath:
			ev := PlayerDeath{
				InstanceID: NewEventInstanceID(),
				Player:     entity,
				NetID:      p.NetID,
				Frame:      frame,
			}
			s.events.Publish(ev)
			published = append(published, ev)
		case LogicFinish:
			ev := PlayerFinish{
				InstanceID: NewEventInstanceID(),
				Player:     entity,
				NetID:      p.NetID,
				Frame:      frame,
			}
			s.events.Publish(ev)
			published = append(published, ev)
		}
	}
	return published
}

// classifyContact splits a pair into (level object, player). Pairs that do
// not match that shape are counted and dropped; entities mid-teardown are
// an expected source of them.
func (s *Session) classifyContact(ev ContactEvent) (object, player Entity, ok bool) {
	aKind, aOK := s.store.Kind(ev.A)
	bKind, bOK := s.store.Kind(ev.B)
	if !aOK || !bOK {
		s.metrics.Add(metricContactUnmatched, 1)
		return Entity{}, Entity{}, false
	}
	switch {
	case aKind == KindLevelObject && bKind == KindPlayer:
		return ev.A, ev.B, true
	case bKind == KindLevelObject && aKind == KindPlayer:
		return ev.B, ev.A, true
	default:
		s.log.Printf("sim: contact pair without a level object (%s, %s)", aKind, bKind)
		s.metrics.Add(metricContactUnmatched, 1)
		return Entity{}, Entity{}, false
	}
}

func (s *Session) removeObjectFromContacts(object Entity) {
	for _, set := range s.contacts {
		set.Remove(object)
	}
}

func (s *Session) relabelContacts(object Entity, logic CollisionLogic) {
	for _, set := range s.contacts {
		set.Relabel(object, logic)
	}
}

// processPlayerEvents turns the frame's deaths and finishes into lifecycle
// transitions: schedule the comeback, bump the counters and despawn the
// body on the next frame.
func (s *Session) processPlayerEvents(frame FrameNumber, published []Event) {
	if len(published) == 0 {
		return
	}
	respawnAt := frame.Add(s.cfg.RespawnFrames)
	for _, ev := range published {
		var netID PlayerNetID
		var reason RespawnReason
		switch e := ev.(type) {
		case PlayerDeath:
			netID = e.NetID
			reason = RespawnAfterDeath
		case PlayerFinish:
			netID = e.NetID
			reason = RespawnAfterFinish
		default:
			continue
		}
		p, ok := s.table.get(netID)
		if !ok || p.Respawn != nil {
			continue
		}
		p.Respawn = &RespawnSchedule{Frame: respawnAt, Reason: reason}
		if reason == RespawnAfterFinish {
			p.Finished = true
			p.Finishes++
		} else {
			p.Deaths++
		}
		s.pendingPlayerDespawns.Push(DespawnPlayer{
			NetID:  netID,
			Frame:  frame.Next(),
			Reason: DespawnDeathOrFinish,
		})
		s.stagePatch(Patch{
			Kind:     PatchPlayerRespawnScheduled,
			EntityID: PlayerEntityID(netID),
			Payload: PlayerRespawnPayload{
				NetID:  netID,
				Frame:  respawnAt,
				Reason: reason,
			},
		})
		s.stagePatch(Patch{
			Kind:     PatchPlayerStats,
			EntityID: PlayerEntityID(netID),
			Payload: PlayerStatsPayload{
				NetID:    netID,
				Deaths:   p.Deaths,
				Finishes: p.Finishes,
			},
		})
		s.log.Printf("sim: player %d scheduled to respawn at frame %d (%s)", netID, respawnAt, reason)
	}
}

// collectGarbage ages out spawn histories and reclaims entities whose
// history has collapsed to a single expired despawn.
func (s *Session) collectGarbage(frame FrameNumber) {
	horizon := frame.Sub(s.cfg.SpawnHistoryFrames)
	var removals []Entity
	s.store.ForEach(func(e Entity, _ EntityKind) {
		sp := s.store.Spawned(e)
		sp.PopOutdatedCommands(horizon)
		if sp.CanBeRemoved(horizon) {
			removals = append(removals, e)
		}
	})
	for _, e := range removals {
		kind, _ := s.store.Kind(e)
		switch kind {
		case KindPlayer:
			if netID, ok := s.players.NetID(e); ok {
				s.players.Unregister(netID)
				if p, ok := s.table.get(netID); ok && p.departed {
					s.table.remove(netID)
				}
			}
			delete(s.contacts, e)
		case KindLevelObject:
			s.objects.UnregisterEntity(e)
		}
		s.store.Destroy(e)
	}
}

func (s *Session) stagePatch(p Patch) {
	if s.cfg.Mode != ModeServer {
		return
	}
	s.patches = append(s.patches, p)
}
