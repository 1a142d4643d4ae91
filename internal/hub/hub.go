// Package hub mediates between the simulation loop and connected clients:
// it owns session identity, fans state broadcasts out to subscribers and
// serves keyframe recovery from the patch journal.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gridrun/server/internal/journal"
	"gridrun/server/internal/sim"
	"gridrun/server/internal/telemetry"
	"gridrun/server/logging"
	"gridrun/server/logging/lifecycle"
	"gridrun/server/logging/network"
	"gridrun/server/logging/replication"
	"gridrun/server/logging/simulation"
)

// Tuning defaults. Frames are simulation frames; the keyframe interval
// counts broadcasts, not frames.
const (
	DefaultFramesPerBroadcast = 2
	DefaultKeyframeInterval   = 30
	DefaultKeyframeCapacity   = 32
	DefaultKeyframeMaxAge     = 30 * time.Second
	DefaultWriteWait          = 10 * time.Second
	DefaultHeartbeatInterval  = 2 * time.Second
	DefaultDisconnectAfter    = 3 * DefaultHeartbeatInterval

	maxKeyframeInterval = 600
	heartbeatSkewWindow = 5 * time.Second
)

const (
	metricAckRegression    = "hub_ack_regression"
	metricCommandDrop      = "hub_command_drop"
	metricQueueSaturated   = "hub_queue_saturated"
	metricWriteFailed      = "hub_write_failed"
	metricFrameOverrun     = "hub_frame_overrun"
	metricHeartbeatTimeout = "hub_heartbeat_timeout"
)

// ErrUnknownSession is returned when a socket presents a token that was
// never issued or has already been disconnected.
var ErrUnknownSession = errors.New("hub: unknown session token")

// Config tunes the hub and the simulation it owns. Zero values fall back to
// the package defaults.
type Config struct {
	Session sim.Config
	Loop    sim.LoopConfig

	FramesPerBroadcast int
	KeyframeInterval   int
	KeyframeCapacity   int
	KeyframeMaxAge     time.Duration
	WriteWait          time.Duration
	DisconnectAfter    time.Duration
}

func (c Config) withDefaults() Config {
	if c.FramesPerBroadcast < 1 {
		c.FramesPerBroadcast = DefaultFramesPerBroadcast
	}
	if c.KeyframeInterval < 1 {
		c.KeyframeInterval = DefaultKeyframeInterval
	}
	if c.KeyframeInterval > maxKeyframeInterval {
		c.KeyframeInterval = maxKeyframeInterval
	}
	if c.KeyframeCapacity < 1 {
		c.KeyframeCapacity = DefaultKeyframeCapacity
	}
	if c.KeyframeMaxAge <= 0 {
		c.KeyframeMaxAge = DefaultKeyframeMaxAge
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.DisconnectAfter <= 0 {
		c.DisconnectAfter = DefaultDisconnectAfter
	}
	// The session applies its own defaults; mirror the ones echoed to
	// clients so the config message reports effective values.
	if c.Session.RespawnFrames == 0 {
		c.Session.RespawnFrames = sim.DefaultRespawnFrames
	}
	if c.Loop.CatchupMaxFrames < 1 {
		c.Loop.CatchupMaxFrames = sim.DefaultCatchupMaxFrames
	}
	if c.Loop.CommandCapacity < 1 {
		c.Loop.CommandCapacity = sim.DefaultCommandCapacity
	}
	return c
}

// Deps carries the observability surfaces the hub reports through. Nil
// fields are replaced with no-op implementations.
type Deps struct {
	Pub     logging.Publisher
	Log     telemetry.Logger
	Metrics telemetry.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Pub == nil {
		d.Pub = logging.NopPublisher()
	}
	if d.Log == nil {
		d.Log = telemetry.LoggerFunc(nil)
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NopMetrics()
	}
	return d
}

// journalTelemetry adapts the metrics interface to the journal's drop
// reporting hook.
type journalTelemetry struct {
	metrics telemetry.Metrics
}

func (t journalTelemetry) RecordJournalDrop(metric string) {
	t.metrics.Add(metric, 1)
}

// Hub owns the simulation loop, the patch journal and every live client
// session. Network goroutines call its exported methods; everything that
// mutates simulation state funnels through the loop's command intake.
type Hub struct {
	cfg     Config
	pub     logging.Publisher
	log     telemetry.Logger
	metrics telemetry.Metrics

	loop    *sim.Loop
	journal journal.Journal

	mu                 sync.Mutex
	sessions           map[string]*Remote
	byPlayer           map[sim.PlayerNetID]*Remote
	nextNetID          sim.PlayerNetID
	latest             sim.Snapshot
	pendingDisconnects []sim.PlayerNetID

	// Broadcast scheduling state, touched only on the step goroutine.
	framesUntilBroadcast    int
	broadcastsUntilKeyframe int
	overrunStreak           uint64
	wasClamped              bool

	broadcastSeq  atomic.Uint64
	keyframeSeq   atomic.Uint64
	keyframeEvery atomic.Int32
	forceKeyframe atomic.Bool
}

// New builds a hub around a fresh session and loop, records the baseline
// keyframe and leaves the loop ready to Run.
func New(cfg Config, deps Deps) *Hub {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()

	h := &Hub{
		cfg:      cfg,
		pub:      deps.Pub,
		log:      deps.Log,
		metrics:  deps.Metrics,
		sessions: make(map[string]*Remote),
		byPlayer: make(map[sim.PlayerNetID]*Remote),
	}
	h.journal = journal.New(cfg.KeyframeCapacity, cfg.KeyframeMaxAge)
	h.journal.AttachTelemetry(journalTelemetry{metrics: deps.Metrics})

	session := sim.NewSession(cfg.Session, sim.Deps{Log: deps.Log, Metrics: deps.Metrics})
	h.loop = sim.NewLoop(session, cfg.Loop, sim.LoopHooks{
		AfterStep:      h.afterStep,
		OnHeartbeat:    h.completeHeartbeat,
		OnCommandDrop:  h.noteCommandDrop,
		OnQueueWarning: h.noteQueuePressure,
	})

	h.keyframeEvery.Store(int32(cfg.KeyframeInterval))
	h.framesUntilBroadcast = cfg.FramesPerBroadcast
	h.broadcastsUntilKeyframe = cfg.KeyframeInterval

	// The loop has not started, so reading the session here is safe. The
	// baseline keyframe guarantees every subscriber has a requestable
	// snapshot from the first attach onwards.
	h.latest = session.Snapshot()
	h.recordKeyframe(h.latest)
	return h
}

// Run drives the simulation loop until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	return h.loop.Run(ctx)
}

// Close detaches every remaining subscriber and tears down the simulation
// session. Call it after Run has returned; the loop no longer drains
// commands at that point, so a staged despawn would never apply.
func (h *Hub) Close() {
	h.mu.Lock()
	remotes := make([]*Remote, 0, len(h.sessions))
	for _, r := range h.sessions {
		remotes = append(remotes, r)
	}
	h.sessions = make(map[string]*Remote)
	h.byPlayer = make(map[sim.PlayerNetID]*Remote)
	h.pendingDisconnects = nil
	h.mu.Unlock()

	for _, r := range remotes {
		if conn := r.detach(); conn != nil {
			conn.Close()
		}
	}
	h.loop.Session().Close()
}

// Loop exposes the command intake for bootstrap spawns and tests.
func (h *Hub) Loop() *sim.Loop {
	return h.loop
}

// Frame returns the frame of the most recently broadcast snapshot. It lags
// the live simulation by at most one broadcast interval.
func (h *Hub) Frame() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint64(h.latest.Frame)
}

// Join allocates a session: a fresh token, a player net id and a spawn
// command staged for the next frame. The returned snapshot seeds client
// prediction; the player's own spawn arrives through the patch stream.
func (h *Hub) Join(nickname string) (JoinResponse, error) {
	now := time.Now()

	h.mu.Lock()
	netID, err := h.allocateNetIDLocked()
	if err != nil {
		h.mu.Unlock()
		return JoinResponse{}, err
	}
	token := uuid.NewString()
	r := &Remote{
		token:         token,
		netID:         netID,
		nickname:      nickname,
		writeWait:     h.cfg.WriteWait,
		lastHeartbeat: now,
	}
	h.sessions[token] = r
	h.byPlayer[netID] = r
	snap := h.latest.Clone()
	h.mu.Unlock()

	spawn := sim.Command{
		OriginFrame: snap.Frame,
		Player:      netID,
		Type:        sim.CommandJoin,
		IssuedAt:    now,
		Join: &sim.JoinCommand{
			Nickname: nickname,
			Start:    h.cfg.Session.SpawnPoint,
		},
	}
	if ok, reason := h.loop.Enqueue(spawn); !ok {
		h.mu.Lock()
		delete(h.sessions, token)
		delete(h.byPlayer, netID)
		h.mu.Unlock()
		return JoinResponse{}, fmt.Errorf("hub: join rejected: %s", reason)
	}

	lifecycle.PlayerJoined(context.Background(), h.pub, uint64(snap.Frame), playerRef(netID), lifecycle.PlayerJoinedPayload{
		Nickname: nickname,
		SpawnX:   h.cfg.Session.SpawnPoint.X,
		SpawnY:   h.cfg.Session.SpawnPoint.Y,
	}, nil)

	return JoinResponse{
		Ver:         ProtocolVersion,
		Token:       token,
		NetID:       netID,
		Frame:       uint64(snap.Frame),
		Players:     snap.Players,
		Objects:     snap.Objects,
		KeyframeSeq: h.keyframeSeq.Load(),
		Config:      h.sessionConfig(),
	}, nil
}

// Subscribe attaches a connection to a joined session and sends the newest
// keyframe as its baseline. An existing connection for the same token is
// replaced and closed.
func (h *Hub) Subscribe(token string, conn Conn) (*Remote, error) {
	if conn == nil {
		return nil, errors.New("hub: nil connection")
	}

	h.mu.Lock()
	r, ok := h.sessions[token]
	if !ok {
		h.mu.Unlock()
		return nil, ErrUnknownSession
	}
	old := r.attach(conn)
	r.lastHeartbeat = time.Now()
	h.mu.Unlock()

	if old != nil {
		old.Close()
		replication.SubscriberDropped(context.Background(), h.pub, h.Frame(), playerRef(r.netID), replication.SubscriberDroppedPayload{
			Reason: "replaced",
		}, nil)
	}

	// The newest recorded keyframe is never evicted before the next record,
	// so this lookup can only miss if the hub was built without one.
	kf, found := h.journal.KeyframeBySequence(h.keyframeSeq.Load())
	if !found {
		h.Disconnect(r, "no_baseline")
		return nil, errors.New("hub: no baseline keyframe")
	}
	data, err := json.Marshal(h.keyframeMessageFor(kf))
	if err != nil {
		h.log.Printf("hub: failed to marshal baseline keyframe: %v", err)
		h.Disconnect(r, "encode_failed")
		return nil, err
	}
	if err := r.Send(data); err != nil {
		h.Disconnect(r, "write_failed")
		return nil, err
	}
	return r, nil
}

// Disconnect tears a session down: the connection closes, the identity is
// released and the simulation despawns the player on its next frame. It is
// idempotent; late calls with a stale handle are no-ops.
func (h *Hub) Disconnect(r *Remote, reason string) {
	if r == nil {
		return
	}

	h.mu.Lock()
	if _, ok := h.sessions[r.token]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, r.token)
	delete(h.byPlayer, r.netID)
	conn := r.detach()
	h.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	cmd := sim.Command{
		Player:   r.netID,
		Type:     sim.CommandDisconnect,
		IssuedAt: time.Now(),
	}
	if ok, _ := h.loop.Enqueue(cmd); !ok {
		h.mu.Lock()
		h.pendingDisconnects = append(h.pendingDisconnects, r.netID)
		h.mu.Unlock()
	}

	h.forceKeyframe.Store(true)
	lifecycle.PlayerDisconnected(context.Background(), h.pub, h.Frame(), playerRef(r.netID), lifecycle.PlayerDisconnectedPayload{
		Reason: reason,
	}, nil)
}

// Move stages an absolute position intent for the session's player.
func (h *Hub) Move(r *Remote, x, y float64) (sim.Command, bool, string) {
	if r == nil {
		return sim.Command{}, false, sim.CommandRejectMalformed
	}
	cmd := sim.Command{
		OriginFrame: sim.FrameNumber(h.Frame()),
		Player:      r.netID,
		Type:        sim.CommandMove,
		IssuedAt:    time.Now(),
		Move:        &sim.MoveCommand{Pos: sim.Point{X: x, Y: y}},
	}
	ok, reason := h.loop.Enqueue(cmd)
	return cmd, ok, reason
}

// Heartbeat stages a connectivity probe. The acknowledgement is written back
// once the loop hands the command to the hub on the step goroutine.
func (h *Hub) Heartbeat(r *Remote, clientSent int64) bool {
	if r == nil {
		return false
	}
	now := time.Now()
	cmd := sim.Command{
		Player:   r.netID,
		Type:     sim.CommandHeartbeat,
		IssuedAt: now,
		Heartbeat: &sim.HeartbeatCommand{
			ReceivedAt: now,
			ClientSent: clientSent,
		},
	}
	ok, _ := h.loop.Enqueue(cmd)
	return ok
}

// SpawnObject stages a level editor spawn.
func (h *Hub) SpawnObject(obj sim.LevelObject) (sim.Command, bool, string) {
	cmd := sim.Command{
		OriginFrame: sim.FrameNumber(h.Frame()),
		Type:        sim.CommandSpawnObject,
		IssuedAt:    time.Now(),
		Object:      &sim.ObjectCommand{Object: obj},
	}
	ok, reason := h.loop.Enqueue(cmd)
	return cmd, ok, reason
}

// UpdateObject stages a level editor descriptor replacement.
func (h *Hub) UpdateObject(obj sim.LevelObject) (sim.Command, bool, string) {
	cmd := sim.Command{
		OriginFrame: sim.FrameNumber(h.Frame()),
		Type:        sim.CommandUpdateObject,
		IssuedAt:    time.Now(),
		Object:      &sim.ObjectCommand{Object: obj},
	}
	ok, reason := h.loop.Enqueue(cmd)
	return cmd, ok, reason
}

// DespawnObject stages a level editor removal.
func (h *Hub) DespawnObject(netID sim.EntityNetID) (sim.Command, bool, string) {
	cmd := sim.Command{
		OriginFrame:   sim.FrameNumber(h.Frame()),
		Type:          sim.CommandDespawnObject,
		IssuedAt:      time.Now(),
		ObjectRemoval: &sim.ObjectRemovalCommand{NetID: netID},
	}
	ok, reason := h.loop.Enqueue(cmd)
	return cmd, ok, reason
}

// RecordAck stores the newest broadcast sequence a client confirmed.
// Regressions are reported and ignored so a replayed ack cannot rewind the
// delivery cursor.
func (h *Hub) RecordAck(r *Remote, ack uint64) {
	if r == nil {
		return
	}
	prev := r.lastAck.Load()
	if ack < prev {
		h.metrics.Add(metricAckRegression, 1)
		network.AckRegression(context.Background(), h.pub, h.Frame(), playerRef(r.netID), network.AckPayload{
			Previous: prev,
			Ack:      ack,
		}, nil)
		return
	}
	if ack == prev {
		return
	}
	r.lastAck.Store(ack)
	network.AckAdvanced(context.Background(), h.pub, h.Frame(), playerRef(r.netID), network.AckPayload{
		Previous: prev,
		Ack:      ack,
	}, nil)
}

// HandleKeyframeRequest serves a retained keyframe, or a nack naming the
// retained window when the sequence is gone. Misses feed the resync policy.
// A non-nil error means the session was disconnected by a failed write.
func (h *Hub) HandleKeyframeRequest(r *Remote, sequence uint64) error {
	if r == nil {
		return nil
	}

	if kf, ok := h.journal.KeyframeBySequence(sequence); ok {
		data, err := json.Marshal(h.keyframeMessageFor(kf))
		if err != nil {
			h.log.Printf("hub: failed to marshal keyframe %d: %v", sequence, err)
			return nil
		}
		if err := r.Send(data); err != nil {
			h.Disconnect(r, "write_failed")
			return err
		}
		return nil
	}

	h.journal.NoteKeyframeMiss(sequence)
	_, oldest, newest := h.journal.KeyframeWindow()
	replication.KeyframeMiss(context.Background(), h.pub, h.Frame(), playerRef(r.netID), replication.KeyframeMissPayload{
		Sequence:       sequence,
		OldestSequence: oldest,
		NewestSequence: newest,
	}, nil)

	nack := keyframeNackMessage{
		Ver:      ProtocolVersion,
		Type:     "keyframeNack",
		Sequence: sequence,
		Reason:   "unavailable",
		Oldest:   oldest,
		Newest:   newest,
		Resync:   true,
	}
	data, err := json.Marshal(nack)
	if err != nil {
		h.log.Printf("hub: failed to marshal keyframe nack: %v", err)
		return nil
	}
	if err := r.Send(data); err != nil {
		h.Disconnect(r, "write_failed")
		return err
	}
	return nil
}

// SetKeyframeInterval applies a requested keyframe cadence in broadcasts,
// clamped to the supported range. Non-positive requests restore the
// configured default. Returns the applied cadence.
func (h *Hub) SetKeyframeInterval(requested int) int {
	applied := requested
	if applied <= 0 {
		applied = h.cfg.KeyframeInterval
	}
	if applied > maxKeyframeInterval {
		applied = maxKeyframeInterval
	}
	h.keyframeEvery.Store(int32(applied))
	return applied
}

// ForceKeyframe schedules a keyframe on the next broadcast regardless of
// cadence.
func (h *Hub) ForceKeyframe() {
	h.forceKeyframe.Store(true)
}

// DiagnosticsSnapshot exposes connectivity metadata for every live session,
// ordered by net id.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsPlayer {
	h.mu.Lock()
	players := make([]DiagnosticsPlayer, 0, len(h.sessions))
	for _, r := range h.sessions {
		players = append(players, DiagnosticsPlayer{
			Ver:           ProtocolVersion,
			NetID:         uint16(r.netID),
			Nickname:      r.nickname,
			LastHeartbeat: r.lastHeartbeat.UnixMilli(),
			RTTMillis:     r.lastRTT.Milliseconds(),
			LastAck:       r.lastAck.Load(),
		})
	}
	h.mu.Unlock()

	sort.Slice(players, func(i, j int) bool { return players[i].NetID < players[j].NetID })
	return players
}

// AdvanceFrames runs n frames synchronously on the caller's goroutine,
// driving the same per-frame path Run drives. Deterministic harnesses and
// profiling builds use it; production servers use Run.
func (h *Hub) AdvanceFrames(n int) {
	interval := h.loop.Session().Clock().FrameDuration()
	for i := 0; i < n; i++ {
		now := time.Now()
		step := sim.LoopStepContext{
			Frame: h.loop.Session().Clock().CurrentFrame(),
			Now:   now,
			Delta: interval.Seconds(),
		}
		result := h.loop.Advance(step)
		result.Duration = time.Since(now)
		result.Budget = interval
		h.afterStep(result)
	}
}

// afterStep is the loop's per-frame hook: it journals the frame's patches,
// publishes domain events and runs the broadcast cadence.
func (h *Hub) afterStep(res sim.LoopStepResult) {
	h.journal.AppendPatches(h.loop.Session().DrainPatches())
	h.publishStepEvents(res)
	h.observeBudget(res)
	h.retryDisconnects()

	h.framesUntilBroadcast--
	if h.framesUntilBroadcast > 0 {
		return
	}
	h.framesUntilBroadcast = h.cfg.FramesPerBroadcast
	h.broadcast()
}

// broadcast assembles and sends one state message. It runs on the step
// goroutine; subscriber writes leave the hub mutex free so Disconnect can
// take it.
func (h *Hub) broadcast() {
	snap := h.loop.Session().Snapshot()
	h.mu.Lock()
	h.latest = snap
	h.mu.Unlock()

	h.pruneStale(time.Now())

	resync := false
	if signal, ok := h.journal.ConsumeResyncHint(); ok {
		resync = true
		h.forceKeyframe.Store(true)
		replication.ResyncScheduled(context.Background(), h.pub, uint64(snap.Frame), replication.ResyncScheduledPayload{
			Misses:      signal.Misses,
			TotalEvents: signal.TotalEvents,
			Summary:     signal.Summary(),
		}, nil)
	}

	force := h.forceKeyframe.Swap(false)
	h.broadcastsUntilKeyframe--
	if force || h.broadcastsUntilKeyframe <= 0 {
		h.recordKeyframe(snap)
		h.broadcastsUntilKeyframe = int(h.keyframeEvery.Load())
	}

	patches := h.journal.DrainPatches()
	if patches == nil {
		patches = []sim.Patch{}
	}
	msg := stateMessage{
		Ver:              ProtocolVersion,
		Type:             "state",
		Patches:          patches,
		Frame:            uint64(snap.Frame),
		Sequence:         h.broadcastSeq.Add(1),
		KeyframeSeq:      h.keyframeSeq.Load(),
		ServerTime:       time.Now().UnixMilli(),
		Resync:           resync,
		KeyframeInterval: int(h.keyframeEvery.Load()),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.journal.RestorePatches(patches)
		h.log.Printf("hub: failed to marshal state message: %v", err)
		return
	}

	for _, r := range h.subscribersSnapshot() {
		if err := r.Send(data); err != nil {
			h.metrics.Add(metricWriteFailed, 1)
			h.log.Printf("hub: dropping player %d: state write failed: %v", r.netID, err)
			h.Disconnect(r, "write_failed")
		}
	}
}

// recordKeyframe stores a snapshot in the journal under the next keyframe
// sequence. Only the step goroutine (or the constructor) calls it, keeping
// sequences monotonic.
func (h *Hub) recordKeyframe(snap sim.Snapshot) {
	seq := h.keyframeSeq.Add(1)
	result := h.journal.RecordKeyframe(journal.Keyframe{
		Sequence: seq,
		Frame:    snap.Frame,
		Snapshot: snap,
	})
	replication.KeyframeRecorded(context.Background(), h.pub, uint64(snap.Frame), replication.KeyframeRecordedPayload{
		Sequence:   seq,
		WindowSize: result.Size,
		Evicted:    len(result.Evicted),
	}, nil)
}

// publishStepEvents translates the frame's domain events into log events.
// Lookups against the session are safe here: the hook runs on the step
// goroutine after the frame committed.
func (h *Hub) publishStepEvents(res sim.LoopStepResult) {
	ctx := context.Background()
	for _, ev := range res.Result.Events {
		switch ev := ev.(type) {
		case sim.PlayerDeath:
			payload := lifecycle.PlayerDiedPayload{}
			if p, ok := h.loop.Session().Player(ev.NetID); ok {
				payload.Deaths = p.Deaths
				if p.Respawn != nil {
					payload.RespawnFrame = uint64(p.Respawn.Frame)
				}
			}
			lifecycle.PlayerDied(ctx, h.pub, uint64(ev.Frame), playerRef(ev.NetID), ev.InstanceID, payload, nil)
		case sim.PlayerFinish:
			payload := lifecycle.PlayerFinishedPayload{}
			if p, ok := h.loop.Session().Player(ev.NetID); ok {
				payload.Finishes = p.Finishes
				if p.Respawn != nil {
					payload.RespawnFrame = uint64(p.Respawn.Frame)
				}
			}
			lifecycle.PlayerFinished(ctx, h.pub, uint64(ev.Frame), playerRef(ev.NetID), ev.InstanceID, payload, nil)
		case sim.CollisionLogicChanged:
			replication.ObjectLogicChanged(ctx, h.pub, uint64(ev.Frame), objectRef(ev.NetID), ev.InstanceID, replication.ObjectLogicChangedPayload{
				Logic: string(ev.Logic),
			}, nil)
		}
	}
}

// observeBudget reports frames that blew their wall-clock budget and the
// start of catch-up clamping after a stall.
func (h *Hub) observeBudget(res sim.LoopStepResult) {
	if res.Budget > 0 && res.Duration > res.Budget {
		h.overrunStreak++
		h.metrics.Add(metricFrameOverrun, 1)
		simulation.FrameBudgetOverrun(context.Background(), h.pub, uint64(res.Result.Frame), simulation.FrameBudgetOverrunPayload{
			DurationMillis: res.Duration.Milliseconds(),
			BudgetMillis:   res.Budget.Milliseconds(),
			Ratio:          float64(res.Duration) / float64(res.Budget),
			Streak:         h.overrunStreak,
		}, nil)
	} else {
		h.overrunStreak = 0
	}

	if res.ClampedDelta && !h.wasClamped {
		simulation.CatchupClamped(context.Background(), h.pub, uint64(res.Result.Frame), simulation.CatchupClampedPayload{
			DeltaSeconds: res.Delta,
			StepsRun:     h.cfg.Loop.CatchupMaxFrames,
		}, nil)
	}
	h.wasClamped = res.ClampedDelta
}

// completeHeartbeat finishes a heartbeat command routed back by the loop:
// liveness bookkeeping plus the acknowledgement write.
func (h *Hub) completeHeartbeat(cmd sim.Command) {
	hb := cmd.Heartbeat
	if hb == nil {
		return
	}
	receivedAt := hb.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	h.mu.Lock()
	r, ok := h.byPlayer[cmd.Player]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.lastHeartbeat = receivedAt
	rtt := r.lastRTT
	if hb.ClientSent > 0 {
		clientTime := time.UnixMilli(hb.ClientSent)
		if clientTime.Before(receivedAt.Add(heartbeatSkewWindow)) {
			rtt = receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			r.lastRTT = rtt
		}
	}
	h.mu.Unlock()

	ack := heartbeatMessage{
		Ver:        ProtocolVersion,
		Type:       "heartbeat",
		ServerTime: time.Now().UnixMilli(),
		ClientTime: hb.ClientSent,
		RTTMillis:  rtt.Milliseconds(),
	}
	data, err := json.Marshal(ack)
	if err != nil {
		h.log.Printf("hub: failed to marshal heartbeat ack: %v", err)
		return
	}
	if err := r.Send(data); err != nil {
		h.Disconnect(r, "write_failed")
	}
}

// noteCommandDrop surfaces intake rejections that already bounced back to
// the issuing client, so operators see the pattern too.
func (h *Hub) noteCommandDrop(reason string, cmd sim.Command) {
	h.metrics.Add(metricCommandDrop, 1)
	network.CommandRejected(context.Background(), h.pub, h.Frame(), playerRef(cmd.Player), "", network.CommandRejectedPayload{
		CommandType: string(cmd.Type),
		Reason:      reason,
	}, nil)
}

// noteQueuePressure surfaces intake backlog crossings reported by the loop.
func (h *Hub) noteQueuePressure(length int) {
	h.metrics.Add(metricQueueSaturated, 1)
	simulation.CommandQueueSaturated(context.Background(), h.pub, h.Frame(), simulation.CommandQueueSaturatedPayload{
		Pending:  length,
		Capacity: h.cfg.Loop.CommandCapacity,
	}, nil)
}

// pruneStale disconnects sessions whose heartbeats stopped.
func (h *Hub) pruneStale(now time.Time) {
	var stale []*Remote
	h.mu.Lock()
	for _, r := range h.sessions {
		if now.Sub(r.lastHeartbeat) > h.cfg.DisconnectAfter {
			stale = append(stale, r)
		}
	}
	h.mu.Unlock()

	for _, r := range stale {
		h.metrics.Add(metricHeartbeatTimeout, 1)
		h.log.Printf("hub: disconnecting player %d: heartbeat timeout", r.netID)
		h.Disconnect(r, "heartbeat_timeout")
	}
}

// retryDisconnects re-stages despawn commands that were rejected by a full
// intake queue, so a dropped session cannot leave a ghost player behind.
func (h *Hub) retryDisconnects() {
	h.mu.Lock()
	pending := h.pendingDisconnects
	h.pendingDisconnects = nil
	h.mu.Unlock()

	for _, netID := range pending {
		cmd := sim.Command{Player: netID, Type: sim.CommandDisconnect, IssuedAt: time.Now()}
		if ok, _ := h.loop.Enqueue(cmd); !ok {
			h.mu.Lock()
			h.pendingDisconnects = append(h.pendingDisconnects, netID)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) subscribersSnapshot() []*Remote {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*Remote, 0, len(h.sessions))
	for _, r := range h.sessions {
		if r.attached() {
			subs = append(subs, r)
		}
	}
	return subs
}

func (h *Hub) keyframeMessageFor(kf journal.Keyframe) keyframeMessage {
	return keyframeMessage{
		Ver:      ProtocolVersion,
		Type:     "keyframe",
		Sequence: kf.Sequence,
		Frame:    uint64(kf.Frame),
		Players:  kf.Snapshot.Players,
		Objects:  kf.Snapshot.Objects,
		Config:   h.sessionConfig(),
	}
}

func (h *Hub) sessionConfig() SessionConfig {
	return SessionConfig{
		SimulationsPerSecond: h.loop.Session().Clock().SimulationsPerSecond(),
		RespawnFrames:        h.cfg.Session.RespawnFrames,
		FramesPerBroadcast:   h.cfg.FramesPerBroadcast,
		KeyframeInterval:     int(h.keyframeEvery.Load()),
		SpawnX:               h.cfg.Session.SpawnPoint.X,
		SpawnY:               h.cfg.Session.SpawnPoint.Y,
	}
}

// allocateNetIDLocked hands out the next free player net id. Ids already
// held by live sessions or still visible in the replicated snapshot are
// skipped, so a quick rejoin cannot collide with a record the simulation
// has not garbage collected yet.
func (h *Hub) allocateNetIDLocked() (sim.PlayerNetID, error) {
	inSnapshot := make(map[sim.PlayerNetID]struct{}, len(h.latest.Players))
	for _, p := range h.latest.Players {
		inSnapshot[p.NetID] = struct{}{}
	}
	for tries := 0; tries < 1<<16; tries++ {
		h.nextNetID++
		if h.nextNetID == 0 {
			h.nextNetID = 1
		}
		if _, live := h.byPlayer[h.nextNetID]; live {
			continue
		}
		if _, ghost := inSnapshot[h.nextNetID]; ghost {
			continue
		}
		return h.nextNetID, nil
	}
	return 0, errors.New("hub: no free player net ids")
}

func playerRef(netID sim.PlayerNetID) logging.EntityRef {
	return logging.EntityRef{ID: sim.PlayerEntityID(netID), Kind: logging.EntityKindPlayer}
}

func objectRef(netID sim.EntityNetID) logging.EntityRef {
	return logging.EntityRef{ID: sim.ObjectEntityID(netID), Kind: logging.EntityKindObject}
}
