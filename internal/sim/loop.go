package sim

import (
	"context"
	"sync"
	"time"

	"gridrun/server/internal/telemetry"
)

const (
	// CommandRejectQueueLimit marks a command dropped by per-player
	// throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull marks a command dropped because the buffer is
	// saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectMalformed marks a command missing its typed body.
	CommandRejectMalformed = "malformed"
)

const metricCommandMalformed = "sim_command_malformed"

// LoopConfig tunes command intake and the fixed-step runner. Zero values
// fall back to the package defaults.
type LoopConfig struct {
	CatchupMaxFrames int
	CommandCapacity  int
	PerPlayerLimit   int
	WarningStep      int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.CatchupMaxFrames < 1 {
		c.CatchupMaxFrames = DefaultCatchupMaxFrames
	}
	if c.CommandCapacity < 1 {
		c.CommandCapacity = DefaultCommandCapacity
	}
	return c
}

// LoopStepContext describes one frame step before it executes.
type LoopStepContext struct {
	Frame FrameNumber
	Now   time.Time
	Delta float64
}

// LoopStepResult reports one executed frame plus scheduling diagnostics.
type LoopStepResult struct {
	Result       StepResult
	Commands     []Command
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
}

// LoopHooks lets the transport layer observe the runner without touching
// simulation state directly. All hooks run on the step goroutine.
type LoopHooks struct {
	Prepare        func(LoopStepContext)
	AfterStep      func(LoopStepResult)
	OnHeartbeat    func(Command)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// Loop owns the step goroutine: it drains staged commands into the session
// and advances it at the session's fixed frame rate. Everything else
// interacts through Enqueue.
type Loop struct {
	session *Session
	buffer  *CommandBuffer
	hooks   LoopHooks
	config  LoopConfig
	log     telemetry.Logger
	metrics telemetry.Metrics

	queueMu        sync.Mutex
	perPlayerCount map[PlayerNetID]int
	dropCounts     map[PlayerNetID]uint64
}

// NewLoop wraps a session with a command buffer and a fixed-step runner.
func NewLoop(session *Session, cfg LoopConfig, hooks LoopHooks) *Loop {
	if session == nil {
		return nil
	}
	cfg = cfg.withDefaults()
	return &Loop{
		session:        session,
		buffer:         NewCommandBuffer(cfg.CommandCapacity, session.metrics),
		hooks:          hooks,
		config:         cfg,
		log:            session.log,
		metrics:        session.metrics,
		perPlayerCount: make(map[PlayerNetID]int),
		dropCounts:     make(map[PlayerNetID]uint64),
	}
}

// Session exposes the wrapped session for read access.
func (l *Loop) Session() *Session {
	if l == nil {
		return nil
	}
	return l.session
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Enqueue stages a command, enforcing per-player throttling and buffer
// capacity. It reports whether the command was accepted and, if not, the
// drop reason.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	reason := ""
	var dropCount uint64
	l.queueMu.Lock()
	if l.config.PerPlayerLimit > 0 && cmd.Player != 0 {
		count := l.perPlayerCount[cmd.Player]
		if count >= l.config.PerPlayerLimit {
			reason = CommandRejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.Player)
		} else {
			l.perPlayerCount[cmd.Player] = count + 1
		}
	}
	if reason == "" {
		if !l.buffer.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = l.incrementDropLocked(cmd.Player)
		} else if l.config.WarningStep > 0 {
			length := l.buffer.Len()
			if length >= l.config.WarningStep && length%l.config.WarningStep == 0 {
				l.queueMu.Unlock()
				if l.hooks.OnQueueWarning != nil {
					l.hooks.OnQueueWarning(length)
				}
				return true, ""
			}
		}
	}
	l.queueMu.Unlock()
	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	return true, ""
}

// Advance executes a single frame using the staged commands. It must only
// run on the step goroutine; Run is the usual driver.
func (l *Loop) Advance(ctx LoopStepContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	commands := l.drainCommands()
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}
	l.route(commands)
	result := l.session.Step()
	return LoopStepResult{
		Result:   result,
		Commands: commands,
		Now:      ctx.Now,
		Delta:    ctx.Delta,
	}
}

// Run drives the fixed-step loop until the context is cancelled. Late wakes
// catch up with extra frames, bounded by CatchupMaxFrames so a long stall
// cannot freeze the process in a spiral of work.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil {
		return nil
	}
	interval := l.session.Clock().FrameDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			if dt <= 0 {
				dt = interval
			}
			last = now

			steps := int(dt / interval)
			if steps < 1 {
				steps = 1
			}
			clamped := false
			if steps > l.config.CatchupMaxFrames {
				steps = l.config.CatchupMaxFrames
				clamped = true
			}
			for i := 0; i < steps; i++ {
				step := LoopStepContext{
					Frame: l.session.cursor(),
					Now:   now,
					Delta: dt.Seconds(),
				}
				start := time.Now()
				result := l.Advance(step)
				result.Duration = time.Since(start)
				result.Budget = interval
				result.ClampedDelta = clamped
				if l.hooks.AfterStep != nil {
					l.hooks.AfterStep(result)
				}
			}
		}
	}
}

// route translates wire commands into session intents. Unroutable commands
// are counted, never fatal; the step must survive any input.
func (l *Loop) route(commands []Command) {
	for _, cmd := range commands {
		switch cmd.Type {
		case CommandJoin:
			if cmd.Join == nil {
				l.rejectMalformed(cmd)
				continue
			}
			l.session.EnqueueSpawnPlayer(SpawnPlayer{
				NetID:    cmd.Player,
				Nickname: cmd.Join.Nickname,
				Start:    cmd.Join.Start,
			})
		case CommandMove:
			if cmd.Move == nil {
				l.rejectMalformed(cmd)
				continue
			}
			l.session.EnqueueMovePlayer(MovePlayer{NetID: cmd.Player, Pos: cmd.Move.Pos})
		case CommandDisconnect:
			l.session.DisconnectPlayer(cmd.Player)
		case CommandHeartbeat:
			if l.hooks.OnHeartbeat != nil {
				l.hooks.OnHeartbeat(cmd)
			}
		case CommandSpawnObject:
			if cmd.Object == nil {
				l.rejectMalformed(cmd)
				continue
			}
			l.session.EnqueueSpawnLevelObject(SpawnLevelObject(*cmd.Object))
		case CommandUpdateObject:
			if cmd.Object == nil {
				l.rejectMalformed(cmd)
				continue
			}
			l.session.EnqueueUpdateLevelObject(UpdateLevelObject(*cmd.Object))
		case CommandDespawnObject:
			if cmd.ObjectRemoval == nil {
				l.rejectMalformed(cmd)
				continue
			}
			l.session.EnqueueDespawnLevelObject(DespawnLevelObject(*cmd.ObjectRemoval))
		default:
			l.log.Printf("sim: unroutable command type %q from player %d", cmd.Type, cmd.Player)
			l.metrics.Add(metricCommandMalformed, 1)
		}
	}
}

func (l *Loop) rejectMalformed(cmd Command) {
	l.log.Printf("sim: %s command from player %d missing its body", cmd.Type, cmd.Player)
	l.metrics.Add(metricCommandMalformed, 1)
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(CommandRejectMalformed, cmd)
	}
}

func (l *Loop) drainCommands() []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	commands := l.buffer.Drain()
	if len(l.perPlayerCount) > 0 {
		l.perPlayerCount = make(map[PlayerNetID]int)
	}
	return commands
}

func (l *Loop) incrementDropLocked(player PlayerNetID) uint64 {
	if player == 0 {
		return 0
	}
	count := l.dropCounts[player] + 1
	l.dropCounts[player] = count
	return count
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	// Power-of-two sampling keeps a misbehaving client from flooding the log.
	if count > 0 && count&(count-1) == 0 {
		l.log.Printf(
			"sim: dropping command player=%d type=%s reason=%s count=%d",
			cmd.Player,
			cmd.Type,
			reason,
			count,
		)
	}
}
