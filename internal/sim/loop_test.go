package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"gridrun/server/internal/telemetry"
)

func newTestLoop(cfg LoopConfig, hooks LoopHooks, metrics telemetry.Metrics) *Loop {
	session := NewSession(Config{}, Deps{Metrics: metrics})
	return NewLoop(session, cfg, hooks)
}

func TestLoopRoutesCommandsIntoTheFrame(t *testing.T) {
	loop := newTestLoop(LoopConfig{}, LoopHooks{}, nil)

	accept := func(cmd Command) {
		t.Helper()
		if ok, reason := loop.Enqueue(cmd); !ok {
			t.Fatalf("enqueue %s rejected: %s", cmd.Type, reason)
		}
	}
	accept(Command{Type: CommandJoin, Player: 7, Join: &JoinCommand{Nickname: "a", Start: Point{X: 1}}})
	accept(Command{Type: CommandMove, Player: 7, Move: &MoveCommand{Pos: Point{X: 5, Y: 5}}})
	accept(Command{Type: CommandSpawnObject, Object: &ObjectCommand{Object: cubeObject(2, LogicDeath), Frame: 0}})

	result := loop.Advance(LoopStepContext{Frame: 0, Now: time.Now()})
	if result.Result.Frame != 0 {
		t.Fatalf("advanced frame = %d, want 0", result.Result.Frame)
	}
	if len(result.Commands) != 3 {
		t.Fatalf("consumed %d commands, want 3", len(result.Commands))
	}
	if loop.Pending() != 0 {
		t.Fatalf("pending = %d after advance, want 0", loop.Pending())
	}

	session := loop.Session()
	p, ok := session.Player(7)
	if !ok {
		t.Fatal("join command did not spawn the player")
	}
	if p.Position != (Point{X: 5, Y: 5}) {
		t.Fatalf("position = %+v, want the move applied in the same frame", p.Position)
	}
	if _, ok := session.ObjectEntity(2); !ok {
		t.Fatal("object command did not spawn the object")
	}
}

func TestLoopPerPlayerThrottle(t *testing.T) {
	var drops []string
	loop := newTestLoop(
		LoopConfig{PerPlayerLimit: 2},
		LoopHooks{OnCommandDrop: func(reason string, _ Command) { drops = append(drops, reason) }},
		nil,
	)

	move := Command{Type: CommandMove, Player: 9, Move: &MoveCommand{}}
	for i := 0; i < 2; i++ {
		if ok, _ := loop.Enqueue(move); !ok {
			t.Fatalf("enqueue %d rejected under the limit", i)
		}
	}
	ok, reason := loop.Enqueue(move)
	if ok || reason != CommandRejectQueueLimit {
		t.Fatalf("third enqueue = %v/%s, want queue_limit rejection", ok, reason)
	}
	if len(drops) != 1 || drops[0] != CommandRejectQueueLimit {
		t.Fatalf("drop hook saw %v", drops)
	}

	// Editor commands carry no player id and bypass the per-player limit.
	for i := 0; i < 5; i++ {
		if ok, reason := loop.Enqueue(Command{Type: CommandSpawnObject, Object: &ObjectCommand{}}); !ok {
			t.Fatalf("editor enqueue rejected: %s", reason)
		}
	}

	// The counter resets once a frame consumes the queue.
	loop.Advance(LoopStepContext{})
	if ok, _ := loop.Enqueue(move); !ok {
		t.Fatal("enqueue rejected after the frame drained the queue")
	}
}

func TestLoopQueueFull(t *testing.T) {
	loop := newTestLoop(LoopConfig{CommandCapacity: 2}, LoopHooks{}, nil)

	loop.Enqueue(Command{Type: CommandMove, Player: 1, Move: &MoveCommand{}})
	loop.Enqueue(Command{Type: CommandMove, Player: 2, Move: &MoveCommand{}})
	ok, reason := loop.Enqueue(Command{Type: CommandMove, Player: 3, Move: &MoveCommand{}})
	if ok || reason != CommandRejectQueueFull {
		t.Fatalf("overflow enqueue = %v/%s, want queue_full rejection", ok, reason)
	}
}

func TestLoopHeartbeatGoesToHookNotSession(t *testing.T) {
	var beats int
	loop := newTestLoop(LoopConfig{}, LoopHooks{
		OnHeartbeat: func(cmd Command) {
			if cmd.Player != 3 {
				t.Fatalf("heartbeat player = %d, want 3", cmd.Player)
			}
			beats++
		},
	}, nil)

	loop.Enqueue(Command{Type: CommandHeartbeat, Player: 3, Heartbeat: &HeartbeatCommand{ClientSent: 99}})
	loop.Advance(LoopStepContext{})

	if beats != 1 {
		t.Fatalf("heartbeat hook fired %d times, want 1", beats)
	}
	if got := loop.Session().store.Len(); got != 0 {
		t.Fatalf("heartbeat created %d entities", got)
	}
}

func TestLoopCountsMalformedCommands(t *testing.T) {
	counters := telemetry.NewCounters()
	var dropped []string
	loop := newTestLoop(LoopConfig{}, LoopHooks{
		OnCommandDrop: func(reason string, _ Command) { dropped = append(dropped, reason) },
	}, counters)

	loop.Enqueue(Command{Type: CommandJoin, Player: 7})
	loop.Enqueue(Command{Type: "Teleport", Player: 7})
	loop.Advance(LoopStepContext{})

	if got := counters.Snapshot()[metricCommandMalformed]; got != 2 {
		t.Fatalf("malformed counter = %d, want 2", got)
	}
	if len(dropped) != 1 || dropped[0] != CommandRejectMalformed {
		t.Fatalf("drop hook saw %v, want one malformed", dropped)
	}
	if _, ok := loop.Session().Player(7); ok {
		t.Fatal("bodyless join spawned a player")
	}
}

func TestLoopQueueWarningFires(t *testing.T) {
	var warned []int
	loop := newTestLoop(
		LoopConfig{WarningStep: 2},
		LoopHooks{OnQueueWarning: func(length int) { warned = append(warned, length) }},
		nil,
	)

	for i := 0; i < 4; i++ {
		loop.Enqueue(Command{Type: CommandMove, Player: 1, Move: &MoveCommand{}})
	}
	if len(warned) != 2 || warned[0] != 2 || warned[1] != 4 {
		t.Fatalf("warnings = %v, want [2 4]", warned)
	}
}

func TestLoopRunStepsUntilCancelled(t *testing.T) {
	var steps atomic.Int64
	session := NewSession(Config{SimulationsPerSecond: 200}, Deps{})
	loop := NewLoop(session, LoopConfig{}, LoopHooks{
		AfterStep: func(LoopStepResult) { steps.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for steps.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("loop produced fewer than 3 steps in 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
	if got := session.Clock().CurrentFrame(); got < 3 {
		t.Fatalf("clock advanced to %d, want at least 3", got)
	}
}
