// Profiling:
// go build ./profile/frames
// go tool pprof -http=":8000" -nodefraction=0.001 ./frames cpu.pprof

package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/profile"

	"gridrun/server/internal/hub"
	"gridrun/server/internal/sim"
)

func main() {
	players := 64
	objects := 256
	batches := 200
	framesPerBatch := 60

	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(players, objects, batches, framesPerBatch)
	p.Stop()
}

func run(players, objects, batches, framesPerBatch int) {
	h := hub.New(hub.Config{}, hub.Deps{})
	rng := rand.New(rand.NewSource(1))

	ids := make([]sim.PlayerNetID, 0, players)
	for i := 0; i < players; i++ {
		join, err := h.Join(fmt.Sprintf("bot-%d", i))
		if err != nil {
			panic(err)
		}
		ids = append(ids, join.NetID)
	}

	for i := 1; i <= objects; i++ {
		kind := sim.ShapeCube
		logic := sim.LogicNone
		switch i % 4 {
		case 0:
			kind = sim.ShapePlane
		case 1:
			logic = sim.LogicDeath
		case 2:
			logic = sim.LogicFinish
		}
		h.SpawnObject(sim.LevelObject{
			NetID: sim.EntityNetID(i),
			Desc: sim.LevelObjectDesc{
				Kind: kind,
				Size: 1 + rng.Float64()*4,
				Pos:  sim.Point{X: rng.Float64() * 200, Y: rng.Float64() * 200},
			},
			Logic: logic,
		})
	}
	h.AdvanceFrames(1)

	for b := 0; b < batches; b++ {
		now := time.Now()
		for _, id := range ids {
			h.Loop().Enqueue(sim.Command{
				OriginFrame: sim.FrameNumber(h.Frame()),
				Player:      id,
				Type:        sim.CommandMove,
				IssuedAt:    now,
				Move: &sim.MoveCommand{
					Pos: sim.Point{X: rng.Float64() * 200, Y: rng.Float64() * 200},
				},
			})
		}
		h.AdvanceFrames(framesPerBatch)
	}
}
