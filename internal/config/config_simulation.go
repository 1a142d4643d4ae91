package config

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// maxSimulationsPerSecond keeps the frame duration at one millisecond or
// more; shorter frames cannot be scheduled reliably.
const maxSimulationsPerSecond = 1000

// SimulationConfig tunes the deterministic frame engine. Zero values fall
// back to the simulation defaults.
type SimulationConfig struct {
	SimulationsPerSecond int     `json:"simulations_per_second"`
	RespawnFrames        uint32  `json:"respawn_frames"`
	SpawnX               float64 `json:"spawn_x"`
	SpawnY               float64 `json:"spawn_y"`
}

func (c *SimulationConfig) Validate() error {
	el := errors.NewErrorList()

	if c.SimulationsPerSecond < 0 {
		el.Add(fmt.Errorf("simulations_per_second must not be negative"))
	}
	if c.SimulationsPerSecond > maxSimulationsPerSecond {
		el.Add(fmt.Errorf("simulations_per_second must be at most %d", maxSimulationsPerSecond))
	}

	return el.Err()
}
