package config

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// IntakeConfig caps the command queue. Zero values fall back to the loop
// defaults; a zero per-player limit disables throttling.
type IntakeConfig struct {
	CommandCapacity  int `json:"command_capacity"`
	PerPlayerLimit   int `json:"per_player_limit"`
	CatchupMaxFrames int `json:"catchup_max_frames"`
}

func (c *IntakeConfig) Validate() error {
	el := errors.NewErrorList()

	if c.CommandCapacity < 0 {
		el.Add(fmt.Errorf("command_capacity must not be negative"))
	}
	if c.PerPlayerLimit < 0 {
		el.Add(fmt.Errorf("per_player_limit must not be negative"))
	}
	if c.CatchupMaxFrames < 0 {
		el.Add(fmt.Errorf("catchup_max_frames must not be negative"))
	}

	return el.Err()
}
