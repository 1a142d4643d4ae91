// Package config defines the server's JSON configuration and its validation.
// Zero values mean "use the built-in default"; Validate rejects values that
// no component could accept.
package config

import (
	"github.com/pixil98/go-errors"
)

// Config is the root document loaded by the service runner.
type Config struct {
	Listener   ListenerConfig   `json:"listener"`
	Simulation SimulationConfig `json:"simulation"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Journal    JournalConfig    `json:"journal"`
	Levels     LevelsConfig     `json:"levels"`
	Intake     IntakeConfig     `json:"intake"`
}

// Validate aggregates the validation failures of every section.
func (c *Config) Validate() error {
	el := errors.NewErrorList()

	el.Add(c.Listener.Validate())
	el.Add(c.Simulation.Validate())
	el.Add(c.Broadcast.Validate())
	el.Add(c.Journal.Validate())
	el.Add(c.Levels.Validate())
	el.Add(c.Intake.Validate())

	return el.Err()
}
