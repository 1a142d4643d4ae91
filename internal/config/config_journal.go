package config

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

// JournalConfig tunes keyframe retention. Zero values fall back to the hub
// defaults.
type JournalConfig struct {
	KeyframeCapacity int    `json:"keyframe_capacity"`
	KeyframeMaxAge   string `json:"keyframe_max_age"`
}

func (c *JournalConfig) Validate() error {
	el := errors.NewErrorList()

	if c.KeyframeCapacity < 0 {
		el.Add(fmt.Errorf("keyframe_capacity must not be negative"))
	}
	if c.KeyframeMaxAge != "" {
		d, err := time.ParseDuration(c.KeyframeMaxAge)
		if err != nil {
			el.Add(fmt.Errorf("parsing keyframe_max_age: %w", err))
		} else if d < 0 {
			el.Add(fmt.Errorf("keyframe_max_age must not be negative"))
		}
	}

	return el.Err()
}

// MaxAge returns the parsed retention window, zero when unset or invalid.
// Validate reports unparseable values; this accessor never does.
func (c *JournalConfig) MaxAge() time.Duration {
	if c.KeyframeMaxAge == "" {
		return 0
	}
	d, err := time.ParseDuration(c.KeyframeMaxAge)
	if err != nil {
		return 0
	}
	return d
}
