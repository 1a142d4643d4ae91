package config

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// BroadcastConfig tunes the delta broadcast cadence. Zero values fall back
// to the hub defaults; the hub additionally clamps the keyframe interval to
// its supported range.
type BroadcastConfig struct {
	FramesPerBroadcast int `json:"frames_per_broadcast"`
	KeyframeInterval   int `json:"keyframe_interval"`
}

func (c *BroadcastConfig) Validate() error {
	el := errors.NewErrorList()

	if c.FramesPerBroadcast < 0 {
		el.Add(fmt.Errorf("frames_per_broadcast must not be negative"))
	}
	if c.KeyframeInterval < 0 {
		el.Add(fmt.Errorf("keyframe_interval must not be negative"))
	}

	return el.Err()
}
