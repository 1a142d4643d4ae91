package sim

import "time"

// FrameNumber counts fixed-duration simulation steps since session start.
// Arithmetic saturates at zero instead of wrapping so frame math stays a
// total order even when a rewind reaches past the first frame.
type FrameNumber uint32

// Add returns the frame n steps later.
func (f FrameNumber) Add(n uint32) FrameNumber {
	sum := f + FrameNumber(n)
	if sum < f {
		return ^FrameNumber(0)
	}
	return sum
}

// Sub returns the frame n steps earlier, clamping at frame zero.
func (f FrameNumber) Sub(n uint32) FrameNumber {
	if FrameNumber(n) > f {
		return 0
	}
	return f - FrameNumber(n)
}

// Next returns the immediately following frame.
func (f FrameNumber) Next() FrameNumber {
	return f.Add(1)
}

// Prev returns the immediately preceding frame, clamping at zero.
func (f FrameNumber) Prev() FrameNumber {
	return f.Sub(1)
}

// SimulationTime tracks the two frame cursors a predicting client maintains:
// the authoritative server frame and the locally simulated player frame. On
// the server both cursors advance together and stay equal.
type SimulationTime struct {
	ServerFrame FrameNumber
	PlayerFrame FrameNumber
}

// FramesAhead reports how far local prediction has run past the last
// authoritative frame.
func (t SimulationTime) FramesAhead() uint32 {
	return uint32(t.PlayerFrame.Sub(uint32(t.ServerFrame)))
}

// Rewind clamps the server cursor to frame and re-derives the player cursor,
// preserving the prediction distance. Rewinding to a frame at or after the
// current server cursor is a no-op.
func (t *SimulationTime) Rewind(frame FrameNumber) {
	ahead := t.FramesAhead()
	if frame < t.ServerFrame {
		t.ServerFrame = frame
	}
	t.PlayerFrame = t.ServerFrame.Add(ahead)
}

// Clock owns a session's frame cursors and the wall-clock-to-frame mapping.
type Clock struct {
	time SimulationTime
	sps  int
}

// NewClock constructs a clock stepping at the provided simulations per
// second, falling back to the default rate for non-positive values.
func NewClock(simulationsPerSecond int) *Clock {
	if simulationsPerSecond <= 0 {
		simulationsPerSecond = DefaultSimulationsPerSecond
	}
	return &Clock{sps: simulationsPerSecond}
}

// Advance moves both cursors one frame and returns the new authoritative
// frame. This is the server step.
func (c *Clock) Advance() FrameNumber {
	c.time.ServerFrame = c.time.ServerFrame.Next()
	c.time.PlayerFrame = c.time.PlayerFrame.Next()
	return c.time.ServerFrame
}

// AdvancePrediction moves only the locally simulated cursor and returns it.
// This is the client step; the server cursor waits for authoritative input.
func (c *Clock) AdvancePrediction() FrameNumber {
	c.time.PlayerFrame = c.time.PlayerFrame.Next()
	return c.time.PlayerFrame
}

// ObserveServerFrame adopts an authoritative frame observed on the wire.
// Frames at or behind the current cursor are ignored, so replayed or
// reordered updates cannot move time backwards. Reports whether the cursor
// advanced.
func (c *Clock) ObserveServerFrame(frame FrameNumber) bool {
	if frame <= c.time.ServerFrame {
		return false
	}
	c.time.ServerFrame = frame
	if c.time.PlayerFrame < frame {
		c.time.PlayerFrame = frame
	}
	return true
}

// Rewind clamps the cursors through SimulationTime.Rewind.
func (c *Clock) Rewind(frame FrameNumber) {
	c.time.Rewind(frame)
}

// CurrentFrame returns the authoritative frame cursor.
func (c *Clock) CurrentFrame() FrameNumber {
	return c.time.ServerFrame
}

// PredictedFrame returns the locally simulated frame cursor.
func (c *Clock) PredictedFrame() FrameNumber {
	return c.time.PlayerFrame
}

// Time returns a copy of both cursors.
func (c *Clock) Time() SimulationTime {
	return c.time
}

// FrameDuration returns the wall-clock length of one frame.
func (c *Clock) FrameDuration() time.Duration {
	return time.Second / time.Duration(c.sps)
}

// SimulationsPerSecond reports the fixed step rate.
func (c *Clock) SimulationsPerSecond() int {
	return c.sps
}

// OneSecondOfFrames returns the number of frames covering one wall-clock
// second at the clock's rate.
func (c *Clock) OneSecondOfFrames() uint32 {
	return uint32(c.sps)
}
