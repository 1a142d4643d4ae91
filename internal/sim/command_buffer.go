package sim

import (
	"sync"

	"gridrun/server/internal/telemetry"
)

const (
	metricCommandBufferOccupancy = "sim_command_buffer_occupancy"
	metricCommandBufferOverflow  = "sim_command_buffer_overflow"
)

// CommandBuffer stages commands in a fixed-capacity buffer, safe for
// concurrent producers and a single draining consumer. A full buffer rejects
// instead of growing; backpressure belongs at the edge, not in the step
// path.
type CommandBuffer struct {
	mu      sync.Mutex
	data    []Command
	count   int
	metrics telemetry.Metrics
}

// NewCommandBuffer constructs a buffer with the provided capacity.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &CommandBuffer{
		data:    make([]Command, capacity),
		metrics: metrics,
	}
}

// Capacity reports the maximum number of commands the buffer can hold.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Push stages a command, returning false when the buffer is full.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		b.metrics.Add(metricCommandBufferOverflow, 1)
		return false
	}
	b.data[b.count] = cmd
	b.count++
	b.metrics.Store(metricCommandBufferOccupancy, uint64(b.count))
	return true
}

// Drain returns every staged command in FIFO order and empties the buffer.
// The backing storage is cleared so drained commands do not pin their typed
// bodies past the frame that consumed them.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	out := make([]Command, b.count)
	copy(out, b.data[:b.count])
	clear(b.data[:b.count])
	b.count = 0
	b.metrics.Store(metricCommandBufferOccupancy, 0)
	return out
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
