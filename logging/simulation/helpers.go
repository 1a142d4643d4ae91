package simulation

import (
	"context"

	"gridrun/server/logging"
)

const (
	// EventFrameBudgetOverrun is emitted when a simulation step exceeds the
	// frame interval.
	EventFrameBudgetOverrun logging.EventType = "simulation.frame_budget_overrun"
	// EventCatchupClamped is emitted when the loop hits its catch-up bound
	// and drops simulated time instead of spiralling.
	EventCatchupClamped logging.EventType = "simulation.catchup_clamped"
	// EventCommandQueueSaturated is emitted when the intake queue crosses the
	// configured warning threshold.
	EventCommandQueueSaturated logging.EventType = "simulation.command_queue_saturated"
)

// FrameBudgetOverrunPayload captures timing details for a budget breach.
type FrameBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// CatchupClampedPayload captures how far behind real time the loop fell.
type CatchupClampedPayload struct {
	DeltaSeconds float64 `json:"deltaSeconds"`
	StepsRun     int     `json:"stepsRun"`
}

// CommandQueueSaturatedPayload captures intake pressure.
type CommandQueueSaturatedPayload struct {
	Pending  int `json:"pending"`
	Capacity int `json:"capacity"`
}

// FrameBudgetOverrun publishes a warning when a step exceeds the frame budget.
func FrameBudgetOverrun(ctx context.Context, pub logging.Publisher, frame uint64, payload FrameBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFrameBudgetOverrun,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CatchupClamped publishes a warning when the loop abandons simulated time.
func CatchupClamped(ctx context.Context, pub logging.Publisher, frame uint64, payload CatchupClampedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCatchupClamped,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CommandQueueSaturated publishes intake pressure warnings.
func CommandQueueSaturated(ctx context.Context, pub logging.Publisher, frame uint64, payload CommandQueueSaturatedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCommandQueueSaturated,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
