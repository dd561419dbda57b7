// Package circuitflow is a client for the Impromptu circuit pipeline. It
// connects to the pipeline backend, consumes the event stream of a run and
// maintains a consistent, queryable view of every stage: status, substages,
// results, token cost and timing.
package circuitflow

import (
	"time"

	"github.com/impromptu-ai/circuitflow/event"
)

// Stage is one phase of the pipeline. Stages are created once, at pipeline
// definition time, and are only ever mutated by events arriving on the run's
// stream. A zero StartTime or EndTime means the value is not yet known.
type Stage struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Status     event.Status     `json:"status"`
	Result     map[string]any   `json:"result,omitempty"`
	Substages  []Substage       `json:"substages,omitempty"`
	TokenCost  *event.TokenCost `json:"tokenCost,omitempty"`
	StartTime  time.Time        `json:"startTime,omitzero"`
	EndTime    time.Time        `json:"endTime,omitzero"`
	DurationMS int64            `json:"durationMs"`
}

// Substage is a finer-grained step within a stage. It carries a status only;
// timing and cost are tracked at the stage level.
type Substage struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status event.Status `json:"status"`
}

// Stage ids of the standard pipeline, matching the workflow names the backend
// reports in its events.
const (
	StageSpecGeneration    = "spec_generation"
	StageNetlistGeneration = "netlist_generation"
	StageCircuitToPrinter  = "circuit_to_printer"
)

// DefaultStages returns the standard pipeline definition: specification
// generation, netlist generation with its simulation and verification steps,
// and conversion of the finished circuit to printer output.
func DefaultStages() []Stage {
	return []Stage{
		{
			ID:     StageSpecGeneration,
			Name:   "Specification Generation",
			Status: event.StatusPending,
		},
		{
			ID:     StageNetlistGeneration,
			Name:   "Netlist Generation",
			Status: event.StatusPending,
			Substages: []Substage{
				{ID: "generate", Name: "Generate", Status: event.StatusPending},
				{ID: "simulate", Name: "Simulate", Status: event.StatusPending},
				{ID: "verify", Name: "Verify", Status: event.StatusPending},
			},
		},
		{
			ID:     StageCircuitToPrinter,
			Name:   "Output Conversion",
			Status: event.StatusPending,
			Substages: []Substage{
				{ID: "circuit_to_printer", Name: "Convert", Status: event.StatusPending},
			},
		},
	}
}
