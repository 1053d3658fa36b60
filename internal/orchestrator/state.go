// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package orchestrator implements the Rule Execution Orchestrator: the
// top-level entry point that loads a rule, resolves its
// referenced fields, evaluates it, and assembles the RuleExecutionResult,
// modeled as an explicit state machine rather than an ad hoc sequence of
// calls.
package orchestrator

import "fmt"

// State is one stage of a single rule execution's lifecycle.
type State string

const (
	StateLoaded    State = "LOADED"
	StateResolving State = "RESOLVING"
	StateEvaluating State = "EVALUATING"
	StateDone      State = "DONE"
	StateErrored   State = "ERRORED"
)

// validTransitions enumerates the only state changes an execution may
// make. Anything else is a programming error, not a runtime condition.
var validTransitions = map[State][]State{
	StateLoaded:     {StateResolving, StateErrored},
	StateResolving:  {StateEvaluating, StateErrored},
	StateEvaluating: {StateDone, StateErrored},
	StateDone:       {},
	StateErrored:    {},
}

// transition moves from to next, panicking on an invalid transition: this
// indicates the orchestrator itself is wired incorrectly, never a
// user-triggered condition.
func transition(from, to State) State {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return to
		}
	}
	panic(fmt.Sprintf("orchestrator: invalid state transition %s -> %s", from, to))
}
