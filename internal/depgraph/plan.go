// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package depgraph

// ElementKind discriminates the two FieldResolutionPlan element variants.
type ElementKind string

const (
	ElementParallelGroup   ElementKind = "parallel"
	ElementSequentialChain ElementKind = "sequential"
)

// PlanElement is either a ParallelGroup or a SequentialChain: one step of
// fetch execution in the overall plan.
type PlanElement struct {
	Kind   ElementKind
	Fields []string // for ElementParallelGroup: mutually independent fetches
	Chain  []string // for ElementSequentialChain: ordered, each may depend on earlier ones
}

// Plan is the Field Resolution Plan: an ordered sequence of
// parallel/sequential fetch steps, the seeded static values, and the
// topological order in which calculated fields must run afterward.
type Plan struct {
	Elements        []PlanElement
	StaticFields    []string // fields resolved from default/input, no fetch needed
	CalculatedOrder []string // calculated fields, topologically ordered
}
