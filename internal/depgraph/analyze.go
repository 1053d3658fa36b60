// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package depgraph

import (
	"fmt"
	"sort"

	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
)

// color marks DFS visitation state for cycle detection.
type color int

const (
	white color = iota
	gray
	black
)

// DetectCycle runs a three-color DFS over g and returns the field names of
// the first elementary cycle the DFS meets (its first field repeated at
// the end), or nil if the graph is acyclic. Vertices and edges are visited
// in lexicographic order for determinism. The returned cycle is not
// necessarily the shortest cycle in the graph.
func DetectCycle(g *Graph) []string {
	state := make(map[string]color, len(g.vertices))
	var stack []string
	var found []string

	var visit func(u string) bool
	visit = func(u string) bool {
		state[u] = gray
		stack = append(stack, u)
		deps := append([]string(nil), g.edges[u]...)
		sort.Strings(deps)
		for _, v := range deps {
			switch state[v] {
			case white:
				if visit(v) {
					return true
				}
			case gray:
				// Back edge: extract the cycle from the stack.
				idx := 0
				for i, s := range stack {
					if s == v {
						idx = i
						break
					}
				}
				found = append([]string(nil), stack[idx:]...)
				found = append(found, v)
				return true
			case black:
				// Already fully explored, no cycle through here.
			}
		}
		stack = stack[:len(stack)-1]
		state[u] = black
		return false
	}

	for _, v := range g.Vertices() {
		if state[v] == white {
			if visit(v) {
				return found
			}
		}
	}
	return nil
}

// TopologicalOrder returns field names such that every field precedes its
// dependents, using Kahn's algorithm with lexicographic tie-breaking for
// determinism. Assumes the graph is acyclic; callers must run DetectCycle
// first.
func TopologicalOrder(g *Graph) []string {
	// A field must be emitted only after every field it depends on (an
	// edge u->v means u depends on v), so we repeatedly emit whichever
	// not-yet-emitted fields have every dependency already emitted.
	remaining := make(map[string][]string, len(g.vertices))
	for v := range g.vertices {
		deps := append([]string(nil), g.edges[v]...)
		sort.Strings(deps)
		remaining[v] = deps
	}

	var order []string
	emitted := make(map[string]bool, len(g.vertices))
	for len(emitted) < len(g.vertices) {
		var ready []string
		for _, v := range g.Vertices() {
			if emitted[v] {
				continue
			}
			allDepsEmitted := true
			for _, d := range remaining[v] {
				if !emitted[d] {
					allDepsEmitted = false
					break
				}
			}
			if allDepsEmitted {
				ready = append(ready, v)
			}
		}
		if len(ready) == 0 {
			// Should not happen if DetectCycle found no cycle; guard
			// against infinite loop defensively.
			break
		}
		sort.Strings(ready)
		for _, v := range ready {
			order = append(order, v)
			emitted[v] = true
		}
	}
	return order
}

// BuildPlan runs the full dependency analysis over configs, producing a
// FieldResolutionPlan. available is the set of field names whose value is
// already known (supplied in ExecutionContext.inputFieldValues — inputs are
// authoritative) and therefore never needs fetching.
func BuildPlan(configs map[string]*fieldmodel.FieldConfig, available map[string]bool) (*Plan, error) {
	graph := NewGraph()
	var staticFields, fetchedFields, calculatedFields []string

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := configs[name]
		graph.AddVertex(name)
		for _, d := range cfg.Dependencies {
			graph.AddEdge(name, d)
		}
		if cfg.DataServiceConfig != nil {
			for _, d := range cfg.DataServiceConfig.DependsOn {
				graph.AddEdge(name, d)
			}
		}
		switch {
		case available[name]:
			// Inputs are authoritative: a field already supplied by the
			// caller is never fetched or recalculated.
			staticFields = append(staticFields, name)
		case cfg.IsCalculated:
			calculatedFields = append(calculatedFields, name)
		case cfg.IsFetched():
			fetchedFields = append(fetchedFields, name)
		default:
			staticFields = append(staticFields, name)
		}
	}

	if cycle := DetectCycle(graph); cycle != nil {
		return nil, diag.Wrap(diag.CircularDependency,
			fmt.Sprintf("dependency cycle detected: %v", cycle), nil)
	}

	elements := partitionFetches(graph, fetchedFields, available)

	topo := TopologicalOrder(graph)
	calcSet := make(map[string]bool, len(calculatedFields))
	for _, c := range calculatedFields {
		calcSet[c] = true
	}
	var calcOrder []string
	for _, name := range topo {
		if calcSet[name] {
			calcOrder = append(calcOrder, name)
		}
	}

	sort.Strings(staticFields)
	return &Plan{Elements: elements, StaticFields: staticFields, CalculatedOrder: calcOrder}, nil
}

// partitionFetches implements the parallel/sequential partition over
// fetched fields. Independence is decided at the field level, not at the
// data-service endpoint level (see DESIGN.md).
//
// A fetched field with no unresolved fetched-field dependency joins the
// current wave's ParallelGroup. A fetched field that depends on exactly
// one other fetched field, where that dependency has exactly one fetched
// dependent, is folded into a SequentialChain with it instead of forming
// its own later wave — modeling "this fetch must run strictly after that
// one to consume its value", as opposed to "these can run concurrently in
// the next round".
func partitionFetches(graph *Graph, fetchedFields []string, available map[string]bool) []PlanElement {
	fetchedSet := make(map[string]bool, len(fetchedFields))
	for _, f := range fetchedFields {
		fetchedSet[f] = true
	}

	// fetchedDeps(f) = f's dependencies that are themselves fetched and
	// not already available from caller input.
	fetchedDeps := func(f string) []string {
		var out []string
		for _, d := range graph.Dependencies(f) {
			if fetchedSet[d] && !available[d] {
				out = append(out, d)
			}
		}
		return out
	}

	fetchedDependents := make(map[string][]string)
	for _, f := range fetchedFields {
		for _, d := range fetchedDeps(f) {
			fetchedDependents[d] = append(fetchedDependents[d], f)
		}
	}

	chained := make(map[string]bool)
	var chains [][]string
	sortedFields := append([]string(nil), fetchedFields...)
	sort.Strings(sortedFields)
	for _, f := range sortedFields {
		if chained[f] {
			continue
		}
		deps := fetchedDeps(f)
		if len(deps) != 1 {
			continue
		}
		parent := deps[0]
		if len(fetchedDependents[parent]) != 1 {
			continue
		}
		// f is the sole fetched dependent of parent, and parent is f's
		// sole fetched dependency: extend or start a chain parent -> f.
		extended := false
		for i, chain := range chains {
			if chain[len(chain)-1] == parent {
				chains[i] = append(chain, f)
				extended = true
				break
			}
		}
		if !extended {
			chains = append(chains, []string{parent, f})
			chained[parent] = true
		}
		chained[f] = true
	}

	// Remaining, non-chained fetched fields are laid out in waves: a wave
	// is ready once all of its fetched-fields' fetched dependencies have
	// either been satisfied by `available` or already placed in an
	// earlier wave/chain.
	resolved := make(map[string]bool)
	for k, v := range available {
		if v {
			resolved[k] = true
		}
	}

	var elements []PlanElement
	remaining := make(map[string]bool)
	for _, f := range fetchedFields {
		if !chained[f] {
			remaining[f] = true
		}
	}

	for len(remaining) > 0 {
		var wave []string
		for _, f := range sortedFields {
			if !remaining[f] {
				continue
			}
			ready := true
			for _, d := range fetchedDeps(f) {
				if !resolved[d] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, f)
			}
		}
		if len(wave) == 0 {
			// Defensive: break any remaining unresolved fields out
			// individually rather than looping forever.
			for f := range remaining {
				wave = append(wave, f)
			}
			sort.Strings(wave)
		}
		sort.Strings(wave)
		elements = append(elements, PlanElement{Kind: ElementParallelGroup, Fields: wave})
		for _, f := range wave {
			delete(remaining, f)
			resolved[f] = true
		}
	}

	for _, chain := range chains {
		elements = append(elements, PlanElement{Kind: ElementSequentialChain, Chain: chain})
	}

	sort.SliceStable(elements, func(i, j int) bool {
		return firstOf(elements[i]) < firstOf(elements[j])
	})
	return elements
}

func firstOf(e PlanElement) string {
	if len(e.Fields) > 0 {
		return e.Fields[0]
	}
	if len(e.Chain) > 0 {
		return e.Chain[0]
	}
	return ""
}
