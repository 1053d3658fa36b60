// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderGraphvizIncludesVerticesAndEdges(t *testing.T) {
	g := NewGraph()
	g.AddEdge("total", "subtotal")
	g.AddEdge("total", "taxRate")

	out := RenderGraphviz(g)
	assert.Contains(t, out, "digraph {")
	assert.Contains(t, out, "total;")
	assert.Contains(t, out, "total -> subtotal;")
	assert.Contains(t, out, "total -> taxRate;")
}

func TestRenderGraphvizQuotesSpecialNames(t *testing.T) {
	g := NewGraph()
	g.AddVertex("field-with-dash")

	out := RenderGraphviz(g)
	assert.Contains(t, out, `"field-with-dash";`)
}
