// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package fieldmapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rulesengine/internal/fieldmodel"
)

func TestExtractNestedPath(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"customer": map[string]any{
				"creditScore": float64(720),
			},
		},
	}
	v, err := Extract(doc, "data.customer.creditScore")
	require.NoError(t, err)
	assert.Equal(t, float64(720), v)
}

func TestExtractIndexAndFilter(t *testing.T) {
	doc := map[string]any{
		"customer": map[string]any{
			"orders": []any{
				map[string]any{"total": float64(10)},
				map[string]any{"total": float64(20)},
			},
		},
		"data": map[string]any{
			"items": []any{
				map[string]any{"active": "false", "name": "a"},
				map[string]any{"active": "true", "name": "b"},
			},
		},
	}
	v, err := Extract(doc, "customer.orders[1].total")
	require.NoError(t, err)
	assert.Equal(t, float64(20), v)

	v, err = Extract(doc, "data.items[active=true].name")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestExtractNullSafety(t *testing.T) {
	doc := map[string]any{"a": nil}
	v, err := Extract(doc, "a.b.c")
	require.NoError(t, err)
	assert.Nil(t, v, "any intermediate null collapses the whole path to null")

	v, err = Extract(doc, "missing.key")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExtractOutOfBounds(t *testing.T) {
	doc := map[string]any{"items": []any{1, 2}}
	v, err := Extract(doc, "items[5]")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExtractTypeMismatch(t *testing.T) {
	doc := map[string]any{"a": "scalar"}
	_, err := Extract(doc, "a.b")
	assert.Error(t, err, "indexing a scalar should raise a FieldMappingFailure")
}

func TestConvertType(t *testing.T) {
	v, err := ConvertType("42", fieldmodel.TypeNumber)
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	v, err = ConvertType(float64(42), fieldmodel.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	v, err = ConvertType("2024-01-15", fieldmodel.TypeDate)
	require.NoError(t, err)
	assert.NotNil(t, v)

	_, err = ConvertType("not-a-number", fieldmodel.TypeNumber)
	assert.Error(t, err)
}
