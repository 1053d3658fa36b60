// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package fieldmapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
)

// Extract navigates response (a tree of map[string]any / []any / scalars,
// as produced by encoding/json.Unmarshal into `any`) following expression,
// and returns the resulting value:
//   - any intermediate null collapses the whole path to null (no error)
//   - a missing key or out-of-bounds index yields null
//   - a type mismatch at navigation (indexing a scalar, keying an array)
//     raises a FieldMappingFailure naming the failing sub-path
func Extract(response any, expression string) (any, error) {
	segments := parseExpression(expression)
	cur := response
	var walked strings.Builder
	for _, seg := range segments {
		if cur == nil {
			return nil, nil
		}
		switch seg.kind {
		case segKey:
			walked.WriteString(".")
			walked.WriteString(seg.key)
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, mappingFailure(walked.String(), "expected an object, got %T", cur)
			}
			v, present := m[seg.key]
			if !present {
				return nil, nil
			}
			cur = v
		case segIndex:
			fmt.Fprintf(&walked, "[%d]", seg.index)
			s, ok := cur.([]any)
			if !ok {
				return nil, mappingFailure(walked.String(), "expected an array, got %T", cur)
			}
			if seg.index < 0 || seg.index >= len(s) {
				return nil, nil
			}
			cur = s[seg.index]
		case segFilter:
			fmt.Fprintf(&walked, "[%s=%s]", seg.filterKey, seg.filterVal)
			s, ok := cur.([]any)
			if !ok {
				return nil, mappingFailure(walked.String(), "expected an array, got %T", cur)
			}
			cur = firstMatching(s, seg.filterKey, seg.filterVal)
		}
	}
	return cur, nil
}

func firstMatching(items []any, key, val string) any {
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if fmt.Sprintf("%v", m[key]) == val {
			return item
		}
	}
	return nil
}

func mappingFailure(subpath, format string, args ...any) error {
	return diag.Wrap(diag.FieldMappingFailure, fmt.Sprintf("at %s: %s", subpath, fmt.Sprintf(format, args...)), nil)
}

// ConvertType performs deterministic coercions:
// string<->number via canonical number parse, string->date accepting
// YYYY-MM-DD and ISO-8601 datetime, number->string via canonical form,
// string->boolean via strconv.ParseBool, and any other value to STRING via
// its %v form. ARRAY, OBJECT and unrecognized targets return the value
// unchanged. For NUMBER, DATE and BOOLEAN targets, a source type not listed
// above is not converted through a string round-trip; it fails. Failure
// raises a FieldMappingFailure.
func ConvertType(value any, target fieldmodel.FieldType) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch target {
	case fieldmodel.TypeString:
		return convertToString(value)
	case fieldmodel.TypeNumber:
		return convertToNumber(value)
	case fieldmodel.TypeDate:
		return convertToDate(value)
	case fieldmodel.TypeBoolean:
		return convertToBool(value)
	case fieldmodel.TypeArray, fieldmodel.TypeObject:
		return value, nil
	default:
		return value, nil
	}
}

func convertToString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func convertToNumber(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, diag.Wrap(diag.FieldMappingFailure, fmt.Sprintf("cannot convert %q to number", v), err)
		}
		return f, nil
	default:
		return nil, diag.New(diag.FieldMappingFailure, fmt.Sprintf("cannot convert %T to number", v))
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}

func convertToDate(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, diag.New(diag.FieldMappingFailure, fmt.Sprintf("cannot convert %T to date", value))
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, diag.New(diag.FieldMappingFailure, fmt.Sprintf("cannot parse %q as a date", s))
}

func convertToBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, diag.Wrap(diag.FieldMappingFailure, fmt.Sprintf("cannot convert %q to boolean", v), err)
		}
		return b, nil
	default:
		return nil, diag.New(diag.FieldMappingFailure, fmt.Sprintf("cannot convert %T to boolean", v))
	}
}
