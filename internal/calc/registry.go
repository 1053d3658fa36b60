// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package calc implements the Expression / Calculator Runtime: the
// EXPRESSION/BUILTIN/CUSTOM dispatch. EXPRESSION programs run on
// github.com/expr-lang/expr, the expression-evaluation library both
// rule-engine repos in the retrieval pack depend on directly
// (bittoy-rule, yesoreyeram-thaiyyal); BUILTIN dispatches into the
// registry below; CUSTOM defers to an injected loader.
package calc

import (
	"fmt"
	"strings"
	"time"

	"github.com/ankitjan/rulesengine/internal/diag"
)

// Param describes one declared parameter of a builtin function: its name
// (descriptive only; builtins bind positionally) and expected Go-level
// kind. ValidateParameters counts declared Params but reads neither field.
type Param struct {
	Name string
	Kind string // "number", "string", "date", "any"
}

// Function is one entry in the builtin registry: sum, avg, min, max,
// count, dateAdd, dateDiff, concat, upper, lower, coalesce.
type Function struct {
	Name     string
	Params   []Param
	Variadic bool
	Invoke   func(args []any) (any, error)
}

var registry = map[string]*Function{}

func register(f *Function) { registry[f.Name] = f }

// Lookup returns the named builtin function, or false if it is not
// registered.
func Lookup(name string) (*Function, bool) {
	f, ok := registry[name]
	return f, ok
}

// ValidateParameters checks the arity of args against fn's declaration
// before Invoke is called: at least one argument for a variadic function,
// exactly len(fn.Params) otherwise. It does not check argument types
// against the declared Param kinds; each Invoke rejects unusable values
// itself.
func ValidateParameters(fn *Function, args []any) error {
	if fn.Variadic {
		if len(args) == 0 {
			return fmt.Errorf("calc: %s requires at least one argument", fn.Name)
		}
		return nil
	}
	if len(args) != len(fn.Params) {
		return fmt.Errorf("calc: %s expects %d argument(s), got %d", fn.Name, len(fn.Params), len(args))
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func init() {
	register(&Function{
		Name: "sum", Variadic: true,
		Invoke: func(args []any) (any, error) {
			total := 0.0
			for _, a := range args {
				f, ok := toFloat(a)
				if !ok {
					return nil, fmt.Errorf("sum: non-numeric argument %v", a)
				}
				total += f
			}
			return total, nil
		},
	})
	register(&Function{
		Name: "avg", Variadic: true,
		Invoke: func(args []any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("avg: no arguments")
			}
			total := 0.0
			for _, a := range args {
				f, ok := toFloat(a)
				if !ok {
					return nil, fmt.Errorf("avg: non-numeric argument %v", a)
				}
				total += f
			}
			return total / float64(len(args)), nil
		},
	})
	register(&Function{
		Name: "min", Variadic: true,
		Invoke: func(args []any) (any, error) {
			var best float64
			for i, a := range args {
				f, ok := toFloat(a)
				if !ok {
					return nil, fmt.Errorf("min: non-numeric argument %v", a)
				}
				if i == 0 || f < best {
					best = f
				}
			}
			return best, nil
		},
	})
	register(&Function{
		Name: "max", Variadic: true,
		Invoke: func(args []any) (any, error) {
			var best float64
			for i, a := range args {
				f, ok := toFloat(a)
				if !ok {
					return nil, fmt.Errorf("max: non-numeric argument %v", a)
				}
				if i == 0 || f > best {
					best = f
				}
			}
			return best, nil
		},
	})
	register(&Function{
		Name: "count", Variadic: true,
		Invoke: func(args []any) (any, error) {
			return float64(len(args)), nil
		},
	})
	register(&Function{
		Name:   "concat",
		Params: nil, Variadic: true,
		Invoke: func(args []any) (any, error) {
			var sb strings.Builder
			for _, a := range args {
				sb.WriteString(fmt.Sprintf("%v", a))
			}
			return sb.String(), nil
		},
	})
	register(&Function{
		Name:   "upper",
		Params: []Param{{Name: "value", Kind: "string"}},
		Invoke: func(args []any) (any, error) {
			return strings.ToUpper(fmt.Sprintf("%v", args[0])), nil
		},
	})
	register(&Function{
		Name:   "lower",
		Params: []Param{{Name: "value", Kind: "string"}},
		Invoke: func(args []any) (any, error) {
			return strings.ToLower(fmt.Sprintf("%v", args[0])), nil
		},
	})
	register(&Function{
		Name: "coalesce", Variadic: true,
		Invoke: func(args []any) (any, error) {
			for _, a := range args {
				if a != nil {
					return a, nil
				}
			}
			return nil, nil
		},
	})
	register(&Function{
		Name:   "dateAdd",
		Params: []Param{{Name: "date", Kind: "date"}, {Name: "amount", Kind: "number"}, {Name: "unit", Kind: "string"}},
		Invoke: func(args []any) (any, error) {
			t, ok := args[0].(time.Time)
			if !ok {
				return nil, fmt.Errorf("dateAdd: first argument must be a date")
			}
			amount, ok := toFloat(args[1])
			if !ok {
				return nil, fmt.Errorf("dateAdd: second argument must be numeric")
			}
			unit, _ := args[2].(string)
			return addUnit(t, int(amount), unit)
		},
	})
	register(&Function{
		Name:   "dateDiff",
		Params: []Param{{Name: "a", Kind: "date"}, {Name: "b", Kind: "date"}, {Name: "unit", Kind: "string"}},
		Invoke: func(args []any) (any, error) {
			a, ok1 := args[0].(time.Time)
			b, ok2 := args[1].(time.Time)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("dateDiff: both arguments must be dates")
			}
			unit, _ := args[2].(string)
			return diffUnit(a, b, unit)
		},
	})
}

func addUnit(t time.Time, amount int, unit string) (time.Time, error) {
	switch strings.ToLower(unit) {
	case "day", "days", "":
		return t.AddDate(0, 0, amount), nil
	case "month", "months":
		return t.AddDate(0, amount, 0), nil
	case "year", "years":
		return t.AddDate(amount, 0, 0), nil
	case "hour", "hours":
		return t.Add(time.Duration(amount) * time.Hour), nil
	default:
		return time.Time{}, diag.New(diag.CalculationFailure, fmt.Sprintf("dateAdd: unknown unit %q", unit))
	}
}

func diffUnit(a, b time.Time, unit string) (float64, error) {
	d := a.Sub(b)
	switch strings.ToLower(unit) {
	case "day", "days", "":
		return d.Hours() / 24, nil
	case "hour", "hours":
		return d.Hours(), nil
	case "minute", "minutes":
		return d.Minutes(), nil
	default:
		return 0, diag.New(diag.CalculationFailure, fmt.Sprintf("dateDiff: unknown unit %q", unit))
	}
}
