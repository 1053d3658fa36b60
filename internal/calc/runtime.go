// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package calc

import (
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
)

// Runtime dispatches a CalculatorConfig tagged variant to the right
// evaluation strategy. It is stateless apart from a compiled-expression
// cache and a custom-calculator loader, and is safe for concurrent use:
// every Evaluate call works from a read-only snapshot of dependency
// values.
type Runtime struct {
	customLoader CustomCalculatorLoader

	mu          sync.Mutex
	programCache map[string]*vm.Program
}

// NewRuntime constructs a Runtime. A nil loader is replaced with
// NoCustomCalculators so CUSTOM lookups fail closed rather than panic.
func NewRuntime(loader CustomCalculatorLoader) *Runtime {
	if loader == nil {
		loader = NoCustomCalculators{}
	}
	return &Runtime{customLoader: loader, programCache: make(map[string]*vm.Program)}
}

// ValidateCustomExists is called at field-configuration time to confirm
// a CUSTOM calculator's identifier actually resolves.
func (r *Runtime) ValidateCustomExists(customID string) error {
	_, err := r.customLoader.Load(customID)
	return err
}

// Evaluate computes one calculated field's value. bindings holds the
// current, read-only snapshot of every field value resolved so far.
// dependencies is the field's declared dependency order, used for
// positional binding in BUILTIN and CUSTOM dispatch.
func (r *Runtime) Evaluate(fieldName string, cfg *fieldmodel.CalculatorConfig, dependencies []string, bindings map[string]any) (any, error) {
	switch cfg.Type {
	case fieldmodel.CalcExpression:
		return r.evalExpression(fieldName, cfg.Expression, bindings)
	case fieldmodel.CalcBuiltin:
		return r.evalBuiltin(fieldName, cfg.FunctionName, dependencies, bindings)
	case fieldmodel.CalcCustom:
		return r.evalCustom(fieldName, cfg.CustomID, dependencies, bindings)
	default:
		return nil, diag.New(diag.CalculationFailure, fmt.Sprintf("unrecognized calculator type %q", cfg.Type)).WithField(fieldName)
	}
}

func (r *Runtime) evalExpression(fieldName, expression string, bindings map[string]any) (any, error) {
	program, err := r.compile(expression)
	if err != nil {
		return nil, diag.Wrap(diag.CalculationFailure, "expression did not compile", err).WithField(fieldName)
	}
	env := make(map[string]any, len(bindings)+len(registry))
	for k, v := range bindings {
		env[k] = v
	}
	for name, fn := range registry {
		env[name] = exprAdapter(fn)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, diag.Wrap(diag.CalculationFailure, "expression evaluation failed", err).WithField(fieldName)
	}
	if f, ok := out.(float64); ok {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, diag.New(diag.CalculationFailure, "division by zero or invalid arithmetic result").WithField(fieldName)
		}
	}
	return out, nil
}

func (r *Runtime) compile(expression string) (*vm.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.programCache[expression]; ok {
		return p, nil
	}
	p, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	r.programCache[expression] = p
	return p, nil
}

// exprAdapter lets a calc.Function be called from within an expr program
// with its native variadic-any signature.
func exprAdapter(fn *Function) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if err := ValidateParameters(fn, args); err != nil {
			return nil, err
		}
		return fn.Invoke(args)
	}
}

func (r *Runtime) evalBuiltin(fieldName, functionName string, dependencies []string, bindings map[string]any) (any, error) {
	fn, ok := Lookup(functionName)
	if !ok {
		return nil, diag.New(diag.CalculationFailure, fmt.Sprintf("unknown builtin function %q", functionName)).WithField(fieldName)
	}
	args := make([]any, 0, len(dependencies))
	for _, dep := range dependencies {
		args = append(args, bindings[dep])
	}
	if err := ValidateParameters(fn, args); err != nil {
		return nil, diag.Wrap(diag.CalculationFailure, "parameter validation failed", err).WithField(fieldName)
	}
	out, err := fn.Invoke(args)
	if err != nil {
		return nil, diag.Wrap(diag.CalculationFailure, "builtin function failed", err).WithField(fieldName)
	}
	return out, nil
}

func (r *Runtime) evalCustom(fieldName, customID string, dependencies []string, bindings map[string]any) (any, error) {
	calculator, err := r.customLoader.Load(customID)
	if err != nil {
		return nil, diag.Wrap(diag.CalculationFailure, fmt.Sprintf("custom calculator %q not found", customID), err).WithField(fieldName)
	}
	args := make([]any, 0, len(dependencies))
	for _, dep := range dependencies {
		args = append(args, bindings[dep])
	}
	out, err := calculator(args, bindings)
	if err != nil {
		return nil, diag.Wrap(diag.CalculationFailure, fmt.Sprintf("custom calculator %q failed", customID), err).WithField(fieldName)
	}
	return out, nil
}

func errCustomNotFound(name string) error {
	return diag.New(diag.CalculationFailure, fmt.Sprintf("custom calculator %q is not registered", name))
}
