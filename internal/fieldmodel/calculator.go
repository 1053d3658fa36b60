// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package fieldmodel

import (
	"encoding/json"
	"fmt"
)

// CalculatorType discriminates the CalculatorConfig variants.
type CalculatorType string

const (
	CalcExpression CalculatorType = "EXPRESSION"
	CalcBuiltin    CalculatorType = "BUILTIN"
	CalcCustom     CalculatorType = "CUSTOM"
)

// CalculatorConfig is the tagged variant `{ type: EXPRESSION | BUILTIN |
// CUSTOM, ... }` describing how a calculated field's value is produced.
type CalculatorConfig struct {
	Type CalculatorType

	// EXPRESSION: an expression string over variables named by the
	// field's Dependencies.
	Expression string

	// BUILTIN: a function name drawn from the registry in internal/calc.
	FunctionName string

	// CUSTOM: an identifier resolved by the injected CustomCalculatorLoader
	// (internal/calc) each time the field is calculated.
	CustomID string
}

func (c *CalculatorConfig) Validate() error {
	switch c.Type {
	case CalcExpression:
		if c.Expression == "" {
			return fmt.Errorf("fieldmodel: EXPRESSION calculator requires an expression")
		}
	case CalcBuiltin:
		if c.FunctionName == "" {
			return fmt.Errorf("fieldmodel: BUILTIN calculator requires a functionName")
		}
	case CalcCustom:
		if c.CustomID == "" {
			return fmt.Errorf("fieldmodel: CUSTOM calculator requires a customId")
		}
	default:
		return fmt.Errorf("fieldmodel: unrecognized calculator type %q", c.Type)
	}
	return nil
}

type wireCalculatorConfig struct {
	Type         string `json:"type"`
	Expression   string `json:"expression,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
	CustomID     string `json:"customId,omitempty"`
}

func (c CalculatorConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCalculatorConfig{
		Type: string(c.Type), Expression: c.Expression,
		FunctionName: c.FunctionName, CustomID: c.CustomID,
	})
}

func (c *CalculatorConfig) UnmarshalJSON(data []byte) error {
	var w wireCalculatorConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = CalculatorConfig{
		Type: CalculatorType(w.Type), Expression: w.Expression,
		FunctionName: w.FunctionName, CustomID: w.CustomID,
	}
	return nil
}
