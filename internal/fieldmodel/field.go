// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package fieldmodel defines the field-configuration data model:
// FieldConfig and the tagged variants it embeds (DataServiceConfig,
// AuthConfig, CalculatorConfig), plus EntityType. Like ruletypes, this
// package carries no behavior beyond validation of its own invariants.
package fieldmodel

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// FieldType is the closed set of value types a field's resolved value may
// declare.
type FieldType string

const (
	TypeString  FieldType = "STRING"
	TypeNumber  FieldType = "NUMBER"
	TypeDate    FieldType = "DATE"
	TypeBoolean FieldType = "BOOLEAN"
	TypeArray   FieldType = "ARRAY"
	TypeObject  FieldType = "OBJECT"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// FieldConfig is the metadata describing one field: its declared type, how
// (if at all) to fetch it, how to extract it from a fetched response, and
// what it depends on.
type FieldConfig struct {
	Name              string
	Type              FieldType
	Description       string
	DataServiceConfig *DataServiceConfig
	MapperExpression  string
	IsCalculated      bool
	CalculatorConfig  *CalculatorConfig
	Dependencies      []string
	DefaultValue      any
	IsRequired        bool
}

// IsStatic reports whether the field has neither a data service nor a
// calculator — its value comes only from context input or DefaultValue.
func (f *FieldConfig) IsStatic() bool {
	return f.DataServiceConfig == nil && !f.IsCalculated
}

// IsFetched reports whether the field is resolved by calling out to a data
// service (mutually exclusive with IsCalculated).
func (f *FieldConfig) IsFetched() bool {
	return f.DataServiceConfig != nil && !f.IsCalculated
}

// Validate checks the field's structural invariants:
//   - isCalculated ⇒ calculatorConfig present
//   - non-calculated fields with a data service must also have a mapper expression
//   - field names match ^[A-Za-z][A-Za-z0-9_]*$
func (f *FieldConfig) Validate() error {
	if !fieldNamePattern.MatchString(f.Name) {
		return fmt.Errorf("fieldmodel: invalid field name %q", f.Name)
	}
	if f.IsCalculated && f.CalculatorConfig == nil {
		return fmt.Errorf("fieldmodel: field %q is calculated but has no calculatorConfig", f.Name)
	}
	if !f.IsCalculated && f.DataServiceConfig != nil && f.MapperExpression == "" {
		return fmt.Errorf("fieldmodel: field %q has a data service but no mapperExpression", f.Name)
	}
	switch f.Type {
	case TypeString, TypeNumber, TypeDate, TypeBoolean, TypeArray, TypeObject:
	default:
		return fmt.Errorf("fieldmodel: field %q has unrecognized type %q", f.Name, f.Type)
	}
	return nil
}

// EntityType describes the shape of entities a rule may be executed
// against. It is a soft validation aid only: an unknown entity type or
// field mismatch is recorded as a warning by the Orchestrator, never a
// hard failure.
type EntityType struct {
	Name        string
	Description string
	FieldNames  []string
}

type wireFieldConfig struct {
	Name              string             `json:"name"`
	Type              string             `json:"type"`
	Description       string             `json:"description,omitempty"`
	DataServiceConfig *DataServiceConfig `json:"dataServiceConfig,omitempty"`
	MapperExpression  string             `json:"mapperExpression,omitempty"`
	IsCalculated      bool               `json:"isCalculated,omitempty"`
	CalculatorConfig  *CalculatorConfig  `json:"calculatorConfig,omitempty"`
	Dependencies      []string           `json:"dependencies,omitempty"`
	DefaultValue      any                `json:"defaultValue,omitempty"`
	IsRequired        bool               `json:"isRequired,omitempty"`
}

// MarshalJSON renders the FieldConfig in its wire format.
func (f FieldConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFieldConfig{
		Name: f.Name, Type: string(f.Type), Description: f.Description,
		DataServiceConfig: f.DataServiceConfig, MapperExpression: f.MapperExpression,
		IsCalculated: f.IsCalculated, CalculatorConfig: f.CalculatorConfig,
		Dependencies: f.Dependencies, DefaultValue: f.DefaultValue, IsRequired: f.IsRequired,
	})
}

// UnmarshalJSON parses the wire format.
func (f *FieldConfig) UnmarshalJSON(data []byte) error {
	var w wireFieldConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = FieldConfig{
		Name: w.Name, Type: FieldType(w.Type), Description: w.Description,
		DataServiceConfig: w.DataServiceConfig, MapperExpression: w.MapperExpression,
		IsCalculated: w.IsCalculated, CalculatorConfig: w.CalculatorConfig,
		Dependencies: w.Dependencies, DefaultValue: w.DefaultValue, IsRequired: w.IsRequired,
	}
	return nil
}
