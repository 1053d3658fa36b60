// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package diag

import (
	"errors"
	"fmt"
)

// Kind is the engine's closed set of error kinds. No component may invent
// a new Kind; every failure path maps onto one of these.
type Kind string

const (
	ValidationFailure    Kind = "ValidationFailure"
	RuleNotFound         Kind = "RuleNotFound"
	FieldConfigNotFound  Kind = "FieldConfigNotFound"
	EntityTypeNotFound   Kind = "EntityTypeNotFound"
	CircularDependency   Kind = "CircularDependency"
	FieldMappingFailure  Kind = "FieldMappingFailure"
	CalculationFailure   Kind = "CalculationFailure"
	DataServiceFailure   Kind = "DataServiceFailure"
	AuthFailure          Kind = "AuthFailure"
	Timeout              Kind = "Timeout"
	Cancelled            Kind = "Cancelled"
)

// EngineError is the typed error the core components use for failures that
// carry a Kind. It wraps an underlying cause (if any) and tags it with a
// closed Kind so callers can branch on failure category without string
// matching. Structural validation errors (Orchestrator.Validate,
// ruletypes.ParseRule, fieldmodel Validate methods) are plain errors with
// no Kind.
type EngineError struct {
	Kind    Kind
	Message string
	Field   string // populated when the error is attributable to one field
	Cause   error
}

func (e *EngineError) Error() string {
	prefix := string(e.Kind)
	if e.Field != "" {
		prefix = fmt.Sprintf("%s[field=%s]", prefix, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// New builds an EngineError with no wrapped cause.
func New(kind Kind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

// Wrap builds an EngineError wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Cause: cause}
}

// WithField returns a copy of e annotated with the originating field name,
// used by CalculationFailure and FieldMappingFailure.
func (e *EngineError) WithField(field string) *EngineError {
	cp := *e
	cp.Field = field
	return &cp
}

// KindOf extracts the Kind from err if it is (or wraps) an *EngineError,
// or the empty Kind otherwise.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
