// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package store declares the external collaborator interfaces: rule,
// field-config, and entity-type storage. The core never implements these —
// persistence, versioning, and soft-delete are entirely the caller's
// concern — it only consumes the read-only snapshots they return.
package store

import (
	"context"

	"github.com/ankitjan/rulesengine/internal/fieldmodel"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
)

// ErrNotFound is returned by any lookup method when the requested record
// does not exist. Callers translate it into the corresponding
// RuleNotFound / FieldConfigNotFound / EntityTypeNotFound diag.Kind.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }

// RuleStore is the external rule repository.
type RuleStore interface {
	GetRuleByID(ctx context.Context, id string) (*ruletypes.Rule, error)
	FindRuleByName(ctx context.Context, name string) (*ruletypes.Rule, error)
}

// FieldConfigStore is the external field-configuration repository.
type FieldConfigStore interface {
	ListByNames(ctx context.Context, names []string) ([]*fieldmodel.FieldConfig, error)
	FindByFieldName(ctx context.Context, name string) (*fieldmodel.FieldConfig, error)
}

// EntityTypeStore is the external entity-type repository.
type EntityTypeStore interface {
	FindByTypeName(ctx context.Context, name string) (*fieldmodel.EntityType, error)
}
