// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"strings"

	"github.com/frontbase/frontbase/internal/types"
)

// Component types that render records field-by-field and need the full
// schema baked in so the edge does no lookups of its own.
func needsSchemaBake(compType string) bool {
	switch strings.ToLower(compType) {
	case "form", "infolist", "info_list":
		return true
	}
	return false
}

// bakeSchema embeds the target table's columns and normalized foreign keys
// into the binding, mirrored under props so strips applied downstream cannot
// lose them.
func bakeSchema(comp map[string]any, binding map[string]any, schema *types.TableSchemaEntry, datasourceID string) {
	if schema == nil {
		return
	}

	columns := make([]any, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		columns = append(columns, map[string]any{
			"name":        col.Name,
			"type":        col.Type,
			"nullable":    col.Nullable,
			"primary_key": col.PrimaryKey,
		})
	}
	fks := make([]any, 0, len(schema.ForeignKeys))
	for _, fk := range schema.ForeignKeys {
		if len(fk.ConstrainedColumns) == 0 || len(fk.ReferredColumns) == 0 {
			continue
		}
		fks = append(fks, map[string]any{
			"column":           fk.ConstrainedColumns[0],
			"referencedTable":  fk.ReferredTable,
			"referencedColumn": fk.ReferredColumns[0],
		})
	}

	binding["columns"] = columns
	binding["foreignKeys"] = fks

	props, ok := comp["props"].(map[string]any)
	if !ok {
		props = map[string]any{}
		comp["props"] = props
	}
	props["_columns"] = columns
	props["_foreignKeys"] = fks
	props["_tableName"] = schema.TableName
	props["_dataSourceId"] = datasourceID
	if _, ok := props["_fieldOverrides"]; !ok {
		if v, ok := props["fieldOverrides"]; ok {
			props["_fieldOverrides"] = v
		}
	}
	if _, ok := props["_fieldOrder"]; !ok {
		if v, ok := props["fieldOrder"]; ok {
			props["_fieldOrder"] = v
		}
	}
}
