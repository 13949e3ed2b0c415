// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

// FilterOperator is one of the closed set of operators the WHERE builder
// accepts. Anything outside the set is dropped, never passed through as SQL.
type FilterOperator string

const (
	OpEquals      FilterOperator = "=="
	OpNotEquals   FilterOperator = "!="
	OpGreaterThan FilterOperator = ">"
	OpLessThan    FilterOperator = "<"
	OpContains    FilterOperator = "contains"
	OpNotContains FilterOperator = "not_contains"
	OpStartsWith  FilterOperator = "starts_with"
	OpEndsWith    FilterOperator = "ends_with"
	OpIsEmpty     FilterOperator = "is_empty"
	OpIsNotEmpty  FilterOperator = "is_not_empty"
	OpIn          FilterOperator = "in"
	OpNotIn       FilterOperator = "not_in"
)

// KnownOperator reports whether op belongs to the closed operator set.
func KnownOperator(op FilterOperator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpIsEmpty, OpIsNotEmpty, OpIn, OpNotIn:
		return true
	}
	return false
}

// FilterExpr is one predicate over a column. Column may be dotted
// ("related_table.col") to reference a joined relation.
type FilterExpr struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// ReadOptions carries the common read parameters shared by every adapter.
type ReadOptions struct {
	Columns        []string
	Where          []FilterExpr
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
	Search         string
	SearchColumns  []string
}
