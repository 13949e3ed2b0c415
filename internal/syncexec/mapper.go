// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package syncexec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/expr"
	"github.com/frontbase/frontbase/internal/types"
)

// fieldMapper projects master records into slave shape through a config's
// field mappings.
type fieldMapper struct {
	mappings []types.FieldMapping
	key      types.FieldMapping
}

func newFieldMapper(cfg *types.SyncConfig) *fieldMapper {
	return &fieldMapper{mappings: cfg.FieldMappings, key: cfg.KeyMapping()}
}

// apply builds the slave-shaped record for one master record. Mappings with
// a transform evaluate it with both records in scope; plain mappings copy
// the master column. skip_sync mappings contribute nothing.
func (m *fieldMapper) apply(master, slave adapter.Record) adapter.Record {
	out := adapter.Record{}
	for _, fm := range m.mappings {
		if fm.SkipSync || fm.SlaveColumn == "" {
			continue
		}
		if fm.Transform != "" {
			out[fm.SlaveColumn] = expr.Eval(fm.Transform, expr.Context{
				Record: master,
				Master: master,
				Slave:  slave,
			})
			continue
		}
		out[fm.SlaveColumn] = master[fm.MasterColumn]
	}
	return out
}

// masterKey extracts the record identity from a master record.
func (m *fieldMapper) masterKey(master adapter.Record) string {
	return canonical(master[m.key.MasterColumn])
}

// slaveKeyColumn is the column the identity lives in on the slave side.
func (m *fieldMapper) slaveKeyColumn() string {
	if m.key.SlaveColumn != "" {
		return m.key.SlaveColumn
	}
	return m.key.MasterColumn
}

// diff lists the slave columns whose mapped value differs from what the
// slave currently holds, under tolerant equality.
func (m *fieldMapper) diff(mapped, slave adapter.Record) []string {
	var fields []string
	for col, want := range mapped {
		if !looseEqual(want, slave[col]) {
			fields = append(fields, col)
		}
	}
	return fields
}

// looseEqual compares values the way replicated data actually comes back:
// numbers compare numerically regardless of width, booleans tolerate their
// common integer and string encodings, and everything else compares as
// trimmed strings. nil equals only nil and empty string.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return canonical(a) == canonical(b)
	}
	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			return af == bf
		}
	}
	if ab, ok := toBool(a); ok {
		if bb, ok := toBool(b); ok {
			return ab == bb
		}
	}
	return canonical(a) == canonical(b)
}

func canonical(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := toNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	case int, int32, int64:
		f, _ := toNumber(v)
		if f == 0 || f == 1 {
			return f == 1, true
		}
	}
	return false, false
}
