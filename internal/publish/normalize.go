// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"fmt"

	"github.com/frontbase/frontbase/internal/types"
)

// datasource id spellings the builder has shipped over time. All normalize
// to datasource_id.
var datasourceIDKeys = []string{"datasource_id", "datasourceId", "dataSourceId"}

// normalizeBinding lifts a binding buried in props to the component root and
// canonicalizes its datasource reference. When the binding names no
// datasource and at least one is registered, the first registered datasource
// is assumed.
func normalizeBinding(comp map[string]any, datasources []*types.Datasource) {
	if props, ok := comp["props"].(map[string]any); ok {
		if b, ok := props["binding"].(map[string]any); ok {
			if _, exists := comp["binding"]; !exists {
				comp["binding"] = b
			}
			delete(props, "binding")
		}
	}
	binding, ok := comp["binding"].(map[string]any)
	if !ok {
		return
	}

	var id string
	for _, key := range datasourceIDKeys {
		if v, ok := binding[key]; ok {
			if s := asString(v); s != "" && id == "" {
				id = s
			}
			delete(binding, key)
		}
	}
	if id == "" && len(datasources) > 0 {
		id = datasources[0].ID
	}
	if id != "" {
		binding["datasource_id"] = id
	}
}

// bindingOf returns the component's normalized binding, or nil when the
// component is unbound.
func bindingOf(comp map[string]any) map[string]any {
	b, _ := comp["binding"].(map[string]any)
	return b
}

// bindingTable returns the table a binding targets, accepting both spellings.
func bindingTable(binding map[string]any) string {
	if t := asString(binding["table_name"]); t != "" {
		return t
	}
	return asString(binding["tableName"])
}

// frontendFilters decodes the binding's filter declarations. Entries that do
// not look like filter objects are dropped.
func frontendFilters(binding map[string]any) []types.FrontendFilter {
	raw, ok := binding["frontend_filters"].([]any)
	if !ok {
		return nil
	}
	var out []types.FrontendFilter
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := types.FrontendFilter{
			ID:         asString(m["id"]),
			Column:     asString(m["column"]),
			FilterType: asString(m["filter_type"]),
			Label:      asString(m["label"]),
		}
		if f.FilterType == "" {
			f.FilterType = asString(m["type"])
		}
		if f.Column != "" {
			out = append(out, f)
		}
	}
	return out
}

// childComponents returns the nested component list under any of the keys the
// builder uses for children.
func childComponents(comp map[string]any) []map[string]any {
	var out []map[string]any
	for _, key := range []string{"children", "components"} {
		list, ok := comp[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if child, ok := item.(map[string]any); ok {
				out = append(out, child)
			}
		}
	}
	return out
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
