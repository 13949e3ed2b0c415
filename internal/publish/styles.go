// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import "sort"

// mergeStyles folds the legacy stylesData field into the component's styles.
// The merged values are base values overridden by stylesData.values;
// activeProperties defaults to the key set of the merged values when absent.
// stylesData is removed from the output.
func mergeStyles(comp map[string]any) {
	stylesData, hasLegacy := comp["stylesData"].(map[string]any)
	if !hasLegacy {
		delete(comp, "stylesData")
		if _, ok := comp["styles"]; !ok {
			return
		}
	}

	styles, ok := comp["styles"].(map[string]any)
	if !ok {
		styles = map[string]any{}
	}

	values, _ := styles["values"].(map[string]any)
	merged := make(map[string]any, len(values))
	for k, v := range values {
		merged[k] = v
	}
	if overrides, ok := stylesData["values"].(map[string]any); ok {
		for k, v := range overrides {
			merged[k] = v
		}
	}
	styles["values"] = merged

	if _, ok := styles["activeProperties"]; !ok {
		keys := make([]any, 0, len(merged))
		for _, k := range sortedKeys(merged) {
			keys = append(keys, k)
		}
		styles["activeProperties"] = keys
	}
	if _, ok := styles["stylingMode"]; !ok {
		if mode, ok := stylesData["stylingMode"]; ok {
			styles["stylingMode"] = mode
		}
	}

	comp["styles"] = styles
	delete(comp, "stylesData")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
