// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

// scrubNulls removes nil-valued keys recursively. Optional fields must be
// absent in the bundle, not null, or downstream validators reject the page.
func scrubNulls(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			scrubNulls(val)
		case []any:
			m[k] = scrubList(val)
		}
	}
}

func scrubList(list []any) []any {
	out := list[:0]
	for _, item := range list {
		switch val := item.(type) {
		case nil:
			continue
		case map[string]any:
			scrubNulls(val)
			out = append(out, val)
		case []any:
			out = append(out, scrubList(val))
		default:
			out = append(out, val)
		}
	}
	return out
}
