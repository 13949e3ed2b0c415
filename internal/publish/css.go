// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"sort"
	"strings"
)

// baseCSS ships with every page regardless of the component set.
const baseCSS = `
.fb-page { margin: 0 auto; max-width: var(--fb-page-width, 1200px); padding: 0 16px; }
.fb-page * { box-sizing: border-box; }
.fb-hidden { display: none; }
`

// componentCSS holds the per-type CSS modules. Only the modules for types
// actually present on a page end up in its bundle.
var componentCSS = map[string]string{
	"table": `
.fb-table { width: 100%; border-collapse: collapse; }
.fb-table th { text-align: left; font-weight: 600; padding: 8px 12px; border-bottom: 2px solid var(--fb-border, #e2e2e2); }
.fb-table td { padding: 8px 12px; border-bottom: 1px solid var(--fb-border, #e2e2e2); }
.fb-table tr:hover td { background: var(--fb-row-hover, #fafafa); }
`,
	"form": `
.fb-form { display: flex; flex-direction: column; gap: 12px; }
.fb-form label { font-size: 13px; font-weight: 500; }
.fb-form input, .fb-form select, .fb-form textarea { padding: 8px 10px; border: 1px solid var(--fb-border, #ccc); border-radius: 4px; }
.fb-form button { align-self: flex-start; padding: 8px 16px; border-radius: 4px; }
`,
	"infolist": `
.fb-infolist { display: grid; grid-template-columns: max-content 1fr; gap: 6px 16px; }
.fb-infolist dt { font-weight: 500; color: var(--fb-muted, #666); }
.fb-infolist dd { margin: 0; }
`,
	"card": `
.fb-card { border: 1px solid var(--fb-border, #e2e2e2); border-radius: 8px; padding: 16px; }
.fb-card-title { font-size: 16px; font-weight: 600; margin-bottom: 8px; }
`,
	"text": `
.fb-text { line-height: 1.5; }
.fb-text .fb-icon { vertical-align: middle; margin-right: 4px; }
`,
	"button": `
.fb-button { display: inline-flex; align-items: center; gap: 6px; padding: 8px 16px; border-radius: 4px; cursor: pointer; }
`,
	"image": `
.fb-image { max-width: 100%; height: auto; display: block; }
`,
	"filter": `
.fb-filter-bar { display: flex; flex-wrap: wrap; gap: 8px; margin-bottom: 12px; }
.fb-filter-bar select, .fb-filter-bar input { padding: 6px 8px; border: 1px solid var(--fb-border, #ccc); border-radius: 4px; }
`,
}

// cssAliases fold builder type spellings onto css module names.
var cssAliases = map[string]string{
	"info_list":   "infolist",
	"data_table":  "table",
	"datatable":   "table",
	"text_block":  "text",
	"filter_bar":  "filter",
	"image_block": "image",
}

// buildCSSBundle emits a minified bundle of the base styles plus the modules
// for the component types present in the tree.
func buildCSSBundle(components []map[string]any) string {
	present := map[string]struct{}{}
	for _, comp := range components {
		collectComponentTypes(comp, present)
	}

	modules := make([]string, 0, len(present))
	for t := range present {
		key := strings.ToLower(t)
		if alias, ok := cssAliases[key]; ok {
			key = alias
		}
		if _, ok := componentCSS[key]; ok {
			modules = append(modules, key)
		}
	}
	sort.Strings(modules)

	var b strings.Builder
	b.WriteString(minifyCSS(baseCSS))
	for _, key := range modules {
		b.WriteString(minifyCSS(componentCSS[key]))
	}
	return b.String()
}

func collectComponentTypes(comp map[string]any, into map[string]struct{}) {
	if t := asString(comp["type"]); t != "" {
		into[t] = struct{}{}
	}
	for _, child := range childComponents(comp) {
		collectComponentTypes(child, into)
	}
}

// minifyCSS strips comments and collapses whitespace. It is intentionally
// simple; the modules above are plain declaration blocks.
func minifyCSS(css string) string {
	for {
		start := strings.Index(css, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(css[start:], "*/")
		if end < 0 {
			css = css[:start]
			break
		}
		css = css[:start] + css[start+end+2:]
	}

	var b strings.Builder
	space := false
	for _, r := range css {
		switch r {
		case ' ', '\t', '\n', '\r':
			space = true
		case '{', '}', ':', ';', ',', '>':
			b.WriteRune(r)
			space = false
		default:
			if space && b.Len() > 0 {
				last := b.String()[b.Len()-1]
				if last != '{' && last != '}' && last != ':' && last != ';' && last != ',' && last != '>' {
					b.WriteByte(' ')
				}
			}
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}
