// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package expr evaluates the small template language used by view field
// mappings and sync transforms. Templates interpolate record fields with
// {{ ... }} placeholders; @name is shorthand for the current record's field.
// Evaluation never fails: unresolvable references yield nil and render empty.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Context carries the records a template can reference. Record is the
// default namespace; Master and Slave are addressed explicitly in sync
// transforms (master/m and slave/s).
type Context struct {
	Record map[string]any
	Master map[string]any
	Slave  map[string]any
}

// Eval evaluates the template. A template that is exactly one placeholder
// returns the referenced value with its native type (strings that parse as
// bool or number are coerced); anything else renders to a string.
func Eval(template string, ctx Context) any {
	t := strings.TrimSpace(template)
	if t == "" {
		return nil
	}

	// Whole-template single placeholder keeps the value typed.
	if inner, ok := singlePlaceholder(t); ok {
		return coerce(resolve(inner, ctx))
	}

	if !strings.Contains(t, "{{") {
		// A bare @field outside braces still resolves. A bare name that
		// matches a context field is a lookup; anything else is a literal.
		if strings.HasPrefix(t, "@") {
			return coerce(resolve(t, ctx))
		}
		if v := resolve(t, ctx); v != nil {
			return v
		}
		return template
	}

	var sb strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		inner := rest[start+2 : start+end]
		if v := resolve(strings.TrimSpace(inner), ctx); v != nil {
			sb.WriteString(stringify(v))
		}
		rest = rest[start+end+2:]
	}
	return sb.String()
}

// EvalString renders the template to a string regardless of value type.
func EvalString(template string, ctx Context) string {
	return stringify(Eval(template, ctx))
}

// singlePlaceholder reports whether the template is one {{ ... }} and
// returns its inner expression.
func singlePlaceholder(t string) (string, bool) {
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") {
		return "", false
	}
	inner := t[2 : len(t)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// resolve evaluates one placeholder expression against the context.
func resolve(inner string, ctx Context) any {
	if inner == "" {
		return nil
	}

	if name, ok := strings.CutPrefix(inner, "@"); ok {
		return lookup(ctx.Record, name)
	}

	if ns, field, ok := namespaced(inner); ok {
		switch ns {
		case "master", "m":
			return lookup(ctx.Master, field)
		case "slave", "s":
			return lookup(ctx.Slave, field)
		case "record", "r":
			return lookup(ctx.Record, field)
		}
		return nil
	}

	// Bare identifier: the record first, then master, then slave.
	for _, m := range []map[string]any{ctx.Record, ctx.Master, ctx.Slave} {
		if v, ok := m[inner]; ok {
			return v
		}
	}
	return nil
}

// namespaced parses master["col"], master['col'] and master.col forms.
func namespaced(inner string) (ns, field string, ok bool) {
	if open := strings.Index(inner, "["); open > 0 && strings.HasSuffix(inner, "]") {
		ns = strings.TrimSpace(inner[:open])
		field = strings.TrimSpace(inner[open+1 : len(inner)-1])
		field = strings.Trim(field, `"'`)
		return ns, field, field != ""
	}
	if dot := strings.Index(inner, "."); dot > 0 {
		return strings.TrimSpace(inner[:dot]), strings.TrimSpace(inner[dot+1:]), true
	}
	return "", "", false
}

func lookup(m map[string]any, field string) any {
	if m == nil {
		return nil
	}
	v, ok := m[field]
	if !ok {
		return nil
	}
	return v
}

// coerce turns string values that read as booleans or numbers into their
// typed form. Non-string values pass through untouched.
func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
