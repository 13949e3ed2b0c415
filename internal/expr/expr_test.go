// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEval(t *testing.T) {
	ctx := Context{
		Record: map[string]any{
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"age":        36,
			"active":     true,
		},
		Master: map[string]any{"email": "ada@example.com", "score": "42"},
		Slave:  map[string]any{"email": "old@example.com"},
	}

	tests := []struct {
		name     string
		template string
		want     any
	}{
		{"concat fields", "{{ @first_name }} {{ @last_name }}", "Ada Lovelace"},
		{"single placeholder keeps type", "{{ @age }}", 36},
		{"single bool placeholder", "{{ @active }}", true},
		{"bare shorthand outside braces", "@first_name", "Ada"},
		{"master bracket form", `{{ master["email"] }}`, "ada@example.com"},
		{"master single quotes", `{{ master['email'] }}`, "ada@example.com"},
		{"m shorthand", `{{ m["email"] }}`, "ada@example.com"},
		{"slave dot form", "{{ slave.email }}", "old@example.com"},
		{"s shorthand", `{{ s["email"] }}`, "old@example.com"},
		{"bare identifier falls through namespaces", "{{ email }}", "ada@example.com"},
		{"string number coerced", `{{ master["score"] }}`, int64(42)},
		{"missing field renders empty", "x={{ @missing }}", "x="},
		{"missing single placeholder is nil", "{{ @missing }}", nil},
		{"bare name resolves from record", "first_name", "Ada"},
		{"bare name falls through to master", "email", "ada@example.com"},
		{"unmatched literal passes through", "hello world", "hello world"},
		{"mixed literal and field", "Hi {{ @first_name }}!", "Hi Ada!"},
		{"unclosed placeholder kept verbatim", "Hi {{ @first_name", "Hi {{ @first_name"},
		{"empty template", "", nil},
		{"unknown namespace is nil", `{{ other["x"] }}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eval(tt.template, ctx))
		})
	}
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, true, coerce("true"))
	assert.Equal(t, false, coerce("false"))
	assert.Equal(t, int64(7), coerce("7"))
	assert.Equal(t, 1.5, coerce("1.5"))
	assert.Equal(t, "True", coerce("True"))
	assert.Equal(t, "7a", coerce("7a"))
	assert.Equal(t, 7, coerce(7))
}

func TestEvalString(t *testing.T) {
	ctx := Context{Record: map[string]any{"n": 3}}
	assert.Equal(t, "3", EvalString("{{ @n }}", ctx))
	assert.Equal(t, "", EvalString("{{ @missing }}", ctx))
}
