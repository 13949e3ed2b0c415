// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"postgres auth", errors.New("FATAL: password authentication failed for user"), "auth"},
		{"mysql auth", errors.New("Error 1045: Access denied for user"), "auth"},
		{"dns failure", errors.New("dial tcp: lookup db.example.com: no such host"), "host"},
		{"refused", errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), "port"},
		{"ssl required", errors.New("pq: SSL is not enabled on the server"), "ssl"},
		{"bad certificate", errors.New("x509: certificate signed by unknown authority"), "ssl"},
		{"timeout", errors.New("dial tcp: i/o timeout"), "timeout"},
		{"deadline", errors.New("context deadline exceeded"), "timeout"},
		{"other", errors.New("something odd happened"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ClassifyConnectionError(tt.err)
			require.NotNil(t, ce)
			assert.Equal(t, tt.wantKind, ce.Kind)
			assert.NotEmpty(t, ce.Suggestion)
			assert.ErrorIs(t, ce, tt.err)
		})
	}
}

func TestClassifyConnectionErrorNil(t *testing.T) {
	assert.Nil(t, ClassifyConnectionError(nil))
}

func TestIsSSLError(t *testing.T) {
	classified := ClassifyConnectionError(errors.New("tls: handshake failure"))
	assert.True(t, IsSSLError(classified))
	assert.True(t, IsSSLError(errors.New("certificate verify failed")))
	assert.False(t, IsSSLError(errors.New("connection refused")))
	assert.False(t, IsSSLError(ClassifyConnectionError(errors.New("connection refused"))))
}

func TestOpErrorWrapping(t *testing.T) {
	err := opErr("read records", "users", fmt.Errorf("wrapped: %w", ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "read records users")

	bare := opErr("list tables", "", errors.New("boom"))
	assert.Equal(t, "list tables: boom", bare.Error())
}
