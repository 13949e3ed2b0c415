// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for adapter operations
var (
	// ErrNotFound indicates the requested record or table was not found
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedKind indicates the datasource kind has no working adapter
	ErrUnsupportedKind = errors.New("unsupported datasource kind")

	// ErrConnectionFailed indicates the backend could not be reached
	ErrConnectionFailed = errors.New("connection failed")

	// ErrAuthenticationFailed indicates the backend rejected the credentials
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotConnected indicates an operation was attempted before Connect
	ErrNotConnected = errors.New("adapter not connected")
)

// ConnectionError is a classified connection failure carrying a structured
// suggestion for the user. It is marked on the datasource
// (last_test_success=false) and never auto-retried.
type ConnectionError struct {
	Kind       string // auth | host | port | ssl | timeout | unknown
	Suggestion string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ClassifyConnectionError wraps a raw dial/handshake error with a failure
// class and a suggestion. The classification is pattern-based because the
// drivers do not expose structured causes for most network failures.
func ClassifyConnectionError(err error) *ConnectionError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "28p01"),
		strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return &ConnectionError{
			Kind:       "auth",
			Suggestion: "check the username, password and key configured for this datasource",
			Err:        err,
		}
	case strings.Contains(msg, "no such host"),
		strings.Contains(msg, "name resolution"),
		strings.Contains(msg, "server misbehaving"):
		return &ConnectionError{
			Kind:       "host",
			Suggestion: "the host could not be resolved; check the hostname for typos",
			Err:        err,
		}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "network is unreachable"):
		return &ConnectionError{
			Kind:       "port",
			Suggestion: "the port appears blocked or the server is not listening; check firewall rules and the port number",
			Err:        err,
		}
	case strings.Contains(msg, "ssl"), strings.Contains(msg, "tls"),
		strings.Contains(msg, "certificate"):
		return &ConnectionError{
			Kind:       "ssl",
			Suggestion: "SSL negotiation failed; the server may require or forbid SSL, or its certificate could not be verified",
			Err:        err,
		}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "i/o timeout"):
		return &ConnectionError{
			Kind:       "timeout",
			Suggestion: "the server did not answer in time; check network reachability and server load",
			Err:        err,
		}
	default:
		return &ConnectionError{
			Kind:       "unknown",
			Suggestion: "check the connection parameters and server logs",
			Err:        err,
		}
	}
}

// IsSSLError reports whether the error is a classified SSL failure.
func IsSSLError(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Kind == "ssl"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "ssl") || strings.Contains(msg, "tls") ||
		strings.Contains(msg, "certificate")
}

// IsNotFound reports whether the error means a missing record or table.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// OpError wraps an adapter method failure with the operation and table it
// happened on.
type OpError struct {
	Op    string
	Table string
	Err   error
}

func (e *OpError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, table string, err error) error {
	return &OpError{Op: op, Table: table, Err: err}
}
