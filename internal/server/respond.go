// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/publish/strategy"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/syncexec"
)

// envelope is the uniform response shape of every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

const maxBodyBytes = 10 << 20

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) respondMsg(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{Success: true, Message: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.V(1).Info("response write failed", "error", err.Error())
	}
}

// fail maps an error onto the documented status codes and writes the error
// envelope.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var details any

	var vErrs validator.ValidationErrors
	var connErr *adapter.ConnectionError
	switch {
	case errors.Is(err, store.ErrNotFound) || errors.Is(err, adapter.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &vErrs):
		status = http.StatusUnprocessableEntity
		details = validationDetails(vErrs)
	case errors.Is(err, strategy.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, strategy.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, strategy.ErrRejected):
		status = http.StatusBadGateway
	case errors.Is(err, syncexec.ErrBufferUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &connErr):
		status = http.StatusBadGateway
	case errors.Is(err, adapter.ErrUnsupportedKind):
		status = http.StatusBadRequest
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	s.writeJSON(w, status, envelope{Success: false, Error: err.Error(), Details: details})
}

// errBadRequest wraps client-shape failures (bad JSON, bad query params).
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func validationDetails(errs validator.ValidationErrors) []map[string]string {
	out := make([]map[string]string, 0, len(errs))
	for _, fe := range errs {
		out = append(out, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return out
}

// decode reads a JSON body into dst and runs struct validation when dst has
// validate tags.
func (s *Server) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return badRequestf("reading body: %v", err)
	}
	if len(body) == 0 {
		return badRequestf("empty body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequestf("decoding body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			return vErrs
		}
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// dst is not a struct, nothing to validate.
			return nil
		}
		return err
	}
	return nil
}
