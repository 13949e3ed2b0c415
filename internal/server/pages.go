// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) publishPage(w http.ResponseWriter, r *http.Request) {
	force := true
	if raw := r.URL.Query().Get("force"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			force = v
		}
	}
	result, err := s.publisher.Publish(r.Context(), chi.URLParam(r, "pageID"), force)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) unpublishPage(w http.ResponseWriter, r *http.Request) {
	if err := s.publisher.Unpublish(r.Context(), chi.URLParam(r, "pageID")); err != nil {
		s.fail(w, err)
		return
	}
	s.respondMsg(w, http.StatusOK, "page unpublished")
}

// publicPage serves the live compiled page for the edge. The compile runs
// fresh so server-side rendering always sees current schemas and requests.
func (s *Server) publicPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.publisher.PublicPage(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, page)
}
