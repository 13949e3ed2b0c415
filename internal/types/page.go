// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

import "time"

// Page is the authored page the core reads at publish time. Ownership of the
// page table is external; the core never writes anything but is_public.
//
// LayoutData is a tree of components. Components are kept as generic maps
// because the builder has shipped several shape variants over time; the
// publish compiler normalizes them at its boundary.
type Page struct {
	ID          string           `json:"id"`
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	LayoutData  []map[string]any `json:"layout_data"`
	SEOData     map[string]any   `json:"seo_data,omitempty"`
	IsPublic    bool             `json:"is_public"`
	IsHomepage  bool             `json:"is_homepage"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// FrontendFilter is one user-facing filter declared on a component binding.
type FrontendFilter struct {
	ID         string `json:"id"`
	Column     string `json:"column"`
	FilterType string `json:"filter_type"`
	Label      string `json:"label,omitempty"`
}

// Filter types that require a baked distinct-value options request.
const (
	FilterTypeDropdown    = "dropdown"
	FilterTypeMultiselect = "multiselect"
)

// NeedsOptions reports whether the filter's rendered control needs a
// pre-computed distinct-value request.
func (f FrontendFilter) NeedsOptions() bool {
	return (f.FilterType == FilterTypeDropdown || f.FilterType == FilterTypeMultiselect) && f.Column != ""
}
