// Copyright 2026 The Soundry Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/soundryhq/soundry/internal/organization"
)

// CreateOrganizationRequest represents signup data
type CreateOrganizationRequest struct {
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Subdomain string `json:"subdomain,omitempty"`
}

// CreateOrganization registers a new organization and provisions its
// workspace database. Returns 201 even when provisioning is still pending
// (the workspace reports "being set up" until the sweep repairs it).
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	org, result, err := h.orgService.CreateOrganization(r.Context(), req.Name, req.Slug, req.Subdomain)
	if err != nil {
		switch {
		case errors.Is(err, organization.ErrSlugTaken), errors.Is(err, organization.ErrSubdomainTaken):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"organization":       org,
		"workspace_ready":    result.Success,
		"workspace_database": result.DatabaseName,
	})
}

// GetOrganization retrieves an organization by ID
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	org, err := h.orgService.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, organization.ErrOrganizationNotFound) {
			respondError(w, http.StatusNotFound, "organization not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, org)
}

// ListOrganizations lists organizations with pagination
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	orgs, err := h.orgService.ListOrganizations(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"organizations": orgs,
		"limit":         limit,
		"offset":        offset,
	})
}

// WorkspaceStats returns row counts from the caller's own tenant
// database. Runs entirely on the handle resolved by TenantMiddleware.
func (h *Handler) WorkspaceStats(w http.ResponseWriter, r *http.Request) {
	handle := GetTenantHandle(r.Context())
	if handle == nil {
		respondError(w, http.StatusInternalServerError, "tenant context missing")
		return
	}

	var clients, sessions, invoices int64
	err := handle.Pool().QueryRow(r.Context(), `
		SELECT
			(SELECT count(*) FROM clients),
			(SELECT count(*) FROM sessions),
			(SELECT count(*) FROM invoices)
	`).Scan(&clients, &sessions, &invoices)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read workspace stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"organization_id": GetOrganizationID(r.Context()),
		"database":        handle.DatabaseName(),
		"clients":         clients,
		"sessions":        sessions,
		"invoices":        invoices,
	})
}
