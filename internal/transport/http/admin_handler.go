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
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/soundryhq/soundry/internal/audit"
	"github.com/soundryhq/soundry/internal/tenantdb"
)

// ListTenants returns every registered tenant database mapping plus the
// live connection cache size.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	records, err := h.registry.Directory().ListRecords(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenant databases")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenants":            records,
		"cached_connections": h.registry.ConnectionCount(),
		"master_available":   h.registry.IsMasterAvailable(),
	})
}

// ProvisionTenant runs one provisioning attempt for an organization.
// Safe to call repeatedly; an already-provisioned organization converges
// to success.
func (h *Handler) ProvisionTenant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	result := h.provisioner.Provision(r.Context(), id)
	if !result.Success {
		var conflict *tenantdb.MappingConflictError
		status := http.StatusInternalServerError
		if errors.As(result.Err, &conflict) {
			status = http.StatusConflict
		}
		respondJSON(w, status, map[string]any{
			"organization_id": result.OrganizationID,
			"database_name":   result.DatabaseName,
			"success":         false,
			"error":           result.Err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// DeprovisionTenant drops an organization's tenant database and removes
// its mapping. Destructive.
func (h *Handler) DeprovisionTenant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	if err := h.provisioner.Deprovision(r.Context(), id); err != nil {
		if errors.Is(err, tenantdb.ErrNotProvisioned) {
			respondError(w, http.StatusNotFound, "organization has no tenant database")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to deprovision tenant")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"organization_id": id, "dropped": true})
}

// DrainConnections closes every cached database connection. Handles are
// re-created lazily on the next request; used before maintenance windows.
func (h *Handler) DrainConnections(w http.ResponseWriter, r *http.Request) {
	drained := h.registry.ConnectionCount()
	h.registry.CloseAll()

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeConnectionsDrained,
		Metadata: map[string]any{"tenant_connections": drained},
	})

	respondJSON(w, http.StatusOK, map[string]any{"drained_tenant_connections": drained})
}
