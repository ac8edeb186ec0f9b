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
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/soundryhq/soundry/internal/audit"
	"github.com/soundryhq/soundry/internal/organization"
	"github.com/soundryhq/soundry/internal/tenantdb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	orgService  *organization.Service
	provisioner *tenantdb.Provisioner
	registry    *tenantdb.Registry
	auditLogger audit.Logger
	adminSecret string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orgService *organization.Service,
	provisioner *tenantdb.Provisioner,
	registry *tenantdb.Registry,
	auditLogger audit.Logger,
	adminSecret string,
) *Handler {
	return &Handler{
		orgService:  orgService,
		provisioner: provisioner,
		registry:    registry,
		auditLogger: auditLogger,
		adminSecret: adminSecret,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Organization signup & lookup
	r.Route("/api/organizations", func(r chi.Router) {
		r.Post("/", h.CreateOrganization)
		r.Get("/", h.ListOrganizations)
		r.Get("/{id}", h.GetOrganization)
	})

	// Tenant-scoped routes: every request runs against the caller's own
	// database, resolved by TenantMiddleware.
	r.Route("/api/workspace", func(r chi.Router) {
		r.Use(h.TenantMiddleware)
		r.Get("/stats", h.WorkspaceStats)
	})

	// Superadmin plane
	if h.adminSecret != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(h.adminSecret))
			r.Get("/tenants", h.ListTenants)
			r.Post("/organizations/{id}/provision", h.ProvisionTenant)
			r.Delete("/organizations/{id}/database", h.DeprovisionTenant)
			r.Post("/connections/drain", h.DrainConnections)
		})
	} else {
		slog.Warn("ADMIN_TOKEN_SECRET not set, superadmin endpoints disabled")
	}

	return r
}

// HealthCheck reports service and master directory status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"service":            "soundry",
		"master_available":   h.registry.IsMasterAvailable(),
		"tenant_connections": h.registry.ConnectionCount(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
