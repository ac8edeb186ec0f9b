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
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/soundryhq/soundry/internal/observability/logger"
	"github.com/soundryhq/soundry/internal/organization"
	"github.com/soundryhq/soundry/internal/tenantdb"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TenantMiddleware resolves the caller's organization and attaches its
// tenant database handle to the request context.
//
// Resolution order: X-Organization-ID header, then the subdomain of the
// Host header. A provisioned-but-unreachable tenant database and an
// organization whose workspace is still provisioning both map to 503; the
// former is retryable, the latter clears once the fix-up sweep runs.
func (h *Handler) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, err := h.resolveOrganizationID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		handle, err := h.registry.GetTenantConnection(r.Context(), orgID)
		if err != nil {
			h.respondTenantError(w, r, orgID, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), orgID, handle)))
	})
}

func (h *Handler) resolveOrganizationID(r *http.Request) (int64, error) {
	if raw := r.Header.Get("X-Organization-ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, errors.New("invalid X-Organization-ID header")
		}
		return id, nil
	}

	host := r.Host
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	parts := strings.SplitN(host, ".", 2)
	if len(parts) == 2 && parts[0] != "" && parts[0] != "www" {
		org, err := h.orgService.GetBySubdomain(r.Context(), parts[0])
		if err == nil {
			slog.DebugContext(r.Context(), "organization resolved from subdomain",
				logger.Subdomain(parts[0]),
				logger.OrganizationID(org.ID))
			return org.ID, nil
		}
		if !errors.Is(err, organization.ErrOrganizationNotFound) {
			return 0, errors.New("failed to resolve organization")
		}
	}

	return 0, errors.New("organization not identified: set X-Organization-ID or use a workspace subdomain")
}

func (h *Handler) respondTenantError(w http.ResponseWriter, r *http.Request, orgID int64, err error) {
	switch {
	case errors.Is(err, tenantdb.ErrNotProvisioned):
		respondError(w, http.StatusServiceUnavailable, "your workspace is still being set up, please try again shortly")
	default:
		var connErr *tenantdb.ConnectionError
		if errors.As(err, &connErr) {
			slog.ErrorContext(r.Context(), "tenant database unreachable",
				logger.OrganizationID(orgID),
				logger.ErrorType("connection"),
				logger.Error(err))
			w.Header().Set("Retry-After", "5")
			respondError(w, http.StatusServiceUnavailable, "workspace temporarily unavailable, please retry")
			return
		}
		slog.ErrorContext(r.Context(), "failed to resolve tenant connection",
			logger.OrganizationID(orgID),
			logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// AdminAuthMiddleware guards superadmin endpoints with an HS256 bearer
// token carrying role=superadmin.
func AdminAuthMiddleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || claims["role"] != "superadmin" {
				respondError(w, http.StatusForbidden, "superadmin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
