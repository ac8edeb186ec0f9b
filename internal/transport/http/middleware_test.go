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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundryhq/soundry/internal/audit"
	"github.com/soundryhq/soundry/internal/tenantdb"
)

// stubConnector hands out poolless handles, or fails every attempt.
type stubConnector struct {
	err error
}

func (c *stubConnector) Master(ctx context.Context) (*tenantdb.Handle, error) {
	if c.err != nil {
		return nil, c.err
	}
	return tenantdb.NewHandle(nil, "soundry_master"), nil
}

func (c *stubConnector) Tenant(ctx context.Context, databaseName string) (*tenantdb.Handle, error) {
	if c.err != nil {
		return nil, c.err
	}
	return tenantdb.NewHandle(nil, databaseName), nil
}

// stubDirectory maps organization IDs to database names in memory.
type stubDirectory struct {
	names map[int64]string
}

func (d *stubDirectory) LookupDatabaseName(ctx context.Context, organizationID int64) (string, error) {
	name, ok := d.names[organizationID]
	if !ok {
		return "", fmt.Errorf("organization %d: %w", organizationID, tenantdb.ErrNotProvisioned)
	}
	return name, nil
}

func (d *stubDirectory) RegisterMapping(ctx context.Context, organizationID int64, databaseName string) error {
	d.names[organizationID] = databaseName
	return nil
}

func (d *stubDirectory) DeleteMapping(ctx context.Context, organizationID int64) error {
	delete(d.names, organizationID)
	return nil
}

func (d *stubDirectory) ListRecords(ctx context.Context) ([]tenantdb.TenantDatabaseRecord, error) {
	records := make([]tenantdb.TenantDatabaseRecord, 0, len(d.names))
	for id, name := range d.names {
		records = append(records, tenantdb.TenantDatabaseRecord{OrganizationID: id, DatabaseName: name})
	}
	return records, nil
}

func newTestHandler(connector tenantdb.Connector, directory tenantdb.Directory, adminSecret string) *Handler {
	registry := tenantdb.NewRegistryWithDirectory(connector, directory)
	return NewHandler(nil, nil, registry, audit.NewSlogLogger(), adminSecret)
}

func tenantEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := GetOrganizationID(r.Context())
		require.NotZero(t, orgID)
		handle := GetTenantHandle(r.Context())
		require.NotNil(t, handle)
		w.Header().Set("X-Test-Org", fmt.Sprintf("%d", orgID))
		w.Header().Set("X-Test-Database", handle.DatabaseName())
		w.WriteHeader(http.StatusOK)
	})
}

// TestPurpose: Validates that a provisioned organization's request reaches the handler with its own database attached.
// Scope: Unit Test
// Security: Tenant routing is the isolation boundary for all workspace data (CWE-284)
// Expected: 200 with the organization's database name resolved from the header.
// Test Case ID: HTTP-MW-01
func TestTenantMiddleware_ResolvesFromHeader(t *testing.T) {
	h := newTestHandler(&stubConnector{}, &stubDirectory{names: map[int64]string{42: "tenant_42"}}, "")
	srv := h.TenantMiddleware(tenantEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/workspace/stats", nil)
	req.Header.Set("X-Organization-ID", "42")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-Test-Org"))
	assert.Equal(t, "tenant_42", rec.Header().Get("X-Test-Database"))
}

// TestPurpose: Validates the user-facing response for an organization whose workspace is not provisioned yet.
// Scope: Unit Test
// Expected: 503 with the "still being set up" message, not an internal error.
// Test Case ID: HTTP-MW-02
func TestTenantMiddleware_NotProvisioned(t *testing.T) {
	h := newTestHandler(&stubConnector{}, &stubDirectory{names: map[int64]string{}}, "")
	srv := h.TenantMiddleware(tenantEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/workspace/stats", nil)
	req.Header.Set("X-Organization-ID", "99")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "still being set up")
}

// TestPurpose: Validates the response when the tenant database exists but cannot be reached.
// Scope: Unit Test
// Expected: 503 with a Retry-After header; the caller is told to retry, not that the workspace is missing.
// Test Case ID: HTTP-MW-03
func TestTenantMiddleware_DatabaseUnreachable(t *testing.T) {
	connector := &stubConnector{err: errors.New("connection refused")}
	h := newTestHandler(connector, &stubDirectory{names: map[int64]string{42: "tenant_42"}}, "")
	srv := h.TenantMiddleware(tenantEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/workspace/stats", nil)
	req.Header.Set("X-Organization-ID", "42")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "temporarily unavailable")
}

// TestPurpose: Validates rejection of requests that identify no organization at all.
// Scope: Unit Test
// Expected: 400 with guidance on how to identify the workspace.
// Test Case ID: HTTP-MW-04
func TestTenantMiddleware_MissingIdentification(t *testing.T) {
	h := newTestHandler(&stubConnector{}, &stubDirectory{names: map[int64]string{}}, "")
	srv := h.TenantMiddleware(tenantEcho(t))

	tests := []struct {
		name   string
		header string
	}{
		{"no header, bare host", ""},
		{"malformed header", "not-a-number"},
		{"non-positive id", "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/workspace/stats", nil)
			req.Host = "localhost:8080"
			if tt.header != "" {
				req.Header.Set("X-Organization-ID", tt.header)
			}
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func signAdminToken(t *testing.T, secret, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// TestPurpose: Validates the superadmin guard on the administrative plane.
// Scope: Unit Test
// Security: Provisioning and database drops must be unreachable without the superadmin role (CWE-862)
// Expected: No token 401, wrong role 403, wrong key 401, valid superadmin token 200.
// Test Case ID: HTTP-MW-05
func TestAdminAuthMiddleware(t *testing.T) {
	const secret = "test-admin-secret-0123456789abcdef"
	srv := AdminAuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name      string
		authorize func(r *http.Request)
		wantCode  int
	}{
		{"missing token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"not a bearer token", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic abc")
		}, http.StatusUnauthorized},
		{"wrong signing key", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signAdminToken(t, "another-secret-another-secret-12", "superadmin"))
		}, http.StatusUnauthorized},
		{"wrong role", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signAdminToken(t, secret, "member"))
		}, http.StatusForbidden},
		{"superadmin", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signAdminToken(t, secret, "superadmin"))
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/connections/drain", nil)
			tt.authorize(req)
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
