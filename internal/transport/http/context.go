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

	"github.com/soundryhq/soundry/internal/tenantdb"
)

type contextKey string

const (
	organizationIDKey contextKey = "organization_id"
	tenantHandleKey   contextKey = "tenant_handle"
)

// WithTenant stores the resolved organization and its database handle.
func WithTenant(ctx context.Context, organizationID int64, h *tenantdb.Handle) context.Context {
	ctx = context.WithValue(ctx, organizationIDKey, organizationID)
	return context.WithValue(ctx, tenantHandleKey, h)
}

// GetOrganizationID retrieves the resolved organization ID from context.
// Returns 0 when no tenant context is present.
func GetOrganizationID(ctx context.Context) int64 {
	if val, ok := ctx.Value(organizationIDKey).(int64); ok {
		return val
	}
	return 0
}

// GetTenantHandle retrieves the tenant database handle from context.
func GetTenantHandle(ctx context.Context) *tenantdb.Handle {
	if val, ok := ctx.Value(tenantHandleKey).(*tenantdb.Handle); ok {
		return val
	}
	return nil
}
