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

// Package tenantdb maps organizations to isolated PostgreSQL databases.
//
// Each organization owns one physical database. The Registry resolves an
// organization ID to its database through the master directory, lazily
// establishes one pooled connection per database, and caches it for the
// lifetime of the process. The Provisioner creates and migrates new tenant
// databases and registers them in the directory.
package tenantdb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soundryhq/soundry/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// Registry is the process-wide cache of live database handles, one per
// physical database. It is safe for concurrent use. Create one per process
// (or per test) and pass it by reference; it is deliberately not a
// package-level singleton.
type Registry struct {
	connector Connector
	directory Directory

	mu      sync.RWMutex
	master  *Handle
	tenants map[string]*Handle // keyed by database name, not organization ID

	// group serializes connection establishment per database name so that
	// concurrent first access creates exactly one pool.
	group singleflight.Group
}

// NewRegistry creates a registry backed by the master directory's
// tenant_databases table.
func NewRegistry(connector Connector) *Registry {
	r := &Registry{
		connector: connector,
		tenants:   make(map[string]*Handle),
	}
	r.directory = &pgDirectory{master: r}
	return r
}

// NewRegistryWithDirectory creates a registry with an explicit directory.
// Used by tests to substitute the mapping source.
func NewRegistryWithDirectory(connector Connector, directory Directory) *Registry {
	return &Registry{
		connector: connector,
		directory: directory,
		tenants:   make(map[string]*Handle),
	}
}

// Directory returns the master directory accessor backing this registry.
func (r *Registry) Directory() Directory {
	return r.directory
}

// GetMasterConnection returns the cached handle to the master database,
// creating it on first call. Every call returns the same handle instance.
func (r *Registry) GetMasterConnection(ctx context.Context) (*Handle, error) {
	r.mu.RLock()
	h := r.master
	r.mu.RUnlock()
	if h != nil {
		return h, nil
	}

	v, err, _ := r.group.Do("master", func() (any, error) {
		r.mu.RLock()
		cached := r.master
		r.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		h, err := r.connector.Master(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.master = h
		r.mu.Unlock()

		slog.InfoContext(ctx, "master database connection established",
			logger.Component("tenantdb"),
			logger.Database(h.DatabaseName()))
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// GetTenantConnection returns the cached handle for the organization's
// tenant database, resolving the database name through the master
// directory and creating the connection on first access.
//
// Returns ErrNotProvisioned when the organization has no registered tenant
// database, and a *ConnectionError when the database cannot be reached. On
// failure no cache entry is created, so a later call retries from scratch.
func (r *Registry) GetTenantConnection(ctx context.Context, organizationID int64) (*Handle, error) {
	databaseName, err := r.directory.LookupDatabaseName(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	h, err := r.tenantByName(ctx, databaseName)
	if err != nil {
		return nil, &ConnectionError{
			OrganizationID: organizationID,
			DatabaseName:   databaseName,
			Err:            err,
		}
	}
	return h, nil
}

// tenantByName returns the cached handle for a database name, creating it
// if absent. The cache key is the database name: two organizations mapped
// to different databases can never share a handle, and no database ever
// gets a second pool.
func (r *Registry) tenantByName(ctx context.Context, databaseName string) (*Handle, error) {
	r.mu.RLock()
	h, ok := r.tenants[databaseName]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	v, err, _ := r.group.Do(databaseName, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have stored
		// the handle between our read and joining the group.
		r.mu.RLock()
		cached, ok := r.tenants[databaseName]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		h, err := r.connector.Tenant(ctx, databaseName)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.tenants[databaseName] = h
		r.mu.Unlock()

		slog.InfoContext(ctx, "tenant database connection established",
			logger.Component("tenantdb"),
			logger.Database(databaseName))
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// ConnectionCount returns the number of tenant handles currently cached.
// The master handle is not counted.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants)
}

// IsMasterAvailable reports whether a master handle is currently cached.
func (r *Registry) IsMasterAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.master != nil
}

// CloseAll releases every cached handle, master included, and clears the
// cache. The registry remains usable: a subsequent Get call transparently
// re-creates handles. Used for graceful shutdown and test isolation.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	tenants := r.tenants
	master := r.master
	r.tenants = make(map[string]*Handle)
	r.master = nil
	r.mu.Unlock()

	for name, h := range tenants {
		h.Close()
		slog.Info("tenant database connection closed",
			logger.Component("tenantdb"),
			logger.Database(name))
	}
	if master != nil {
		master.Close()
		slog.Info("master database connection closed", logger.Component("tenantdb"))
	}
}

// evict drops the cached handle for a database name and closes it. Used
// after a tenant database is dropped.
func (r *Registry) evict(databaseName string) {
	r.mu.Lock()
	h, ok := r.tenants[databaseName]
	if ok {
		delete(r.tenants, databaseName)
	}
	r.mu.Unlock()

	if ok {
		h.Close()
	}
}
