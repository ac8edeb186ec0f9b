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

package tenantdb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handle is a live, poolable reference to one physical database. Handles
// live only in the Registry cache; at most one handle per database exists
// in a process at a time.
type Handle struct {
	pool         *pgxpool.Pool
	databaseName string
}

// NewHandle wraps an existing pool as a registry handle. Custom Connector
// implementations use it to build their return values.
func NewHandle(pool *pgxpool.Pool, databaseName string) *Handle {
	return &Handle{pool: pool, databaseName: databaseName}
}

// Pool returns the underlying connection pool.
func (h *Handle) Pool() *pgxpool.Pool {
	return h.pool
}

// DatabaseName returns the name of the physical database this handle
// points at.
func (h *Handle) DatabaseName() string {
	return h.databaseName
}

// Close releases the underlying pool. Safe to call on handles created
// without a pool (test doubles).
func (h *Handle) Close() {
	if h.pool != nil {
		h.pool.Close()
	}
}

// Connector establishes connections to physical databases. The production
// implementation derives per-tenant connection strings from the master
// connection string; tests substitute their own.
type Connector interface {
	// Master connects to the master database. Returns
	// ErrMasterNotConfigured when no connection string is configured.
	Master(ctx context.Context) (*Handle, error)

	// Tenant connects to the named tenant database.
	Tenant(ctx context.Context, databaseName string) (*Handle, error)
}

// ConnectorConfig holds connection pool settings shared by the master and
// all tenant databases.
type ConnectorConfig struct {
	// ConnString is the master database connection string. Per-tenant
	// connection strings are derived from it by swapping the database name.
	ConnString string

	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *ConnectorConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// PGXConnector implements Connector on pgxpool.
type PGXConnector struct {
	cfg ConnectorConfig
}

// NewPGXConnector creates a connector from the given configuration.
func NewPGXConnector(cfg ConnectorConfig) *PGXConnector {
	cfg.ApplyDefaults()
	return &PGXConnector{cfg: cfg}
}

// Master connects to the database named in the configured connection string.
func (c *PGXConnector) Master(ctx context.Context) (*Handle, error) {
	if c.cfg.ConnString == "" {
		return nil, ErrMasterNotConfigured
	}
	return c.connect(ctx, "")
}

// Tenant connects to the named database using the master connection
// string as a template.
func (c *PGXConnector) Tenant(ctx context.Context, databaseName string) (*Handle, error) {
	if c.cfg.ConnString == "" {
		return nil, ErrMasterNotConfigured
	}
	return c.connect(ctx, databaseName)
}

// connect builds the pool. An empty databaseName keeps the database from
// the connection string (the master).
func (c *PGXConnector) connect(ctx context.Context, databaseName string) (*Handle, error) {
	poolConfig, err := pgxpool.ParseConfig(c.cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if databaseName != "" {
		poolConfig.ConnConfig.Database = databaseName
	}
	poolConfig.MaxConns = c.cfg.MaxConns
	poolConfig.MinConns = c.cfg.MinConns
	poolConfig.ConnConfig.ConnectTimeout = c.cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection before handing the pool out; a handle that cannot
	// reach its database must never enter the cache.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	name := databaseName
	if name == "" {
		name = poolConfig.ConnConfig.Database
	}
	return &Handle{pool: pool, databaseName: name}, nil
}
