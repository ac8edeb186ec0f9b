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

	"github.com/jackc/pgx/v5"
)

// DatabaseAdmin issues database-level DDL against the PostgreSQL server.
// Requires a role with CREATEDB.
type DatabaseAdmin interface {
	// CreateDatabase creates the named database. Creating a database that
	// already exists is a no-op, so a provisioning retry after partial
	// failure can proceed.
	CreateDatabase(ctx context.Context, name string) error

	// DropDatabase terminates open connections to the named database and
	// drops it. Dropping a database that does not exist is a no-op.
	DropDatabase(ctx context.Context, name string) error
}

// pgDatabaseAdmin implements DatabaseAdmin over the master connection.
// CREATE DATABASE cannot run inside a transaction, so statements go
// straight to the pool.
type pgDatabaseAdmin struct {
	master masterSource
}

func (a *pgDatabaseAdmin) CreateDatabase(ctx context.Context, name string) error {
	h, err := a.master.GetMasterConnection(ctx)
	if err != nil {
		return err
	}

	_, err = h.Pool().Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{name}.Sanitize()))
	if err != nil {
		if isDuplicateDatabase(err) {
			return nil
		}
		return fmt.Errorf("failed to create database %q: %w", name, err)
	}
	return nil
}

func (a *pgDatabaseAdmin) DropDatabase(ctx context.Context, name string) error {
	h, err := a.master.GetMasterConnection(ctx)
	if err != nil {
		return err
	}

	// Postgres refuses to drop a database with open connections.
	_, err = h.Pool().Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()
	`, name)
	if err != nil {
		return fmt.Errorf("failed to terminate connections to %q: %w", name, err)
	}

	_, err = h.Pool().Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{name}.Sanitize()))
	if err != nil {
		return fmt.Errorf("failed to drop database %q: %w", name, err)
	}
	return nil
}
