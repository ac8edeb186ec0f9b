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
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/soundryhq/soundry/internal/observability/logger"
)

//go:embed migrations/tenant/*.sql
var tenantMigrationsFS embed.FS

//go:embed migrations/master/*.sql
var masterMigrationsFS embed.FS

// Migrator applies schema migrations to a database handle.
type Migrator interface {
	Apply(ctx context.Context, h *Handle) error
}

// migration is one SQL file, ordered by its numeric filename prefix.
type migration struct {
	version int
	name    string
	content string
}

// fsMigrator applies migrations embedded at build time. Migrations run in
// strict version order; one that fails because its objects already exist
// is treated as already applied, so re-running after a partial failure
// resumes where the previous attempt stopped.
type fsMigrator struct {
	fsys    fs.FS
	dir     string
	timeout time.Duration
}

// NewTenantMigrator returns the migrator for the embedded tenant schema.
func NewTenantMigrator(timeout time.Duration) Migrator {
	return &fsMigrator{fsys: tenantMigrationsFS, dir: "migrations/tenant", timeout: timeout}
}

// NewMasterMigrator returns the migrator for the embedded master directory
// schema (organizations and tenant_databases).
func NewMasterMigrator(timeout time.Duration) Migrator {
	return &fsMigrator{fsys: masterMigrationsFS, dir: "migrations/master", timeout: timeout}
}

func (m *fsMigrator) Apply(ctx context.Context, h *Handle) error {
	migrations, err := loadMigrations(m.fsys, m.dir)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if err := m.applyOne(ctx, h, mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *fsMigrator) applyOne(ctx context.Context, h *Handle, mig migration) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	_, err := h.Pool().Exec(ctx, mig.content)
	if err == nil {
		slog.InfoContext(ctx, "migration applied",
			logger.Component("tenantdb"),
			logger.Database(h.DatabaseName()),
			logger.Migration(mig.name))
		return nil
	}

	if isAlreadyExists(err) {
		slog.DebugContext(ctx, "migration already applied, skipping",
			logger.Component("tenantdb"),
			logger.Database(h.DatabaseName()),
			logger.Migration(mig.name))
		return nil
	}

	return &MigrationError{Migration: mig.name, Err: err}
}

// loadMigrations reads and orders the SQL files in dir. Ordering is by the
// numeric filename prefix (e.g. "002_invoices.sql" → 2); migrations are
// never reordered or skipped relative to it.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			return nil, fmt.Errorf("migration file %s has no version prefix", entry.Name())
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("migration file %s has invalid version prefix: %w", entry.Name(), err)
		}

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			version: version,
			name:    entry.Name(),
			content: string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}

// isAlreadyExists reports whether err is PostgreSQL telling us the object
// a migration creates is already there. Everything else is a real failure.
func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgerrcode.DuplicateTable,
		pgerrcode.DuplicateColumn,
		pgerrcode.DuplicateObject,
		pgerrcode.DuplicateSchema,
		pgerrcode.DuplicateFunction,
		pgerrcode.UniqueViolation:
		return true
	}
	return false
}

// isDuplicateDatabase reports whether err is PostgreSQL rejecting a
// CREATE DATABASE because the database already exists.
func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateDatabase
}
