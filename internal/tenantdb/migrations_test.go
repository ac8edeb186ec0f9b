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
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that migrations are ordered by numeric prefix, not lexicographically.
// Scope: Unit Test
// Expected: "10_*" sorts after "2_*" even though it sorts before it as a string.
// Test Case ID: MIG-01
func TestLoadMigrations_NumericOrdering(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/10_late.sql": {Data: []byte("CREATE TABLE late ();")},
		"migrations/2_early.sql": {Data: []byte("CREATE TABLE early ();")},
		"migrations/1_first.sql": {Data: []byte("CREATE TABLE first ();")},
		"migrations/notes.md":    {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys, "migrations")

	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, "1_first.sql", migrations[0].name)
	assert.Equal(t, "2_early.sql", migrations[1].name)
	assert.Equal(t, "10_late.sql", migrations[2].name)
}

// TestPurpose: Validates rejection of migration files without a parseable version prefix.
// Scope: Unit Test
// Expected: A file named without a numeric prefix fails loading with a descriptive error.
// Test Case ID: MIG-02
func TestLoadMigrations_InvalidPrefix(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/abc_bad.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := loadMigrations(fsys, "migrations")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version prefix")
}

// TestPurpose: Validates that the embedded tenant schema set loads in its shipped order.
// Scope: Unit Test
// Expected: All embedded tenant migrations load, first one being the clients and rooms schema.
// Test Case ID: MIG-03
func TestLoadMigrations_EmbeddedTenantSet(t *testing.T) {
	migrations, err := loadMigrations(tenantMigrationsFS, "migrations/tenant")

	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "001_clients_rooms.sql", migrations[0].name)
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].version, migrations[i-1].version)
	}
}

// TestPurpose: Validates classification of "object already exists" errors that make migrations re-runnable.
// Scope: Unit Test
// Expected: Duplicate-object SQLSTATEs are treated as already applied; syntax errors and plain errors are not.
// Test Case ID: MIG-04
func TestIsAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate table", &pgconn.PgError{Code: pgerrcode.DuplicateTable}, true},
		{"duplicate column", &pgconn.PgError{Code: pgerrcode.DuplicateColumn}, true},
		{"duplicate object", &pgconn.PgError{Code: pgerrcode.DuplicateObject}, true},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, true},
		{"wrapped duplicate table", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DuplicateTable}), true},
		{"syntax error", &pgconn.PgError{Code: pgerrcode.SyntaxError}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAlreadyExists(tt.err))
		})
	}
}

// TestPurpose: Validates classification of the duplicate-database error that makes CREATE DATABASE idempotent.
// Scope: Unit Test
// Expected: Only SQLSTATE 42P04 counts as an existing database.
// Test Case ID: MIG-05
func TestIsDuplicateDatabase(t *testing.T) {
	assert.True(t, isDuplicateDatabase(&pgconn.PgError{Code: pgerrcode.DuplicateDatabase}))
	assert.True(t, isDuplicateDatabase(fmt.Errorf("create: %w", &pgconn.PgError{Code: pgerrcode.DuplicateDatabase})))
	assert.False(t, isDuplicateDatabase(&pgconn.PgError{Code: pgerrcode.DuplicateTable}))
	assert.False(t, isDuplicateDatabase(errors.New("boom")))
}

// TestPurpose: Validates the error chain of provisioning error types used by callers for branching.
// Scope: Unit Test
// Expected: MigrationError and ConnectionError unwrap to their causes and render the offending names.
// Test Case ID: MIG-06
func TestErrorTypes_UnwrapAndMessages(t *testing.T) {
	cause := errors.New("relation does not exist")
	migErr := &MigrationError{Migration: "004_projects.sql", Err: cause}
	assert.ErrorIs(t, migErr, cause)
	assert.Contains(t, migErr.Error(), "004_projects.sql")

	connErr := &ConnectionError{OrganizationID: 12, DatabaseName: "tenant_12", Err: cause}
	assert.ErrorIs(t, connErr, cause)
	assert.Contains(t, connErr.Error(), "tenant_12")

	conflict := &MappingConflictError{OrganizationID: 12, Existing: "legacy_a", Requested: "tenant_12"}
	assert.Contains(t, conflict.Error(), "legacy_a")
	assert.Contains(t, conflict.Error(), "tenant_12")
}
