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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soundryhq/soundry/internal/audit"
)

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) CreateDatabase(ctx context.Context, databaseName string) error {
	args := m.Called(ctx, databaseName)
	return args.Error(0)
}

func (m *mockAdmin) DropDatabase(ctx context.Context, databaseName string) error {
	args := m.Called(ctx, databaseName)
	return args.Error(0)
}

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Apply(ctx context.Context, h *Handle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

// handleFor matches a migrator call against the target database.
func handleFor(databaseName string) any {
	return mock.MatchedBy(func(h *Handle) bool {
		return h.DatabaseName() == databaseName
	})
}

func newTestProvisioner(connector Connector, directory Directory, admin DatabaseAdmin, migrator Migrator) *Provisioner {
	registry := NewRegistryWithDirectory(connector, directory)
	return &Provisioner{
		admin:       admin,
		directory:   directory,
		registry:    registry,
		migrator:    migrator,
		auditLogger: audit.NewSlogLogger(),
	}
}

// TestPurpose: Validates the provisioning walk for a fresh organization: create, migrate, then register.
// Scope: Unit Test
// Expected: The result reports success with the deterministic database name, and the mapping is registered only after migrations apply.
// Test Case ID: PROV-01
func TestProvisioner_Provision_FreshOrganization(t *testing.T) {
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(newFakeConnector(), directory, admin, migrator)

	directory.On("LookupDatabaseName", mock.Anything, int64(7)).Return("", notProvisioned(7))
	admin.On("CreateDatabase", mock.Anything, "tenant_7").Return(nil)
	migrator.On("Apply", mock.Anything, handleFor("tenant_7")).Return(nil)
	directory.On("RegisterMapping", mock.Anything, int64(7), "tenant_7").Return(nil)

	result := p.Provision(context.Background(), 7)

	assert.True(t, result.Success)
	assert.Equal(t, int64(7), result.OrganizationID)
	assert.Equal(t, "tenant_7", result.DatabaseName)
	assert.NoError(t, result.Err)
	directory.AssertExpectations(t)
	admin.AssertExpectations(t)
	migrator.AssertExpectations(t)
}

// TestPurpose: Validates idempotency: provisioning an already-provisioned organization converges to success.
// Scope: Unit Test
// Expected: A second attempt finds the existing mapping, re-runs the (skippable) steps, and still reports success.
// Test Case ID: PROV-02
func TestProvisioner_Provision_AlreadyProvisioned(t *testing.T) {
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(newFakeConnector(), directory, admin, migrator)

	// The mapping already points at the name this organization derives to.
	directory.On("LookupDatabaseName", mock.Anything, int64(7)).Return("tenant_7", nil)
	admin.On("CreateDatabase", mock.Anything, "tenant_7").Return(nil)
	migrator.On("Apply", mock.Anything, handleFor("tenant_7")).Return(nil)
	directory.On("RegisterMapping", mock.Anything, int64(7), "tenant_7").Return(nil)

	result := p.Provision(context.Background(), 7)

	assert.True(t, result.Success)
	assert.Equal(t, "tenant_7", result.DatabaseName)
}

// TestPurpose: Validates that an organization mapped to a legacy database name is never silently remapped.
// Scope: Unit Test
// Security: Prevents cross-tenant data exposure through mapping overwrites (CWE-284)
// Expected: The attempt fails with a MappingConflictError before any database is created.
// Test Case ID: PROV-03
func TestProvisioner_Provision_MappingConflict(t *testing.T) {
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(newFakeConnector(), directory, admin, migrator)

	directory.On("LookupDatabaseName", mock.Anything, int64(7)).Return("legacy_studio_7", nil)

	result := p.Provision(context.Background(), 7)

	require.False(t, result.Success)
	var conflict *MappingConflictError
	require.ErrorAs(t, result.Err, &conflict)
	assert.Equal(t, "legacy_studio_7", conflict.Existing)
	assert.Equal(t, "tenant_7", conflict.Requested)
	admin.AssertNotCalled(t, "CreateDatabase", mock.Anything, mock.Anything)
	directory.AssertNotCalled(t, "RegisterMapping", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates that a migration failure stops provisioning before the mapping is registered.
// Scope: Unit Test
// Expected: The result carries the migration error and the directory never learns about the half-built database.
// Test Case ID: PROV-04
func TestProvisioner_Provision_MigrationFailure(t *testing.T) {
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(newFakeConnector(), directory, admin, migrator)

	migErr := &MigrationError{Migration: "003_invoices.sql", Err: assert.AnError}
	directory.On("LookupDatabaseName", mock.Anything, int64(7)).Return("", notProvisioned(7))
	admin.On("CreateDatabase", mock.Anything, "tenant_7").Return(nil)
	migrator.On("Apply", mock.Anything, handleFor("tenant_7")).Return(migErr)

	result := p.Provision(context.Background(), 7)

	require.False(t, result.Success)
	var m *MigrationError
	require.ErrorAs(t, result.Err, &m)
	assert.Equal(t, "003_invoices.sql", m.Migration)
	directory.AssertNotCalled(t, "RegisterMapping", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates that an unreachable tenant database surfaces as a ConnectionError in the result.
// Scope: Unit Test
// Expected: Provisioning fails after CREATE DATABASE, no migrations run and no mapping is registered.
// Test Case ID: PROV-05
func TestProvisioner_Provision_ConnectionFailure(t *testing.T) {
	connector := newFakeConnector()
	connector.tenantErr = assert.AnError
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(connector, directory, admin, migrator)

	directory.On("LookupDatabaseName", mock.Anything, int64(7)).Return("", notProvisioned(7))
	admin.On("CreateDatabase", mock.Anything, "tenant_7").Return(nil)

	result := p.Provision(context.Background(), 7)

	require.False(t, result.Success)
	var connErr *ConnectionError
	require.ErrorAs(t, result.Err, &connErr)
	assert.Equal(t, "tenant_7", connErr.DatabaseName)
	migrator.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	directory.AssertNotCalled(t, "RegisterMapping", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates the fix-up sweep: a batch continues past failures and reports one result per organization.
// Scope: Unit Test
// Expected: Five organizations in, five results out, in input order; one simulated failure does not stop the rest.
// Test Case ID: PROV-06
func TestProvisioner_ProvisionBatch_ContinuesPastFailures(t *testing.T) {
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(newFakeConnector(), directory, admin, migrator)

	// Organizations 1 and 2 are already mapped; 3, 4, 5 are missing.
	directory.On("LookupDatabaseName", mock.Anything, int64(1)).Return("tenant_1", nil)
	directory.On("LookupDatabaseName", mock.Anything, int64(2)).Return("tenant_2", nil)
	directory.On("LookupDatabaseName", mock.Anything, int64(3)).Return("", notProvisioned(3))
	directory.On("LookupDatabaseName", mock.Anything, int64(4)).Return("", notProvisioned(4))
	directory.On("LookupDatabaseName", mock.Anything, int64(5)).Return("", notProvisioned(5))

	admin.On("CreateDatabase", mock.Anything, mock.Anything).Return(nil)

	// Organization 4's migrations fail; everyone else applies cleanly.
	migrator.On("Apply", mock.Anything, handleFor("tenant_4")).Return(&MigrationError{Migration: "002_sessions_bookings.sql", Err: assert.AnError})
	migrator.On("Apply", mock.Anything, mock.Anything).Return(nil)

	directory.On("RegisterMapping", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	results := p.ProvisionBatch(context.Background(), []int64{1, 2, 3, 4, 5})

	require.Len(t, results, 5)
	for i, want := range []int64{1, 2, 3, 4, 5} {
		assert.Equal(t, want, results[i].OrganizationID)
	}
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.False(t, results[3].Success)
	assert.Error(t, results[3].Err)
	assert.True(t, results[4].Success)
}

// TestPurpose: Validates teardown order on deprovisioning: mapping first, cache eviction, then the physical drop.
// Scope: Unit Test
// Expected: The cached handle is evicted before DROP DATABASE and the directory row is gone.
// Test Case ID: PROV-07
func TestProvisioner_Deprovision(t *testing.T) {
	connector := newFakeConnector()
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	migrator := new(mockMigrator)
	p := newTestProvisioner(connector, directory, admin, migrator)

	directory.On("LookupDatabaseName", mock.Anything, int64(7)).Return("tenant_7", nil)
	directory.On("DeleteMapping", mock.Anything, int64(7)).Return(nil)
	admin.On("DropDatabase", mock.Anything, "tenant_7").Return(nil)

	// Warm the cache so eviction has something to remove.
	_, err := p.registry.GetTenantConnection(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, p.registry.ConnectionCount())

	err = p.Deprovision(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 0, p.registry.ConnectionCount())
	directory.AssertExpectations(t)
	admin.AssertExpectations(t)
}

// TestPurpose: Validates that deprovisioning an unknown organization is rejected without touching any database.
// Scope: Unit Test
// Expected: ErrNotProvisioned bubbles up and DROP DATABASE is never issued.
// Test Case ID: PROV-08
func TestProvisioner_Deprovision_NotProvisioned(t *testing.T) {
	directory := new(mockDirectory)
	admin := new(mockAdmin)
	p := newTestProvisioner(newFakeConnector(), directory, admin, new(mockMigrator))

	directory.On("LookupDatabaseName", mock.Anything, int64(99)).Return("", notProvisioned(99))

	err := p.Deprovision(context.Background(), 99)

	assert.ErrorIs(t, err, ErrNotProvisioned)
	admin.AssertNotCalled(t, "DropDatabase", mock.Anything, mock.Anything)
	directory.AssertNotCalled(t, "DeleteMapping", mock.Anything, mock.Anything)
}

// TestPurpose: Validates the deploy sweep that re-applies migrations to every registered tenant.
// Scope: Unit Test
// Expected: Every listed tenant receives an Apply call; a failure stops the sweep and names the organization.
// Test Case ID: PROV-09
func TestProvisioner_MigrateAll(t *testing.T) {
	directory := new(mockDirectory)
	migrator := new(mockMigrator)
	p := newTestProvisioner(newFakeConnector(), directory, new(mockAdmin), migrator)

	directory.On("ListRecords", mock.Anything).Return([]TenantDatabaseRecord{
		{OrganizationID: 1, DatabaseName: "tenant_1"},
		{OrganizationID: 2, DatabaseName: "tenant_2"},
	}, nil)
	migrator.On("Apply", mock.Anything, handleFor("tenant_1")).Return(nil)
	migrator.On("Apply", mock.Anything, handleFor("tenant_2")).Return(nil)

	err := p.MigrateAll(context.Background())

	require.NoError(t, err)
	migrator.AssertNumberOfCalls(t, "Apply", 2)
}
