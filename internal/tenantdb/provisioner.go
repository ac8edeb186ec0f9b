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
	"log/slog"

	"github.com/soundryhq/soundry/internal/audit"
	"github.com/soundryhq/soundry/internal/observability/logger"
)

// DatabaseName derives the physical database name for an organization.
// The name is deterministic so that a retry after a partial provisioning
// failure converges on the same database instead of creating a new one.
func DatabaseName(organizationID int64) string {
	return fmt.Sprintf("tenant_%d", organizationID)
}

// Result is the outcome of one provisioning attempt. Provision reports
// failure through Result.Err instead of returning an error so batch
// callers sweep every organization even when one fails.
type Result struct {
	OrganizationID int64  `json:"organization_id"`
	DatabaseName   string `json:"database_name"`
	Success        bool   `json:"success"`
	Err            error  `json:"-"`
}

// Provisioner turns "a new organization exists" into "a fully migrated,
// isolated tenant database is registered for it".
//
// Each attempt walks CREATE_DATABASE → APPLY_MIGRATIONS → REGISTER_MAPPING
// in that order. Every step is idempotent, so re-running after a crash or
// partial failure is the expected recovery path. The mapping is registered
// last: the directory never points at a database that is not fully
// migrated.
type Provisioner struct {
	admin       DatabaseAdmin
	directory   Directory
	registry    *Registry
	migrator    Migrator
	auditLogger audit.Logger
}

// NewProvisioner creates a provisioner operating through the registry's
// master connection, with the embedded tenant migration set.
func NewProvisioner(registry *Registry, migrator Migrator, auditLogger audit.Logger) *Provisioner {
	return &Provisioner{
		admin:       &pgDatabaseAdmin{master: registry},
		directory:   registry.Directory(),
		registry:    registry,
		migrator:    migrator,
		auditLogger: auditLogger,
	}
}

// Provision creates, migrates and registers the tenant database for one
// organization. Calling it again for the same organization converges to
// the same end state.
func (p *Provisioner) Provision(ctx context.Context, organizationID int64) Result {
	databaseName := DatabaseName(organizationID)

	slog.InfoContext(ctx, "provisioning tenant database",
		logger.Component("provisioner"),
		logger.OrganizationID(organizationID),
		logger.Database(databaseName))

	if err := p.provision(ctx, organizationID, databaseName); err != nil {
		slog.ErrorContext(ctx, "tenant provisioning failed",
			logger.Component("provisioner"),
			logger.OrganizationID(organizationID),
			logger.Database(databaseName),
			logger.Error(err))
		p.auditLogger.Log(ctx, audit.Event{
			Type:           audit.TypeTenantProvisionFailed,
			OrganizationID: organizationID,
			Resource:       databaseName,
			Metadata:       map[string]any{"error": err.Error()},
		})
		return Result{OrganizationID: organizationID, DatabaseName: databaseName, Err: err}
	}

	p.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeTenantProvisioned,
		OrganizationID: organizationID,
		Resource:       databaseName,
	})
	return Result{OrganizationID: organizationID, DatabaseName: databaseName, Success: true}
}

func (p *Provisioner) provision(ctx context.Context, organizationID int64, databaseName string) error {
	// An organization already mapped to a different database means a
	// previous operator decision we must not override.
	existing, err := p.directory.LookupDatabaseName(ctx, organizationID)
	if err == nil && existing != databaseName {
		return &MappingConflictError{
			OrganizationID: organizationID,
			Existing:       existing,
			Requested:      databaseName,
		}
	}

	if err := p.admin.CreateDatabase(ctx, databaseName); err != nil {
		return err
	}

	h, err := p.registry.tenantByName(ctx, databaseName)
	if err != nil {
		return &ConnectionError{
			OrganizationID: organizationID,
			DatabaseName:   databaseName,
			Err:            err,
		}
	}

	if err := p.migrator.Apply(ctx, h); err != nil {
		return err
	}

	return p.directory.RegisterMapping(ctx, organizationID, databaseName)
}

// ProvisionBatch provisions every organization in the list, continuing
// past failures. The result slice has one entry per input organization, in
// input order. Already-provisioned organizations converge to success.
func (p *Provisioner) ProvisionBatch(ctx context.Context, organizationIDs []int64) []Result {
	results := make([]Result, 0, len(organizationIDs))
	for _, id := range organizationIDs {
		results = append(results, p.Provision(ctx, id))
	}
	return results
}

// MigrateAll re-applies the tenant migration set to every registered
// tenant database. Used when deploying schema changes to existing tenants;
// already-applied migrations are skipped. Stops at the first failing
// tenant so an operator sees a deploy problem before it spreads.
func (p *Provisioner) MigrateAll(ctx context.Context) error {
	records, err := p.directory.ListRecords(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		h, err := p.registry.tenantByName(ctx, rec.DatabaseName)
		if err != nil {
			return &ConnectionError{
				OrganizationID: rec.OrganizationID,
				DatabaseName:   rec.DatabaseName,
				Err:            err,
			}
		}
		if err := p.migrator.Apply(ctx, h); err != nil {
			return fmt.Errorf("organization %d: %w", rec.OrganizationID, err)
		}
	}
	return nil
}

// Deprovision removes the organization's mapping, evicts its cached
// handle, and drops the physical database. Destructive; exposed only to
// superadmin tooling.
func (p *Provisioner) Deprovision(ctx context.Context, organizationID int64) error {
	databaseName, err := p.directory.LookupDatabaseName(ctx, organizationID)
	if err != nil {
		return err
	}

	if err := p.directory.DeleteMapping(ctx, organizationID); err != nil {
		return err
	}

	// The cached pool must go before the drop, or its open connections
	// block DROP DATABASE.
	p.registry.evict(databaseName)

	if err := p.admin.DropDatabase(ctx, databaseName); err != nil {
		return err
	}

	slog.InfoContext(ctx, "tenant database deprovisioned",
		logger.Component("provisioner"),
		logger.OrganizationID(organizationID),
		logger.Database(databaseName))
	p.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeTenantDeprovisioned,
		OrganizationID: organizationID,
		Resource:       databaseName,
	})
	return nil
}
