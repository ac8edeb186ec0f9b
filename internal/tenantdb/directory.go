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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TenantDatabaseRecord is one row of the master directory: the mapping
// from an organization to its physical database.
type TenantDatabaseRecord struct {
	OrganizationID int64     `json:"organization_id"`
	DatabaseName   string    `json:"database_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Directory is the source of truth for organization → database-name
// mappings. At most one record exists per organization.
type Directory interface {
	// LookupDatabaseName returns the database name registered for the
	// organization, or ErrNotProvisioned when no mapping exists.
	LookupDatabaseName(ctx context.Context, organizationID int64) (string, error)

	// RegisterMapping records the mapping for an organization. Registering
	// the same name again is a no-op; registering a different name for an
	// already-mapped organization returns a *MappingConflictError.
	RegisterMapping(ctx context.Context, organizationID int64, databaseName string) error

	// DeleteMapping removes the mapping for an organization. Removing a
	// mapping that does not exist is a no-op.
	DeleteMapping(ctx context.Context, organizationID int64) error

	// ListRecords returns every registered mapping, ordered by
	// organization ID.
	ListRecords(ctx context.Context) ([]TenantDatabaseRecord, error)
}

// masterSource supplies the directory's own storage handle.
type masterSource interface {
	GetMasterConnection(ctx context.Context) (*Handle, error)
}

// pgDirectory implements Directory over the tenant_databases table in the
// master database.
type pgDirectory struct {
	master masterSource
}

func (d *pgDirectory) LookupDatabaseName(ctx context.Context, organizationID int64) (string, error) {
	h, err := d.master.GetMasterConnection(ctx)
	if err != nil {
		return "", err
	}

	var databaseName string
	err = h.Pool().QueryRow(ctx, `
		SELECT database_name FROM tenant_databases
		WHERE organization_id = $1
	`, organizationID).Scan(&databaseName)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("organization %d: %w", organizationID, ErrNotProvisioned)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up tenant database for organization %d: %w", organizationID, err)
	}

	return databaseName, nil
}

func (d *pgDirectory) RegisterMapping(ctx context.Context, organizationID int64, databaseName string) error {
	h, err := d.master.GetMasterConnection(ctx)
	if err != nil {
		return err
	}

	// Insert-if-absent, then verify. An existing mapping is never
	// overwritten: swapping a tenant's database out from under it would
	// silently orphan its data.
	_, err = h.Pool().Exec(ctx, `
		INSERT INTO tenant_databases (organization_id, database_name, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (organization_id) DO NOTHING
	`, organizationID, databaseName)
	if err != nil {
		return fmt.Errorf("failed to register tenant database mapping: %w", err)
	}

	existing, err := d.LookupDatabaseName(ctx, organizationID)
	if err != nil {
		return err
	}
	if existing != databaseName {
		return &MappingConflictError{
			OrganizationID: organizationID,
			Existing:       existing,
			Requested:      databaseName,
		}
	}

	return nil
}

func (d *pgDirectory) DeleteMapping(ctx context.Context, organizationID int64) error {
	h, err := d.master.GetMasterConnection(ctx)
	if err != nil {
		return err
	}

	_, err = h.Pool().Exec(ctx, `
		DELETE FROM tenant_databases WHERE organization_id = $1
	`, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant database mapping: %w", err)
	}
	return nil
}

func (d *pgDirectory) ListRecords(ctx context.Context) ([]TenantDatabaseRecord, error) {
	h, err := d.master.GetMasterConnection(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := h.Pool().Query(ctx, `
		SELECT organization_id, database_name, created_at
		FROM tenant_databases
		ORDER BY organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant databases: %w", err)
	}
	defer rows.Close()

	var records []TenantDatabaseRecord
	for rows.Next() {
		var rec TenantDatabaseRecord
		if err := rows.Scan(&rec.OrganizationID, &rec.DatabaseName, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant database record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
