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

// Package master holds repositories over the master database: the data
// shared across tenants (organizations and the tenant directory).
package master

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/soundryhq/soundry/internal/organization"
	"github.com/soundryhq/soundry/internal/tenantdb"
)

// Source supplies the master database handle. Satisfied by
// *tenantdb.Registry; repositories fetch the handle per call so they stay
// valid across a registry drain.
type Source interface {
	GetMasterConnection(ctx context.Context) (*tenantdb.Handle, error)
}

// OrganizationRepository implements organization.Repository
type OrganizationRepository struct {
	source Source
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(source Source) *OrganizationRepository {
	return &OrganizationRepository{source: source}
}

// Create inserts a new organization and fills in its assigned ID
func (r *OrganizationRepository) Create(ctx context.Context, org *organization.Organization) error {
	h, err := r.source.GetMasterConnection(ctx)
	if err != nil {
		return err
	}

	err = h.Pool().QueryRow(ctx, `
		INSERT INTO organizations (name, slug, subdomain, timezone, currency, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, org.Name, org.Slug, org.Subdomain, org.Timezone, org.Currency, org.IsActive, org.CreatedAt, org.UpdatedAt).Scan(&org.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case "organizations_slug_key":
				return organization.ErrSlugTaken
			case "organizations_subdomain_key":
				return organization.ErrSubdomainTaken
			}
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*organization.Organization, error) {
	h, err := r.source.GetMasterConnection(ctx)
	if err != nil {
		return nil, err
	}

	org := &organization.Organization{}
	err = h.Pool().QueryRow(ctx, `
		SELECT id, name, slug, subdomain, timezone, currency, is_active, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.Subdomain, &org.Timezone, &org.Currency, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, organization.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// GetBySubdomain retrieves an organization by subdomain
func (r *OrganizationRepository) GetBySubdomain(ctx context.Context, subdomain string) (*organization.Organization, error) {
	h, err := r.source.GetMasterConnection(ctx)
	if err != nil {
		return nil, err
	}

	org := &organization.Organization{}
	err = h.Pool().QueryRow(ctx, `
		SELECT id, name, slug, subdomain, timezone, currency, is_active, created_at, updated_at
		FROM organizations
		WHERE subdomain = $1
	`, subdomain).Scan(&org.ID, &org.Name, &org.Slug, &org.Subdomain, &org.Timezone, &org.Currency, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, organization.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by subdomain: %w", err)
	}

	return org, nil
}

// List retrieves organizations with pagination
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*organization.Organization, error) {
	h, err := r.source.GetMasterConnection(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := h.Pool().Query(ctx, `
		SELECT id, name, slug, subdomain, timezone, currency, is_active, created_at, updated_at
		FROM organizations
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*organization.Organization
	for rows.Next() {
		org := &organization.Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.Subdomain, &org.Timezone, &org.Currency, &org.IsActive, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// ListUnprovisionedIDs returns the IDs of organizations with no registered
// tenant database
func (r *OrganizationRepository) ListUnprovisionedIDs(ctx context.Context) ([]int64, error) {
	h, err := r.source.GetMasterConnection(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := h.Pool().Query(ctx, `
		SELECT o.id
		FROM organizations o
		LEFT JOIN tenant_databases td ON td.organization_id = o.id
		WHERE td.id IS NULL
		ORDER BY o.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprovisioned organizations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
