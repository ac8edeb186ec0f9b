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

package organization

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundryhq/soundry/internal/audit"
	"github.com/soundryhq/soundry/internal/observability/logger"
	"github.com/soundryhq/soundry/internal/tenantdb"
)

// Provisioner is the slice of the tenant provisioner this service needs.
type Provisioner interface {
	Provision(ctx context.Context, organizationID int64) tenantdb.Result
}

// Service provides organization management business logic
type Service struct {
	repo        Repository
	provisioner Provisioner
	auditLogger audit.Logger
}

// NewService creates a new organization service
func NewService(repo Repository, provisioner Provisioner, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		provisioner: provisioner,
		auditLogger: auditLogger,
	}
}

// CreateOrganization registers a new organization in the master directory
// and provisions its tenant database. A provisioning failure does not fail
// the registration: the organization exists, its workspace shows as "being
// set up", and the fix-up sweep repairs it.
func (s *Service) CreateOrganization(ctx context.Context, name, slug, subdomain string) (*Organization, tenantdb.Result, error) {
	if name == "" {
		return nil, tenantdb.Result{}, fmt.Errorf("organization name is required")
	}
	if slug == "" {
		return nil, tenantdb.Result{}, fmt.Errorf("organization slug is required")
	}
	if subdomain == "" {
		subdomain = slug
	}

	now := time.Now()
	org := &Organization{
		Name:      name,
		Slug:      slug,
		Subdomain: subdomain,
		Timezone:  DefaultTimezone,
		Currency:  DefaultCurrency,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return nil, tenantdb.Result{}, fmt.Errorf("failed to create organization: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeOrganizationCreated,
		OrganizationID: org.ID,
		Resource:       org.Slug,
	})

	result := s.provisioner.Provision(ctx, org.ID)
	if !result.Success {
		slog.WarnContext(ctx, "organization created but tenant provisioning failed",
			logger.Component("organization"),
			logger.OrganizationID(org.ID),
			logger.Error(result.Err))
	}

	return org, result, nil
}

// GetOrganization retrieves an organization by ID
func (s *Service) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// GetBySubdomain retrieves an organization by its subdomain
func (s *Service) GetBySubdomain(ctx context.Context, subdomain string) (*Organization, error) {
	return s.repo.GetBySubdomain(ctx, subdomain)
}

// ListOrganizations lists organizations with pagination
func (s *Service) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListUnprovisionedIDs returns organizations with no tenant database
func (s *Service) ListUnprovisionedIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListUnprovisionedIDs(ctx)
}
