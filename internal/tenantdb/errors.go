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
)

var (
	// ErrMasterNotConfigured indicates the master connection string is
	// missing from configuration. This is a configuration fault, not a
	// connection failure, and is never retried automatically.
	ErrMasterNotConfigured = errors.New("master database connection string not configured")

	// ErrNotProvisioned indicates an organization has no registered tenant
	// database. Callers may choose to trigger provisioning.
	ErrNotProvisioned = errors.New("organization has no tenant database")
)

// MappingConflictError reports an attempt to register a tenant database
// mapping that would change an existing organization's database. The
// existing mapping always wins; a tenant's physical database is never
// swapped out from under it.
type MappingConflictError struct {
	OrganizationID int64
	Existing       string
	Requested      string
}

func (e *MappingConflictError) Error() string {
	return fmt.Sprintf("tenant database mapping conflict for organization %d: registered %q, requested %q",
		e.OrganizationID, e.Existing, e.Requested)
}

// ConnectionError reports a failure to reach a physical database. The cache
// entry is not populated on this error, so a later call can retry.
type ConnectionError struct {
	OrganizationID int64
	DatabaseName   string
	Err            error
}

func (e *ConnectionError) Error() string {
	if e.OrganizationID != 0 {
		return fmt.Sprintf("failed to connect to database %q for organization %d: %v",
			e.DatabaseName, e.OrganizationID, e.Err)
	}
	return fmt.Sprintf("failed to connect to database %q: %v", e.DatabaseName, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MigrationError reports a migration that failed for a reason other than
// the target object already existing. It carries the migration identifier
// so an operator can tell exactly where a provisioning attempt stopped.
type MigrationError struct {
	Migration string
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Migration, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
