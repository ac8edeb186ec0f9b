package organization

import (
	"context"
	"errors"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugTaken            = errors.New("organization slug already in use")
	ErrSubdomainTaken       = errors.New("organization subdomain already in use")
)

// Repository defines the interface for organization storage in the master
// database
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id int64) (*Organization, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, error)

	// ListUnprovisionedIDs returns the IDs of organizations that have no
	// registered tenant database, ordered by ID. Feeds the fix-up sweep.
	ListUnprovisionedIDs(ctx context.Context) ([]int64, error)
}
