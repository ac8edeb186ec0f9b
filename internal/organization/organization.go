package organization

import (
	"time"
)

// Organization represents one customer studio, isolated at the database level
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Subdomain string    `json:"subdomain"`
	Timezone  string    `json:"timezone"`
	Currency  string    `json:"currency"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Defaults applied when a new organization omits locale settings
const (
	DefaultTimezone = "Europe/Paris"
	DefaultCurrency = "EUR"
)
