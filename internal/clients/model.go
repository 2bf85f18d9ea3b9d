package clients

import "time"

// Client is a tenant's customer. A client belongs to exactly one tenant and
// is never visible to any other.
type Client struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"-"`
	Name         string    `json:"name"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	AddressLine1 *string   `json:"address_line1,omitempty"`
	AddressLine2 *string   `json:"address_line2,omitempty"`
	City         *string   `json:"city,omitempty"`
	PostalCode   *string   `json:"postal_code,omitempty"`
	Country      string    `json:"country"`
	Siren        *string   `json:"siren,omitempty"`
	VATNumber    *string   `json:"vat_number,omitempty"`
	IsActive     bool      `json:"is_active"`
	Notes        *string   `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
