package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/facturio/facturio/internal/tenant"
)

// ErrInactive is returned when a document references a deactivated client.
var ErrInactive = errors.New("client is deactivated")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, scope tenant.Scope, req CreateClientRequest) (*Client, error) {
	c := Client{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Siren:        req.Siren,
		VATNumber:    req.VATNumber,
		IsActive:     true,
		Notes:        req.Notes,
	}
	if c.Country == "" {
		c.Country = "FR"
	}

	id, err := s.repo.Create(ctx, scope, c)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return s.repo.Get(ctx, scope, id)
}

func (s *Service) Update(ctx context.Context, scope tenant.Scope, id int64, req UpdateClientRequest) (*Client, error) {
	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.AddressLine1 != nil {
		updates["address_line1"] = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		updates["address_line2"] = *req.AddressLine2
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}
	if req.Siren != nil {
		updates["siren"] = *req.Siren
	}
	if req.VATNumber != nil {
		updates["vat_number"] = *req.VATNumber
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if err := s.repo.Update(ctx, scope, id, updates); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return s.repo.Get(ctx, scope, id)
}

func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (*Client, error) {
	return s.repo.Get(ctx, scope, id)
}

func (s *Service) List(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Client, int, error) {
	return s.repo.List(ctx, scope, filter)
}

func (s *Service) Deactivate(ctx context.Context, scope tenant.Scope, id int64) error {
	return s.repo.Deactivate(ctx, scope, id)
}

// Ensure verifies that the client exists, belongs to the calling tenant and
// is active. Documents call this before attaching a client.
func (s *Service) Ensure(ctx context.Context, scope tenant.Scope, clientID int64) error {
	c, err := s.repo.Get(ctx, scope, clientID)
	if err != nil {
		return err
	}
	if !c.IsActive {
		return fmt.Errorf("%w: client %d", ErrInactive, clientID)
	}
	return nil
}
