// Package tenant implements the tenant guard. Every data access in the
// engine takes a Scope as its first argument after the context; a Scope can
// only be obtained from a validated positive tenant identifier, so a query
// without a tenant filter cannot be expressed.
package tenant

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates a missing or invalid tenant identifier.
	ErrUnauthorized = errors.New("unauthorized: no valid tenant")
	// ErrForbidden indicates a resource owned by a different tenant.
	ErrForbidden = errors.New("forbidden: resource belongs to another tenant")
)

// Scope is a capability granting access to exactly one tenant's data.
// The zero value is invalid and is rejected by every repository.
type Scope struct {
	id int64
}

// NewScope validates the identifier and returns a usable scope.
func NewScope(tenantID int64) (Scope, error) {
	if tenantID <= 0 {
		return Scope{}, fmt.Errorf("%w: tenant id %d", ErrUnauthorized, tenantID)
	}
	return Scope{id: tenantID}, nil
}

// TenantID returns the tenant this scope is bound to.
func (s Scope) TenantID() int64 {
	return s.id
}

// Valid reports whether the scope was built through NewScope.
func (s Scope) Valid() bool {
	return s.id > 0
}

// Ensure fails unless the scope is valid. Repositories call it before
// touching the store so a zero Scope can never reach SQL.
func (s Scope) Ensure() error {
	if !s.Valid() {
		return ErrUnauthorized
	}
	return nil
}

// Check verifies that a loaded resource belongs to this scope's tenant.
func (s Scope) Check(resourceTenantID int64) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	if resourceTenantID != s.id {
		return ErrForbidden
	}
	return nil
}

type scopeContextKey struct{}

// ContextWithScope stores the scope in the context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope from the context. The boolean is false
// when no authenticated tenant is attached to the request.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok && scope.Valid()
}
