package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ErrNotFound is returned when a product or its step history is absent.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrDuplicate is returned when creating a product whose identifier is
// already registered.
type ErrDuplicate struct {
	Entity EntityType
	ID     string
}

func (e ErrDuplicate) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

// ErrUnauthorized is returned when the required principal did not approve
// the call.
type ErrUnauthorized struct {
	Principal Principal
}

func (e ErrUnauthorized) Error() string {
	return fmt.Sprintf("principal %s did not authorize the call", e.Principal)
}

// ErrPermissionDenied is returned when a principal's role does not match
// the operation's required role.
type ErrPermissionDenied struct {
	Principal Principal
	Held      Role
	Required  []Role
}

func (e ErrPermissionDenied) Error() string {
	if len(e.Required) == 1 {
		return fmt.Sprintf("principal %s holds role %s, requires %s", e.Principal, e.Held, e.Required[0])
	}
	return fmt.Sprintf("principal %s holds role %s, requires one of %v", e.Principal, e.Held, e.Required)
}

// ErrInsufficientBalance is returned when a transfer source holds less
// than the requested amount. Both balances are left untouched.
type ErrInsufficientBalance struct {
	From    Principal
	Balance *uint256.Int
	Amount  *uint256.Int
}

func (e ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("balance of %s is %s, cannot transfer %s", e.From, e.Balance.Dec(), e.Amount.Dec())
}

// ErrNotInitialized is returned when a gated operation runs before
// Initialize established the admin principal.
type ErrNotInitialized struct{}

func (ErrNotInitialized) Error() string {
	return "ledger has not been initialized with an admin"
}
