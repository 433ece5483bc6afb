package domain

import (
	"context"

	"github.com/holiman/uint256"
)

// Transaction exposes the domain operations that a persistence
// implementation must support within an atomic scope. Mutations either
// all commit or all discard; the product registry and step history are
// only ever written through this interface as a matched pair.
type Transaction interface {
	Snapshot() TransactionView

	SetAdmin(admin Principal)
	SetTokenMetadata(meta TokenMetadata)
	SetAdminPubkey(pubkey string)
	SetKey(key, val string)
	SetRole(addr Principal, role Role)

	Credit(to Principal, amount *uint256.Int)
	Debit(from Principal, amount *uint256.Int) error

	CreateProduct(productID, serialNumber string, manufacturer Principal, location string) (Product, error)
	AppendStep(productID string, stepType uint32, location string, responsible Principal, trackingNumber *string, metadata map[string]string) (Step, error)
}

// TransactionView provides read-only access to snapshot data for rules
// and callers.
type TransactionView interface {
	RuleView
	TokenMetadata() (TokenMetadata, bool)
	AdminPubkey() string
	Key(key string) string
	BalanceOf(id Principal) *uint256.Int
}

// PersistentStore is a minimal abstraction over durable backends. It
// mirrors the subset of store capabilities used directly by higher
// layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	Admin() (Principal, bool)
	RoleOf(addr Principal) Role
	BalanceOf(id Principal) *uint256.Int
	FindProduct(id string) (Product, bool)
	ProductHistory(id string) ([]Step, bool)
	ListProducts() []Product
}
