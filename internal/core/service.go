// Package core exposes the transactional operation surface of the
// supply ledger: the role registry, the balance ledger, and the
// product/step state machine, each gated by the authorization policy.
package core

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"supplyledger/internal/infra/blob"
	"supplyledger/pkg/domain"
)

// Service is the public call surface. Every mutating operation resolves
// the required role, demands the right principal's approval from the
// authorizer, and then applies its writes in a single transaction.
type Service struct {
	store   PersistentStore
	auth    Authorizer
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	archive blob.Store
}

// allowAll approves every principal. Used when no authorizer is
// configured, leaving the oracle open for embedders that gate upstream.
type allowAll struct{}

func (allowAll) Authorize(context.Context, Principal) error { return nil }

// NewService constructs a service over the supplied store and
// authorization oracle. A nil authorizer approves every principal.
func NewService(store PersistentStore, authorizer Authorizer, opts ...Option) *Service {
	if authorizer == nil {
		authorizer = allowAll{}
	}
	s := &Service{
		store:  store,
		auth:   authorizer,
		clock:  systemClock{},
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if tc, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		clock := s.clock
		tc.SetNowFunc(func() time.Time { return clock.Now().UTC() })
	}
	return s
}

// NewInMemoryService constructs a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, authorizer Authorizer, opts ...Option) *Service {
	return NewService(memoryStore(engine), authorizer, opts...)
}

// Store returns the underlying persistence implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps an operation with tracing, metrics, and logging.
func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	started := time.Now()
	spanCtx := ctx
	var span TraceSpan
	if s.tracer != nil {
		spanCtx, span = s.tracer.Start(ctx, operation)
	}
	err := fn(spanCtx)
	duration := time.Since(started)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, duration)
	}
	if err != nil {
		s.logger.Error(operation+" failed", "error", err)
	} else {
		s.logger.Debug(operation+" completed", "duration_ms", float64(duration)/float64(time.Millisecond))
	}
	return err
}

// admin resolves the admin principal, failing when the ledger was never
// initialized.
func (s *Service) admin() (Principal, error) {
	admin, ok := s.store.Admin()
	if !ok {
		return "", domain.ErrNotInitialized{}
	}
	return admin, nil
}

// authorizeAdmin demands the admin's approval.
func (s *Service) authorizeAdmin(ctx context.Context) error {
	admin, err := s.admin()
	if err != nil {
		return err
	}
	return s.auth.Authorize(ctx, admin)
}

// authorizeRoleOrAdmin applies the either/or gate: a subject holding the
// required role approves for itself, anyone else needs the admin. The
// admin is only resolved when actually needed, so a correctly-roled
// subject works even before Initialize.
func (s *Service) authorizeRoleOrAdmin(ctx context.Context, subject Principal, required Role) error {
	held := s.store.RoleOf(subject)
	if held == required {
		return s.auth.Authorize(ctx, subject)
	}
	admin, err := s.admin()
	if err != nil {
		return err
	}
	return s.auth.Authorize(ctx, domain.RequiredApprover(held, required, subject, admin))
}

// Initialize records the admin principal and token metadata. It is the
// bootstrap call and enforces no authorization; calling it again
// overwrites both values.
func (s *Service) Initialize(ctx context.Context, admin Principal, decimals uint32, name, symbol string) (Result, error) {
	var result Result
	err := s.run(ctx, "initialize", func(ctx context.Context) error {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.SetAdmin(admin)
			tx.SetTokenMetadata(TokenMetadata{Decimals: decimals, Name: name, Symbol: symbol})
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// Mint credits to's balance by amount. Admin approval is required
// unconditionally.
func (s *Service) Mint(ctx context.Context, to Principal, amount *uint256.Int) (Result, error) {
	var result Result
	err := s.run(ctx, "mint", func(ctx context.Context) error {
		if err := s.authorizeAdmin(ctx); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.Credit(to, amount)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// MintByRole credits to's balance on the minter's own authority. The
// minter must hold exactly Manufacturer; the admin cannot substitute.
func (s *Service) MintByRole(ctx context.Context, minter, to Principal, amount *uint256.Int) (Result, error) {
	var result Result
	err := s.run(ctx, "mint_by_role", func(ctx context.Context) error {
		held := s.store.RoleOf(minter)
		if held != RoleManufacturer {
			return domain.ErrPermissionDenied{Principal: minter, Held: held, Required: []Role{RoleManufacturer}}
		}
		if err := s.auth.Authorize(ctx, minter); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.Credit(to, amount)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// Transfer moves amount from from to to with from's approval. The debit
// is checked before any write, so a failed transfer leaves both
// balances untouched.
func (s *Service) Transfer(ctx context.Context, from, to Principal, amount *uint256.Int) (Result, error) {
	var result Result
	err := s.run(ctx, "transfer", func(ctx context.Context) error {
		if err := s.auth.Authorize(ctx, from); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := tx.Debit(from, amount); err != nil {
				return err
			}
			tx.Credit(to, amount)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// OperatorTransfer moves amount between two third parties on the
// operator's authority. The operator must hold Shipper or Warehouse;
// from's approval is not consulted.
func (s *Service) OperatorTransfer(ctx context.Context, operator, from, to Principal, amount *uint256.Int) (Result, error) {
	var result Result
	err := s.run(ctx, "operator_transfer", func(ctx context.Context) error {
		held := s.store.RoleOf(operator)
		if held != RoleShipper && held != RoleWarehouse {
			return domain.ErrPermissionDenied{Principal: operator, Held: held, Required: []Role{RoleShipper, RoleWarehouse}}
		}
		if err := s.auth.Authorize(ctx, operator); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := tx.Debit(from, amount); err != nil {
				return err
			}
			tx.Credit(to, amount)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// Balance returns id's balance, zero when absent. No authorization.
func (s *Service) Balance(_ context.Context, id Principal) *uint256.Int {
	return s.store.BalanceOf(id)
}

// GrantRole sets addr's role unconditionally. Admin only. The role
// value is stored raw; out-of-range values are accepted.
func (s *Service) GrantRole(ctx context.Context, addr Principal, role Role) (Result, error) {
	var result Result
	err := s.run(ctx, "grant_role", func(ctx context.Context) error {
		if err := s.authorizeAdmin(ctx); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.SetRole(addr, role)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// RevokeRole resets addr's role to RoleNone. Admin only. The entry is
// overwritten, never deleted.
func (s *Service) RevokeRole(ctx context.Context, addr Principal) (Result, error) {
	var result Result
	err := s.run(ctx, "revoke_role", func(ctx context.Context) error {
		if err := s.authorizeAdmin(ctx); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.SetRole(addr, RoleNone)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// GetRole returns addr's role, RoleNone when never granted. No
// authorization.
func (s *Service) GetRole(_ context.Context, addr Principal) Role {
	return s.store.RoleOf(addr)
}

// SetAdminPubkey stores the admin's public key string. Admin only.
func (s *Service) SetAdminPubkey(ctx context.Context, pubkey string) (Result, error) {
	var result Result
	err := s.run(ctx, "set_admin_pubkey", func(ctx context.Context) error {
		if err := s.authorizeAdmin(ctx); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.SetAdminPubkey(pubkey)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// GetAdminPubkey returns the stored admin public key, empty when unset.
func (s *Service) GetAdminPubkey(ctx context.Context) (string, error) {
	var pubkey string
	err := s.store.View(ctx, func(view TransactionView) error {
		pubkey = view.AdminPubkey()
		return nil
	})
	return pubkey, err
}

// SetKey writes an entry in the generic key/value map. Admin only.
func (s *Service) SetKey(ctx context.Context, key, val string) (Result, error) {
	var result Result
	err := s.run(ctx, "set_key", func(ctx context.Context) error {
		if err := s.authorizeAdmin(ctx); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			tx.SetKey(key, val)
			return nil
		})
		result = res
		return err
	})
	return result, err
}

// GetKey returns the value stored under key, empty when unset.
func (s *Service) GetKey(ctx context.Context, key string) (string, error) {
	var val string
	err := s.store.View(ctx, func(view TransactionView) error {
		val = view.Key(key)
		return nil
	})
	return val, err
}

// Metadata returns the token bootstrap parameters recorded at
// Initialize.
func (s *Service) Metadata(ctx context.Context) (TokenMetadata, bool, error) {
	var (
		meta TokenMetadata
		ok   bool
	)
	err := s.store.View(ctx, func(view TransactionView) error {
		meta, ok = view.TokenMetadata()
		return nil
	})
	return meta, ok, err
}

// CreateProduct registers a new product and its synthesized Production
// step in one transaction. The manufacturer approves when it holds
// Manufacturer; otherwise the admin must.
func (s *Service) CreateProduct(ctx context.Context, productID, serialNumber string, manufacturer Principal, location string) (Product, Result, error) {
	var (
		created Product
		result  Result
	)
	err := s.run(ctx, "create_product", func(ctx context.Context) error {
		if err := s.authorizeRoleOrAdmin(ctx, manufacturer, RoleManufacturer); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateProduct(productID, serialNumber, manufacturer, location)
			return err
		})
		result = res
		return err
	})
	return created, result, err
}

// AddStep appends a step and rewrites the product snapshot as a pair.
// The required role follows the step type; a step type outside the
// known set needs only the responsible party's own approval.
func (s *Service) AddStep(ctx context.Context, productID string, stepType uint32, location string, responsible Principal, trackingNumber *string, metadata map[string]string) (Step, Result, error) {
	var (
		appended Step
		result   Result
	)
	err := s.run(ctx, "add_step", func(ctx context.Context) error {
		required := domain.RequiredRoleForStep(StepType(stepType))
		if required == RoleNone {
			if err := s.auth.Authorize(ctx, responsible); err != nil {
				return err
			}
		} else if err := s.authorizeRoleOrAdmin(ctx, responsible, required); err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			appended, err = tx.AppendStep(productID, stepType, location, responsible, trackingNumber, metadata)
			return err
		})
		result = res
		return err
	})
	return appended, result, err
}

// GetProduct returns the current product snapshot.
func (s *Service) GetProduct(_ context.Context, productID string) (Product, error) {
	product, ok := s.store.FindProduct(productID)
	if !ok {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: productID}
	}
	return product, nil
}

// GetProductHistory returns the ordered step history for a product.
func (s *Service) GetProductHistory(_ context.Context, productID string) ([]Step, error) {
	history, ok := s.store.ProductHistory(productID)
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityStep, ID: productID}
	}
	return history, nil
}

// GetCurrentStatus returns the product's current status code, which
// always equals the last appended step's type.
func (s *Service) GetCurrentStatus(_ context.Context, productID string) (uint32, error) {
	product, ok := s.store.FindProduct(productID)
	if !ok {
		return 0, domain.ErrNotFound{Entity: domain.EntityProduct, ID: productID}
	}
	return product.CurrentStatus, nil
}

// ListProducts returns all product snapshots ordered by identifier.
func (s *Service) ListProducts(_ context.Context) []Product {
	return s.store.ListProducts()
}
