// Package memory provides an in-memory implementation of the ledger
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"supplyledger/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Principal aliases domain.Principal for in-memory persistence operations.
	Principal = domain.Principal
	// Role aliases domain.Role.
	Role = domain.Role
	// Product aliases domain.Product.
	Product = domain.Product
	// Step aliases domain.Step.
	Step = domain.Step
	// TokenMetadata aliases domain.TokenMetadata.
	TokenMetadata = domain.TokenMetadata
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type ledgerState struct {
	admin       Principal
	hasAdmin    bool
	meta        *TokenMetadata
	adminPubkey string
	balances    map[Principal]*uint256.Int
	roles       map[Principal]Role
	products    map[string]Product
	steps       map[string][]Step
	keymap      map[string]string
}

func newLedgerState() ledgerState {
	return ledgerState{
		balances: make(map[Principal]*uint256.Int),
		roles:    make(map[Principal]Role),
		products: make(map[string]Product),
		steps:    make(map[string][]Step),
		keymap:   make(map[string]string),
	}
}

func (s ledgerState) clone() ledgerState {
	cloned := newLedgerState()
	cloned.admin = s.admin
	cloned.hasAdmin = s.hasAdmin
	cloned.adminPubkey = s.adminPubkey
	if s.meta != nil {
		meta := *s.meta
		cloned.meta = &meta
	}
	for k, v := range s.balances {
		cloned.balances[k] = domain.CloneAmount(v)
	}
	for k, v := range s.roles {
		cloned.roles[k] = v
	}
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.steps {
		cloned.steps[k] = domain.CloneSteps(v)
	}
	for k, v := range s.keymap {
		cloned.keymap[k] = v
	}
	return cloned
}

// Snapshot captures a point-in-time clone of the store state. Balances
// serialize as decimal strings so amounts survive JSON intact.
type Snapshot struct {
	Admin       string             `json:"admin,omitempty"`
	Meta        *TokenMetadata     `json:"meta,omitempty"`
	AdminPubkey string             `json:"admin_pubkey,omitempty"`
	Balances    map[string]string  `json:"balances"`
	Roles       map[string]uint32  `json:"roles"`
	Products    map[string]Product `json:"products"`
	Steps       map[string][]Step  `json:"steps"`
	Keymap      map[string]string  `json:"keymap"`
}

// AdminRecord is the serialized form of the admin bucket used by the
// durable backends. It pairs the admin address with its signing pubkey.
type AdminRecord struct {
	Address string `json:"address,omitempty"`
	Pubkey  string `json:"pubkey,omitempty"`
}

func snapshotFromLedgerState(state ledgerState) Snapshot {
	s := Snapshot{
		AdminPubkey: state.adminPubkey,
		Balances:    make(map[string]string, len(state.balances)),
		Roles:       make(map[string]uint32, len(state.roles)),
		Products:    make(map[string]Product, len(state.products)),
		Steps:       make(map[string][]Step, len(state.steps)),
		Keymap:      make(map[string]string, len(state.keymap)),
	}
	if state.hasAdmin {
		s.Admin = string(state.admin)
	}
	if state.meta != nil {
		meta := *state.meta
		s.Meta = &meta
	}
	for k, v := range state.balances {
		s.Balances[string(k)] = domain.CloneAmount(v).Dec()
	}
	for k, v := range state.roles {
		s.Roles[string(k)] = uint32(v)
	}
	for k, v := range state.products {
		s.Products[k] = v
	}
	for k, v := range state.steps {
		s.Steps[k] = domain.CloneSteps(v)
	}
	for k, v := range state.keymap {
		s.Keymap[k] = v
	}
	return s
}

func ledgerStateFromSnapshot(s Snapshot) (ledgerState, error) {
	state := newLedgerState()
	if s.Admin != "" {
		state.admin = Principal(s.Admin)
		state.hasAdmin = true
	}
	if s.Meta != nil {
		meta := *s.Meta
		state.meta = &meta
	}
	state.adminPubkey = s.AdminPubkey
	for k, v := range s.Balances {
		amount, err := uint256.FromDecimal(v)
		if err != nil {
			return ledgerState{}, fmt.Errorf("decode balance of %s: %w", k, err)
		}
		state.balances[Principal(k)] = amount
	}
	for k, v := range s.Roles {
		state.roles[Principal(k)] = Role(v)
	}
	for k, v := range s.Products {
		state.products[k] = v
	}
	for k, v := range s.Steps {
		state.steps[k] = domain.CloneSteps(v)
	}
	for k, v := range s.Keymap {
		state.keymap[k] = v
	}
	return state, nil
}

// Store provides an in-memory transactional store for the ledger domain.
type Store struct {
	mu     sync.RWMutex
	state  ledgerState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newLedgerState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time provider used for ledger timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromLedgerState(s.state)
}

// ImportState replaces the store state with the provided snapshot. A
// snapshot that fails to decode is rejected wholesale; the previous
// state stays in place.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := ledgerStateFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// Admin returns the configured admin principal, if initialized.
func (s *Store) Admin() (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.admin, s.state.hasAdmin
}

// RoleOf returns the role held by addr, RoleNone when never granted.
func (s *Store) RoleOf(addr Principal) Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.roles[addr]
}

// BalanceOf returns addr's balance, zero when absent.
func (s *Store) BalanceOf(id Principal) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneAmount(s.state.balances[id])
}

// FindProduct retrieves a product snapshot by identifier.
func (s *Store) FindProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// ProductHistory retrieves the ordered step history for a product.
func (s *Store) ProductHistory(id string) ([]Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps, ok := s.state.steps[id]
	if !ok {
		return nil, false
	}
	return domain.CloneSteps(steps), true
}

// ListProducts returns all product snapshots ordered by identifier.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(&s.state)
}

func listProducts(state *ledgerState) []Product {
	out := make([]Product, 0, len(state.products))
	for _, p := range state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   ledgerState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *ledgerState
}

func newTransactionView(state *ledgerState) TransactionView {
	return transactionView{state: state}
}

// ListProducts returns all products within the transaction snapshot.
func (v transactionView) ListProducts() []Product {
	return listProducts(v.state)
}

// FindProduct retrieves a product by ID from the snapshot.
func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

// ProductHistory retrieves a product's step history from the snapshot.
func (v transactionView) ProductHistory(id string) ([]Step, bool) {
	steps, ok := v.state.steps[id]
	if !ok {
		return nil, false
	}
	return domain.CloneSteps(steps), true
}

// Balances returns a copy of all balance entries.
func (v transactionView) Balances() map[Principal]domain.Balance {
	out := make(map[Principal]domain.Balance, len(v.state.balances))
	for k, b := range v.state.balances {
		out[k] = domain.CloneAmount(b)
	}
	return out
}

// RoleOf resolves addr's role within the snapshot.
func (v transactionView) RoleOf(addr Principal) Role {
	return v.state.roles[addr]
}

// Admin returns the admin principal recorded in the snapshot.
func (v transactionView) Admin() (Principal, bool) {
	return v.state.admin, v.state.hasAdmin
}

// TokenMetadata returns the token bootstrap parameters, if set.
func (v transactionView) TokenMetadata() (TokenMetadata, bool) {
	if v.state.meta == nil {
		return TokenMetadata{}, false
	}
	return *v.state.meta, true
}

// AdminPubkey returns the stored admin public key, empty when unset.
func (v transactionView) AdminPubkey() string {
	return v.state.adminPubkey
}

// Key returns the generic key/value entry, empty when unset.
func (v transactionView) Key(key string) string {
	return v.state.keymap[key]
}

// BalanceOf returns id's balance within the snapshot, zero when absent.
func (v transactionView) BalanceOf(id Principal) *uint256.Int {
	return domain.CloneAmount(v.state.balances[id])
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// SetAdmin records the admin principal.
func (tx *transaction) SetAdmin(admin Principal) {
	tx.state.admin = admin
	tx.state.hasAdmin = true
	tx.recordChange(Change{Entity: domain.EntityAdmin, Action: domain.ActionUpdate, ID: string(admin)})
}

// SetTokenMetadata records the token bootstrap parameters.
func (tx *transaction) SetTokenMetadata(meta TokenMetadata) {
	tx.state.meta = &meta
	tx.recordChange(Change{Entity: domain.EntityAdmin, Action: domain.ActionUpdate, ID: "meta", After: meta})
}

// SetAdminPubkey stores the admin public key string.
func (tx *transaction) SetAdminPubkey(pubkey string) {
	tx.state.adminPubkey = pubkey
	tx.recordChange(Change{Entity: domain.EntityAdmin, Action: domain.ActionUpdate, ID: "admin_pubkey"})
}

// SetKey writes an entry in the generic key/value map.
func (tx *transaction) SetKey(key, val string) {
	before := tx.state.keymap[key]
	tx.state.keymap[key] = val
	tx.recordChange(Change{Entity: domain.EntityKey, Action: domain.ActionUpdate, ID: key, Before: before, After: val})
}

// SetRole assigns addr's role unconditionally, overwriting any prior
// value. Role entries are never deleted; revocation writes RoleNone.
func (tx *transaction) SetRole(addr Principal, role Role) {
	before := tx.state.roles[addr]
	tx.state.roles[addr] = role
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionUpdate, ID: string(addr), Before: before, After: role})
}

// Credit increases to's balance by amount.
func (tx *transaction) Credit(to Principal, amount *uint256.Int) {
	balance := domain.CloneAmount(tx.state.balances[to])
	balance.Add(balance, amount)
	tx.state.balances[to] = balance
	tx.recordChange(Change{Entity: domain.EntityBalance, Action: domain.ActionUpdate, ID: string(to), After: balance.Dec()})
}

// Debit decreases from's balance by amount, failing before any write
// when the balance is insufficient.
func (tx *transaction) Debit(from Principal, amount *uint256.Int) error {
	balance := domain.CloneAmount(tx.state.balances[from])
	if balance.Lt(amount) {
		return domain.ErrInsufficientBalance{From: from, Balance: balance, Amount: domain.CloneAmount(amount)}
	}
	balance.Sub(balance, amount)
	tx.state.balances[from] = balance
	tx.recordChange(Change{Entity: domain.EntityBalance, Action: domain.ActionUpdate, ID: string(from), After: balance.Dec()})
	return nil
}

// CreateProduct registers a new product snapshot and synthesizes its
// Production step in the same mutation set. This is the sole product
// constructor; step 0 is never inserted through AppendStep.
func (tx *transaction) CreateProduct(productID, serialNumber string, manufacturer Principal, location string) (Product, error) {
	if _, exists := tx.state.products[productID]; exists {
		return Product{}, domain.ErrDuplicate{Entity: domain.EntityProduct, ID: productID}
	}
	now := uint64(tx.now.Unix())
	product := Product{
		ProductID:       productID,
		SerialNumber:    serialNumber,
		Manufacturer:    manufacturer,
		CreatedAt:       now,
		CurrentStatus:   uint32(domain.StepProduction),
		CurrentLocation: location,
	}
	first := Step{
		StepID:           0,
		ProductID:        productID,
		StepType:         uint32(domain.StepProduction),
		Location:         location,
		ResponsibleParty: manufacturer,
		Timestamp:        now,
		Metadata:         map[string]string{},
	}
	tx.state.products[productID] = product
	tx.state.steps[productID] = append(tx.state.steps[productID], first)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, ID: productID, After: product})
	tx.recordChange(Change{Entity: domain.EntityStep, Action: domain.ActionCreate, ID: productID, After: domain.CloneStep(first)})
	return product, nil
}

// AppendStep appends a step with the next sequential StepID and rewrites
// the product snapshot so status and location mirror the new step.
// Identity fields of the snapshot carry over unchanged.
func (tx *transaction) AppendStep(productID string, stepType uint32, location string, responsible Principal, trackingNumber *string, metadata map[string]string) (Step, error) {
	product, ok := tx.state.products[productID]
	if !ok {
		return Step{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: productID}
	}
	history, ok := tx.state.steps[productID]
	if !ok || len(history) == 0 {
		return Step{}, domain.ErrNotFound{Entity: domain.EntityStep, ID: productID}
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	step := Step{
		StepID:           uint32(len(history)),
		ProductID:        productID,
		StepType:         stepType,
		Location:         location,
		ResponsibleParty: responsible,
		TrackingNumber:   trackingNumber,
		Timestamp:        uint64(tx.now.Unix()),
		Metadata:         metadata,
	}
	step = domain.CloneStep(step)

	before := product
	product.CurrentStatus = stepType
	product.CurrentLocation = location

	tx.state.steps[productID] = append(history, step)
	tx.state.products[productID] = product
	tx.recordChange(Change{Entity: domain.EntityStep, Action: domain.ActionCreate, ID: productID, After: domain.CloneStep(step)})
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, ID: productID, Before: before, After: product})
	return domain.CloneStep(step), nil
}
