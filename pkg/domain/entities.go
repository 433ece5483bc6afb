// Package domain defines the persistent entities, value types, role model,
// and rule evaluation primitives used by supplyledger.
package domain

import (
	"github.com/holiman/uint256"
)

// Principal identifies an actor capable of approving an operation
// (admin, manufacturer, shipper, warehouse operator, auditor).
type Principal string

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a product snapshot record.
	EntityProduct EntityType = "product"
	// EntityStep identifies one step in a product history.
	EntityStep EntityType = "step"
	// EntityBalance identifies a principal's token balance.
	EntityBalance EntityType = "balance"
	// EntityRole identifies a principal's role assignment.
	EntityRole EntityType = "role"
	// EntityAdmin identifies the administrative singleton state.
	EntityAdmin EntityType = "admin"
	// EntityKey identifies an entry in the generic key/value map.
	EntityKey EntityType = "key"
)

// Role tags a principal with the supply-chain duties it may perform.
// Stored as a raw uint32: values outside the known set are accepted on
// grant and round-trip unchanged.
type Role uint32

// Known roles. A principal without an assignment holds RoleNone.
const (
	RoleNone Role = iota
	RoleManufacturer
	RoleShipper
	RoleWarehouse
	RoleAuditor
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleManufacturer:
		return "manufacturer"
	case RoleShipper:
		return "shipper"
	case RoleWarehouse:
		return "warehouse"
	case RoleAuditor:
		return "auditor"
	}
	return "unknown"
}

// StepType codes the event recorded by a step. The set is open: any
// uint32 is a valid step type, and unknown codes carry no role
// requirement beyond the responsible party's own approval.
type StepType uint32

// Step types with dedicated role requirements.
const (
	StepProduction StepType = iota
	StepShipping
	StepTransit
	StepDelivery
)

// RequiredRoleForStep resolves the role that must approve a step of the
// given type. RoleNone means the responsible party alone signs.
func RequiredRoleForStep(stepType StepType) Role {
	switch stepType {
	case StepProduction:
		return RoleManufacturer
	case StepShipping, StepTransit:
		return RoleShipper
	case StepDelivery:
		return RoleWarehouse
	}
	return RoleNone
}

// Balance is a principal's token balance. Values are non-negative by
// construction; an absent entry reads as zero.
type Balance = *uint256.Int

// TokenMetadata carries the token bootstrap parameters set at Initialize.
type TokenMetadata struct {
	Decimals uint32 `json:"decimals"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
}

// Product is the denormalized snapshot of a tracked item. CurrentStatus
// and CurrentLocation always mirror the most recent step; CreatedAt and
// Manufacturer are immutable after creation.
type Product struct {
	ProductID       string    `json:"product_id"`
	SerialNumber    string    `json:"serial_number"`
	Manufacturer    Principal `json:"manufacturer"`
	CreatedAt       uint64    `json:"created_at"`
	CurrentStatus   uint32    `json:"current_status"`
	CurrentLocation string    `json:"current_location"`
}

// Step records one status-changing event in a product's life. StepID is
// 0-based and equals the step's index in the product history; steps are
// never reordered or deleted.
type Step struct {
	StepID           uint32            `json:"step_id"`
	ProductID        string            `json:"product_id"`
	StepType         uint32            `json:"step_type"`
	Location         string            `json:"location"`
	ResponsibleParty Principal         `json:"responsible_party"`
	TrackingNumber   *string           `json:"tracking_number,omitempty"`
	Timestamp        uint64            `json:"timestamp"`
	Metadata         map[string]string `json:"metadata"`
}

// CloneStep returns a deep copy of a step record.
func CloneStep(s Step) Step {
	cp := s
	if s.TrackingNumber != nil {
		tn := *s.TrackingNumber
		cp.TrackingNumber = &tn
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// CloneSteps deep-copies a product history slice.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = CloneStep(s)
	}
	return out
}

// CloneAmount copies a balance or amount value, treating nil as zero.
func CloneAmount(a *uint256.Int) *uint256.Int {
	if a == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(a)
}

// Change records one mutation applied inside a transaction, consumed by
// the rules engine.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions recorded by transactions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
