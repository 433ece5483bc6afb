package core

import "supplyledger/pkg/domain"

type (
	Principal          = domain.Principal
	Role               = domain.Role
	StepType           = domain.StepType
	Product            = domain.Product
	Step               = domain.Step
	TokenMetadata      = domain.TokenMetadata
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Authorizer         = domain.Authorizer
)

const (
	RoleNone         = domain.RoleNone
	RoleManufacturer = domain.RoleManufacturer
	RoleShipper      = domain.RoleShipper
	RoleWarehouse    = domain.RoleWarehouse
	RoleAuditor      = domain.RoleAuditor
)

const (
	StepProduction = domain.StepProduction
	StepShipping   = domain.StepShipping
	StepTransit    = domain.StepTransit
	StepDelivery   = domain.StepDelivery
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
