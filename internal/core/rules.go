package core

import (
	"context"
	"fmt"

	"supplyledger/pkg/domain"
)

// DefaultRulesEngine returns an engine preloaded with the built-in
// blocking rules evaluated on every transaction.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewHistoryConsistencyRule())
	engine.Register(NewBalanceIntegrityRule())
	return engine
}

// NewHistoryConsistencyRule returns the rule enforcing the pairing
// between product snapshots and their step histories.
func NewHistoryConsistencyRule() domain.Rule {
	return historyConsistencyRule{}
}

type historyConsistencyRule struct{}

func (historyConsistencyRule) Name() string { return "history_consistency" }

func (historyConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "history_consistency",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityProduct,
			EntityID: id,
		})
	}
	for _, product := range view.ListProducts() {
		history, ok := view.ProductHistory(product.ProductID)
		if !ok || len(history) == 0 {
			block(product.ProductID, fmt.Sprintf("product %s has no step history", product.ProductID))
			continue
		}
		for i, step := range history {
			if step.StepID != uint32(i) {
				block(product.ProductID, fmt.Sprintf("product %s step %d carries id %d", product.ProductID, i, step.StepID))
			}
			if step.ProductID != product.ProductID {
				block(product.ProductID, fmt.Sprintf("product %s step %d references %s", product.ProductID, i, step.ProductID))
			}
		}
		first := history[0]
		if first.StepType != uint32(domain.StepProduction) {
			block(product.ProductID, fmt.Sprintf("product %s first step is not production", product.ProductID))
		}
		if first.ResponsibleParty != product.Manufacturer {
			block(product.ProductID, fmt.Sprintf("product %s first step responsible party is not the manufacturer", product.ProductID))
		}
		last := history[len(history)-1]
		if product.CurrentStatus != last.StepType {
			block(product.ProductID, fmt.Sprintf("product %s status %d does not mirror last step type %d", product.ProductID, product.CurrentStatus, last.StepType))
		}
		if product.CurrentLocation != last.Location {
			block(product.ProductID, fmt.Sprintf("product %s location %q does not mirror last step location %q", product.ProductID, product.CurrentLocation, last.Location))
		}
	}
	return res, nil
}

// NewBalanceIntegrityRule returns the rule rejecting nil balance
// entries.
func NewBalanceIntegrityRule() domain.Rule {
	return balanceIntegrityRule{}
}

type balanceIntegrityRule struct{}

func (balanceIntegrityRule) Name() string { return "balance_integrity" }

func (balanceIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for principal, balance := range view.Balances() {
		if balance == nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "balance_integrity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("balance of %s is nil", principal),
				Entity:   domain.EntityBalance,
				EntityID: string(principal),
			})
		}
	}
	return res, nil
}
