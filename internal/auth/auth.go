// Package auth provides Authorizer implementations for the ledger
// service. An Authorizer decides whether a principal has approved the
// current operation; role policy stays in the service layer.
package auth

import (
	"context"
	"sync"

	"supplyledger/pkg/domain"
)

// AllowAll approves every principal. Useful for trusted in-process
// callers and tests.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, domain.Principal) error { return nil }

// ApproverSet approves only principals explicitly registered before the
// call. It models externally verified signatures: the transport layer
// verifies a signature, then marks the signer approved for the request.
type ApproverSet struct {
	mu       sync.RWMutex
	approved map[domain.Principal]struct{}
}

// NewApproverSet returns an ApproverSet with the given principals
// pre-approved.
func NewApproverSet(principals ...domain.Principal) *ApproverSet {
	set := &ApproverSet{approved: make(map[domain.Principal]struct{}, len(principals))}
	for _, p := range principals {
		set.approved[p] = struct{}{}
	}
	return set
}

// Approve marks a principal as having authorized the current request.
func (a *ApproverSet) Approve(p domain.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approved[p] = struct{}{}
}

// Revoke removes a principal's approval.
func (a *ApproverSet) Revoke(p domain.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.approved, p)
}

// Authorize reports whether the principal approved this request.
func (a *ApproverSet) Authorize(_ context.Context, p domain.Principal) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.approved[p]; !ok {
		return domain.ErrUnauthorized{Principal: p}
	}
	return nil
}
