package domain

import "context"

// Authorizer attests whether a principal has approved the current call.
// It is invoked once per principal per operation; the mechanism behind
// the attestation (signatures, sessions, host runtime) is opaque to the
// core.
type Authorizer interface {
	Authorize(ctx context.Context, principal Principal) error
}

// RequiredApprover implements the role-or-admin gate shared by role
// mutators and the product state machine: when the subject holds the
// required role its own approval suffices, otherwise the admin must
// approve in its place. The gate is either/or, never a conjunction.
func RequiredApprover(held, required Role, subject, admin Principal) Principal {
	if held == required {
		return subject
	}
	return admin
}
