package storefront

import (
	"errors"
	"fmt"

	"github.com/pipar-network/storefront/internal/ledger"
)

// Authorization errors. A guard violation fails the call before any state is
// touched.
var (
	ErrUnauthorized        = errors.New("caller is not permitted to call this method")
	ErrNoAuthDeposit       = errors.New("call requires an attached authorization deposit")
	ErrInsufficientDeposit = errors.New("attached deposit below the required amount")
)

// AccessGuard holds the stateless predicate checks run at the start of every
// mutating entry point. Owner-only operations authenticate the transaction
// signer; escrow-only operations authenticate the immediate caller, since the
// escrow contract acts on behalf of end buyers.
type AccessGuard struct {
	owner  ledger.AccountID
	escrow ledger.AccountID
}

// NewAccessGuard creates a guard for the given principals.
func NewAccessGuard(owner, escrow ledger.AccountID) AccessGuard {
	return AccessGuard{owner: owner, escrow: escrow}
}

// RequireOwner checks the authorization deposit and that the signer is the
// store owner.
func (g AccessGuard) RequireOwner(call ledger.CallContext) error {
	if call.Attached < AuthDeposit {
		return ErrNoAuthDeposit
	}
	if call.Signer != g.owner {
		return fmt.Errorf("%w: only the store owner may call this method", ErrUnauthorized)
	}
	return nil
}

// RequireEscrow checks the authorization deposit and that the caller is the
// trusted escrow contract.
func (g AccessGuard) RequireEscrow(call ledger.CallContext) error {
	if call.Attached < AuthDeposit {
		return ErrNoAuthDeposit
	}
	if call.Predecessor != g.escrow {
		return fmt.Errorf("%w: only the escrow contract may call this method", ErrUnauthorized)
	}
	return nil
}

// RequireDeposit checks that the attached payment covers min. Paid
// operations run it after their principal check.
func (g AccessGuard) RequireDeposit(call ledger.CallContext, min uint64) error {
	if call.Attached < min {
		return fmt.Errorf("%w: need %d, got %d", ErrInsufficientDeposit, min, call.Attached)
	}
	return nil
}

// RequirePlatform checks that the call is a platform-scheduled continuation
// of this contract's own orchestration, never a direct user call.
func (g AccessGuard) RequirePlatform(call ledger.CallContext) error {
	if call.Predecessor != call.Contract {
		return fmt.Errorf("%w: continuations are platform-only", ErrUnauthorized)
	}
	return nil
}
