// Package ledger models the boundary to the ledger platform that hosts the
// storefront contract: caller environments, composite remote-action batches,
// and continuation chaining. Contracts consume the Platform interface; the
// LocalRuntime provides an in-process implementation for tests and the dev
// host.
package ledger

import (
	"errors"
	"fmt"
	"regexp"
)

// AccountID identifies an account on the ledger.
type AccountID string

var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[-_])*[a-z\d]+\.)*([a-z\d]+[-_])*[a-z\d]+$`)

// Valid reports whether the account ID is well formed: 2-64 characters of
// lowercase alphanumerics with interior separators.
func (a AccountID) Valid() bool {
	if len(a) < 2 || len(a) > 64 {
		return false
	}
	return accountIDPattern.MatchString(string(a))
}

// ErrInvalidAccountID is returned when an account identifier fails validation.
var ErrInvalidAccountID = errors.New("invalid account id")

// SubAccount derives the deterministic subordinate identity "<prefix>.<parent>".
func SubAccount(prefix string, parent AccountID) (AccountID, error) {
	sub := AccountID(fmt.Sprintf("%s.%s", prefix, parent))
	if !sub.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidAccountID, sub)
	}
	return sub, nil
}
