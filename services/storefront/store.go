package storefront

import (
	"context"
	"fmt"
	"time"

	"github.com/pipar-network/storefront/internal/ledger"
)

// State is a wholesale snapshot of the contract aggregate, used by the host
// to persist and restore the store between runs. Snapshots follow the same
// copy-and-replace discipline as catalog records: a snapshot is immutable
// once taken and restored in one swap.
type State struct {
	Account      ledger.AccountID `json:"account"`
	OwnerID      ledger.AccountID `json:"owner_id"`
	EscrowID     ledger.AccountID `json:"escrow_id"`
	DeployStatus DeployStatus     `json:"deploy_status"`
	TokenCost    uint64           `json:"token_cost"`
	Products     []Product        `json:"products"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StateStore persists contract snapshots.
type StateStore interface {
	// Load returns the latest snapshot for the account; found is false when
	// none has been saved yet.
	Load(ctx context.Context, account ledger.AccountID) (state State, found bool, err error)

	// Save stores a snapshot, replacing any previous one for the account.
	Save(ctx context.Context, state State) error
}

// Snapshot captures the current aggregate state.
func (c *Contract) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Account:      c.account,
		OwnerID:      c.ownerID,
		EscrowID:     c.escrowID,
		DeployStatus: c.deployStatus,
		TokenCost:    c.tokenCost,
		Products:     c.catalog.Products(),
		UpdatedAt:    time.Now().UTC(),
	}
}

// Restore replaces the aggregate state with a previously taken snapshot.
// The snapshot must belong to this store's account and principals. An
// in-flight deployment is rolled back to not-deployed: its continuation
// cannot survive a host restart, matching a failed remote action.
func (c *Contract) Restore(state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state.Account != c.account {
		return fmt.Errorf("snapshot belongs to %s, not %s", state.Account, c.account)
	}
	if state.OwnerID != c.ownerID || state.EscrowID != c.escrowID {
		return fmt.Errorf("snapshot principals do not match store %s", c.account)
	}

	catalog := NewCatalog()
	for _, p := range state.Products {
		if err := catalog.Append(p); err != nil {
			return fmt.Errorf("restore product %s: %w", p.ID, err)
		}
	}
	c.catalog = catalog
	c.deployStatus = state.DeployStatus
	if c.deployStatus == DeployStatusDeploying {
		c.deployStatus = DeployStatusNone
	}
	if state.TokenCost > 0 {
		c.tokenCost = state.TokenCost
	}
	return nil
}
