package storefront

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pipar-network/storefront/internal/ledger"
)

// PostgresStateStore persists contract snapshots in PostgreSQL, one row per
// store account, replaced wholesale on every save.
type PostgresStateStore struct {
	db *sql.DB
}

// NewPostgresStateStore creates a PostgreSQL-backed snapshot store.
func NewPostgresStateStore(db *sql.DB) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

// Schema is the DDL for the snapshot table. The host applies it at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS storefront_snapshots (
    account       TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    escrow_id     TEXT NOT NULL,
    deploy_status TEXT NOT NULL,
    token_cost    BIGINT NOT NULL,
    products      JSONB NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the snapshot table if it does not exist.
func (s *PostgresStateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for the account.
func (s *PostgresStateStore) Load(ctx context.Context, account ledger.AccountID) (State, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account, owner_id, escrow_id, deploy_status, token_cost, products, updated_at
		FROM storefront_snapshots
		WHERE account = $1
	`, string(account))

	var (
		state        State
		tokenCost    int64
		productsJSON []byte
	)
	err := row.Scan(&state.Account, &state.OwnerID, &state.EscrowID,
		&state.DeployStatus, &tokenCost, &productsJSON, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	state.TokenCost = uint64(tokenCost)
	if err := json.Unmarshal(productsJSON, &state.Products); err != nil {
		return State{}, false, fmt.Errorf("decode snapshot products: %w", err)
	}
	return state, true, nil
}

// Save upserts the snapshot row for the account.
func (s *PostgresStateStore) Save(ctx context.Context, state State) error {
	productsJSON, err := json.Marshal(state.Products)
	if err != nil {
		return fmt.Errorf("encode snapshot products: %w", err)
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO storefront_snapshots (account, owner_id, escrow_id, deploy_status, token_cost, products, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			escrow_id = EXCLUDED.escrow_id,
			deploy_status = EXCLUDED.deploy_status,
			token_cost = EXCLUDED.token_cost,
			products = EXCLUDED.products,
			updated_at = EXCLUDED.updated_at
	`, string(state.Account), string(state.OwnerID), string(state.EscrowID),
		string(state.DeployStatus), int64(state.TokenCost), productsJSON, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
