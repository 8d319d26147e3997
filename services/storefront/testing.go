package storefront

import (
	"context"
	"errors"
	"sync"

	"github.com/pipar-network/storefront/internal/ledger"
	"github.com/pipar-network/storefront/pkg/logger"
)

// MemoryStateStore is an in-memory StateStore for tests and hosts without a
// database.
type MemoryStateStore struct {
	mu        sync.RWMutex
	snapshots map[ledger.AccountID]State
}

// NewMemoryStateStore creates an empty in-memory snapshot store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{snapshots: make(map[ledger.AccountID]State)}
}

// Load returns the stored snapshot, if any.
func (s *MemoryStateStore) Load(_ context.Context, account ledger.AccountID) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.snapshots[account]
	return state, ok, nil
}

// Save replaces the stored snapshot.
func (s *MemoryStateStore) Save(_ context.Context, state State) error {
	if state.Account == "" {
		return errors.New("snapshot account required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[state.Account] = state
	return nil
}

// Well-known identities for test environments.
const (
	TestStoreAccount ledger.AccountID = "store.test"
	TestOwner        ledger.AccountID = "owner.test"
	TestEscrow       ledger.AccountID = "escrow.test"
	TestBuyer        ledger.AccountID = "buyer.test"
)

// TestTokenCode is the stand-in companion token binary used by test
// environments.
var TestTokenCode = []byte("companion-token-code")

// TestEnv wires a contract to a local runtime with funded test accounts and
// a working companion token implementation. Packages that exercise the
// contract build on it instead of repeating the setup.
type TestEnv struct {
	Runtime  *ledger.LocalRuntime
	Contract *Contract
}

// NewTestEnv builds the standard test environment. The companion token code
// is registered with accepting handlers; tests that need a failing service
// register different code or pre-create the token account.
func NewTestEnv(log *logger.Logger) (*TestEnv, error) {
	if log == nil {
		log = logger.NewDefault("storefront-test")
	}
	rt := ledger.NewLocalRuntime(log)
	rt.GenesisAccount(TestStoreAccount, 10*OneUnit)
	rt.GenesisAccount(TestOwner, 100*OneUnit)
	rt.GenesisAccount(TestEscrow, 100*OneUnit)
	rt.GenesisAccount(TestBuyer, 100*OneUnit)

	contract, err := New(Config{
		Account:   TestStoreAccount,
		OwnerID:   TestOwner,
		EscrowID:  TestEscrow,
		Platform:  rt,
		TokenCode: TestTokenCode,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	for method, handler := range contract.Continuations() {
		rt.RegisterHandler(TestStoreAccount, method, handler)
	}
	rt.RegisterCode(TestTokenCode, AcceptingTokenHandlers())

	return &TestEnv{Runtime: rt, Contract: contract}, nil
}

// AcceptingTokenHandlers returns companion token handlers that accept every
// call, for the success paths.
func AcceptingTokenHandlers() map[string]ledger.Handler {
	accept := func(context.Context, ledger.CallContext, []byte) error { return nil }
	return map[string]ledger.Handler{
		tokenInitMethod:     accept,
		tokenStorageMethod:  accept,
		tokenTransferMethod: accept,
	}
}

// FailingTokenHandlers returns companion token handlers whose named method
// fails with the given error, for the failure paths.
func FailingTokenHandlers(method string, err error) map[string]ledger.Handler {
	handlers := AcceptingTokenHandlers()
	handlers[method] = func(context.Context, ledger.CallContext, []byte) error { return err }
	return handlers
}

// OwnerCall settles an attached deposit from the owner and returns the call
// context for an owner-signed entry point.
func (e *TestEnv) OwnerCall(attached uint64) (ledger.CallContext, error) {
	return e.callFrom(TestOwner, attached)
}

// EscrowCall settles an attached deposit from the escrow contract and
// returns the call context for an escrow-issued entry point.
func (e *TestEnv) EscrowCall(attached uint64) (ledger.CallContext, error) {
	return e.callFrom(TestEscrow, attached)
}

func (e *TestEnv) callFrom(caller ledger.AccountID, attached uint64) (ledger.CallContext, error) {
	if err := e.Runtime.SettleAttachedDeposit(caller, e.Contract.Account(), attached); err != nil {
		return ledger.CallContext{}, err
	}
	return ledger.CallContext{
		Contract:    e.Contract.Account(),
		Predecessor: caller,
		Signer:      caller,
		SignerKey:   "ed25519:" + string(caller),
		Attached:    attached,
	}, nil
}
