package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pipar-network/storefront/pkg/logger"
)

// Handler executes a function call delivered to an account. Continuation
// handlers receive the promise outcome through the call context.
type Handler func(ctx context.Context, call CallContext, args []byte) error

// LocalRuntime is an in-process ledger platform. It keeps an account
// registry with balances, installed code and registered call handlers, and
// executes issued batches strictly in FIFO order, one at a time, matching
// the serialized execution model of the real platform.
//
// Batches are applied atomically: when an action fails, the balance and
// account effects of the actions already applied in that batch are rolled
// back, the remaining actions are skipped, and the chained continuation is
// invoked with a failure outcome.
type LocalRuntime struct {
	mu       sync.Mutex
	accounts map[AccountID]*accountState
	code     map[string]map[string]Handler // code bytes -> method -> handler
	queue    []pendingBatch
	now      func() time.Time
	log      *logger.Logger
}

type accountState struct {
	balance  uint64
	code     []byte
	keys     []string
	handlers map[string]Handler
}

type pendingBatch struct {
	sender AccountID
	batch  *Batch
}

// Runtime errors.
var (
	ErrAccountExists       = errors.New("account already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrNoHandler           = errors.New("no handler registered for method")
)

// NewLocalRuntime creates an empty runtime.
func NewLocalRuntime(log *logger.Logger) *LocalRuntime {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &LocalRuntime{
		accounts: make(map[AccountID]*accountState),
		code:     make(map[string]map[string]Handler),
		now:      time.Now,
		log:      log,
	}
}

// GenesisAccount creates an account with an initial balance. It is a setup
// helper, not a ledger primitive.
func (r *LocalRuntime) GenesisAccount(id AccountID, balance uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id] = &accountState{balance: balance, handlers: make(map[string]Handler)}
}

// RegisterHandler installs a function-call handler on an account. The
// storefront host registers the contract's continuations here; tests also use
// it to script companion-service behavior.
func (r *LocalRuntime) RegisterHandler(id AccountID, method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		acct = &accountState{handlers: make(map[string]Handler)}
		r.accounts[id] = acct
	}
	acct.handlers[method] = h
}

// RegisterCode associates installable code bytes with the handlers backing
// its methods. Once a batch deploys that code onto an account, function
// calls against the account dispatch to these handlers. This mirrors the
// platform treating the companion service binary as opaque, runnable code.
func (r *LocalRuntime) RegisterCode(code []byte, handlers map[string]Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code[string(code)] = handlers
}

// SettleAttachedDeposit moves a call's attached payment from the caller to
// the called contract. The host applies it before dispatching an entry
// point, matching the platform capturing deposits at call time.
func (r *LocalRuntime) SettleAttachedDeposit(from, to AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.accounts[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, from)
	}
	var undo []func()
	return r.moveLocked(src, to, amount, &undo)
}

// Balance returns an account's balance, or zero for unknown accounts.
func (r *LocalRuntime) Balance(id AccountID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acct, ok := r.accounts[id]; ok {
		return acct.balance
	}
	return 0
}

// AccountExists reports whether the account is known to the runtime.
func (r *LocalRuntime) AccountExists(id AccountID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.accounts[id]
	return ok
}

// HasCode reports whether contract code is installed on the account.
func (r *LocalRuntime) HasCode(id AccountID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	return ok && len(acct.code) > 0
}

// QueueDepth returns the number of batches awaiting execution.
func (r *LocalRuntime) QueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// IssueBatch records the batch for later execution. The sender must exist.
func (r *LocalRuntime) IssueBatch(ctx context.Context, sender AccountID, batch *Batch) error {
	if batch == nil || batch.Receiver == "" {
		return errors.New("batch receiver required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[sender]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, sender)
	}
	r.queue = append(r.queue, pendingBatch{sender: sender, batch: batch})
	return nil
}

// Flush executes queued batches until the queue is empty, delivering each
// chained continuation exactly once. Continuations enqueued during the flush
// are executed before Flush returns.
func (r *LocalRuntime) Flush(ctx context.Context) error {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return nil
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}
		r.execute(ctx, next)
	}
}

// execute runs one batch and then invokes its continuation, if any.
func (r *LocalRuntime) execute(ctx context.Context, p pendingBatch) {
	err := r.applyActions(ctx, p.sender, p.batch)
	success := err == nil
	if err != nil {
		r.log.WithError(err).
			WithField("sender", p.sender).
			WithField("receiver", p.batch.Receiver).
			Warn("batch failed")
	}

	cb := p.batch.Callback
	if cb == nil {
		return
	}

	handler := r.lookupHandler(cb.Receiver, cb.Method)
	if handler == nil {
		r.log.WithField("receiver", cb.Receiver).
			WithField("method", cb.Method).
			Error("continuation has no handler")
		return
	}

	call := CallContext{
		Contract:       cb.Receiver,
		Predecessor:    p.sender,
		Signer:         p.sender,
		BlockTime:      r.now(),
		PromiseSuccess: &success,
	}
	if err := handler(ctx, call, cb.Args); err != nil {
		r.log.WithError(err).
			WithField("method", cb.Method).
			Error("continuation failed")
	}
}

// applyActions executes the batch's actions in order under the runtime lock,
// rolling back its own effects when an action fails.
func (r *LocalRuntime) applyActions(ctx context.Context, sender AccountID, b *Batch) error {
	r.mu.Lock()

	var undo []func()
	fail := func(err error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		r.mu.Unlock()
		return err
	}

	from, ok := r.accounts[sender]
	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrAccountNotFound, sender))
	}

	var calls []Action
	for _, action := range b.Actions {
		switch action.Kind {
		case ActionCreateAccount:
			if _, exists := r.accounts[b.Receiver]; exists {
				return fail(fmt.Errorf("%w: %s", ErrAccountExists, b.Receiver))
			}
			r.accounts[b.Receiver] = &accountState{handlers: make(map[string]Handler)}
			undo = append(undo, func() { delete(r.accounts, b.Receiver) })

		case ActionAddFullAccessKey:
			to, exists := r.accounts[b.Receiver]
			if !exists {
				return fail(fmt.Errorf("%w: %s", ErrAccountNotFound, b.Receiver))
			}
			to.keys = append(to.keys, action.PublicKey)
			undo = append(undo, func() { to.keys = to.keys[:len(to.keys)-1] })

		case ActionTransfer:
			if err := r.moveLocked(from, b.Receiver, action.Amount, &undo); err != nil {
				return fail(err)
			}

		case ActionDeployCode:
			to, exists := r.accounts[b.Receiver]
			if !exists {
				return fail(fmt.Errorf("%w: %s", ErrAccountNotFound, b.Receiver))
			}
			prev := to.code
			to.code = action.Code
			undo = append(undo, func() { to.code = prev })

		case ActionFunctionCall:
			if action.Deposit > 0 {
				if err := r.moveLocked(from, b.Receiver, action.Deposit, &undo); err != nil {
					return fail(err)
				}
			}
			calls = append(calls, action)

		default:
			return fail(fmt.Errorf("unknown action kind %q", action.Kind))
		}
	}
	r.mu.Unlock()

	// Function-call handlers run outside the lock so they may consult the
	// runtime. A handler error still fails the whole batch: the account and
	// balance effects recorded above are reversed, though the handler's own
	// side effects are the callee's responsibility.
	failCalls := func(err error) error {
		r.mu.Lock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		r.mu.Unlock()
		return err
	}
	for _, action := range calls {
		handler := r.lookupHandler(b.Receiver, action.Method)
		if handler == nil {
			return failCalls(fmt.Errorf("%w: %s on %s", ErrNoHandler, action.Method, b.Receiver))
		}
		call := CallContext{
			Contract:    b.Receiver,
			Predecessor: sender,
			Signer:      sender,
			Attached:    action.Deposit,
			BlockTime:   r.now(),
		}
		if err := handler(ctx, call, action.Args); err != nil {
			return failCalls(fmt.Errorf("call %s on %s: %w", action.Method, b.Receiver, err))
		}
	}
	return nil
}

// lookupHandler resolves a method on an account: directly registered
// handlers first, then the handlers of whatever code is installed.
func (r *LocalRuntime) lookupHandler(id AccountID, method string) Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil
	}
	if h, ok := acct.handlers[method]; ok {
		return h
	}
	if len(acct.code) > 0 {
		if handlers, ok := r.code[string(acct.code)]; ok {
			return handlers[method]
		}
	}
	return nil
}

// moveLocked transfers amount between accounts with checked arithmetic.
// Callers hold the runtime lock.
func (r *LocalRuntime) moveLocked(from *accountState, to AccountID, amount uint64, undo *[]func()) error {
	dst, ok := r.accounts[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, to)
	}
	if from.balance < amount {
		return ErrInsufficientBalance
	}
	if dst.balance > ^uint64(0)-amount {
		return ErrBalanceOverflow
	}
	from.balance -= amount
	dst.balance += amount
	*undo = append(*undo, func() {
		from.balance += amount
		dst.balance -= amount
	})
	return nil
}
