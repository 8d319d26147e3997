package ledger

import "context"

// ActionKind enumerates the primitive remote actions a batch can carry.
type ActionKind string

const (
	ActionCreateAccount    ActionKind = "create_account"
	ActionAddFullAccessKey ActionKind = "add_full_access_key"
	ActionTransfer         ActionKind = "transfer"
	ActionDeployCode       ActionKind = "deploy_code"
	ActionFunctionCall     ActionKind = "function_call"
)

// Action is one primitive step of a composite batch.
type Action struct {
	Kind      ActionKind
	PublicKey string // add_full_access_key
	Amount    uint64 // transfer
	Code      []byte // deploy_code
	Method    string // function_call
	Args      []byte // function_call, JSON-encoded
	Deposit   uint64 // function_call
	Gas       uint64 // function_call
}

// Callback names the continuation the platform invokes exactly once after the
// batch resolves, success or failure.
type Callback struct {
	Receiver AccountID
	Method   string
	Args     []byte
}

// Batch is a composite remote action against a single receiver. Actions
// execute in order; the first failure skips the rest and fails the whole
// batch. Building a batch performs no I/O; it runs only once issued through a
// Platform.
type Batch struct {
	Receiver AccountID
	Actions  []Action
	Callback *Callback
}

// NewBatch starts a batch against the given receiver.
func NewBatch(receiver AccountID) *Batch {
	return &Batch{Receiver: receiver}
}

// CreateAccount appends an account-creation action. It fails at execution
// time if the receiver already exists.
func (b *Batch) CreateAccount() *Batch {
	b.Actions = append(b.Actions, Action{Kind: ActionCreateAccount})
	return b
}

// AddFullAccessKey appends a signing-capability grant on the receiver.
func (b *Batch) AddFullAccessKey(publicKey string) *Batch {
	b.Actions = append(b.Actions, Action{Kind: ActionAddFullAccessKey, PublicKey: publicKey})
	return b
}

// Transfer appends a balance transfer from the issuing account to the
// receiver.
func (b *Batch) Transfer(amount uint64) *Batch {
	b.Actions = append(b.Actions, Action{Kind: ActionTransfer, Amount: amount})
	return b
}

// DeployCode appends installation of contract code on the receiver.
func (b *Batch) DeployCode(code []byte) *Batch {
	b.Actions = append(b.Actions, Action{Kind: ActionDeployCode, Code: code})
	return b
}

// FunctionCall appends an invocation of a method on the receiver.
func (b *Batch) FunctionCall(method string, args []byte, deposit, gas uint64) *Batch {
	b.Actions = append(b.Actions, Action{
		Kind:    ActionFunctionCall,
		Method:  method,
		Args:    args,
		Deposit: deposit,
		Gas:     gas,
	})
	return b
}

// Then chains the continuation invoked after the batch resolves.
func (b *Batch) Then(receiver AccountID, method string, args []byte) *Batch {
	b.Callback = &Callback{Receiver: receiver, Method: method, Args: args}
	return b
}

// Platform is the slice of the ledger platform a contract consumes: issue a
// composite remote action whose execution, and whose chained continuation,
// happen later and independently of the issuing call.
type Platform interface {
	// IssueBatch schedules the batch on behalf of sender. It returns once the
	// batch is recorded; it never waits for execution.
	IssueBatch(ctx context.Context, sender AccountID, batch *Batch) error
}
