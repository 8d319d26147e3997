package ledger

import "time"

// CallContext carries the per-call environment the platform presents to a
// contract entry point. The platform serializes calls against one contract,
// so an entry point observing this context runs to completion before the
// next one starts.
type CallContext struct {
	// Contract is the account the called contract lives on.
	Contract AccountID

	// Predecessor is the account that issued this call. For a continuation
	// this is the contract itself.
	Predecessor AccountID

	// Signer is the account that signed the originating transaction.
	Signer AccountID

	// SignerKey is the public key that signed the originating transaction.
	SignerKey string

	// Attached is the payment attached to the call, in the smallest ledger
	// unit. An attached value of at least one unit doubles as the explicit
	// authorization deposit on guarded operations.
	Attached uint64

	// BlockTime is the timestamp of the block executing this call.
	BlockTime time.Time

	// PromiseSuccess reports the outcome of the remote action a continuation
	// was chained to. It is nil outside continuations.
	PromiseSuccess *bool
}

// PromiseSucceeded reports whether the preceding remote action succeeded.
// It must only be consulted inside a continuation.
func (c CallContext) PromiseSucceeded() bool {
	return c.PromiseSuccess != nil && *c.PromiseSuccess
}
