package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/pipar-network/storefront/internal/ledger"
	"github.com/pipar-network/storefront/pkg/logger"
)

// Precondition errors. These fail the triggering call with zero mutation.
var (
	ErrInsufficientPayment   = errors.New("attached payment is not enough to buy the product")
	ErrInsufficientStock     = errors.New("seller does not have enough product")
	ErrQuantityMismatch      = errors.New("requested quantity does not match the paid quantity")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrTokenAlreadyDeployed  = errors.New("store owner has already deployed a token")
	ErrTokenDeployInProgress = errors.New("token deployment is already in progress")
	ErrTokenNotDeployed      = errors.New("companion token has not been deployed")
	ErrRewardNotEnabled      = errors.New("product has no reward configured")
)

// Config assembles a contract instance.
type Config struct {
	// Account is the ledger account this contract lives on.
	Account ledger.AccountID
	// OwnerID is the administrative principal; set once, immutable.
	OwnerID ledger.AccountID
	// EscrowID is the trusted caller for purchase/restock/reward operations.
	EscrowID ledger.AccountID
	// Platform issues remote-action batches and schedules continuations.
	Platform ledger.Platform
	// TokenCode is the companion token service's installable code.
	TokenCode []byte
	// TokenCost overrides the deployment price; zero means TokenDeployCost.
	TokenCost uint64
	// Logger defaults to a "storefront" logger.
	Logger *logger.Logger
}

// Contract is the storefront aggregate: the product catalog plus the
// companion-token deployment state. Every entry point runs to completion
// under the contract lock, mirroring the platform's serialized call model,
// and either fully applies or leaves no trace.
type Contract struct {
	mu sync.Mutex

	account  ledger.AccountID
	ownerID  ledger.AccountID
	escrowID ledger.AccountID

	guard   AccessGuard
	catalog *Catalog

	deployStatus DeployStatus
	tokenCost    uint64
	tokenCode    []byte

	platform ledger.Platform
	log      *logger.Logger
}

// New constructs the contract. It corresponds to the one-time constructor
// entry point; the host calls it exactly once per store account.
func New(cfg Config) (*Contract, error) {
	if !cfg.Account.Valid() {
		return nil, fmt.Errorf("%w: contract account %q", ledger.ErrInvalidAccountID, cfg.Account)
	}
	if !cfg.OwnerID.Valid() {
		return nil, fmt.Errorf("%w: owner %q", ledger.ErrInvalidAccountID, cfg.OwnerID)
	}
	if !cfg.EscrowID.Valid() {
		return nil, fmt.Errorf("%w: escrow %q", ledger.ErrInvalidAccountID, cfg.EscrowID)
	}
	if cfg.Platform == nil {
		return nil, errors.New("platform required")
	}
	if cfg.TokenCost == 0 {
		cfg.TokenCost = TokenDeployCost
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("storefront")
	}
	return &Contract{
		account:      cfg.Account,
		ownerID:      cfg.OwnerID,
		escrowID:     cfg.EscrowID,
		guard:        NewAccessGuard(cfg.OwnerID, cfg.EscrowID),
		catalog:      NewCatalog(),
		deployStatus: DeployStatusNone,
		tokenCost:    cfg.TokenCost,
		tokenCode:    cfg.TokenCode,
		platform:     cfg.Platform,
		log:          cfg.Logger,
	}, nil
}

// Account returns the contract's own ledger account.
func (c *Contract) Account() ledger.AccountID {
	return c.account
}

// --- Read-only entry points ---

// GetStoreProducts lists all products in storage order.
func (c *Contract) GetStoreProducts() []Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Products()
}

// GetProductCount returns the number of catalog records.
func (c *Contract) GetProductCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Len()
}

// GetTokenCost returns the companion token deployment price.
func (c *Contract) GetTokenCost() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenCost
}

// HasToken reports whether the companion token service is deployed.
func (c *Contract) HasToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deployStatus == DeployStatusDeployed
}

// TokenDeployStatus returns the deployment lifecycle state.
func (c *Contract) TokenDeployStatus() DeployStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deployStatus
}

// --- Catalog mutation ---

// AddProduct appends a new product. Owner-only.
func (c *Contract) AddProduct(ctx context.Context, call ledger.CallContext, in ProductInput) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequireOwner(call); err != nil {
		return Product{}, err
	}
	if err := in.Validate(); err != nil {
		return Product{}, err
	}

	p := Product{
		ID:              uuid.NewString(),
		Name:            in.Name,
		DescriptionRef:  in.DescriptionRef,
		Price:           in.Price,
		TotalSupply:     in.TotalSupply,
		PurchaseTimeout: in.PurchaseTimeout,
		IsDiscount:      in.IsDiscount,
		DiscountPercent: in.DiscountPercent,
		TokenAmount:     in.TokenAmount,
		IsReward:        in.IsReward,
		RewardAmount:    in.RewardAmount,
		Custom:          in.Custom,
		User:            in.User,
		CreatedAt:       call.BlockTime,
	}
	if err := c.catalog.Append(p); err != nil {
		return Product{}, err
	}

	c.log.WithField("product_id", p.ID).
		WithField("price", p.Price).
		WithField("total_supply", p.TotalSupply).
		Info("product added")
	return p, nil
}

// StorePurchaseProduct applies a purchase against the catalog: the quantity
// is the floor of payment over unit price, and any remainder below one unit
// price is kept, not refunded. This is the synchronous half of a purchase;
// no remote action is issued. Escrow-only.
func (c *Contract) StorePurchaseProduct(ctx context.Context, call ledger.CallContext, req PurchaseRequest) (PurchaseReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequireEscrow(call); err != nil {
		return PurchaseReceipt{}, err
	}
	product, err := c.catalog.Get(req.ProductID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if req.AttachedPayment < product.Price {
		return PurchaseReceipt{}, fmt.Errorf("%w: price %d, paid %d", ErrInsufficientPayment, product.Price, req.AttachedPayment)
	}

	quantity := req.AttachedPayment / product.Price
	remainder := req.AttachedPayment % product.Price
	if req.RequestedQuantity > 0 && req.RequestedQuantity != quantity {
		return PurchaseReceipt{}, fmt.Errorf("%w: requested %d, paid for %d", ErrQuantityMismatch, req.RequestedQuantity, quantity)
	}
	if product.TotalSupply < quantity {
		return PurchaseReceipt{}, fmt.Errorf("%w: supply %d, want %d", ErrInsufficientStock, product.TotalSupply, quantity)
	}

	updated := product
	updated.TotalSupply = product.TotalSupply - quantity
	if err := c.catalog.Replace(product.ID, updated); err != nil {
		return PurchaseReceipt{}, err
	}

	c.log.WithField("product_id", product.ID).
		WithField("buyer_id", req.BuyerID).
		WithField("quantity", quantity).
		WithField("remaining_supply", updated.TotalSupply).
		Info("product purchased")

	return PurchaseReceipt{
		ProductID:       product.ID,
		BuyerID:         req.BuyerID,
		Quantity:        quantity,
		UnitPrice:       product.Price,
		Paid:            req.AttachedPayment,
		Remainder:       remainder,
		RemainingSupply: updated.TotalSupply,
		PurchasedAt:     call.BlockTime,
	}, nil
}

// PlusProduct restocks a product by quantity. Escrow-only.
func (c *Contract) PlusProduct(ctx context.Context, call ledger.CallContext, productID string, quantity uint64) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequireEscrow(call); err != nil {
		return Product{}, err
	}
	product, err := c.catalog.Get(productID)
	if err != nil {
		return Product{}, err
	}

	newSupply, ok := checkedAdd(product.TotalSupply, quantity)
	if !ok {
		return Product{}, fmt.Errorf("%w: restock %d onto %d", ErrArithmeticOverflow, quantity, product.TotalSupply)
	}
	updated := product
	updated.TotalSupply = newSupply
	if err := c.catalog.Replace(product.ID, updated); err != nil {
		return Product{}, err
	}

	c.log.WithField("product_id", product.ID).
		WithField("quantity", quantity).
		WithField("total_supply", newSupply).
		Info("product restocked")
	return updated, nil
}

// --- Token deployment orchestration ---

// DeployToken issues the composite remote deployment of the companion token
// service on the subordinate account: create it, grant the owner's signing
// key, move the deployment funding, install the code, and run the
// initializer. The deployment state moves to deploying before the batch is
// issued and is reconciled by DeployTokenCallback. Owner-only, payable.
func (c *Contract) DeployToken(ctx context.Context, call ledger.CallContext, req TokenDeployRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequireOwner(call); err != nil {
		return err
	}
	switch c.deployStatus {
	case DeployStatusDeployed:
		return ErrTokenAlreadyDeployed
	case DeployStatusDeploying:
		return ErrTokenDeployInProgress
	}
	if err := c.guard.RequireDeposit(call, c.tokenCost); err != nil {
		return err
	}
	if len(c.tokenCode) == 0 {
		return errors.New("companion token code not configured")
	}

	tokenAccount, err := ledger.SubAccount(TokenAccountPrefix, c.account)
	if err != nil {
		return err
	}
	initArgs, err := marshalArgs(TokenMetadata{
		OwnerID:     tokenAccount,
		TotalSupply: req.TotalSupply,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Icon:        req.Icon,
	})
	if err != nil {
		return err
	}
	cbArgs, err := marshalArgs(deployCallbackArgs{
		TokenCreatorID:  call.Predecessor,
		AttachedDeposit: call.Attached,
	})
	if err != nil {
		return err
	}

	batch := ledger.NewBatch(tokenAccount).
		CreateAccount().
		AddFullAccessKey(call.SignerKey).
		Transfer(c.tokenCost).
		DeployCode(c.tokenCode).
		FunctionCall(tokenInitMethod, initArgs, 0, DeployGas).
		Then(c.account, MethodDeployTokenCallback, cbArgs)

	c.deployStatus = DeployStatusDeploying
	if err := c.platform.IssueBatch(ctx, c.account, batch); err != nil {
		c.deployStatus = DeployStatusNone
		return fmt.Errorf("issue deployment batch: %w", err)
	}

	c.log.WithField("token_account", tokenAccount).
		WithField("symbol", req.Symbol).
		Info("token deployment issued")
	return nil
}

// DeployTokenCallback reconciles the deployment outcome. On success the
// token is marked deployed; no funds move. On failure the full attached
// deployment payment is returned to the original caller — the compensating
// action for the payment captured before the remote deployment — and the
// state rolls back to not-deployed so the owner may retry.
func (c *Contract) DeployTokenCallback(ctx context.Context, call ledger.CallContext, rawArgs []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequirePlatform(call); err != nil {
		return err
	}
	var args deployCallbackArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return fmt.Errorf("parse deploy callback args: %w", err)
	}

	if call.PromiseSucceeded() {
		c.deployStatus = DeployStatusDeployed
		c.log.Info("successful token deployment")
		return nil
	}

	refund := ledger.NewBatch(args.TokenCreatorID).Transfer(args.AttachedDeposit)
	if err := c.platform.IssueBatch(ctx, c.account, refund); err != nil {
		// The refund could not even be scheduled; keep the deploying state
		// so the failure is visible rather than silently retryable.
		c.log.WithError(err).Error("failed to issue deployment refund")
		return fmt.Errorf("issue refund: %w", err)
	}
	c.deployStatus = DeployStatusNone
	c.log.WithField("refunded_to", args.TokenCreatorID).
		WithField("amount", args.AttachedDeposit).
		Warn("failed token deployment, deposit refunded")
	return nil
}

// --- Reward disbursement orchestration ---

// RewardWithToken issues the two-step remote disbursement of reward credits
// for a purchase: register storage for the buyer on the companion token
// service, then transfer rewardAmount * quantity credits. Escrow-only.
func (c *Contract) RewardWithToken(ctx context.Context, call ledger.CallContext, req RewardRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequireEscrow(call); err != nil {
		return err
	}
	product, err := c.catalog.Get(req.ProductID)
	if err != nil {
		return err
	}
	if !product.IsReward || product.RewardAmount == 0 {
		return fmt.Errorf("%w: %s", ErrRewardNotEnabled, product.ID)
	}
	if c.deployStatus != DeployStatusDeployed {
		return ErrTokenNotDeployed
	}

	rewardTotal, ok := checkedMul(product.RewardAmount, req.Quantity)
	if !ok {
		return fmt.Errorf("%w: %d * %d", ErrArithmeticOverflow, product.RewardAmount, req.Quantity)
	}

	tokenAccount, err := ledger.SubAccount(TokenAccountPrefix, c.account)
	if err != nil {
		return err
	}
	storageArgs, err := marshalArgs(storageDepositArgs{AccountID: req.BuyerID})
	if err != nil {
		return err
	}
	transferArgs, err := marshalArgs(tokenTransferArgs{
		ReceiverID: req.BuyerID,
		Amount:     strconv.FormatUint(rewardTotal, 10),
		Memo:       fmt.Sprintf("Reward for purchasing %s", product.Name),
	})
	if err != nil {
		return err
	}
	cbArgs, err := marshalArgs(rewardCallbackArgs{
		ProductID: product.ID,
		BuyerID:   req.BuyerID,
		Amount:    rewardTotal,
	})
	if err != nil {
		return err
	}

	batch := ledger.NewBatch(tokenAccount).
		FunctionCall(tokenStorageMethod, storageArgs, StorageDepositCost, CallGas).
		FunctionCall(tokenTransferMethod, transferArgs, AuthDeposit, CallGas).
		Then(c.account, MethodRewardWithTokenCallback, cbArgs)

	if err := c.platform.IssueBatch(ctx, c.account, batch); err != nil {
		return fmt.Errorf("issue reward batch: %w", err)
	}

	c.log.WithField("product_id", product.ID).
		WithField("buyer_id", req.BuyerID).
		WithField("reward_total", rewardTotal).
		Info("reward disbursement issued")
	return nil
}

// RewardWithTokenCallback records the disbursement outcome. Unlike a failed
// deployment there is no compensating action here: the escrow contract has
// already settled the purchase payment before requesting disbursement, so on
// failure the credits simply stay undelivered and only the logged outcome
// reports it.
func (c *Contract) RewardWithTokenCallback(ctx context.Context, call ledger.CallContext, rawArgs []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard.RequirePlatform(call); err != nil {
		return err
	}
	var args rewardCallbackArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return fmt.Errorf("parse reward callback args: %w", err)
	}

	entry := c.log.WithField("product_id", args.ProductID).
		WithField("buyer_id", args.BuyerID).
		WithField("amount", args.Amount)
	if call.PromiseSucceeded() {
		entry.Info("successful token reward")
	} else {
		entry.Warn("failed token reward, credits not delivered")
	}
	return nil
}

// Continuations exposes the contract's continuation handlers for the host to
// register with the platform. They are never routed to direct callers.
func (c *Contract) Continuations() map[string]ledger.Handler {
	return map[string]ledger.Handler{
		MethodDeployTokenCallback:     c.DeployTokenCallback,
		MethodRewardWithTokenCallback: c.RewardWithTokenCallback,
	}
}
