// Package storefront implements the storefront ledger contract: a product
// catalog with guarded mutation, synchronous purchases against attached
// payments, and two asynchronous cross-service orchestrations (companion
// token deployment and reward disbursement) reconciled through platform
// continuations.
package storefront

import (
	"errors"
	"strings"
	"time"

	"github.com/pipar-network/storefront/internal/ledger"
)

// Ledger unit constants, in the smallest ledger unit.
const (
	// OneUnit is one whole token of the native ledger currency.
	OneUnit uint64 = 1_000_000_000

	// TokenDeployCost is the price charged to the store owner for deploying
	// the companion token service. It also funds the new token account.
	TokenDeployCost uint64 = 5 * OneUnit

	// AuthDeposit is the minimal explicit-approval deposit a guarded call
	// must attach to prove deliberate, signed intent.
	AuthDeposit uint64 = 1

	// StorageDepositCost covers buyer storage registration on the companion
	// token service.
	StorageDepositCost uint64 = 1_250_000

	// DeployGas is the gas budget for the composite deployment action.
	DeployGas uint64 = 70_000_000_000_000

	// CallGas is the gas budget for ordinary cross-service calls.
	CallGas uint64 = 30_000_000_000_000
)

// TokenAccountPrefix names the subordinate account the companion token
// service is deployed to, as "<prefix>.<store account>".
const TokenAccountPrefix = "ft"

// DeployStatus is the lifecycle state of the companion token deployment.
// A failed deployment returns to DeployStatusNone, permitting a retry.
type DeployStatus string

const (
	DeployStatusNone      DeployStatus = "not_deployed"
	DeployStatusDeploying DeployStatus = "deploying"
	DeployStatusDeployed  DeployStatus = "deployed"
)

// Product is an immutable catalog record. Mutation is copy-and-replace: an
// updated record wholesale swaps the previous snapshot in the catalog.
type Product struct {
	ID              string    `json:"product_id"`
	Name            string    `json:"name"`
	DescriptionRef  string    `json:"description_ref"` // content-addressed pointer, e.g. an IPFS CID
	Price           uint64    `json:"price"`           // smallest ledger unit per unit of product
	TotalSupply     uint64    `json:"total_supply"`    // units available; never negative
	PurchaseTimeout uint8     `json:"purchase_timeout"`
	IsDiscount      bool      `json:"is_discount"`
	DiscountPercent uint8     `json:"discount_percent"`
	TokenAmount     uint32    `json:"token_amount"`
	IsReward        bool      `json:"is_reward"`
	RewardAmount    uint64    `json:"reward_amount"` // reward credits per unit purchased
	Custom          bool      `json:"custom"`
	User            string    `json:"user,omitempty"` // owning user for custom products
	CreatedAt       time.Time `json:"created_at"`
}

// ProductInput carries the caller-supplied fields for AddProduct.
type ProductInput struct {
	Name            string `json:"name"`
	DescriptionRef  string `json:"description_ref"`
	Price           uint64 `json:"price"`
	TotalSupply     uint64 `json:"total_supply"`
	PurchaseTimeout uint8  `json:"purchase_timeout"`
	IsDiscount      bool   `json:"is_discount"`
	DiscountPercent uint8  `json:"discount_percent"`
	TokenAmount     uint32 `json:"token_amount"`
	IsReward        bool   `json:"is_reward"`
	RewardAmount    uint64 `json:"reward_amount"`
	Custom          bool   `json:"custom"`
	User            string `json:"user,omitempty"`
}

// Validate checks the input before a record is created. Price must be
// positive: a zero price would make purchase quantity division meaningless.
func (in ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("product name required")
	}
	if in.Price == 0 {
		return errors.New("product price must be positive")
	}
	if in.DiscountPercent > 100 {
		return errors.New("discount percent must be at most 100")
	}
	return nil
}

// PurchaseRequest carries the escrow-declared purchase parameters. The
// payment travels as an argument: the escrow contract holds the buyer's
// funds and attaches only the authorization deposit to the call itself.
type PurchaseRequest struct {
	ProductID       string           `json:"product_id"`
	BuyerID         ledger.AccountID `json:"buyer_id"`
	AttachedPayment uint64           `json:"attached_payment"`
	// RequestedQuantity, when positive, enables strict mode: the computed
	// quantity must match it exactly.
	RequestedQuantity uint64 `json:"requested_quantity,omitempty"`
}

// PurchaseReceipt is the structured result of a successful purchase.
// Remainder is the unrefunded rest of the payment below one unit price.
type PurchaseReceipt struct {
	ProductID       string           `json:"product_id"`
	BuyerID         ledger.AccountID `json:"buyer_id"`
	Quantity        uint64           `json:"quantity"`
	UnitPrice       uint64           `json:"unit_price"`
	Paid            uint64           `json:"paid"`
	Remainder       uint64           `json:"remainder"`
	RemainingSupply uint64           `json:"remaining_supply"`
	PurchasedAt     time.Time        `json:"purchased_at"`
}

// TokenDeployRequest carries the companion token parameters for DeployToken.
type TokenDeployRequest struct {
	TotalSupply string `json:"total_supply"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Icon        string `json:"icon"`
}

// RewardRequest carries the escrow-declared reward disbursement parameters.
type RewardRequest struct {
	ProductID string           `json:"product_id"`
	Quantity  uint64           `json:"quantity"`
	BuyerID   ledger.AccountID `json:"buyer_id"`
}

// checkedMul multiplies without wrapping; ok is false on overflow.
func checkedMul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	prod := a * b
	if prod/a != b {
		return 0, false
	}
	return prod, true
}

// checkedAdd adds without wrapping; ok is false on overflow.
func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
