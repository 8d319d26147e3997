package storefront

import (
	"encoding/json"
	"fmt"

	"github.com/pipar-network/storefront/internal/ledger"
)

// Companion token service entry points. The storefront only knows the
// method names and argument shapes; the service itself is an external
// collaborator whose code the host supplies as opaque bytes.
const (
	tokenInitMethod     = "new_default_meta"
	tokenStorageMethod  = "storage_deposit"
	tokenTransferMethod = "ft_transfer"
)

// Continuation method names, registered with the platform by the host.
const (
	MethodDeployTokenCallback     = "deploy_token_callback"
	MethodRewardWithTokenCallback = "reward_with_token_callback"
)

// TokenMetadata is the initializer argument shape of the companion token
// service.
type TokenMetadata struct {
	OwnerID     ledger.AccountID `json:"owner_id"`
	TotalSupply string           `json:"total_supply"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Icon        string           `json:"icon"`
}

type storageDepositArgs struct {
	AccountID ledger.AccountID `json:"account_id"`
}

type tokenTransferArgs struct {
	ReceiverID ledger.AccountID `json:"receiver_id"`
	Amount     string           `json:"amount"`
	Memo       string           `json:"memo"`
}

type deployCallbackArgs struct {
	TokenCreatorID  ledger.AccountID `json:"token_creator_id"`
	AttachedDeposit uint64           `json:"attached_deposit"`
}

type rewardCallbackArgs struct {
	ProductID string           `json:"product_id"`
	BuyerID   ledger.AccountID `json:"buyer_id"`
	Amount    uint64           `json:"amount"`
}

func marshalArgs(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal call args: %w", err)
	}
	return data, nil
}
