package storefront

import (
	"context"
	"errors"
	"testing"

	"github.com/pipar-network/storefront/internal/ledger"
	"github.com/pipar-network/storefront/pkg/logger"
)

func newEnv(t *testing.T) *TestEnv {
	t.Helper()
	env, err := NewTestEnv(logger.NewDefault("storefront-test"))
	if err != nil {
		t.Fatalf("NewTestEnv failed: %v", err)
	}
	return env
}

func addProduct(t *testing.T, env *TestEnv, in ProductInput) Product {
	t.Helper()
	call, err := env.OwnerCall(AuthDeposit)
	if err != nil {
		t.Fatalf("owner call: %v", err)
	}
	p, err := env.Contract.AddProduct(context.Background(), call, in)
	if err != nil {
		t.Fatalf("AddProduct failed: %v", err)
	}
	return p
}

func deployToken(t *testing.T, env *TestEnv) {
	t.Helper()
	ctx := context.Background()
	call, err := env.OwnerCall(env.Contract.GetTokenCost())
	if err != nil {
		t.Fatalf("owner call: %v", err)
	}
	if err := env.Contract.DeployToken(ctx, call, TokenDeployRequest{
		TotalSupply: "1000000",
		Name:        "Store Token",
		Symbol:      "STK",
	}); err != nil {
		t.Fatalf("DeployToken failed: %v", err)
	}
	if err := env.Runtime.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if !env.Contract.HasToken() {
		t.Fatal("expected token to be deployed")
	}
}

func TestAddProduct(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	t.Run("OwnerAddsProduct", func(t *testing.T) {
		p := addProduct(t, env, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})
		if p.ID == "" {
			t.Error("product ID should not be empty")
		}
		if env.Contract.GetProductCount() != 1 {
			t.Errorf("expected 1 product, got %d", env.Contract.GetProductCount())
		}
	})

	t.Run("NonOwnerRejected", func(t *testing.T) {
		call, err := env.EscrowCall(AuthDeposit)
		if err != nil {
			t.Fatalf("escrow call: %v", err)
		}
		_, err = env.Contract.AddProduct(ctx, call, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if env.Contract.GetProductCount() != 1 {
			t.Error("failed call must not mutate the catalog")
		}
	})

	t.Run("MissingAuthDeposit", func(t *testing.T) {
		call := ledger.CallContext{
			Contract:    env.Contract.Account(),
			Predecessor: TestOwner,
			Signer:      TestOwner,
		}
		_, err := env.Contract.AddProduct(ctx, call, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})
		if !errors.Is(err, ErrNoAuthDeposit) {
			t.Errorf("expected ErrNoAuthDeposit, got %v", err)
		}
	})

	t.Run("ZeroPriceRejected", func(t *testing.T) {
		call, err := env.OwnerCall(AuthDeposit)
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		_, err = env.Contract.AddProduct(ctx, call, ProductInput{Name: "free", Price: 0, TotalSupply: 5})
		if err == nil {
			t.Error("expected error for zero price")
		}
	})
}

func TestStorePurchaseProduct(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	product := addProduct(t, env, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})

	purchase := func(t *testing.T, req PurchaseRequest) (PurchaseReceipt, error) {
		t.Helper()
		call, err := env.EscrowCall(AuthDeposit)
		if err != nil {
			t.Fatalf("escrow call: %v", err)
		}
		return env.Contract.StorePurchaseProduct(ctx, call, req)
	}

	t.Run("FloorDivisionQuantity", func(t *testing.T) {
		receipt, err := purchase(t, PurchaseRequest{
			ProductID:       product.ID,
			BuyerID:         TestBuyer,
			AttachedPayment: 25, // 2 * price + 5
		})
		if err != nil {
			t.Fatalf("purchase failed: %v", err)
		}
		if receipt.Quantity != 2 {
			t.Errorf("expected quantity 2, got %d", receipt.Quantity)
		}
		if receipt.Remainder != 5 {
			t.Errorf("expected remainder 5, got %d", receipt.Remainder)
		}
		if receipt.RemainingSupply != 3 {
			t.Errorf("expected remaining supply 3, got %d", receipt.RemainingSupply)
		}
	})

	t.Run("InsufficientStock", func(t *testing.T) {
		_, err := purchase(t, PurchaseRequest{
			ProductID:       product.ID,
			BuyerID:         TestBuyer,
			AttachedPayment: 40, // quantity 4 > supply 3
		})
		if !errors.Is(err, ErrInsufficientStock) {
			t.Errorf("expected ErrInsufficientStock, got %v", err)
		}
		got := env.Contract.GetStoreProducts()
		if got[0].TotalSupply != 3 {
			t.Errorf("failed purchase must leave supply unchanged, got %d", got[0].TotalSupply)
		}
	})

	t.Run("InsufficientPayment", func(t *testing.T) {
		_, err := purchase(t, PurchaseRequest{
			ProductID:       product.ID,
			BuyerID:         TestBuyer,
			AttachedPayment: 9,
		})
		if !errors.Is(err, ErrInsufficientPayment) {
			t.Errorf("expected ErrInsufficientPayment, got %v", err)
		}
	})

	t.Run("StrictQuantityMismatch", func(t *testing.T) {
		_, err := purchase(t, PurchaseRequest{
			ProductID:         product.ID,
			BuyerID:           TestBuyer,
			AttachedPayment:   20,
			RequestedQuantity: 3,
		})
		if !errors.Is(err, ErrQuantityMismatch) {
			t.Errorf("expected ErrQuantityMismatch, got %v", err)
		}
	})

	t.Run("UnknownProductFatal", func(t *testing.T) {
		_, err := purchase(t, PurchaseRequest{
			ProductID:       "missing",
			BuyerID:         TestBuyer,
			AttachedPayment: 10,
		})
		if !errors.Is(err, ErrProductNotFound) {
			t.Errorf("expected ErrProductNotFound, got %v", err)
		}
	})

	t.Run("NonEscrowRejected", func(t *testing.T) {
		call, err := env.OwnerCall(AuthDeposit)
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		_, err = env.Contract.StorePurchaseProduct(ctx, call, PurchaseRequest{
			ProductID:       product.ID,
			BuyerID:         TestBuyer,
			AttachedPayment: 10,
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if env.Contract.GetStoreProducts()[0].TotalSupply != 3 {
			t.Error("unauthorized purchase must not mutate supply")
		}
	})
}

func TestPurchaseEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	product := addProduct(t, env, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})

	call, err := env.EscrowCall(AuthDeposit)
	if err != nil {
		t.Fatalf("escrow call: %v", err)
	}
	receipt, err := env.Contract.StorePurchaseProduct(ctx, call, PurchaseRequest{
		ProductID: product.ID, BuyerID: TestBuyer, AttachedPayment: 25,
	})
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	if receipt.Quantity != 2 || receipt.RemainingSupply != 3 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	call, err = env.EscrowCall(AuthDeposit)
	if err != nil {
		t.Fatalf("escrow call: %v", err)
	}
	_, err = env.Contract.StorePurchaseProduct(ctx, call, PurchaseRequest{
		ProductID: product.ID, BuyerID: TestBuyer, AttachedPayment: 30,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock on second purchase, got %v", err)
	}
}

func TestPlusProduct(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	product := addProduct(t, env, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})

	restock := func(t *testing.T, quantity uint64) (Product, error) {
		t.Helper()
		call, err := env.EscrowCall(AuthDeposit)
		if err != nil {
			t.Fatalf("escrow call: %v", err)
		}
		return env.Contract.PlusProduct(ctx, call, product.ID, quantity)
	}

	t.Run("SequentialRestocksAccumulate", func(t *testing.T) {
		if _, err := restock(t, 3); err != nil {
			t.Fatalf("restock failed: %v", err)
		}
		updated, err := restock(t, 4)
		if err != nil {
			t.Fatalf("restock failed: %v", err)
		}
		if updated.TotalSupply != 12 { // 5 + 3 + 4
			t.Errorf("expected supply 12, got %d", updated.TotalSupply)
		}
	})

	t.Run("OverflowRejected", func(t *testing.T) {
		_, err := restock(t, ^uint64(0))
		if !errors.Is(err, ErrArithmeticOverflow) {
			t.Errorf("expected ErrArithmeticOverflow, got %v", err)
		}
	})

	t.Run("OwnerRejected", func(t *testing.T) {
		call, err := env.OwnerCall(AuthDeposit)
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		_, err = env.Contract.PlusProduct(ctx, call, product.ID, 1)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestDeployToken(t *testing.T) {
	ctx := context.Background()

	t.Run("SuccessfulDeployment", func(t *testing.T) {
		env := newEnv(t)
		deployToken(t, env)

		tokenAccount, _ := ledger.SubAccount(TokenAccountPrefix, env.Contract.Account())
		if !env.Runtime.AccountExists(tokenAccount) {
			t.Error("token account should exist after deployment")
		}
		if !env.Runtime.HasCode(tokenAccount) {
			t.Error("token account should carry the companion code")
		}
		if got := env.Runtime.Balance(tokenAccount); got != env.Contract.GetTokenCost() {
			t.Errorf("token account should hold the funding, got %d", got)
		}
	})

	t.Run("SecondDeploymentRejected", func(t *testing.T) {
		env := newEnv(t)
		deployToken(t, env)

		call, err := env.OwnerCall(env.Contract.GetTokenCost())
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		err = env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"})
		if !errors.Is(err, ErrTokenAlreadyDeployed) {
			t.Errorf("expected ErrTokenAlreadyDeployed, got %v", err)
		}
	})

	t.Run("DeployWindowClosed", func(t *testing.T) {
		env := newEnv(t)
		call, err := env.OwnerCall(env.Contract.GetTokenCost())
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		if err := env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"}); err != nil {
			t.Fatalf("DeployToken failed: %v", err)
		}

		// Second call lands before the continuation fires.
		call, err = env.OwnerCall(env.Contract.GetTokenCost())
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		err = env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"})
		if !errors.Is(err, ErrTokenDeployInProgress) {
			t.Errorf("expected ErrTokenDeployInProgress, got %v", err)
		}
	})

	t.Run("FailedDeploymentRefunds", func(t *testing.T) {
		env := newEnv(t)

		// The subordinate account already exists, so create_account fails.
		tokenAccount, _ := ledger.SubAccount(TokenAccountPrefix, env.Contract.Account())
		env.Runtime.GenesisAccount(tokenAccount, 0)

		ownerBefore := env.Runtime.Balance(TestOwner)
		call, err := env.OwnerCall(env.Contract.GetTokenCost())
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		if err := env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"}); err != nil {
			t.Fatalf("DeployToken failed: %v", err)
		}
		if err := env.Runtime.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		if env.Contract.HasToken() {
			t.Error("token must not be marked deployed after a failure")
		}
		if got := env.Contract.TokenDeployStatus(); got != DeployStatusNone {
			t.Errorf("expected status %s, got %s", DeployStatusNone, got)
		}
		if got := env.Runtime.Balance(TestOwner); got != ownerBefore {
			t.Errorf("owner balance delta should be zero after refund: before %d, after %d", ownerBefore, got)
		}

		// The rollback permits a retry once the collision is gone.
		call, err = env.OwnerCall(env.Contract.GetTokenCost())
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		if err := env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"}); err != nil {
			t.Fatalf("retry should be issuable after rollback, got %v", err)
		}
	})

	t.Run("FailedInitializerRefunds", func(t *testing.T) {
		env := newEnv(t)
		env.Runtime.RegisterCode(TestTokenCode,
			FailingTokenHandlers(tokenInitMethod, errors.New("init rejected")))

		ownerBefore := env.Runtime.Balance(TestOwner)
		call, err := env.OwnerCall(env.Contract.GetTokenCost())
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		if err := env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"}); err != nil {
			t.Fatalf("DeployToken failed: %v", err)
		}
		if err := env.Runtime.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		if env.Contract.HasToken() {
			t.Error("token must not be marked deployed after initializer failure")
		}
		if got := env.Runtime.Balance(TestOwner); got != ownerBefore {
			t.Errorf("owner balance delta should be zero after refund: before %d, after %d", ownerBefore, got)
		}
	})

	t.Run("InsufficientDeposit", func(t *testing.T) {
		env := newEnv(t)
		call, err := env.OwnerCall(env.Contract.GetTokenCost() - 1)
		if err != nil {
			t.Fatalf("owner call: %v", err)
		}
		err = env.Contract.DeployToken(ctx, call, TokenDeployRequest{TotalSupply: "1", Name: "x", Symbol: "X"})
		if !errors.Is(err, ErrInsufficientDeposit) {
			t.Errorf("expected ErrInsufficientDeposit, got %v", err)
		}
	})
}

func TestRewardWithToken(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, rewardAmount uint64) (*TestEnv, Product) {
		t.Helper()
		env := newEnv(t)
		deployToken(t, env)
		product := addProduct(t, env, ProductInput{
			Name: "widget", Price: 10, TotalSupply: 5,
			IsReward: true, RewardAmount: rewardAmount,
		})
		return env, product
	}

	reward := func(t *testing.T, env *TestEnv, req RewardRequest) error {
		t.Helper()
		call, err := env.EscrowCall(AuthDeposit)
		if err != nil {
			t.Fatalf("escrow call: %v", err)
		}
		return env.Contract.RewardWithToken(ctx, call, req)
	}

	t.Run("DisbursementIssued", func(t *testing.T) {
		env, product := setup(t, 5)
		if err := reward(t, env, RewardRequest{ProductID: product.ID, Quantity: 3, BuyerID: TestBuyer}); err != nil {
			t.Fatalf("RewardWithToken failed: %v", err)
		}
		if env.Runtime.QueueDepth() != 1 {
			t.Errorf("expected one queued batch, got %d", env.Runtime.QueueDepth())
		}
		if err := env.Runtime.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	})

	t.Run("OverflowRejected", func(t *testing.T) {
		env, product := setup(t, ^uint64(0))
		err := reward(t, env, RewardRequest{ProductID: product.ID, Quantity: 2, BuyerID: TestBuyer})
		if !errors.Is(err, ErrArithmeticOverflow) {
			t.Errorf("expected ErrArithmeticOverflow, got %v", err)
		}
	})

	t.Run("UnknownProductFatal", func(t *testing.T) {
		env, _ := setup(t, 5)
		err := reward(t, env, RewardRequest{ProductID: "missing", Quantity: 1, BuyerID: TestBuyer})
		if !errors.Is(err, ErrProductNotFound) {
			t.Errorf("expected ErrProductNotFound, got %v", err)
		}
		if env.Runtime.QueueDepth() != 0 {
			t.Error("fatal lookup must not issue remote actions")
		}
	})

	t.Run("FailedTransferNoCompensation", func(t *testing.T) {
		env, product := setup(t, 5)
		env.Runtime.RegisterCode(TestTokenCode,
			FailingTokenHandlers(tokenTransferMethod, errors.New("transfer rejected")))

		escrowBefore := env.Runtime.Balance(TestEscrow)
		if err := reward(t, env, RewardRequest{ProductID: product.ID, Quantity: 3, BuyerID: TestBuyer}); err != nil {
			t.Fatalf("RewardWithToken failed: %v", err)
		}
		if err := env.Runtime.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		if got := env.Runtime.Balance(TestEscrow); got != escrowBefore {
			t.Errorf("no compensation expected on reward failure: before %d, after %d", escrowBefore, got)
		}
	})

	t.Run("NotDeployedRejected", func(t *testing.T) {
		env := newEnv(t)
		product := addProduct(t, env, ProductInput{
			Name: "widget", Price: 10, TotalSupply: 5, IsReward: true, RewardAmount: 5,
		})
		err := reward(t, env, RewardRequest{ProductID: product.ID, Quantity: 1, BuyerID: TestBuyer})
		if !errors.Is(err, ErrTokenNotDeployed) {
			t.Errorf("expected ErrTokenNotDeployed, got %v", err)
		}
	})

	t.Run("RewardNotEnabled", func(t *testing.T) {
		env := newEnv(t)
		deployToken(t, env)
		product := addProduct(t, env, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})
		err := reward(t, env, RewardRequest{ProductID: product.ID, Quantity: 1, BuyerID: TestBuyer})
		if !errors.Is(err, ErrRewardNotEnabled) {
			t.Errorf("expected ErrRewardNotEnabled, got %v", err)
		}
	})
}

func TestCallbackGuards(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	direct := ledger.CallContext{
		Contract:    env.Contract.Account(),
		Predecessor: TestOwner,
		Signer:      TestOwner,
	}
	if err := env.Contract.DeployTokenCallback(ctx, direct, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("direct deploy callback should be rejected, got %v", err)
	}
	if err := env.Contract.RewardWithTokenCallback(ctx, direct, nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("direct reward callback should be rejected, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	product := addProduct(t, env, ProductInput{Name: "widget", Price: 10, TotalSupply: 5})

	store := NewMemoryStateStore()
	if err := store.Save(ctx, env.Contract.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fresh, err := NewTestEnv(nil)
	if err != nil {
		t.Fatalf("NewTestEnv failed: %v", err)
	}
	state, found, err := store.Load(ctx, fresh.Contract.Account())
	if err != nil || !found {
		t.Fatalf("Load failed: found=%v err=%v", found, err)
	}
	if err := fresh.Contract.Restore(state); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if fresh.Contract.GetProductCount() != 1 {
		t.Fatalf("expected 1 product after restore, got %d", fresh.Contract.GetProductCount())
	}
	restored := fresh.Contract.GetStoreProducts()
	if restored[0].ID != product.ID || restored[0].TotalSupply != 5 {
		t.Errorf("restored product mismatch: %+v", restored[0])
	}
}
