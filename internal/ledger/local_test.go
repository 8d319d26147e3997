package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestSubAccount(t *testing.T) {
	sub, err := SubAccount("ft", "store.test")
	if err != nil {
		t.Fatalf("SubAccount failed: %v", err)
	}
	if sub != "ft.store.test" {
		t.Errorf("expected ft.store.test, got %s", sub)
	}

	if _, err := SubAccount("FT", "store.test"); !errors.Is(err, ErrInvalidAccountID) {
		t.Errorf("uppercase prefix should be rejected, got %v", err)
	}
}

func TestLocalRuntime_BatchExecution(t *testing.T) {
	ctx := context.Background()
	rt := NewLocalRuntime(nil)
	rt.GenesisAccount("alice.test", 100)

	t.Run("CompositeBatch", func(t *testing.T) {
		code := []byte("code-v1")
		called := false
		rt.RegisterCode(code, map[string]Handler{
			"init": func(_ context.Context, call CallContext, _ []byte) error {
				called = true
				if call.Predecessor != "alice.test" {
					t.Errorf("expected predecessor alice.test, got %s", call.Predecessor)
				}
				return nil
			},
		})

		batch := NewBatch("sub.alice.test").
			CreateAccount().
			AddFullAccessKey("ed25519:abc").
			Transfer(40).
			DeployCode(code).
			FunctionCall("init", nil, 0, 1)
		if err := rt.IssueBatch(ctx, "alice.test", batch); err != nil {
			t.Fatalf("IssueBatch failed: %v", err)
		}
		if err := rt.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		if !called {
			t.Error("function call handler should run")
		}
		if got := rt.Balance("alice.test"); got != 60 {
			t.Errorf("expected sender balance 60, got %d", got)
		}
		if got := rt.Balance("sub.alice.test"); got != 40 {
			t.Errorf("expected receiver balance 40, got %d", got)
		}
		if !rt.HasCode("sub.alice.test") {
			t.Error("code should be installed")
		}
	})

	t.Run("FailureRollsBackAndSignalsContinuation", func(t *testing.T) {
		var outcome *bool
		rt.RegisterHandler("alice.test", "done", func(_ context.Context, call CallContext, _ []byte) error {
			outcome = call.PromiseSuccess
			return nil
		})

		// sub.alice.test already exists, so create_account fails after the
		// transfer would have moved funds.
		batch := NewBatch("sub.alice.test").
			Transfer(10).
			CreateAccount().
			Then("alice.test", "done", nil)
		if err := rt.IssueBatch(ctx, "alice.test", batch); err != nil {
			t.Fatalf("IssueBatch failed: %v", err)
		}
		if err := rt.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		if outcome == nil {
			t.Fatal("continuation should have been invoked")
		}
		if *outcome {
			t.Error("continuation should report failure")
		}
		if got := rt.Balance("alice.test"); got != 60 {
			t.Errorf("failed batch must roll back its transfer, balance %d", got)
		}
	})

	t.Run("HandlerErrorRollsBackDeposit", func(t *testing.T) {
		code := []byte("code-v2")
		rt.RegisterCode(code, map[string]Handler{
			"boom": func(context.Context, CallContext, []byte) error {
				return errors.New("rejected")
			},
		})
		batch := NewBatch("dep.alice.test").
			CreateAccount().
			DeployCode(code).
			FunctionCall("boom", nil, 15, 1)
		if err := rt.IssueBatch(ctx, "alice.test", batch); err != nil {
			t.Fatalf("IssueBatch failed: %v", err)
		}
		if err := rt.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		if rt.AccountExists("dep.alice.test") {
			t.Error("account creation must be rolled back")
		}
		if got := rt.Balance("alice.test"); got != 60 {
			t.Errorf("deposit must be rolled back, balance %d", got)
		}
	})

	t.Run("InsufficientBalanceFails", func(t *testing.T) {
		var succeeded *bool
		rt.RegisterHandler("alice.test", "poor", func(_ context.Context, call CallContext, _ []byte) error {
			succeeded = call.PromiseSuccess
			return nil
		})
		batch := NewBatch("sub.alice.test").
			Transfer(10_000).
			Then("alice.test", "poor", nil)
		if err := rt.IssueBatch(ctx, "alice.test", batch); err != nil {
			t.Fatalf("IssueBatch failed: %v", err)
		}
		if err := rt.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		if succeeded == nil || *succeeded {
			t.Error("continuation should report failure for an overdraft")
		}
	})

	t.Run("UnknownSenderRejected", func(t *testing.T) {
		err := rt.IssueBatch(ctx, "ghost.test", NewBatch("sub.alice.test").Transfer(1))
		if !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestLocalRuntime_FIFO(t *testing.T) {
	ctx := context.Background()
	rt := NewLocalRuntime(nil)
	rt.GenesisAccount("alice.test", 100)
	rt.GenesisAccount("svc.test", 0)

	var order []string
	for _, name := range []string{"first", "second"} {
		name := name
		rt.RegisterHandler("svc.test", name, func(context.Context, CallContext, []byte) error {
			order = append(order, name)
			return nil
		})
	}

	if err := rt.IssueBatch(ctx, "alice.test", NewBatch("svc.test").FunctionCall("first", nil, 0, 1)); err != nil {
		t.Fatalf("IssueBatch failed: %v", err)
	}
	if err := rt.IssueBatch(ctx, "alice.test", NewBatch("svc.test").FunctionCall("second", nil, 0, 1)); err != nil {
		t.Fatalf("IssueBatch failed: %v", err)
	}
	if depth := rt.QueueDepth(); depth != 2 {
		t.Fatalf("expected queue depth 2, got %d", depth)
	}
	if err := rt.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("batches must execute in FIFO order, got %v", order)
	}
}

func TestSettleAttachedDeposit(t *testing.T) {
	rt := NewLocalRuntime(nil)
	rt.GenesisAccount("alice.test", 50)
	rt.GenesisAccount("store.test", 0)

	if err := rt.SettleAttachedDeposit("alice.test", "store.test", 20); err != nil {
		t.Fatalf("SettleAttachedDeposit failed: %v", err)
	}
	if got := rt.Balance("store.test"); got != 20 {
		t.Errorf("expected store balance 20, got %d", got)
	}
	if err := rt.SettleAttachedDeposit("alice.test", "store.test", 1_000); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}
