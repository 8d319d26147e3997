// Command storefrontd hosts the storefront contract on a local ledger
// runtime and exposes its entry points over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/pipar-network/storefront/internal/api"
	"github.com/pipar-network/storefront/internal/config"
	"github.com/pipar-network/storefront/internal/ledger"
	"github.com/pipar-network/storefront/internal/metrics"
	"github.com/pipar-network/storefront/pkg/logger"
	"github.com/pipar-network/storefront/services/storefront"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("storefrontd").WithError(err).Fatal("load configuration")
	}
	log := logger.New("storefrontd", cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("storefrontd exited")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tokenCode []byte
	if cfg.TokenCodePath != "" {
		code, err := os.ReadFile(cfg.TokenCodePath)
		if err != nil {
			return err
		}
		tokenCode = code
	}

	runtime := ledger.NewLocalRuntime(log.Named("ledger"))
	storeAccount := ledger.AccountID(cfg.StoreAccount)
	runtime.GenesisAccount(storeAccount, 100*storefront.OneUnit)
	runtime.GenesisAccount(ledger.AccountID(cfg.OwnerID), 1000*storefront.OneUnit)
	runtime.GenesisAccount(ledger.AccountID(cfg.EscrowID), 1000*storefront.OneUnit)

	contract, err := storefront.New(storefront.Config{
		Account:   storeAccount,
		OwnerID:   ledger.AccountID(cfg.OwnerID),
		EscrowID:  ledger.AccountID(cfg.EscrowID),
		Platform:  runtime,
		TokenCode: tokenCode,
		Logger:    log.Named("contract"),
	})
	if err != nil {
		return err
	}
	for method, handler := range contract.Continuations() {
		runtime.RegisterHandler(storeAccount, method, handler)
	}

	stateStore, closeStore, err := openStateStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if state, found, err := stateStore.Load(ctx, storeAccount); err != nil {
		return err
	} else if found {
		if err := contract.Restore(state); err != nil {
			return err
		}
		log.WithField("products", len(state.Products)).Info("state restored from snapshot")
	}

	// Periodic snapshot persistence.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SnapshotSchedule, func() {
		if err := stateStore.Save(context.Background(), contract.Snapshot()); err != nil {
			log.WithError(err).Error("snapshot save failed")
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Promise queue drainer: remote actions and continuations execute here,
	// independently of the entry-point calls that issued them.
	go func() {
		ticker := time.NewTicker(cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := runtime.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("promise queue flush failed")
				}
				metrics.SetPromiseQueueDepth(runtime.QueueDepth())
			}
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(contract, runtime, log.Named("api")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("storefront host listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Final snapshot on the way out.
	if err := stateStore.Save(context.Background(), contract.Snapshot()); err != nil {
		log.WithError(err).Error("final snapshot save failed")
	}
	log.Info("storefront host stopped")
	return nil
}

// openStateStore picks PostgreSQL persistence when configured, otherwise an
// in-memory store.
func openStateStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storefront.StateStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("no database configured, snapshots are in-memory only")
		return storefront.NewMemoryStateStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := storefront.NewPostgresStateStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}
