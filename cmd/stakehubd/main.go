package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"stakehub/config"
	"stakehub/core/state"
	"stakehub/native/liquidity"
	"stakehub/native/staking"
	"stakehub/native/token"
	"stakehub/observability/logging"
	"stakehub/rpc"
	"stakehub/storage"
)

var genesisMarkerKey = []byte("genesis/applied")

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("stakehubd", cfg.Env)
	logger.Info("starting daemon",
		"network", cfg.NetworkName,
		"chain_id", cfg.ChainID,
		"rpc", cfg.RPCAddress,
		"auth_token", logging.MaskValue(os.Getenv("STAKEHUB_RPC_TOKEN")),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	bank := token.NewBank(manager)
	bank.SetChainID(cfg.ChainID)

	if err := seedGenesis(manager, bank, cfg, logger); err != nil {
		return fmt.Errorf("seed genesis balances: %w", err)
	}

	book := staking.NewBook(manager)
	registry := staking.NewRegistry(book, bank, cfg.RewardTokenAddress())
	adapter := liquidity.NewManager(bank, pairTable(cfg))
	entry := staking.NewEntryPoint(registry, adapter, bank)

	server := rpc.NewServer(registry, entry, bank, os.Getenv("STAKEHUB_RPC_TOKEN"))

	// Propagate incoming trace context even without a configured exporter so
	// spans line up when the daemon runs behind an instrumented gateway.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/rpc", server)

	srv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           otelhttp.NewHandler(router, "stakehubd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "address", cfg.RPCAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown rpc server: %w", err)
	}
	return <-errCh
}

// seedGenesis applies the configured balance allocations exactly once. The
// marker persists alongside the balances, so a restart never re-mints.
func seedGenesis(manager *state.Manager, bank *token.Bank, cfg *config.Config, logger *slog.Logger) error {
	var applied bool
	found, err := manager.KVGet(genesisMarkerKey, &applied)
	if err != nil {
		return err
	}
	if found && applied {
		return nil
	}
	for _, alloc := range cfg.Genesis {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok {
			return fmt.Errorf("genesis allocation for %s has a non-decimal amount", alloc.Address)
		}
		tokenAddr := common.HexToAddress(alloc.Token)
		holder := common.HexToAddress(alloc.Address)
		if err := bank.Mint(tokenAddr, holder, amount); err != nil {
			return err
		}
		logger.Info("seeded genesis balance", "token", tokenAddr.Hex(), "account", holder.Hex(), "amount", amount.String())
	}
	return manager.KVPut(genesisMarkerKey, true)
}

func pairTable(cfg *config.Config) liquidity.StaticPairs {
	pairs := make(liquidity.StaticPairs, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		base := common.HexToAddress(p.Base)
		pairs[base] = liquidity.Pair{
			Base:         base,
			DepositToken: common.HexToAddress(p.Deposit),
			RateNum:      new(big.Int).SetUint64(p.RateNum),
			RateDen:      new(big.Int).SetUint64(p.RateDen),
		}
	}
	return pairs
}
