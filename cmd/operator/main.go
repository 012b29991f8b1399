// Command operator runs the Hypergrid operator service: the Chain Indexer,
// Registry Store, Wallet Custody, Delegation Verifier, Client Authorization,
// Payment Engine, USDC Ledger and Call Dispatcher, fronted by the gin HTTP
// surface in operator/httpapi. Grounded on
// services/facilitator/cmd/facilitator/main.go's construction/shutdown shape.
package main

import (
	"context"
	"log"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hypergrid-io/hypergrid/auth"
	"github.com/hypergrid-io/hypergrid/chain"
	"github.com/hypergrid-io/hypergrid/delegation"
	"github.com/hypergrid-io/hypergrid/internal/config"
	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/ledger"
	"github.com/hypergrid-io/hypergrid/operator"
	"github.com/hypergrid-io/hypergrid/operator/httpapi"
	"github.com/hypergrid-io/hypergrid/payment"
	"github.com/hypergrid-io/hypergrid/payment/erc4337"
	"github.com/hypergrid-io/hypergrid/registry"
	"github.com/hypergrid-io/hypergrid/wallet"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.Open(cfg.KVPath, "operator")
	if err != nil {
		log.Fatalf("open kv store: %v", err)
	}
	defer kv.Close()

	reg, err := registry.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("open registry store: %v", err)
	}
	defer reg.Close()

	paymasterAddr := common.HexToAddress(cfg.PaymasterAddress)
	ledgerStore, err := ledger.Open(ctx, cfg.PostgresURL, paymasterAddr)
	if err != nil {
		log.Fatalf("open ledger store: %v", err)
	}
	defer ledgerStore.Close()

	chainSrc, err := chain.DialRPCLogSource(ctx, cfg.BaseRPC)
	if err != nil {
		log.Fatalf("dial chain rpc: %v", err)
	}
	defer chainSrc.Close()

	registryAddr := common.HexToAddress(cfg.RegistryAddress)
	notes := chain.NewNoteReader(chainSrc, registryAddr)
	delegationVerifier := delegation.NewVerifier(notes)

	walletManager, err := wallet.NewManager(kv)
	if err != nil {
		log.Fatalf("open wallet manager: %v", err)
	}

	authRegistry, err := auth.NewRegistry(kv, ledgerStore)
	if err != nil {
		log.Fatalf("open authorized-client registry: %v", err)
	}

	providerClient := operator.NewHTTPProviderClient(cfg.HealthPingTimeout)

	usdcAddr := common.HexToAddress(cfg.USDCAddress)
	paymentOpts := []payment.Option{}
	if cfg.GaslessEnabled {
		if cfg.BundlerURL == "" {
			log.Fatalf("GASLESS_ENABLED is set but BUNDLER_URL is empty")
		}
		bundler, err := erc4337.NewHTTPBundlerClient(cfg.BundlerURL)
		if err != nil {
			log.Fatalf("dial bundler: %v", err)
		}
		paymentOpts = append(paymentOpts, payment.WithGasless(
			bundler, paymasterAddr,
			new(big.Int).SetUint64(cfg.VerificationGas),
			new(big.Int).SetUint64(cfg.PostOpGas),
		))
	}
	ethClient, err := ethclient.DialContext(ctx, cfg.BaseRPC)
	if err != nil {
		log.Fatalf("dial chain rpc for payments: %v", err)
	}
	defer ethClient.Close()
	paymentEngine := payment.NewEngine(ethClient, usdcAddr, authRegistry, walletManager, delegationVerifier, providerClient, paymentOpts...)

	history, err := operator.NewHistory(kv)
	if err != nil {
		log.Fatalf("open call history: %v", err)
	}

	identitySource := operator.NewKVIdentitySource(kv, walletManager, cfg.ChainID)
	statusChecker := operator.NewStatusChecker(walletManager, delegationVerifier, identitySource, chainSrc)

	// broadcast is wired after the HTTP server exists: the WebSocket hub
	// lives inside httpapi.Server, which itself takes the dispatcher as a
	// constructor argument.
	dispatcher := operator.NewDispatcher(reg, authRegistry, paymentEngine, ledgerStore, chainSrc, providerClient, identitySource, history, nil)

	server := httpapi.New(cfg, dispatcher, authRegistry, reg, walletManager, history, statusChecker, identitySource, delegationVerifier)
	dispatcher.SetBroadcaster(server.Broadcaster())

	indexer := chain.NewIndexer(chain.IndexerOpts{
		RegistryAddr: registryAddr,
		RootLabel:    cfg.RootLabel,
		Source:       chainSrc,
		Cache:        chain.NewKVBootstrapCache(kv),
		Registry:     reg,
		KV:           kv,
	})
	go func() {
		if err := indexer.Start(ctx, 12*time.Second); err != nil && ctx.Err() == nil {
			log.Printf("chain indexer stopped: %v", err)
		}
	}()

	log.Printf("operator listening on :%d", cfg.Port)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("operator server error: %v", err)
	}
}
