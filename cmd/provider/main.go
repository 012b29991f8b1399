// Command provider runs a Hypergrid provider process: the Provider
// Verifier (C9) revalidating each settled payment on-chain, and the
// Provider Executor (C10) rendering/forwarding the upstream call, fronted
// by the gin control surface in provider/httpapi. Grounded on
// services/facilitator/cmd/facilitator/main.go's construction/shutdown
// shape.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/chain"
	"github.com/hypergrid-io/hypergrid/internal/config"
	"github.com/hypergrid-io/hypergrid/provider"
	"github.com/hypergrid-io/hypergrid/provider/executor"
	"github.com/hypergrid-io/hypergrid/provider/httpapi"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, err := provider.LoadEndpointConfigs(cfg.ProviderConfigPath)
	if err != nil {
		log.Fatalf("load provider config: %v", err)
	}
	providers, descriptors, err := provider.BuildProviderSet(entries)
	if err != nil {
		log.Fatalf("build provider set: %v", err)
	}

	chainSrc, err := chain.DialRPCLogSource(ctx, cfg.BaseRPC)
	if err != nil {
		log.Fatalf("dial chain rpc: %v", err)
	}
	defer chainSrc.Close()

	registryAddr := common.HexToAddress(cfg.RegistryAddress)
	notes := chain.NewNoteReader(chainSrc, registryAddr)

	spentStore, err := provider.OpenSpentTxStore(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("open spent-tx store: %v", err)
	}
	defer spentStore.Close()

	usdcAddr := common.HexToAddress(cfg.USDCAddress)
	verifier := provider.NewVerifier(usdcAddr, chainSrc, notes, spentStore)

	exec := executor.NewExecutor(cfg.ProviderCallTimeout)

	server := httpapi.New(cfg, verifier, providers, descriptors, exec)

	log.Printf("provider listening on :%d", cfg.Port)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("provider server error: %v", err)
	}
}
