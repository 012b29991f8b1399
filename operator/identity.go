package operator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/wallet"
)

// KVIdentitySource resolves the operator Identity from the KV-persisted
// linkage (operator_entry_name, operator_tba_address, gasless_enabled) and
// the Wallet Custody (C3) selection, fresh on every call.
type KVIdentitySource struct {
	kv      *kvstore.Store
	wallets *wallet.Manager
	chainID int64
}

func NewKVIdentitySource(kv *kvstore.Store, wallets *wallet.Manager, chainID int64) *KVIdentitySource {
	return &KVIdentitySource{kv: kv, wallets: wallets, chainID: chainID}
}

func (s *KVIdentitySource) Current() (Identity, error) {
	var entryName string
	if ok, err := s.kv.GetJSON(kvstore.KeyOperatorEntryName, &entryName); err != nil {
		return Identity{}, fmt.Errorf("load operator entry name: %w", err)
	} else if !ok {
		return Identity{}, fmt.Errorf("operator entry name not configured")
	}

	var tbaHex string
	if ok, err := s.kv.GetJSON(kvstore.KeyOperatorTBAAddress, &tbaHex); err != nil {
		return Identity{}, fmt.Errorf("load operator tba address: %w", err)
	} else if !ok {
		return Identity{}, fmt.Errorf("operator tba not resolved")
	}

	var gasless bool
	if ok, err := s.kv.GetJSON(kvstore.KeyGaslessEnabled, &gasless); err != nil {
		return Identity{}, fmt.Errorf("load gasless flag: %w", err)
	} else if !ok {
		gasless = false
	}

	_, selectedID := s.wallets.ListSummaries()
	if selectedID == "" {
		return Identity{}, wallet.ErrNoSelection
	}

	return Identity{
		TBA:         common.HexToAddress(tbaHex),
		EntryName:   entryName,
		HotWalletID: selectedID,
		ChainID:     s.chainID,
		Gasless:     gasless,
	}, nil
}
