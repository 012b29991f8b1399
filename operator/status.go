package operator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/delegation"
	"github.com/hypergrid-io/hypergrid/wallet"
)

// BalanceChecker reads a plain ETH balance, used for the funding check
// below (SPEC_FULL.md "Wallet funding check" supplement).
type BalanceChecker interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// StatusSnapshot is the derived read model backing GET /api/setup-status
// and GET /api/onboarding-status (SPEC_FULL.md supplement), computed from
// already-held component state rather than new persistence.
type StatusSnapshot struct {
	HasSelectedWallet    bool   `json:"has_selected_wallet"`
	SelectedWalletID     string `json:"selected_wallet_id,omitempty"`
	WalletFunded         bool   `json:"wallet_funded"`
	OperatorTBAResolved  bool   `json:"operator_tba_resolved"`
	OperatorTBA          string `json:"operator_tba,omitempty"`
	DelegationVerified   bool   `json:"delegation_verified"`
	DelegationReason     string `json:"delegation_reason,omitempty"`
}

// StatusChecker computes StatusSnapshot on demand.
type StatusChecker struct {
	wallets    *wallet.Manager
	delegation *delegation.Verifier
	identity   IdentitySource
	balances   BalanceChecker // nil disables the funding check
}

func NewStatusChecker(wallets *wallet.Manager, delegationVerifier *delegation.Verifier, identity IdentitySource, balances BalanceChecker) *StatusChecker {
	return &StatusChecker{wallets: wallets, delegation: delegationVerifier, identity: identity, balances: balances}
}

// Snapshot computes the current status, tolerating partial configuration —
// onboarding is, by definition, a sequence of not-yet-true states.
func (c *StatusChecker) Snapshot(ctx context.Context) StatusSnapshot {
	var snap StatusSnapshot

	_, selectedID := c.wallets.ListSummaries()
	if selectedID != "" {
		snap.HasSelectedWallet = true
		snap.SelectedWalletID = selectedID
	}

	identity, err := c.identity.Current()
	if err != nil {
		return snap
	}
	snap.OperatorTBAResolved = identity.TBA != (common.Address{})
	snap.OperatorTBA = identity.TBA.Hex()

	if snap.HasSelectedWallet && c.balances != nil {
		bal, err := c.balances.BalanceAt(ctx, common.HexToAddress(selectedID), nil)
		snap.WalletFunded = err == nil && bal != nil && bal.Sign() > 0
	}

	if snap.HasSelectedWallet && snap.OperatorTBAResolved {
		status := c.delegation.Verify(ctx, identity.EntryName, common.HexToAddress(selectedID))
		snap.DelegationVerified = status.OK()
		snap.DelegationReason = status.Reason
	}

	return snap
}
