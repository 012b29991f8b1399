// Package provider is the Provider Verifier (C9): independently revalidates
// each payment against the chain before the Provider Executor (C10) makes
// its upstream HTTP call. Grounded on
// original_source/provider/provider/src/util.rs's validate_transaction_payment
// (second-qualifying-Transfer rule, spent-tx insert-before-upstream-call
// ordering).
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hypergrid-io/hypergrid/chain"
)

// transferEventSig is the Transfer(address,address,uint256) topic0.
var transferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

var (
	ErrUnknownProvider       = errors.New("provider not registered")
	ErrMissingTxHash         = errors.New("no payment transaction hash provided")
	ErrTxAlreadySpent        = errors.New("transaction hash already used")
	ErrReceiptUnavailable    = errors.New("transaction receipt unavailable")
	ErrNoQualifyingTransfer  = errors.New("no qualifying second USDC transfer found")
	ErrAmountBelowPrice      = errors.New("transferred amount below registered price")
	ErrSenderNamehashMismatch = errors.New("sender tba namehash does not match requester identity")
)

// ReceiptSource is the narrow chain seam this verifier needs;
// chain.RPCLogSource satisfies it.
type ReceiptSource interface {
	FetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// NamehashResolver reverse-resolves a TBA address to its registry namehash,
// the step that binds the on-chain payer to a requesting node identity.
type NamehashResolver interface {
	NamehashFromTBA(ctx context.Context, tba common.Address) (common.Hash, error)
}

// RegisteredProvider is this provider process's own local view of a
// provider it serves (distinct from C2's operator-side registry row).
type RegisteredProvider struct {
	Name          string
	WalletAddress common.Address
	PriceUnits    *big.Int
}

// ProviderSet is this provider process's local registered-provider set
// (step 1 of §4.9: "provider-name existence check against its own
// registered set").
type ProviderSet struct {
	byName map[string]RegisteredProvider
}

func NewProviderSet(entries ...RegisteredProvider) *ProviderSet {
	s := &ProviderSet{byName: map[string]RegisteredProvider{}}
	for _, e := range entries {
		s.byName[e.Name] = e
	}
	return s
}

func (s *ProviderSet) Lookup(name string) (RegisteredProvider, error) {
	p, ok := s.byName[name]
	if !ok {
		return RegisteredProvider{}, ErrUnknownProvider
	}
	return p, nil
}

// SpentTxStore is the persistent spent_tx_hashes set (§3 "Spent-tx set").
type SpentTxStore interface {
	IsSpent(ctx context.Context, txHash string) (bool, error)
	MarkSpent(ctx context.Context, txHash string) error
}

// Verifier owns the chain-side payment revalidation.
type Verifier struct {
	usdcAddr common.Address
	receipts ReceiptSource
	resolver NamehashResolver
	spent    SpentTxStore
}

func NewVerifier(usdcAddr common.Address, receipts ReceiptSource, resolver NamehashResolver, spent SpentTxStore) *Verifier {
	return &Verifier{usdcAddr: usdcAddr, receipts: receipts, resolver: resolver, spent: spent}
}

// VerifyPayment runs the six-step algorithm of spec §4.9. On success it has
// already inserted txHash into spent_tx_hashes — per spec's ordering
// invariant, this MUST happen strictly before the caller invokes the
// upstream HTTP call (a crash between insert and call is the accepted
// conservative failure mode, spec §7).
//
// The second-qualifying-Transfer rule is brittle by the spec's own
// admission (an intervening unrelated Transfer from the same tx would
// shift which log is "second"); it is implemented exactly as specified
// rather than redesigned, since the spec body — not just its open-question
// note — is explicit about matching the second Transfer.
func (v *Verifier) VerifyPayment(ctx context.Context, prov RegisteredProvider, txHash, sourceNodeID string) error {
	if txHash == "" {
		return ErrMissingTxHash
	}

	spent, err := v.spent.IsSpent(ctx, txHash)
	if err != nil {
		return fmt.Errorf("check spent tx hashes: %w", err)
	}
	if spent {
		return ErrTxAlreadySpent
	}

	receipt, err := v.receipts.FetchReceipt(ctx, common.HexToHash(txHash))
	if err != nil || receipt == nil {
		return fmt.Errorf("%w: %v", ErrReceiptUnavailable, err)
	}

	sender, ok := findQualifyingTransfer(receipt, v.usdcAddr, prov.WalletAddress, prov.PriceUnits)
	if !ok {
		return ErrNoQualifyingTransfer
	}

	gotHash, err := v.resolver.NamehashFromTBA(ctx, sender)
	if err != nil {
		return fmt.Errorf("resolve namehash for sender tba %s: %w", sender.Hex(), err)
	}
	wantHash := chain.Namehash("grid-wallet." + sourceNodeID)
	if gotHash != wantHash {
		return ErrSenderNamehashMismatch
	}

	if err := v.spent.MarkSpent(ctx, txHash); err != nil {
		return fmt.Errorf("mark tx spent: %w", err)
	}
	return nil
}

// findQualifyingTransfer takes the *second* USDC Transfer log in the receipt
// and returns its sender address if its recipient is the provider's wallet
// and its amount is >= priceUnits; other Transfer logs are not considered.
func findQualifyingTransfer(receipt *types.Receipt, usdcAddr, providerWallet common.Address, priceUnits *big.Int) (common.Address, bool) {
	transferCount := 0
	for _, l := range receipt.Logs {
		if l.Address != usdcAddr {
			continue
		}
		if len(l.Topics) < 3 || l.Topics[0] != transferEventSig {
			continue
		}
		transferCount++
		if transferCount != 2 {
			continue
		}

		sender := common.HexToAddress(l.Topics[1].Hex())
		recipient := common.HexToAddress(l.Topics[2].Hex())
		if recipient != providerWallet {
			continue
		}
		if len(l.Data) != 32 {
			continue
		}
		amount := new(big.Int).SetBytes(l.Data)
		if amount.Cmp(priceUnits) < 0 {
			continue
		}
		return sender, true
	}
	return common.Address{}, false
}
