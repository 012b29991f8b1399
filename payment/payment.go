// Package payment is the Payment Engine (C6): executes a settled call's USDC
// payment either as a direct token-bound-account transaction or, when
// configured, as a gasless ERC-4337 UserOperation sponsored by a pinned
// paymaster. Grounded on the facilitator's Verify-then-Settle shape
// (go/mechanisms/evm/exact/facilitator/scheme.go) and on the signer
// interface's SendTransaction/WaitForTransactionReceipt pattern
// (go/test/integration/evm_test.go's realFacilitatorEvmSigner).
package payment

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hypergrid-io/hypergrid/delegation"
	"github.com/hypergrid-io/hypergrid/internal/model"
	"github.com/hypergrid-io/hypergrid/internal/usdc"
	"github.com/hypergrid-io/hypergrid/payment/erc4337"
)

// confirmation polling, per spec §4.6: "poll for receipt with exponential
// backoff (500 ms -> 8 s, cap 10 retries), requiring depth >= 1 confirmation".
const (
	pollInitialDelay = 500 * time.Millisecond
	pollMaxDelay      = 8 * time.Second
	pollMaxRetries    = 10
	minConfirmations  = 1
)

var (
	// ErrProviderWalletInvalid is returned when a provider's registered
	// settlement address is a placeholder or the wrong byte length.
	ErrProviderWalletInvalid = errors.New("provider wallet address is invalid or a placeholder")
	// ErrHotWalletLocked is returned when the selected hot wallet has no
	// cached signer (preflight step iv).
	ErrHotWalletLocked = errors.New("hot wallet is not unlocked")
)

// ChainClient is the narrow go-ethereum surface this engine needs to submit
// and confirm a transaction; *ethclient.Client satisfies it.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// BudgetChecker is satisfied by auth.Registry.
type BudgetChecker interface {
	CheckBudget(clientID string, amountUnits *big.Int) error
}

// SignerSource is satisfied by wallet.Manager.
type SignerSource interface {
	Signer(id string) (*ecdsa.PrivateKey, error)
	SelectedSigner() (string, *ecdsa.PrivateKey, error)
}

// DelegationChecker is satisfied by delegation.Verifier.
type DelegationChecker interface {
	Verify(ctx context.Context, operatorEntry string, hotWallet common.Address) delegation.Status
}

// HealthPinger performs the provider health ping of preflight step (vi)
// (spec §4.8).
type HealthPinger interface {
	Ping(ctx context.Context, providerSite string) error
}

// Request describes one call's USDC settlement.
type Request struct {
	ClientID      string // "" if the call came from the operator's own MCP surface
	OperatorTBA   common.Address
	OperatorEntry string // delegation access-list key, e.g. "operator.grid-beta.hypr"
	HotWalletID   string // explicit wallet address; "" selects the currently-selected wallet
	ProviderWallet string // raw ~wallet value from the registry
	ProviderSite   string // ~site, used for the health ping
	AmountDisplay  string // decimal USDC string, e.g. "0.05"
	Gasless        bool
	ChainID        *big.Int
}

// Engine wires the preflight checks and the two execution modes together.
type Engine struct {
	chain      ChainClient
	usdcAddr   common.Address
	budget     BudgetChecker
	signers    SignerSource
	delegation DelegationChecker
	health     HealthPinger

	bundler    erc4337.BundlerClient
	paymaster  erc4337.PaymasterConfig
	entryPoint common.Address
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithGasless enables the ERC-4337 path, pinned to a single sponsoring
// paymaster (spec §4.6 "attach a pinned paymaster address").
func WithGasless(bundler erc4337.BundlerClient, paymaster common.Address, verificationGas, postOpGas *big.Int) Option {
	return func(e *Engine) {
		e.bundler = bundler
		e.paymaster = erc4337.PaymasterConfig{Address: paymaster, VerificationGas: verificationGas, PostOpGas: postOpGas}
		entryPoint := common.HexToAddress(erc4337.EntryPointV07Address)
		e.entryPoint = entryPoint
	}
}

func NewEngine(chain ChainClient, usdcAddr common.Address, budget BudgetChecker, signers SignerSource, delegationChecker DelegationChecker, health HealthPinger, opts ...Option) *Engine {
	e := &Engine{chain: chain, usdcAddr: usdcAddr, budget: budget, signers: signers, delegation: delegationChecker, health: health}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pay runs the full preflight sequence and then executes the transfer,
// returning a model.PaymentOutcome — the PaymentAttemptResult sum type
// (spec §4.6): Success / Failed / Skipped / LimitExceeded.
func (e *Engine) Pay(ctx context.Context, req Request) model.PaymentOutcome {
	amountUnits, err := usdc.DisplayToUnits(req.AmountDisplay)
	if err != nil {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: err.Error(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}
	}

	if outcome, ok := e.preflight(ctx, req, amountUnits); !ok {
		return outcome
	}

	providerWallet := common.HexToAddress(req.ProviderWallet)
	transferData, err := encodeERC20Transfer(providerWallet, amountUnits)
	if err != nil {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: err.Error(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}
	}
	executeData, err := encodeExecute(e.usdcAddr, big.NewInt(0), transferData)
	if err != nil {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: err.Error(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}
	}

	walletID, signer, err := e.resolveSigner(req.HotWalletID)
	if err != nil {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: err.Error(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}
	}
	_ = walletID

	var txHash common.Hash
	if req.Gasless && e.bundler != nil {
		txHash, err = e.sendGasless(ctx, req.OperatorTBA, executeData, signer, req.ChainID)
	} else {
		txHash, err = e.sendTBA(ctx, req.OperatorTBA, executeData, signer, req.ChainID)
	}
	if err != nil {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: err.Error(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}
	}

	if err := e.confirm(ctx, txHash); err != nil {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: err.Error(), TxHash: txHash.Hex(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}
	}

	return model.PaymentOutcome{Kind: model.PaymentSuccess, TxHash: txHash.Hex(), Amount: req.AmountDisplay, Currency: "USDC"}
}

// preflight runs the six checks spec §4.6 requires before any submission.
// Returns (outcome, false) if the call should not proceed.
func (e *Engine) preflight(ctx context.Context, req Request, amountUnits *big.Int) (model.PaymentOutcome, bool) {
	// (i) resolve operator TBA from state
	if req.OperatorTBA == (common.Address{}) {
		return model.PaymentOutcome{Kind: model.PaymentSkipped, Reason: "operator has no linked token-bound account"}, false
	}

	// (ii) validate provider wallet (non-placeholder, correct length)
	if !isValidProviderWallet(req.ProviderWallet) {
		return model.PaymentOutcome{Kind: model.PaymentFailed, Error: ErrProviderWalletInvalid.Error(), AmountAttempted: req.AmountDisplay, Currency: "USDC"}, false
	}

	// (iii) enforce per-call limit (cumulative is rechecked inside CheckBudget too)
	if e.budget != nil && req.ClientID != "" {
		if err := e.budget.CheckBudget(req.ClientID, amountUnits); err != nil {
			return model.PaymentOutcome{Kind: model.PaymentLimitExceeded, Limit: req.AmountDisplay, AmountAttempted: req.AmountDisplay, Currency: "USDC", Reason: err.Error()}, false
		}
	}

	// (iv) require the selected hot wallet to be unlocked
	_, _, err := e.resolveSigner(req.HotWalletID)
	if err != nil {
		return model.PaymentOutcome{Kind: model.PaymentSkipped, Reason: fmt.Sprintf("hot wallet unavailable: %v", err)}, false
	}

	// (v) verify delegation (C4)
	if e.delegation != nil {
		hotWalletID, _, _ := e.resolveSigner(req.HotWalletID)
		status := e.delegation.Verify(ctx, req.OperatorEntry, common.HexToAddress(hotWalletID))
		if !status.OK() {
			return model.PaymentOutcome{Kind: model.PaymentSkipped, Reason: fmt.Sprintf("delegation check failed: %s", status.Reason)}, false
		}
	}

	// (vi) provider health ping (§4.8)
	if e.health != nil {
		if err := e.health.Ping(ctx, req.ProviderSite); err != nil {
			return model.PaymentOutcome{Kind: model.PaymentSkipped, Reason: fmt.Sprintf("provider health check failed: %v", err)}, false
		}
	}

	return model.PaymentOutcome{}, true
}

func (e *Engine) resolveSigner(walletID string) (string, *ecdsa.PrivateKey, error) {
	if walletID != "" {
		signer, err := e.signers.Signer(walletID)
		if err != nil {
			return "", nil, err
		}
		return walletID, signer, nil
	}
	return e.signers.SelectedSigner()
}

func isValidProviderWallet(addr string) bool {
	if !common.IsHexAddress(addr) {
		return false
	}
	a := common.HexToAddress(addr)
	return a != (common.Address{})
}

// sendTBA builds and submits the default execution mode: a plain transaction
// calling the TBA's execute(...), signed by the hot wallet.
func (e *Engine) sendTBA(ctx context.Context, tba common.Address, data []byte, signer *ecdsa.PrivateKey, chainID *big.Int) (common.Hash, error) {
	from := crypto.PubkeyToAddress(signer.PublicKey)
	nonce, err := e.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := e.chain.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &tba, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &tba,
		Value:    big.NewInt(0),
		Gas:      gasLimit + gasLimit/5, // headroom over the estimate
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := e.chain.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signedTx.Hash(), nil
}

// sendGasless builds and submits the ERC-4337 mode: a UserOperation whose
// sender is the TBA and whose calldata is the same execute(...) payload,
// sponsored by the pinned paymaster, signed by the hot wallet, submitted to
// the bundler.
func (e *Engine) sendGasless(ctx context.Context, tba common.Address, data []byte, signer *ecdsa.PrivateKey, chainID *big.Int) (common.Hash, error) {
	nonce, err := e.chain.PendingNonceAt(ctx, tba)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch tba nonce: %w", err)
	}
	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	op := &erc4337.UserOperation{
		Sender:               tba,
		Nonce:                new(big.Int).SetUint64(nonce),
		CallData:             data,
		VerificationGasLimit: e.paymaster.VerificationGas,
		CallGasLimit:         big.NewInt(200000),
		PreVerificationGas:   big.NewInt(50000),
		MaxPriorityFeePerGas: gasPrice,
		MaxFeePerGas:         gasPrice,
		PaymasterAndData:     e.paymaster.BuildPaymasterAndData(),
	}

	digest := userOpHash(op, e.entryPoint, chainID)
	sig, err := crypto.Sign(digest, signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign user operation: %w", err)
	}
	sig[64] += 27
	op.Signature = sig

	opHash, err := e.bundler.SendUserOperation(op, e.entryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("submit user operation: %w", err)
	}

	receipt, err := e.bundler.GetUserOperationReceipt(opHash)
	if err != nil || receipt == nil {
		return opHash, nil // fall through to polling by user-op hash
	}
	return receipt.TransactionHash, nil
}

// userOpHash hashes the UserOperation fields the way EntryPoint v0.7 expects
// before the final domain wrap: keccak256 of the packed operation fields,
// the entry point, and the chain id.
func userOpHash(op *erc4337.UserOperation, entryPoint common.Address, chainID *big.Int) []byte {
	packed := crypto.Keccak256(
		op.Sender.Bytes(),
		op.Nonce.Bytes(),
		op.CallData,
		op.PaymasterAndData,
	)
	return crypto.Keccak256(packed, entryPoint.Bytes(), common.LeftPadBytes(chainID.Bytes(), 32))
}

// confirm polls for a transaction receipt with exponential backoff,
// requiring at least minConfirmations block depth (spec §4.6).
func (e *Engine) confirm(ctx context.Context, txHash common.Hash) error {
	delay := pollInitialDelay
	for attempt := 0; attempt < pollMaxRetries; attempt++ {
		receipt, err := e.chain.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			head, err := e.chain.BlockNumber(ctx)
			if err == nil && head >= receipt.BlockNumber.Uint64()+minConfirmations-1 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > pollMaxDelay {
			delay = pollMaxDelay
		}
	}
	return fmt.Errorf("timed out waiting for confirmation of %s", txHash.Hex())
}

func init() {
	if len(executeSelector) != 4 || len(erc20TransferSelector) != 4 {
		panic("payment: malformed function selector")
	}
}
