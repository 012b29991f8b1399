// Package operator is the Call Dispatcher (C8): it wires every other
// component into the 8-step per-call pipeline (spec §4.8), plus the
// derived graph/status read models supplementing the original operator
// service (SPEC_FULL.md "SUPPLEMENTED FEATURES").
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/internal/model"
	"github.com/hypergrid-io/hypergrid/internal/usdc"
	"github.com/hypergrid-io/hypergrid/ledger"
	"github.com/hypergrid-io/hypergrid/payment"
)

const (
	healthPingTimeout   = 7 * time.Second
	providerCallTimeout = 60 * time.Second
)

// DispatchError is a terminal failure carrying the HTTP status the shim/UI
// surface should answer with (spec §6 response-code table).
type DispatchError struct {
	Status int
	Code   string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *DispatchError) Unwrap() error { return e.Err }

func dispatchErr(status int, code string, err error) *DispatchError {
	return &DispatchError{Status: status, Code: code, Err: err}
}

// ProviderResolver is the Registry Store (C2) read seam.
type ProviderResolver interface {
	GetProviderDetails(ctx context.Context, lookupKey string) (model.Provider, bool, error)
}

// BudgetEnforcer is the Client Authorization (C5) seam.
type BudgetEnforcer interface {
	CheckBudget(clientID string, amountUnits *big.Int) error
}

// Payer is the Payment Engine (C6) seam.
type Payer interface {
	Pay(ctx context.Context, req payment.Request) model.PaymentOutcome
}

// CoverageRefresher is the USDC Ledger (C7) seam used after a successful
// payment to guarantee the ledger reflects this call's tx (§4.8 step 8).
type CoverageRefresher interface {
	EnsureCallTxCovered(ctx context.Context, src ledger.ReceiptSource, tba common.Address, txHash string, blockNumber uint64, timeMs int64, attr ledger.Attribution) error
}

// Broadcaster pushes terminal CallRecords to subscribed UIs (§4.8 step 8).
// Implemented by operator/httpapi's WebSocket hub; declared here to avoid
// operator importing its own HTTP layer.
type Broadcaster interface {
	Publish(event string, payload interface{})
}

// Identity is the operator's current on-chain/custody identity, resolved
// fresh for each dispatch since the selected wallet can change between
// calls.
type Identity struct {
	TBA         common.Address
	EntryName   string
	HotWalletID string
	ChainID     int64
	Gasless     bool
}

// IdentitySource resolves the current Identity (Wallet Custody C3 + KV
// operator linkage).
type IdentitySource interface {
	Current() (Identity, error)
}

// Dispatcher implements the 8-step pipeline.
type Dispatcher struct {
	registry  ProviderResolver
	budget    BudgetEnforcer
	payer     Payer
	coverage  CoverageRefresher
	chainSrc  ledger.ReceiptSource
	providers ProviderClient
	identity  IdentitySource
	history   *History
	broadcast Broadcaster
}

func NewDispatcher(
	registry ProviderResolver,
	budget BudgetEnforcer,
	payer Payer,
	coverage CoverageRefresher,
	chainSrc ledger.ReceiptSource,
	providers ProviderClient,
	identity IdentitySource,
	history *History,
	broadcast Broadcaster,
) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		budget:    budget,
		payer:     payer,
		coverage:  coverage,
		chainSrc:  chainSrc,
		providers: providers,
		identity:  identity,
		history:   history,
		broadcast: broadcast,
	}
}

// SetBroadcaster wires the WebSocket hub after construction: the hub lives
// inside operator/httpapi.Server, which itself takes the Dispatcher as a
// constructor argument, so the broadcaster can only be attached once both
// sides exist.
func (d *Dispatcher) SetBroadcaster(b Broadcaster) { d.broadcast = b }

// Dispatch runs the pipeline for one call. client is nil for the UI path
// (cookie-auth, owner-operated, no per-client budget); non-nil for the
// shim path, where it is the already-authenticated caller (§4.8 step 1,
// performed by the httpapi layer before Dispatch is invoked).
func (d *Dispatcher) Dispatch(ctx context.Context, client *model.AuthorizedClient, lookupKey string, arguments map[string]string) (model.CallRecord, error) {
	startMs := nowMs()
	rec := model.CallRecord{
		StartMs:   startMs,
		LookupKey: lookupKey,
		Arguments: arguments,
	}
	if client != nil {
		rec.ClientID = client.ID
	}

	finish := func(terminalErr error) (model.CallRecord, error) {
		rec.ResponseMs = nowMs()
		rec.DurationMs = rec.ResponseMs - rec.StartMs
		if appendErr := d.history.Append(rec); appendErr != nil {
			// The pipeline result still stands; history persistence failing
			// must not mask the call outcome to the caller.
			terminalErr = firstNonNil(terminalErr, appendErr)
		}
		if d.broadcast != nil {
			d.broadcast.Publish("call_record", rec)
		}
		return rec, terminalErr
	}

	// Step 2: resolve provider.
	provider, ok, err := d.registry.GetProviderDetails(ctx, lookupKey)
	if err != nil {
		return finish(dispatchErr(502, "registry-error", err))
	}
	if !ok {
		return finish(dispatchErr(404, "provider-not-found", nil))
	}
	rec.ProviderID = provider.ProviderID
	rec.ProviderName = provider.Name

	// Step 3: health ping, 7s timeout.
	healthCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	err = d.providers.HealthPing(healthCtx, provider.Name, provider.Site)
	cancel()
	if err != nil {
		return finish(dispatchErr(502, "provider-unavailable", err))
	}

	priceUnits, hasPrice, err := parsePrice(provider.Price)
	if err != nil {
		return finish(dispatchErr(502, "invalid-provider-price", err))
	}

	// Step 4: enforce client cumulative budget (UI/owner path is unbudgeted).
	if client != nil && hasPrice {
		if err := d.budget.CheckBudget(client.ID, priceUnits); err != nil {
			rec.Payment = model.PaymentOutcome{
				Kind:            model.PaymentLimitExceeded,
				Reason:          err.Error(),
				AmountAttempted: provider.Price,
			}
			return finish(dispatchErr(402, "budget-exceeded", err))
		}
	}

	identity, err := d.identity.Current()
	if err != nil {
		return finish(dispatchErr(502, "operator-identity-unavailable", err))
	}

	var paymentTxHash string
	// Step 5: invoke Payment Engine when price > 0.
	if hasPrice {
		clientID := ""
		if client != nil {
			clientID = client.ID
		}
		outcome := d.payer.Pay(ctx, payment.Request{
			ClientID:       clientID,
			OperatorTBA:    identity.TBA,
			OperatorEntry:  identity.EntryName,
			HotWalletID:    identity.HotWalletID,
			ProviderWallet: provider.Wallet,
			ProviderSite:   provider.Site,
			AmountDisplay:  provider.Price,
			Gasless:        identity.Gasless,
			ChainID:        big.NewInt(identity.ChainID),
		})
		rec.Payment = outcome
		if outcome.Kind != model.PaymentSuccess {
			return finish(dispatchErr(402, "payment-failed", fmt.Errorf("%s", outcome.Error+outcome.Reason)))
		}
		paymentTxHash = outcome.TxHash
	} else {
		rec.Payment = model.PaymentOutcome{Kind: model.PaymentSkipped, Reason: "price is zero"}
	}

	// Step 6: forward CallProvider, 60s timeout.
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	result, err := d.providers.CallProvider(callCtx, provider.Name, provider.Site, arguments, paymentTxHash)
	cancel()
	if err != nil {
		return finish(dispatchErr(502, "provider-call-failed", err))
	}

	// Step 7: wrap response with {provider, response, payment}.
	envelope := map[string]interface{}{
		"provider": provider,
		"response": result,
		"payment":  rec.Payment,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return finish(dispatchErr(502, "response-encode-failed", err))
	}
	rec.Response = string(raw)
	rec.Success = result.Status == 200

	// Step 8: refresh Ledger coverage for a settled payment.
	if paymentTxHash != "" && d.coverage != nil && d.chainSrc != nil {
		attr := ledger.Attribution{ClientID: rec.ClientID, ProviderName: provider.Name, ProviderAddress: provider.Wallet}
		if covErr := d.coverage.EnsureCallTxCovered(ctx, d.chainSrc, identity.TBA, paymentTxHash, 0, rec.ResponseMs, attr); covErr != nil {
			return finish(fmt.Errorf("call succeeded but ledger coverage failed: %w", covErr))
		}
	}

	return finish(nil)
}

// parsePrice returns (nil, false, nil) for an empty/zero price (free
// endpoint, spec §4.8 step 5 "if price > 0").
func parsePrice(price string) (*big.Int, bool, error) {
	if price == "" || price == "0" {
		return nil, false, nil
	}
	units, err := usdc.DisplayToUnits(price)
	if err != nil {
		return nil, false, fmt.Errorf("parse provider price %q: %w", price, err)
	}
	return units, true, nil
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
