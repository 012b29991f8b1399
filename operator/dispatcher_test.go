package operator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
	"github.com/hypergrid-io/hypergrid/internal/model"
	"github.com/hypergrid-io/hypergrid/ledger"
	"github.com/hypergrid-io/hypergrid/payment"
)

type fakeResolver struct {
	provider model.Provider
	found    bool
	err      error
}

func (f fakeResolver) GetProviderDetails(ctx context.Context, lookupKey string) (model.Provider, bool, error) {
	return f.provider, f.found, f.err
}

type fakeBudget struct{ err error }

func (f fakeBudget) CheckBudget(clientID string, amountUnits *big.Int) error { return f.err }

type fakePayer struct{ outcome model.PaymentOutcome }

func (f fakePayer) Pay(ctx context.Context, req payment.Request) model.PaymentOutcome {
	return f.outcome
}

type fakeCoverage struct{ called bool }

func (f *fakeCoverage) EnsureCallTxCovered(ctx context.Context, src ledger.ReceiptSource, tba common.Address, txHash string, blockNumber uint64, timeMs int64, attr ledger.Attribution) error {
	f.called = true
	return nil
}

type fakeProviders struct {
	healthErr error
	result    ProviderCallResult
	callErr   error
}

func (f fakeProviders) HealthPing(ctx context.Context, providerName, baseURL string) error {
	return f.healthErr
}

func (f fakeProviders) CallProvider(ctx context.Context, providerName, baseURL string, arguments map[string]string, paymentTxHash string) (ProviderCallResult, error) {
	return f.result, f.callErr
}

type fakeIdentity struct {
	identity Identity
	err      error
}

func (f fakeIdentity) Current() (Identity, error) { return f.identity, f.err }

type fakeBroadcast struct{ events []string }

func (f *fakeBroadcast) Publish(event string, payload interface{}) { f.events = append(f.events, event) }

func newTestDispatcher(t *testing.T, resolver ProviderResolver, budget BudgetEnforcer, payer Payer, providers ProviderClient, identity IdentitySource) (*Dispatcher, *fakeBroadcast) {
	t.Helper()
	history, err := NewHistory(kvstore.NewInMemory())
	require.NoError(t, err)
	bc := &fakeBroadcast{}
	d := NewDispatcher(resolver, budget, payer, &fakeCoverage{}, nil, providers, identity, history, bc)
	return d, bc
}

func TestDispatchProviderNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t, fakeResolver{found: false}, fakeBudget{}, fakePayer{}, fakeProviders{}, fakeIdentity{})
	_, err := d.Dispatch(context.Background(), nil, "missing.hypr", nil)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, 404, dispatchErr.Status)
}

func TestDispatchProviderUnavailable(t *testing.T) {
	provider := model.Provider{Name: "weather", Site: "http://weather.local", Price: "0"}
	d, _ := newTestDispatcher(t, fakeResolver{provider: provider, found: true}, fakeBudget{}, fakePayer{},
		fakeProviders{healthErr: context.DeadlineExceeded}, fakeIdentity{})
	_, err := d.Dispatch(context.Background(), nil, "weather", nil)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, 502, dispatchErr.Status)
	require.Equal(t, "provider-unavailable", dispatchErr.Code)
}

func TestDispatchFreeProviderSucceeds(t *testing.T) {
	provider := model.Provider{Name: "weather", Site: "http://weather.local", Price: "0"}
	identity := Identity{TBA: common.HexToAddress("0x1111111111111111111111111111111111111111"), EntryName: "operator.grid-beta.hypr", ChainID: 8453}
	result := ProviderCallResult{Status: 200, Body: map[string]interface{}{"temp": 72}}
	d, bc := newTestDispatcher(t, fakeResolver{provider: provider, found: true}, fakeBudget{}, fakePayer{},
		fakeProviders{result: result}, fakeIdentity{identity: identity})

	rec, err := d.Dispatch(context.Background(), nil, "weather", map[string]string{"city": "nyc"})
	require.NoError(t, err)
	require.True(t, rec.Success)
	require.Equal(t, model.PaymentSkipped, rec.Payment.Kind)
	require.Len(t, bc.events, 1)
}

func TestDispatchBudgetExceeded(t *testing.T) {
	provider := model.Provider{Name: "weather", Site: "http://weather.local", Price: "0.05"}
	client := &model.AuthorizedClient{ID: "client-1"}
	d, _ := newTestDispatcher(t, fakeResolver{provider: provider, found: true}, fakeBudget{err: errBudget}, fakePayer{},
		fakeProviders{}, fakeIdentity{identity: Identity{ChainID: 8453}})

	_, err := d.Dispatch(context.Background(), client, "weather", nil)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, 402, dispatchErr.Status)
	require.Equal(t, "budget-exceeded", dispatchErr.Code)
}

func TestDispatchPaymentFailurePreventsUpstreamCall(t *testing.T) {
	provider := model.Provider{Name: "weather", Site: "http://weather.local", Price: "0.05", Wallet: "0x2222222222222222222222222222222222222222"}
	outcome := model.PaymentOutcome{Kind: model.PaymentFailed, Error: "insufficient funds"}
	d, _ := newTestDispatcher(t, fakeResolver{provider: provider, found: true}, fakeBudget{}, fakePayer{outcome: outcome},
		fakeProviders{callErr: errUnexpectedCall}, fakeIdentity{identity: Identity{ChainID: 8453}})

	_, err := d.Dispatch(context.Background(), nil, "weather", nil)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, 402, dispatchErr.Status)
	require.Equal(t, "payment-failed", dispatchErr.Code)
}

var errBudget = errFixed("budget exceeded")
var errUnexpectedCall = errFixed("upstream should not have been called")

type errFixed string

func (e errFixed) Error() string { return string(e) }
