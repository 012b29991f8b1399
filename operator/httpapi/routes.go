package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/hypergrid-io/hypergrid/auth"
	"github.com/hypergrid-io/hypergrid/internal/model"
	"github.com/hypergrid-io/hypergrid/operator"
	"github.com/hypergrid-io/hypergrid/operator/graph"
)

// mcpRequest is the operations-union body shared by /api/mcp and
// /shim/mcp (spec §6).
type mcpRequest struct {
	Operation    string            `json:"operation"`
	Query        string            `json:"query,omitempty"`
	ProviderID   string            `json:"provider_id,omitempty"`
	ProviderName string            `json:"provider_name,omitempty"`
	Arguments    map[string]string `json:"arguments,omitempty"`
}

func (req mcpRequest) lookupKey() string {
	if req.ProviderID != "" {
		return req.ProviderID
	}
	return req.ProviderName
}

// handleUIMcp is the owner/UI path (spec §6 "POST /api/mcp"): no per-client
// budget, no bearer auth beyond the owner gate already applied.
func (s *Server) handleUIMcp(c *gin.Context) {
	var req mcpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	switch req.Operation {
	case "SearchRegistry":
		providers, err := s.registry.Search(c.Request.Context(), req.Query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"providers": providers})
	case "CallProvider":
		s.dispatchAndRespond(c, nil, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation"})
	}
}

// handleShimMcp is the shim path (spec §6 "POST /shim/mcp"): headers
// X-Client-ID / X-Token authenticate the caller; the status codes below
// follow the table in spec §6 exactly.
func (s *Server) handleShimMcp(c *gin.Context) {
	clientID := c.GetHeader("X-Client-ID")
	token := c.GetHeader("X-Token")
	if clientID == "" || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-Client-ID/X-Token header"})
		return
	}

	client, err := s.authz.Authenticate(clientID, token, model.CapabilityAll)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown client"})
		return
	case errors.Is(err, auth.ErrTokenMismatch), errors.Is(err, auth.ErrCapability), errors.Is(err, auth.ErrHalted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req mcpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Operation != "" && req.Operation != "CallProvider" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shim surface only supports CallProvider"})
		return
	}
	s.dispatchAndRespond(c, &client, req)
}

func (s *Server) dispatchAndRespond(c *gin.Context, client *model.AuthorizedClient, req mcpRequest) {
	s.metrics.IncActiveCalls()
	defer s.metrics.DecActiveCalls()

	rec, err := s.dispatcher.Dispatch(c.Request.Context(), client, req.lookupKey(), req.Arguments)
	s.metrics.RecordPayment(string(rec.Payment.Kind))

	if err != nil {
		var dispatchErr *operator.DispatchError
		if errors.As(err, &dispatchErr) {
			c.JSON(dispatchErr.Status, gin.H{"error": dispatchErr.Code, "details": dispatchErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": rec.ProviderName, "response": rec.Response, "payment": rec.Payment})
}

type configureClientRequest struct {
	ClientID              string `json:"client_id,omitempty"`
	ClientName            string `json:"client_name,omitempty"`
	RawToken              string `json:"raw_token"`
	HotWalletAddress      string `json:"hot_wallet_address_to_associate"`
}

// handleConfigureAuthorizedClient implements spec §6's
// POST /api/configure-authorized-client.
func (s *Server) handleConfigureAuthorizedClient(c *gin.Context) {
	var req configureClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	client, err := s.authz.Configure(req.ClientID, req.ClientName, req.RawToken, req.HotWalletAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":     client.ID,
		"raw_token":     req.RawToken,
		"api_base_path": "/shim/mcp",
		"node_name":     s.cfg.RootNode,
	})
}

func (s *Server) handleGraph(c *gin.Context) {
	ctx := c.Request.Context()
	identity, err := s.identity.Current()

	in := graph.Input{
		OwnerNodeID:       s.cfg.RootNode,
		AuthorizedClients: s.authz.List(),
	}
	wallets, selectedID := s.wallets.ListSummaries()
	in.HotWallets = wallets
	in.SelectedWalletID = selectedID

	if err == nil {
		in.OperatorTBA = identity.TBA.Hex()
		in.OperatorEntryName = identity.EntryName
		in.GaslessEnabled = identity.Gasless
		if selectedID != "" {
			status := s.delegation.Verify(ctx, identity.EntryName, common.HexToAddress(selectedID))
			in.DelegationVerified = status.OK()
		}
	}

	c.JSON(http.StatusOK, graph.Build(in))
}

func (s *Server) handleSetupStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot(c.Request.Context()))
}

func (s *Server) handleManagedWallets(c *gin.Context) {
	wallets, selectedID := s.wallets.ListSummaries()
	type summary struct {
		ID        string               `json:"id"`
		Name      string               `json:"name"`
		Selected  bool                 `json:"selected"`
		Encrypted bool                 `json:"encrypted"`
		Limits    model.SpendingLimits `json:"limits"`
	}
	out := make([]summary, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, summary{
			ID:        w.ID,
			Name:      w.Name,
			Selected:  w.ID == selectedID,
			Encrypted: w.Storage.Kind == model.StorageEncrypted,
			Limits:    w.Limits,
		})
	}
	c.JSON(http.StatusOK, gin.H{"wallets": out, "selected_wallet_id": selectedID})
}

func (s *Server) handleAll(c *gin.Context) {
	providers, err := s.registry.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// handleCat answers GET /api/cat?cat=...: a best-effort category filter
// over the provider_id namespace (e.g. "weather.grid-beta.hypr" -> category
// "weather"), since neither spec.md nor original_source/ define a category
// taxonomy beyond the provider_id convention itself.
func (s *Server) handleCat(c *gin.Context) {
	cat := c.Query("cat")
	providers, err := s.registry.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var out []model.Provider
	for _, p := range providers {
		if cat == "" || strings.HasPrefix(p.ProviderID, cat) {
			out = append(out, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) handleSearch(c *gin.Context) {
	providers, err := s.registry.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       s.status.Snapshot(c.Request.Context()),
		"recent_calls": s.history.Recent(50),
	})
}
