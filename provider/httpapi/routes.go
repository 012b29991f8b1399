package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hypergrid-io/hypergrid/provider"
)

type healthResponse struct {
	Status string `json:"status"`
}

// handleHealth answers the operator's HealthPing{provider_name} control
// message (spec §6) with a plain liveness ack.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "Ack"})
}

type callRequest struct {
	ProviderName  string            `json:"provider_name"`
	Arguments     map[string]string `json:"arguments"`
	PaymentTxHash string            `json:"payment_tx_hash,omitempty"`
}

// handleCall answers the operator's CallProvider control message (spec
// §6), running the Provider Verifier's six-step revalidation (§4.9) ahead
// of the Provider Executor's upstream call (§4.10). A registered price of
// zero skips verification entirely: the operator's own dispatcher only
// invokes the Payment Engine when price > 0 (§4.8 step 5), so a zero-price
// provider never receives a payment_tx_hash to verify.
func (s *Server) handleCall(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	prov, err := s.providers.Lookup(req.ProviderName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	desc, ok := s.descriptors[req.ProviderName]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no endpoint descriptor for provider"})
		return
	}

	if prov.PriceUnits != nil && prov.PriceUnits.Sign() > 0 {
		if err := s.verifier.VerifyPayment(c.Request.Context(), prov, req.PaymentTxHash, s.sourceNodeID); err != nil {
			s.metrics.RecordVerify("rejected")
			status := http.StatusPaymentRequired
			if errors.Is(err, provider.ErrUnknownProvider) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		s.metrics.RecordVerify("accepted")
	}

	resp, warnings, err := s.executor.Call(c.Request.Context(), desc, req.Arguments, s.sourceNodeID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if len(warnings) > 0 {
		c.Header("X-Hypergrid-Warnings", warnings[0])
	}
	c.JSON(http.StatusOK, resp)
}
