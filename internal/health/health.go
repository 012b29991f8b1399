// Package health implements liveness/readiness endpoints, grounded on the
// teacher facilitator service's health package.
package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type Response struct {
	Status  Status  `json:"status"`
	Checks  []Check `json:"checks,omitempty"`
	Version string  `json:"version,omitempty"`
}

// CheckFunc reports the health of one dependency (SQL store, KV store,
// chain RPC, ...).
type CheckFunc func() Check

// Checker aggregates a set of dependency checks behind /health and /ready.
type Checker struct {
	version string
	ready   []CheckFunc
}

func NewChecker(version string) *Checker {
	return &Checker{version: version}
}

// AddReadyCheck registers a dependency check consulted by ReadyHandler.
func (h *Checker) AddReadyCheck(f CheckFunc) {
	h.ready = append(h.ready, f)
}

// HealthHandler is a pure liveness probe: it never depends on downstream
// state.
func (h *Checker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, Response{Status: StatusHealthy, Version: h.version})
	}
}

// ReadyHandler runs every registered check and reports Degraded if any
// fail, Healthy otherwise. It never returns Unhealthy for a readiness
// probe — a degraded dependency should still let the process take traffic
// for the parts that work, per the single-process cooperative model in §5.
func (h *Checker) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make([]Check, 0, len(h.ready))
		status := StatusHealthy
		for _, f := range h.ready {
			chk := f()
			checks = append(checks, chk)
			if chk.Status != StatusHealthy {
				status = StatusDegraded
			}
		}
		c.JSON(http.StatusOK, Response{Status: status, Checks: checks, Version: h.version})
	}
}
