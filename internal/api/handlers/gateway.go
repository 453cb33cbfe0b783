package handlers

import (
	"context"
	"net/http"

	"github.com/anstrom/netrecon/internal/topology"
)

// GatewayDetector finds the default gateway, routes and external address.
type GatewayDetector interface {
	Detect(ctx context.Context) topology.Info
}

// GatewayHandler serves topology information for the host running the API.
type GatewayHandler struct {
	detector GatewayDetector
}

// NewGatewayHandler creates a gateway handler.
func NewGatewayHandler(detector GatewayDetector) *GatewayHandler {
	return &GatewayHandler{detector: detector}
}

// GetGateway handles GET /api/v1/gateway. An undetectable gateway is not an
// error; the field is left empty.
func (h *GatewayHandler) GetGateway(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.detector.Detect(r.Context()))
}
