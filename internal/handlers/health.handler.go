package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/nimasrn/intake-gateway/pkg/logger"
)

type HealthService interface {
	Get(ctx context.Context) error
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	rctx, cancel := requestContext()
	defer cancel()

	if err := h.svc.Get(rctx); err != nil {
		logger.Error("health check failed", "error", err)
		writeJSON(ctx, xhttp.StatusServiceUnavailable, healthResponse{OK: false, Status: "degraded"})
		return
	}
	writeJSON(ctx, xhttp.StatusOK, healthResponse{OK: true, Status: "ok"})
}
