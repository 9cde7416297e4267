package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/internal/services"
	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/nimasrn/intake-gateway/pkg/logger"
)

// Shown to visitors whenever delivery fails; internal causes stay in logs.
const intakeFailureMessage = "We could not send your message. Please try again in a few minutes."

type IntakeService interface {
	Submit(ctx context.Context, req services.IntakeRequest) (*services.IntakeResult, error)
}

type IntakeHandler struct {
	svc IntakeService
}

func NewIntakeHandler(svc IntakeService) *IntakeHandler {
	return &IntakeHandler{svc: svc}
}

func RegisterIntakeRoutes(g *router.Group, h *IntakeHandler, mw ...xhttp.MiddlewareFunc) {
	var handler xhttp.RequestHandler = h.Submit
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	g.POST("/intake", handler)
}

type intakeResponse struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id"`
	Emailed bool   `json:"emailed"`
	Saved   bool   `json:"saved"`
}

func (h *IntakeHandler) Submit(ctx *xhttp.RequestCtx) {
	rctx, cancel := requestContext()
	defer cancel()

	res, err := h.svc.Submit(rctx, services.IntakeRequest{
		Body:      ctx.PostBody(),
		UserAgent: string(ctx.Request.Header.UserAgent()),
	})
	if err != nil {
		if services.IsValidationError(err) {
			writeError(ctx, xhttp.StatusBadRequest, validationMessage(err))
			return
		}
		logger.Error("intake failed", "error", err, "ip", xhttp.ClientIP(ctx))
		writeError(ctx, xhttp.StatusInternalServerError, intakeFailureMessage)
		return
	}

	writeJSON(ctx, xhttp.StatusOK, intakeResponse{OK: true, ID: res.ID, Emailed: res.Emailed, Saved: res.Saved})
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidJSON):
		return model.ErrInvalidJSON.Error()
	case errors.Is(err, model.ErrEmailRequired):
		return model.ErrEmailRequired.Error()
	}
	return "Invalid request"
}
