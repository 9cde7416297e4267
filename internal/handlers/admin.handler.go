package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fasthttp/router"
	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/internal/services"
	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
)

type AdminService interface {
	List(ctx context.Context, p services.ListParams) (*model.SubmissionPage, error)
	MarkRead(ctx context.Context, ids []string) (int64, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

type AdminHandler struct {
	svc AdminService
}

func NewAdminHandler(svc AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// RegisterAdminRoutes mounts the admin endpoints behind bearer auth.
func RegisterAdminRoutes(g *router.Group, h *AdminHandler, token string) {
	auth := BearerAuth(token)
	admin := g.Group("/admin")
	admin.GET("/submissions", auth(h.ListSubmissions))
	admin.POST("/mark-read", auth(h.MarkRead))
	admin.POST("/delete", auth(h.Delete))
}

type listResponse struct {
	OK     bool                `json:"ok"`
	Items  []*model.Submission `json:"items"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type markReadResponse struct {
	OK      bool  `json:"ok"`
	Updated int64 `json:"updated"`
}

type deleteResponse struct {
	OK      bool  `json:"ok"`
	Deleted int64 `json:"deleted"`
}

func (h *AdminHandler) ListSubmissions(ctx *xhttp.RequestCtx) {
	rctx, cancel := requestContext()
	defer cancel()

	page, err := h.svc.List(rctx, services.ListParams{
		Limit:          query(ctx, "limit"),
		Offset:         query(ctx, "offset"),
		Status:         query(ctx, "status"),
		Source:         query(ctx, "source"),
		IncludeDeleted: query(ctx, "includeDeleted"),
	})
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse{OK: true, Items: page.Items, Total: page.Total, Limit: page.Limit, Offset: page.Offset})
}

func (h *AdminHandler) MarkRead(ctx *xhttp.RequestCtx) {
	ids, ok := readIDs(ctx)
	if !ok {
		return
	}
	rctx, cancel := requestContext()
	defer cancel()

	n, err := h.svc.MarkRead(rctx, ids)
	if err != nil {
		writeMutationError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, markReadResponse{OK: true, Updated: n})
}

func (h *AdminHandler) Delete(ctx *xhttp.RequestCtx) {
	ids, ok := readIDs(ctx)
	if !ok {
		return
	}
	rctx, cancel := requestContext()
	defer cancel()

	n, err := h.svc.Delete(rctx, ids)
	if err != nil {
		writeMutationError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, deleteResponse{OK: true, Deleted: n})
}

// readIDs accepts {"ids": [...]} and keeps only the string entries. It
// writes the 400 response itself when the body is unusable.
func readIDs(ctx *xhttp.RequestCtx) ([]string, bool) {
	var body map[string]json.RawMessage
	if err := readJSON(ctx, &body); err != nil || body == nil {
		writeError(ctx, xhttp.StatusBadRequest, "Invalid JSON")
		return nil, false
	}
	var raw []any
	if v, ok := body["ids"]; ok {
		_ = json.Unmarshal(v, &raw)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	if len(ids) == 0 {
		writeError(ctx, xhttp.StatusBadRequest, services.ErrNoIDs.Error())
		return nil, false
	}
	return ids, true
}

func writeMutationError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrNoIDs), errors.Is(err, services.ErrTooManyIDs):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	default:
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
	}
}
