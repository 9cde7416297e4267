package handlers

import (
	"context"
	"encoding/json"
	"time"

	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
)

const handlerTimeout = 10 * time.Second

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = xhttp.StatusInternalServerError
		b = []byte(`{"ok":false,"error":"Internal error"}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{OK: false, Error: msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

// requestContext detaches service calls from the fasthttp connection and
// bounds them.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}
