package handlers

import (
	"crypto/subtle"
	"strings"

	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/nimasrn/intake-gateway/pkg/logger"
)

const bearerPrefix = "Bearer "

// BearerAuth admits requests whose Authorization header carries exactly
// the configured token. With no token configured every request is refused.
func BearerAuth(token string) xhttp.MiddlewareFunc {
	expected := []byte(token)
	return func(next xhttp.RequestHandler) xhttp.RequestHandler {
		return func(ctx *xhttp.RequestCtx) {
			if len(expected) == 0 {
				unauthorized(ctx)
				return
			}
			got, ok := bearerToken(string(ctx.Request.Header.Peek("Authorization")))
			if !ok || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				logger.Warn("admin request rejected", "path", string(ctx.Path()), "ip", xhttp.ClientIP(ctx))
				unauthorized(ctx)
				return
			}
			next(ctx)
		}
	}
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	tok := header[len(bearerPrefix):]
	return tok, tok != ""
}

func unauthorized(ctx *xhttp.RequestCtx) {
	writeError(ctx, xhttp.StatusUnauthorized, "Unauthorized")
}
