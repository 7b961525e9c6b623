package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"starlore/internal/kv"
)

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz always answers 200 while the process serves; the kv field tells
// whether the analytics store is reachable, disabled or failing.
func Healthz(store Pinger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		c, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		status := "ok"
		switch err := store.Ping(c); {
		case errors.Is(err, kv.ErrDisabled):
			status = "disabled"
		case err != nil:
			status = "unavailable"
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"status": "ok", "kv": status})
	}
}
