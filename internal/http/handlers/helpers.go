package handlers

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		logrus.WithFields(logrus.Fields{
			"method":   string(ctx.Method()),
			"path":     string(ctx.Path()),
			"status":   ctx.Response.StatusCode(),
			"duration": time.Since(start),
			"ip":       ctx.RemoteIP().String(),
		}).Info("request")
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, code int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logrus.WithError(err).Error("encode response")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"Internal server error"}`)
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	jsonResponse(ctx, code, map[string]any{"error": msg})
}
