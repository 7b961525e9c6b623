package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"starlore/internal/analytics"
)

// StatsReader produces the aggregated dashboard metrics. *kv.Store implements it.
type StatsReader interface {
	Stats(ctx context.Context) (analytics.Stats, error)
}

// StatsHandler serves GET /api/analytics/stats.
func StatsHandler(store StatsReader) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		defer func() { statsDuration.Observe(time.Since(start).Seconds()) }()

		c, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		stats, err := store.Stats(c)
		if err != nil {
			logrus.WithError(err).Error("analytics stats failed")
			jsonResponse(ctx, fasthttp.StatusInternalServerError, map[string]any{
				"error":   "Internal server error",
				"details": err.Error(),
			})
			return
		}

		ctx.Response.Header.Set("Cache-Control", "no-store")
		jsonResponse(ctx, fasthttp.StatusOK, stats)
	}
}
