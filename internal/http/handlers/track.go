package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"starlore/internal/analytics"
	"starlore/internal/kv"
)

// storeTimeout bounds a single request's work against the key-value store.
const storeTimeout = 5 * time.Second

var validate = validator.New()

// VisitTracker records visits. *kv.Store implements it.
type VisitTracker interface {
	Track(ctx context.Context, v analytics.Visit) (analytics.Page, error)
}

// TrackHandler serves POST /api/analytics/track. A store that is not
// configured is not an error: the visit is acknowledged with disabled set.
func TrackHandler(store VisitTracker) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var visit analytics.Visit
		if err := json.Unmarshal(ctx.PostBody(), &visit); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "Missing required fields")
			return
		}
		if err := validate.Struct(visit); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "Missing required fields")
			return
		}

		c, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		page, err := store.Track(c, visit)
		switch {
		case errors.Is(err, kv.ErrDisabled):
			jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"success": true, "disabled": true})
		case err != nil:
			trackFailures.Inc()
			logrus.WithError(err).WithFields(logrus.Fields{
				"page":    visit.Page,
				"session": visit.SessionID,
			}).Error("analytics tracking failed")
			errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
		default:
			visitsTracked.WithLabelValues(string(page)).Inc()
			jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"success": true})
		}
	}
}
