package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"starlore/internal/analytics"
	"starlore/internal/config"
	dbpkg "starlore/internal/db"
)

const defaultHistoryDays = 30

type historyPoint struct {
	Date           string         `json:"date"`
	Label          string         `json:"label"`
	Visits         int64          `json:"visits"`
	TotalVisits    int64          `json:"totalVisits"`
	UniqueVisitors int64          `json:"uniqueVisitors"`
	PageViews      map[string]any `json:"pageViews"`
}

// parseDays reads ?days=N, defaulting to 30 and capping at maxDays when set.
func parseDays(ctx *fasthttp.RequestCtx, maxDays int) int {
	days := defaultHistoryDays
	if d := string(ctx.QueryArgs().Peek("days")); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n > 0 {
			days = n
		}
	}
	if maxDays > 0 && days > maxDays {
		days = maxDays
	}
	return days
}

// HistoryHandler serves GET /api/analytics/history from the rollup archive.
// Without an archive database it answers enabled=false and an empty list.
func HistoryHandler(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		days := parseDays(ctx, cfg.RetentionDays)
		if db == nil {
			jsonResponse(ctx, fasthttp.StatusOK, map[string]any{
				"enabled": false,
				"days":    days,
				"history": []historyPoint{},
			})
			return
		}

		c, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		rows, err := dbpkg.History(c, db, days, time.Now())
		if err != nil {
			logrus.WithError(err).Error("analytics history query failed")
			errResponse(ctx, fasthttp.StatusInternalServerError, "Internal server error")
			return
		}

		points := make([]historyPoint, 0, len(rows))
		for _, r := range rows {
			pv := map[string]any(r.PageViews)
			if pv == nil {
				pv = map[string]any{}
			}
			points = append(points, historyPoint{
				Date:           analytics.DayKey(r.Day),
				Label:          analytics.DayLabel(r.Day),
				Visits:         r.Visits,
				TotalVisits:    r.TotalVisits,
				UniqueVisitors: r.UniqueVisitors,
				PageViews:      pv,
			})
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{
			"enabled": true,
			"days":    days,
			"history": points,
		})
	}
}
