package handlers

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"starlore/internal/analytics"
	"starlore/internal/config"
	"starlore/internal/dashboard"
	httpctx "starlore/internal/http/ctx"
	ui "starlore/web"
)

type DayBar struct {
	Label  string
	Date   string
	Visits int64
	Height float64
}

type PageRow struct {
	Page       analytics.Page
	Label      string
	Views      string
	Percentage float64
}

type RecentRow struct {
	Label string
	Time  string
}

// LayoutData is what analytics.html renders from. Stats, PageLabels and
// Frames are also embedded as JSON for the page script. Frames holds the
// count-up sequence of each data-counter element, keyed by stats field.
type LayoutData struct {
	Title          string
	Username       string
	Protected      bool
	Stats          analytics.Stats
	Summary        dashboard.Summary
	TopPageLabel   string
	TotalVisits    string
	UniqueVisitors string
	TodayVisits    string
	Days           []DayBar
	Pages          []PageRow
	Recent         []RecentRow
	PageLabels     map[analytics.Page]string
	PollMillis     int64
	Frames         map[string][]float64
}

func buildLayoutData(stats analytics.Stats, loc *time.Location) LayoutData {
	data := LayoutData{
		Title:          "Site Analitikleri",
		Stats:          stats,
		Summary:        dashboard.Summarize(stats),
		TotalVisits:    FormatCount(stats.TotalVisits),
		UniqueVisitors: FormatCount(stats.UniqueVisitors),
		TodayVisits:    FormatCount(stats.TodayVisits),
		PageLabels:     make(map[analytics.Page]string, len(analytics.Pages)),
		PollMillis:     dashboard.PollInterval.Milliseconds(),
		Frames: map[string][]float64{
			"totalVisits":    dashboard.Animate(float64(stats.TotalVisits), dashboard.AnimationSteps, false),
			"uniqueVisitors": dashboard.Animate(float64(stats.UniqueVisitors), dashboard.AnimationSteps, false),
			"todayVisits":    dashboard.Animate(float64(stats.TodayVisits), dashboard.AnimationSteps, false),
			"bounceRate":     dashboard.Animate(stats.BounceRate, dashboard.AnimationSteps, true),
		},
	}
	for _, p := range analytics.Pages {
		data.PageLabels[p] = dashboard.PageLabel(p)
	}
	if data.Summary.TopPage != "" {
		data.TopPageLabel = dashboard.PageLabel(data.Summary.TopPage)
	}

	heights := dashboard.BarHeights(stats.DailyStats)
	data.Days = make([]DayBar, len(stats.DailyStats))
	for i, d := range stats.DailyStats {
		data.Days[i] = DayBar{Label: d.Label, Date: d.Date, Visits: d.Visits, Height: heights[i]}
	}

	share := stats.PageViewShare
	if share == nil {
		share = analytics.Distribution(stats.PageViews)
	}
	data.Pages = make([]PageRow, len(share))
	for i, s := range share {
		data.Pages[i] = PageRow{
			Page:       s.Page,
			Label:      dashboard.PageLabel(s.Page),
			Views:      FormatCount(s.Views),
			Percentage: analytics.Round1(s.Percentage),
		}
	}

	data.Recent = make([]RecentRow, len(stats.RecentVisits))
	for i, v := range stats.RecentVisits {
		data.Recent[i] = RecentRow{Label: dashboard.PageLabel(v.Page), Time: FormatVisitTime(v.Timestamp, loc)}
	}
	return data
}

func renderPage(ctx *fasthttp.RequestCtx, name string, data any) {
	var buf bytes.Buffer
	if err := ui.Templates().ExecuteTemplate(&buf, name, data); err != nil {
		logrus.WithError(err).WithField("template", name).Error("render failed")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("render error")
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(buf.Bytes())
}

// AnalyticsPage renders the dashboard with the current stats. The page keeps
// itself fresh by polling the stats endpoint; a failed initial read renders
// the zero shape.
func AnalyticsPage(store StatsReader, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		c, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		stats, err := store.Stats(c)
		if err != nil {
			logrus.WithError(err).Warn("dashboard initial stats unavailable")
			stats = analytics.EmptyStats(time.Now())
		}

		data := buildLayoutData(stats, time.Local)
		data.Protected = cfg.DashboardProtected()
		if u, ok := httpctx.UserFromCtx(ctx); ok {
			data.Username = u
		}
		ctx.Response.Header.Set("Cache-Control", "no-store")
		renderPage(ctx, "analytics.html", data)
	}
}

// Home sends the site root to the dashboard.
func Home() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Redirect("/analytics", fasthttp.StatusSeeOther)
	}
}
