package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"starlore/internal/analytics"
	"starlore/internal/config"
	"starlore/internal/dashboard"
	appmw "starlore/internal/http/middleware"
	"starlore/internal/kv"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) (*kv.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	s := kv.New(client)
	s.SetClock(func() time.Time { return fixedNow })
	return s, mr
}

func postJSON(h fasthttp.RequestHandler, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.Header.SetContentType("application/json")
	ctx.Request.SetBodyString(body)
	h(&ctx)
	return &ctx
}

func get(h fasthttp.RequestHandler, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI(uri)
	h(&ctx)
	return &ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func TestTrackHandler(t *testing.T) {
	store, mr := setupStore(t)
	h := TrackHandler(store)
	before := testutil.ToFloat64(visitsTracked.WithLabelValues("art"))

	ctx := postJSON(h, `{"visitorId":"v1","sessionId":"s1","page":"art","isNewSession":true}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, map[string]any{"success": true}, decodeBody(t, ctx))

	total, err := mr.Get("analytics:total_visits")
	require.NoError(t, err)
	assert.Equal(t, "1", total)
	assert.True(t, mr.Exists("analytics:session:s1"))
	assert.Equal(t, before+1, testutil.ToFloat64(visitsTracked.WithLabelValues("art")))
}

func TestTrackHandlerAcceptsFalseSessionFlag(t *testing.T) {
	store, mr := setupStore(t)

	ctx := postJSON(TrackHandler(store), `{"visitorId":"v1","sessionId":"s1","page":"home","isNewSession":false}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.False(t, mr.Exists("analytics:session:s1"))
	assert.True(t, mr.Exists("analytics:session_pages:s1"))
}

func TestTrackHandlerRejectsMissingFields(t *testing.T) {
	store, mr := setupStore(t)
	h := TrackHandler(store)

	bodies := []string{
		``,
		`not json`,
		`{}`,
		`{"sessionId":"s1","page":"art","isNewSession":true}`,
		`{"visitorId":"v1","page":"art","isNewSession":true}`,
		`{"visitorId":"v1","sessionId":"s1","isNewSession":true}`,
		`{"visitorId":"v1","sessionId":"s1","page":"art"}`,
		`{"visitorId":"","sessionId":"s1","page":"art","isNewSession":true}`,
	}
	for _, body := range bodies {
		ctx := postJSON(h, body)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), "body %q", body)
		assert.Equal(t, "Missing required fields", decodeBody(t, ctx)["error"], "body %q", body)
	}
	assert.False(t, mr.Exists("analytics:total_visits"))
}

func TestTrackHandlerDisabledStore(t *testing.T) {
	var store *kv.Store

	ctx := postJSON(TrackHandler(store), `{"visitorId":"v1","sessionId":"s1","page":"art","isNewSession":true}`)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, map[string]any{"success": true, "disabled": true}, decodeBody(t, ctx))
}

func TestTrackHandlerStoreFailure(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()
	before := testutil.ToFloat64(trackFailures)

	ctx := postJSON(TrackHandler(store), `{"visitorId":"v1","sessionId":"s1","page":"art","isNewSession":true}`)
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Equal(t, "Internal server error", decodeBody(t, ctx)["error"])
	assert.Equal(t, before+1, testutil.ToFloat64(trackFailures))
}

func TestStatsHandler(t *testing.T) {
	store, _ := setupStore(t)
	track := TrackHandler(store)
	postJSON(track, `{"visitorId":"v1","sessionId":"s1","page":"home","isNewSession":true}`)
	postJSON(track, `{"visitorId":"v1","sessionId":"s1","page":"art","isNewSession":false}`)
	postJSON(track, `{"visitorId":"v2","sessionId":"s2","page":"home","isNewSession":true}`)

	ctx := get(StatsHandler(store), "/api/analytics/stats")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "no-store", string(ctx.Response.Header.Peek("Cache-Control")))

	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &stats))
	assert.Equal(t, int64(3), stats.TotalVisits)
	assert.Equal(t, int64(2), stats.UniqueVisitors)
	assert.Equal(t, int64(3), stats.TodayVisits)
	assert.Equal(t, analytics.PageViews{Home: 2, Art: 1}, stats.PageViews)
	assert.Equal(t, 50.0, stats.BounceRate)
	require.Len(t, stats.DailyStats, analytics.SeriesDays)
	assert.Equal(t, "2026-10-19", stats.DailyStats[6].Date)
	require.Len(t, stats.RecentVisits, 3)
	assert.Equal(t, analytics.PageHome, stats.RecentVisits[0].Page)
	assert.NotContains(t, string(ctx.Response.Body()), "sessionId")
}

func TestStatsHandlerDisabledStore(t *testing.T) {
	var store *kv.Store

	ctx := get(StatsHandler(store), "/api/analytics/stats")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &stats))
	assert.Zero(t, stats.TotalVisits)
	assert.Len(t, stats.DailyStats, analytics.SeriesDays)
	assert.Empty(t, stats.RecentVisits)
}

type failingStats struct{}

func (failingStats) Stats(context.Context) (analytics.Stats, error) {
	return analytics.Stats{}, errors.New("stats aborted: context deadline exceeded")
}

func TestStatsHandlerFailure(t *testing.T) {
	ctx := get(StatsHandler(failingStats{}), "/api/analytics/stats")
	require.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())

	body := decodeBody(t, ctx)
	assert.Equal(t, "Internal server error", body["error"])
	assert.Contains(t, body["details"], "deadline exceeded")
}

func TestParseDays(t *testing.T) {
	cases := map[string]int{
		"/h":            defaultHistoryDays,
		"/h?days=7":     7,
		"/h?days=0":     defaultHistoryDays,
		"/h?days=-3":    defaultHistoryDays,
		"/h?days=abc":   defaultHistoryDays,
		"/h?days=10000": 365,
	}
	for uri, want := range cases {
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI(uri)
		assert.Equal(t, want, parseDays(&ctx, 365), uri)
	}
}

func TestHistoryHandlerWithoutArchive(t *testing.T) {
	ctx := get(HistoryHandler(nil, &config.Config{RetentionDays: 365}), "/api/analytics/history?days=7")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	body := decodeBody(t, ctx)
	assert.Equal(t, false, body["enabled"])
	assert.EqualValues(t, 7, body["days"])
	assert.Empty(t, body["history"])
}

func TestHistoryHandler(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "day", "visits", "total_visits", "unique_visitors", "page_views"}).
		AddRow(1, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), 9, 90, 30, []byte(`{"home":50,"art":12}`))
	mock.ExpectQuery(`SELECT \* FROM "daily_rollups" WHERE day >= .* ORDER BY day`).
		WillReturnRows(rows)

	ctx := get(HistoryHandler(db, &config.Config{RetentionDays: 365}), "/api/analytics/history?days=30")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var body struct {
		Enabled bool           `json:"enabled"`
		Days    int            `json:"days"`
		History []historyPoint `json:"history"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.True(t, body.Enabled)
	assert.Equal(t, 30, body.Days)
	require.Len(t, body.History, 1)
	assert.Equal(t, "2026-10-02", body.History[0].Date)
	assert.Equal(t, "02 Eki", body.History[0].Label)
	assert.Equal(t, int64(9), body.History[0].Visits)
	assert.EqualValues(t, 12, body.History[0].PageViews["art"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	var store *kv.Store
	InitPrometheusMetrics(reg, store)
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"}))

	ctx := get(MetricsHandler(reg), "/metrics")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, "starlore_store_breaker_state -1")
	assert.Contains(t, body, "starlore_track_failures_total")
	assert.NotContains(t, body, "unrelated_total")
}

func TestBreakerValue(t *testing.T) {
	assert.Equal(t, 0.0, breakerValue("closed"))
	assert.Equal(t, 1.0, breakerValue("half-open"))
	assert.Equal(t, 2.0, breakerValue("open"))
	assert.Equal(t, -1.0, breakerValue("disabled"))
}

func TestHealthz(t *testing.T) {
	store, mr := setupStore(t)

	body := decodeBody(t, get(Healthz(store), "/healthz"))
	assert.Equal(t, "ok", body["kv"])

	var disabled *kv.Store
	body = decodeBody(t, get(Healthz(disabled), "/healthz"))
	assert.Equal(t, "disabled", body["kv"])

	mr.Close()
	ctx := get(Healthz(store), "/healthz")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "unavailable", decodeBody(t, ctx)["kv"])
}

func TestAnalyticsPage(t *testing.T) {
	store, _ := setupStore(t)
	postJSON(TrackHandler(store), `{"visitorId":"v1","sessionId":"s1","page":"stories","isNewSession":true}`)

	ctx := get(AnalyticsPage(store, &config.Config{}), "/analytics")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, "Site Analitikleri")
	assert.Contains(t, body, "Hikayeler")
	assert.Contains(t, body, "19 Eki")
	assert.NotContains(t, body, `action="/logout"`)
	assert.Contains(t, body, `"totalVisits":[1]`)
}

func TestAnalyticsPageFallsBackToEmptyStats(t *testing.T) {
	ctx := get(AnalyticsPage(failingStats{}, &config.Config{}), "/analytics")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Henüz aktivite kaydı yok")
}

func TestBuildLayoutData(t *testing.T) {
	stats := analytics.EmptyStats(fixedNow)
	stats.TotalVisits = 12345
	stats.DailyStats[6].Visits = 4
	stats.DailyStats[5].Visits = 2
	stats.PageViews = analytics.PageViews{Art: 3, Home: 1}
	stats.PageViewShare = analytics.Distribution(stats.PageViews)
	stats.RecentVisits = []analytics.RecentVisit{{Timestamp: fixedNow.UnixMilli(), Page: analytics.PageArt}}

	data := buildLayoutData(stats, time.UTC)
	assert.Equal(t, "12.345", data.TotalVisits)
	assert.Equal(t, 100.0, data.Days[6].Height)
	assert.Equal(t, 50.0, data.Days[5].Height)
	assert.Equal(t, "Sanat Galerisi", data.Pages[0].Label)
	assert.Equal(t, 75.0, data.Pages[0].Percentage)
	assert.Equal(t, "Sanat Galerisi", data.TopPageLabel)
	require.Len(t, data.Recent, 1)
	assert.Equal(t, "19.10.2026 12:00", data.Recent[0].Time)
	assert.Equal(t, "Diğer", data.PageLabels[analytics.PageOther])

	total := data.Frames["totalVisits"]
	require.NotEmpty(t, total)
	assert.LessOrEqual(t, len(total), dashboard.AnimationSteps+1)
	assert.Equal(t, 12345.0, total[len(total)-1])
	assert.Equal(t, []float64{0}, data.Frames["todayVisits"])
}

func TestHome(t *testing.T) {
	ctx := get(Home(), "/")
	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())
	assert.Regexp(t, `/analytics$`, string(ctx.Response.Header.Peek("Location")))
}

func postForm(h fasthttp.RequestHandler, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.Header.SetContentType("application/x-www-form-urlencoded")
	ctx.Request.SetBodyString(body)
	h(&ctx)
	return &ctx
}

func TestLoginFlow(t *testing.T) {
	cfg := &config.Config{AdminUser: "admin", AdminPassword: "sirius"}
	creds, err := appmw.NewCredentials(cfg)
	require.NoError(t, err)
	sessions := appmw.NewSessions(time.Hour)

	bad := postForm(LoginSubmit(creds, sessions), "username=admin&password=nope")
	assert.Equal(t, fasthttp.StatusUnauthorized, bad.Response.StatusCode())
	assert.Contains(t, string(bad.Response.Body()), "Kullanıcı adı veya şifre hatalı.")

	ok := postForm(LoginSubmit(creds, sessions), "username=admin&password=sirius")
	require.Equal(t, fasthttp.StatusSeeOther, ok.Response.StatusCode())

	var c fasthttp.Cookie
	c.SetKey(appmw.SessionCookie)
	require.True(t, ok.Response.Header.Cookie(&c))
	token := string(c.Value())
	user, found := sessions.Lookup(token)
	require.True(t, found)
	assert.Equal(t, "admin", user)

	var out fasthttp.RequestCtx
	out.Request.Header.SetMethod(fasthttp.MethodPost)
	out.Request.Header.SetCookie(appmw.SessionCookie, token)
	Logout(sessions)(&out)
	assert.Equal(t, fasthttp.StatusSeeOther, out.Response.StatusCode())
	_, found = sessions.Lookup(token)
	assert.False(t, found)
}

func TestLoginFormOpenDashboard(t *testing.T) {
	ctx := get(LoginForm(&config.Config{}), "/login")
	assert.Equal(t, fasthttp.StatusSeeOther, ctx.Response.StatusCode())

	ctx = get(LoginForm(&config.Config{AdminUser: "admin", AdminPassword: "pw"}), "/login")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `name="password"`)
}

func TestFormatVisitTime(t *testing.T) {
	ms := time.Date(2026, 10, 19, 21, 5, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "19.10.2026 21:05", FormatVisitTime(ms, nil))

	istanbul := time.FixedZone("TRT", 3*60*60)
	assert.Equal(t, "20.10.2026 00:05", FormatVisitTime(ms, istanbul))
}
