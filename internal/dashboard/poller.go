// Package dashboard feeds the analytics dashboard: it polls the stats
// endpoint, falls back to the local tracker mirror when that fails, and
// provides the small amount of arithmetic the charts need.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"starlore/internal/analytics"
	"starlore/internal/tracker"
)

// PollInterval is how often the dashboard refreshes.
const PollInterval = 5 * time.Second

// Source tells where a snapshot came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Snapshot is one refresh of the dashboard.
type Snapshot struct {
	Stats     analytics.Stats
	Source    Source
	FetchedAt time.Time
}

// Fetcher loads stats from the stats endpoint.
type Fetcher interface {
	Fetch(ctx context.Context) (analytics.Stats, error)
}

// HTTPFetcher fetches stats over fasthttp.
type HTTPFetcher struct {
	URL     string
	Client  *fasthttp.Client
	Timeout time.Duration
}

// NewHTTPFetcher reads baseURL + "/api/analytics/stats".
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		URL:     baseURL + "/api/analytics/stats",
		Client:  &fasthttp.Client{Name: "starlore-dashboard"},
		Timeout: 5 * time.Second,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (analytics.Stats, error) {
	var stats analytics.Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(f.URL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Cache-Control", "no-cache")

	deadline := time.Now().Add(f.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := f.Client.DoDeadline(req, resp, deadline); err != nil {
		return stats, fmt.Errorf("get %s: %w", f.URL, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return stats, fmt.Errorf("get %s: unexpected status %d", f.URL, code)
	}
	if err := json.Unmarshal(resp.Body(), &stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// Poller refreshes dashboard snapshots on a fixed interval.
type Poller struct {
	fetcher  Fetcher
	mirror   tracker.Mirror
	interval time.Duration
	now      func() time.Time
}

func NewPoller(f Fetcher, mirror tracker.Mirror) *Poller {
	return &Poller{fetcher: f, mirror: mirror, interval: PollInterval, now: time.Now}
}

// Refresh fetches once, falling back to the local mirror on failure.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	now := p.now()
	stats, err := p.fetcher.Fetch(ctx)
	if err == nil {
		return Snapshot{Stats: stats, Source: SourceRemote, FetchedAt: now}
	}
	logrus.WithError(err).Debug("stats fetch failed, using local mirror")
	return Snapshot{Stats: FromMirror(p.mirror, now), Source: SourceLocal, FetchedAt: now}
}

// Run refreshes immediately and then every interval, handing each snapshot
// to fn, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, fn func(Snapshot)) {
	fn(p.Refresh(ctx))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(p.Refresh(ctx))
		}
	}
}

// FromMirror recomputes the dashboard metrics from the local mirror.
func FromMirror(m tracker.Mirror, now time.Time) analytics.Stats {
	stats := analytics.EmptyStats(now)

	stats.TotalVisits = m.TotalVisits()
	stats.UniqueVisitors = m.UniqueVisitors()
	stats.TodayVisits = m.DailyVisits(now)

	days := analytics.LastDays(now, analytics.SeriesDays)
	for i, d := range days {
		stats.DailyStats[i].Visits = m.DailyVisits(d)
	}

	for _, p := range analytics.DashboardPages {
		stats.PageViews.Set(p, m.PageViews(p))
	}
	stats.PageViewShare = analytics.Distribution(stats.PageViews)

	sessions := m.Sessions()
	counts := make([]int64, len(sessions))
	for i, s := range sessions {
		counts[i] = int64(len(s.Pages))
	}
	stats.BounceRate = analytics.BounceRate(counts)

	recent := m.RecentVisits()
	if len(recent) > analytics.RecentResponseLimit {
		recent = recent[:analytics.RecentResponseLimit]
	}
	for i := range recent {
		recent[i].SessionID = ""
	}
	if recent != nil {
		stats.RecentVisits = recent
	}
	return stats
}
