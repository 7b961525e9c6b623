package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"starlore/internal/analytics"
)

// Stats reads the aggregated counters and derives the dashboard metrics.
//
// Every sub-query is isolated: a failed read is logged and contributes its
// zero value, and each one is bounded by the store's query timeout so a store
// that stops answering yields zeros. A disabled store yields
// analytics.EmptyStats. An error is only returned when ctx is cancelled; a
// passed deadline returns whatever was read.
func (s *Store) Stats(ctx context.Context) (analytics.Stats, error) {
	now := s.clock()
	stats := analytics.EmptyStats(now)
	if !s.Enabled() {
		return stats, nil
	}

	days := analytics.LastDays(now, analytics.SeriesDays)
	daily := make([]int64, len(days))
	pageCounts := make([]int64, len(analytics.DashboardPages))
	var (
		total, unique int64
		recent        []analytics.RecentVisit
		sessionPages  []int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total = s.counter(gctx, keyTotalVisits)
		return nil
	})
	g.Go(func() error {
		unique = s.cardinality(gctx, keyUniqueVisitors)
		return nil
	})
	for i, d := range days {
		g.Go(func() error {
			daily[i] = s.counter(gctx, dailyKey(analytics.DayKey(d)))
			return nil
		})
	}
	for i, p := range analytics.DashboardPages {
		g.Go(func() error {
			pageCounts[i] = s.counter(gctx, pageKey(p))
			return nil
		})
	}
	g.Go(func() error {
		recent = s.recentVisits(gctx, analytics.RecentReadLimit)
		return nil
	})
	g.Go(func() error {
		counts, err := s.sessionPageCounts(gctx, analytics.SessionSampleLimit)
		if err != nil {
			logrus.WithError(err).Warn("analytics session sample failed")
		}
		sessionPages = counts
		return nil
	})
	_ = g.Wait()

	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return stats, fmt.Errorf("stats aborted: %w", err)
	case err != nil:
		logrus.WithError(err).Warn("analytics stats deadline passed, serving partial stats")
	}

	stats.TotalVisits = total
	stats.UniqueVisitors = unique
	for i := range days {
		stats.DailyStats[i].Visits = daily[i]
	}
	stats.TodayVisits = daily[len(daily)-1]
	for i, p := range analytics.DashboardPages {
		stats.PageViews.Set(p, pageCounts[i])
	}
	stats.PageViewShare = analytics.Distribution(stats.PageViews)
	stats.BounceRate = analytics.BounceRate(sessionPages)

	if len(recent) > analytics.RecentResponseLimit {
		recent = recent[:analytics.RecentResponseLimit]
	}
	for i := range recent {
		recent[i].SessionID = ""
	}
	if recent != nil {
		stats.RecentVisits = recent
	}
	return stats, nil
}

// counter reads an integer key; a missing key or failed read is 0.
func (s *Store) counter(ctx context.Context, key string) int64 {
	ctx, cancel := s.query(ctx)
	defer cancel()

	var n int64
	err := s.do(func() error {
		v, err := s.client.Get(ctx, key).Int64()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		logrus.WithError(err).WithField("key", key).Warn("analytics counter read failed")
		return 0
	}
	return n
}

func (s *Store) cardinality(ctx context.Context, key string) int64 {
	ctx, cancel := s.query(ctx)
	defer cancel()

	var n int64
	err := s.do(func() error {
		v, err := s.client.SCard(ctx, key).Result()
		n = v
		return err
	})
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("analytics set read failed")
		return 0
	}
	return n
}

// recentVisits returns up to limit recent visits, most recent first.
// Entries that do not decode are skipped.
func (s *Store) recentVisits(ctx context.Context, limit int64) []analytics.RecentVisit {
	ctx, cancel := s.query(ctx)
	defer cancel()

	var raw []string
	err := s.do(func() error {
		v, err := s.client.LRange(ctx, keyRecentVisits, 0, limit-1).Result()
		raw = v
		return err
	})
	if err != nil {
		logrus.WithError(err).Warn("analytics recent visits read failed")
		return nil
	}

	out := make([]analytics.RecentVisit, 0, len(raw))
	for _, r := range raw {
		var rv analytics.RecentVisit
		if err := json.Unmarshal([]byte(r), &rv); err != nil {
			continue
		}
		rv.Page = analytics.ParsePage(string(rv.Page))
		out = append(out, rv)
	}
	return out
}

// sessionPageCounts samples up to limit sessions and returns each one's
// distinct page count.
func (s *Store) sessionPageCounts(ctx context.Context, limit int) ([]int64, error) {
	ctx, cancel := s.query(ctx)
	defer cancel()

	var keys []string
	err := s.do(func() error {
		iter := s.client.Scan(ctx, 0, sessionPagesPrefix+"*", 100).Iterator()
		for len(keys) < limit && iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.IntCmd, len(keys))
	err = s.do(func() error {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, k := range keys {
				cmds[i] = pipe.SCard(ctx, k)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read session pages: %w", err)
	}

	counts := make([]int64, len(cmds))
	for i, c := range cmds {
		counts[i] = c.Val()
	}
	return counts, nil
}

// Snapshot is a point-in-time copy of the counters relevant to one day.
type Snapshot struct {
	Day            time.Time
	Visits         int64
	TotalVisits    int64
	UniqueVisitors int64
	Pages          map[analytics.Page]int64
}

// Snapshot reads the counters for day in one pipeline. Unlike Stats it fails
// as a whole, so callers never archive a partial view.
func (s *Store) Snapshot(ctx context.Context, day time.Time) (Snapshot, error) {
	snap := Snapshot{Day: analytics.LastDays(day, 1)[0], Pages: make(map[analytics.Page]int64, len(analytics.Pages))}
	if !s.Enabled() {
		return snap, ErrDisabled
	}

	var (
		visits, total *redis.StringCmd
		unique        *redis.IntCmd
		pages         = make(map[analytics.Page]*redis.StringCmd, len(analytics.Pages))
	)
	err := s.do(func() error {
		cmds, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			visits = pipe.Get(ctx, dailyKey(analytics.DayKey(day)))
			total = pipe.Get(ctx, keyTotalVisits)
			unique = pipe.SCard(ctx, keyUniqueVisitors)
			for _, p := range analytics.Pages {
				pages[p] = pipe.Get(ctx, pageKey(p))
			}
			return nil
		})
		// Pipelined reports only the first failure. Missing counters surface
		// as redis.Nil and read as zero below; any other failure aborts.
		for _, cmd := range cmds {
			if cerr := cmd.Err(); cerr != nil && !errors.Is(cerr, redis.Nil) {
				return cerr
			}
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("snapshot %s: %w", analytics.DayKey(day), err)
	}

	snap.Visits = intOrZero(visits)
	snap.TotalVisits = intOrZero(total)
	snap.UniqueVisitors = unique.Val()
	for p, cmd := range pages {
		snap.Pages[p] = intOrZero(cmd)
	}
	return snap, nil
}

func intOrZero(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}
